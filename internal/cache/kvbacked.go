package cache

import (
	"encoding/json"
	"log"
	"sync"

	"mathmentor/internal/kvstore"
)

// KVBackedStore persists cache entries through a kvstore.Store so cached
// snapshots survive a restart. Entries that fail to decode are treated as
// misses; store write errors are logged and otherwise absorbed, since the
// cache contract has no failure mode.
type KVBackedStore[T any] struct {
	kv     kvstore.Store
	prefix string

	// The index is written from the Cache's read path (Load records keys
	// found in the store), so it needs its own lock: the Cache only holds
	// an RLock there.
	mu   sync.Mutex
	keys map[string]struct{}
}

// NewKVBackedStore wraps kv under prefix. The key index starts empty and
// fills as entries are saved or read back, so Len and Range only see keys
// touched during this process lifetime; do not combine a capacity-bounded
// Cache with a pre-populated store.
func NewKVBackedStore[T any](kv kvstore.Store, prefix string) *KVBackedStore[T] {
	return &KVBackedStore[T]{kv: kv, prefix: prefix, keys: make(map[string]struct{})}
}

func (s *KVBackedStore[T]) Load(key string) (Entry[T], bool) {
	raw, ok, err := s.kv.Get(s.prefix + key)
	if err != nil || !ok {
		return Entry[T]{}, false
	}
	var e Entry[T]
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return Entry[T]{}, false
	}
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
	return e, true
}

func (s *KVBackedStore[T]) Save(key string, e Entry[T]) {
	raw, err := json.Marshal(e)
	if err != nil {
		log.Printf("cache: marshal entry %q: %v", key, err)
		return
	}
	if err := s.kv.Set(s.prefix+key, string(raw)); err != nil {
		log.Printf("cache: persist entry %q: %v", key, err)
		return
	}
	s.mu.Lock()
	s.keys[key] = struct{}{}
	s.mu.Unlock()
}

func (s *KVBackedStore[T]) Remove(key string) {
	s.mu.Lock()
	delete(s.keys, key)
	s.mu.Unlock()
	if err := s.kv.Delete(s.prefix + key); err != nil {
		log.Printf("cache: remove entry %q: %v", key, err)
	}
}

func (s *KVBackedStore[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func (s *KVBackedStore[T]) Range(fn func(key string, e Entry[T]) bool) {
	s.mu.Lock()
	snapshot := make([]string, 0, len(s.keys))
	for k := range s.keys {
		snapshot = append(snapshot, k)
	}
	s.mu.Unlock()

	for _, k := range snapshot {
		e, ok := s.Load(k)
		if !ok {
			continue
		}
		if !fn(k, e) {
			return
		}
	}
}

package flight

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestConcurrentCallersShareOneProducer(t *testing.T) {
	g := NewGroup[string]()

	var calls int32
	release := make(chan struct{})
	producer := func(ctx context.Context) (string, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return "result", nil
	}

	const n = 10
	var wg sync.WaitGroup
	results := make([]string, n)
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = g.Do(context.Background(), "key", producer)
		}(i)
	}

	// Wait until the first caller is inside the producer.
	deadline := time.Now().Add(time.Second)
	for atomic.LoadInt32(&calls) == 0 {
		if time.Now().After(deadline) {
			t.Fatalf("producer never started")
		}
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("expected exactly 1 producer invocation, got %d", got)
	}
	for i := 0; i < n; i++ {
		if errs[i] != nil {
			t.Fatalf("caller %d error: %v", i, errs[i])
		}
		if results[i] != "result" {
			t.Fatalf("caller %d got %q", i, results[i])
		}
	}
}

func TestMarkerClearsAfterFailure(t *testing.T) {
	g := NewGroup[int]()
	boom := errors.New("boom")

	if _, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 0, boom
	}); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if g.InFlight("k") {
		t.Fatalf("marker not cleared after failure")
	}

	// The next trigger starts fresh and can succeed.
	v, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		return 7, nil
	})
	if err != nil || v != 7 {
		t.Fatalf("fresh call after failure: %d %v", v, err)
	}
	if g.InFlight("k") {
		t.Fatalf("marker not cleared after success")
	}
}

func TestWaiterDetachesOnCancel(t *testing.T) {
	g := NewGroup[int]()
	release := make(chan struct{})

	go func() {
		_, _ = g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
			<-release
			return 1, nil
		})
	}()
	deadline := time.Now().Add(time.Second)
	for !g.InFlight("k") {
		if time.Now().After(deadline) {
			t.Fatalf("call never became in-flight")
		}
		time.Sleep(time.Millisecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Do(ctx, "k", nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	close(release)
}

func TestForgetResetsKey(t *testing.T) {
	g := NewGroup[int]()
	release := make(chan struct{})
	started := make(chan struct{})

	go func() {
		_, _ = g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
			close(started)
			<-release
			return 1, nil
		})
	}()
	<-started

	g.Forget("k")
	if g.InFlight("k") {
		t.Fatalf("key still in flight after Forget")
	}

	// A new subscriber for the same key starts a fresh producer.
	var calls int32
	v, err := g.Do(context.Background(), "k", func(ctx context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 2, nil
	})
	if err != nil || v != 2 {
		t.Fatalf("fresh call after Forget: %d %v", v, err)
	}
	if calls != 1 {
		t.Fatalf("expected fresh producer run, got %d", calls)
	}
	close(release)
}

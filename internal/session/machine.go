package session

import (
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Thresholds are the history lengths used to re-derive a phase when a
// session is resumed. They are configuration, not business rules: a
// resumed session may land one phase behind its true conversational state,
// and the next server hint corrects it.
type Thresholds struct {
	// TeachUpTo: histories shorter than this resume in teach.
	TeachUpTo int
	// PracticeUpTo: histories shorter than this (but >= TeachUpTo)
	// resume in practice; anything longer resumes in evaluate.
	PracticeUpTo int
}

// DefaultThresholds mirror the backend's own phase progression boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{TeachUpTo: 6, PracticeUpTo: 10}
}

// Machine drives one tutoring session through its ordered phases. All
// session state lives here, mutated only through named transitions; safe
// for concurrent use.
type Machine struct {
	mu         sync.RWMutex
	sessionID  string
	phase      Phase
	history    []Message
	synced     bool
	persisted  time.Time // zero until first successful flush
	thresholds Thresholds
	classify   Classifier
}

type MachineOption func(*Machine)

func WithThresholds(t Thresholds) MachineOption {
	return func(m *Machine) { m.thresholds = t }
}

// WithClassifier swaps the engagement heuristic.
func WithClassifier(c Classifier) MachineOption {
	return func(m *Machine) { m.classify = c }
}

// NewMachine starts a session in the introduction phase.
func NewMachine(sessionID string, opts ...MachineOption) *Machine {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	m := &Machine{
		sessionID:  sessionID,
		phase:      PhaseIntroduction,
		thresholds: DefaultThresholds(),
		classify:   ClassifyEngagement,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) SessionID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sessionID
}

func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase
}

// History returns a snapshot copy of the conversation.
func (m *Machine) History() []Message {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return CloneHistory(m.history)
}

func (m *Machine) HistoryLen() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.history)
}

// BeginTeaching performs the eager introduction -> teach transition once
// the opening message has been generated. The introduction phase is never
// user visible; it exists only to gate that one initial fetch.
func (m *Machine) BeginTeaching() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseIntroduction {
		m.phase = PhaseTeach
	}
}

// AppendUser records a learner message. Rejected once the session is
// complete.
func (m *Machine) AppendUser(content string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase.Terminal() {
		return Message{}, ErrSessionComplete
	}
	msg := NewMessage(RoleUser, content)
	m.history = append(m.history, msg)
	m.synced = false
	return msg, nil
}

// AppendAssistant records a tutor response.
func (m *Machine) AppendAssistant(content string) (Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase.Terminal() {
		return Message{}, ErrSessionComplete
	}
	msg := NewMessage(RoleAssistant, content)
	m.history = append(m.history, msg)
	m.synced = false
	return msg, nil
}

// AdvanceTo applies a phase hint from the server. Only forward moves are
// accepted, and a hint can never complete a session: completion is an
// explicit user action. Returns whether the phase changed.
func (m *Machine) AdvanceTo(hint Phase) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if hint > PhaseEvaluate {
		hint = PhaseEvaluate
	}
	if hint <= m.phase {
		return false
	}
	log.Printf("session %s: phase %s -> %s", m.sessionID, m.phase, hint)
	m.phase = hint
	return true
}

// Signal computes the current engagement signal.
func (m *Machine) Signal() EngagementSignal {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.classify(m.history)
}

// CanComplete reports whether the completion gate is open.
func (m *Machine) CanComplete() bool {
	return m.Signal().Eligible()
}

// Complete moves the session to its terminal phase. The caller is expected
// to run the completion side effects (assessment, final flush, activity
// list notification) in that order after this returns.
func (m *Machine) Complete() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase.Terminal() {
		return ErrSessionComplete
	}
	if !m.classify(m.history).Eligible() {
		return ErrNotEligible
	}
	log.Printf("session %s: phase %s -> %s", m.sessionID, m.phase, PhaseComplete)
	m.phase = PhaseComplete
	return nil
}

// Resume replaces the history wholesale (session reload) and re-derives
// the phase from its length via the configured thresholds.
func (m *Machine) Resume(history []Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = CloneHistory(history)
	m.synced = true
	switch {
	case len(m.history) < m.thresholds.TeachUpTo:
		m.phase = PhaseTeach
	case len(m.history) < m.thresholds.PracticeUpTo:
		m.phase = PhasePractice
	default:
		m.phase = PhaseEvaluate
	}
	log.Printf("session %s: resumed %d messages in phase %s", m.sessionID, len(m.history), m.phase)
}

// Reset is the only transition that moves backwards: it clears the
// conversation and returns to the introduction phase.
func (m *Machine) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = nil
	m.phase = PhaseIntroduction
	m.synced = false
	m.persisted = time.Time{}
}

// MarkPersisted records a successful flush.
func (m *Machine) MarkPersisted(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = true
	m.persisted = at
}

// Synced reports whether the buffer matches the last flushed snapshot.
func (m *Machine) Synced() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.synced
}

// LastPersistedAt returns the time of the last successful flush; the
// second result is false before any flush succeeded.
func (m *Machine) LastPersistedAt() (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.persisted, !m.persisted.IsZero()
}

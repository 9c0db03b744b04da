package session

import (
	"errors"
	"testing"
	"time"
)

func seedEligible(t *testing.T, m *Machine) {
	t.Helper()
	if _, err := m.AppendUser("can you help me solve x + 2 = 5?"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := m.AppendAssistant("Sure, subtract 2 from both sides."); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := m.AppendUser("x = 3"); err != nil {
		t.Fatalf("append: %v", err)
	}
}

func TestIntroductionAutoAdvances(t *testing.T) {
	m := NewMachine("s1")
	if m.Phase() != PhaseIntroduction {
		t.Fatalf("initial phase %s", m.Phase())
	}
	m.BeginTeaching()
	if m.Phase() != PhaseTeach {
		t.Fatalf("expected teach after intro, got %s", m.Phase())
	}
	// Idempotent once past introduction.
	m.BeginTeaching()
	if m.Phase() != PhaseTeach {
		t.Fatalf("BeginTeaching moved phase to %s", m.Phase())
	}
}

func TestPhaseMonotonicity(t *testing.T) {
	m := NewMachine("s1")
	m.BeginTeaching()

	if !m.AdvanceTo(PhasePractice) {
		t.Fatalf("forward hint rejected")
	}
	if m.Phase() != PhasePractice {
		t.Fatalf("phase %s", m.Phase())
	}

	// Backward hints are no-ops.
	if m.AdvanceTo(PhaseIntroduction) {
		t.Fatalf("backward hint accepted")
	}
	if m.AdvanceTo(PhaseTeach) {
		t.Fatalf("backward hint accepted")
	}
	if m.Phase() != PhasePractice {
		t.Fatalf("phase moved backwards to %s", m.Phase())
	}

	// Same-phase hints are no-ops too.
	if m.AdvanceTo(PhasePractice) {
		t.Fatalf("same-phase hint accepted")
	}

	// A hint can never complete the session.
	if m.AdvanceTo(PhaseComplete) {
		if m.Phase() == PhaseComplete {
			t.Fatalf("hint completed the session")
		}
	}
	if m.Phase() != PhaseEvaluate {
		t.Fatalf("complete hint should cap at evaluate, got %s", m.Phase())
	}
}

func TestCompletionEligibility(t *testing.T) {
	// One user message is never enough, whatever the content.
	m := NewMachine("s1")
	m.BeginTeaching()
	if _, err := m.AppendUser("solve 3x + 1 = 7 please, I tried x = 2"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := m.Complete(); !errors.Is(err, ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible with one user message, got %v", err)
	}
	if m.Phase() == PhaseComplete {
		t.Fatalf("rejected completion still advanced the phase")
	}

	// Two user messages with mathematical work pass the gate.
	m2 := NewMachine("s2")
	m2.BeginTeaching()
	if _, err := m2.AppendUser("hello"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := m2.AppendUser("x + 2 = 5"); err != nil {
		t.Fatalf("append: %v", err)
	}
	if !m2.CanComplete() {
		t.Fatalf("two messages with math should be eligible")
	}
	if err := m2.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}
	if m2.Phase() != PhaseComplete {
		t.Fatalf("phase %s after complete", m2.Phase())
	}

	// Two greeting messages are not enough; a third opens the gate even
	// without math (the evaluator scores such sessions zero).
	m3 := NewMachine("s3")
	m3.BeginTeaching()
	_, _ = m3.AppendUser("hi")
	_, _ = m3.AppendUser("ok")
	if m3.CanComplete() {
		t.Fatalf("two greetings should not be eligible")
	}
	_, _ = m3.AppendUser("thanks")
	if !m3.CanComplete() {
		t.Fatalf("three user messages should be eligible")
	}
}

func TestTerminalPhaseRejectsInput(t *testing.T) {
	m := NewMachine("s1")
	m.BeginTeaching()
	seedEligible(t, m)

	if err := m.Complete(); err != nil {
		t.Fatalf("complete: %v", err)
	}

	if _, err := m.AppendUser("one more"); !errors.Is(err, ErrSessionComplete) {
		t.Fatalf("expected ErrSessionComplete, got %v", err)
	}
	if _, err := m.AppendAssistant("reply"); !errors.Is(err, ErrSessionComplete) {
		t.Fatalf("expected ErrSessionComplete, got %v", err)
	}
	if err := m.Complete(); !errors.Is(err, ErrSessionComplete) {
		t.Fatalf("double complete: %v", err)
	}
}

func TestResumeDerivesPhaseFromLength(t *testing.T) {
	mk := func(n int) []Message {
		var out []Message
		for i := 0; i < n; i++ {
			role := RoleUser
			if i%2 == 1 {
				role = RoleAssistant
			}
			out = append(out, NewMessage(role, "msg"))
		}
		return out
	}

	cases := []struct {
		length int
		want   Phase
	}{
		{0, PhaseTeach},
		{5, PhaseTeach},
		{6, PhasePractice},
		{9, PhasePractice},
		{10, PhaseEvaluate},
		{25, PhaseEvaluate},
	}
	for _, tc := range cases {
		m := NewMachine("s1")
		m.Resume(mk(tc.length))
		if m.Phase() != tc.want {
			t.Fatalf("length %d: expected %s, got %s", tc.length, tc.want, m.Phase())
		}
		if m.HistoryLen() != tc.length {
			t.Fatalf("length %d: history %d", tc.length, m.HistoryLen())
		}
		if !m.Synced() {
			t.Fatalf("resumed session should start synced")
		}
	}

	// Custom thresholds are honored.
	m := NewMachine("s2", WithThresholds(Thresholds{TeachUpTo: 2, PracticeUpTo: 4}))
	m.Resume(mk(3))
	if m.Phase() != PhasePractice {
		t.Fatalf("custom thresholds ignored, got %s", m.Phase())
	}
}

func TestResetReturnsToIntroduction(t *testing.T) {
	m := NewMachine("s1")
	m.BeginTeaching()
	seedEligible(t, m)
	m.MarkPersisted(time.Now())

	m.Reset()
	if m.Phase() != PhaseIntroduction {
		t.Fatalf("phase after reset: %s", m.Phase())
	}
	if m.HistoryLen() != 0 {
		t.Fatalf("history survived reset")
	}
	if _, ok := m.LastPersistedAt(); ok {
		t.Fatalf("persist stamp survived reset")
	}
}

func TestHistorySnapshotIsolation(t *testing.T) {
	m := NewMachine("s1")
	m.BeginTeaching()
	if _, err := m.AppendUser("solve 2 + 2"); err != nil {
		t.Fatalf("append: %v", err)
	}

	snap := m.History()
	snap[0] = Message{Content: "mutated"}

	if got := m.History(); got[0].Content != "solve 2 + 2" {
		t.Fatalf("internal history mutated via snapshot")
	}
}

func TestSyncedTracksAppendsAndFlushes(t *testing.T) {
	m := NewMachine("s1")
	m.BeginTeaching()
	if m.Synced() {
		t.Fatalf("empty unsaved session reported synced")
	}
	_, _ = m.AppendUser("2+2")
	m.MarkPersisted(time.Now())
	if !m.Synced() {
		t.Fatalf("expected synced after flush")
	}
	_, _ = m.AppendUser("4")
	if m.Synced() {
		t.Fatalf("append should clear synced")
	}
}

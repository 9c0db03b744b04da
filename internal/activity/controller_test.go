package activity

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mathmentor/internal/api"
	"mathmentor/internal/session"
)

// fakeClient scripts the backend for controller tests.
type fakeClient struct {
	mu sync.Mutex

	started       []string
	intro         string
	replies       []api.PhaseReply
	replyErr      error
	saves         [][]session.Message
	assessErr     error
	assessment    api.Assessment
	assessCalls   int
	completeErr   error
	completeCalls int
	completeScore float64
}

func (f *fakeClient) ListActivities(ctx context.Context, classroomID string, sync bool) ([]api.Activity, error) {
	return nil, nil
}

func (f *fakeClient) StartActivity(ctx context.Context, activityID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, activityID)
	return nil
}

func (f *fakeClient) Introduction(ctx context.Context, activityID string) (string, error) {
	return f.intro, nil
}

func (f *fakeClient) PhaseResponse(ctx context.Context, activityID string, req api.PhaseRequest) (api.PhaseReply, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.replyErr != nil {
		return api.PhaseReply{}, f.replyErr
	}
	if len(f.replies) == 0 {
		return api.PhaseReply{Response: "go on"}, nil
	}
	r := f.replies[0]
	f.replies = f.replies[1:]
	return r, nil
}

func (f *fakeClient) SaveConversation(ctx context.Context, sessionID string, history []session.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves = append(f.saves, history)
	return nil
}

func (f *fakeClient) AssessUnderstanding(ctx context.Context, activityID string, history []session.Message) (api.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assessCalls++
	if f.assessErr != nil {
		return api.Assessment{}, f.assessErr
	}
	return f.assessment, nil
}

func (f *fakeClient) CompleteSession(ctx context.Context, sessionID string, history []session.Message, score float64, feedback *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completeCalls++
	f.completeScore = score
	return f.completeErr
}

func (f *fakeClient) ClassroomAnalytics(ctx context.Context, classroomID, analyticsRange string) (api.AnalyticsSnapshot, error) {
	return api.AnalyticsSnapshot{}, nil
}

func phasePtr(p session.Phase) *session.Phase { return &p }

func newTestController(t *testing.T, client *fakeClient) *Controller {
	t.Helper()
	act := api.Activity{ActivityID: "act-1", StudentActivityID: "sa-1", Title: "Linear equations"}
	c, err := New(client, act, "class-1", NewEvents(), nil, Options{
		AutosaveDebounce: 20 * time.Millisecond,
		SafetyInterval:   time.Hour,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}
	return c
}

func TestOpenStartsActivityAndTeaches(t *testing.T) {
	client := &fakeClient{intro: "Hi Alex! Let's look at linear equations."}
	c := newTestController(t, client)
	defer c.Close()

	intro, err := c.Open(context.Background(), nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if intro != client.intro {
		t.Fatalf("intro %q", intro)
	}
	if len(client.started) != 1 || client.started[0] != "act-1" {
		t.Fatalf("started %v", client.started)
	}
	if c.Phase() != session.PhaseTeach {
		t.Fatalf("phase after open: %s", c.Phase())
	}
	if got := len(c.History()); got != 1 {
		t.Fatalf("history %d", got)
	}
}

func TestOpenResumesPriorHistory(t *testing.T) {
	client := &fakeClient{}
	c := newTestController(t, client)
	defer c.Close()

	prior := make([]session.Message, 0, 10)
	for i := 0; i < 5; i++ {
		prior = append(prior, session.NewMessage(session.RoleUser, "work"))
		prior = append(prior, session.NewMessage(session.RoleAssistant, "reply"))
	}

	if _, err := c.Open(context.Background(), prior); err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(client.started) != 0 {
		t.Fatalf("resume should not call start: %v", client.started)
	}
	if c.Phase() != session.PhaseEvaluate {
		t.Fatalf("resumed phase %s", c.Phase())
	}
}

func TestSendAdvancesOnServerHint(t *testing.T) {
	client := &fakeClient{
		intro: "Hi!",
		replies: []api.PhaseReply{
			{Response: "try this one", NextPhase: phasePtr(session.PhasePractice)},
			{Response: "almost", NextPhase: phasePtr(session.PhaseTeach)}, // backward, ignored
		},
	}
	c := newTestController(t, client)
	defer c.Close()

	if _, err := c.Open(context.Background(), nil); err != nil {
		t.Fatalf("open: %v", err)
	}

	reply, err := c.Send(context.Background(), "so x + 2 = 5 means x = 3?")
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if reply != "try this one" {
		t.Fatalf("reply %q", reply)
	}
	if c.Phase() != session.PhasePractice {
		t.Fatalf("hint not applied: %s", c.Phase())
	}

	if _, err := c.Send(context.Background(), "then 2x = 6 gives x = 3"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.Phase() != session.PhasePractice {
		t.Fatalf("backward hint moved phase to %s", c.Phase())
	}
}

func TestSendFailureKeepsUserMessageBuffered(t *testing.T) {
	client := &fakeClient{intro: "Hi!", replyErr: errors.New("network down")}
	c := newTestController(t, client)
	defer c.Close()

	if _, err := c.Open(context.Background(), nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c.Send(context.Background(), "2 + 2 = 4"); err == nil {
		t.Fatalf("expected send error")
	}

	history := c.History()
	if len(history) != 2 || history[1].Role != session.RoleUser {
		t.Fatalf("user message lost on failure: %+v", history)
	}
}

func TestCompleteFlowWithRemoteFailureFallsBack(t *testing.T) {
	client := &fakeClient{
		intro: "Hi Alex!",
		replies: []api.PhaseReply{
			{Response: "good, let's practice", NextPhase: phasePtr(session.PhasePractice)},
			{Response: "nice work"},
		},
		assessErr: errors.New("assessment service unavailable"),
	}
	c := newTestController(t, client)

	events := c.events
	var completed []CompletionEvent
	events.SessionCompleted.Subscribe(func(e CompletionEvent) {
		completed = append(completed, e)
	})
	var staleClassrooms []string
	events.ActivityListStale.Subscribe(func(id string) {
		staleClassrooms = append(staleClassrooms, id)
	})

	ctx := context.Background()
	if _, err := c.Open(ctx, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c.Send(ctx, "I think x + 2 = 5 so x = 3"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if c.Phase() != session.PhasePractice {
		t.Fatalf("phase %s", c.Phase())
	}
	if _, err := c.Send(ctx, "and 2x = 8 gives x = 4"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if !c.CanComplete() {
		t.Fatalf("two math messages should open the gate")
	}

	result, err := c.Complete(ctx)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if client.assessCalls != 1 {
		t.Fatalf("assess calls %d", client.assessCalls)
	}
	if result.Source != session.SourceFallback {
		t.Fatalf("source %s", result.Source)
	}
	if result.Score != 50 { // min(30 + 2*10, 70)
		t.Fatalf("fallback score %v", result.Score)
	}
	if client.completeCalls != 1 || client.completeScore != 50 {
		t.Fatalf("complete call: %d calls, score %v", client.completeCalls, client.completeScore)
	}
	if c.Phase() != session.PhaseComplete {
		t.Fatalf("phase %s", c.Phase())
	}
	if len(client.saves) == 0 {
		t.Fatalf("teardown flush did not persist the conversation")
	}
	if len(completed) != 1 || completed[0].Result.Score != 50 {
		t.Fatalf("completion event %v", completed)
	}
	if len(staleClassrooms) != 1 || staleClassrooms[0] != "class-1" {
		t.Fatalf("stale event %v", staleClassrooms)
	}

	// Terminal session rejects further input.
	if _, err := c.Send(ctx, "one more"); !errors.Is(err, session.ErrSessionComplete) {
		t.Fatalf("expected ErrSessionComplete, got %v", err)
	}
}

func TestCompleteRejectedBeforeEligibility(t *testing.T) {
	client := &fakeClient{intro: "Hi!"}
	c := newTestController(t, client)
	defer c.Close()

	ctx := context.Background()
	if _, err := c.Open(ctx, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c.Send(ctx, "x = 3"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := c.Complete(ctx); !errors.Is(err, session.ErrNotEligible) {
		t.Fatalf("expected ErrNotEligible, got %v", err)
	}
	if client.completeCalls != 0 {
		t.Fatalf("rejected completion reached the backend")
	}
	if c.Phase() == session.PhaseComplete {
		t.Fatalf("rejected completion advanced the phase")
	}
}

func TestCompleteSurvivesNonAuthBackendFailure(t *testing.T) {
	client := &fakeClient{
		intro:       "Hi!",
		assessment:  api.Assessment{Score: 91, Feedback: "excellent"},
		completeErr: errors.New("503 from backend"),
	}
	c := newTestController(t, client)

	ctx := context.Background()
	if _, err := c.Open(ctx, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c.Send(ctx, "x + 1 = 2 so x = 1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := c.Send(ctx, "and 4 / 2 = 2"); err != nil {
		t.Fatalf("send: %v", err)
	}

	result, err := c.Complete(ctx)
	if err != nil {
		t.Fatalf("non-auth backend failure should not surface: %v", err)
	}
	if result.Source != session.SourceRemote || result.Score != 91 {
		t.Fatalf("result %+v", result)
	}
	if c.Phase() != session.PhaseComplete {
		t.Fatalf("phase %s", c.Phase())
	}
}

func TestCompleteSurfacesAuthFailureAfterTeardown(t *testing.T) {
	client := &fakeClient{
		intro:       "Hi!",
		assessment:  api.Assessment{Score: 80, Feedback: "good"},
		completeErr: api.ErrUnauthorized,
	}
	act := api.Activity{ActivityID: "act-1", StudentActivityID: "sa-1"}
	// Timers far out: any flush observed below must come from the
	// completion teardown, not from the debounce or safety schedule.
	c, err := New(client, act, "class-1", NewEvents(), nil, Options{
		AutosaveDebounce: time.Hour,
		SafetyInterval:   time.Hour,
	})
	if err != nil {
		t.Fatalf("new controller: %v", err)
	}

	var completed []CompletionEvent
	c.events.SessionCompleted.Subscribe(func(e CompletionEvent) {
		completed = append(completed, e)
	})
	var staleClassrooms []string
	c.events.ActivityListStale.Subscribe(func(id string) {
		staleClassrooms = append(staleClassrooms, id)
	})

	ctx := context.Background()
	if _, err := c.Open(ctx, nil); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := c.Send(ctx, "x = 1 + 1"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if _, err := c.Send(ctx, "so x = 2"); err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := c.Complete(ctx); !api.IsAuthError(err) {
		t.Fatalf("expected auth error, got %v", err)
	}

	// The engine shut down before the error surfaced: the teardown flush
	// ran, and a second Close stays a no-op.
	if len(client.saves) == 0 {
		t.Fatalf("teardown flush did not run before the auth error")
	}
	flushed := len(client.saves)
	c.Close()
	if len(client.saves) != flushed {
		t.Fatalf("engine was still live after Complete: %d -> %d", flushed, len(client.saves))
	}

	// The list still gets invalidated; the success event does not fire.
	if len(staleClassrooms) != 1 || staleClassrooms[0] != "class-1" {
		t.Fatalf("stale event %v", staleClassrooms)
	}
	if len(completed) != 0 {
		t.Fatalf("completion event published despite auth failure: %v", completed)
	}
}

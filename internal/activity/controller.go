// Package activity coordinates one open tutoring activity: it drives the
// phase machine through message exchange, persists the conversation and
// runs the completion flow. It is the orchestration boundary where
// transport failures turn into recovered states.
package activity

import (
	"context"
	"fmt"
	"log"
	"time"

	"mathmentor/internal/api"
	"mathmentor/internal/persist"
	"mathmentor/internal/session"
	"mathmentor/internal/visibility"
)

// Controller owns the live session for one activity view. One controller
// is active per open activity.
type Controller struct {
	client      api.Client
	machine     *session.Machine
	engine      *persist.Engine
	events      *Events
	evaluator   session.Evaluator
	classroomID string
	activityID  string
}

// Options configure a controller; zero values take defaults.
type Options struct {
	Thresholds       session.Thresholds
	Classifier       session.Classifier
	AutosaveDebounce time.Duration
	SafetyInterval   time.Duration
}

// New builds the controller for one activity. act.StudentActivityID is the
// session identity on the wire. vis may be nil when the host has no
// visibility signal.
func New(client api.Client, act api.Activity, classroomID string, events *Events, vis *visibility.Tracker, opts Options) (*Controller, error) {
	machineOpts := []session.MachineOption{}
	if opts.Thresholds != (session.Thresholds{}) {
		machineOpts = append(machineOpts, session.WithThresholds(opts.Thresholds))
	}
	if opts.Classifier != nil {
		machineOpts = append(machineOpts, session.WithClassifier(opts.Classifier))
	}
	machine := session.NewMachine(act.StudentActivityID, machineOpts...)

	c := &Controller{
		client:      client,
		machine:     machine,
		events:      events,
		evaluator:   session.Evaluator{Classify: opts.Classifier},
		classroomID: classroomID,
		activityID:  act.ActivityID,
	}

	engine, err := persist.New(machine, c.saveConversation, vis, persist.Options{
		Debounce:       opts.AutosaveDebounce,
		SafetyInterval: opts.SafetyInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("init persistence: %w", err)
	}
	c.engine = engine
	return c, nil
}

func (c *Controller) saveConversation(ctx context.Context, history []session.Message) error {
	return c.client.SaveConversation(ctx, c.machine.SessionID(), history)
}

// Open prepares the session. With prior history the session resumes and
// the phase is re-derived; otherwise the activity is started and the
// opening message fetched, after which the machine moves straight to
// teach. Auth errors propagate; transport errors surface so the view can
// show a retryable empty state.
func (c *Controller) Open(ctx context.Context, prior []session.Message) (string, error) {
	if len(prior) > 0 {
		c.machine.Resume(prior)
		return "", nil
	}

	if err := c.client.StartActivity(ctx, c.activityID); err != nil {
		return "", fmt.Errorf("open activity: %w", err)
	}
	intro, err := c.client.Introduction(ctx, c.activityID)
	if err != nil {
		return "", fmt.Errorf("open activity: %w", err)
	}
	if ctx.Err() != nil {
		// Cancelled mid-open: no phase transition.
		return "", ctx.Err()
	}

	if _, err := c.machine.AppendAssistant(intro); err != nil {
		return "", err
	}
	c.engine.NoteAppend()
	c.machine.BeginTeaching()
	return intro, nil
}

// Send submits one learner message and returns the tutor's reply. The
// learner's message stays buffered even when the reply fails, so the next
// flush persists it.
func (c *Controller) Send(ctx context.Context, input string) (string, error) {
	if _, err := c.machine.AppendUser(input); err != nil {
		return "", err
	}
	c.engine.NoteAppend()

	reply, err := c.client.PhaseResponse(ctx, c.activityID, api.PhaseRequest{
		Input:        input,
		CurrentPhase: c.machine.Phase(),
		History:      c.machine.History(),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	if _, err := c.machine.AppendAssistant(reply.Response); err != nil {
		return "", err
	}
	c.engine.NoteAppend()

	if reply.NextPhase != nil {
		c.machine.AdvanceTo(*reply.NextPhase)
	}
	return reply.Response, nil
}

// CanComplete reports whether the completion gate is open.
func (c *Controller) CanComplete() bool { return c.machine.CanComplete() }

// Complete runs the completion flow: gate check, terminal transition,
// assessment, the complete call, final flush, then notifications. The
// returned result is always defined when err is nil.
func (c *Controller) Complete(ctx context.Context) (session.AssessmentResult, error) {
	if err := c.machine.Complete(); err != nil {
		return session.AssessmentResult{}, err
	}

	history := c.machine.History()
	result := c.evaluator.Evaluate(ctx, history, func(ctx context.Context) (float64, string, error) {
		a, err := c.client.AssessUnderstanding(ctx, c.activityID, history)
		return a.Score, a.Feedback, err
	})

	completeErr := c.client.CompleteSession(ctx, c.machine.SessionID(), history, result.Score, result.Feedback)
	if completeErr != nil {
		// The session is complete locally either way; completion state
		// reconciles on the next activity list sync.
		log.Printf("activity %s: complete call failed: %v", c.activityID, completeErr)
	}

	// The session is terminal, so the timers stop before any error
	// surfaces; the cron safety flush has nothing left to guard.
	c.engine.Close()

	if c.events != nil {
		if !api.IsAuthError(completeErr) {
			c.events.SessionCompleted.Publish(CompletionEvent{
				SessionID:   c.machine.SessionID(),
				ClassroomID: c.classroomID,
				Result:      result,
			})
		}
		c.events.ActivityListStale.Publish(c.classroomID)
	}

	if api.IsAuthError(completeErr) {
		return result, completeErr
	}
	return result, nil
}

// Close tears the controller down without completing: timers stop and one
// final flush goes out.
func (c *Controller) Close() {
	c.engine.Close()
}

func (c *Controller) Phase() session.Phase             { return c.machine.Phase() }
func (c *Controller) History() []session.Message       { return c.machine.History() }
func (c *Controller) Signal() session.EngagementSignal { return c.machine.Signal() }
func (c *Controller) SessionID() string                { return c.machine.SessionID() }

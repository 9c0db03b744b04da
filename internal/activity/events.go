package activity

import (
	"mathmentor/internal/bus"
	"mathmentor/internal/session"
)

// CompletionEvent is published once a session reaches its terminal phase.
type CompletionEvent struct {
	SessionID   string
	ClassroomID string
	Result      session.AssessmentResult
}

// Events are the orchestrator-scoped topics that replace global custom
// events: payload shapes are checked at compile time and subscriptions die
// with the orchestrator.
type Events struct {
	// ActivityListStale carries the classroom whose activity list should
	// be refreshed ahead of its TTL.
	ActivityListStale *bus.Topic[string]
	SessionCompleted  *bus.Topic[CompletionEvent]
}

func NewEvents() *Events {
	return &Events{
		ActivityListStale: bus.NewTopic[string](),
		SessionCompleted:  bus.NewTopic[CompletionEvent](),
	}
}

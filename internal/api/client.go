// Package api defines the remote activity backend interface consumed by
// the orchestration layer, and its HTTP implementation. The orchestrator
// only ever talks to the Client interface, so tests and the offline tutor
// plug in without a network.
package api

import (
	"context"
	"time"

	"mathmentor/internal/session"
)

// Activity is one assigned learning activity as listed for a classroom.
type Activity struct {
	ActivityID        string     `json:"activity_id"`
	StudentActivityID string     `json:"student_activity_id"`
	Title             string     `json:"title"`
	Description       string     `json:"description"`
	ActivityType      string     `json:"activity_type"`
	Status            string     `json:"status"`
	Score             *float64   `json:"score,omitempty"`
	Feedback          *string    `json:"feedback,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	CompletedAt       *time.Time `json:"completed_at,omitempty"`
}

// PhaseRequest carries one learner turn to the backend.
type PhaseRequest struct {
	Input        string
	CurrentPhase session.Phase
	History      []session.Message
}

// PhaseReply is the tutor response plus an optional forward phase hint.
type PhaseReply struct {
	Response  string
	NextPhase *session.Phase
}

// Assessment is the remote understanding assessment.
type Assessment struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

// AnalyticsSnapshot summarizes classroom activity over a range.
type AnalyticsSnapshot struct {
	ClassroomID         string    `json:"classroom_id"`
	Range               string    `json:"range"`
	ActiveStudents      int       `json:"active_students"`
	CompletedActivities int       `json:"completed_activities"`
	AverageScore        float64   `json:"average_score"`
	GeneratedAt         time.Time `json:"generated_at"`
}

// Client is the set of remote operations the orchestrator consumes.
// Implementations must return ErrUnauthorized (possibly wrapped) for
// credential failures; every other failure is an ordinary transport error
// that callers absorb via cached data or fallbacks.
type Client interface {
	// ListActivities lists the classroom's activities. sync forces the
	// backend to reconcile assignment state before answering.
	ListActivities(ctx context.Context, classroomID string, sync bool) ([]Activity, error)

	// StartActivity marks an assigned activity as started.
	StartActivity(ctx context.Context, activityID string) error

	// Introduction returns the tutor's opening message for an activity.
	Introduction(ctx context.Context, activityID string) (string, error)

	// PhaseResponse generates the tutor's reply for one learner turn.
	PhaseResponse(ctx context.Context, activityID string, req PhaseRequest) (PhaseReply, error)

	// SaveConversation persists the complete history snapshot;
	// last write wins.
	SaveConversation(ctx context.Context, sessionID string, history []session.Message) error

	// AssessUnderstanding scores the conversation.
	AssessUnderstanding(ctx context.Context, activityID string, history []session.Message) (Assessment, error)

	// CompleteSession marks the activity completed with its final
	// conversation, score and optional feedback.
	CompleteSession(ctx context.Context, sessionID string, history []session.Message, score float64, feedback *string) error

	// ClassroomAnalytics returns the classroom analytics snapshot.
	ClassroomAnalytics(ctx context.Context, classroomID, analyticsRange string) (AnalyticsSnapshot, error)
}

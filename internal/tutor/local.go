// Package tutor is the offline backend: it implements api.Client directly
// over an LLM provider so a session can run without a deployed tutoring
// service. Phase hints follow the backend's own length-based progression.
package tutor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"mathmentor/internal/api"
	"mathmentor/internal/llm"
	"mathmentor/internal/session"
)

// Phase hint boundaries, matching the remote backend's progression.
const (
	teachAfter    = 2  // introduction -> teach
	practiceAfter = 6  // teach -> practice
	evaluateAfter = 10 // practice -> evaluate
)

// Local serves a single ad-hoc activity from memory.
type Local struct {
	llm         llm.Client
	topic       string
	studentName string

	mu        sync.Mutex
	activity  api.Activity
	saved     map[string][]session.Message
	completed bool
}

func NewLocal(client llm.Client, topic, studentName string) *Local {
	if studentName == "" {
		studentName = "Student"
	}
	now := time.Now()
	return &Local{
		llm:         client,
		topic:       topic,
		studentName: studentName,
		activity: api.Activity{
			ActivityID:        uuid.NewString(),
			StudentActivityID: uuid.NewString(),
			Title:             topic,
			Description:       fmt.Sprintf("Conversational tutoring session on %s", topic),
			ActivityType:      "conversational",
			Status:            "assigned",
			StartedAt:         &now,
		},
		saved: make(map[string][]session.Message),
	}
}

func (l *Local) ListActivities(ctx context.Context, classroomID string, sync bool) ([]api.Activity, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return []api.Activity{l.activity}, nil
}

func (l *Local) StartActivity(ctx context.Context, activityID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.activity.Status == "assigned" {
		l.activity.Status = "in_progress"
	}
	return nil
}

// Introduction uses the backend's fixed greeting format rather than a
// model call; the original service does the same.
func (l *Local) Introduction(ctx context.Context, activityID string) (string, error) {
	return fmt.Sprintf("Hi %s! I'm MathMentor, your math tutor. Today we'll be working on **%s**. "+
		"Take your time, try things out, and don't worry about getting everything right the "+
		"first time. When you're ready, let's begin!", l.studentName, l.topic), nil
}

func (l *Local) PhaseResponse(ctx context.Context, activityID string, req api.PhaseRequest) (api.PhaseReply, error) {
	resp, err := l.llm.Generate(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: phasePrompt(l.topic, req.CurrentPhase, req.History, req.Input)},
	})
	if err != nil {
		return api.PhaseReply{}, fmt.Errorf("generate phase response: %w", err)
	}

	reply := api.PhaseReply{Response: resp.Content}
	if hint, ok := l.nextPhase(req); ok {
		reply.NextPhase = &hint
	}
	return reply, nil
}

// nextPhase applies the length-based progression, except that a bare
// acknowledgment never drives a phase change on its own.
func (l *Local) nextPhase(req api.PhaseRequest) (session.Phase, bool) {
	if session.IsAcknowledgment(req.Input) {
		return 0, false
	}
	length := len(req.History)
	switch req.CurrentPhase {
	case session.PhaseIntroduction:
		if length >= teachAfter {
			return session.PhaseTeach, true
		}
	case session.PhaseTeach:
		if length >= practiceAfter {
			return session.PhasePractice, true
		}
	case session.PhasePractice:
		if length >= evaluateAfter {
			return session.PhaseEvaluate, true
		}
	}
	return 0, false
}

func (l *Local) SaveConversation(ctx context.Context, sessionID string, history []session.Message) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.saved[sessionID] = session.CloneHistory(history)
	return nil
}

func (l *Local) AssessUnderstanding(ctx context.Context, activityID string, history []session.Message) (api.Assessment, error) {
	resp, err := l.llm.Generate(ctx, []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: assessPrompt(l.topic, history)},
	})
	if err != nil {
		return api.Assessment{}, fmt.Errorf("generate assessment: %w", err)
	}
	return parseAssessment(resp.Content)
}

func parseAssessment(content string) (api.Assessment, error) {
	lines := strings.SplitN(strings.TrimSpace(content), "\n", 2)
	score, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(lines[0]), "%"), 64)
	if err != nil {
		return api.Assessment{}, fmt.Errorf("unparseable assessment score %q", lines[0])
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	out := api.Assessment{Score: score}
	if len(lines) > 1 {
		out.Feedback = strings.TrimSpace(lines[1])
	}
	return out, nil
}

func (l *Local) CompleteSession(ctx context.Context, sessionID string, history []session.Message, score float64, feedback *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	l.saved[sessionID] = session.CloneHistory(history)
	l.activity.Status = "completed"
	l.activity.Score = &score
	l.activity.Feedback = feedback
	l.activity.CompletedAt = &now
	l.completed = true
	return nil
}

func (l *Local) ClassroomAnalytics(ctx context.Context, classroomID, analyticsRange string) (api.AnalyticsSnapshot, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	snap := api.AnalyticsSnapshot{
		ClassroomID:    classroomID,
		Range:          analyticsRange,
		ActiveStudents: 1,
		GeneratedAt:    time.Now(),
	}
	if l.completed {
		snap.CompletedActivities = 1
		if l.activity.Score != nil {
			snap.AverageScore = *l.activity.Score
		}
	}
	return snap, nil
}

package progress

import (
	"encoding/json"
	"fmt"
	"time"

	"mathmentor/internal/session"
)

// Summary describes one session after the fact: how much the learner
// participated and how it was scored.
type Summary struct {
	SessionID         string     `json:"session_id"`
	Phase             string     `json:"phase"`
	TotalMessages     int        `json:"total_messages"`
	UserMessages      int        `json:"user_messages"`
	AssistantMessages int        `json:"assistant_messages"`
	MathematicalWork  bool       `json:"mathematical_work"`
	Duration          string     `json:"duration"`
	Score             *float64   `json:"score,omitempty"`
	ScoreSource       string     `json:"score_source,omitempty"`
	Feedback          *string    `json:"feedback,omitempty"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
}

// Summarize computes the summary for a session, optionally with its
// assessment result.
func Summarize(sessionID string, phase session.Phase, history []session.Message, sig session.EngagementSignal, result *session.AssessmentResult) Summary {
	s := Summary{
		SessionID:        sessionID,
		Phase:            phase.String(),
		TotalMessages:    len(history),
		UserMessages:     sig.UserMessageCount,
		MathematicalWork: sig.HasMathematicalWork,
	}
	s.AssistantMessages = s.TotalMessages - s.UserMessages

	if len(history) > 0 {
		first := history[0].Timestamp
		last := history[len(history)-1].Timestamp
		s.StartedAt = &first
		s.Duration = last.Sub(first).Round(time.Second).String()
	}

	if result != nil {
		score := result.Score
		s.Score = &score
		s.ScoreSource = string(result.Source)
		s.Feedback = result.Feedback
	}
	return s
}

// Render produces the human-readable report printed at completion.
func (s Summary) Render() string {
	out := fmt.Sprintf("Session %s finished in phase %s\n", s.SessionID, s.Phase)
	out += fmt.Sprintf("Messages: %d total (%d yours, %d tutor)\n", s.TotalMessages, s.UserMessages, s.AssistantMessages)
	if s.Duration != "" {
		out += fmt.Sprintf("Duration: %s\n", s.Duration)
	}
	if s.Score != nil {
		out += fmt.Sprintf("Score: %.0f%% (%s)\n", *s.Score, s.ScoreSource)
	}
	if s.Feedback != nil && *s.Feedback != "" {
		out += fmt.Sprintf("Feedback: %s\n", *s.Feedback)
	}
	if !s.MathematicalWork {
		out += "No mathematical work was detected this session. Try working through a problem next time!\n"
	}
	return out
}

// ToJSON serializes the summary for storage alongside the conversation.
func (s Summary) ToJSON() (string, error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

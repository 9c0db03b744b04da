package session

import (
	"context"
	"log"
)

type AssessmentSource string

const (
	SourceRemote   AssessmentSource = "remote"
	SourceFallback AssessmentSource = "fallback"
)

// AssessmentResult is produced exactly once per session, at completion.
// A nil Feedback means a downstream collaborator should generate it.
type AssessmentResult struct {
	Score    float64          `json:"score"`
	Feedback *string          `json:"feedback"`
	Source   AssessmentSource `json:"source"`
}

// RemoteAssessor is the remote understanding-assessment call, abstracted
// so the evaluator stays transport free.
type RemoteAssessor func(ctx context.Context) (score float64, feedback string, err error)

// Evaluator decides what score and feedback accompany a completion
// request. It never fails: every path yields a defined result.
type Evaluator struct {
	// Classify defaults to ClassifyEngagement when nil.
	Classify Classifier
}

// Evaluate runs the completion assessment. Sessions with no mathematical
// work, or nothing beyond greetings, score zero without touching the
// network. Otherwise the remote result is used verbatim when available and
// the deterministic fallback when not.
func (e *Evaluator) Evaluate(ctx context.Context, history []Message, remote RemoteAssessor) AssessmentResult {
	classify := e.Classify
	if classify == nil {
		classify = ClassifyEngagement
	}
	sig := classify(history)

	if !sig.HasMathematicalWork || sig.GreetingOnly {
		return AssessmentResult{Score: 0, Source: SourceFallback}
	}

	if remote != nil {
		score, feedback, err := remote(ctx)
		if err == nil {
			if score < 0 {
				score = 0
			}
			if score > 100 {
				score = 100
			}
			var fb *string
			if feedback != "" {
				fb = &feedback
			}
			return AssessmentResult{Score: score, Feedback: fb, Source: SourceRemote}
		}
		log.Printf("assessment unavailable, using fallback score: %v", err)
	}

	return AssessmentResult{Score: FallbackScore(sig.UserMessageCount), Source: SourceFallback}
}

// FallbackScore is the deterministic substitute used when the remote
// assessment is unavailable: min(30 + 10*userMessages, 70).
func FallbackScore(userMessages int) float64 {
	score := 30 + 10*userMessages
	if score > 70 {
		score = 70
	}
	return float64(score)
}

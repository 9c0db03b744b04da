package session

import (
	"regexp"
	"strings"
)

// EngagementSignal summarizes how substantively the learner has
// participated. It is derived from the history on demand and never
// persisted.
type EngagementSignal struct {
	UserMessageCount    int
	HasMathematicalWork bool
	GreetingOnly        bool
}

// Classifier derives the engagement signal from a conversation. It is a
// function value so the keyword heuristic below can be swapped for a better
// proxy without touching the state machine or the evaluator.
type Classifier func(history []Message) EngagementSignal

// symbolPattern matches digits and arithmetic operators, the cheapest
// evidence of actual mathematical work.
var symbolPattern = regexp.MustCompile(`[0-9]|[+\-*/=^]`)

var mathKeywords = []string{
	"solve", "equation", "answer", "equals", "calculate", "fraction",
	"multiply", "divide", "subtract", "plus", "minus", "times", "sum",
	"algebra", "variable", "graph", "slope", "denominator", "numerator",
	"square", "root", "exponent",
}

var greetingTokens = []string{
	"hi", "hello", "hey", "thanks", "thank you", "ok", "okay", "yes",
	"yeah", "yep", "no", "sure", "got it", "good morning", "good afternoon",
}

// greetingMaxLen bounds how long a message can be and still count as a
// bare greeting or acknowledgment.
const greetingMaxLen = 20

// ClassifyEngagement is the default Classifier: keyword and symbol
// matching over user-authored messages. A coarse proxy; math discussed in
// plain prose without symbols or vocabulary will be missed.
func ClassifyEngagement(history []Message) EngagementSignal {
	users := UserMessages(history)

	sig := EngagementSignal{UserMessageCount: len(users)}
	if len(users) == 0 {
		return sig
	}

	allGreetings := true
	for _, m := range users {
		if HasMathContent(m.Content) {
			sig.HasMathematicalWork = true
		}
		if !isGreeting(m.Content) {
			allGreetings = false
		}
	}
	sig.GreetingOnly = allGreetings
	return sig
}

// HasMathContent reports whether a single message shows mathematical work.
func HasMathContent(content string) bool {
	if symbolPattern.MatchString(content) {
		return true
	}
	lower := strings.ToLower(content)
	for _, kw := range mathKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func isGreeting(content string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(content))
	if len(trimmed) >= greetingMaxLen {
		return false
	}
	for _, tok := range greetingTokens {
		if trimmed == tok || strings.HasPrefix(trimmed, tok+" ") ||
			strings.HasPrefix(trimmed, tok+"!") || strings.HasPrefix(trimmed, tok+",") {
			return true
		}
	}
	return false
}

// IsAcknowledgment reports whether a message is a bare acknowledgment that
// should never drive a phase change on its own.
func IsAcknowledgment(content string) bool {
	return isGreeting(content) && !HasMathContent(content)
}

// Eligible is the completion gate: at least two user messages, and either
// demonstrated mathematical work or a third message. It blocks sessions
// from being completed after nothing but greeting exchanges.
func (s EngagementSignal) Eligible() bool {
	if s.UserMessageCount < 2 {
		return false
	}
	return s.HasMathematicalWork || s.UserMessageCount >= 3
}

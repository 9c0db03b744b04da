package tutor

import (
	"fmt"
	"strings"

	"mathmentor/internal/session"
)

const systemPrompt = "You are MathMentor, a patient math tutor. Use $...$ for " +
	"math notation, keep responses conversational and brief (2-4 sentences), " +
	"and always end with something for the student to respond to."

// phasePrompt builds the instruction for one tutor turn. The structure
// mirrors the backend's phase-specific prompting: each phase has its own
// task, with the running conversation and the latest input inlined.
func phasePrompt(topic string, phase session.Phase, history []session.Message, input string) string {
	var task string
	switch phase {
	case session.PhaseIntroduction:
		return fmt.Sprintf("Create a welcoming introduction for a learning session about %s. "+
			"Greet the student warmly, explain what you will learn together, and make them "+
			"comfortable to ask questions. Keep it friendly and brief, 2-3 sentences.", topic)
	case session.PhaseTeach:
		task = fmt.Sprintf("You are in the TEACHING phase about: %s.\n"+
			"Teach the concept clearly, step by step, with one worked example. "+
			"Check for understanding before moving on.", topic)
	case session.PhasePractice:
		task = fmt.Sprintf("You are in the PRACTICE phase. The student has learned about %s.\n"+
			"Pose one practice problem at a time, give hints rather than answers, "+
			"and confirm or gently correct their work.", topic)
	case session.PhaseEvaluate:
		task = fmt.Sprintf("You are in the EVALUATION phase. Assess the student's "+
			"understanding of %s.\nAsk a question that reveals whether they can apply "+
			"the concept on their own, and respond to their answer honestly.", topic)
	default:
		task = fmt.Sprintf("Continue the session about %s.", topic)
	}

	var b strings.Builder
	b.WriteString(task)
	b.WriteString("\n\nCONVERSATION SO FAR:\n")
	b.WriteString(transcript(history))
	b.WriteString("\n\nSTUDENT'S LATEST INPUT:\n")
	fmt.Fprintf(&b, "%q\n\nRespond to continue the session:", input)
	return b.String()
}

func assessPrompt(topic string, history []session.Message) string {
	return fmt.Sprintf("Assess the student's understanding of %s from this tutoring "+
		"conversation. Respond with only a number from 0 to 100 on the first line, "+
		"then one or two sentences of feedback.\n\nCONVERSATION:\n%s",
		topic, transcript(history))
}

func transcript(history []session.Message) string {
	var b strings.Builder
	for _, m := range history {
		role := "Student"
		if m.Role == session.RoleAssistant {
			role = "Tutor"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, m.Content)
	}
	return b.String()
}

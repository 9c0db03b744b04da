package session

// Phase is one stage of a tutoring session. Phases are strictly ordered and
// a session only ever moves forward, except on a full reset.
type Phase int

const (
	PhaseIntroduction Phase = iota
	PhaseTeach
	PhasePractice
	PhaseEvaluate
	PhaseComplete
)

var phaseNames = map[Phase]string{
	PhaseIntroduction: "introduction",
	PhaseTeach:        "teach",
	PhasePractice:     "practice",
	PhaseEvaluate:     "evaluate",
	PhaseComplete:     "complete",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

// Terminal reports whether no further transitions are possible.
func (p Phase) Terminal() bool { return p == PhaseComplete }

// ParsePhase maps a wire-format phase name to its Phase. The second result
// is false for unknown names.
func ParsePhase(s string) (Phase, bool) {
	for p, name := range phaseNames {
		if name == s {
			return p, true
		}
	}
	return PhaseIntroduction, false
}

package research

import (
	"slices"
	"strings"
)

// Mode is how the agent treats a request.
type Mode string

const (
	// ModeNormal answers directly without searching.
	ModeNormal Mode = "normal"
	// ModeResearch gathers background information for the writer.
	ModeResearch Mode = "research"
	// ModeVerification checks the manuscript or setting against facts.
	ModeVerification Mode = "verification"
)

// ParseMode maps s to a Mode. Anything unknown is ModeNormal.
func ParseMode(s string) Mode {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeResearch, ModeVerification:
		return m
	default:
		return ModeNormal
	}
}

// StepResult is the outcome of one research step.
type StepResult struct {
	Step    string   `json:"step"`
	Query   string   `json:"query"`
	Result  string   `json:"result"`
	Sources []string `json:"sources,omitempty"`
}

// State is the working memory of one run. Transitions take a State and return
// a new one; slices are never modified in place, so earlier values stay
// valid.
type State struct {
	UserSetting     string
	OriginalContent string
	UserInput       string

	Mode      Mode
	Reason    string
	Steps     []string
	StepIndex int
	Results   []StepResult
	Pending   *StepResult
	Err       string
}

// Answer is what a run returns to the caller.
type Answer struct {
	Output  string   `json:"output"`
	Sources []string `json:"sources"`
	Mode    Mode     `json:"mode"`
}

// accumulate appends the pending result, if any, and always moves past the
// current step.
func accumulate(s State) State {
	if s.Pending != nil {
		s.Results = append(slices.Clip(s.Results), *s.Pending)
	}
	s.Pending = nil
	s.StepIndex++
	return s
}

// shouldContinue reports whether another step runs before synthesis.
func shouldContinue(s State) bool {
	return s.Err == "" && s.StepIndex < len(s.Steps)
}

// reset clears everything a previous run left behind except the inputs.
func reset(s State) State {
	return State{
		UserSetting:     s.UserSetting,
		OriginalContent: s.OriginalContent,
		UserInput:       s.UserInput,
	}
}

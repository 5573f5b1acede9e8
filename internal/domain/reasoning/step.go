// Package reasoning holds the ReAct loop value objects.
package reasoning

import (
	"encoding/json"

	"github.com/oriane-labs/wayfind/internal/domain/evidence"
)

// StepKind enumerates the reasoning state machine states.
type StepKind int

const (
	// Thought is a reasoning step with no external action.
	Thought StepKind = iota
	// Action is a tool invocation decision.
	Action
	// Observation is a tool result (or tool error) fed back into context.
	Observation
	// FinalAnswer is the terminal step.
	FinalAnswer
)

// String returns the step kind name.
func (k StepKind) String() string {
	switch k {
	case Thought:
		return "thought"
	case Action:
		return "action"
	case Observation:
		return "observation"
	case FinalAnswer:
		return "final_answer"
	default:
		return "unknown"
	}
}

// Step is one entry in a run's ordered reasoning trace.
// The trace is owned by a single run and discarded when it completes.
type Step struct {
	Kind   StepKind
	Tool   string          // set for Action and Observation
	Input  json.RawMessage // set for Action
	Output string          // set for Observation and FinalAnswer
	Failed bool            // set for Observation when the tool errored
}

// Answer is the persisted outcome of a run: final text plus citations.
type Answer struct {
	Text      string
	Citations []evidence.Citation
	Caveat    string // non-empty when verification could not fully confirm the draft
	Verified  bool
	Truncated bool // true when the iteration cap forced the answer
}

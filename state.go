package bsurf

import "fmt"

// State is the progress of a single evaluation.
type State int

const (
	Idle State = iota
	UVMapped
	BlendComputed
	Summed
	Done
	Failed
)

var stateNames = [...]string{
	Idle:          "idle",
	UVMapped:      "uv_mapped",
	BlendComputed: "blend_computed",
	Summed:        "summed",
	Done:          "done",
	Failed:        "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Every state may also move to Failed, except for Done and Failed.
var transitions = map[State]State{
	Idle:          UVMapped,
	UVMapped:      BlendComputed,
	BlendComputed: Summed,
	Summed:        Done,
}

// CanTransition reports whether an evaluation may move from one state to
// another.
func CanTransition(from, to State) bool {
	if to == Failed {
		return from != Done && from != Failed
	}
	next, ok := transitions[from]
	return ok && next == to
}

// Step records one transition of an evaluation.
type Step struct {
	From State
	To   State
}

package orchestrator

import "fmt"

// State is the authoritative lifecycle position of one orchestrator.
type State string

const (
	StateIdle       State = "idle"
	StateResolving  State = "resolving"
	StateActive     State = "active"
	StateFinalizing State = "finalizing"
)

var validTransitions = map[State][]State{
	StateIdle:       {StateResolving},
	StateResolving:  {StateActive, StateIdle},
	StateActive:     {StateFinalizing},
	StateFinalizing: {StateActive, StateIdle},
}

// canTransition is the pure transition-validity function; side effects are
// issued only after it admits the move.
func canTransition(from, to State) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// transition moves the machine or panics: an inadmissible transition is a
// bug in the orchestrator, never a runtime condition.
func (o *Orchestrator) transition(to State) {
	if !canTransition(o.state, to) {
		panic(fmt.Sprintf("orchestrator: invalid transition %s -> %s", o.state, to))
	}
	o.state = to
}

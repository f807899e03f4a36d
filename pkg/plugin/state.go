package plugin

// State represents the lifecycle state of a plugin instance. States form a
// finite state machine with validated transitions defined by
// [ValidTransition].
//
// The zero value ("") is not a valid state; plugins are constructed in
// [StateUnconfigured].
type State string

const (
	// StateUnconfigured is the initial state of a newly constructed plugin
	// before [Plugin.Initialize] has been called. A plugin in this state
	// rejects all hook calls.
	StateUnconfigured State = "unconfigured"

	// StateInitializing indicates the plugin is building its clients and
	// performing the first key-set fetch. This is a transient state set at
	// the beginning of [Plugin.Initialize].
	StateInitializing State = "initializing"

	// StateReady indicates initialization completed, including the first
	// key-set fetch, and the plugin accepts hook calls.
	StateReady State = "ready"

	// StateFailed indicates initialization did not complete. A failed
	// plugin may retry by calling [Plugin.Initialize] again, which
	// transitions it back to [StateInitializing].
	StateFailed State = "failed"

	// StateClosed indicates the plugin has released its connections. This
	// is a terminal state; a closed plugin cannot be reinitialized.
	StateClosed State = "closed"
)

// String returns the string representation of the state.
func (s State) String() string {
	return string(s)
}

// Valid reports whether the state is one of the recognized lifecycle
// states. The zero value ("") is not valid.
func (s State) Valid() bool {
	switch s {
	case StateUnconfigured, StateInitializing, StateReady, StateFailed,
		StateClosed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the state is terminal. The only terminal
// state is [StateClosed]; a closed plugin must be replaced, not restarted.
func (s State) IsTerminal() bool {
	return s == StateClosed
}

// validTransitions defines the allowed state transitions for the plugin
// lifecycle state machine. Each key is a source state, and the value is
// the set of states it may transition to. Transitions not present in this
// map are rejected by [ValidTransition].
//
// Transition matrix:
//
//	Unconfigured → Initializing, Closed
//	Initializing → Ready, Failed, Closed
//	Ready        → Closed
//	Failed       → Initializing, Closed    (retry)
//	Closed       → (none)
var validTransitions = map[State][]State{
	StateUnconfigured: {StateInitializing, StateClosed},
	StateInitializing: {StateReady, StateFailed, StateClosed},
	StateReady:        {StateClosed},
	StateFailed:       {StateInitializing, StateClosed},
	StateClosed:       {},
}

// ValidTransition reports whether transitioning from state from to state
// to is allowed by the lifecycle state machine. Same-state transitions
// (from == to) are always rejected.
func ValidTransition(from, to State) bool {
	if from == to {
		return false
	}
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}

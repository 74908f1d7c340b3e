package engine

import "fmt"

// State is one provider's position in the quote lifecycle:
//
//	inactive -> loading-base -> {failed | loading-enhanced} -> {active | enhancement-failed}
//
// failed is terminal. enhancement-failed re-enters loading-enhanced only
// through an explicit user retry.
type State string

const (
	StateInactive          State = "inactive"
	StateLoadingBase       State = "loading-base"
	StateFailed            State = "failed"
	StateLoadingEnhanced   State = "loading-enhanced"
	StateActive            State = "active"
	StateEnhancementFailed State = "enhancement-failed"
)

// stateEvent is what happened to a provider. All transitions go through
// transition below; call sites never assign State directly, so an illegal
// move is an error at the one choke point instead of a silent corruption.
type stateEvent string

const (
	evSchedule       stateEvent = "schedule"
	evBaseFailed     stateEvent = "base-failed"
	evEnhanceStart   stateEvent = "enhance-start"
	evEnhanceSuccess stateEvent = "enhance-success"
	evEnhanceFailure stateEvent = "enhance-failure"
)

// transition returns the next state for an event, or an error when the event
// is illegal in the current state.
func transition(from State, ev stateEvent) (State, error) {
	if from == "" {
		from = StateInactive
	}
	switch ev {
	case evSchedule:
		if from == StateInactive {
			return StateLoadingBase, nil
		}
	case evBaseFailed:
		if from == StateLoadingBase {
			return StateFailed, nil
		}
	case evEnhanceStart:
		// loading-base: base quote just completed, slot acquired.
		// enhancement-failed: user-triggered retry.
		if from == StateLoadingBase || from == StateEnhancementFailed {
			return StateLoadingEnhanced, nil
		}
	case evEnhanceSuccess:
		if from == StateLoadingEnhanced {
			return StateActive, nil
		}
	case evEnhanceFailure:
		if from == StateLoadingEnhanced {
			return StateEnhancementFailed, nil
		}
	}
	return from, fmt.Errorf("illegal provider transition %s on %s", ev, from)
}

// HasBaseQuote reports whether a state implies a fetched base quote. These
// are the only states a provider switch may target.
func (s State) HasBaseQuote() bool {
	return s == StateActive || s == StateLoadingEnhanced || s == StateEnhancementFailed
}

// Terminal reports whether no further automatic transitions will happen.
func (s State) Terminal() bool {
	return s == StateFailed || s == StateActive || s == StateEnhancementFailed
}

// ProviderState is the live per-provider record the status surface exposes.
// It is in-memory only; a reloaded session rebuilds it from the stored
// QuoteData.
type ProviderState struct {
	Status State `json:"status"`
	// Error holds the base-fetch failure message when Status is failed.
	Error string `json:"error,omitempty"`
	// EnhancementError holds the exhausted-retries failure when Status is
	// enhancement-failed; the base quote stays usable.
	EnhancementError string `json:"enhancementError,omitempty"`
}

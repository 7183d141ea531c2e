package domain

// transitions is the single source of truth for legal state changes. The graph
// is cyclic on purpose: the kiosk loops back to IDLE and is reused. Callers
// must reject an illegal edge as a conflict before mutating anything.
var transitions = map[SessionState][]SessionState{
	StateIdle:        {StateSelecting},
	StateSelecting:   {StateLivePreview, StateIdle},
	StateLivePreview: {StateCountdown, StateIdle},
	StateCountdown:   {StateCapturing, StateIdle},
	StateCapturing:   {StateProcessing, StateIdle},
	StateProcessing:  {StatePreview, StateIdle},
	StatePreview:     {StateCountdown, StateDelivering, StateIdle},
	StateDelivering:  {StateDone, StateIdle},
	StateDone:        {StateIdle},
	StateError:       {StateIdle},
}

// CanTransition reports whether from -> to is a legal edge. Total over all
// state pairs, including unknown states, and never panics.
func CanTransition(from, to SessionState) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

package checkout

// State is a step of the settlement state machine.
type State string

// Checkout states.
const (
	StateIdle                 State = "idle"
	StateValidatingForm       State = "validating_form"
	StateCheckingNetwork      State = "checking_network"
	StateBorrowing            State = "borrowing"
	StateApproving            State = "approving"
	StateCreatingOnChainOrder State = "creating_onchain_order"
	StateWaitingForEvent      State = "waiting_for_event"
	StatePersistingOrder      State = "persisting_order"
	StateRefetchingCart       State = "refetching_cart"
	StateNavigating           State = "navigating"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
)

// transitions lists the forward edges. Failed is reachable from every
// non-terminal state and a user rejection returns any state to idle.
//
//nolint:gochecknoglobals // state table
var transitions = map[State][]State{
	StateIdle:                 {StateValidatingForm},
	StateValidatingForm:       {StateCheckingNetwork},
	StateCheckingNetwork:      {StateBorrowing, StateApproving},
	StateBorrowing:            {StateApproving},
	StateApproving:            {StateCreatingOnChainOrder},
	StateCreatingOnChainOrder: {StateWaitingForEvent},
	StateWaitingForEvent:      {StatePersistingOrder},
	StatePersistingOrder:      {StateRefetchingCart},
	StateRefetchingCart:       {StateNavigating},
	StateNavigating:           {StateCompleted},
}

// IsTerminal reports whether the attempt has finished.
func (s State) IsTerminal() bool {
	return s == StateCompleted || s == StateFailed
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s State) CanTransitionTo(next State) bool {
	if s.IsTerminal() {
		return false
	}
	if next == StateFailed || next == StateIdle {
		return s != StateIdle
	}
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

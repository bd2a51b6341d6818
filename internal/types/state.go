// Package types defines the transaction records shared by the executor and its observers.
package types

// State is the lifecycle state of a transaction record.
type State string

// Transaction states.
const (
	StateInit        State = "Init"
	StateProcessing  State = "Processing"
	StatePrioritized State = "Prioritized"
	StateSubmit      State = "Submit"
	StateConfirm     State = "Confirm"
	StateFail        State = "Fail"
	StateCancel      State = "Cancel"
)

// IsTerminal reports whether no further transitions are expected from s.
func (s State) IsTerminal() bool {
	switch s {
	case StateConfirm, StateFail, StateCancel:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (s State) String() string {
	return string(s)
}

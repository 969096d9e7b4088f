package strategy

import "fmt"

// BestEffortInteractionError is an optional interaction that failed.
// It is logged and recovered; it never terminates a session.
type BestEffortInteractionError struct {
	Action string
	Err    error
}

func (e *BestEffortInteractionError) Error() string {
	return fmt.Sprintf("best-effort %s failed: %v", e.Action, e.Err)
}

func (e *BestEffortInteractionError) Unwrap() error { return e.Err }

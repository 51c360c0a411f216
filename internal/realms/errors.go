package realms

import "fmt"

// IamError is the infrastructure error taxonomy, distinct from domain
// Rejections: these are raised as errors, not returned as values, because
// they represent faults in the effect rather than outcomes of the domain
// logic.
type IamError interface {
	error
	isIamError()
}

// AccessDenied is returned when the caller's ACL check fails.
type AccessDenied struct {
	Resource   string
	Permission string
}

func (e AccessDenied) Error() string {
	return fmt.Sprintf("access denied: %s on %s", e.Permission, e.Resource)
}
func (AccessDenied) isIamError() {}

// OperationTimedOut covers both the aggregate's command-evaluation timeout
// and the index's ask-timeout.
type OperationTimedOut struct {
	Reason string
}

func (e OperationTimedOut) Error() string { return "operation timed out: " + e.Reason }
func (OperationTimedOut) isIamError()     {}

// InternalError wraps an unexpected infrastructure fault (e.g. the read
// index's replicator).
type InternalError struct {
	Reason string
}

func (e InternalError) Error() string { return "internal error: " + e.Reason }
func (InternalError) isIamError()     {}

// UnexpectedInitialState is defensive and must never fire in practice; it
// exists so an Evaluate/FoldLeft invariant violation fails loudly instead
// of silently returning a zero value.
type UnexpectedInitialState struct {
	ID string
}

func (e UnexpectedInitialState) Error() string { return "unexpected initial state for " + e.ID }
func (UnexpectedInitialState) isIamError()     {}

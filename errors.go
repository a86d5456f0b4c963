package stratadb

import (
	"errors"
	"fmt"
)

// ErrorKind enumerates the error taxonomy shared by the procedure engine, the
// migration manager, and the metastore client.
type ErrorKind int

const (
	// Unknown is an unclassified error condition.
	Unknown ErrorKind = iota
	// Transient covers RPC-unavailable, timeout, and leader-unknown conditions.
	// Retried with backoff up to a bounded attempt count, then escalated.
	Transient
	// InvalidArguments is a submit-validation failure; the procedure never starts.
	InvalidArguments
	// RegionRouteNotFound is raised by submit validation or by a mid-procedure race.
	RegionRouteNotFound
	// RouteChanged is raised when the CommitRouteChange CAS's expected value no
	// longer matches. Permanent for the procedure instance.
	RouteChanged
	// TargetRejected covers disk-full and schema-mismatch failures from PrepareTarget.
	TargetRejected
	// Catastrophic marks a procedure stuck after CommitRouteChange succeeded; it
	// must never abort and retries indefinitely.
	Catastrophic
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "Transient"
	case InvalidArguments:
		return "InvalidArguments"
	case RegionRouteNotFound:
		return "RegionRouteNotFound"
	case RouteChanged:
		return "RouteChanged"
	case TargetRejected:
		return "TargetRejected"
	case Catastrophic:
		return "Catastrophic"
	default:
		return "Unknown"
	}
}

// Error is the shared error envelope used across the control plane. It carries
// a classification the procedure engine uses to decide retry vs. compensate vs.
// escalate, the wrapped underlying error, and optional caller context.
type Error struct {
	Kind     ErrorKind
	Err      error
	UserData any
}

func (e *Error) Error() string {
	if e.UserData != nil {
		return fmt.Errorf("%s: user data: %v: %w", e.Kind, e.UserData, e.Err).Error()
	}
	return fmt.Errorf("%s: %w", e.Kind, e.Err).Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError wraps err with the given classification.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewErrorWithData wraps err with the given classification and caller context,
// surfaced verbatim to callers such as submit() validation failures.
func NewErrorWithData(kind ErrorKind, err error, userData any) *Error {
	return &Error{Kind: kind, Err: err, UserData: userData}
}

// KindOf returns the ErrorKind of err if it is (or wraps) a *Error, else Unknown.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

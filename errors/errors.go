// Package errors defines the coordinator's error taxonomy (spec §7).
//
// CoordinatorError preserves message and causal context the way the
// teacher's toolerrors.ToolError does, so errors.Is/errors.As work across
// retries and serialization boundaries, while ErrorKind classifies failures
// into the small set of stable categories callers need for UX and retry
// decisions (spec §7, modeled on model.ProviderErrorKind).
package errors

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a coordinator failure into one of the categories
// enumerated in spec §7.
type ErrorKind string

const (
	// KindConfig indicates malformed registration or workflow definitions, or
	// an illegal mutation attempted after startup. Surfaced at submission;
	// never appears in a StepResult.
	KindConfig ErrorKind = "config_error"
	// KindUnknownAgent indicates a workflow step names a registry-unknown
	// agent. Raised at submission.
	KindUnknownAgent ErrorKind = "unknown_agent"
	// KindUnknownAction indicates a workflow step names an unknown action on
	// an otherwise known agent. Raised at submission.
	KindUnknownAction ErrorKind = "unknown_action"
	// KindDataflow indicates an input binding could not be resolved at
	// step-start time (source step missing, not ok, or missing field).
	KindDataflow ErrorKind = "dataflow_error"
	// KindAgentFault indicates the agent raised an exception/panic or
	// returned malformed output.
	KindAgentFault ErrorKind = "agent_fault"
	// KindTimeout indicates a per-step or workflow deadline elapsed.
	KindTimeout ErrorKind = "timeout"
	// KindCancelled indicates the caller's context was cancelled.
	KindCancelled ErrorKind = "cancelled"
	// KindInternal indicates a coordinator invariant was violated. Always
	// logged; fatal for the offending workflow but must not affect others.
	KindInternal ErrorKind = "internal"
	// KindSkipped annotates a step that was never scheduled because an
	// earlier step aborted the run. It is bookkeeping, not a fault: unlike
	// KindInternal it indicates expected executor behavior and is not
	// logged at error severity.
	KindSkipped ErrorKind = "skipped"
)

// CoordinatorError is the structured error type used throughout the
// coordinator. It carries an ErrorKind, a human-readable message, and an
// optional cause chain, mirroring toolerrors.ToolError's shape.
type CoordinatorError struct {
	Kind    ErrorKind
	Message string
	Cause   *CoordinatorError
}

// New constructs a CoordinatorError of the given kind with no wrapped cause.
func New(kind ErrorKind, message string) *CoordinatorError {
	if message == "" {
		message = string(kind)
	}
	return &CoordinatorError{Kind: kind, Message: message}
}

// Newf formats according to a format specifier and returns a CoordinatorError
// of the given kind.
func Newf(kind ErrorKind, format string, args ...any) *CoordinatorError {
	return New(kind, fmt.Sprintf(format, args...))
}

// Wrap constructs a CoordinatorError of the given kind that wraps cause. The
// cause is converted into a CoordinatorError chain (via FromError) so
// structured metadata survives across retries while still supporting
// errors.Is/As through Unwrap.
func Wrap(kind ErrorKind, message string, cause error) *CoordinatorError {
	if message == "" && cause != nil {
		message = cause.Error()
	}
	return &CoordinatorError{
		Kind:    kind,
		Message: message,
		Cause:   FromError(cause),
	}
}

// FromError converts an arbitrary error into a CoordinatorError chain. If err
// already contains a CoordinatorError, that error is returned unmodified
// (errors.As unwraps standard wrapping). Otherwise a KindInternal error is
// synthesized, preserving the original message and any further Unwrap chain.
func FromError(err error) *CoordinatorError {
	if err == nil {
		return nil
	}
	var ce *CoordinatorError
	if errors.As(err, &ce) {
		return ce
	}
	return &CoordinatorError{
		Kind:    KindInternal,
		Message: err.Error(),
		Cause:   FromError(errors.Unwrap(err)),
	}
}

// Error implements the error interface.
func (e *CoordinatorError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the wrapped cause to support errors.Is/As across retry
// attempts and cause chains.
func (e *CoordinatorError) Unwrap() error {
	if e == nil || e.Cause == nil {
		return nil
	}
	return e.Cause
}

// Causes flattens the cause chain into a slice of messages, oldest cause
// last, matching the WorkflowResult.steps[].error.causes shape from spec §6.
func (e *CoordinatorError) Causes() []string {
	var out []string
	for c := e.Cause; c != nil; c = c.Cause {
		out = append(out, c.Message)
	}
	return out
}

// Is reports whether target is a CoordinatorError with the same Kind,
// enabling errors.Is(err, errors.New(KindTimeout, "")) style comparisons by
// kind alone.
func (e *CoordinatorError) Is(target error) bool {
	t, ok := target.(*CoordinatorError)
	if !ok || t == nil {
		return false
	}
	if t.Message == "" || t.Message == string(t.Kind) {
		return e.Kind == t.Kind
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

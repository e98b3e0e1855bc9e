// Package workflow implements the Workflow Executor (spec §4.4): composing
// steps into a coherent run with defined ordering, data flow, and failure
// semantics.
package workflow

import (
	"time"

	coorderrors "goa.design/tandem/errors"
)

// FailurePolicy selects how the executor reacts to a non-ok terminal step.
type FailurePolicy string

const (
	// OnFailureAbort stops scheduling further steps; later steps are
	// emitted as skipped. Default policy.
	OnFailureAbort FailurePolicy = "abort"
	// OnFailureContinue runs every step regardless of earlier failures; the
	// workflow is failed iff any step is non-ok.
	OnFailureContinue FailurePolicy = "continue"
	// OnFailureRetry re-invokes a failed step until it has made
	// RetryPolicy.MaxAttempts attempts in total, before falling back to abort
	// semantics for that step.
	OnFailureRetry FailurePolicy = "retry"
)

// RetryPolicy configures OnFailureRetry. Retries are attempted only for
// steps whose terminal ErrorKind is AgentFault or Timeout, and only while
// the workflow deadline still permits another attempt (spec §4.4).
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts including the first
	// (so MaxAttempts=3 means up to 2 retries). Must be >= 1.
	MaxAttempts int
	// Backoff is the delay before the first retry.
	Backoff time.Duration
	// Exponential doubles Backoff after each retry when true; otherwise
	// every retry waits the same Backoff duration.
	Exponential bool
}

// Binding resolves a step's parameter from an earlier step's output field
// (spec §4.4's data-flow contract).
type Binding struct {
	Param     string
	FromStep  int
	FromField string
}

// Step is one entry in a WorkflowDefinition.
type Step struct {
	Agent      string
	Action     string
	Params     map[string]any
	Bindings   []Binding
	TimeoutMS  int
	Group      string
	RetryHint  *RetryPolicy // per-step override; nil uses the workflow-level policy
}

// WorkflowDefinition is the caller-constructed plan for one run (spec §3).
type WorkflowDefinition struct {
	Steps             []Step
	WorkflowTimeoutMS int
	OnStepFailure     FailurePolicy
	Retry             RetryPolicy // only consulted when OnStepFailure == OnFailureRetry
}

// Validate checks the structural invariants spec §4.4 requires be enforced
// at submission: non-empty step list, non-empty agent/action names, strictly
// earlier binding sources, and a sane retry policy when configured. All
// failures are ConfigError.
func (d WorkflowDefinition) Validate() error {
	if len(d.Steps) == 0 {
		return coorderrors.New(coorderrors.KindConfig, "workflow must declare at least one step")
	}
	for i, s := range d.Steps {
		if s.Agent == "" {
			return coorderrors.Newf(coorderrors.KindConfig, "step %d: agent must not be empty", i)
		}
		if s.Action == "" {
			return coorderrors.Newf(coorderrors.KindConfig, "step %d: action must not be empty", i)
		}
		if s.TimeoutMS < 0 {
			return coorderrors.Newf(coorderrors.KindConfig, "step %d: timeout_ms must be > 0 when set", i)
		}
		for _, b := range s.Bindings {
			if b.FromStep < 0 || b.FromStep >= i {
				return coorderrors.Newf(coorderrors.KindConfig, "step %d: binding from_step %d must refer to a strictly earlier step", i, b.FromStep)
			}
			if b.Param == "" || b.FromField == "" {
				return coorderrors.Newf(coorderrors.KindConfig, "step %d: binding param/from_field must not be empty", i)
			}
		}
	}
	switch d.OnStepFailure {
	case "", OnFailureAbort, OnFailureContinue:
	case OnFailureRetry:
		if d.Retry.MaxAttempts < 1 {
			return coorderrors.New(coorderrors.KindConfig, "retry policy requires max_attempts >= 1")
		}
		if d.Retry.Backoff < 0 {
			return coorderrors.New(coorderrors.KindConfig, "retry policy requires backoff_ms >= 0")
		}
	default:
		return coorderrors.Newf(coorderrors.KindConfig, "unrecognized on_step_failure value %q", d.OnStepFailure)
	}
	if d.WorkflowTimeoutMS < 0 {
		return coorderrors.New(coorderrors.KindConfig, "workflow_timeout_ms must be > 0 when set")
	}
	return nil
}

// effectivePolicy defaults an unset OnStepFailure to abort.
func (d WorkflowDefinition) effectivePolicy() FailurePolicy {
	if d.OnStepFailure == "" {
		return OnFailureAbort
	}
	return d.OnStepFailure
}

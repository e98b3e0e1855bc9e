package clock

import (
	"context"
	"sync/atomic"
	"time"
)

// correlationKey is the context key under which Correlation values are
// stored. Unexported so callers cannot collide with it.
type correlationKey struct{}

// Correlation carries the identifiers that accompany a context as it is
// derived through the coordinator, workflow executor, and agent runtime.
// It mirrors the teacher's run.Context correlation fields (RunID, labels)
// without adopting its durable-workflow specific attributes, since the
// coordinator is explicitly single-process and ephemeral.
type Correlation struct {
	// WorkflowID identifies the workflow run this context was derived for.
	WorkflowID string
	// CallerID optionally identifies the caller that submitted the workflow
	// (GUI session, CLI invocation, HTTP request) for observability.
	CallerID string
	// StepIndex identifies the step this context was narrowed for, or -1 if
	// the context is not yet scoped to a single step.
	StepIndex int
}

// WithCorrelation attaches correlation metadata to ctx. Child contexts
// derived from the result inherit the correlation via context.Value lookup.
func WithCorrelation(ctx context.Context, c Correlation) context.Context {
	return context.WithValue(ctx, correlationKey{}, c)
}

// CorrelationFrom extracts the Correlation attached to ctx, if any.
func CorrelationFrom(ctx context.Context) (Correlation, bool) {
	c, ok := ctx.Value(correlationKey{}).(Correlation)
	return c, ok
}

// WithStep narrows the correlation attached to ctx to a specific step index,
// preserving WorkflowID and CallerID. If ctx carries no correlation yet, a
// fresh one is attached with only StepIndex populated.
func WithStep(ctx context.Context, stepIndex int) context.Context {
	c, _ := CorrelationFrom(ctx)
	c.StepIndex = stepIndex
	return WithCorrelation(ctx, c)
}

// DeriveDeadline narrows parent's deadline to the earlier of the parent's
// existing deadline (if any) and clk.Now()+local. It is the single place
// that implements spec §4.1's "child context inherits the parent's
// cancellation and narrows the deadline to the earlier of parent and local
// deadline" rule. If local <= 0, the returned context is already expired
// (matching the Agent Runtime's short-circuit-to-timeout rule in §4.3).
//
// Unlike context.WithDeadline, firing is driven by clk rather than real
// wall-clock time: cancellation is always scheduled via clk.AfterFunc against
// the resolved deadline (whichever of parent/local binds), so a Fake clock in
// tests only cancels the returned context once it is Advance'd or Set past
// that deadline.
func DeriveDeadline(parent context.Context, clk Clock, local time.Duration) (context.Context, context.CancelFunc) {
	now := clk.Now()
	localDeadline := now.Add(local)
	deadline := localDeadline
	if parentDeadline, ok := parent.Deadline(); ok && parentDeadline.Before(localDeadline) {
		deadline = parentDeadline
	}

	cancelCtx, cancel := context.WithCancel(parent)
	dc := &deadlineContext{Context: cancelCtx, parent: parent, deadline: deadline}

	// A timer is scheduled for deadline regardless of whether it came from
	// local or from the parent: this context's own Err() must report
	// DeadlineExceeded whenever IT observes deadline elapse, rather than
	// relying on propagation from the parent's cancellation (which would
	// otherwise surface as a bare context.Canceled at this level).
	remaining := deadline.Sub(now)
	if remaining <= 0 {
		dc.exceeded.Store(true)
		cancel()
		return dc, cancel
	}

	timer := clk.AfterFunc(remaining, func() {
		dc.exceeded.Store(true)
		cancel()
	})
	return dc, func() {
		timer.Stop()
		cancel()
	}
}

// deadlineContext overrides Deadline() and Err() on top of a
// context.WithCancel child so callers still observe the narrowed deadline,
// and ctx.Err() still reports context.DeadlineExceeded (not
// context.Canceled) when that deadline is what ended ctx, even though
// cancellation is driven by a Clock-scheduled callback rather than
// context.WithDeadline's own timer.
type deadlineContext struct {
	context.Context
	parent   context.Context
	deadline time.Time
	exceeded atomic.Bool
}

func (d *deadlineContext) Deadline() (time.Time, bool) { return d.deadline, true }

func (d *deadlineContext) Err() error {
	if d.exceeded.Load() {
		return context.DeadlineExceeded
	}
	err := d.Context.Err()
	if err != nil && d.parent.Err() == context.DeadlineExceeded {
		return context.DeadlineExceeded
	}
	return err
}

// Remaining returns the time left until ctx's deadline, or ok=false if ctx
// carries no deadline. A negative or zero duration means the deadline has
// already elapsed.
func Remaining(ctx context.Context, clk Clock) (time.Duration, bool) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return 0, false
	}
	return deadline.Sub(clk.Now()), true
}

// Package runtime implements the Agent Runtime (spec §4.3): invoking a
// single (agent, action, parameters) tuple with a bounded deadline, total
// panic/error containment, and exactly-once step_started/step_finished
// event emission. It is grounded on the teacher's
// runtime/agent/engine/inmem package for the goroutine+done-channel
// async-invocation-with-cancellation shape, adapted from a Temporal-style
// activity Future into a single synchronous StepResult return.
package runtime

import (
	"context"
	"fmt"
	"time"

	"goa.design/tandem/agent"
	"goa.design/tandem/clock"
	coorderrors "goa.design/tandem/errors"
	"goa.design/tandem/status"
	"goa.design/tandem/telemetry"
)

// Status is a StepResult's terminal outcome.
type Status string

const (
	StatusOK        Status = "ok"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
	StatusCancelled Status = "cancelled"
	StatusSkipped   Status = "skipped"
)

// StepResult is the immutable outcome of exactly one scheduled step (spec
// §3). No StepResult carries both a non-empty Output and an Error.
type StepResult struct {
	StepIndex  int
	Agent      string
	Action     string
	Status     Status
	Output     agent.Result
	Err        *coorderrors.CoordinatorError
	StartedAt  time.Time
	FinishedAt time.Time
	Attempts   int
	// RetryCauses records the errors from attempts prior to the one
	// reported by Status/Err, oldest first. Populated whenever Attempts >
	// 1, regardless of whether the final attempt ultimately succeeded or
	// failed (spec §4.4, §8 scenario 6).
	RetryCauses []*coorderrors.CoordinatorError
}

// Duration returns FinishedAt - StartedAt.
func (r StepResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Runtime executes single invocations on behalf of the workflow executor.
type Runtime struct {
	clk         clock.Clock
	bus         *status.Bus
	logger      telemetry.Logger
	metrics     telemetry.Metrics
	tracer      telemetry.Tracer
	gracePeriod time.Duration
}

// Option configures a Runtime at construction time.
type Option func(*Runtime)

// WithClock sets the Clock used for all duration and deadline measurements.
func WithClock(c clock.Clock) Option { return func(r *Runtime) { r.clk = c } }

// WithBus sets the status bus events are published to.
func WithBus(b *status.Bus) Option { return func(r *Runtime) { r.bus = b } }

// WithLogger sets the Runtime's logger.
func WithLogger(l telemetry.Logger) Option { return func(r *Runtime) { r.logger = l } }

// WithMetrics sets the Runtime's metrics recorder.
func WithMetrics(m telemetry.Metrics) Option { return func(r *Runtime) { r.metrics = m } }

// WithTracer sets the Runtime's tracer.
func WithTracer(t telemetry.Tracer) Option { return func(r *Runtime) { r.tracer = t } }

// WithGracePeriod overrides the default 250ms grace period a non-cooperative
// agent is given to acknowledge cancellation before being detached (spec
// §5). Values are clamped to [0, 5s].
func WithGracePeriod(d time.Duration) Option {
	return func(r *Runtime) {
		if d < 0 {
			d = 0
		}
		if d > 5*time.Second {
			d = 5 * time.Second
		}
		r.gracePeriod = d
	}
}

// New constructs a Runtime with the given options, defaulting to a no-op bus
// and a 250ms grace period.
func New(opts ...Option) *Runtime {
	r := &Runtime{gracePeriod: 250 * time.Millisecond}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.clk == nil {
		r.clk = clock.New()
	}
	if r.bus == nil {
		r.bus = status.New(16, telemetry.NewNoopMetrics())
	}
	if r.logger == nil {
		r.logger = telemetry.NewNoopLogger()
	}
	if r.metrics == nil {
		r.metrics = telemetry.NewNoopMetrics()
	}
	if r.tracer == nil {
		r.tracer = telemetry.NewNoopTracer()
	}
	return r
}

// invocationResult is what the agent goroutine reports back.
type invocationResult struct {
	output agent.Result
	err    error
}

// Invoke runs exactly one (agentName, action, params) tuple under ctx's
// deadline, publishing step_started before the agent body runs and
// step_finished after the terminal status is decided (spec §4.3's side
// effects contract). workflowID is used only for event correlation.
func (r *Runtime) Invoke(ctx context.Context, workflowID string, stepIndex int, a agent.Agent, act agent.Action, params agent.Params, now time.Time) StepResult {
	ctx, span := r.tracer.Start(ctx, "runtime.Invoke")
	defer span.End()

	r.bus.Publish(status.NewStepStarted(workflowID, now.UnixMilli(), stepIndex, a.Name, act.Name))

	res := StepResult{
		StepIndex: stepIndex,
		Agent:     a.Name,
		Action:    act.Name,
		StartedAt: now,
		Attempts:  1,
	}

	// Per-call deadline already elapsed: short-circuit without invoking the
	// agent (spec §4.3).
	if deadline, ok := ctx.Deadline(); ok && !deadline.After(now) {
		res.Status = StatusTimeout
		res.Err = coorderrors.New(coorderrors.KindTimeout, "step deadline already elapsed before invocation")
		res.FinishedAt = now
		r.publishFinished(workflowID, res)
		return res
	}

	resultCh := make(chan invocationResult, 1)
	publisher := &busStatusPublisher{bus: r.bus, workflowID: workflowID, stepIndex: stepIndex}

	go func() {
		defer func() {
			if p := recover(); p != nil {
				resultCh <- invocationResult{err: fmt.Errorf("agent panic: %v", p)}
			}
		}()
		out, err := act.Invoke(ctx, params, publisher)
		resultCh <- invocationResult{output: out, err: err}
	}()

	select {
	case ir := <-resultCh:
		res.FinishedAt = r.clk.Now()
		if ir.err != nil {
			res.Status = StatusFailed
			res.Err = classifyAgentError(ir.err)
		} else {
			res.Status = StatusOK
			res.Output = ir.output
		}
	case <-ctx.Done():
		res.FinishedAt = r.clk.Now()
		res.Status, res.Err = r.onContextDone(ctx)
		r.awaitGraceOrDetach(resultCh, a.Name, act.Name)
	}

	r.publishFinished(workflowID, res)
	return res
}

// onContextDone classifies why ctx.Done() fired: a deadline elapsing versus
// an explicit caller cancellation.
func (r *Runtime) onContextDone(ctx context.Context) (Status, *coorderrors.CoordinatorError) {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return StatusTimeout, coorderrors.New(coorderrors.KindTimeout, "step deadline elapsed")
	default:
		return StatusCancelled, coorderrors.New(coorderrors.KindCancelled, "step cancelled")
	}
}

// awaitGraceOrDetach waits up to the configured grace period for the
// abandoned agent goroutine to report back (so its result can be logged for
// diagnostics even though it is discarded), then detaches: the goroutine is
// left to finish on its own and resultCh is simply never read again. No
// output from a detached agent can reach res because res was already
// finalized by the caller before this function runs.
func (r *Runtime) awaitGraceOrDetach(resultCh chan invocationResult, agentName, actionName string) {
	timer := time.NewTimer(r.gracePeriod)
	defer timer.Stop()
	select {
	case ir := <-resultCh:
		if ir.err != nil {
			r.logger.Debug(context.Background(), "abandoned agent reported after cancellation", "agent", agentName, "action", actionName, "error", ir.err.Error())
		} else {
			r.logger.Debug(context.Background(), "abandoned agent completed after cancellation", "agent", agentName, "action", actionName)
		}
	case <-timer.C:
		r.logger.Debug(context.Background(), "agent did not acknowledge cancellation within grace period, detaching", "agent", agentName, "action", actionName)
	}
}

func (r *Runtime) publishFinished(workflowID string, res StepResult) {
	var errSummary *status.ErrorSummary
	if res.Err != nil {
		errSummary = &status.ErrorSummary{Kind: string(res.Err.Kind), Message: res.Err.Message}
	}
	r.bus.Publish(status.NewStepFinished(workflowID, res.FinishedAt.UnixMilli(), res.StepIndex, res.Agent, res.Action, string(res.Status), errSummary))
}

// classifyAgentError converts an arbitrary error returned by an action body
// into a CoordinatorError. Errors that already carry a CoordinatorError kind
// are preserved as-is; anything else becomes AgentFault (spec §4.3's
// panic/exception isolation rule — a plain error return is treated the same
// as a recovered panic).
func classifyAgentError(err error) *coorderrors.CoordinatorError {
	if ce := coorderrors.FromError(err); ce != nil && ce.Kind != coorderrors.KindInternal {
		return ce
	}
	return coorderrors.Wrap(coorderrors.KindAgentFault, err.Error(), err)
}

// busStatusPublisher adapts the Bus into the narrow agent.StatusPublisher
// capability handed to an agent body, so an agent can only publish progress
// notes, never reach the executor or other agents (spec §9).
type busStatusPublisher struct {
	bus        *status.Bus
	workflowID string
	stepIndex  int
}

// Publish is currently a diagnostics no-op: free-form progress notes are not
// one of the four StatusEvent variants spec §3 defines, so there is no event
// shape to carry note without inventing a fifth. An agent calling Publish
// gets the guaranteed-non-blocking contract spec §9 requires either way.
func (p *busStatusPublisher) Publish(note string) {}

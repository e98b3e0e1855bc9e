package workflow

import (
	"context"
	"sync"
	"time"

	"goa.design/tandem/agent"
	"goa.design/tandem/clock"
	coorderrors "goa.design/tandem/errors"
	"goa.design/tandem/registry"
	rt "goa.design/tandem/runtime"
	"goa.design/tandem/status"
	"goa.design/tandem/telemetry"
)

// WorkflowStatus is a WorkflowResult's terminal outcome.
type WorkflowStatus string

const (
	WorkflowOK        WorkflowStatus = "ok"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowTimeout   WorkflowStatus = "timeout"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// WorkflowResult is the aggregate outcome of one run (spec §3).
type WorkflowResult struct {
	WorkflowID string
	Status     WorkflowStatus
	Steps      []rt.StepResult
	StartedAt  time.Time
	FinishedAt time.Time
}

// Duration returns FinishedAt - StartedAt.
func (r WorkflowResult) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

// Executor drives one WorkflowDefinition's steps in order, threading
// intermediate outputs forward and applying the configured failure policy
// (spec §4.4).
type Executor struct {
	registry           *registry.Registry
	runtime            *rt.Runtime
	clk                clock.Clock
	bus                *status.Bus
	logger             telemetry.Logger
	defaultStepTimeout time.Duration
}

// Option configures an Executor at construction time.
type Option func(*Executor)

func WithClock(c clock.Clock) Option { return func(e *Executor) { e.clk = c } }
func WithBus(b *status.Bus) Option   { return func(e *Executor) { e.bus = b } }
func WithLogger(l telemetry.Logger) Option {
	return func(e *Executor) { e.logger = l }
}
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(e *Executor) { e.defaultStepTimeout = d }
}

// New constructs an Executor bound to reg for agent/action lookups and rtm
// for per-invocation execution.
func New(reg *registry.Registry, rtm *rt.Runtime, opts ...Option) *Executor {
	e := &Executor{registry: reg, runtime: rtm, defaultStepTimeout: 30 * time.Second}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	if e.clk == nil {
		e.clk = clock.New()
	}
	if e.bus == nil {
		e.bus = status.New(16, telemetry.NewNoopMetrics())
	}
	if e.logger == nil {
		e.logger = telemetry.NewNoopLogger()
	}
	return e
}

// unit is one schedulable chunk of the workflow: either a single sequential
// step or a run of consecutive steps sharing a non-empty Group label.
type unit struct {
	indices []int
}

func buildUnits(steps []Step) []unit {
	var units []unit
	i := 0
	for i < len(steps) {
		group := steps[i].Group
		if group == "" {
			units = append(units, unit{indices: []int{i}})
			i++
			continue
		}
		j := i
		for j < len(steps) && steps[j].Group == group {
			j++
		}
		idxs := make([]int, 0, j-i)
		for k := i; k < j; k++ {
			idxs = append(idxs, k)
		}
		units = append(units, unit{indices: idxs})
		i = j
	}
	return units
}

// Run executes def's steps against ctx and returns the terminal
// WorkflowResult. Run does not return until every scheduled step has a
// terminal StepResult and, via the bus, the workflow_finished event has been
// published (spec §4.4).
func (e *Executor) Run(ctx context.Context, workflowID string, def WorkflowDefinition) WorkflowResult {
	started := e.clk.Now()
	e.bus.Publish(status.NewWorkflowStarted(workflowID, started.UnixMilli()))

	if def.WorkflowTimeoutMS > 0 {
		var cancel context.CancelFunc
		ctx, cancel = clock.DeriveDeadline(ctx, e.clk, time.Duration(def.WorkflowTimeoutMS)*time.Millisecond)
		defer cancel()
	}

	accumulator := make(map[int]rt.StepResult, len(def.Steps))
	results := make([]rt.StepResult, 0, len(def.Steps))

	units := buildUnits(def.Steps)
	policy := def.effectivePolicy()

	aborted := false
	var triggerIndex int
	cancelledRun := false
	timedOutRun := false

unitLoop:
	for _, u := range units {
		select {
		case <-ctx.Done():
			cancelledRun, timedOutRun = classifyRunInterruption(ctx)
			break unitLoop
		default:
		}

		if aborted {
			break
		}

		if len(u.indices) == 1 {
			idx := u.indices[0]
			res := e.runStepWithRetry(ctx, workflowID, idx, def.Steps[idx], def, accumulator)
			accumulator[idx] = res
			results = append(results, res)
			if res.Status != rt.StatusOK {
				if policy == OnFailureAbort || policy == OnFailureRetry {
					aborted = true
					triggerIndex = idx
				}
			}
			continue
		}

		// Parallel group: fan out, join before the next sequential unit.
		groupResults := make([]rt.StepResult, len(u.indices))
		var wg sync.WaitGroup
		for gi, idx := range u.indices {
			wg.Add(1)
			go func(gi, idx int) {
				defer wg.Done()
				groupResults[gi] = e.runStepWithRetry(ctx, workflowID, idx, def.Steps[idx], def, accumulator)
			}(gi, idx)
		}
		wg.Wait()

		firstBad := -1
		for gi, idx := range u.indices {
			accumulator[idx] = groupResults[gi]
			results = append(results, groupResults[gi])
			if groupResults[gi].Status != rt.StatusOK && firstBad == -1 {
				firstBad = idx
			}
		}
		if firstBad != -1 && (policy == OnFailureAbort || policy == OnFailureRetry) {
			aborted = true
			triggerIndex = firstBad
		}
	}

	scheduled := len(results)
	if scheduled < len(def.Steps) {
		results = e.synthesizeRemaining(results, def.Steps, scheduled, aborted, triggerIndex, cancelledRun, timedOutRun)
	}

	finished := e.clk.Now()
	overall := aggregateStatus(results, policy)
	e.bus.Publish(status.NewWorkflowFinished(workflowID, finished.UnixMilli(), string(overall)))

	return WorkflowResult{
		WorkflowID: workflowID,
		Status:     overall,
		Steps:      results,
		StartedAt:  started,
		FinishedAt: finished,
	}
}

// classifyRunInterruption reports whether ctx ended due to caller
// cancellation or due to the workflow deadline elapsing.
func classifyRunInterruption(ctx context.Context) (cancelled, timedOut bool) {
	if ctx.Err() == context.DeadlineExceeded {
		return false, true
	}
	return true, false
}

// synthesizeRemaining fills in terminal StepResults for steps never
// scheduled, per spec §4.4's abort/cancellation/timeout tie-break rules.
func (e *Executor) synthesizeRemaining(results []rt.StepResult, steps []Step, scheduled int, aborted bool, triggerIndex int, cancelledRun, timedOutRun bool) []rt.StepResult {
	now := e.clk.Now()
	for i := scheduled; i < len(steps); i++ {
		s := steps[i]
		res := rt.StepResult{
			StepIndex:  i,
			Agent:      s.Agent,
			Action:     s.Action,
			StartedAt:  now,
			FinishedAt: now,
			Attempts:   0,
		}
		switch {
		case cancelledRun:
			res.Status = rt.StatusCancelled
			res.Err = coorderrors.New(coorderrors.KindCancelled, "workflow cancelled before this step started")
		case timedOutRun:
			if i == scheduled {
				res.Status = rt.StatusTimeout
				res.Err = coorderrors.New(coorderrors.KindTimeout, "workflow deadline elapsed before this step started")
			} else {
				res.Status = rt.StatusSkipped
				res.Err = coorderrors.Newf(coorderrors.KindTimeout, "skipped: workflow timed out at step %d", scheduled)
			}
		case aborted:
			res.Status = rt.StatusSkipped
			res.Err = coorderrors.Newf(coorderrors.KindSkipped, "skipped: aborted due to step %d failure", triggerIndex)
		default:
			res.Status = rt.StatusSkipped
			res.Err = coorderrors.New(coorderrors.KindSkipped, "skipped: not scheduled")
		}
		results = append(results, res)
	}
	return results
}

// aggregateStatus derives WorkflowResult.Status from the per-step results
// and policy, per spec §3's "ok iff every non-skipped step is ok" rule.
func aggregateStatus(results []rt.StepResult, policy FailurePolicy) WorkflowStatus {
	var firstNonOK *rt.StepResult
	for i := range results {
		r := &results[i]
		if r.Status == rt.StatusOK || r.Status == rt.StatusSkipped {
			continue
		}
		if firstNonOK == nil {
			firstNonOK = r
		}
	}
	if firstNonOK == nil {
		return WorkflowOK
	}
	switch firstNonOK.Status {
	case rt.StatusTimeout:
		return WorkflowTimeout
	case rt.StatusCancelled:
		return WorkflowCancelled
	default:
		return WorkflowFailed
	}
}

// runStepWithRetry invokes one step, applying def's retry policy when
// configured and the step's error is retryable (spec §4.4).
func (e *Executor) runStepWithRetry(ctx context.Context, workflowID string, idx int, step Step, def WorkflowDefinition, accumulator map[int]rt.StepResult) rt.StepResult {
	policy := step.RetryHint
	if policy == nil && def.effectivePolicy() == OnFailureRetry {
		policy = &def.Retry
	}
	maxAttempts := 1
	if policy != nil {
		maxAttempts = policy.MaxAttempts
	}

	var causes []*coorderrors.CoordinatorError
	var last rt.StepResult

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		last = e.runStepOnce(ctx, workflowID, idx, step, accumulator)
		last.Attempts = attempt
		if last.Status == rt.StatusOK {
			return withCauses(last, causes)
		}
		if attempt == maxAttempts || policy == nil {
			break
		}
		if !isRetryable(last) {
			break
		}
		if remaining, ok := clock.Remaining(ctx, e.clk); ok && remaining <= 0 {
			break
		}
		causes = append(causes, last.Err)
		e.sleepBackoff(ctx, *policy, attempt)
	}

	return withCauses(last, causes)
}

// withCauses threads prior failed attempts into the final StepResult, per
// spec §4.4's "prior attempts appear as annotated entries in its cause
// chain" rule. It always populates RetryCauses, since a step that fails
// then succeeds on a later attempt (spec §8 scenario 6) has no Err to chain
// the history onto: RetryCauses is the one place that history survives.
// When the final attempt also failed, the same causes are additionally
// threaded onto res.Err's Cause chain so errors.Is/As keeps working across
// attempts.
func withCauses(res rt.StepResult, causes []*coorderrors.CoordinatorError) rt.StepResult {
	if len(causes) == 0 {
		return res
	}
	res.RetryCauses = causes
	if res.Err == nil {
		return res
	}
	cur := res.Err
	for i := len(causes) - 1; i >= 0; i-- {
		cur.Cause = causes[i]
		cur = causes[i]
	}
	return res
}

func isRetryable(res rt.StepResult) bool {
	if res.Err == nil {
		return false
	}
	return res.Err.Kind == coorderrors.KindAgentFault || res.Err.Kind == coorderrors.KindTimeout
}

func (e *Executor) sleepBackoff(ctx context.Context, policy RetryPolicy, attempt int) {
	d := policy.Backoff
	if policy.Exponential {
		for i := 1; i < attempt; i++ {
			d *= 2
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// runStepOnce resolves bindings, looks up the agent/action, and delegates to
// the Agent Runtime for exactly one invocation attempt.
func (e *Executor) runStepOnce(ctx context.Context, workflowID string, idx int, step Step, accumulator map[int]rt.StepResult) rt.StepResult {
	now := e.clk.Now()

	a, err := e.registry.Lookup(step.Agent)
	if err != nil {
		return rt.StepResult{StepIndex: idx, Agent: step.Agent, Action: step.Action, Status: rt.StatusFailed, Err: coorderrors.FromError(err), StartedAt: now, FinishedAt: now, Attempts: 1}
	}
	act, err := e.registry.LookupAction(step.Agent, step.Action)
	if err != nil {
		return rt.StepResult{StepIndex: idx, Agent: step.Agent, Action: step.Action, Status: rt.StatusFailed, Err: coorderrors.FromError(err), StartedAt: now, FinishedAt: now, Attempts: 1}
	}

	params, err := e.resolveParams(step, accumulator)
	if err != nil {
		return rt.StepResult{StepIndex: idx, Agent: step.Agent, Action: step.Action, Status: rt.StatusFailed, Err: coorderrors.FromError(err), StartedAt: now, FinishedAt: now, Attempts: 1}
	}

	timeout := e.defaultStepTimeout
	if step.TimeoutMS > 0 {
		timeout = time.Duration(step.TimeoutMS) * time.Millisecond
	}
	stepCtx, cancel := clock.DeriveDeadline(ctx, e.clk, timeout)
	stepCtx = clock.WithStep(stepCtx, idx)
	defer cancel()

	return e.runtime.Invoke(stepCtx, workflowID, idx, a, act, params, now)
}

// resolveParams merges step.Params with values pulled from accumulator via
// step.Bindings, failing with DataflowError if a binding cannot be resolved
// (spec §4.4).
func (e *Executor) resolveParams(step Step, accumulator map[int]rt.StepResult) (agent.Params, error) {
	params := make(agent.Params, len(step.Params)+len(step.Bindings))
	for k, v := range step.Params {
		params[k] = agent.FromAny(v)
	}
	for _, b := range step.Bindings {
		src, ok := accumulator[b.FromStep]
		if !ok {
			return nil, coorderrors.Newf(coorderrors.KindDataflow, "binding %q: source step %d has no result", b.Param, b.FromStep)
		}
		if src.Status != rt.StatusOK {
			return nil, coorderrors.Newf(coorderrors.KindDataflow, "binding %q: source step %d did not complete ok (status=%s)", b.Param, b.FromStep, src.Status)
		}
		val, ok := src.Output[b.FromField]
		if !ok {
			return nil, coorderrors.Newf(coorderrors.KindDataflow, "binding %q: source step %d output has no field %q", b.Param, b.FromStep, b.FromField)
		}
		params[b.Param] = val
	}
	return params, nil
}

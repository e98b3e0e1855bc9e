// Package coordinator exposes the small, stable external API a host
// (desktop GUI, CLI, HTTP handler) uses to register agents and submit
// workflows (spec §6). Grounded on the teacher's registry.Manager
// functional-options constructor pattern, generalized from a federated
// discovery manager into the coordinator's submit/subscribe/diagnostics
// surface.
package coordinator

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"goa.design/tandem/clock"
	coorderrors "goa.design/tandem/errors"
	"goa.design/tandem/registry"
	"goa.design/tandem/runtime"
	"goa.design/tandem/status"
	"goa.design/tandem/telemetry"
	"goa.design/tandem/workflow"
)

// Diagnostics is the snapshot returned by Coordinator.Diagnostics (spec §6).
type Diagnostics struct {
	EventsDroppedTotal              int64
	WorkflowsStartedTotal           int64
	WorkflowsTerminalTotalByStatus  map[string]int64
	ActiveWorkflows                int64
}

// Coordinator is the host-facing entry point: construct one with a
// pre-populated Registry, submit workflows, and subscribe to status events.
// Tests may stand up any number of independent Coordinators in one process
// (spec §9's "no global singleton" design note).
type Coordinator struct {
	clk      clock.Clock
	registry *registry.Registry
	bus      *status.Bus
	runtime  *runtime.Runtime
	executor *workflow.Executor
	logger   telemetry.Logger
	metricsHolder telemetry.Metrics
	tracerHolder  telemetry.Tracer

	defaultStepTimeout time.Duration
	bufferSize         int
	gracePeriod        time.Duration

	startedTotal   atomic.Int64
	activeTotal    atomic.Int64
	terminalMu     sync.Mutex
	terminalByKind map[string]int64
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithClock sets the Clock used for all deadline and duration measurements.
// Tests inject a clock.Fake for deterministic timeout behavior.
func WithClock(c clock.Clock) Option { return func(co *Coordinator) { co.clk = c } }

// WithLogger sets the logger events and Internal errors are reported to.
func WithLogger(l telemetry.Logger) Option { return func(co *Coordinator) { co.logger = l } }

// WithMetrics sets the metrics recorder used by the status bus and runtime.
func WithMetrics(m telemetry.Metrics) Option {
	return func(co *Coordinator) { co.metricsHolder = m }
}

// WithTracer sets the tracer used by the agent runtime.
func WithTracer(t telemetry.Tracer) Option { return func(co *Coordinator) { co.tracerHolder = t } }

// WithStatusBufferSize sets the per-subscriber bounded buffer size for the
// status bus (spec §4.5). Defaults to 64.
func WithStatusBufferSize(n int) Option { return func(co *Coordinator) { co.bufferSize = n } }

// WithDefaultStepTimeout sets the per-step timeout used when a step does not
// declare its own timeout_ms. Defaults to 30s.
func WithDefaultStepTimeout(d time.Duration) Option {
	return func(co *Coordinator) { co.defaultStepTimeout = d }
}

// WithGracePeriod sets the grace period a non-cooperative agent is given
// before being detached on cancellation (spec §5). Defaults to 250ms.
func WithGracePeriod(d time.Duration) Option { return func(co *Coordinator) { co.gracePeriod = d } }

// New constructs a Coordinator over reg, which must already be populated
// (via reg.Register) and started (via reg.StartAll) by the caller.
func New(reg *registry.Registry, opts ...Option) *Coordinator {
	co := &Coordinator{
		registry:           reg,
		defaultStepTimeout: 30 * time.Second,
		bufferSize:         64,
		gracePeriod:        250 * time.Millisecond,
		terminalByKind:     make(map[string]int64),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(co)
		}
	}
	if co.clk == nil {
		co.clk = clock.New()
	}
	if co.logger == nil {
		co.logger = telemetry.NewNoopLogger()
	}
	if co.metricsHolder == nil {
		co.metricsHolder = telemetry.NewNoopMetrics()
	}
	if co.tracerHolder == nil {
		co.tracerHolder = telemetry.NewNoopTracer()
	}

	co.bus = status.New(co.bufferSize, co.metricsHolder)
	co.runtime = runtime.New(
		runtime.WithClock(co.clk),
		runtime.WithBus(co.bus),
		runtime.WithLogger(co.logger),
		runtime.WithMetrics(co.metricsHolder),
		runtime.WithTracer(co.tracerHolder),
		runtime.WithGracePeriod(co.gracePeriod),
	)
	co.executor = workflow.New(co.registry, co.runtime,
		workflow.WithClock(co.clk),
		workflow.WithBus(co.bus),
		workflow.WithLogger(co.logger),
		workflow.WithDefaultStepTimeout(co.defaultStepTimeout),
	)
	return co
}

// Submit validates def, assigns it a fresh workflow id, and drives it to
// completion, returning only when the run is terminal (spec §6). ConfigError
// / UnknownAgent / UnknownAction are returned directly rather than embedded
// in a WorkflowResult, since the workflow never receives an id in that case.
func (co *Coordinator) Submit(ctx context.Context, def workflow.WorkflowDefinition) (workflow.WorkflowResult, error) {
	if err := def.Validate(); err != nil {
		return workflow.WorkflowResult{}, err
	}
	if err := co.validateReferences(def); err != nil {
		return workflow.WorkflowResult{}, err
	}

	co.registry.Seal()

	workflowID := uuid.NewString()
	co.startedTotal.Add(1)
	co.activeTotal.Add(1)
	defer co.activeTotal.Add(-1)

	result := co.executor.Run(ctx, workflowID, def)

	co.terminalMu.Lock()
	co.terminalByKind[string(result.Status)]++
	co.terminalMu.Unlock()

	for _, s := range result.Steps {
		if s.Err != nil && s.Err.Kind == coorderrors.KindInternal {
			co.logger.Error(ctx, "coordinator invariant violated", "workflow_id", workflowID, "step_index", s.StepIndex, "error", s.Err.Message, "causes", s.Err.Causes())
		}
	}

	if result.Status != workflow.WorkflowOK {
		co.logger.Info(ctx, "workflow terminated non-ok", "workflow_id", workflowID, "status", string(result.Status))
	}

	return result, nil
}

// validateReferences checks that every step names a known agent/action
// before a workflow_id is assigned (spec §7's "raised at submission" rule).
func (co *Coordinator) validateReferences(def workflow.WorkflowDefinition) error {
	for i, s := range def.Steps {
		if _, err := co.registry.LookupAction(s.Agent, s.Action); err != nil {
			ce := coorderrors.FromError(err)
			return coorderrors.Wrap(ce.Kind, "step "+strconv.Itoa(i)+": "+ce.Message, err)
		}
	}
	return nil
}

// SubscribeStatus registers handler to receive future StatusEvents.
func (co *Coordinator) SubscribeStatus(handler status.Handler) status.Subscription {
	return co.bus.Subscribe(handler)
}

// Diagnostics returns a snapshot of coordinator-wide counters (spec §6).
func (co *Coordinator) Diagnostics() Diagnostics {
	co.terminalMu.Lock()
	byStatus := make(map[string]int64, len(co.terminalByKind))
	for k, v := range co.terminalByKind {
		byStatus[k] = v
	}
	co.terminalMu.Unlock()

	return Diagnostics{
		EventsDroppedTotal:             co.bus.EventsDroppedTotal(),
		WorkflowsStartedTotal:          co.startedTotal.Load(),
		WorkflowsTerminalTotalByStatus: byStatus,
		ActiveWorkflows:                co.activeTotal.Load(),
	}
}

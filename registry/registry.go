// Package registry holds the set of registered agents and the actions each
// one exposes (spec §4.2). It is grounded on the teacher's
// runtime/registry.Manager: the functional-options constructor and the
// RWMutex-guarded map are kept, but DiscoverToolset/Search/sync-loop
// federation concerns are replaced entirely with register/lookup/
// start_all/stop_all, since the coordinator's registry is a closed,
// host-populated set rather than a federated multi-backend catalog.
package registry

import (
	"context"
	"sync"

	"goa.design/tandem/agent"
	coorderrors "goa.design/tandem/errors"
	"goa.design/tandem/telemetry"
)

type (
	// Registry maps agent name to Agent, and (agent, action) to Action.
	// All access is guarded by mu: lookups take the read lock, including
	// after Seal, so reads are not lock-free. Once Seal has been called by
	// the coordinator at submission time (spec §4.2's "read-only for the
	// remainder of the process" rule), Register fails with ConfigError.
	Registry struct {
		mu      sync.RWMutex
		agents  map[string]agent.Agent
		order   []string
		sealed  bool
		started bool

		logger  telemetry.Logger
		metrics telemetry.Metrics
	}

	// Option configures a Registry at construction time.
	Option func(*Registry)
)

// WithLogger sets the logger used for start_all/stop_all diagnostics.
func WithLogger(l telemetry.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithMetrics sets the metrics recorder used for registration counters.
func WithMetrics(m telemetry.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// New constructs an empty Registry ready to accept Register calls.
func New(opts ...Option) *Registry {
	r := &Registry{
		agents: make(map[string]agent.Agent),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = telemetry.NewNoopLogger()
	}
	if r.metrics == nil {
		r.metrics = telemetry.NewNoopMetrics()
	}
	return r
}

// Register adds an agent to the registry. It fails with ConfigError if the
// name is empty, the agent declares zero actions, the registry is sealed
// (a workflow has already been submitted), or replace is false and the name
// collides with an existing registration (spec §4.2).
func (r *Registry) Register(a agent.Agent, replace bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return coorderrors.New(coorderrors.KindConfig, "registry is sealed: cannot register after startup")
	}
	if a.Name == "" {
		return coorderrors.New(coorderrors.KindConfig, "agent name must not be empty")
	}
	if len(a.Actions) == 0 {
		return coorderrors.Newf(coorderrors.KindConfig, "agent %q declares zero actions", a.Name)
	}
	if _, exists := r.agents[a.Name]; exists && !replace {
		return coorderrors.Newf(coorderrors.KindConfig, "agent %q is already registered", a.Name)
	}
	if _, exists := r.agents[a.Name]; !exists {
		r.order = append(r.order, a.Name)
	}
	r.agents[a.Name] = a
	return nil
}

// Lookup returns the agent registered under name, or UnknownAgent.
func (r *Registry) Lookup(name string) (agent.Agent, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.agents[name]
	if !ok {
		return agent.Agent{}, coorderrors.Newf(coorderrors.KindUnknownAgent, "no agent registered with name %q", name)
	}
	return a, nil
}

// LookupAction returns the action descriptor for (agentName, actionName), or
// UnknownAgent / UnknownAction.
func (r *Registry) LookupAction(agentName, actionName string) (agent.Action, error) {
	a, err := r.Lookup(agentName)
	if err != nil {
		return agent.Action{}, err
	}
	act, ok := a.Action(actionName)
	if !ok {
		return agent.Action{}, coorderrors.Newf(coorderrors.KindUnknownAction, "agent %q has no action %q", agentName, actionName)
	}
	return act, nil
}

// Seal marks the registry as read-only. The coordinator calls this on every
// submission, once the workflow has passed validation (repeat calls are
// harmless), so later Register calls fail fast with ConfigError rather than
// racing concurrent lookups.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// StartAll runs each registered agent's OnStart hook in registration order.
// If a hook fails, startup aborts and every agent started so far is rolled
// back in reverse order via OnStop; the triggering cause is returned wrapped
// in a ConfigError. Rollback failures are logged and are not part of the
// returned error (spec §4.2).
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.started {
		return coorderrors.New(coorderrors.KindConfig, "registry already started")
	}

	started := make([]string, 0, len(r.order))
	for _, name := range r.order {
		a := r.agents[name]
		if a.Hooks.OnStart == nil {
			started = append(started, name)
			continue
		}
		if err := a.Hooks.OnStart(ctx); err != nil {
			r.logger.Error(ctx, "agent on_start failed, rolling back", "agent", name, "error", err.Error())
			r.rollback(ctx, started)
			return coorderrors.Wrap(coorderrors.KindConfig, "agent \""+name+"\" failed to start", err)
		}
		started = append(started, name)
	}
	r.started = true
	r.sealed = true
	return nil
}

// rollback invokes OnStop for the given agent names in reverse order. Caller
// must hold r.mu.
func (r *Registry) rollback(ctx context.Context, names []string) {
	for i := len(names) - 1; i >= 0; i-- {
		a := r.agents[names[i]]
		if a.Hooks.OnStop == nil {
			continue
		}
		if err := a.Hooks.OnStop(ctx); err != nil {
			r.logger.Error(ctx, "agent on_stop failed during rollback", "agent", names[i], "error", err.Error())
		}
	}
}

// StopAll runs each registered agent's OnStop hook in reverse registration
// order. Errors are logged and collected but do not stop later hooks from
// running, so shutdown always makes a best-effort pass over every agent.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var firstErr error
	for i := len(r.order) - 1; i >= 0; i-- {
		name := r.order[i]
		a := r.agents[name]
		if a.Hooks.OnStop == nil {
			continue
		}
		if err := a.Hooks.OnStop(ctx); err != nil {
			r.logger.Error(ctx, "agent on_stop failed", "agent", name, "error", err.Error())
			if firstErr == nil {
				firstErr = coorderrors.Wrap(coorderrors.KindInternal, "agent \""+name+"\" failed to stop", err)
			}
		}
	}
	r.started = false
	return firstErr
}

// Names returns registered agent names in registration order, primarily for
// diagnostics and tests.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

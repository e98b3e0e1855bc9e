package agent

import "context"

// Params is the parameter mapping passed into an action invocation. It is a
// thin alias over a map of Values rather than map[string]any, so agents never
// see an untyped payload (spec §9).
type Params map[string]Value

// Get returns the value bound to key, or the zero Value (Kind() == KindNull)
// if key is absent.
func (p Params) Get(key string) Value { return p[key] }

// Result is the value an action returns on success. Like Params, it is
// always a Map-kind Value's backing type: a string-keyed collection.
type Result map[string]Value

// StatusPublisher is the narrow capability an agent is handed at invocation
// time to emit progress of its own choosing (e.g. "50% downloaded"). It
// deliberately exposes nothing about the workflow executor or other agents,
// breaking the cyclic agent<->coordinator reference the source exhibits
// (spec §9's "Cyclic references between agents and coordinator" note).
type StatusPublisher interface {
	// Publish offers a free-form progress note for the current step. It
	// never blocks the agent. The runtime's implementation discards the
	// note: no status event variant carries progress notes.
	Publish(note string)
}

// ActionFunc is the invocable body of an Action. ctx carries the per-call
// deadline and cancellation signal (clock.DeriveDeadline); impls must poll
// ctx.Done() at natural yield points to cooperate with timeout/cancellation
// (spec §4.3, §5). A returned error is converted to ErrorKind=AgentFault by
// the runtime unless it already carries a more specific kind.
type ActionFunc func(ctx context.Context, params Params, status StatusPublisher) (Result, error)

// Action is a pure descriptor of one capability an Agent exposes: how to
// invoke it plus declared parameter/result keys for documentation and
// validation. Grounded on the teacher's tools.ToolSpec/TypeSpec shape
// (tools/spec.go), narrowed to what the coordinator actually needs: no
// toolset/paging/confirmation fields survive, since those are an MCP-gateway
// concern the coordinator doesn't have.
type Action struct {
	// Name uniquely identifies this action within its owning Agent.
	Name string
	// ParamKeys documents the parameter keys this action reads. Not
	// enforced by the runtime; agents are not required to validate beyond
	// what they consume (spec §3).
	ParamKeys []string
	// ResultKeys documents the result keys this action may produce.
	ResultKeys []string
	// Invoke is the action body.
	Invoke ActionFunc
}

// Hooks are optional lifecycle callbacks run by the registry's
// start_all/stop_all (spec §4.2).
type Hooks struct {
	// OnStart runs once, in registration order, before the registry is
	// sealed for concurrent reads. A returned error aborts startup.
	OnStart func(ctx context.Context) error
	// OnStop runs once, in reverse registration order, during shutdown or
	// as a rollback of a partially-started registry.
	OnStop func(ctx context.Context) error
}

// Agent is a registered worker role exposing a fixed set of named Actions.
// Agent values are immutable after registration; the Registry holds the
// sole strong reference to each one (spec §3).
type Agent struct {
	// Name uniquely identifies this agent in the Registry. Non-empty,
	// case-sensitive.
	Name string
	// Actions is the set of capabilities this agent exposes. Must be
	// non-empty: a zero-action agent is rejected at registration.
	Actions []Action
	// Hooks are optional on_start/on_stop callbacks.
	Hooks Hooks
}

// Action looks up a named action on this agent, reporting ok=false if absent.
func (a Agent) Action(name string) (Action, bool) {
	for _, act := range a.Actions {
		if act.Name == name {
			return act, true
		}
	}
	return Action{}, false
}

package registry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/tandem/agent"
	coorderrors "goa.design/tandem/errors"
	"goa.design/tandem/registry"
)

func noopAction(name string) agent.Action {
	return agent.Action{
		Name: name,
		Invoke: func(context.Context, agent.Params, agent.StatusPublisher) (agent.Result, error) {
			return agent.Result{}, nil
		},
	}
}

func TestRegisterRejectsEmptyName(t *testing.T) {
	reg := registry.New()
	err := reg.Register(agent.Agent{Actions: []agent.Action{noopAction("a")}}, false)
	require.Error(t, err)
	var ce *coorderrors.CoordinatorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, coorderrors.KindConfig, ce.Kind)
}

func TestRegisterRejectsZeroActions(t *testing.T) {
	reg := registry.New()
	err := reg.Register(agent.Agent{Name: "a"}, false)
	require.Error(t, err)
	var ce *coorderrors.CoordinatorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, coorderrors.KindConfig, ce.Kind)
}

func TestRegisterRejectsDuplicateUnlessReplace(t *testing.T) {
	reg := registry.New()
	a := agent.Agent{Name: "a", Actions: []agent.Action{noopAction("x")}}
	require.NoError(t, reg.Register(a, false))

	err := reg.Register(a, false)
	require.Error(t, err)

	require.NoError(t, reg.Register(a, true))
}

func TestLookupUnknownAgent(t *testing.T) {
	reg := registry.New()
	_, err := reg.Lookup("nope")
	var ce *coorderrors.CoordinatorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, coorderrors.KindUnknownAgent, ce.Kind)
}

func TestLookupActionUnknownAction(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(agent.Agent{Name: "a", Actions: []agent.Action{noopAction("x")}}, false))

	_, err := reg.LookupAction("a", "y")
	var ce *coorderrors.CoordinatorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, coorderrors.KindUnknownAction, ce.Kind)
}

func TestStartAllRollsBackOnFailure(t *testing.T) {
	reg := registry.New()

	var stoppedOrder []string

	okAgent := agent.Agent{
		Name:    "ok",
		Actions: []agent.Action{noopAction("x")},
		Hooks: agent.Hooks{
			OnStart: func(context.Context) error { return nil },
			OnStop:  func(context.Context) error { stoppedOrder = append(stoppedOrder, "ok"); return nil },
		},
	}
	failAgent := agent.Agent{
		Name:    "fail",
		Actions: []agent.Action{noopAction("x")},
		Hooks: agent.Hooks{
			OnStart: func(context.Context) error { return errors.New("boom") },
		},
	}

	require.NoError(t, reg.Register(okAgent, false))
	require.NoError(t, reg.Register(failAgent, false))

	err := reg.StartAll(context.Background())
	require.Error(t, err)
	var ce *coorderrors.CoordinatorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, coorderrors.KindConfig, ce.Kind)
	assert.Equal(t, []string{"ok"}, stoppedOrder, "already-started agents must be rolled back via OnStop")
}

func TestStartAllSealsRegistry(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(agent.Agent{Name: "a", Actions: []agent.Action{noopAction("x")}}, false))
	require.NoError(t, reg.StartAll(context.Background()))

	err := reg.Register(agent.Agent{Name: "b", Actions: []agent.Action{noopAction("x")}}, false)
	require.Error(t, err)
	var ce *coorderrors.CoordinatorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, coorderrors.KindConfig, ce.Kind)
}

func TestStopAllRunsInReverseOrder(t *testing.T) {
	reg := registry.New()
	var order []string
	mk := func(name string) agent.Agent {
		return agent.Agent{
			Name:    name,
			Actions: []agent.Action{noopAction("x")},
			Hooks: agent.Hooks{
				OnStop: func(context.Context) error { order = append(order, name); return nil },
			},
		}
	}
	require.NoError(t, reg.Register(mk("a"), false))
	require.NoError(t, reg.Register(mk("b"), false))
	require.NoError(t, reg.StartAll(context.Background()))

	require.NoError(t, reg.StopAll(context.Background()))
	assert.Equal(t, []string{"b", "a"}, order)
}

package registry_test

import (
	"context"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/tandem/agent"
	"goa.design/tandem/registry"
)

// TestRegisterThenLookupRoundTripsProperty checks that any sequence of
// distinct, validly-named agents registered into a fresh Registry can all be
// looked up again by name, and that Names() reports them in registration
// order — spec §4.2's basic round-trip guarantee.
func TestRegisterThenLookupRoundTripsProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	genNames := gen.SliceOfN(4, gen.Identifier()).SuchThat(func(names []string) bool {
		seen := make(map[string]bool, len(names))
		for _, n := range names {
			if n == "" || seen[n] {
				return false
			}
			seen[n] = true
		}
		return true
	})

	properties.Property("every registered agent is looked up and reported in order", prop.ForAll(
		func(names []string) bool {
			reg := registry.New()
			for _, name := range names {
				a := agent.Agent{Name: name, Actions: []agent.Action{{
					Name: "noop",
					Invoke: func(context.Context, agent.Params, agent.StatusPublisher) (agent.Result, error) {
						return agent.Result{}, nil
					},
				}}}
				if err := reg.Register(a, false); err != nil {
					return false
				}
			}
			for _, name := range names {
				got, err := reg.Lookup(name)
				if err != nil || got.Name != name {
					return false
				}
			}
			order := reg.Names()
			if len(order) != len(names) {
				return false
			}
			for i, name := range names {
				if order[i] != name {
					return false
				}
			}
			return true
		},
		genNames,
	))

	properties.TestingRun(t)
}

package agent_test

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"goa.design/tandem/agent"
)

// genValue produces arbitrary agent.Value trees up to a bounded depth, for
// TestFromAnyToAnyIsRoundTripProperty below. Grounded on the teacher's
// registry property tests' gen.IntRange/FlatMap composition style
// (runtime/registry/manager_property_test.go).
func genValue(depth int) gopter.Gen {
	leaf := gen.OneGenOf(
		gen.Int64Range(-1000, 1000),
		gen.AlphaString(),
		gen.Bool(),
	)
	if depth <= 0 {
		return leaf.Map(toValue)
	}
	return gen.Frequency(map[int]gopter.Gen{
		3: leaf.Map(toValue),
		1: gen.SliceOfN(3, genValue(depth-1)).Map(func(vs []agent.Value) agent.Value {
			return agent.List(vs...)
		}),
		2: gen.MapOf(gen.AlphaString(), genValue(depth-1)).Map(func(m map[string]agent.Value) agent.Value {
			return agent.Map(m)
		}),
	})
}

func toValue(v any) agent.Value {
	switch x := v.(type) {
	case int64:
		return agent.Int(x)
	case string:
		return agent.String(x)
	case bool:
		return agent.Bool(x)
	default:
		return agent.Null()
	}
}

func TestFromAnyToAnyIsRoundTripProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("Value -> ToAny -> FromAny reproduces an equal Value", prop.ForAll(
		func(v agent.Value) bool {
			roundTripped := agent.FromAny(v.ToAny())
			return v.Equal(roundTripped)
		},
		genValue(2),
	))

	properties.TestingRun(t)
}

// Package examplemodule provides a small set of worked example agents used
// by the coord CLI: arithmetic, string, and a cooperative
// sleeper that demonstrates timeout/cancellation handling (spec §8's
// end-to-end scenarios name exactly this shape of agent). None of this is
// part of the coordinator's public contract; a host wires its own agents.
package examplemodule

import (
	"context"
	"fmt"
	"time"

	"goa.design/tandem/agent"
)

// Arithmetic registers an agent named "arith" exposing "add" (sums x and y
// into "sum") and "stringify" (renders "n" into a "text" string), matching
// spec §8 scenario 1's Agent A.
func Arithmetic() agent.Agent {
	return agent.Agent{
		Name: "arith",
		Actions: []agent.Action{
			{
				Name:      "add",
				ParamKeys: []string{"x", "y"},
				ResultKeys: []string{"sum"},
				Invoke: func(_ context.Context, params agent.Params, _ agent.StatusPublisher) (agent.Result, error) {
					x, _ := params.Get("x").Int()
					y, _ := params.Get("y").Int()
					return agent.Result{"sum": agent.Int(x + y)}, nil
				},
			},
			{
				Name:       "stringify",
				ParamKeys:  []string{"n"},
				ResultKeys: []string{"text"},
				Invoke: func(_ context.Context, params agent.Params, _ agent.StatusPublisher) (agent.Result, error) {
					n := params.Get("n")
					var text string
					switch n.Kind() {
					case agent.KindInt:
						v, _ := n.Int()
						text = fmt.Sprintf("%d", v)
					case agent.KindFloat:
						v, _ := n.Float()
						text = fmt.Sprintf("%g", v)
					default:
						v, _ := n.String()
						text = v
					}
					return agent.Result{"text": agent.String(text)}, nil
				},
			},
		},
	}
}

// Sleeper registers an agent named name exposing "ping" (sleeps for the
// "sleep_ms" parameter, polling ctx every pollInterval so it cooperates with
// the per-call deadline, and returns {"t": <unix millis it finished at>}).
func Sleeper(name string, pollInterval time.Duration) agent.Agent {
	return agent.Agent{
		Name: name,
		Actions: []agent.Action{
			{
				Name:       "ping",
				ParamKeys:  []string{"sleep_ms"},
				ResultKeys: []string{"t"},
				Invoke: func(ctx context.Context, params agent.Params, _ agent.StatusPublisher) (agent.Result, error) {
					sleepMS, _ := params.Get("sleep_ms").Int()
					deadline := time.Now().Add(time.Duration(sleepMS) * time.Millisecond)
					ticker := time.NewTicker(pollInterval)
					defer ticker.Stop()
					for time.Now().Before(deadline) {
						select {
						case <-ctx.Done():
							return nil, ctx.Err()
						case <-ticker.C:
						}
					}
					return agent.Result{"t": agent.Int(time.Now().UnixMilli())}, nil
				},
			},
		},
	}
}

// Merger registers an agent named "merge" exposing "merge" (reads the "a" and
// "b" params as integers, such as Sleeper's "t" outputs, and returns them as
// a two-element list under "merged"), used to join parallel-group outputs in
// spec §8 scenario 4.
func Merger() agent.Agent {
	return agent.Agent{
		Name: "merge",
		Actions: []agent.Action{
			{
				Name:       "merge",
				ParamKeys:  []string{"a", "b"},
				ResultKeys: []string{"merged"},
				Invoke: func(_ context.Context, params agent.Params, _ agent.StatusPublisher) (agent.Result, error) {
					a, _ := params.Get("a").Int()
					b, _ := params.Get("b").Int()
					return agent.Result{"merged": agent.List(agent.Int(a), agent.Int(b))}, nil
				},
			},
		},
	}
}

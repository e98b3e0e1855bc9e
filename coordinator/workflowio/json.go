// Package workflowio implements the JSON/YAML serialization contract for
// WorkflowDefinition and WorkflowResult (spec §6). It exists so a
// WorkflowDefinition can be supplied by a file/HTTP body/CLI argument, and a
// WorkflowResult can be rendered back out, without the workflow package
// itself depending on an encoding format.
package workflowio

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	coorderrors "goa.design/tandem/errors"
	rt "goa.design/tandem/runtime"
	"goa.design/tandem/workflow"
)

// strictUnmarshal decodes data into v, rejecting unrecognized top-level keys
// (spec §6's "unrecognized keys are rejected with ConfigError" rule).
func strictUnmarshal(data []byte, v interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// wireBinding mirrors the {"param","from_step","from_field"} shape of §6.
type wireBinding struct {
	Param     string `json:"param"`
	FromStep  int    `json:"from_step"`
	FromField string `json:"from_field"`
}

type wireRetry struct {
	MaxAttempts int  `json:"max_attempts"`
	BackoffMS   int  `json:"backoff_ms"`
	Exponential bool `json:"exponential"`
}

type wireStep struct {
	Agent     string                 `json:"agent"`
	Action    string                 `json:"action"`
	Params    map[string]interface{} `json:"params,omitempty"`
	Bindings  []wireBinding          `json:"bindings,omitempty"`
	TimeoutMS int                    `json:"timeout_ms,omitempty"`
	Group     string                 `json:"group,omitempty"`
}

// wireOnStepFailure is either a bare string ("abort"/"continue") or an
// object {"retry": {...}}, matching §6's union shape. It marshals/unmarshals
// by hand since encoding/json has no native sum-type support.
type wireOnStepFailure struct {
	simple string
	retry  *wireRetry
}

func (w wireOnStepFailure) MarshalJSON() ([]byte, error) {
	if w.retry != nil {
		return json.Marshal(struct {
			Retry wireRetry `json:"retry"`
		}{Retry: *w.retry})
	}
	if w.simple == "" {
		return json.Marshal("abort")
	}
	return json.Marshal(w.simple)
}

func (w *wireOnStepFailure) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		w.simple = s
		return nil
	}
	var obj struct {
		Retry *wireRetry `json:"retry"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("on_step_failure: %w", err)
	}
	if obj.Retry == nil {
		return fmt.Errorf("on_step_failure: expected string or {\"retry\": {...}}")
	}
	w.retry = obj.Retry
	return nil
}

type wireDefinition struct {
	Steps             []wireStep        `json:"steps"`
	WorkflowTimeoutMS int               `json:"workflow_timeout_ms,omitempty"`
	OnStepFailure     wireOnStepFailure `json:"on_step_failure,omitempty"`
}

// MarshalDefinition renders def in the §6 wire shape.
func MarshalDefinition(def workflow.WorkflowDefinition) ([]byte, error) {
	w := wireDefinition{
		WorkflowTimeoutMS: def.WorkflowTimeoutMS,
	}
	for _, s := range def.Steps {
		ws := wireStep{
			Agent:     s.Agent,
			Action:    s.Action,
			Params:    s.Params,
			TimeoutMS: s.TimeoutMS,
			Group:     s.Group,
		}
		for _, b := range s.Bindings {
			ws.Bindings = append(ws.Bindings, wireBinding{Param: b.Param, FromStep: b.FromStep, FromField: b.FromField})
		}
		w.Steps = append(w.Steps, ws)
	}
	switch def.OnStepFailure {
	case workflow.OnFailureRetry:
		w.OnStepFailure = wireOnStepFailure{retry: &wireRetry{
			MaxAttempts: def.Retry.MaxAttempts,
			BackoffMS:   int(def.Retry.Backoff.Milliseconds()),
			Exponential: def.Retry.Exponential,
		}}
	case workflow.OnFailureContinue:
		w.OnStepFailure = wireOnStepFailure{simple: "continue"}
	default:
		w.OnStepFailure = wireOnStepFailure{simple: "abort"}
	}
	return json.Marshal(w)
}

// UnmarshalDefinition parses the §6 wire shape into a WorkflowDefinition.
// Unrecognized top-level keys are rejected with ConfigError via
// json.Decoder.DisallowUnknownFields.
func UnmarshalDefinition(data []byte) (workflow.WorkflowDefinition, error) {
	var w wireDefinition
	if err := strictUnmarshal(data, &w); err != nil {
		return workflow.WorkflowDefinition{}, coorderrors.Wrap(coorderrors.KindConfig, "malformed workflow definition", err)
	}

	def := workflow.WorkflowDefinition{WorkflowTimeoutMS: w.WorkflowTimeoutMS}
	for _, ws := range w.Steps {
		step := workflow.Step{
			Agent:     ws.Agent,
			Action:    ws.Action,
			Params:    ws.Params,
			TimeoutMS: ws.TimeoutMS,
			Group:     ws.Group,
		}
		for _, b := range ws.Bindings {
			step.Bindings = append(step.Bindings, workflow.Binding{Param: b.Param, FromStep: b.FromStep, FromField: b.FromField})
		}
		def.Steps = append(def.Steps, step)
	}

	if w.OnStepFailure.retry != nil {
		def.OnStepFailure = workflow.OnFailureRetry
		def.Retry = workflow.RetryPolicy{
			MaxAttempts: w.OnStepFailure.retry.MaxAttempts,
			Backoff:     msToDuration(w.OnStepFailure.retry.BackoffMS),
			Exponential: w.OnStepFailure.retry.Exponential,
		}
	} else {
		switch w.OnStepFailure.simple {
		case "", "abort":
			def.OnStepFailure = workflow.OnFailureAbort
		case "continue":
			def.OnStepFailure = workflow.OnFailureContinue
		default:
			return workflow.WorkflowDefinition{}, coorderrors.Newf(coorderrors.KindConfig, "unrecognized on_step_failure %q", w.OnStepFailure.simple)
		}
	}

	return def, def.Validate()
}

// wireStepResult mirrors one entry of the §6 "steps" array in a result.
type wireStepResult struct {
	Index      int                    `json:"index"`
	Agent      string                 `json:"agent"`
	Action     string                 `json:"action"`
	Status     string                 `json:"status"`
	Output     map[string]interface{} `json:"output"`
	Error      *wireError             `json:"error"`
	StartedAt  int64                  `json:"started_at"`
	FinishedAt int64                  `json:"finished_at"`
	DurationMS int64                  `json:"duration_ms"`
	Attempts   int                    `json:"attempts,omitempty"`
	// RetryCauses carries the messages of attempts prior to the reported
	// one. Present even when Status is "ok": a step that failed then
	// recovered on retry has no Error to hold this history (spec §8
	// scenario 6), so it is surfaced here instead.
	RetryCauses []string `json:"retry_causes,omitempty"`
}

type wireError struct {
	Kind    string   `json:"kind"`
	Message string   `json:"message"`
	Causes  []string `json:"causes"`
}

type wireResult struct {
	WorkflowID string           `json:"workflow_id"`
	Status     string           `json:"status"`
	StartedAt  int64            `json:"started_at"`
	FinishedAt int64            `json:"finished_at"`
	DurationMS int64            `json:"duration_ms"`
	Steps      []wireStepResult `json:"steps"`
}

// MarshalResult renders res in the §6 wire shape.
func MarshalResult(res workflow.WorkflowResult) ([]byte, error) {
	w := wireResult{
		WorkflowID: res.WorkflowID,
		Status:     string(res.Status),
		StartedAt:  res.StartedAt.UnixMilli(),
		FinishedAt: res.FinishedAt.UnixMilli(),
		DurationMS: res.Duration().Milliseconds(),
	}
	for _, s := range res.Steps {
		ws := wireStepResult{
			Index:      s.StepIndex,
			Agent:      s.Agent,
			Action:     s.Action,
			Status:     string(s.Status),
			StartedAt:  s.StartedAt.UnixMilli(),
			FinishedAt: s.FinishedAt.UnixMilli(),
			DurationMS: s.Duration().Milliseconds(),
		}
		if s.Attempts > 1 {
			ws.Attempts = s.Attempts
		}
		if s.Status == rt.StatusOK && s.Output != nil {
			out := make(map[string]interface{}, len(s.Output))
			for k, v := range s.Output {
				out[k] = v.ToAny()
			}
			ws.Output = out
		}
		if s.Err != nil {
			ws.Error = &wireError{Kind: string(s.Err.Kind), Message: s.Err.Message, Causes: s.Err.Causes()}
		}
		for _, c := range s.RetryCauses {
			ws.RetryCauses = append(ws.RetryCauses, c.Message)
		}
		w.Steps = append(w.Steps, ws)
	}
	return json.Marshal(w)
}

func msToDuration(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

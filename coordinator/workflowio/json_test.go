package workflowio_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/tandem/coordinator/workflowio"
	coorderrors "goa.design/tandem/errors"
	rt "goa.design/tandem/runtime"
	"goa.design/tandem/workflow"
)

func TestDefinitionRoundTripsThroughJSON(t *testing.T) {
	def := workflow.WorkflowDefinition{
		Steps: []workflow.Step{
			{Agent: "a", Action: "do", Params: map[string]any{"x": float64(1)}},
			{Agent: "b", Action: "do", Bindings: []workflow.Binding{{Param: "y", FromStep: 0, FromField: "out"}}, TimeoutMS: 500, Group: "g1"},
		},
		WorkflowTimeoutMS: 5000,
		OnStepFailure:     workflow.OnFailureRetry,
		Retry:             workflow.RetryPolicy{MaxAttempts: 3, Backoff: 200 * time.Millisecond, Exponential: true},
	}

	data, err := workflowio.MarshalDefinition(def)
	require.NoError(t, err)

	back, err := workflowio.UnmarshalDefinition(data)
	require.NoError(t, err)

	assert.Equal(t, def.WorkflowTimeoutMS, back.WorkflowTimeoutMS)
	assert.Equal(t, def.OnStepFailure, back.OnStepFailure)
	assert.Equal(t, def.Retry, back.Retry)
	require.Len(t, back.Steps, 2)
	assert.Equal(t, def.Steps[0].Agent, back.Steps[0].Agent)
	assert.Equal(t, def.Steps[1].Bindings, back.Steps[1].Bindings)
	assert.Equal(t, def.Steps[1].Group, back.Steps[1].Group)
	assert.Equal(t, def.Steps[1].TimeoutMS, back.Steps[1].TimeoutMS)
}

func TestDefinitionDefaultsOnStepFailureToAbort(t *testing.T) {
	data := []byte(`{"steps":[{"agent":"a","action":"do"}]}`)
	def, err := workflowio.UnmarshalDefinition(data)
	require.NoError(t, err)
	assert.Equal(t, workflow.OnFailureAbort, def.OnStepFailure)
}

func TestDefinitionRejectsUnknownTopLevelKey(t *testing.T) {
	data := []byte(`{"steps":[{"agent":"a","action":"do"}],"bogus":true}`)
	_, err := workflowio.UnmarshalDefinition(data)
	require.Error(t, err)
}

func TestDefinitionRejectsMalformedOnStepFailure(t *testing.T) {
	data := []byte(`{"steps":[{"agent":"a","action":"do"}],"on_step_failure":{"nonsense":1}}`)
	_, err := workflowio.UnmarshalDefinition(data)
	require.Error(t, err)
}

func TestDefinitionParsesRetryObjectShape(t *testing.T) {
	data := []byte(`{"steps":[{"agent":"a","action":"do"}],"on_step_failure":{"retry":{"max_attempts":2,"backoff_ms":100,"exponential":false}}}`)
	def, err := workflowio.UnmarshalDefinition(data)
	require.NoError(t, err)
	assert.Equal(t, workflow.OnFailureRetry, def.OnStepFailure)
	assert.Equal(t, 2, def.Retry.MaxAttempts)
	assert.Equal(t, 100*time.Millisecond, def.Retry.Backoff)
}

func TestMarshalResultEncodesOutputAndError(t *testing.T) {
	now := time.Unix(100, 0)
	res := workflow.WorkflowResult{
		WorkflowID: "wf-1",
		Status:     workflow.WorkflowFailed,
		StartedAt:  now,
		FinishedAt: now.Add(2 * time.Second),
		Steps: []rt.StepResult{
			{
				StepIndex:  0,
				Agent:      "a",
				Action:     "do",
				Status:     rt.StatusFailed,
				Err:        coorderrors.New(coorderrors.KindAgentFault, "boom"),
				StartedAt:  now,
				FinishedAt: now.Add(time.Second),
				Attempts:   2,
			},
		},
	}

	data, err := workflowio.MarshalResult(res)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"workflow_id":"wf-1"`)
	assert.Contains(t, string(data), `"status":"failed"`)
	assert.Contains(t, string(data), `"kind":"agent_fault"`)
	assert.Contains(t, string(data), `"attempts":2`)
}

package workflowio_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goa.design/tandem/coordinator/workflowio"
	"goa.design/tandem/workflow"
)

func TestUnmarshalDefinitionYAMLParsesSteps(t *testing.T) {
	data := []byte(`
steps:
  - agent: a
    action: do
    params:
      x: 1
  - agent: b
    action: do
    bindings:
      - param: y
        from_step: 0
        from_field: out
    timeout_ms: 500
    group: g1
workflow_timeout_ms: 5000
on_step_failure: continue
`)
	def, err := workflowio.UnmarshalDefinitionYAML(data)
	require.NoError(t, err)
	assert.Equal(t, workflow.OnFailureContinue, def.OnStepFailure)
	require.Len(t, def.Steps, 2)
	assert.Equal(t, "a", def.Steps[0].Agent)
	assert.Equal(t, "g1", def.Steps[1].Group)
	assert.Equal(t, 500, def.Steps[1].TimeoutMS)
	require.Len(t, def.Steps[1].Bindings, 1)
	assert.Equal(t, "out", def.Steps[1].Bindings[0].FromField)
}

func TestUnmarshalDefinitionYAMLParsesRetryMapping(t *testing.T) {
	data := []byte(`
steps:
  - agent: a
    action: do
on_step_failure:
  retry:
    max_attempts: 4
    backoff_ms: 250
    exponential: true
`)
	def, err := workflowio.UnmarshalDefinitionYAML(data)
	require.NoError(t, err)
	assert.Equal(t, workflow.OnFailureRetry, def.OnStepFailure)
	assert.Equal(t, 4, def.Retry.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, def.Retry.Backoff)
	assert.True(t, def.Retry.Exponential)
}

func TestUnmarshalDefinitionYAMLRejectsUnknownField(t *testing.T) {
	data := []byte(`
steps:
  - agent: a
    action: do
bogus_field: true
`)
	_, err := workflowio.UnmarshalDefinitionYAML(data)
	require.Error(t, err)
}

func TestUnmarshalDefinitionYAMLRejectsEmptySteps(t *testing.T) {
	data := []byte(`steps: []`)
	_, err := workflowio.UnmarshalDefinitionYAML(data)
	require.Error(t, err)
}

package workflowio

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	coorderrors "goa.design/tandem/errors"
	"goa.design/tandem/workflow"
)

// yamlBinding mirrors wireBinding with yaml tags, supplementing the §6 JSON
// contract for hosts that prefer hand-editing workflow files (spec §4's
// supplemented-feature note: the source's tandem definitions are typically
// authored by hand, which favors a YAML front-end over JSON alone).
type yamlBinding struct {
	Param     string `yaml:"param"`
	FromStep  int    `yaml:"from_step"`
	FromField string `yaml:"from_field"`
}

type yamlRetry struct {
	MaxAttempts int  `yaml:"max_attempts"`
	BackoffMS   int  `yaml:"backoff_ms"`
	Exponential bool `yaml:"exponential"`
}

type yamlStep struct {
	Agent     string                 `yaml:"agent"`
	Action    string                 `yaml:"action"`
	Params    map[string]interface{} `yaml:"params,omitempty"`
	Bindings  []yamlBinding          `yaml:"bindings,omitempty"`
	TimeoutMS int                    `yaml:"timeout_ms,omitempty"`
	Group     string                 `yaml:"group,omitempty"`
}

// yamlOnStepFailure decodes either a scalar string or a {retry: {...}}
// mapping, mirroring wireOnStepFailure's JSON union handling.
type yamlOnStepFailure struct {
	simple string
	retry  *yamlRetry
}

func (y *yamlOnStepFailure) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.ScalarNode {
		return value.Decode(&y.simple)
	}
	var obj struct {
		Retry *yamlRetry `yaml:"retry"`
	}
	if err := value.Decode(&obj); err != nil {
		return fmt.Errorf("on_step_failure: %w", err)
	}
	if obj.Retry == nil {
		return fmt.Errorf("on_step_failure: expected a string or a retry mapping")
	}
	y.retry = obj.Retry
	return nil
}

type yamlDefinition struct {
	Steps             []yamlStep        `yaml:"steps"`
	WorkflowTimeoutMS int               `yaml:"workflow_timeout_ms,omitempty"`
	OnStepFailure     yamlOnStepFailure `yaml:"on_step_failure,omitempty"`
}

// UnmarshalDefinitionYAML parses a YAML workflow definition using the same
// field names as the JSON contract (spec §6), then validates it.
func UnmarshalDefinitionYAML(data []byte) (workflow.WorkflowDefinition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var y yamlDefinition
	if err := dec.Decode(&y); err != nil {
		return workflow.WorkflowDefinition{}, coorderrors.Wrap(coorderrors.KindConfig, "malformed workflow definition", err)
	}

	def := workflow.WorkflowDefinition{WorkflowTimeoutMS: y.WorkflowTimeoutMS}
	for _, ys := range y.Steps {
		step := workflow.Step{
			Agent:     ys.Agent,
			Action:    ys.Action,
			Params:    ys.Params,
			TimeoutMS: ys.TimeoutMS,
			Group:     ys.Group,
		}
		for _, b := range ys.Bindings {
			step.Bindings = append(step.Bindings, workflow.Binding{Param: b.Param, FromStep: b.FromStep, FromField: b.FromField})
		}
		def.Steps = append(def.Steps, step)
	}

	if y.OnStepFailure.retry != nil {
		def.OnStepFailure = workflow.OnFailureRetry
		def.Retry = workflow.RetryPolicy{
			MaxAttempts: y.OnStepFailure.retry.MaxAttempts,
			Backoff:     msToDuration(y.OnStepFailure.retry.BackoffMS),
			Exponential: y.OnStepFailure.retry.Exponential,
		}
	} else {
		switch y.OnStepFailure.simple {
		case "", "abort":
			def.OnStepFailure = workflow.OnFailureAbort
		case "continue":
			def.OnStepFailure = workflow.OnFailureContinue
		default:
			return workflow.WorkflowDefinition{}, coorderrors.Newf(coorderrors.KindConfig, "unrecognized on_step_failure %q", y.OnStepFailure.simple)
		}
	}

	return def, def.Validate()
}

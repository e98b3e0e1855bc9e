package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"goa.design/tandem/agent"
	"goa.design/tandem/coordinator"
	"goa.design/tandem/coordinator/workflowio"
	coorderrors "goa.design/tandem/errors"
	"goa.design/tandem/internal/examplemodule"
	"goa.design/tandem/registry"
	"goa.design/tandem/telemetry"
	"goa.design/tandem/workflow"
)

// exitError carries the process exit code a failure should produce, per
// spec §6: 0 on ok, 1 on any other terminal status, 2 on ConfigError.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func exitCodeFor(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return 1
}

func newRunCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <workflow-file>",
		Short: "Execute a workflow definition and print its result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorkflowFile(cmd, args[0])
		},
	}
	return cmd
}

func runWorkflowFile(cmd *cobra.Command, path string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return &exitError{code: 2, err: fmt.Errorf("reading %s: %w", path, err)}
	}

	def, err := parseDefinition(path, data)
	if err != nil {
		return &exitError{code: 2, err: err}
	}

	reg := registry.New()
	mustRegister(reg, examplemodule.Arithmetic())
	mustRegister(reg, examplemodule.Sleeper("B", 10*time.Millisecond))
	mustRegister(reg, examplemodule.Sleeper("C", 10*time.Millisecond))
	mustRegister(reg, examplemodule.Sleeper("D", 10*time.Millisecond))
	mustRegister(reg, examplemodule.Merger())

	if err := reg.StartAll(ctx); err != nil {
		return &exitError{code: 2, err: err}
	}

	co := coordinator.New(reg, coordinator.WithLogger(telemetry.NewClueLogger()))

	result, err := co.Submit(ctx, def)
	if err != nil {
		ce := coorderrors.FromError(err)
		code := 1
		if ce.Kind == coorderrors.KindConfig || ce.Kind == coorderrors.KindUnknownAgent || ce.Kind == coorderrors.KindUnknownAction {
			code = 2
		}
		return &exitError{code: code, err: err}
	}

	out, err := workflowio.MarshalResult(result)
	if err != nil {
		return &exitError{code: 1, err: err}
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	if result.Status != workflow.WorkflowOK {
		return &exitError{code: 1, err: fmt.Errorf("workflow terminated with status %q", result.Status)}
	}
	return nil
}

func parseDefinition(path string, data []byte) (workflow.WorkflowDefinition, error) {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return workflowio.UnmarshalDefinitionYAML(data)
	default:
		return workflowio.UnmarshalDefinition(data)
	}
}

// mustRegister registers a built-in example agent. A failure here indicates
// a bug in the example agents themselves, not in a caller-supplied workflow
// definition, so it panics rather than surfacing as a CLI exit code.
func mustRegister(reg *registry.Registry, a agent.Agent) {
	if err := reg.Register(a, false); err != nil {
		panic(err)
	}
}

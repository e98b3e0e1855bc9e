// Command coord is a thin CLI host for the tandem coordinator, exercising
// the library the way a GUI or web backend would: register agents, submit a
// workflow definition, print the result (spec §6's CLI surface). Grounded on
// the teacher pack's tombee-conductor/internal/cli root-command shape
// (SilenceUsage/SilenceErrors + RunE returning an error cobra reports),
// adapted to coord's single `run` subcommand.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"goa.design/clue/log"
)

func main() {
	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))

	root := newRootCommand()
	root.SetContext(ctx)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "coord:", err)
		os.Exit(exitCodeFor(err))
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "coord",
		Short:         "Run a tandem workflow definition and print its result",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.AddCommand(newRunCommand())
	return cmd
}

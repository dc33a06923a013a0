package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// ExecOptions holds flags for the exec command.
type ExecOptions struct {
	*RootOptions
	Collection string
	Document   string
}

// NewExecCommand creates the exec command.
func NewExecCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExecOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "exec --document <id> <script.js>",
		Short: "Run a script on one document",
		Long: `Run a script as a one-off rule on a stored document, commit what it
requests and drain the cascade it starts. The merged changes are printed
as JSON, side effects included.

Examples:
  automaton exec --document 0191c... bump.js
  automaton exec --collection tasks --document 0191c... bump.js`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExec(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Collection, "collection", "", "expected collection of the document")
	cmd.Flags().StringVar(&opts.Document, "document", "", "document id (required)")
	_ = cmd.MarkFlagRequired("document")

	return cmd
}

func runExec(opts *ExecOptions, scriptPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	source, err := os.ReadFile(scriptPath)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "reading script", err)
	}

	env, err := openEnvironment(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "opening database", err)
	}
	defer env.Close()

	ctx := cmd.Context()
	if opts.Collection != "" {
		doc, err := env.store.GetDocument(ctx, opts.Document)
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, "loading document", err)
		}
		if doc.CollectionID != opts.Collection {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound,
				fmt.Sprintf("document %s belongs to %s, not %s", doc.ID, doc.CollectionID, opts.Collection), nil)
		}
	}

	if _, err := env.engine.RunScript(ctx, env.user, opts.Document, string(source)); err != nil {
		return formatter.Fail(ExitFailure, ErrCodeTask, "running script", err)
	}
	if err := env.engine.Drain(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "running automations", err)
	}

	merged := env.collector.Tracker()
	if formatter.Format == "json" {
		if err := formatter.Success(merged); err != nil {
			return err
		}
	} else {
		data, err := merged.JSON()
		if err != nil {
			return err
		}
		fmt.Fprintln(formatter.Writer, string(data))
	}

	if err := env.collector.Err(); err != nil {
		return WrapExitError(ExitFailure, "cascade tasks failed", err)
	}
	return nil
}

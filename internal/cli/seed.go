package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/automaton/internal/fixture"
	"github.com/roach88/automaton/internal/pipeline"
)

// SeedResult is the output of the seed command.
type SeedResult struct {
	Documents   int               `json:"documents"`
	Links       int               `json:"links"`
	Invocations int               `json:"invocations"`
	Refs        map[string]string `json:"refs"`
	TaskErrors  []string          `json:"task_errors,omitempty"`
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <fixture.yaml>",
		Short: "Create the documents and links of a YAML fixture",
		Long: `Create every document and link of a fixture in one batch, then run the
automations they trigger until the cascade settles.

Exit codes:
  0 - Seeded, every task succeeded
  1 - Seeded, but some tasks failed
  2 - Command error (unreadable fixture, rejected batch, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(rootOpts, args[0], cmd)
		},
	}
}

func runSeed(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	fx, err := fixture.Load(path)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "loading fixture", err)
	}
	ops, err := fx.Operations()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeInvalid, "converting fixture", err)
	}

	env, err := openEnvironment(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "opening database", err)
	}
	defer env.Close()

	ctx := cmd.Context()
	tracker, err := env.engine.Execute(ctx, pipeline.Batch{User: env.user, Operations: ops})
	if err != nil {
		code := ErrCodeGeneric
		if pipeline.IsValidationError(err) {
			code = ErrCodeInvalid
		}
		return formatter.Fail(ExitCommandError, code, "seeding fixture", err)
	}
	if err := env.engine.Drain(ctx); err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "running automations", err)
	}

	merged := env.collector.Tracker()
	result := SeedResult{
		Documents:   len(tracker.CreatedDocuments),
		Links:       len(tracker.CreatedLinks),
		Invocations: len(merged.Invocations),
		Refs:        tracker.Tokens,
	}
	taskErr := env.collector.Err()
	if taskErr != nil {
		result.TaskErrors = []string{taskErr.Error()}
	}

	if formatter.Format == "json" {
		if err := formatter.Success(result); err != nil {
			return err
		}
	} else {
		w := formatter.Writer
		fmt.Fprintf(w, "✓ Seeded %d document(s), %d link(s); %d invocation(s) ran\n",
			result.Documents, result.Links, result.Invocations)
		refs := make([]string, 0, len(result.Refs))
		for ref := range result.Refs {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			fmt.Fprintf(w, "  %s = %s\n", ref, result.Refs[ref])
		}
		if taskErr != nil {
			fmt.Fprintf(w, "✗ Some tasks failed:\n  %v\n", taskErr)
		}
	}

	if taskErr != nil {
		return WrapExitError(ExitFailure, "tasks failed", taskErr)
	}
	return nil
}

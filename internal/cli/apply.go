package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/automaton/internal/compiler"
)

// ApplyResult is the output of the apply command.
type ApplyResult struct {
	Created  []string                `json:"created"`
	Updated  []string                `json:"updated"`
	Warnings []compiler.CycleWarning `json:"warnings,omitempty"`
}

// NewApplyCommand creates the apply command.
func NewApplyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "apply <project>",
		Short: "Compile a CUE project and install it",
		Long: `Compile the collections and link types of a CUE project (a .cue file
or a package directory), validate them and create or update them in the
database. Document and usage counters of existing objects are kept.

Examples:
  automaton apply ./project.cue
  automaton apply ./project --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(rootOpts, args[0], cmd)
		},
	}
}

func runApply(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	project, err := compiler.Load(path)
	if err != nil {
		var compileErr *compiler.CompileError
		if errors.As(err, &compileErr) && compileErr.Pos.IsValid() {
			fmt.Fprintf(formatter.GetErrWriter(), "%s:%d:%d\n",
				compileErr.Pos.Filename(), compileErr.Pos.Line(), compileErr.Pos.Column())
		}
		return formatter.Fail(ExitCommandError, ErrCodeCompile, "compiling project", err)
	}
	formatter.VerboseLog("Compiled %d collection(s), %d link type(s)", len(project.Collections), len(project.LinkTypes))

	if verrs := compiler.Validate(project); len(verrs) > 0 {
		return outputValidationErrors(formatter, verrs)
	}

	warnings := compiler.AnalyzeCycles(project)
	for _, w := range warnings {
		formatter.VerboseLog("warning: %s", w.Message)
	}

	env, err := openEnvironment(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "opening database", err)
	}
	defer env.Close()

	applied, err := compiler.Apply(cmd.Context(), env.store, project)
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "applying project", err)
	}

	result := ApplyResult{Created: applied.Created, Updated: applied.Updated, Warnings: warnings}
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "✓ Applied %s: %d created, %d updated\n", path, len(result.Created), len(result.Updated))
	for _, id := range result.Created {
		fmt.Fprintf(w, "  + %s\n", id)
	}
	for _, id := range result.Updated {
		fmt.Fprintf(w, "  ~ %s\n", id)
	}
	for _, warning := range warnings {
		fmt.Fprintf(w, "  ! %s\n", warning.Message)
	}
	return nil
}

func outputValidationErrors(formatter *OutputFormatter, verrs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		details := make([]CLIError, len(verrs))
		for i, v := range verrs {
			details[i] = CLIError{Code: v.Code, Message: v.Field + ": " + v.Message}
		}
		_ = formatter.Error(ErrCodeInvalid, fmt.Sprintf("project has %d validation error(s)", len(verrs)), details)
	} else {
		fmt.Fprintln(formatter.Writer, "✗ Validation failed")
		for _, v := range verrs {
			fmt.Fprintf(formatter.Writer, "  %s\n", v.Error())
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(verrs)))
}

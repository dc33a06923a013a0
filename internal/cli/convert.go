package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/automaton/internal/constraint"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/query"
)

// ConvertOptions holds flags for the convert command.
type ConvertOptions struct {
	*RootOptions
	Collection string
	Attribute  string
	To         string
	TypeConfig string // JSON object
	DryRun     bool
}

// ConvertResult is the output of the convert command.
type ConvertResult struct {
	Converter string   `json:"converter,omitempty"`
	From      string   `json:"from"`
	To        string   `json:"to"`
	Patched   []string `json:"patched"`
	DryRun    bool     `json:"dry_run,omitempty"`
}

// NewConvertCommand creates the convert command.
func NewConvertCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConvertOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "convert --collection <id> --attribute <id> --to <type>",
		Short: "Change an attribute's constraint and rewrite stored values",
		Long: `Change the constraint type of an attribute. Stored values are rewritten
by the converter registered for the type pair (text to boolean, text to
duration, select to text, ...). Pairs without a converter only change the
constraint.

A Duration constraint without --type-config uses the configured duration
schema.

Examples:
  automaton convert --collection tasks --attribute done --to Boolean
  automaton convert --collection tasks --attribute state --to Select \
    --type-config '{"options": ["open", "closed"]}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConvert(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Collection, "collection", "", "collection id (required)")
	cmd.Flags().StringVar(&opts.Attribute, "attribute", "", "attribute id (required)")
	cmd.Flags().StringVar(&opts.To, "to", "", "target constraint type (required)")
	cmd.Flags().StringVar(&opts.TypeConfig, "type-config", "", "target constraint config as a JSON object")
	cmd.Flags().BoolVar(&opts.DryRun, "dry-run", false, "report the patches without writing them")
	_ = cmd.MarkFlagRequired("collection")
	_ = cmd.MarkFlagRequired("attribute")
	_ = cmd.MarkFlagRequired("to")

	return cmd
}

func runConvert(opts *ConvertOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	to, err := targetConstraint(opts)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeConversion, "target constraint", err)
	}

	env, err := openEnvironment(opts.RootOptions)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "opening database", err)
	}
	defer env.Close()

	ctx := cmd.Context()
	coll, err := env.store.GetCollection(ctx, opts.Collection)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, "loading collection", err)
	}
	attr := coll.Attribute(opts.Attribute)
	if attr == nil {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound,
			fmt.Sprintf("attribute %s not found in %s", opts.Attribute, coll.ID), nil)
	}
	from := attr.Constraint

	docs, err := env.store.SearchDocuments(ctx, query.Documents{CollectionID: coll.ID})
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeGeneric, "loading documents", err)
	}
	patches := constraint.ConvertAttribute(attr.ID, from, to, docs)

	result := ConvertResult{
		Converter: constraint.Name(ir.TypeOf(from), to.Type),
		From:      string(ir.TypeOf(from)),
		To:        string(to.Type),
		Patched:   make([]string, 0, len(patches)),
		DryRun:    opts.DryRun,
	}
	for _, p := range patches {
		result.Patched = append(result.Patched, p.DocumentID)
	}

	if !opts.DryRun {
		for _, p := range patches {
			if _, err := env.store.PatchDocumentData(ctx, p.DocumentID, p.Data); err != nil {
				return formatter.Fail(ExitFailure, ErrCodeGeneric, "patching document "+p.DocumentID, err)
			}
		}
		attr.Constraint = to
		if err := env.store.UpdateCollection(ctx, coll); err != nil {
			return formatter.Fail(ExitFailure, ErrCodeGeneric, "updating collection", err)
		}
	}

	if formatter.Format == "json" {
		return formatter.Success(result)
	}
	verb := "Converted"
	if opts.DryRun {
		verb = "Would convert"
	}
	fmt.Fprintf(formatter.Writer, "✓ %s %s.%s from %s to %s: %d document(s) patched\n",
		verb, coll.ID, attr.ID, result.From, result.To, len(result.Patched))
	if result.Converter != "" {
		formatter.VerboseLog("converter: %s", result.Converter)
	}
	return nil
}

// targetConstraint builds the constraint named by --to and --type-config.
func targetConstraint(opts *ConvertOptions) (*ir.Constraint, error) {
	typ := ir.ConstraintType(opts.To)
	if !ir.ValidConstraintTypes[typ] {
		return nil, fmt.Errorf("unknown constraint type %q", opts.To)
	}
	if opts.TypeConfig == "" {
		if typ == ir.ConstraintDuration {
			return opts.settings().DurationConstraint(), nil
		}
		return &ir.Constraint{Type: typ}, nil
	}

	var cfg ir.IRObject
	if err := json.Unmarshal([]byte(opts.TypeConfig), &cfg); err != nil {
		return nil, fmt.Errorf("parse --type-config: %w", err)
	}
	return &ir.Constraint{Type: typ, Config: cfg}, nil
}

package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/automaton/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // path to a .cue config file
	DB      string // overrides the configured database
	User    string // id of the user the commands act as

	// MetricsOut receives the engine metrics after the command, "-" for
	// stderr.
	MetricsOut string

	stderr io.Writer

	// cfg is loaded by the root command before any subcommand runs.
	cfg *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the automaton CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "automaton",
		Short: "Automation engine for collections, links and rules",
		Long: `Run document automation: computed attributes, script rules and
auto-links, cascading through a SQLite-backed store.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.Config, "config", "c", "automaton.cue", "config file")
	cmd.PersistentFlags().StringVar(&opts.DB, "db", "", "database path (defaults to the configured one)")
	cmd.PersistentFlags().StringVar(&opts.User, "user", "cli", "user id the commands act as")
	cmd.PersistentFlags().StringVar(&opts.MetricsOut, "metrics-out", "", "write engine metrics in Prometheus text format to this file (- for stderr)")

	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewSeedCommand(opts))
	cmd.AddCommand(NewExecCommand(opts))
	cmd.AddCommand(NewConvertCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup validates global flags, loads the configuration and installs the
// logger.
func (o *RootOptions) setup(stderr io.Writer) error {
	if !isValidFormat(o.Format) {
		return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", o.Format, ValidFormats))
	}
	cfg, err := config.Load(o.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "loading config", err)
	}
	o.cfg = cfg
	o.stderr = stderr

	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))
	return nil
}

// settings returns the loaded configuration, or the defaults when a command
// runs without the root command (tests).
func (o *RootOptions) settings() *config.Config {
	if o.cfg == nil {
		o.cfg = config.Default()
	}
	return o.cfg
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

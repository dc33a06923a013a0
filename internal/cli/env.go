package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/roach88/automaton/internal/engine"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/metrics"
	"github.com/roach88/automaton/internal/store"
)

// environment is the store and engine a command works against.
type environment struct {
	store     *store.Store
	engine    *engine.Engine
	collector *engine.Collector
	user      ir.User

	registry   *prometheus.Registry
	metricsOut string
	stderr     io.Writer
}

// openEnvironment opens the configured database and builds an engine over
// it. Cascades are processed with Drain on the calling goroutine.
func openEnvironment(opts *RootOptions) (*environment, error) {
	cfg := opts.settings()
	path := cfg.Database
	if opts.DB != "" {
		path = opts.DB
	}

	st, err := store.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", path, err)
	}

	registry := prometheus.NewRegistry()
	collector := engine.NewCollector()
	eng := engine.New(st,
		engine.WithWorkers(cfg.Workers),
		engine.WithMaxSteps(cfg.MaxSteps),
		engine.WithLimits(cfg.Limits()),
		engine.WithNotifier(engine.LogNotifier{}, collector),
		engine.WithMetrics(metrics.NewMetrics(registry)),
	)
	user := opts.User
	if user == "" {
		user = "cli"
	}
	return &environment{
		store:     st,
		engine:    eng,
		collector: collector,
		user:      ir.User{ID: user},

		registry:   registry,
		metricsOut: opts.MetricsOut,
		stderr:     opts.stderr,
	}, nil
}

// Close writes the metrics when requested and closes the store.
func (e *environment) Close() error {
	if e.metricsOut != "" {
		if err := e.writeMetrics(); err != nil {
			slog.Warn("failed to write metrics", "path", e.metricsOut, "error", err)
		}
	}
	return e.store.Close()
}

func (e *environment) writeMetrics() error {
	if e.metricsOut == "-" {
		w := e.stderr
		if w == nil {
			w = os.Stderr
		}
		return metrics.WriteText(w, e.registry)
	}
	f, err := os.Create(e.metricsOut)
	if err != nil {
		return err
	}
	if err := metrics.WriteText(f, e.registry); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

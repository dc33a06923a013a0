package engine

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/pipeline"
)

// Outcome is the result of one task, or of a direct commit when TaskID is
// empty.
type Outcome struct {
	// Step is the logical clock value of the processed invocation, 0 for
	// direct commits.
	Step       int64
	Invocation *ir.Invocation
	TaskID     string
	// Tracker is nil when the task produced nothing to commit or failed
	// before committing.
	Tracker *pipeline.ChangesTracker
	Err     error
}

// Notifier receives every outcome. It stands in for the client push
// channel. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, o Outcome)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, o Outcome)

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, o Outcome) { f(ctx, o) }

// LogNotifier logs outcomes with slog. It is the default.
type LogNotifier struct{}

// Notify implements Notifier.
func (LogNotifier) Notify(_ context.Context, o Outcome) {
	attrs := []any{"step", o.Step, "task", o.TaskID}
	if o.Invocation != nil {
		attrs = append(attrs,
			"invocation_id", o.Invocation.ID,
			"root_id", o.Invocation.RootID,
			"trigger", o.Invocation.Trigger,
		)
	}
	if o.Err != nil {
		slog.Warn("task failed", append(attrs, "error", o.Err)...)
		return
	}
	if o.Tracker == nil {
		slog.Debug("task produced no changes", attrs...)
		return
	}
	slog.Info("changes committed", append(attrs,
		"created_documents", len(o.Tracker.CreatedDocuments),
		"updated_documents", len(o.Tracker.UpdatedDocuments),
		"removed_documents", len(o.Tracker.RemovedDocuments),
		"created_links", len(o.Tracker.CreatedLinks),
		"removed_links", len(o.Tracker.RemovedLinks),
		"messages", len(o.Tracker.Messages),
	)...)
}

// Collector merges every tracker it is notified of and keeps the errors.
type Collector struct {
	mu      sync.Mutex
	tracker *pipeline.ChangesTracker
	errs    []error
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{tracker: &pipeline.ChangesTracker{
		Collections: make(map[string]*ir.Collection),
		LinkTypes:   make(map[string]*ir.LinkType),
	}}
}

// Notify implements Notifier.
func (c *Collector) Notify(_ context.Context, o Outcome) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if o.Err != nil {
		c.errs = append(c.errs, o.Err)
	}
	c.tracker.Merge(o.Tracker)
}

// Tracker returns the merged changes.
func (c *Collector) Tracker() *pipeline.ChangesTracker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tracker
}

// Err joins every error seen, nil if there were none.
func (c *Collector) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return errors.Join(c.errs...)
}

type multiNotifier []Notifier

func (m multiNotifier) Notify(ctx context.Context, o Outcome) {
	for _, n := range m {
		n.Notify(ctx, o)
	}
}

package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/roach88/automaton/internal/autolink"
	"github.com/roach88/automaton/internal/ids"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/metrics"
	"github.com/roach88/automaton/internal/permission"
	"github.com/roach88/automaton/internal/pipeline"
	"github.com/roach88/automaton/internal/script"
	"github.com/roach88/automaton/internal/store"
)

// DefaultMaxSteps is the default maximum number of invocations per root
// flow.
const DefaultMaxSteps = 1000

// DefaultWorkers is the default size of the worker pool.
const DefaultWorkers = 4

// Engine is the task executor.
//
// Thread-safety model:
//   - Submit, Execute: safe from any goroutine
//   - Run: call once; it owns the worker goroutines
//   - Drain: processes on the calling goroutine, may run next to Run
type Engine struct {
	store    *store.Store
	runner   *script.Runner
	matcher  *autolink.Matcher
	pipeline *pipeline.Pipeline

	queue    *invocationQueue
	clock    *Clock
	cycles   *CycleDetector
	notifier Notifier
	metrics  *metrics.Metrics
	ids      ids.Generator

	workers  int
	maxSteps int
	limits   script.Limits
	resolver permission.Resolver
	scope    permission.Scope

	mu      sync.Mutex
	quotas  map[string]*QuotaEnforcer // per root flow
	pending map[string]int            // per root flow: queued or running invocations
}

// Option configures an Engine.
type Option func(*Engine)

// WithWorkers sets the number of worker goroutines started by Run.
func WithWorkers(n int) Option {
	return func(e *Engine) { e.workers = n }
}

// WithMaxSteps sets the maximum invocations per root flow.
func WithMaxSteps(maxSteps int) Option {
	return func(e *Engine) { e.maxSteps = maxSteps }
}

// WithLimits sets the per-task script ceilings.
func WithLimits(l script.Limits) Option {
	return func(e *Engine) { e.limits = l }
}

// WithNotifier replaces the default LogNotifier. Several notifiers are
// called in order.
func WithNotifier(ns ...Notifier) Option {
	return func(e *Engine) {
		if len(ns) == 1 {
			e.notifier = ns[0]
			return
		}
		e.notifier = multiNotifier(ns)
	}
}

// WithMetrics instruments the engine and everything it drives.
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithIDGenerator sets the generator for correlation tokens and root ids.
func WithIDGenerator(g ids.Generator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithResolver restricts auto-link matching to documents the initiating
// user may read.
func WithResolver(r permission.Resolver, scope permission.Scope) Option {
	return func(e *Engine) {
		e.resolver = r
		e.scope = scope
	}
}

// New creates an Engine over s.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:    s,
		queue:    newInvocationQueue(),
		clock:    NewClock(),
		cycles:   NewCycleDetector(),
		notifier: LogNotifier{},
		ids:      ids.UUIDv7Generator{},
		workers:  DefaultWorkers,
		maxSteps: DefaultMaxSteps,
		limits:   script.DefaultLimits,
		quotas:   make(map[string]*QuotaEnforcer),
		pending:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.workers <= 0 {
		e.workers = 1
	}

	e.runner = script.NewRunner(s,
		script.WithLimits(e.limits),
		script.WithIDGenerator(e.ids),
		script.WithMetrics(e.metrics),
	)
	matcherOpts := []autolink.Option{
		autolink.WithIDGenerator(e.ids),
		autolink.WithMetrics(e.metrics),
	}
	if e.resolver != nil {
		matcherOpts = append(matcherOpts, autolink.WithResolver(e.resolver, e.scope))
	}
	e.matcher = autolink.NewMatcher(s, matcherOpts...)
	e.pipeline = pipeline.New(s,
		pipeline.WithSink(e),
		pipeline.WithIDGenerator(e.ids),
		pipeline.WithMetrics(e.metrics),
	)
	return e
}

// Submit queues an invocation. It never blocks. Invocations submitted after
// Stop are dropped.
func (e *Engine) Submit(inv *ir.Invocation) {
	e.track(inv.RootID, 1)
	if !e.queue.Enqueue(inv) {
		e.track(inv.RootID, -1)
		slog.Warn("engine stopped, invocation dropped", "invocation_id", inv.ID, "root_id", inv.RootID)
		return
	}
	e.metrics.SetQueueDepth(e.queue.Len())
}

// Execute commits a direct user action. Cascades it derives are queued for
// the workers or Drain. Interactive actions carry a correlation id.
func (e *Engine) Execute(ctx context.Context, b pipeline.Batch) (*pipeline.ChangesTracker, error) {
	tracker, err := e.pipeline.Commit(ctx, b)
	e.notifier.Notify(ctx, Outcome{Tracker: tracker, Err: err})
	return tracker, err
}

// Pending returns the number of queued invocations.
func (e *Engine) Pending() int {
	return e.queue.Len()
}

// Run starts the worker pool and blocks until the context is cancelled or
// Stop is called and the queue is empty.
//
// ERROR HANDLING: task failures are logged and reported to the Notifier;
// the worker moves on to the next task.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting", "workers", e.workers, "max_steps", e.maxSteps)

	var wg sync.WaitGroup
	for i := 0; i < e.workers; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			e.work(ctx, worker)
		}(i)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		slog.Info("engine stopping: context cancelled")
		return err
	}
	slog.Info("engine stopping: queue closed")
	return nil
}

func (e *Engine) work(ctx context.Context, worker int) {
	for {
		if ctx.Err() != nil {
			return
		}
		if inv, ok := e.queue.TryDequeue(); ok {
			e.metrics.SetQueueDepth(e.queue.Len())
			e.process(ctx, inv)
			continue
		}

		select {
		case <-ctx.Done():
			return
		case _, open := <-e.queue.Wait():
			if !open && e.queue.Len() == 0 {
				slog.Debug("worker exiting", "worker", worker)
				return
			}
		}
	}
}

// Drain processes queued invocations on the calling goroutine until the
// queue is empty, including the cascades they derive.
func (e *Engine) Drain(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		inv, ok := e.queue.TryDequeue()
		if !ok {
			return nil
		}
		e.metrics.SetQueueDepth(e.queue.Len())
		e.process(ctx, inv)
	}
}

// Stop closes the queue. Run returns once the workers have emptied it.
func (e *Engine) Stop() {
	e.queue.Close()
}

// process runs every task of one invocation.
func (e *Engine) process(ctx context.Context, inv *ir.Invocation) {
	step := e.clock.Next()
	start := time.Now()
	defer e.track(inv.RootID, -1)

	slog.Debug("processing invocation",
		"step", step,
		"invocation_id", inv.ID,
		"root_id", inv.RootID,
		"trigger", inv.Trigger,
		"kind", inv.Kind,
		"entity_id", inv.EntityID(),
		"depth", inv.Depth,
	)

	status := "ok"
	if err := e.checkQuota(inv.RootID); err != nil {
		slog.Error("max steps quota exceeded",
			"root_id", inv.RootID,
			"invocation_id", inv.ID,
			"limit", e.maxSteps,
			"event", "quota_exceeded",
		)
		e.metrics.CeilingHit("max_steps")
		e.notifier.Notify(ctx, Outcome{Step: step, Invocation: inv, Err: err})
		e.metrics.Invocation(string(inv.Trigger), "quota_exceeded", time.Since(start))
		return
	}

	tasks, err := e.tasksFor(ctx, inv)
	if err != nil {
		e.notifier.Notify(ctx, Outcome{Step: step, Invocation: inv, Err: err})
		e.metrics.Invocation(string(inv.Trigger), "failed", time.Since(start))
		return
	}

	stateHash, err := ir.StateHash(inv.Data())
	if err != nil {
		slog.Warn("state hash failed", "invocation_id", inv.ID, "error", err)
	}
	for _, t := range tasks {
		if !e.cycles.CheckAndRecord(inv.RootID, t.id, inv.EntityID(), stateHash) {
			cerr := NewCycleError(inv.RootID, t.id, stateHash)
			slog.Warn("cycle detected, task skipped",
				"root_id", inv.RootID,
				"task", t.id,
				"entity_id", inv.EntityID(),
				"state_hash", stateHash,
			)
			e.metrics.CascadeSkipped("cycle")
			e.notifier.Notify(ctx, Outcome{Step: step, Invocation: inv, TaskID: t.id, Err: cerr})
			continue
		}

		tracker, err := e.runTask(ctx, inv, t)
		if err != nil {
			status = "failed"
			slog.Error("task failed",
				"step", step,
				"invocation_id", inv.ID,
				"task", t.id,
				"error", err,
			)
		}
		e.notifier.Notify(ctx, Outcome{Step: step, Invocation: inv, TaskID: t.id, Tracker: tracker, Err: err})
	}
	e.metrics.Invocation(string(inv.Trigger), status, time.Since(start))
}

// checkQuota counts one step against the root flow.
func (e *Engine) checkQuota(rootID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	q, ok := e.quotas[rootID]
	if !ok {
		q = NewQuotaEnforcer(e.maxSteps)
		e.quotas[rootID] = q
	}
	if err := q.Check(rootID); err != nil {
		return NewQuotaError(rootID, q.Current(), q.MaxSteps(), err)
	}
	return nil
}

// track counts the invocations of a root flow that are queued or running.
// A flow with none left is finished and its guards are released.
func (e *Engine) track(rootID string, delta int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.pending[rootID] += delta
	if e.pending[rootID] > 0 {
		return
	}
	delete(e.pending, rootID)
	delete(e.quotas, rootID)
	e.cycles.Clear(rootID)
}

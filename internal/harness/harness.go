package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/roach88/automaton/internal/compiler"
	"github.com/roach88/automaton/internal/engine"
	"github.com/roach88/automaton/internal/fixture"
	"github.com/roach88/automaton/internal/ids"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/operation"
	"github.com/roach88/automaton/internal/pipeline"
	"github.com/roach88/automaton/internal/store"
	"github.com/roach88/automaton/internal/testutil"
)

// defaultUser initiates actions of scenarios that name no user.
var defaultUser = ir.User{ID: "scenario"}

// Run executes a scenario in a fresh database and evaluates its assertions.
//
// Errors returned here are setup failures (project does not compile,
// database cannot be opened). Failing steps and assertions are reported in
// the Result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	dir, err := os.MkdirTemp("", "automaton-scenario-*")
	if err != nil {
		return nil, fmt.Errorf("create scenario dir: %w", err)
	}
	defer os.RemoveAll(dir)

	st, err := store.Open(filepath.Join(dir, "scenario.db"),
		store.WithIDGenerator(ids.NewSequenceGenerator("id")),
		store.WithClock(testutil.NewStepClock().Now),
	)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := installProject(ctx, st, scenario.Project); err != nil {
		return nil, err
	}

	r := newRunner(st, scenario)
	result := r.result

	if scenario.Fixture != "" {
		if err := r.seed(ctx, scenario.Fixture); err != nil {
			return nil, err
		}
	}

	for i, step := range scenario.Flow {
		if err := r.step(ctx, i, step); err != nil {
			result.AddError(fmt.Sprintf("flow[%d] %s: %v", i, step.Action, err))
			// Later steps may depend on this one.
			break
		}
	}

	r.finish()
	for _, a := range scenario.Assertions {
		if err := checkAssertion(ctx, st, result, a); err != nil {
			result.AddError(err.Error())
		}
	}

	slog.Debug("scenario finished",
		"scenario", scenario.Name,
		"pass", result.Pass,
		"invocations", len(result.Trace),
	)
	return result, nil
}

// RunFile loads a scenario file and runs it.
func RunFile(ctx context.Context, path string) (*Scenario, *Result, error) {
	scenario, err := LoadScenario(path)
	if err != nil {
		return nil, nil, err
	}
	result, err := Run(ctx, scenario)
	if err != nil {
		return scenario, nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}
	return scenario, result, nil
}

func installProject(ctx context.Context, st *store.Store, path string) error {
	project, err := compiler.Load(path)
	if err != nil {
		return fmt.Errorf("load project: %w", err)
	}
	if verrs := compiler.Validate(project); len(verrs) > 0 {
		errs := make([]error, len(verrs))
		for i, v := range verrs {
			errs[i] = v
		}
		return fmt.Errorf("invalid project: %w", errors.Join(errs...))
	}
	if _, err := compiler.Apply(ctx, st, project); err != nil {
		return fmt.Errorf("apply project: %w", err)
	}
	return nil
}

// runner replays the flow of one scenario.
type runner struct {
	store  *store.Store
	engine *engine.Engine
	user   ir.User
	result *Result

	mu     sync.Mutex
	events []*ir.Invocation
}

func newRunner(st *store.Store, s *Scenario) *runner {
	r := &runner{
		store:  st,
		user:   defaultUser,
		result: NewResult(),
	}
	if s.User.ID != "" {
		r.user = ir.User{ID: s.User.ID, Email: s.User.Email}
	}

	opts := []engine.Option{
		engine.WithNotifier(engine.NotifierFunc(r.notify)),
		engine.WithIDGenerator(ids.NewSequenceGenerator("gen")),
		engine.WithWorkers(1),
	}
	if s.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(s.MaxSteps))
	}
	r.engine = engine.New(st, opts...)
	return r
}

// notify is called synchronously by Execute and Drain.
func (r *runner) notify(_ context.Context, o engine.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o.Err != nil && o.Invocation != nil {
		r.result.TaskErrors = append(r.result.TaskErrors, o.Err.Error())
	}
	if o.Tracker == nil {
		return
	}
	r.events = append(r.events, o.Tracker.Invocations...)
	r.result.Messages = append(r.result.Messages, o.Tracker.Messages...)
}

func (r *runner) seed(ctx context.Context, path string) error {
	fx, err := fixture.Load(path)
	if err != nil {
		return err
	}
	ops, err := fx.Operations()
	if err != nil {
		return fmt.Errorf("fixture %s: %w", path, err)
	}
	tracker, err := r.engine.Execute(ctx, pipeline.Batch{User: r.user, Operations: ops})
	if err != nil {
		return fmt.Errorf("seed fixture %s: %w", path, err)
	}
	r.remember(tracker)
	return r.engine.Drain(ctx)
}

// step commits one action and drains its cascades.
func (r *runner) step(ctx context.Context, index int, s Step) error {
	op, err := r.operation(index, s)
	if err != nil {
		return err
	}
	batch := pipeline.Batch{User: r.user, Operations: []operation.Operation{op}}
	if s.Interactive {
		batch.CorrelationID = fmt.Sprintf("client-%d", index)
	}

	tracker, err := r.engine.Execute(ctx, batch)
	switch {
	case s.ExpectError != "" && err == nil:
		return fmt.Errorf("expected error containing %q, commit succeeded", s.ExpectError)
	case s.ExpectError != "":
		if !containsFold(err.Error(), s.ExpectError) {
			return fmt.Errorf("expected error containing %q, got: %w", s.ExpectError, err)
		}
		return nil
	case err != nil:
		return err
	}
	r.remember(tracker)
	return r.engine.Drain(ctx)
}

func (r *runner) operation(index int, s Step) (operation.Operation, error) {
	switch s.Action {
	case ActionCreate:
		data, err := ir.ObjectFromGo(s.Data)
		if err != nil {
			return nil, err
		}
		return operation.DocumentCreation{
			Token:    r.token(s.Ref, index),
			Document: &ir.Document{CollectionID: s.Collection, Data: data},
		}, nil
	case ActionPatch:
		value, err := ir.FromGo(s.Value)
		if err != nil {
			return nil, err
		}
		return operation.DocumentPatch{
			Target:      ir.Persisted(r.id(s.Document)),
			AttributeID: s.Attribute,
			Value:       value,
		}, nil
	case ActionRemove:
		return operation.DocumentRemoval{Target: ir.Persisted(r.id(s.Document))}, nil
	case ActionLink:
		data, err := ir.ObjectFromGo(s.Data)
		if err != nil {
			return nil, err
		}
		return operation.LinkCreation{
			Token:      r.token(s.Ref, index),
			LinkTypeID: s.LinkType,
			Documents: [2]ir.EntityRef{
				ir.Persisted(r.id(s.Documents[0])),
				ir.Persisted(r.id(s.Documents[1])),
			},
			Data: data,
		}, nil
	case ActionUnlink:
		return operation.LinkRemoval{Target: ir.Persisted(r.id(s.Link))}, nil
	default:
		return nil, fmt.Errorf("unknown action %q", s.Action)
	}
}

func (r *runner) token(ref string, index int) string {
	if ref != "" {
		return ref
	}
	return fmt.Sprintf("step-%d", index)
}

// id resolves a ref to the stored id. Unknown names are taken as ids.
func (r *runner) id(name string) string {
	if id, ok := r.result.Refs[name]; ok {
		return id
	}
	return name
}

func (r *runner) remember(t *pipeline.ChangesTracker) {
	if t == nil {
		return
	}
	for token, id := range t.Tokens {
		r.result.Refs[token] = id
	}
}

// finish renders the collected invocations into the trace, naming entities
// by ref.
func (r *runner) finish() {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make(map[string]string, len(r.result.Refs))
	tokens := make([]string, 0, len(r.result.Refs))
	for token := range r.result.Refs {
		tokens = append(tokens, token)
	}
	// Deterministic when two tokens resolve to the same id.
	sort.Strings(tokens)
	for _, token := range tokens {
		id := r.result.Refs[token]
		if _, ok := names[id]; !ok {
			names[id] = token
		}
	}

	for _, inv := range r.events {
		entity := inv.EntityID()
		if name, ok := names[entity]; ok {
			entity = name
		}
		schema := inv.CollectionID
		if inv.Kind == ir.KindLink {
			schema = inv.LinkTypeID
		}
		r.result.Trace = append(r.result.Trace, TraceEvent{
			Trigger: string(inv.Trigger),
			Kind:    string(inv.Kind),
			Schema:  schema,
			Entity:  entity,
			Changed: inv.ChangedAttributes,
			Depth:   inv.Depth,
		})
	}
}

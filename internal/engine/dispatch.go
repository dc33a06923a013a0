package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/automaton/internal/autolink"
	"github.com/roach88/automaton/internal/constraint"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/operation"
	"github.com/roach88/automaton/internal/pipeline"
	"github.com/roach88/automaton/internal/script"
	"github.com/roach88/automaton/internal/store"
)

// task is one function or rule selected for an invocation.
type task struct {
	// id is unique within the schema object: "function:<attr>" or
	// "rule:<rule>".
	id   string
	attr *ir.Attribute
	rule *ir.Rule
}

// tasksFor selects the tasks of an invocation: functions first, in
// attribute order, then rules in declaration order.
//
// Functions run on creation and when an attribute they depend on changed.
// Nothing is computed for removed entities.
func (e *Engine) tasksFor(ctx context.Context, inv *ir.Invocation) ([]task, error) {
	var (
		attrs []ir.Attribute
		rules []ir.Rule
	)
	switch inv.Kind {
	case ir.KindLink:
		lt, err := e.store.GetLinkType(ctx, inv.LinkTypeID)
		if err != nil {
			return nil, notFound(inv, "link type "+inv.LinkTypeID, err)
		}
		attrs, rules = lt.Attributes, lt.RulesFor(inv.Trigger)
	default:
		c, err := e.store.GetCollection(ctx, inv.CollectionID)
		if err != nil {
			return nil, notFound(inv, "collection "+inv.CollectionID, err)
		}
		attrs, rules = c.Attributes, c.RulesFor(inv.Trigger)
	}

	var out []task
	if inv.Trigger != ir.TriggerRemoved {
		for i := range attrs {
			f := attrs[i].Function
			if f == nil || f.JS == "" {
				continue
			}
			if inv.Trigger == ir.TriggerCreated || f.DependsOn(inv.ChangedAttributes) {
				out = append(out, task{id: "function:" + attrs[i].ID, attr: &attrs[i]})
			}
		}
	}
	for i := range rules {
		out = append(out, task{id: "rule:" + rules[i].ID, rule: &rules[i]})
	}
	return out, nil
}

func notFound(inv *ir.Invocation, what string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewNotFoundError(inv.RootID, what, err)
	}
	return fmt.Errorf("load %s: %w", what, err)
}

// runTask runs one task and commits what it produced. A nil tracker with a
// nil error means there was nothing to commit.
func (e *Engine) runTask(ctx context.Context, inv *ir.Invocation, t task) (*pipeline.ChangesTracker, error) {
	var (
		ops []operation.Operation
		err error
	)
	switch {
	case t.attr != nil:
		ops, err = e.runFunction(ctx, inv, t)
	case t.rule.Type == ir.RuleAutoLink:
		ops, err = e.runAutoLink(ctx, inv, t)
	default:
		ops, err = e.runScript(ctx, inv, t)
	}
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, nil
	}

	tracker, err := e.pipeline.Commit(ctx, pipeline.Batch{
		Parent:        inv,
		CorrelationID: inv.CorrelationID,
		User:          inv.User,
		Operations:    ops,
	})
	if err != nil {
		return tracker, fmt.Errorf("commit %s: %w", t.id, err)
	}
	return tracker, nil
}

// runFunction evaluates a computed attribute. The completion value of the
// script becomes a patch when it differs from the stored value.
func (e *Engine) runFunction(ctx context.Context, inv *ir.Invocation, t task) ([]operation.Operation, error) {
	res, err := e.runner.Run(ctx, script.Task{
		Name:       t.id,
		Source:     t.attr.Function.JS,
		Invocation: inv,
	})
	if err != nil {
		return nil, NewScriptError(inv.RootID, t.id, err)
	}
	if ir.Equal(inv.Data().Get(t.attr.ID), res.Value) {
		return nil, nil
	}

	target := ir.Persisted(inv.EntityID())
	if inv.Kind == ir.KindLink {
		return []operation.Operation{operation.LinkPatch{
			Target:      target,
			LinkTypeID:  inv.LinkTypeID,
			AttributeID: t.attr.ID,
			Value:       res.Value,
		}}, nil
	}
	return []operation.Operation{operation.DocumentPatch{
		Target:       target,
		CollectionID: inv.CollectionID,
		AttributeID:  t.attr.ID,
		Value:        res.Value,
	}}, nil
}

// runScript runs a script rule. Operations of a failed run are discarded.
func (e *Engine) runScript(ctx context.Context, inv *ir.Invocation, t task) ([]operation.Operation, error) {
	res, err := e.runner.Run(ctx, script.Task{
		Name:       t.id,
		Source:     t.rule.Script,
		Invocation: inv,
	})
	if err != nil {
		if res != nil && len(res.Operations) > 0 {
			slog.Debug("discarding operations of failed script", "task", t.id, "operations", len(res.Operations))
		}
		return nil, NewScriptError(inv.RootID, t.id, err)
	}
	return res.Operations, nil
}

// runAutoLink matches an auto-link rule for a document change. Removed
// documents lose their links in the same commit, so there is nothing to
// match for them.
func (e *Engine) runAutoLink(ctx context.Context, inv *ir.Invocation, t task) ([]operation.Operation, error) {
	if inv.Kind != ir.KindDocument || inv.Trigger == ir.TriggerRemoved || t.rule.AutoLink == nil {
		return nil, nil
	}
	ops, err := e.matcher.Match(ctx, autolink.Change{
		Rule:   *t.rule.AutoLink,
		Before: inv.OldDocument,
		After:  inv.Document,
		User:   inv.User,
	})
	if err != nil {
		return nil, fmt.Errorf("auto-link %s: %w", t.id, err)
	}
	return ops, nil
}

// RunScript runs source once as a script rule on a stored document, as if
// the user had triggered it from a client. Side effects are kept and the
// cascades it derives are queued like any other.
func (e *Engine) RunScript(ctx context.Context, user ir.User, documentID, source string) (*pipeline.ChangesTracker, error) {
	doc, err := e.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", documentID, err)
	}
	coll, err := e.store.GetCollection(ctx, doc.CollectionID)
	if err != nil {
		return nil, fmt.Errorf("load collection %s: %w", doc.CollectionID, err)
	}

	current := doc.Clone()
	current.Data = constraint.DecodeData(coll.Attributes, doc.Data)
	inv := &ir.Invocation{
		ID:            e.ids.Generate(),
		RootID:        e.ids.Generate(),
		CorrelationID: e.ids.Generate(),
		Trigger:       ir.TriggerUpdated,
		Kind:          ir.KindDocument,
		CollectionID:  coll.ID,
		Document:      current,
		OldDocument:   current,
		User:          user,
	}
	t := task{id: "script:exec", rule: &ir.Rule{ID: "exec", Type: ir.RuleScript, Script: source}}

	slog.Debug("running script", "document_id", documentID, "root_id", inv.RootID)
	tracker, err := e.runTask(ctx, inv, t)
	e.notifier.Notify(ctx, Outcome{Invocation: inv, TaskID: t.id, Tracker: tracker, Err: err})
	return tracker, err
}

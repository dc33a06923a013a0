// Package script hosts automation scripts and computed-attribute functions
// in a goja sandbox.
//
// Scripts see one global capability object, `api`, plus the entity the
// invocation handles:
//
//	thisDocument / oldDocument   for document invocations
//	thisLink / oldLink           for link invocations
//
// Every mutating api call appends an operation.Operation instead of writing
// to the store; the commit pipeline persists them afterwards. Values cross
// the sandbox boundary only through FromScript and ToScript.
package script

import (
	"context"
	"errors"
	"fmt"

	"github.com/dop251/goja"

	"github.com/roach88/automaton/internal/constraint"
	"github.com/roach88/automaton/internal/ids"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/metrics"
	"github.com/roach88/automaton/internal/operation"
)

// ScriptError carries the terminal cause of a failed script run.
type ScriptError struct {
	Name  string
	Cause error
}

func (e *ScriptError) Error() string {
	return fmt.Sprintf("script %s failed: %v", e.Name, e.Cause)
}

func (e *ScriptError) Unwrap() error {
	return e.Cause
}

// IsScriptError reports whether err is or wraps a ScriptError.
func IsScriptError(err error) bool {
	var se *ScriptError
	return errors.As(err, &se)
}

// Task is one script to run for an invocation.
type Task struct {
	// Name identifies the rule or function in errors and logs.
	Name       string
	Source     string
	Invocation *ir.Invocation
}

// Result is what a script run produced.
type Result struct {
	Operations []operation.Operation
	// Value is the completion value of the script. Computed-attribute
	// functions return their result this way.
	Value ir.IRValue
}

// Runner executes scripts. Each Run gets a fresh runtime and bridge, so a
// Runner is safe for concurrent use.
type Runner struct {
	reader  Reader
	ids     ids.Generator
	limits  Limits
	metrics *metrics.Metrics
}

// Option configures a Runner.
type Option func(*Runner)

// WithLimits sets the per-invocation ceilings.
func WithLimits(l Limits) Option {
	return func(r *Runner) { r.limits = l }
}

// WithIDGenerator sets the generator for correlation tokens.
func WithIDGenerator(g ids.Generator) Option {
	return func(r *Runner) { r.ids = g }
}

// WithMetrics records ceiling hits.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// NewRunner creates a Runner reading through reader.
func NewRunner(reader Reader, opts ...Option) *Runner {
	r := &Runner{reader: reader, ids: ids.UUIDv7Generator{}, limits: DefaultLimits}
	for _, opt := range opts {
		opt(r)
	}
	if r.limits.CreatedOrDeleted <= 0 {
		r.limits.CreatedOrDeleted = DefaultLimits.CreatedOrDeleted
	}
	if r.limits.Messages <= 0 {
		r.limits.Messages = DefaultLimits.Messages
	}
	return r
}

// Run executes one script to completion. The run cannot be cancelled once
// the script starts.
//
// When the script or any api call fails, Run returns a *ScriptError along
// with the operations appended before the failure. A failure raised by an
// api call stays the terminal cause even if the script catches it.
func (r *Runner) Run(ctx context.Context, task Task) (*Result, error) {
	vm := goja.New()
	inv := task.Invocation
	if inv == nil {
		inv = &ir.Invocation{}
	}
	b := newBridge(ctx, vm, r.reader, r.ids, inv.User, r.limits, r.metrics)

	if err := vm.Set("api", b.install()); err != nil {
		return nil, fmt.Errorf("install api: %w", err)
	}
	if err := r.bindInvocation(vm, b, inv); err != nil {
		return nil, fmt.Errorf("bind invocation: %w", err)
	}

	v, err := vm.RunScript(task.Name, task.Source)
	res := &Result{Operations: b.Operations()}
	if cause := b.Cause(); cause != nil {
		return res, &ScriptError{Name: task.Name, Cause: cause}
	}
	if err != nil {
		return res, &ScriptError{Name: task.Name, Cause: err}
	}
	res.Value = FromScript(v)
	return res, nil
}

func (r *Runner) bindInvocation(vm *goja.Runtime, b *Bridge, inv *ir.Invocation) error {
	switch inv.Kind {
	case ir.KindLink:
		this, old := goja.Null(), goja.Null()
		if inv.Link != nil && inv.Trigger != ir.TriggerRemoved {
			this = b.bindLink(inv.Link, ir.Persisted(inv.Link.ID))
		}
		if inv.OldLink != nil {
			old = snapshot(vm, inv.OldLink.ID, constraint.DecodeData(b.linkTypeAttributes(inv.OldLink.LinkTypeID), inv.OldLink.Data))
		}
		if err := vm.Set("thisLink", this); err != nil {
			return err
		}
		return vm.Set("oldLink", old)
	default:
		this, old := goja.Null(), goja.Null()
		if inv.Document != nil && inv.Trigger != ir.TriggerRemoved {
			this = b.bindDocument(inv.Document, ir.Persisted(inv.Document.ID))
		}
		if inv.OldDocument != nil {
			old = snapshot(vm, inv.OldDocument.ID, constraint.DecodeData(b.collectionAttributes(inv.OldDocument.CollectionID), inv.OldDocument.Data))
		}
		if err := vm.Set("thisDocument", this); err != nil {
			return err
		}
		return vm.Set("oldDocument", old)
	}
}

// snapshot is a read-only view of an entity before the change. It is not a
// handle and cannot be passed to api calls.
func snapshot(vm *goja.Runtime, id string, data ir.IRObject) *goja.Object {
	obj := vm.NewObject()
	_ = obj.Set("id", id)
	_ = obj.Set("data", objectToScript(vm, data))
	return obj
}

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
	"github.com/roach88/automaton/internal/store"
)

// Reader is the read side of the storage collaborator the bridge needs.
// *store.Store implements it.
type Reader interface {
	GetDocument(ctx context.Context, id string) (*ir.Document, error)
	GetDocuments(ctx context.Context, ids []string) ([]*ir.Document, error)
	ChildDocuments(ctx context.Context, parentID string) ([]*ir.Document, error)
	LinksForDocument(ctx context.Context, documentID, linkTypeID string) ([]*ir.LinkInstance, error)
	GetCollection(ctx context.Context, id string) (*ir.Collection, error)
	GetLinkType(ctx context.Context, id string) (*ir.LinkType, error)
	NextSequence(ctx context.Context, name string) (int64, error)
}

// Limits are the per-invocation ceilings. Calls beyond a ceiling become
// no-ops.
type Limits struct {
	// CreatedOrDeleted bounds createDocument, removeDocument and
	// linkDocuments calls together.
	CreatedOrDeleted int
	// Messages bounds showMessage calls.
	Messages int
}

// DefaultLimits are used when a Runner is given zero limits.
var DefaultLimits = Limits{CreatedOrDeleted: 1000, Messages: 20}

// handle is the Go side of a document or link object handed to a script.
// Writes made by the script are reflected into both doc/link and obj.
type handle struct {
	ref  ir.EntityRef
	doc  *ir.Document
	link *ir.LinkInstance
	obj  *goja.Object
}

func (h *handle) data() ir.IRObject {
	if h.link != nil {
		return h.link.Data
	}
	return h.doc.Data
}

// Bridge is the capability object exposed to one script run as the global
// `api`. It never writes to the store: every mutating call appends an
// operation. Bridge is used by a single goroutine.
type Bridge struct {
	ctx     context.Context
	vm      *goja.Runtime
	reader  Reader
	ids     ids.Generator
	user    ir.User
	limits  Limits
	metrics *metrics.Metrics

	ops              []operation.Operation
	createdOrDeleted int
	messages         int
	printed          bool

	removed     map[string]bool
	docs        map[string]*handle
	links       map[string]*handle
	collections map[string]*ir.Collection
	linkTypes   map[string]*ir.LinkType

	cause error
}

func newBridge(ctx context.Context, vm *goja.Runtime, reader Reader, gen ids.Generator, user ir.User, limits Limits, m *metrics.Metrics) *Bridge {
	return &Bridge{
		ctx:         ctx,
		vm:          vm,
		reader:      reader,
		ids:         gen,
		user:        user,
		limits:      limits,
		metrics:     m,
		removed:     make(map[string]bool),
		docs:        make(map[string]*handle),
		links:       make(map[string]*handle),
		collections: make(map[string]*ir.Collection),
		linkTypes:   make(map[string]*ir.LinkType),
	}
}

// Operations returns the operations appended so far, in call order.
func (b *Bridge) Operations() []operation.Operation {
	return append([]operation.Operation(nil), b.ops...)
}

// Cause returns the first failure raised by a bridge call, or nil.
func (b *Bridge) Cause() error {
	return b.cause
}

// wrap turns a fallible bridge method into a script function. The first
// failure is kept as the invocation's terminal cause and thrown into the
// script.
func (b *Bridge) wrap(name string, f func(call goja.FunctionCall) (goja.Value, error)) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		v, err := f(call)
		if err != nil {
			err = fmt.Errorf("%s: %w", name, err)
			if b.cause == nil {
				b.cause = err
			}
			panic(b.vm.NewGoError(err))
		}
		if v == nil {
			return goja.Undefined()
		}
		return v
	}
}

func (b *Bridge) allowCreateOrDelete() bool {
	if b.createdOrDeleted >= b.limits.CreatedOrDeleted {
		b.metrics.CeilingHit("created_or_deleted")
		return false
	}
	b.createdOrDeleted++
	return true
}

func (b *Bridge) allowMessage() bool {
	if b.messages >= b.limits.Messages {
		b.metrics.CeilingHit("messages")
		return false
	}
	b.messages++
	return true
}

func (b *Bridge) collection(id string) (*ir.Collection, error) {
	if c, ok := b.collections[id]; ok {
		return c, nil
	}
	c, err := b.reader.GetCollection(b.ctx, id)
	if err != nil {
		return nil, err
	}
	b.collections[id] = c
	return c, nil
}

func (b *Bridge) linkType(id string) (*ir.LinkType, error) {
	if l, ok := b.linkTypes[id]; ok {
		return l, nil
	}
	l, err := b.reader.GetLinkType(b.ctx, id)
	if err != nil {
		return nil, err
	}
	b.linkTypes[id] = l
	return l, nil
}

// collectionAttributes returns the schema attributes for decoding. A
// missing schema object decodes nothing.
func (b *Bridge) collectionAttributes(id string) []ir.Attribute {
	c, err := b.collection(id)
	if err != nil {
		return nil
	}
	return c.Attributes
}

func (b *Bridge) linkTypeAttributes(id string) []ir.Attribute {
	l, err := b.linkType(id)
	if err != nil {
		return nil
	}
	return l.Attributes
}

// bindDocument returns the script object for a document, creating and
// registering a handle on first use. Stored data is decoded with the
// collection's constraints.
func (b *Bridge) bindDocument(doc *ir.Document, ref ir.EntityRef) *goja.Object {
	if h, ok := b.docs[ref.String()]; ok {
		return h.obj
	}
	working := doc.Clone()
	working.Data = constraint.DecodeData(b.collectionAttributes(doc.CollectionID), doc.Data)
	h := &handle{ref: ref, doc: working}
	h.obj = b.documentObject(h)
	b.docs[ref.String()] = h
	return h.obj
}

func (b *Bridge) bindLink(link *ir.LinkInstance, ref ir.EntityRef) *goja.Object {
	if h, ok := b.links[ref.String()]; ok {
		return h.obj
	}
	working := link.Clone()
	working.Data = constraint.DecodeData(b.linkTypeAttributes(link.LinkTypeID), link.Data)
	h := &handle{ref: ref, link: working}
	h.obj = b.linkObject(h)
	b.links[ref.String()] = h
	return h.obj
}

func (b *Bridge) documentObject(h *handle) *goja.Object {
	obj := b.vm.NewObject()
	_ = obj.Set("id", nullable(b.vm, h.doc.ID))
	_ = obj.Set("correlationId", nullable(b.vm, pendingToken(h.ref)))
	_ = obj.Set("collectionId", h.doc.CollectionID)
	_ = obj.Set("parentId", nullable(b.vm, h.doc.ParentID))
	_ = obj.Set("data", objectToScript(b.vm, h.doc.Data))
	return obj
}

func (b *Bridge) linkObject(h *handle) *goja.Object {
	obj := b.vm.NewObject()
	_ = obj.Set("id", nullable(b.vm, h.link.ID))
	_ = obj.Set("correlationId", nullable(b.vm, pendingToken(h.ref)))
	_ = obj.Set("linkTypeId", h.link.LinkTypeID)
	_ = obj.Set("documentIds", b.vm.NewArray(h.link.DocumentIDs[0], h.link.DocumentIDs[1]))
	_ = obj.Set("data", objectToScript(b.vm, h.link.Data))
	return obj
}

func nullable(vm *goja.Runtime, s string) goja.Value {
	if s == "" {
		return goja.Null()
	}
	return vm.ToValue(s)
}

func pendingToken(ref ir.EntityRef) string {
	if p, ok := ref.(ir.Pending); ok {
		return string(p)
	}
	return ""
}

// refOf reads the identity of a handle object passed back by a script.
func refOf(v goja.Value) (ir.EntityRef, error) {
	obj, ok := v.(*goja.Object)
	if !ok {
		return nil, fmt.Errorf("expected a handle, got %s", describe(v))
	}
	ref := ir.RefOf(argString(obj.Get("id")), argString(obj.Get("correlationId")))
	if ref == nil {
		return nil, errors.New("handle has neither id nor correlation id")
	}
	return ref, nil
}

func (b *Bridge) documentHandle(v goja.Value) (*handle, error) {
	ref, err := refOf(v)
	if err != nil {
		return nil, err
	}
	h, ok := b.docs[ref.String()]
	if !ok {
		return nil, fmt.Errorf("unknown document %s", ref)
	}
	return h, nil
}

func (b *Bridge) linkHandle(v goja.Value) (*handle, error) {
	ref, err := refOf(v)
	if err != nil {
		return nil, err
	}
	h, ok := b.links[ref.String()]
	if !ok {
		return nil, fmt.Errorf("unknown link %s", ref)
	}
	return h, nil
}

// setData reflects a write into the handle so later reads in the same run
// observe it.
func (b *Bridge) setData(h *handle, attrID string, value ir.IRValue) {
	h.data()[attrID] = value
	if data, ok := h.obj.Get("data").(*goja.Object); ok {
		_ = data.Set(attrID, ToScript(b.vm, value))
	}
}

// exists reports whether a handle may still be traversed: it was not
// removed in this run and, when stored, still exists in the store.
func (b *Bridge) exists(h *handle) (bool, error) {
	if b.removed[h.ref.String()] {
		return false, nil
	}
	id, ok := h.ref.(ir.Persisted)
	if !ok {
		return true, nil
	}
	_, err := b.reader.GetDocument(b.ctx, string(id))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// bindDocuments binds stored documents, skipping the ones removed in this
// run.
func (b *Bridge) bindDocuments(docs []*ir.Document) goja.Value {
	items := make([]interface{}, 0, len(docs))
	for _, d := range docs {
		ref := ir.Persisted(d.ID)
		if b.removed[ref.String()] {
			continue
		}
		items = append(items, b.bindDocument(d, ref))
	}
	return b.vm.NewArray(items...)
}

func argString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}

func argBool(v goja.Value) bool {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return false
	}
	return v.ToBoolean()
}

func describe(v goja.Value) string {
	if v == nil {
		return "undefined"
	}
	return v.String()
}

// Package pipeline commits the operations of one automation invocation.
//
// A commit runs in a fixed order so that entities created in the same
// invocation exist before anything references them:
//
//  1. validate the whole batch (nothing is persisted on failure)
//  2. create documents and map correlation tokens to ids
//  3. resolve pending references to the new ids
//  4. aggregate patches per entity
//  5. persist aggregated document patches and adjust usage counters
//  6. create links, then persist aggregated link patches
//  7. remove links and documents (links of removed documents first)
//  8. reconcile the report and write counters back once
//  9. keep side-effect requests for interactive invocations only
//  10. derive cascading invocations and hand them to the task sink
//
// There is no transaction across steps. A storage failure aborts the
// remaining steps and is reported as a CommitError listing the operations
// that were never applied; earlier steps stay applied.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/automaton/internal/constraint"
	"github.com/roach88/automaton/internal/ids"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/metrics"
	"github.com/roach88/automaton/internal/operation"
	"github.com/roach88/automaton/internal/store"
)

// Store is the storage collaborator the pipeline writes through.
// *store.Store implements it.
type Store interface {
	SchemaReader
	SaveCollectionCounters(ctx context.Context, c *ir.Collection) error
	SaveLinkTypeCounters(ctx context.Context, l *ir.LinkType) error

	CreateDocument(ctx context.Context, doc *ir.Document) (*ir.Document, error)
	GetDocument(ctx context.Context, id string) (*ir.Document, error)
	PatchDocumentData(ctx context.Context, id string, patch ir.IRObject) (*ir.Document, error)
	UpdateDocumentMeta(ctx context.Context, id, updatedBy string) (*ir.Document, error)
	DeleteDocument(ctx context.Context, id string) error

	CreateLink(ctx context.Context, link *ir.LinkInstance) (*ir.LinkInstance, error)
	GetLink(ctx context.Context, id string) (*ir.LinkInstance, error)
	PatchLinkData(ctx context.Context, id string, patch ir.IRObject) (*ir.LinkInstance, error)
	UpdateLinkMeta(ctx context.Context, id, updatedBy string) (*ir.LinkInstance, error)
	DeleteLink(ctx context.Context, id string) error
	LinksForDocument(ctx context.Context, documentID, linkTypeID string) ([]*ir.LinkInstance, error)
}

// TaskSink receives the invocations derived from a commit. Submit must not
// block.
type TaskSink interface {
	Submit(inv *ir.Invocation)
}

// Batch is the input of one commit.
type Batch struct {
	// Parent is the invocation that produced the operations, nil for a
	// direct user action.
	Parent *ir.Invocation
	// CorrelationID marks an interactive action. Side-effect requests are
	// kept only when it is set.
	CorrelationID string
	User          ir.User
	Operations    []operation.Operation
}

// Pipeline commits batches. It holds no per-commit state and is safe for
// concurrent use when its Store is.
type Pipeline struct {
	store   Store
	sink    TaskSink
	ids     ids.Generator
	metrics *metrics.Metrics
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithSink sets where derived invocations go. Without a sink they are only
// recorded in the tracker.
func WithSink(s TaskSink) Option {
	return func(p *Pipeline) { p.sink = s }
}

// WithIDGenerator sets the generator for root flow ids.
func WithIDGenerator(g ids.Generator) Option {
	return func(p *Pipeline) { p.ids = g }
}

// WithMetrics records commit counts and latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// New creates a Pipeline writing to s.
func New(s Store, opts ...Option) *Pipeline {
	p := &Pipeline{store: s, ids: ids.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// entityState follows one document or link through a commit.
type entityState struct {
	id string
	// before is the stored state prior to the commit, nil for entities
	// created in it.
	before  *ir.Document
	after   *ir.Document
	lBefore *ir.LinkInstance
	lAfter  *ir.LinkInstance
	created bool
	updated bool
	removed bool
}

// commit is the working state of one Commit call.
type commit struct {
	p     *Pipeline
	batch Batch
	ops   []operation.Operation
	done  []bool

	acc     *accumulator
	tracker *ChangesTracker

	docTokens  map[string]string
	linkTokens map[string]string
	removing   map[string]bool
	// dropped holds the patch indexes superseded by a removal of their
	// target. They count as done once that removal succeeds.
	dropped    map[string][]int

	docs      map[string]*entityState
	docOrder  []string
	links     map[string]*entityState
	linkOrder []string
}

// Commit applies a batch and returns what changed. On a CommitError the
// returned tracker describes the steps that did persist.
func (p *Pipeline) Commit(ctx context.Context, b Batch) (*ChangesTracker, error) {
	start := time.Now()
	c := &commit{
		p:          p,
		batch:      b,
		ops:        append([]operation.Operation(nil), b.Operations...),
		done:       make([]bool, len(b.Operations)),
		acc:        newAccumulator(p.store),
		tracker:    newTracker(),
		docTokens:  make(map[string]string),
		linkTokens: make(map[string]string),
		removing:   make(map[string]bool),
		dropped:    make(map[string][]int),
		docs:       make(map[string]*entityState),
		links:      make(map[string]*entityState),
	}

	if err := c.validate(ctx); err != nil {
		p.metrics.Commit(time.Since(start), true)
		return nil, err
	}

	steps := []struct {
		name string
		run  func(context.Context) error
	}{
		{"create_documents", c.createDocuments},
		{"resolve_references", c.resolveReferences},
		{"patch_documents", c.patchDocuments},
		{"create_links", c.createLinks},
		{"patch_links", c.patchLinks},
		{"remove", c.remove},
	}
	for _, step := range steps {
		if err := step.run(ctx); err != nil {
			c.reconcile()
			if saveErr := c.saveCounters(ctx); saveErr != nil {
				slog.Error("failed to save counters after aborted commit", "error", saveErr)
			}
			p.metrics.Commit(time.Since(start), true)
			return c.tracker, &CommitError{Step: step.name, Cause: err, Uncommitted: c.uncommitted()}
		}
	}

	c.reconcile()
	if err := c.saveCounters(ctx); err != nil {
		p.metrics.Commit(time.Since(start), true)
		return c.tracker, &CommitError{Step: "save_counters", Cause: err, Uncommitted: c.uncommitted()}
	}
	c.sideEffects()
	if err := c.cascade(); err != nil {
		p.metrics.Commit(time.Since(start), true)
		return c.tracker, &CommitError{Step: "cascade", Cause: err}
	}

	p.metrics.Commit(time.Since(start), false)
	slog.Debug("batch committed",
		"operations", len(c.ops),
		"created_documents", len(c.tracker.CreatedDocuments),
		"updated_documents", len(c.tracker.UpdatedDocuments),
		"removed_documents", len(c.tracker.RemovedDocuments),
		"created_links", len(c.tracker.CreatedLinks),
		"removed_links", len(c.tracker.RemovedLinks),
		"invocations", len(c.tracker.Invocations),
	)
	return c.tracker, nil
}

func (c *commit) markDone(i int) {
	c.done[i] = true
	c.p.metrics.Committed(string(c.ops[i].Kind()))
}

func (c *commit) uncommitted() []operation.Operation {
	var out []operation.Operation
	for i, op := range c.ops {
		if !c.done[i] {
			out = append(out, op)
		}
	}
	return out
}

func (c *commit) doc(id string) *entityState {
	st, ok := c.docs[id]
	if !ok {
		st = &entityState{id: id}
		c.docs[id] = st
		c.docOrder = append(c.docOrder, id)
	}
	return st
}

func (c *commit) link(id string) *entityState {
	st, ok := c.links[id]
	if !ok {
		st = &entityState{id: id}
		c.links[id] = st
		c.linkOrder = append(c.linkOrder, id)
	}
	return st
}

// validate is step 1: completeness of every operation plus the link-type
// invariant for new links.
func (c *commit) validate(ctx context.Context) error {
	violations := operation.Check(c.ops)

	pendingCollections := make(map[string]string)
	for _, op := range c.ops {
		if o, ok := op.(operation.DocumentCreation); ok && o.Document != nil {
			pendingCollections[o.Token] = o.Document.CollectionID
		}
	}

	for i, op := range c.ops {
		o, ok := op.(operation.LinkCreation)
		if !ok || o.LinkTypeID == "" {
			continue
		}
		lt, err := c.acc.linkType(ctx, o.LinkTypeID)
		if errors.Is(err, store.ErrNotFound) {
			violations = append(violations, operation.Violation{Index: i, Operation: op, Reason: "unknown link type " + o.LinkTypeID})
			continue
		}
		if err != nil {
			return err
		}

		var colls [2]string
		resolved := true
		for j, ref := range o.Documents {
			switch r := ref.(type) {
			case ir.Pending:
				coll, found := pendingCollections[string(r)]
				if !found {
					resolved = false
				}
				colls[j] = coll
			case ir.Persisted:
				doc, err := c.p.store.GetDocument(ctx, string(r))
				if errors.Is(err, store.ErrNotFound) {
					violations = append(violations, operation.Violation{Index: i, Operation: op, Reason: "unknown document " + string(r)})
					resolved = false
					continue
				}
				if err != nil {
					return err
				}
				colls[j] = doc.CollectionID
			default:
				resolved = false
			}
		}
		if resolved && !lt.Connects(colls[0], colls[1]) {
			violations = append(violations, operation.Violation{
				Index:     i,
				Operation: op,
				Reason:    fmt.Sprintf("link type %s does not connect %s and %s", lt.ID, colls[0], colls[1]),
			})
		}
	}

	if len(violations) > 0 {
		return &ValidationError{Violations: violations}
	}
	return nil
}

// createDocuments is step 2.
func (c *commit) createDocuments(ctx context.Context) error {
	for i, op := range c.ops {
		o, ok := op.(operation.DocumentCreation)
		if !ok {
			continue
		}
		coll, err := c.acc.collection(ctx, o.Document.CollectionID)
		if err != nil {
			return err
		}
		doc := o.Document.Clone()
		doc.ID = ""
		if doc.CreatedBy == "" {
			doc.CreatedBy = c.batch.User.ID
		}
		doc.Data = encodeData(coll.Attributes, doc.Data)
		stored, err := c.p.store.CreateDocument(ctx, doc)
		if err != nil {
			return err
		}
		c.docTokens[o.Token] = stored.ID
		c.acc.documentCreated(coll, stored.Data)

		st := c.doc(stored.ID)
		st.created = true
		st.after = stored
		c.markDone(i)
	}
	return nil
}

// resolveReferences is step 3: every pending document reference becomes
// the id assigned in step 2. Pending link references wait for step 6.
func (c *commit) resolveReferences(context.Context) error {
	resolve := func(ref ir.EntityRef) ir.EntityRef {
		if p, ok := ref.(ir.Pending); ok {
			if id, found := c.docTokens[string(p)]; found {
				return ir.Persisted(id)
			}
		}
		return ref
	}
	for i, op := range c.ops {
		switch o := op.(type) {
		case operation.DocumentPatch:
			o.Target = resolve(o.Target)
			c.ops[i] = o
		case operation.DocumentRemoval:
			o.Target = resolve(o.Target)
			c.ops[i] = o
			c.removing[o.Target.String()] = true
		case operation.LinkCreation:
			o.Documents = [2]ir.EntityRef{resolve(o.Documents[0]), resolve(o.Documents[1])}
			c.ops[i] = o
		}
	}
	return nil
}

// resolveLink maps a pending link reference to the id assigned in step 6.
func (c *commit) resolveLink(ref ir.EntityRef) ir.EntityRef {
	if p, ok := ref.(ir.Pending); ok {
		if id, found := c.linkTokens[string(p)]; found {
			return ir.Persisted(id)
		}
	}
	return ref
}

// patchDocuments is steps 4 and 5 for documents.
func (c *commit) patchDocuments(ctx context.Context) error {
	var entries []patchEntry
	for i, op := range c.ops {
		o, ok := op.(operation.DocumentPatch)
		if !ok {
			continue
		}
		target := o.Target.String()
		if c.removing[target] {
			c.dropped[target] = append(c.dropped[target], i)
			continue
		}
		entries = append(entries, patchEntry{index: i, target: target, attr: o.AttributeID, value: o.Value})
	}

	for _, agg := range aggregatePatches(entries) {
		var current *ir.Document
		if st, seen := c.docs[agg.target]; seen {
			current = st.after
		}
		if current == nil {
			doc, err := c.p.store.GetDocument(ctx, agg.target)
			if err != nil {
				return err
			}
			current = doc
		}
		coll, err := c.acc.collection(ctx, current.CollectionID)
		if err != nil {
			return err
		}

		patch := encodeData(coll.Attributes, agg.data)
		delta := usageDelta(current.Data, patch)
		if _, err := c.p.store.PatchDocumentData(ctx, agg.target, patch); err != nil {
			return err
		}
		updated, err := c.p.store.UpdateDocumentMeta(ctx, agg.target, c.batch.User.ID)
		if err != nil {
			return err
		}
		c.acc.documentPatched(coll, delta)

		st := c.doc(agg.target)
		if !st.created && st.before == nil {
			st.before = current
			st.updated = true
		}
		st.after = updated
		for _, i := range agg.ops {
			c.markDone(i)
		}
	}
	return nil
}

// createLinks is step 6 for link creations.
func (c *commit) createLinks(ctx context.Context) error {
	for i, op := range c.ops {
		o, ok := op.(operation.LinkCreation)
		if !ok {
			continue
		}
		lt, err := c.acc.linkType(ctx, o.LinkTypeID)
		if err != nil {
			return err
		}
		link := &ir.LinkInstance{
			LinkTypeID:  o.LinkTypeID,
			DocumentIDs: [2]string{o.Documents[0].String(), o.Documents[1].String()},
			Data:        encodeData(lt.Attributes, o.Data),
			CreatedBy:   c.batch.User.ID,
		}
		stored, err := c.p.store.CreateLink(ctx, link)
		if err != nil {
			return err
		}
		c.linkTokens[o.Token] = stored.ID
		c.acc.linkCreated(lt, stored.Data)

		st := c.link(stored.ID)
		st.created = true
		st.lAfter = stored
		c.markDone(i)
	}
	return nil
}

// patchLinks is step 6 for link patches, after pending links resolved.
func (c *commit) patchLinks(ctx context.Context) error {
	for i, op := range c.ops {
		if o, ok := op.(operation.LinkRemoval); ok {
			o.Target = c.resolveLink(o.Target)
			c.ops[i] = o
			c.removing[o.Target.String()] = true
		}
	}

	var entries []patchEntry
	for i, op := range c.ops {
		o, ok := op.(operation.LinkPatch)
		if !ok {
			continue
		}
		o.Target = c.resolveLink(o.Target)
		c.ops[i] = o
		target := o.Target.String()
		if c.removing[target] {
			c.dropped[target] = append(c.dropped[target], i)
			continue
		}
		entries = append(entries, patchEntry{index: i, target: target, attr: o.AttributeID, value: o.Value})
	}

	for _, agg := range aggregatePatches(entries) {
		var current *ir.LinkInstance
		if st, seen := c.links[agg.target]; seen {
			current = st.lAfter
		}
		if current == nil {
			link, err := c.p.store.GetLink(ctx, agg.target)
			if err != nil {
				return err
			}
			current = link
		}
		lt, err := c.acc.linkType(ctx, current.LinkTypeID)
		if err != nil {
			return err
		}

		patch := encodeData(lt.Attributes, agg.data)
		delta := usageDelta(current.Data, patch)
		if _, err := c.p.store.PatchLinkData(ctx, agg.target, patch); err != nil {
			return err
		}
		updated, err := c.p.store.UpdateLinkMeta(ctx, agg.target, c.batch.User.ID)
		if err != nil {
			return err
		}
		c.acc.linkPatched(lt, delta)

		st := c.link(agg.target)
		if !st.created && st.lBefore == nil {
			st.lBefore = current
			st.updated = true
		}
		st.lAfter = updated
		for _, i := range agg.ops {
			c.markDone(i)
		}
	}
	return nil
}

// remove is step 7. Explicit link removals go first, then documents
// together with their links.
func (c *commit) remove(ctx context.Context) error {
	for i, op := range c.ops {
		o, ok := op.(operation.LinkRemoval)
		if !ok {
			continue
		}
		if err := c.removeLink(ctx, o.Target.String(), nil); err != nil {
			return err
		}
		c.markDone(i)
		c.settleDropped(o.Target.String())
	}

	for i, op := range c.ops {
		o, ok := op.(operation.DocumentRemoval)
		if !ok {
			continue
		}
		id := o.Target.String()
		if st, seen := c.docs[id]; seen && st.removed {
			c.markDone(i)
			c.settleDropped(id)
			continue
		}
		doc, err := c.p.store.GetDocument(ctx, id)
		if err != nil {
			return err
		}
		links, err := c.p.store.LinksForDocument(ctx, id, "")
		if err != nil {
			return err
		}
		for _, l := range links {
			if err := c.removeLink(ctx, l.ID, l); err != nil {
				return err
			}
		}
		coll, err := c.acc.collection(ctx, doc.CollectionID)
		if err != nil {
			return err
		}
		if err := c.p.store.DeleteDocument(ctx, id); err != nil {
			return err
		}
		c.acc.documentRemoved(coll, doc.Data)

		st := c.doc(id)
		if st.before == nil && !st.created {
			st.before = doc
		}
		st.after = doc
		st.removed = true
		c.markDone(i)
		c.settleDropped(id)
	}
	return nil
}

// settleDropped marks the patches dropped for a removed entity as done.
func (c *commit) settleDropped(id string) {
	for _, i := range c.dropped[id] {
		c.done[i] = true
	}
	delete(c.dropped, id)
}

// removeLink deletes one link. link may be nil, in which case it is loaded.
func (c *commit) removeLink(ctx context.Context, id string, link *ir.LinkInstance) error {
	if st, seen := c.links[id]; seen && st.removed {
		return nil
	}
	if link == nil {
		l, err := c.p.store.GetLink(ctx, id)
		if err != nil {
			return err
		}
		link = l
	}
	lt, err := c.acc.linkType(ctx, link.LinkTypeID)
	if err != nil {
		return err
	}
	if err := c.p.store.DeleteLink(ctx, id); err != nil {
		return err
	}
	c.acc.linkRemoved(lt, link.Data)

	st := c.link(id)
	if st.lBefore == nil && !st.created {
		st.lBefore = link
	}
	st.lAfter = link
	st.removed = true
	return nil
}

// reconcile is step 8: entities created and removed in the same batch never
// existed for anyone outside it and are left out of the report.
func (c *commit) reconcile() {
	t := c.tracker
	t.CreatedDocuments, t.UpdatedDocuments, t.RemovedDocuments = nil, nil, nil
	for _, id := range c.docOrder {
		st := c.docs[id]
		coll := c.acc.collections[st.after.CollectionID]
		switch {
		case st.created && st.removed:
		case st.created:
			t.CreatedDocuments = append(t.CreatedDocuments, decodeDocument(coll, st.after))
		case st.removed:
			t.RemovedDocuments = append(t.RemovedDocuments, decodeDocument(coll, st.after))
		case st.updated:
			t.UpdatedDocuments = append(t.UpdatedDocuments, decodeDocument(coll, st.after))
		}
	}

	t.CreatedLinks, t.UpdatedLinks, t.RemovedLinks = nil, nil, nil
	for _, id := range c.linkOrder {
		st := c.links[id]
		lt := c.acc.linkTypes[st.lAfter.LinkTypeID]
		switch {
		case st.created && st.removed:
		case st.created:
			t.CreatedLinks = append(t.CreatedLinks, decodeLink(lt, st.lAfter))
		case st.removed:
			t.RemovedLinks = append(t.RemovedLinks, decodeLink(lt, st.lAfter))
		case st.updated:
			t.UpdatedLinks = append(t.UpdatedLinks, decodeLink(lt, st.lAfter))
		}
	}

	t.Tokens = nil
	for tok, id := range c.docTokens {
		if st := c.docs[id]; st != nil && !st.removed {
			t.setToken(tok, id)
		}
	}
	for tok, id := range c.linkTokens {
		if st := c.links[id]; st != nil && !st.removed {
			t.setToken(tok, id)
		}
	}
}

// saveCounters writes every changed schema object back once and records
// it in the tracker.
func (c *commit) saveCounters(ctx context.Context) error {
	collections, linkTypes := c.acc.dirty()
	for _, id := range collections {
		coll := c.acc.collections[id]
		if err := c.p.store.SaveCollectionCounters(ctx, coll); err != nil {
			return err
		}
		c.tracker.Collections[id] = coll.Clone()
	}
	for _, id := range linkTypes {
		lt := c.acc.linkTypes[id]
		if err := c.p.store.SaveLinkTypeCounters(ctx, lt); err != nil {
			return err
		}
		c.tracker.LinkTypes[id] = lt.Clone()
	}
	return nil
}

// sideEffects is step 9. Requests of passive invocations are dropped so a
// background rule never repeats what the interactive action already did.
func (c *commit) sideEffects() {
	keep := c.batch.CorrelationID != ""
	dropped := 0
	for i, op := range c.ops {
		if !operation.IsSideEffect(op) {
			continue
		}
		c.markDone(i)
		if !keep {
			dropped++
			continue
		}
		switch o := op.(type) {
		case operation.UserMessage:
			c.tracker.Messages = append(c.tracker.Messages, o)
		case operation.PrintAttribute:
			req := o.PrintRequest
			req.ResourceID = c.resolveToken(req.ResourceKind, req.ResourceID)
			c.tracker.Prints = append(c.tracker.Prints, req)
		case operation.Navigation:
			req := o.NavigationRequest
			req.DocumentID = c.resolveToken(ir.KindDocument, req.DocumentID)
			c.tracker.Navigations = append(c.tracker.Navigations, req)
		case operation.SendEmail:
			c.tracker.Emails = append(c.tracker.Emails, o.SendEmailRequest)
		case operation.ShareView:
			c.tracker.Shares = append(c.tracker.Shares, o.ShareViewRequest)
		}
	}
	if dropped > 0 {
		slog.Debug("dropped side effects of passive invocation", "count", dropped)
	}
}

func (c *commit) resolveToken(kind ir.ResourceKind, id string) string {
	tokens := c.docTokens
	if kind == ir.KindLink {
		tokens = c.linkTokens
	}
	if resolved, ok := tokens[id]; ok {
		return resolved
	}
	return id
}

func decodeDocument(coll *ir.Collection, doc *ir.Document) *ir.Document {
	out := doc.Clone()
	if coll != nil {
		out.Data = constraint.DecodeData(coll.Attributes, doc.Data)
	}
	return out
}

func decodeLink(lt *ir.LinkType, link *ir.LinkInstance) *ir.LinkInstance {
	out := link.Clone()
	if lt != nil {
		out.Data = constraint.DecodeData(lt.Attributes, link.Data)
	}
	return out
}

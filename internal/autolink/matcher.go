package autolink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/roach88/automaton/internal/constraint"
	"github.com/roach88/automaton/internal/ids"
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/metrics"
	"github.com/roach88/automaton/internal/operation"
	"github.com/roach88/automaton/internal/permission"
	"github.com/roach88/automaton/internal/query"
	"github.com/roach88/automaton/internal/store"
)

// Reader is the part of the storage collaborator the matcher reads from.
// *store.Store implements it.
type Reader interface {
	GetCollection(ctx context.Context, id string) (*ir.Collection, error)
	GetLinkType(ctx context.Context, id string) (*ir.LinkType, error)
	GetDocument(ctx context.Context, id string) (*ir.Document, error)
	SearchDocuments(ctx context.Context, q query.Documents) ([]*ir.Document, error)
	LinksForDocument(ctx context.Context, documentID, linkTypeID string) ([]*ir.LinkInstance, error)
}

// Matcher computes link changes for auto-link rules.
type Matcher struct {
	reader   Reader
	resolver permission.Resolver
	scope    permission.Scope
	ids      ids.Generator
	metrics  *metrics.Metrics
}

// Option configures a Matcher.
type Option func(*Matcher)

// WithResolver limits creation scans to documents the user may read.
// Without a resolver every document is visible.
func WithResolver(r permission.Resolver, scope permission.Scope) Option {
	return func(m *Matcher) {
		m.resolver = r
		m.scope = scope
	}
}

// WithIDGenerator sets the generator for link creation tokens.
func WithIDGenerator(g ids.Generator) Option {
	return func(m *Matcher) { m.ids = g }
}

// WithMetrics records match counts.
func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Matcher) { m.metrics = mt }
}

// NewMatcher creates a Matcher.
func NewMatcher(reader Reader, opts ...Option) *Matcher {
	m := &Matcher{reader: reader, ids: ids.UUIDv7Generator{}}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Change is one firing of an auto-link rule: the source document before and
// after the triggering change. Before is nil on creation.
type Change struct {
	Rule   ir.AutoLinkRule
	Before *ir.Document
	After  *ir.Document
	User   ir.User
}

// side is the rule resolved from the source document's point of view.
type side struct {
	linkType   *ir.LinkType
	sourceAttr *ir.Attribute
	target     *ir.Collection
	targetAttr *ir.Attribute
	// sourceFirst says the source document goes first in new links.
	sourceFirst bool
}

// Match returns the LinkRemoval and LinkCreation operations that bring the
// source document's links in line with the rule. Unresolvable rules and
// vanished source documents produce no operations.
func (m *Matcher) Match(ctx context.Context, ch Change) ([]operation.Operation, error) {
	if ch.After == nil || ch.After.ID == "" {
		return nil, nil
	}
	sd, err := m.resolve(ctx, ch.Rule, ch.After.CollectionID)
	if err != nil || sd == nil {
		return nil, err
	}

	if _, err := m.reader.GetDocument(ctx, ch.After.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			slog.Debug("auto-link source document is gone", "document_id", ch.After.ID, "link_type_id", sd.linkType.ID)
			return nil, nil
		}
		return nil, fmt.Errorf("auto-link source %s: %w", ch.After.ID, err)
	}

	var before []ir.IRValue
	if ch.Before != nil {
		before = ir.Values(ch.Before.Data.Get(sd.sourceAttr.ID))
	}
	after := ir.Values(ch.After.Data.Get(sd.sourceAttr.ID))
	if ch.Before != nil && ir.Equal(ir.IRArray(before), ir.IRArray(after)) {
		return nil, nil
	}

	strategy := StrategyFor(
		constraint.IsMultiselect(sd.sourceAttr.Constraint),
		constraint.IsMultiselect(sd.targetAttr.Constraint),
		sd.targetAttr.ID,
	)

	links, err := m.reader.LinksForDocument(ctx, ch.After.ID, sd.linkType.ID)
	if err != nil {
		return nil, fmt.Errorf("auto-link links of %s: %w", ch.After.ID, err)
	}

	var ops []operation.Operation
	removed, err := m.removals(ctx, sd, strategy, ch.After.ID, links, before, after)
	if err != nil {
		return nil, err
	}
	ops = append(ops, removed...)

	created, err := m.creations(ctx, sd, strategy, ch, links, removed, before, after)
	if err != nil {
		return nil, err
	}
	ops = append(ops, created...)

	m.metrics.AutoLinkMatched("remove", len(removed))
	m.metrics.AutoLinkMatched("create", len(created))
	slog.Debug("auto-link matched",
		"document_id", ch.After.ID,
		"link_type_id", sd.linkType.ID,
		"strategy", strategy.Name(),
		"removed", len(removed),
		"created", len(created),
	)
	return ops, nil
}

// resolve loads the link type and both attributes. A nil side means the
// rule cannot apply to documents of collectionID.
func (m *Matcher) resolve(ctx context.Context, rule ir.AutoLinkRule, collectionID string) (*side, error) {
	var sourceAttrID, targetCollID, targetAttrID string
	sourceFirst := true
	switch collectionID {
	case rule.Collection1:
		sourceAttrID, targetCollID, targetAttrID = rule.Attribute1, rule.Collection2, rule.Attribute2
	case rule.Collection2:
		sourceAttrID, targetCollID, targetAttrID = rule.Attribute2, rule.Collection1, rule.Attribute1
		sourceFirst = false
	default:
		return nil, nil
	}

	lt, err := m.reader.GetLinkType(ctx, rule.LinkType)
	if errors.Is(err, store.ErrNotFound) {
		slog.Warn("auto-link rule references a missing link type", "link_type_id", rule.LinkType)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auto-link link type %s: %w", rule.LinkType, err)
	}
	if !lt.Connects(rule.Collection1, rule.Collection2) {
		slog.Warn("auto-link link type does not connect the rule's collections",
			"link_type_id", lt.ID, "collection1", rule.Collection1, "collection2", rule.Collection2)
		return nil, nil
	}

	source, err := m.collection(ctx, collectionID)
	if err != nil || source == nil {
		return nil, err
	}
	target, err := m.collection(ctx, targetCollID)
	if err != nil || target == nil {
		return nil, err
	}
	sourceAttr := source.Attribute(sourceAttrID)
	targetAttr := target.Attribute(targetAttrID)
	if sourceAttr == nil || targetAttr == nil {
		slog.Warn("auto-link rule references a missing attribute",
			"link_type_id", lt.ID, "attribute1", rule.Attribute1, "attribute2", rule.Attribute2)
		return nil, nil
	}
	return &side{
		linkType:    lt,
		sourceAttr:  sourceAttr,
		target:      target,
		targetAttr:  targetAttr,
		sourceFirst: sourceFirst,
	}, nil
}

func (m *Matcher) collection(ctx context.Context, id string) (*ir.Collection, error) {
	c, err := m.reader.GetCollection(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("auto-link collection %s: %w", id, err)
	}
	return c, nil
}

// removals starts from the existing links and unlinks partners that no
// longer qualify.
func (m *Matcher) removals(ctx context.Context, sd *side, s Strategy, sourceID string, links []*ir.LinkInstance, before, after []ir.IRValue) ([]operation.Operation, error) {
	if len(links) == 0 {
		return nil, nil
	}
	pred, ok := s.QueryForRemoval(before, after)
	if !ok {
		return nil, nil
	}

	partners := make([]string, 0, len(links))
	for _, l := range links {
		if other := l.Other(sourceID); other != "" {
			partners = append(partners, other)
		}
	}
	docs, err := m.reader.SearchDocuments(ctx, query.Documents{
		CollectionID: sd.target.ID,
		Filter:       query.AllOf(query.IDIn{IDs: partners}, pred),
	})
	if err != nil {
		return nil, fmt.Errorf("auto-link removal query: %w", err)
	}

	unlink := make(map[string]bool, len(docs))
	for _, d := range docs {
		unlink[d.ID] = true
	}
	var ops []operation.Operation
	for _, l := range links {
		if unlink[l.Other(sourceID)] {
			ops = append(ops, operation.LinkRemoval{Target: ir.Persisted(l.ID), LinkTypeID: sd.linkType.ID})
		}
	}
	return ops, nil
}

// creations scans the counterpart collection for documents that qualify and
// are not linked yet.
func (m *Matcher) creations(ctx context.Context, sd *side, s Strategy, ch Change, links []*ir.LinkInstance, removed []operation.Operation, before, after []ir.IRValue) ([]operation.Operation, error) {
	pred, ok := s.QueryForCreation(before, after)
	if !ok {
		return nil, nil
	}
	visible, ok, err := m.visibility(ctx, sd.target.ID, ch.User)
	if err != nil || !ok {
		return nil, err
	}

	removing := make(map[string]bool, len(removed))
	for _, op := range removed {
		removing[op.(operation.LinkRemoval).Target.String()] = true
	}
	var linked []string
	for _, l := range links {
		if !removing[l.ID] {
			linked = append(linked, l.Other(ch.After.ID))
		}
	}

	filters := []query.Predicate{pred, visible}
	if len(linked) > 0 {
		filters = append(filters, query.IDNotIn{IDs: linked})
	}
	docs, err := m.reader.SearchDocuments(ctx, query.Documents{
		CollectionID: sd.target.ID,
		Filter:       query.AllOf(filters...),
	})
	if err != nil {
		return nil, fmt.Errorf("auto-link creation query: %w", err)
	}

	var ops []operation.Operation
	for _, d := range docs {
		if d.ID == ch.After.ID {
			continue
		}
		pair := [2]ir.EntityRef{ir.Persisted(ch.After.ID), ir.Persisted(d.ID)}
		if !sd.sourceFirst {
			pair[0], pair[1] = pair[1], pair[0]
		}
		ops = append(ops, operation.LinkCreation{
			Token:      m.ids.Generate(),
			LinkTypeID: sd.linkType.ID,
			Documents:  pair,
			Data:       ir.IRObject{},
		})
	}
	return ops, nil
}

func (m *Matcher) visibility(ctx context.Context, collectionID string, user ir.User) (query.Predicate, bool, error) {
	if m.resolver == nil {
		return nil, true, nil
	}
	roles, err := permission.ReadRoles(ctx, m.resolver, m.scope,
		permission.Resource{Type: permission.Collection, ID: collectionID}, user)
	if err != nil {
		return nil, false, fmt.Errorf("auto-link visibility: %w", err)
	}
	pred, ok := permission.Visibility(roles, user)
	return pred, ok, nil
}

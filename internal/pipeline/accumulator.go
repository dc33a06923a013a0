package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/roach88/automaton/internal/constraint"
	"github.com/roach88/automaton/internal/ir"
)

// SchemaReader loads schema objects.
type SchemaReader interface {
	GetCollection(ctx context.Context, id string) (*ir.Collection, error)
	GetLinkType(ctx context.Context, id string) (*ir.LinkType, error)
}

// accumulator holds the schema objects one commit touches. Counters are
// adjusted here in memory and written back once at the end of the commit.
type accumulator struct {
	reader      SchemaReader
	collections map[string]*ir.Collection
	linkTypes   map[string]*ir.LinkType
	dirtyColls  map[string]bool
	dirtyLinks  map[string]bool
}

func newAccumulator(reader SchemaReader) *accumulator {
	return &accumulator{
		reader:      reader,
		collections: make(map[string]*ir.Collection),
		linkTypes:   make(map[string]*ir.LinkType),
		dirtyColls:  make(map[string]bool),
		dirtyLinks:  make(map[string]bool),
	}
}

func (a *accumulator) collection(ctx context.Context, id string) (*ir.Collection, error) {
	if c, ok := a.collections[id]; ok {
		return c, nil
	}
	c, err := a.reader.GetCollection(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load collection: %w", err)
	}
	a.collections[id] = c
	return c, nil
}

func (a *accumulator) linkType(ctx context.Context, id string) (*ir.LinkType, error) {
	if l, ok := a.linkTypes[id]; ok {
		return l, nil
	}
	l, err := a.reader.GetLinkType(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load link type: %w", err)
	}
	a.linkTypes[id] = l
	return l, nil
}

// documentCreated counts a new document and the attributes it sets.
func (a *accumulator) documentCreated(c *ir.Collection, data ir.IRObject) {
	c.DocumentsCount++
	a.adjustCollection(c, usedAttributes(data), 1)
}

// documentRemoved uncounts a document and every attribute it still set.
func (a *accumulator) documentRemoved(c *ir.Collection, data ir.IRObject) {
	if c.DocumentsCount > 0 {
		c.DocumentsCount--
	}
	a.adjustCollection(c, usedAttributes(data), -1)
}

func (a *accumulator) documentPatched(c *ir.Collection, delta map[string]int64) {
	for attr, d := range delta {
		c.AdjustUsage(attr, d)
	}
	a.dirtyColls[c.ID] = true
}

func (a *accumulator) adjustCollection(c *ir.Collection, attrs []string, d int64) {
	for _, attr := range attrs {
		c.AdjustUsage(attr, d)
	}
	a.dirtyColls[c.ID] = true
}

func (a *accumulator) linkCreated(l *ir.LinkType, data ir.IRObject) {
	l.LinksCount++
	a.adjustLinkType(l, usedAttributes(data), 1)
}

func (a *accumulator) linkRemoved(l *ir.LinkType, data ir.IRObject) {
	if l.LinksCount > 0 {
		l.LinksCount--
	}
	a.adjustLinkType(l, usedAttributes(data), -1)
}

func (a *accumulator) linkPatched(l *ir.LinkType, delta map[string]int64) {
	for attr, d := range delta {
		l.AdjustUsage(attr, d)
	}
	a.dirtyLinks[l.ID] = true
}

func (a *accumulator) adjustLinkType(l *ir.LinkType, attrs []string, d int64) {
	for _, attr := range attrs {
		l.AdjustUsage(attr, d)
	}
	a.dirtyLinks[l.ID] = true
}

// dirty returns the ids of the changed schema objects, sorted.
func (a *accumulator) dirty() (collections, linkTypes []string) {
	for id := range a.dirtyColls {
		collections = append(collections, id)
	}
	for id := range a.dirtyLinks {
		linkTypes = append(linkTypes, id)
	}
	slices.Sort(collections)
	slices.Sort(linkTypes)
	return collections, linkTypes
}

// patchEntry is one patch operation after reference resolution.
type patchEntry struct {
	index  int
	target string
	attr   string
	value  ir.IRValue
}

// aggregate is the union of all patches to one entity. Later writes to the
// same attribute replace earlier ones.
type aggregate struct {
	target string
	data   ir.IRObject
	ops    []int
}

// aggregatePatches groups entries by target in order of first appearance.
func aggregatePatches(entries []patchEntry) []*aggregate {
	byTarget := make(map[string]*aggregate)
	var out []*aggregate
	for _, e := range entries {
		agg, ok := byTarget[e.target]
		if !ok {
			agg = &aggregate{target: e.target, data: ir.IRObject{}}
			byTarget[e.target] = agg
			out = append(out, agg)
		}
		agg.data[e.attr] = e.value
		agg.ops = append(agg.ops, e.index)
	}
	return out
}

// usageDelta compares a patch with the values it overwrites. An attribute
// written for the first time counts +1, one cleared counts -1.
func usageDelta(before, patch ir.IRObject) map[string]int64 {
	delta := make(map[string]int64)
	for attr, v := range patch {
		wasSet := !ir.IsEmpty(before.Get(attr))
		isSet := !ir.IsEmpty(v)
		switch {
		case !wasSet && isSet:
			delta[attr] = 1
		case wasSet && !isSet:
			delta[attr] = -1
		}
	}
	return delta
}

// usedAttributes returns the attributes with a non-empty value, sorted.
func usedAttributes(data ir.IRObject) []string {
	var out []string
	for _, k := range data.SortedKeys() {
		if !ir.IsEmpty(data[k]) {
			out = append(out, k)
		}
	}
	return out
}

// encodeData converts values into their stored form using the attributes'
// constraints. Attributes missing from the schema are stored as given.
func encodeData(attrs []ir.Attribute, data ir.IRObject) ir.IRObject {
	out := make(ir.IRObject, len(data))
	for k, v := range data {
		var c *ir.Constraint
		for i := range attrs {
			if attrs[i].ID == k {
				c = attrs[i].Constraint
				break
			}
		}
		out[k] = constraint.Encode(c, v)
	}
	return out
}

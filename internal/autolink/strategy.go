// Package autolink keeps documents of two collections linked while a watched
// attribute on each side matches.
//
// When a rule fires, the Matcher works out which counterpart documents must
// lose their link (starting from the source document's existing links) and
// which must gain one (scanning the whole counterpart collection, limited to
// what the initiating user may read). The result is a list of LinkRemoval and
// LinkCreation operations for the commit pipeline.
//
// The comparison depends on whether each side's attribute is multi-valued:
//
//	source   target   creation                       removal
//	simple   simple   target == new                  target != new
//	simple   multi    target HAS_SOME [new]          target HAS_NONE_OF [new]
//	multi    simple   target HAS_SOME new            target HAS_NONE_OF new
//	multi    multi    target HAS_ALL new             target HAS_NONE_OF (old △ new)
//
// Matching is best-effort: a missing link type, attribute or source document
// yields no operations rather than an error.
package autolink

import (
	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/query"
)

// Strategy builds the counterpart filters for one cardinality combination.
// before and after are the source attribute's values before and after the change,
// flattened with ir.Values.
type Strategy interface {
	// QueryForRemoval returns the filter selecting currently linked partners
	// that no longer qualify. A nil predicate with ok selects every partner.
	QueryForRemoval(before, after []ir.IRValue) (pred query.Predicate, ok bool)
	// QueryForCreation returns the filter selecting counterpart documents
	// that qualify for a link. ok is false when nothing can qualify.
	QueryForCreation(before, after []ir.IRValue) (pred query.Predicate, ok bool)
	Name() string
}

// StrategyFor picks the strategy for the given cardinalities. targetAttr is
// the counterpart attribute the filters compare against.
func StrategyFor(sourceMulti, targetMulti bool, targetAttr string) Strategy {
	switch {
	case !sourceMulti && !targetMulti:
		return simpleToSimple{attr: targetAttr}
	case !sourceMulti && targetMulti:
		return simpleToMulti{attr: targetAttr}
	case sourceMulti && !targetMulti:
		return multiToSimple{attr: targetAttr}
	default:
		return multiToMulti{attr: targetAttr}
	}
}

type simpleToSimple struct{ attr string }

func (s simpleToSimple) Name() string { return "simple_to_simple" }

func (s simpleToSimple) QueryForRemoval(_, after []ir.IRValue) (query.Predicate, bool) {
	if len(after) == 0 {
		return nil, true
	}
	return query.Attr{AttributeID: s.attr, Condition: query.NotEquals, Values: after[:1]}, true
}

func (s simpleToSimple) QueryForCreation(_, after []ir.IRValue) (query.Predicate, bool) {
	if len(after) == 0 {
		return nil, false
	}
	return query.Attr{AttributeID: s.attr, Condition: query.Equals, Values: after[:1]}, true
}

type simpleToMulti struct{ attr string }

func (s simpleToMulti) Name() string { return "simple_to_multi" }

func (s simpleToMulti) QueryForRemoval(_, after []ir.IRValue) (query.Predicate, bool) {
	if len(after) == 0 {
		return nil, true
	}
	return query.Attr{AttributeID: s.attr, Condition: query.HasNoneOf, Values: after[:1]}, true
}

func (s simpleToMulti) QueryForCreation(_, after []ir.IRValue) (query.Predicate, bool) {
	if len(after) == 0 {
		return nil, false
	}
	return query.Attr{AttributeID: s.attr, Condition: query.HasSome, Values: after[:1]}, true
}

type multiToSimple struct{ attr string }

func (s multiToSimple) Name() string { return "multi_to_simple" }

func (s multiToSimple) QueryForRemoval(_, after []ir.IRValue) (query.Predicate, bool) {
	if len(after) == 0 {
		return nil, true
	}
	return query.Attr{AttributeID: s.attr, Condition: query.HasNoneOf, Values: after}, true
}

func (s multiToSimple) QueryForCreation(_, after []ir.IRValue) (query.Predicate, bool) {
	if len(after) == 0 {
		return nil, false
	}
	return query.Attr{AttributeID: s.attr, Condition: query.HasSome, Values: after}, true
}

type multiToMulti struct{ attr string }

func (s multiToMulti) Name() string { return "multi_to_multi" }

// QueryForRemoval unlinks partners holding none of the values that entered
// or left the source set. An unchanged set unlinks nothing.
func (s multiToMulti) QueryForRemoval(before, after []ir.IRValue) (query.Predicate, bool) {
	if len(after) == 0 {
		return nil, true
	}
	diff := append(difference(after, before), difference(before, after)...)
	if len(diff) == 0 {
		return nil, false
	}
	return query.Attr{AttributeID: s.attr, Condition: query.HasNoneOf, Values: diff}, true
}

func (s multiToMulti) QueryForCreation(_, after []ir.IRValue) (query.Predicate, bool) {
	if len(after) == 0 {
		return nil, false
	}
	return query.Attr{AttributeID: s.attr, Condition: query.HasAll, Values: after}, true
}

// difference returns the members of a missing from b, in a's order.
func difference(a, b []ir.IRValue) []ir.IRValue {
	var out []ir.IRValue
	for _, v := range a {
		if !containsValue(b, v) && !containsValue(out, v) {
			out = append(out, v)
		}
	}
	return out
}

func containsValue(values []ir.IRValue, v ir.IRValue) bool {
	for _, x := range values {
		if ir.Equal(x, v) {
			return true
		}
	}
	return false
}

// Package query provides the structured search predicate the engine uses to
// find documents and link instances.
//
// Query and Predicate are sealed interfaces using the marker method pattern.
// Only types in this package implement them, so backend compilers can
// switch over them exhaustively:
//
//	[auto-link matcher, script traversal] → [query IR] → [querysql]
//
// The IR is deliberately small: one scope (collection or link type), a
// conjunction of attribute conditions and identity filters, and paging.
// Search ranking and query planning are the backend's concern.
package query

import "github.com/roach88/automaton/internal/ir"

// Query is a search over one collection or one link type.
//
// This is a sealed interface - only types in this package implement it.
type Query interface {
	queryNode() // Marker method - seals interface to this package
}

// Predicate filters the rows of a query.
//
// This is a sealed interface - only types in this package implement it.
type Predicate interface {
	predicateNode() // Marker method - seals interface to this package
}

// Page bounds a result set. A zero Limit means unbounded.
type Page struct {
	Limit  int
	Offset int
}

// Documents searches the documents of one collection.
//
// Example:
//
//	Documents{
//	  CollectionID: "tasks",
//	  Filter: And{Predicates: []Predicate{
//	    Attr{AttributeID: "state", Condition: Equals, Values: []ir.IRValue{ir.IRString("open")}},
//	    CreatedBy{UserID: "u1"},
//	  }},
//	}
type Documents struct {
	CollectionID string
	Filter       Predicate // nil = no filter
	Page         Page
}

func (Documents) queryNode() {}

// Links searches the instances of one link type.
type Links struct {
	LinkTypeID string
	Filter     Predicate
	Page       Page
}

func (Links) queryNode() {}

// Condition is the comparison an Attr predicate applies.
type Condition string

const (
	Equals            Condition = "EQUALS"
	NotEquals         Condition = "NOT_EQUALS"
	LowerThan         Condition = "LOWER_THAN"
	LowerThanEquals   Condition = "LOWER_THAN_EQUALS"
	GreaterThan       Condition = "GREATER_THAN"
	GreaterThanEquals Condition = "GREATER_THAN_EQUALS"
	HasAll            Condition = "HAS_ALL"
	HasSome           Condition = "HAS_SOME"
	HasNoneOf         Condition = "HAS_NONE_OF"
	IsEmpty           Condition = "IS_EMPTY"
	NotEmpty          Condition = "NOT_EMPTY"
)

// arity returns how many values a condition takes: 1 for exactly one,
// -1 for one or more, 0 for none.
func (c Condition) arity() (int, bool) {
	switch c {
	case Equals, NotEquals, LowerThan, LowerThanEquals, GreaterThan, GreaterThanEquals:
		return 1, true
	case HasAll, HasSome, HasNoneOf:
		return -1, true
	case IsEmpty, NotEmpty:
		return 0, true
	default:
		return 0, false
	}
}

// Attr compares an attribute of the data map.
//
// Semantics:
//   - EQUALS .. GREATER_THAN_EQUALS compare the stored scalar to Values[0]
//   - HAS_ALL: the stored value (list or scalar) contains every value
//   - HAS_SOME: it contains at least one value
//   - HAS_NONE_OF: it contains none of the values (absent counts as none)
//   - IS_EMPTY / NOT_EMPTY: absent, null, "" or [] count as empty
type Attr struct {
	AttributeID string
	Condition   Condition
	Values      []ir.IRValue
}

func (Attr) predicateNode() {}

// IDIn keeps rows whose id is in IDs. An empty list matches nothing.
type IDIn struct {
	IDs []string
}

func (IDIn) predicateNode() {}

// IDNotIn drops rows whose id is in IDs.
type IDNotIn struct {
	IDs []string
}

func (IDNotIn) predicateNode() {}

// LinkedTo keeps link instances with DocumentID on either end.
// Only valid inside Links.
type LinkedTo struct {
	DocumentID string
}

func (LinkedTo) predicateNode() {}

// Fulltext keeps rows whose data contains every term, case-insensitively.
type Fulltext struct {
	Terms []string
}

func (Fulltext) predicateNode() {}

// CreatedBy keeps rows created by the user.
type CreatedBy struct {
	UserID string
}

func (CreatedBy) predicateNode() {}

// And requires all predicates. An empty And matches everything.
type And struct {
	Predicates []Predicate
}

func (And) predicateNode() {}

// AllOf builds an And, dropping nil predicates and unwrapping a single
// remaining one.
func AllOf(preds ...Predicate) Predicate {
	var out []Predicate
	for _, p := range preds {
		if p != nil {
			out = append(out, p)
		}
	}
	switch len(out) {
	case 0:
		return nil
	case 1:
		return out[0]
	default:
		return And{Predicates: out}
	}
}

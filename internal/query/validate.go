package query

import "fmt"

// ValidationResult lists the problems found in a query.
type ValidationResult struct {
	// Valid is true when Errors is empty.
	Valid bool

	// Errors describes each problem, in traversal order.
	Errors []string
}

// Validate checks that a query is well formed: a scope is set, every
// attribute condition is known and has the number of values it needs, and
// link-only predicates appear only in link queries.
//
// Validate is a pure function with no side effects.
func Validate(q Query) ValidationResult {
	v := &validator{errors: []string{}}
	v.validateQuery(q)

	return ValidationResult{
		Valid:  len(v.errors) == 0,
		Errors: v.errors,
	}
}

// validator accumulates errors during traversal.
type validator struct {
	errors []string
	links  bool
}

func (v *validator) addError(format string, args ...any) {
	v.errors = append(v.errors, fmt.Sprintf(format, args...))
}

func (v *validator) validateQuery(q Query) {
	switch query := q.(type) {
	case nil:
		v.addError("nil query")
	case Documents:
		if query.CollectionID == "" {
			v.addError("documents query without collection")
		}
		v.validatePage(query.Page)
		v.validatePredicate(query.Filter)
	case Links:
		if query.LinkTypeID == "" {
			v.addError("links query without link type")
		}
		v.links = true
		v.validatePage(query.Page)
		v.validatePredicate(query.Filter)
	default:
		v.addError("unknown query type: %T", q)
	}
}

func (v *validator) validatePage(p Page) {
	if p.Limit < 0 || p.Offset < 0 {
		v.addError("negative page bounds (limit=%d, offset=%d)", p.Limit, p.Offset)
	}
}

func (v *validator) validatePredicate(p Predicate) {
	switch pred := p.(type) {
	case nil:
		// nil predicates are valid (no filter)
	case Attr:
		v.validateAttr(pred)
	case IDIn, IDNotIn, CreatedBy:
	case LinkedTo:
		if !v.links {
			v.addError("LinkedTo used outside a links query")
		}
		if pred.DocumentID == "" {
			v.addError("LinkedTo without document id")
		}
	case Fulltext:
		if len(pred.Terms) == 0 {
			v.addError("fulltext without terms")
		}
	case And:
		for _, sub := range pred.Predicates {
			v.validatePredicate(sub)
		}
	default:
		v.addError("unknown predicate type: %T", p)
	}
}

func (v *validator) validateAttr(a Attr) {
	if a.AttributeID == "" {
		v.addError("attribute condition %s without attribute id", a.Condition)
	}
	n, known := a.Condition.arity()
	if !known {
		v.addError("unknown condition %q on attribute %s", a.Condition, a.AttributeID)
		return
	}
	switch {
	case n == 1 && len(a.Values) != 1:
		v.addError("%s on attribute %s needs exactly one value, got %d", a.Condition, a.AttributeID, len(a.Values))
	case n == -1 && len(a.Values) == 0:
		v.addError("%s on attribute %s needs at least one value", a.Condition, a.AttributeID)
	case n == 0 && len(a.Values) != 0:
		v.addError("%s on attribute %s takes no values", a.Condition, a.AttributeID)
	}
}

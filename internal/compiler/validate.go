package compiler

import (
	"fmt"
	"regexp"

	"github.com/roach88/automaton/internal/ir"
)

// Validation error codes (E100-E199)
const (
	// Attribute errors (E101-E104)
	ErrUnknownConstraintType = "E101" // type is not a known constraint type
	ErrEmptyFunction         = "E102" // function has no script
	ErrUnknownDependency     = "E103" // function depends on an undeclared attribute
	ErrInvalidIdentifier     = "E104" // id is not a valid identifier

	// Rule errors (E110-E119)
	ErrInvalidTiming      = "E110" // unknown rule timing
	ErrRuleBody           = "E111" // rule needs exactly one of script or auto_link
	ErrAutoLinkReference  = "E112" // auto-link names an unknown collection, attribute or link type
	ErrAutoLinkLinkType   = "E113" // auto-link link type does not join its collections
	ErrAutoLinkAttachment = "E114" // auto-link rule attached outside its collections

	// Link type errors (E120-E129)
	ErrUnknownCollection = "E120" // link type names an unknown collection
)

// identPattern matches schema ids: letters, digits, '_' and '-', starting
// with a letter.
var identPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)

var validTimings = map[ir.RuleTiming]bool{
	ir.TimingCreate:       true,
	ir.TimingUpdate:       true,
	ir.TimingDelete:       true,
	ir.TimingCreateUpdate: true,
	ir.TimingCreateDelete: true,
	ir.TimingUpdateDelete: true,
	ir.TimingAll:          true,
}

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks a compiled project.
// Returns all errors found (does not fail-fast).
func Validate(p *Project) []ValidationError {
	var errs []ValidationError

	for _, c := range p.Collections {
		prefix := "collection." + c.ID
		errs = append(errs, validateID(prefix, c.ID)...)
		errs = append(errs, validateAttributes(prefix, c.Attributes)...)
		for _, r := range c.Rules {
			errs = append(errs, validateRule(p, prefix, c.ID, false, r)...)
		}
	}

	for _, l := range p.LinkTypes {
		prefix := "link_type." + l.ID
		errs = append(errs, validateID(prefix, l.ID)...)
		for i, cid := range l.CollectionIDs {
			if p.Collection(cid) == nil {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.collections[%d]", prefix, i),
					Message: fmt.Sprintf("unknown collection %q", cid),
					Code:    ErrUnknownCollection,
				})
			}
		}
		errs = append(errs, validateAttributes(prefix, l.Attributes)...)
		for _, r := range l.Rules {
			errs = append(errs, validateRule(p, prefix, l.ID, true, r)...)
		}
	}

	return errs
}

func validateID(field, id string) []ValidationError {
	if identPattern.MatchString(id) {
		return nil
	}
	return []ValidationError{{
		Field:   field,
		Message: fmt.Sprintf("invalid identifier %q", id),
		Code:    ErrInvalidIdentifier,
	}}
}

func validateAttributes(prefix string, attrs []ir.Attribute) []ValidationError {
	var errs []ValidationError

	declared := make(map[string]bool, len(attrs))
	for _, a := range attrs {
		declared[a.ID] = true
	}

	for _, a := range attrs {
		field := prefix + ".attribute." + a.ID
		errs = append(errs, validateID(field, a.ID)...)

		if t := ir.TypeOf(a.Constraint); !ir.ValidConstraintTypes[t] {
			errs = append(errs, ValidationError{
				Field:   field + ".type",
				Message: fmt.Sprintf("unknown constraint type %q", t),
				Code:    ErrUnknownConstraintType,
			})
		}

		if a.Function == nil {
			continue
		}
		if a.Function.JS == "" {
			errs = append(errs, ValidationError{
				Field:   field + ".function.js",
				Message: "function script is empty",
				Code:    ErrEmptyFunction,
			})
		}
		for i, dep := range a.Function.Dependencies {
			if !declared[dep] {
				errs = append(errs, ValidationError{
					Field:   fmt.Sprintf("%s.function.dependencies[%d]", field, i),
					Message: fmt.Sprintf("unknown attribute %q", dep),
					Code:    ErrUnknownDependency,
				})
			}
		}
	}
	return errs
}

func validateRule(p *Project, prefix, ownerID string, onLinkType bool, r ir.Rule) []ValidationError {
	var errs []ValidationError
	field := prefix + ".rule." + r.ID

	errs = append(errs, validateID(field, r.ID)...)

	if !validTimings[r.Timing] {
		errs = append(errs, ValidationError{
			Field:   field + ".timing",
			Message: fmt.Sprintf("unknown timing %q", r.Timing),
			Code:    ErrInvalidTiming,
		})
	}

	switch {
	case r.AutoLink != nil && r.Script != "":
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "rule has both script and auto_link",
			Code:    ErrRuleBody,
		})
	case r.AutoLink == nil && r.Script == "":
		errs = append(errs, ValidationError{
			Field:   field,
			Message: "rule has neither script nor auto_link",
			Code:    ErrRuleBody,
		})
	}

	if r.AutoLink != nil {
		errs = append(errs, validateAutoLink(p, field+".auto_link", ownerID, onLinkType, *r.AutoLink)...)
	}
	return errs
}

func validateAutoLink(p *Project, field, ownerID string, onLinkType bool, def ir.AutoLinkRule) []ValidationError {
	var errs []ValidationError

	if onLinkType || (ownerID != def.Collection1 && ownerID != def.Collection2) {
		errs = append(errs, ValidationError{
			Field:   field,
			Message: fmt.Sprintf("auto-link rule must be attached to %q or %q", def.Collection1, def.Collection2),
			Code:    ErrAutoLinkAttachment,
		})
	}

	sides := []struct{ coll, attr, name string }{
		{def.Collection1, def.Attribute1, "1"},
		{def.Collection2, def.Attribute2, "2"},
	}
	for _, s := range sides {
		c := p.Collection(s.coll)
		if c == nil {
			errs = append(errs, ValidationError{
				Field:   field + ".collection" + s.name,
				Message: fmt.Sprintf("unknown collection %q", s.coll),
				Code:    ErrAutoLinkReference,
			})
			continue
		}
		if c.Attribute(s.attr) == nil {
			errs = append(errs, ValidationError{
				Field:   field + ".attribute" + s.name,
				Message: fmt.Sprintf("unknown attribute %q in collection %q", s.attr, s.coll),
				Code:    ErrAutoLinkReference,
			})
		}
	}

	lt := p.LinkType(def.LinkType)
	switch {
	case lt == nil:
		errs = append(errs, ValidationError{
			Field:   field + ".link_type",
			Message: fmt.Sprintf("unknown link type %q", def.LinkType),
			Code:    ErrAutoLinkReference,
		})
	case !lt.Connects(def.Collection1, def.Collection2):
		errs = append(errs, ValidationError{
			Field:   field + ".link_type",
			Message: fmt.Sprintf("link type %q does not join %q and %q", def.LinkType, def.Collection1, def.Collection2),
			Code:    ErrAutoLinkLinkType,
		})
	}
	return errs
}

package compiler

import (
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"

	"github.com/roach88/automaton/internal/ir"
)

// CompileCollection parses a CUE collection struct.
//
// The CUE value should be the collection struct itself, e.g.:
//
//	v := ctx.CompileString(`collection: tasks: { ... }`)
//	c, err := CompileCollection("tasks", v.LookupPath(cue.ParsePath("collection.tasks")))
func CompileCollection(id string, v cue.Value) (*ir.Collection, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	c := &ir.Collection{ID: id}
	var err error
	if c.Name, err = optionalString(v, "name", id); err != nil {
		return nil, err
	}
	if c.Attributes, err = parseAttributes(v); err != nil {
		return nil, err
	}
	if c.Rules, err = parseRules(v); err != nil {
		return nil, err
	}
	return c, nil
}

// CompileLinkType parses a CUE link type struct. collections is required
// and names exactly two collections.
func CompileLinkType(id string, v cue.Value) (*ir.LinkType, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	l := &ir.LinkType{ID: id}
	var err error
	if l.Name, err = optionalString(v, "name", id); err != nil {
		return nil, err
	}

	colls := v.LookupPath(cue.ParsePath("collections"))
	if !colls.Exists() {
		return nil, &CompileError{
			Field:   "link_type." + id + ".collections",
			Message: "collections is required",
			Pos:     v.Pos(),
		}
	}
	var pair []string
	if err := colls.Decode(&pair); err != nil {
		return nil, formatCUEError(err)
	}
	if len(pair) != 2 {
		return nil, &CompileError{
			Field:   "link_type." + id + ".collections",
			Message: fmt.Sprintf("expected 2 collections, got %d", len(pair)),
			Pos:     colls.Pos(),
		}
	}
	l.CollectionIDs = [2]string{pair[0], pair[1]}

	if l.Attributes, err = parseAttributes(v); err != nil {
		return nil, err
	}
	if l.Rules, err = parseRules(v); err != nil {
		return nil, err
	}
	return l, nil
}

// parseAttributes extracts attribute definitions in declaration order.
func parseAttributes(v cue.Value) ([]ir.Attribute, error) {
	attrsVal := v.LookupPath(cue.ParsePath("attribute"))
	if !attrsVal.Exists() {
		return nil, nil
	}

	iter, err := attrsVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var attrs []ir.Attribute
	for iter.Next() {
		id := iter.Selector().Unquoted()
		av := iter.Value()

		attr := ir.Attribute{ID: id}
		if attr.Name, err = optionalString(av, "name", id); err != nil {
			return nil, err
		}
		if attr.Constraint, err = parseConstraint(av); err != nil {
			return nil, err
		}
		if attr.Function, err = parseFunction(av); err != nil {
			return nil, err
		}
		attrs = append(attrs, attr)
	}
	return attrs, nil
}

// parseConstraint reads type and config. An untyped attribute has no
// constraint.
func parseConstraint(v cue.Value) (*ir.Constraint, error) {
	typ, err := optionalString(v, "type", string(ir.ConstraintNone))
	if err != nil {
		return nil, err
	}

	var config ir.IRObject
	if cv := v.LookupPath(cue.ParsePath("config")); cv.Exists() {
		config, err = toObject(cv)
		if err != nil {
			return nil, err
		}
	}

	if ir.ConstraintType(typ) == ir.ConstraintNone && len(config) == 0 {
		return nil, nil
	}
	return &ir.Constraint{Type: ir.ConstraintType(typ), Config: config}, nil
}

func parseFunction(v cue.Value) (*ir.Function, error) {
	fv := v.LookupPath(cue.ParsePath("function"))
	if !fv.Exists() {
		return nil, nil
	}

	js, err := fv.LookupPath(cue.ParsePath("js")).String()
	if err != nil {
		return nil, formatCUEError(err)
	}
	f := &ir.Function{JS: js}
	if dv := fv.LookupPath(cue.ParsePath("dependencies")); dv.Exists() {
		if err := dv.Decode(&f.Dependencies); err != nil {
			return nil, formatCUEError(err)
		}
	}
	return f, nil
}

// toObject converts a CUE struct to an IRObject. Numbers keep their exact
// text: integers become IRInt, everything else IRDecimal.
func toObject(v cue.Value) (ir.IRObject, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, formatCUEError(err)
	}
	val, err := ir.UnmarshalIRValue(data)
	if err != nil {
		return nil, &CompileError{Field: "config", Message: err.Error(), Pos: v.Pos()}
	}
	obj, ok := val.(ir.IRObject)
	if !ok {
		return nil, &CompileError{Field: "config", Message: "config must be a struct", Pos: v.Pos()}
	}
	return obj, nil
}

// optionalString returns the string at path, or def when the field is
// absent.
func optionalString(v cue.Value, path, def string) (string, error) {
	fv := v.LookupPath(cue.ParsePath(path))
	if !fv.Exists() {
		return def, nil
	}
	if d, ok := fv.Default(); ok {
		fv = d
	}
	s, err := fv.String()
	if err != nil {
		return "", formatCUEError(err)
	}
	return s, nil
}

// CompileError represents a compilation error with source position.
type CompileError struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	// First error with position info
	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}

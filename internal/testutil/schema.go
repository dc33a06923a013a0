// Package testutil holds builders and clocks shared by tests across the
// engine packages.
package testutil

import "github.com/roach88/automaton/internal/ir"

// TextAttr returns an attribute with a Text constraint.
func TextAttr(id string) ir.Attribute {
	return ir.Attribute{ID: id, Name: id, Constraint: &ir.Constraint{Type: ir.ConstraintText}}
}

// NumberAttr returns an attribute with a Number constraint.
func NumberAttr(id string) ir.Attribute {
	return ir.Attribute{ID: id, Name: id, Constraint: &ir.Constraint{Type: ir.ConstraintNumber}}
}

// SelectAttr returns a Select attribute whose options carry identical value
// and display value.
func SelectAttr(id string, multi bool, options ...string) ir.Attribute {
	opts := make(ir.IRArray, len(options))
	for i, o := range options {
		opts[i] = ir.IRString(o)
	}
	return ir.Attribute{
		ID:   id,
		Name: id,
		Constraint: &ir.Constraint{
			Type:   ir.ConstraintSelect,
			Config: ir.IRObject{"multi": ir.IRBool(multi), "options": opts},
		},
	}
}

// FunctionAttr returns a computed attribute evaluated by js whenever one of
// deps changes.
func FunctionAttr(id, js string, deps ...string) ir.Attribute {
	return ir.Attribute{ID: id, Name: id, Function: &ir.Function{JS: js, Dependencies: deps}}
}

// Collection builds a collection schema object.
func Collection(id string, attrs ...ir.Attribute) *ir.Collection {
	return &ir.Collection{ID: id, Name: id, Attributes: attrs}
}

// LinkType builds a link type between two collections.
func LinkType(id, c1, c2 string, attrs ...ir.Attribute) *ir.LinkType {
	return &ir.LinkType{ID: id, Name: id, CollectionIDs: [2]string{c1, c2}, Attributes: attrs}
}

// ScriptRule builds a script rule with the given timing.
func ScriptRule(id string, timing ir.RuleTiming, js string) ir.Rule {
	return ir.Rule{ID: id, Name: id, Type: ir.RuleScript, Timing: timing, Script: js}
}

// AutoLinkRule builds an auto-link rule firing on create and update.
func AutoLinkRule(id string, def ir.AutoLinkRule) ir.Rule {
	return ir.Rule{ID: id, Name: id, Type: ir.RuleAutoLink, Timing: ir.TimingCreateUpdate, AutoLink: &def}
}

// Doc builds an unsaved document with the given data.
func Doc(collectionID string, data ir.IRObject) *ir.Document {
	if data == nil {
		data = ir.IRObject{}
	}
	return &ir.Document{CollectionID: collectionID, Data: data}
}

package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/automaton/internal/ir"
)

// parseRules extracts the rules of a collection or link type in declaration
// order. A rule with an auto_link block is an auto-link rule, any other is
// a script rule.
func parseRules(v cue.Value) ([]ir.Rule, error) {
	rulesVal := v.LookupPath(cue.ParsePath("rule"))
	if !rulesVal.Exists() {
		return nil, nil
	}

	iter, err := rulesVal.Fields()
	if err != nil {
		return nil, formatCUEError(err)
	}

	var rules []ir.Rule
	for iter.Next() {
		r, err := CompileRule(iter.Selector().Unquoted(), iter.Value())
		if err != nil {
			return nil, err
		}
		rules = append(rules, *r)
	}
	return rules, nil
}

// CompileRule parses a single rule struct.
func CompileRule(id string, v cue.Value) (*ir.Rule, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	r := &ir.Rule{ID: id, Type: ir.RuleScript}
	var err error
	if r.Name, err = optionalString(v, "name", ""); err != nil {
		return nil, err
	}
	timing, err := optionalString(v, "timing", string(ir.TimingCreateUpdate))
	if err != nil {
		return nil, err
	}
	r.Timing = ir.RuleTiming(timing)
	if r.Script, err = optionalString(v, "script", ""); err != nil {
		return nil, err
	}

	if av := v.LookupPath(cue.ParsePath("auto_link")); av.Exists() {
		var def ir.AutoLinkRule
		if err := av.Decode(&def); err != nil {
			return nil, formatCUEError(err)
		}
		r.Type = ir.RuleAutoLink
		r.AutoLink = &def
	}
	return r, nil
}

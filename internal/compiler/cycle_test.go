package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ir"
)

func fn(id, js string, deps ...string) ir.Attribute {
	return ir.Attribute{ID: id, Function: &ir.Function{JS: js, Dependencies: deps}}
}

func project(attrs ...ir.Attribute) *Project {
	return &Project{Collections: []*ir.Collection{{ID: "tasks", Attributes: attrs}}}
}

func TestAnalyzeCycles_NoFunctions(t *testing.T) {
	warnings := AnalyzeCycles(project(ir.Attribute{ID: "a"}, ir.Attribute{ID: "b"}))
	assert.Empty(t, warnings)
	assert.NotNil(t, warnings, "empty result is an empty slice")
}

func TestAnalyzeCycles_Chain(t *testing.T) {
	warnings := AnalyzeCycles(project(
		ir.Attribute{ID: "a"},
		fn("b", "1", "a"),
		fn("c", "1", "b"),
	))
	assert.Empty(t, warnings)
}

func TestAnalyzeCycles_SelfLoop(t *testing.T) {
	warnings := AnalyzeCycles(project(fn("a", "1", "a")))
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"tasks.a", "tasks.a"}, warnings[0].Path)
	assert.Equal(t, "warning", warnings[0].Level)
}

func TestAnalyzeCycles_TwoFunctions(t *testing.T) {
	warnings := AnalyzeCycles(project(
		fn("a", "1", "b"),
		fn("b", "1", "a"),
	))
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"tasks.a", "tasks.b", "tasks.a"}, warnings[0].Path)
	assert.Equal(t, "Potential cycle detected: tasks.a → tasks.b → tasks.a", warnings[0].Message)
}

func TestAnalyzeCycles_AnyChangeIgnoresOwnWrites(t *testing.T) {
	warnings := AnalyzeCycles(project(
		ir.Attribute{ID: "a"},
		fn("total", "1"),
	))
	assert.Empty(t, warnings, "a function without dependencies is not re-triggered by itself")

	warnings = AnalyzeCycles(project(fn("x", "1"), fn("y", "1")))
	require.Len(t, warnings, 1, "two catch-all functions trigger each other")
}

func TestAnalyzeCycles_LinkTypes(t *testing.T) {
	p := &Project{LinkTypes: []*ir.LinkType{{ID: "assignee", Attributes: []ir.Attribute{fn("r", "1", "r")}}}}
	warnings := AnalyzeCycles(p)
	require.Len(t, warnings, 1)
	assert.Equal(t, []string{"assignee.r", "assignee.r"}, warnings[0].Path)
}

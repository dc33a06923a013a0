package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Code)
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		codes []string
	}{
		{
			name:  "valid",
			src:   `collection: tasks: attribute: title: type: "Text"`,
			codes: []string{},
		},
		{
			name:  "unknown constraint type",
			src:   `collection: tasks: attribute: title: type: "Money"`,
			codes: []string{ErrUnknownConstraintType},
		},
		{
			name:  "empty function",
			src:   `collection: tasks: attribute: f: function: js: ""`,
			codes: []string{ErrEmptyFunction},
		},
		{
			name:  "unknown dependency",
			src:   `collection: tasks: attribute: f: function: {js: "1", dependencies: ["nope"]}`,
			codes: []string{ErrUnknownDependency},
		},
		{
			name:  "invalid identifier",
			src:   `collection: "9tasks": attribute: title: type: "Text"`,
			codes: []string{ErrInvalidIdentifier},
		},
		{
			name:  "invalid timing",
			src:   `collection: tasks: rule: r: {timing: "sometimes", script: "1"}`,
			codes: []string{ErrInvalidTiming},
		},
		{
			name:  "rule without body",
			src:   `collection: tasks: rule: r: timing: "create"`,
			codes: []string{ErrRuleBody},
		},
		{
			name:  "unknown link type collection",
			src:   `collection: tasks: {}, link_type: l: collections: ["tasks", "people"]`,
			codes: []string{ErrUnknownCollection},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := CompileString("test.cue", tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.codes, codes(Validate(p)))
		})
	}
}

func TestValidate_AutoLink(t *testing.T) {
	base := func(def ir.AutoLinkRule, owner string) *Project {
		rule := ir.Rule{ID: "al", Type: ir.RuleAutoLink, Timing: ir.TimingCreateUpdate, AutoLink: &def}
		p := &Project{
			Collections: []*ir.Collection{
				{ID: "tasks", Attributes: []ir.Attribute{{ID: "project"}}},
				{ID: "projects", Attributes: []ir.Attribute{{ID: "code"}}},
				{ID: "people"},
			},
			LinkTypes: []*ir.LinkType{
				{ID: "task_project", CollectionIDs: [2]string{"projects", "tasks"}},
				{ID: "assignee", CollectionIDs: [2]string{"tasks", "people"}},
			},
		}
		p.Collection(owner).Rules = []ir.Rule{rule}
		return p
	}
	good := ir.AutoLinkRule{
		Collection1: "tasks", Attribute1: "project",
		Collection2: "projects", Attribute2: "code",
		LinkType: "task_project",
	}

	t.Run("valid", func(t *testing.T) {
		assert.Empty(t, Validate(base(good, "tasks")))
		assert.Empty(t, Validate(base(good, "projects")), "either side may own the rule")
	})

	t.Run("attached elsewhere", func(t *testing.T) {
		assert.Equal(t, []string{ErrAutoLinkAttachment}, codes(Validate(base(good, "people"))))
	})

	t.Run("unknown references", func(t *testing.T) {
		def := good
		def.Attribute1 = "missing"
		def.Collection2 = "nowhere"
		def.LinkType = "gone"
		errs := Validate(base(def, "tasks"))
		assert.Equal(t, []string{ErrAutoLinkReference, ErrAutoLinkReference, ErrAutoLinkReference}, codes(errs))
	})

	t.Run("link type does not join", func(t *testing.T) {
		def := good
		def.LinkType = "assignee"
		assert.Equal(t, []string{ErrAutoLinkLinkType}, codes(Validate(base(def, "tasks"))))
	})

	t.Run("script and auto link", func(t *testing.T) {
		p := base(good, "tasks")
		p.Collections[0].Rules[0].Script = "1"
		assert.Equal(t, []string{ErrRuleBody}, codes(Validate(p)))
	})

	t.Run("on link type", func(t *testing.T) {
		p := base(good, "tasks")
		p.LinkTypes[0].Rules = p.Collections[0].Rules
		p.Collections[0].Rules = nil
		assert.Equal(t, []string{ErrAutoLinkAttachment}, codes(Validate(p)))
	})
}

func TestValidationError_Error(t *testing.T) {
	err := ValidationError{Field: "collection.tasks", Message: "bad", Code: ErrInvalidTiming}
	assert.Equal(t, "[E110] collection.tasks: bad", err.Error())
}

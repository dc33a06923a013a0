package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ir"
)

func TestValidateWellFormed(t *testing.T) {
	q := Documents{
		CollectionID: "c1",
		Filter: And{Predicates: []Predicate{
			Attr{AttributeID: "a", Condition: Equals, Values: []ir.IRValue{ir.IRString("x")}},
			Attr{AttributeID: "b", Condition: HasAll, Values: []ir.IRValue{ir.IRString("x"), ir.IRString("y")}},
			Attr{AttributeID: "c", Condition: IsEmpty},
			IDNotIn{IDs: []string{"d1"}},
			Fulltext{Terms: []string{"foo"}},
		}},
		Page: Page{Limit: 10},
	}

	result := Validate(q)
	assert.True(t, result.Valid, "errors: %v", result.Errors)
	assert.Empty(t, result.Errors)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	q := Documents{
		Filter: And{Predicates: []Predicate{
			Attr{AttributeID: "", Condition: Equals},
			Attr{AttributeID: "b", Condition: HasNoneOf},
			Attr{AttributeID: "c", Condition: IsEmpty, Values: []ir.IRValue{ir.IRInt(1)}},
			Attr{AttributeID: "d", Condition: "LIKE"},
			LinkedTo{DocumentID: "d1"},
		}},
		Page: Page{Offset: -1},
	}

	result := Validate(q)
	require.False(t, result.Valid)
	assert.Len(t, result.Errors, 8)
	assert.Equal(t, "documents query without collection", result.Errors[0])
	assert.Contains(t, result.Errors[1], "negative page bounds")
}

func TestValidateLinks(t *testing.T) {
	result := Validate(Links{LinkTypeID: "lt", Filter: LinkedTo{DocumentID: "d1"}})
	assert.True(t, result.Valid)

	result = Validate(Links{Filter: LinkedTo{}})
	assert.Len(t, result.Errors, 2)
}

func TestValidateNil(t *testing.T) {
	result := Validate(nil)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"nil query"}, result.Errors)
}

func TestAllOf(t *testing.T) {
	assert.Nil(t, AllOf())
	assert.Nil(t, AllOf(nil, nil))

	single := CreatedBy{UserID: "u"}
	assert.Equal(t, single, AllOf(nil, single))

	both := AllOf(single, IDIn{IDs: []string{"x"}})
	and, ok := both.(And)
	require.True(t, ok)
	assert.Len(t, and.Predicates, 2)
}

package querysql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/query"
)

func TestCompile_DocumentsNoFilter(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(query.Documents{CollectionID: "c1"})
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT "+DocumentColumns+" FROM documents WHERE collection_id = ? ORDER BY id ASC COLLATE BINARY",
		sql)
	assert.Equal(t, []any{"c1"}, params)
}

func TestCompile_Equals(t *testing.T) {
	q := query.Documents{
		CollectionID: "c1",
		Filter:       query.Attr{AttributeID: "a1", Condition: query.Equals, Values: []ir.IRValue{ir.IRString("widgets")}},
	}

	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	assert.Contains(t, sql, "AND json_extract(data, ?) = ?")
	assert.NotContains(t, sql, "widgets") // value never interpolated
	assert.NotContains(t, sql, "a1")
	assert.Equal(t, []any{"c1", `$."a1"`, "widgets"}, params)
}

func TestCompile_HasAll(t *testing.T) {
	q := query.Documents{
		CollectionID: "c1",
		Filter: query.Attr{AttributeID: "tags", Condition: query.HasAll,
			Values: []ir.IRValue{ir.IRString("A"), ir.IRString("B")}},
	}

	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	assert.Contains(t, sql,
		"(EXISTS (SELECT 1 FROM json_each(data, ?) WHERE value = ?) AND EXISTS (SELECT 1 FROM json_each(data, ?) WHERE value = ?))")
	assert.Equal(t, []any{"c1", `$."tags"`, "A", `$."tags"`, "B"}, params)
}

func TestCompile_HasNoneOf(t *testing.T) {
	q := query.Documents{
		CollectionID: "c1",
		Filter: query.Attr{AttributeID: "tags", Condition: query.HasNoneOf,
			Values: []ir.IRValue{ir.IRString("C"), ir.IRBool(true)}},
	}

	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	assert.Contains(t, sql, "NOT EXISTS (SELECT 1 FROM json_each(data, ?) WHERE value IN (?, ?))")
	assert.Equal(t, []any{"c1", `$."tags"`, "C", int64(1)}, params)
}

func TestCompile_LinksLinkedTo(t *testing.T) {
	q := query.Links{
		LinkTypeID: "lt",
		Filter:     query.AllOf(query.LinkedTo{DocumentID: "d1"}, query.IDNotIn{IDs: []string{"l1", "l2"}}),
		Page:       query.Page{Limit: 5, Offset: 10},
	}

	sql, params, err := NewSQLCompiler().Compile(q)
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT "+LinkColumns+" FROM link_instances WHERE link_type_id = ? AND ((document_id1 = ? OR document_id2 = ?) AND id NOT IN (?, ?)) ORDER BY id ASC COLLATE BINARY LIMIT ? OFFSET ?",
		sql)
	assert.Equal(t, []any{"lt", "d1", "d1", "l1", "l2", 5, 10}, params)
}

func TestCompile_LinkedToRejectedForDocuments(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(query.Documents{CollectionID: "c", Filter: query.LinkedTo{DocumentID: "d"}})
	assert.Error(t, err)
}

func TestCompile_EmptyIDIn(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(query.Documents{CollectionID: "c", Filter: query.IDIn{}})
	require.NoError(t, err)
	assert.Contains(t, sql, "AND 1 = 0")
	assert.Equal(t, []any{"c"}, params)
}

func TestCompile_FulltextEscapesWildcards(t *testing.T) {
	sql, params, err := NewSQLCompiler().Compile(query.Documents{
		CollectionID: "c",
		Filter:       query.Fulltext{Terms: []string{"50%_Off"}},
	})
	require.NoError(t, err)
	assert.Contains(t, sql, "LOWER(data) LIKE ? ESCAPE")
	assert.Equal(t, []any{"c", `%50\%\_off%`}, params)
}

func TestCompile_ConditionArityErrors(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(query.Documents{
		CollectionID: "c",
		Filter:       query.Attr{AttributeID: "a", Condition: query.Equals},
	})
	assert.Error(t, err)

	_, _, err = NewSQLCompiler().Compile(query.Documents{
		CollectionID: "c",
		Filter:       query.Attr{AttributeID: "a", Condition: query.HasSome},
	})
	assert.Error(t, err)

	_, _, err = NewSQLCompiler().Compile(query.Documents{
		CollectionID: "c",
		Filter:       query.Attr{AttributeID: "a", Condition: query.Equals, Values: []ir.IRValue{ir.IRArray{}}},
	})
	assert.Error(t, err)
}

func TestCompile_Nil(t *testing.T) {
	_, _, err := NewSQLCompiler().Compile(nil)
	assert.Error(t, err)
}

func TestJSONPathQuotes(t *testing.T) {
	assert.Equal(t, `$."a\"b"`, JSONPath(`a"b`))
}

func TestIRValueToParam(t *testing.T) {
	v, err := irValueToParam(ir.MustIRDecimal("0.5"))
	require.NoError(t, err)
	assert.Equal(t, 0.5, v)

	v, err = irValueToParam(ir.IRBool(false))
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)

	v, err = irValueToParam(ir.IRNull{})
	require.NoError(t, err)
	assert.Nil(t, v)
}

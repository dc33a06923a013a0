// Package querysql compiles query IR to parameterized SQLite SQL.
//
// Attribute maps are stored as JSON text, so attribute conditions compile to
// JSON1 expressions (json_extract, json_each). Every query has a stable
// ORDER BY and every value is bound as a parameter, never interpolated.
package querysql

import (
	"fmt"
	"strings"
	"time"

	"github.com/roach88/automaton/internal/ir"
	"github.com/roach88/automaton/internal/query"
)

// DocumentColumns is the column list every compiled documents query selects.
const DocumentColumns = "id, collection_id, parent_id, data, created_by, updated_by, created_at, updated_at"

// LinkColumns is the column list every compiled links query selects.
const LinkColumns = "id, link_type_id, document_id1, document_id2, data, created_by, updated_by, created_at, updated_at"

// SQLCompiler compiles query IR to parameterized SQL for SQLite.
type SQLCompiler struct {
	links bool
}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to parameterized SQL.
// Returns (sql, params, error) tuple.
func (c *SQLCompiler) Compile(q query.Query) (string, []any, error) {
	switch qq := q.(type) {
	case nil:
		return "", nil, fmt.Errorf("cannot compile nil query")
	case query.Documents:
		c.links = false
		return c.compileScoped("documents", DocumentColumns, "collection_id", qq.CollectionID, qq.Filter, qq.Page)
	case query.Links:
		c.links = true
		return c.compileScoped("link_instances", LinkColumns, "link_type_id", qq.LinkTypeID, qq.Filter, qq.Page)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileScoped(table, columns, scopeColumn, scope string, filter query.Predicate, page query.Page) (string, []any, error) {
	where := scopeColumn + " = ?"
	params := []any{scope}

	if filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		where += " AND " + filterSQL
		params = append(params, filterParams...)
	}

	// COLLATE BINARY keeps text ordering identical across SQLite versions.
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY id ASC COLLATE BINARY", columns, table, where)

	if page.Limit > 0 {
		sql += " LIMIT ? OFFSET ?"
		params = append(params, page.Limit, page.Offset)
	} else if page.Offset > 0 {
		sql += " LIMIT -1 OFFSET ?"
		params = append(params, page.Offset)
	}

	return sql, params, nil
}

// compilePredicate compiles a predicate to a WHERE fragment.
func (c *SQLCompiler) compilePredicate(p query.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case query.Attr:
		return c.compileAttr(pred)
	case query.IDIn:
		if len(pred.IDs) == 0 {
			return "1 = 0", nil, nil
		}
		return "id IN (" + placeholders(len(pred.IDs)) + ")", stringParams(pred.IDs), nil
	case query.IDNotIn:
		if len(pred.IDs) == 0 {
			return "1 = 1", nil, nil
		}
		return "id NOT IN (" + placeholders(len(pred.IDs)) + ")", stringParams(pred.IDs), nil
	case query.LinkedTo:
		if !c.links {
			return "", nil, fmt.Errorf("LinkedTo is only valid in links queries")
		}
		return "(document_id1 = ? OR document_id2 = ?)", []any{pred.DocumentID, pred.DocumentID}, nil
	case query.Fulltext:
		var parts []string
		var params []any
		for _, term := range pred.Terms {
			parts = append(parts, "LOWER(data) LIKE ? ESCAPE '\\'")
			params = append(params, "%"+escapeLike(strings.ToLower(term))+"%")
		}
		if len(parts) == 0 {
			return "1 = 1", nil, nil
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil
	case query.CreatedBy:
		return "created_by = ?", []any{pred.UserID}, nil
	case query.And:
		return c.compileAnd(pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileAnd compiles an And predicate to a conjunction.
func (c *SQLCompiler) compileAnd(and query.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // vacuous truth
	}

	var sqlParts []string
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}

	return "(" + strings.Join(sqlParts, " AND ") + ")", allParams, nil
}

// compileAttr compiles an attribute condition. The JSON path is itself a
// parameter so attribute ids never reach the SQL text.
func (c *SQLCompiler) compileAttr(a query.Attr) (string, []any, error) {
	path := JSONPath(a.AttributeID)

	values := make([]any, len(a.Values))
	for i, v := range a.Values {
		param, err := irValueToParam(v)
		if err != nil {
			return "", nil, fmt.Errorf("attribute %s: %w", a.AttributeID, err)
		}
		values[i] = param
	}

	one := func() (any, error) {
		if len(values) != 1 {
			return nil, fmt.Errorf("%s on attribute %s needs exactly one value", a.Condition, a.AttributeID)
		}
		return values[0], nil
	}
	some := func() error {
		if len(values) == 0 {
			return fmt.Errorf("%s on attribute %s needs at least one value", a.Condition, a.AttributeID)
		}
		return nil
	}

	switch a.Condition {
	case query.Equals, query.LowerThan, query.LowerThanEquals, query.GreaterThan, query.GreaterThanEquals:
		v, err := one()
		if err != nil {
			return "", nil, err
		}
		return fmt.Sprintf("json_extract(data, ?) %s ?", comparison[a.Condition]), []any{path, v}, nil

	case query.NotEquals:
		v, err := one()
		if err != nil {
			return "", nil, err
		}
		return "(json_extract(data, ?) IS NULL OR json_extract(data, ?) != ?)", []any{path, path, v}, nil

	case query.HasAll:
		if err := some(); err != nil {
			return "", nil, err
		}
		parts := make([]string, len(values))
		params := make([]any, 0, 2*len(values))
		for i, v := range values {
			parts[i] = "EXISTS (SELECT 1 FROM json_each(data, ?) WHERE value = ?)"
			params = append(params, path, v)
		}
		return "(" + strings.Join(parts, " AND ") + ")", params, nil

	case query.HasSome, query.HasNoneOf:
		if err := some(); err != nil {
			return "", nil, err
		}
		sql := "EXISTS (SELECT 1 FROM json_each(data, ?) WHERE value IN (" + placeholders(len(values)) + "))"
		if a.Condition == query.HasNoneOf {
			sql = "NOT " + sql
		}
		return sql, append([]any{path}, values...), nil

	case query.IsEmpty:
		return "COALESCE(json_extract(data, ?), '') IN ('', '[]')", []any{path}, nil

	case query.NotEmpty:
		return "COALESCE(json_extract(data, ?), '') NOT IN ('', '[]')", []any{path}, nil

	default:
		return "", nil, fmt.Errorf("unsupported condition %q", a.Condition)
	}
}

var comparison = map[query.Condition]string{
	query.Equals:            "=",
	query.LowerThan:         "<",
	query.LowerThanEquals:   "<=",
	query.GreaterThan:       ">",
	query.GreaterThanEquals: ">=",
}

// JSONPath returns the SQLite JSON path of a top-level attribute.
func JSONPath(attrID string) string {
	return `$."` + strings.ReplaceAll(attrID, `"`, `\"`) + `"`
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func stringParams(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// irValueToParam converts a scalar value to the SQL parameter JSON1
// produces for it: booleans become 1/0, decimals float64 and dates their
// stored RFC 3339 text.
func irValueToParam(v ir.IRValue) (any, error) {
	switch val := v.(type) {
	case ir.IRString:
		return string(val), nil
	case ir.IRInt:
		return int64(val), nil
	case ir.IRBool:
		if val {
			return int64(1), nil
		}
		return int64(0), nil
	case ir.IRDecimal:
		return val.Float64(), nil
	case ir.IRDate:
		return val.Time().Format(time.RFC3339Nano), nil
	case nil, ir.IRNull:
		return nil, nil
	case ir.IRArray:
		return nil, fmt.Errorf("IRArray cannot be used as SQL parameter directly")
	case ir.IRObject:
		return nil, fmt.Errorf("IRObject cannot be used as SQL parameter directly")
	default:
		return nil, fmt.Errorf("unsupported IRValue type for SQL parameter: %T", v)
	}
}

// Package querysql compiles journal queries (internal/queryir) to
// parameterized SQLite over the snapshots table.
package querysql

import (
	"fmt"
	"strings"

	"github.com/roach88/statekeep/internal/ir"
	"github.com/roach88/statekeep/internal/queryir"
	"github.com/roach88/statekeep/internal/store"
)

// columns maps plain query fields to snapshot columns.
var columns = map[string]string{
	queryir.FieldActor:   "actor_id",
	queryir.FieldState:   "state",
	queryir.FieldEvent:   "event_kind",
	queryir.FieldVersion: "version",
}

// SQLCompiler compiles queries to parameterized SQL for SQLite.
//
// Every query is ordered by journal sequence so results read in commit
// order. Values are always bound as parameters, never interpolated.
type SQLCompiler struct{}

// NewSQLCompiler creates a new SQLCompiler.
func NewSQLCompiler() *SQLCompiler {
	return &SQLCompiler{}
}

// Compile converts a query to parameterized SQL selecting
// store.SnapshotColumns, ready for store.QuerySnapshots.
// Returns (sql, params, error) tuple.
//
// The query is validated first; see queryir.Validate.
func (c *SQLCompiler) Compile(q queryir.Query) (string, []any, error) {
	if err := queryir.Validate(q); err != nil {
		return "", nil, fmt.Errorf("invalid query: %w", err)
	}

	switch query := q.(type) {
	case queryir.Select:
		return c.compileSelect(query)
	case *queryir.Select:
		return c.compileSelect(*query)
	default:
		return "", nil, fmt.Errorf("unsupported query type: %T", q)
	}
}

func (c *SQLCompiler) compileSelect(q queryir.Select) (string, []any, error) {
	var whereClause string
	var params []any
	if q.Filter != nil {
		filterSQL, filterParams, err := c.compilePredicate(q.Filter)
		if err != nil {
			return "", nil, fmt.Errorf("compile filter: %w", err)
		}
		whereClause = " WHERE " + filterSQL
		params = filterParams
	}

	sql := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		store.SnapshotColumns,
		q.From,
		whereClause,
		stableOrderKey)

	if q.Limit > 0 {
		sql += " LIMIT ?"
		params = append(params, q.Limit)
	}
	return sql, params, nil
}

// stableOrderKey orders rows by commit, breaking ties deterministically.
// COLLATE BINARY keeps text ordering stable across SQLite versions.
const stableOrderKey = "seq ASC, actor_id COLLATE BINARY ASC, version ASC"

// compilePredicate compiles a predicate to a WHERE clause fragment.
func (c *SQLCompiler) compilePredicate(p queryir.Predicate) (string, []any, error) {
	switch pred := p.(type) {
	case nil:
		return "1 = 1", nil, nil
	case queryir.Equals:
		return c.compileEquals(pred)
	case *queryir.Equals:
		return c.compileEquals(*pred)
	case queryir.And:
		return c.compileAnd(pred)
	case *queryir.And:
		return c.compileAnd(*pred)
	default:
		return "", nil, fmt.Errorf("unsupported predicate type: %T", p)
	}
}

// compileEquals compiles to "column = ?", or json_extract for context
// paths.
func (c *SQLCompiler) compileEquals(eq queryir.Equals) (string, []any, error) {
	param, err := irValueToParam(eq.Value)
	if err != nil {
		return "", nil, fmt.Errorf("%s: %w", eq.Field, err)
	}

	if column, ok := columns[eq.Field]; ok {
		return column + " = ?", []any{param}, nil
	}

	path, ok := queryir.ContextPath(eq.Field)
	if !ok {
		return "", nil, fmt.Errorf("unknown field %q", eq.Field)
	}
	return "json_extract(context, ?) = ?", []any{"$." + strings.Join(path, "."), param}, nil
}

func (c *SQLCompiler) compileAnd(and queryir.And) (string, []any, error) {
	if len(and.Predicates) == 0 {
		return "1 = 1", nil, nil // Always true (vacuous truth)
	}

	sqlParts := make([]string, 0, len(and.Predicates))
	var allParams []any
	for _, pred := range and.Predicates {
		sql, params, err := c.compilePredicate(pred)
		if err != nil {
			return "", nil, err
		}
		switch pred.(type) {
		case queryir.And, *queryir.And:
			sql = "(" + sql + ")"
		}
		sqlParts = append(sqlParts, sql)
		allParams = append(allParams, params...)
	}
	return strings.Join(sqlParts, " AND "), allParams, nil
}

// irValueToParam converts an ir.IRValue to a Go native type for a SQL
// parameter. Booleans become 1 and 0, which is what json_extract yields
// for JSON true and false.
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
	default:
		return nil, fmt.Errorf("unsupported value type for SQL parameter: %T", v)
	}
}

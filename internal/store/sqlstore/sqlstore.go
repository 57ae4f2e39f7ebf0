// Package sqlstore serves the store contract from a local SQLite snapshot of
// exported rows, so the inspector and recovery can run without the hosted store.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"taskscope/internal/store"
)

type Store struct {
	DB *sql.DB
}

var _ store.Client = Store{}

var ErrUnknownTable = errors.New("unknown table")

type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func lookup(name string) (table, error) {
	t, ok := tables[name]
	if !ok {
		return table{}, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	return t, nil
}

func (s Store) Select(ctx context.Context, tableName string, q store.Query) ([]store.Row, error) {
	t, err := lookup(tableName)
	if err != nil {
		return nil, err
	}
	projection, err := projectionOf(t, q.Columns)
	if err != nil {
		return nil, err
	}
	var (
		sb   strings.Builder
		args []any
	)
	fmt.Fprintf(&sb, "SELECT %s FROM %s", strings.Join(projection, ","), t.name)
	if len(q.Filters) > 0 {
		clauses := make([]string, 0, len(q.Filters))
		for _, f := range q.Filters {
			clause, fargs, err := filterClause(t, f)
			if err != nil {
				return nil, err
			}
			clauses = append(clauses, clause)
			args = append(args, fargs...)
		}
		sb.WriteString(" WHERE " + strings.Join(clauses, " AND "))
	}
	if len(q.Order) > 0 {
		parts := make([]string, 0, len(q.Order)+1)
		for _, o := range q.Order {
			if _, ok := t.column(o.Column); !ok {
				return nil, fmt.Errorf("order by unknown column %s.%s", t.name, o.Column)
			}
			dir := "ASC"
			if o.Desc {
				dir = "DESC"
			}
			parts = append(parts, o.Column+" "+dir)
		}
		parts = append(parts, "rowid ASC")
		sb.WriteString(" ORDER BY " + strings.Join(parts, ","))
	}
	switch {
	case q.Limit > 0:
		sb.WriteString(" LIMIT ?")
		args = append(args, q.Limit)
	case q.Offset > 0:
		sb.WriteString(" LIMIT -1")
	}
	if q.Offset > 0 {
		sb.WriteString(" OFFSET ?")
		args = append(args, q.Offset)
	}
	return s.query(ctx, s.DB, t, sb.String(), args...)
}

func (s Store) Insert(ctx context.Context, tableName string, row store.Row) (store.Row, error) {
	t, err := lookup(tableName)
	if err != nil {
		return nil, err
	}
	id, err := insert(ctx, s.DB, t, row, false)
	if err != nil {
		return nil, err
	}
	rows, err := s.Select(ctx, tableName, store.Query{Filters: []store.Filter{store.Eq("id", id)}, Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert %s: %w", tableName, store.ErrNotFound)
	}
	return rows[0], nil
}

// Import loads exported rows into a table, replacing rows with the same id.
// Columns the snapshot schema does not know are dropped.
func (s Store) Import(ctx context.Context, tableName string, rows []store.Row) (int, error) {
	t, err := lookup(tableName)
	if err != nil {
		return 0, err
	}
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()
	for i, r := range rows {
		if _, err := insert(ctx, tx, t, known(t, r), true); err != nil {
			return 0, fmt.Errorf("row %d: %w", i, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(rows), nil
}

func known(t table, r store.Row) store.Row {
	out := store.Row{}
	for k, v := range r {
		if _, ok := t.column(k); ok {
			out[k] = v
		}
	}
	return out
}

func insert(ctx context.Context, q queryer, t table, row store.Row, replace bool) (string, error) {
	r := make(store.Row, len(row)+1)
	for k, v := range row {
		r[k] = v
	}
	id := idString(r["id"])
	if id == "" {
		id = uuid.NewString()
	}
	r["id"] = id

	names := make([]string, 0, len(r))
	args := make([]any, 0, len(r))
	for _, c := range t.columns {
		v, ok := r[c.name]
		if !ok {
			continue
		}
		enc, err := encode(c, v)
		if err != nil {
			return "", err
		}
		names = append(names, c.name)
		args = append(args, enc)
	}
	for k := range r {
		if _, ok := t.column(k); !ok {
			return "", fmt.Errorf("insert into %s: unknown column %s", t.name, k)
		}
	}
	verb := "INSERT"
	if replace {
		verb = "INSERT OR REPLACE"
	}
	stmt := fmt.Sprintf("%s INTO %s(%s) VALUES (%s)", verb, t.name, strings.Join(names, ","), placeholders(len(names)))
	if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
		return "", fmt.Errorf("insert into %s: %w", t.name, err)
	}
	return id, nil
}

func idString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return fmt.Sprintf("%.0f", x)
	}
	return fmt.Sprint(v)
}

func encode(c column, v any) (any, error) {
	if v == nil {
		return nil, nil
	}
	switch c.kind {
	case kindJSON:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", c.name, err)
		}
		return string(b), nil
	case kindBool:
		if b, ok := v.(bool); ok {
			if b {
				return 1, nil
			}
			return 0, nil
		}
	case kindText:
		if _, ok := v.(string); !ok {
			return idString(v), nil
		}
	}
	return v, nil
}

func projectionOf(t table, columns string) ([]string, error) {
	if columns == "" || columns == "*" {
		out := make([]string, 0, len(t.columns))
		for _, c := range t.columns {
			out = append(out, c.name)
		}
		return out, nil
	}
	var out []string
	for _, name := range strings.Split(columns, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, ok := t.column(name); !ok {
			return nil, fmt.Errorf("select unknown column %s.%s", t.name, name)
		}
		out = append(out, name)
	}
	return out, nil
}

func filterClause(t table, f store.Filter) (string, []any, error) {
	c, ok := t.column(f.Column)
	if !ok {
		return "", nil, fmt.Errorf("filter on unknown column %s.%s", t.name, f.Column)
	}
	switch f.Op {
	case store.OpEq:
		v, err := encode(c, f.Value)
		return c.name + " = ?", []any{v}, err
	case store.OpGte:
		v, err := encode(c, f.Value)
		return c.name + " >= ?", []any{v}, err
	case store.OpContains:
		// Matches array values and the legacy bare-id shape alike.
		expr := fmt.Sprintf("EXISTS (SELECT 1 FROM json_each(CASE WHEN json_valid(%[1]s) THEN %[1]s ELSE json_quote(%[1]s) END) WHERE value = ?)", c.name)
		return expr, []any{fmt.Sprint(f.Value)}, nil
	case store.OpILike:
		return c.name + ` LIKE ? ESCAPE '\'`, []any{"%" + escapeLike(fmt.Sprint(f.Value)) + "%"}, nil
	case store.OpIn:
		values, ok := f.Value.([]string)
		if !ok {
			return "", nil, fmt.Errorf("in filter on %s: want []string, got %T", f.Column, f.Value)
		}
		if len(values) == 0 {
			return "0", nil, nil
		}
		args := make([]any, 0, len(values))
		for _, v := range values {
			args = append(args, v)
		}
		return fmt.Sprintf("%s IN (%s)", c.name, placeholders(len(values))), args, nil
	}
	return "", nil, fmt.Errorf("unsupported operator %q", f.Op)
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func (s Store) query(ctx context.Context, q queryer, t table, stmt string, args ...any) ([]store.Row, error) {
	rows, err := q.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("select %s: %w", t.name, err)
	}
	defer rows.Close()
	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []store.Row
	for rows.Next() {
		values := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		r := make(store.Row, len(names))
		for i, name := range names {
			c, _ := t.column(name)
			v, err := decode(c, values[i])
			if err != nil {
				return nil, err
			}
			r[name] = v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func decode(c column, v any) (any, error) {
	if b, ok := v.([]byte); ok {
		v = string(b)
	}
	if v == nil {
		return nil, nil
	}
	switch c.kind {
	case kindJSON:
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		var out any
		if err := json.Unmarshal([]byte(s), &out); err != nil {
			// Hand-written snapshots may hold a bare value.
			return s, nil
		}
		return out, nil
	case kindBool:
		switch x := v.(type) {
		case int64:
			return x != 0, nil
		case bool:
			return x, nil
		}
	}
	return v, nil
}

// Package storetest provides an in-memory store.Client for tests.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"taskscope/internal/store"
)

// Call records one request made against the fake.
type Call struct {
	Kind  string // select, insert, call
	Table string
	Query store.Query
	Row   store.Row
	Args  map[string]any
}

// Procedure implements a named procedure over the fake's tables.
type Procedure func(s *Store, args map[string]any) ([]store.Row, error)

// Store keeps rows per table in insertion order and evaluates queries the way
// the hosted store would.
type Store struct {
	mu     sync.Mutex
	tables map[string][]store.Row
	procs  map[string]Procedure
	fail   map[string]error
	failIn map[string]error
	failID map[string]error
	calls  []Call
}

func New() *Store {
	return &Store{
		tables: map[string][]store.Row{},
		procs:  map[string]Procedure{},
		fail:   map[string]error{},
		failIn: map[string]error{},
		failID: map[string]error{},
	}
}

// Seed appends rows to a table.
func (s *Store) Seed(table string, rows ...store.Row) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range rows {
		s.tables[table] = append(s.tables[table], copyRow(r))
	}
	return s
}

// Procedure registers fn under name.
func (s *Store) Procedure(name string, fn Procedure) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs[name] = fn
	return s
}

// Fail makes every request against key (a table or procedure name) return err.
func (s *Store) Fail(key string, err error) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail[key] = err
	return s
}

// FailInserts makes inserts into table return err while reads keep working.
func (s *Store) FailInserts(table string, err error) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failIn[table] = err
	return s
}

// FailInsertID makes inserts into table of a row with the given id return err.
// Other rows in the table insert normally.
func (s *Store) FailInsertID(table, id string, err error) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failID[table+"/"+id] = err
	return s
}

func (s *Store) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

// CallsOf filters recorded calls by kind and table or procedure name.
func (s *Store) CallsOf(kind, name string) []Call {
	var out []Call
	for _, c := range s.Calls() {
		if c.Kind == kind && c.Table == name {
			out = append(out, c)
		}
	}
	return out
}

// Rows returns a copy of a table's rows.
func (s *Store) Rows(table string) []store.Row {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]store.Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		out = append(out, copyRow(r))
	}
	return out
}

func (s *Store) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Kind: "select", Table: table, Query: q})
	if err := s.fail[table]; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	rows := s.tables[table]
	s.mu.Unlock()
	return Apply(rows, q)
}

func (s *Store) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Kind: "insert", Table: table, Row: copyRow(row)})
	if err := s.fail[table]; err != nil {
		return nil, err
	}
	if err := s.failIn[table]; err != nil {
		return nil, err
	}
	if id, ok := row["id"].(string); ok {
		if err := s.failID[table+"/"+id]; err != nil {
			return nil, err
		}
	}
	r := copyRow(row)
	if id, _ := r["id"].(string); id == "" {
		r["id"] = uuid.NewString()
	}
	s.tables[table] = append(s.tables[table], r)
	return copyRow(r), nil
}

func (s *Store) Call(ctx context.Context, procedure string, args map[string]any) ([]store.Row, error) {
	s.mu.Lock()
	s.calls = append(s.calls, Call{Kind: "call", Table: procedure, Args: args})
	if err := s.fail[procedure]; err != nil {
		s.mu.Unlock()
		return nil, err
	}
	fn, ok := s.procs[procedure]
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrUnknownProcedure, procedure)
	}
	return fn(s, args)
}

// Apply evaluates q against rows.
func Apply(rows []store.Row, q store.Query) ([]store.Row, error) {
	var out []store.Row
	for _, r := range rows {
		ok, err := matchAll(r, q.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, r)
		}
	}
	if len(q.Order) > 0 {
		sort.SliceStable(out, func(i, j int) bool {
			for _, o := range q.Order {
				c := compare(out[i][o.Column], out[j][o.Column])
				if c == 0 {
					continue
				}
				if o.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
	}
	if q.Offset > 0 {
		if q.Offset >= len(out) {
			out = nil
		} else {
			out = out[q.Offset:]
		}
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	res := make([]store.Row, 0, len(out))
	for _, r := range out {
		res = append(res, project(r, q.Columns))
	}
	return res, nil
}

func matchAll(r store.Row, filters []store.Filter) (bool, error) {
	for _, f := range filters {
		v := r[f.Column]
		switch f.Op {
		case store.OpEq:
			if v == nil || fmt.Sprint(v) != fmt.Sprint(f.Value) {
				return false, nil
			}
		case store.OpContains:
			if !containsValue(v, fmt.Sprint(f.Value)) {
				return false, nil
			}
		case store.OpILike:
			s, _ := v.(string)
			if !strings.Contains(strings.ToLower(s), strings.ToLower(fmt.Sprint(f.Value))) {
				return false, nil
			}
		case store.OpGte:
			if v == nil || compare(v, f.Value) < 0 {
				return false, nil
			}
		case store.OpIn:
			values, _ := f.Value.([]string)
			found := false
			for _, want := range values {
				if v != nil && fmt.Sprint(v) == want {
					found = true
					break
				}
			}
			if !found {
				return false, nil
			}
		default:
			return false, fmt.Errorf("storetest: unsupported operator %q", f.Op)
		}
	}
	return true, nil
}

func containsValue(v any, want string) bool {
	switch x := v.(type) {
	case []any:
		for _, e := range x {
			if s, ok := e.(string); ok && s == want {
				return true
			}
		}
	case []string:
		for _, s := range x {
			if s == want {
				return true
			}
		}
	case string:
		return x == want
	}
	return false
}

func compare(a, b any) int {
	af, aNum := number(a)
	bf, bNum := number(b)
	if aNum && bNum {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return -1
	}
	if b == nil {
		return 1
	}
	return strings.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case float64:
		return x, true
	}
	return 0, false
}

func project(r store.Row, columns string) store.Row {
	if columns == "" || columns == "*" {
		return copyRow(r)
	}
	out := store.Row{}
	for _, c := range strings.Split(columns, ",") {
		c = strings.TrimSpace(c)
		if v, ok := r[c]; ok {
			out[c] = v
		}
	}
	return out
}

func copyRow(r store.Row) store.Row {
	out := make(store.Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Package store defines the contract taskscope needs from the relational store:
// filtered and ordered reads, single-row inserts, and named procedures.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Tables and procedures of the hosted store.
const (
	TableTasks           = "tasks"
	TableGenerations     = "generations"
	TableVariants        = "generation_variants"
	TableWorkers         = "workers"
	TableCredits         = "credits_ledger"
	TableLogs            = "system_logs"
	TableShotGenerations = "shot_generations"
	TableShots           = "shots"

	ProcGenerationByTaskID = "get_generation_by_task_id"
	ProcTasksByRunID       = "get_tasks_by_run_id"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrUnknownProcedure = errors.New("unknown procedure")
)

// Row is one record as returned by the store.
type Row map[string]any

// Client is the transport to the relational store.
type Client interface {
	Select(ctx context.Context, table string, q Query) ([]Row, error)
	Insert(ctx context.Context, table string, row Row) (Row, error)
	Call(ctx context.Context, procedure string, args map[string]any) ([]Row, error)
}

type Op string

const (
	OpEq       Op = "eq"
	OpContains Op = "cs"
	OpILike    Op = "ilike"
	OpGte      Op = "gte"
	OpIn       Op = "in"
)

// Filter is one predicate on a column. For OpIn, Value is a []string.
type Filter struct {
	Column string
	Op     Op
	Value  any
}

func Eq(column string, v any) Filter           { return Filter{Column: column, Op: OpEq, Value: v} }
func Contains(column string, v string) Filter  { return Filter{Column: column, Op: OpContains, Value: v} }
func ILike(column string, sub string) Filter   { return Filter{Column: column, Op: OpILike, Value: sub} }
func Gte(column string, v any) Filter          { return Filter{Column: column, Op: OpGte, Value: v} }
func In(column string, values []string) Filter { return Filter{Column: column, Op: OpIn, Value: values} }

type Order struct {
	Column string
	Desc   bool
}

func Asc(column string) Order  { return Order{Column: column} }
func Desc(column string) Order { return Order{Column: column, Desc: true} }

// Query describes a read. Columns is a comma separated projection; empty means all.
// Limit 0 means no limit.
type Query struct {
	Columns string
	Filters []Filter
	Order   []Order
	Limit   int
	Offset  int
}

func (q Query) Where(filters ...Filter) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), filters...)
	return q
}

// Decode converts rows into typed values through their JSON form.
func Decode[T any](rows []Row) ([]T, error) {
	out := make([]T, 0, len(rows))
	for _, r := range rows {
		var v T
		if err := DecodeRow(r, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func DecodeRow(r Row, v any) error {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode row: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode row: %w", err)
	}
	return nil
}

// EncodeRow converts a typed value into a Row, dropping fields its JSON form omits.
func EncodeRow(v any) (Row, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var r Row
	if err := json.Unmarshal(b, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// One selects a single row by id, returning ErrNotFound when absent.
func One[T any](ctx context.Context, c Client, table, columns, id string) (T, error) {
	var zero T
	rows, err := c.Select(ctx, table, Query{Columns: columns, Filters: []Filter{Eq("id", id)}, Limit: 1})
	if err != nil {
		return zero, err
	}
	if len(rows) == 0 {
		return zero, ErrNotFound
	}
	var v T
	if err := DecodeRow(rows[0], &v); err != nil {
		return zero, err
	}
	return v, nil
}

// Exists reports whether a row with the given id is present.
func Exists(ctx context.Context, c Client, table, id string) (bool, error) {
	rows, err := c.Select(ctx, table, Query{Columns: "id", Filters: []Filter{Eq("id", id)}, Limit: 1})
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

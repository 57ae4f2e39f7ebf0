package query

import (
	"context"
	"fmt"

	"taskscope/internal/store"
)

const (
	DefaultPageSize = 1000
	DefaultMaxPages = 100
)

// Pager reads a table newest first in fixed-size pages and hands the rows back
// in ascending order.
type Pager struct {
	Store    store.Client
	PageSize int
	MaxPages int
}

// Fetch returns up to *limit rows matching filters, or everything up to
// PageSize*MaxPages rows when limit is nil. If a page fails after earlier pages
// succeeded, the rows gathered so far are returned along with the error.
func (p Pager) Fetch(ctx context.Context, table string, filters []store.Filter, orderColumn string, limit *int) ([]store.Row, error) {
	pageSize := p.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	maxPages := p.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var acc []store.Row
	for page := 0; page < maxPages; page++ {
		size := pageSize
		if limit != nil {
			remaining := *limit - len(acc)
			if remaining <= 0 {
				break
			}
			size = min(size, remaining)
		}
		rows, err := p.Store.Select(ctx, table, store.Query{
			Filters: filters,
			Order:   []store.Order{store.Desc(orderColumn)},
			Limit:   size,
			Offset:  len(acc),
		})
		if err != nil {
			err = fmt.Errorf("page %d of %s: %w", page+1, table, err)
			if len(acc) == 0 {
				return nil, err
			}
			reverse(acc)
			return acc, err
		}
		acc = append(acc, rows...)
		if len(rows) < size {
			break
		}
	}
	reverse(acc)
	return acc, nil
}

func reverse(rows []store.Row) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}

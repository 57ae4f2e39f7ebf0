package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskscope/internal/query"
	"taskscope/internal/store"
	"taskscope/internal/store/storetest"
)

func seedLogs(s *storetest.Store, n int) {
	base := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		s.Seed(store.TableLogs, store.Row{
			"id":          i,
			"source_type": "worker",
			"log_level":   "INFO",
			"message":     "line",
			"timestamp":   base.Add(time.Duration(i) * time.Second).Format(time.RFC3339),
		})
	}
}

func TestPagerLimitSplitsIntoPages(t *testing.T) {
	s := storetest.New()
	seedLogs(s, 3000)
	p := query.Pager{Store: s, PageSize: 1000, MaxPages: 100}

	limit := 2500
	rows, err := p.Fetch(context.Background(), store.TableLogs, nil, "timestamp", &limit)
	require.NoError(t, err)
	require.Len(t, rows, 2500)

	calls := s.CallsOf("select", store.TableLogs)
	require.Len(t, calls, 3)
	assert.Equal(t, []int{1000, 1000, 500}, []int{calls[0].Query.Limit, calls[1].Query.Limit, calls[2].Query.Limit})
	assert.Equal(t, []int{0, 1000, 2000}, []int{calls[0].Query.Offset, calls[1].Query.Offset, calls[2].Query.Offset})
	for _, c := range calls {
		require.Len(t, c.Query.Order, 1)
		assert.True(t, c.Query.Order[0].Desc)
	}

	for i := 1; i < len(rows); i++ {
		assert.Less(t, rows[i-1]["timestamp"], rows[i]["timestamp"])
	}
	// The newest 2500 of 3000 rows.
	assert.Equal(t, 500, rows[0]["id"])
	assert.Equal(t, 2999, rows[len(rows)-1]["id"])
}

func TestPagerStopsOnShortPage(t *testing.T) {
	s := storetest.New()
	seedLogs(s, 1200)
	rows, err := query.Pager{Store: s, PageSize: 1000, MaxPages: 100}.Fetch(context.Background(), store.TableLogs, nil, "timestamp", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 1200)
	assert.Len(t, s.CallsOf("select", store.TableLogs), 2)
}

func TestPagerExactMultipleNeedsOneEmptyPage(t *testing.T) {
	s := storetest.New()
	seedLogs(s, 20)
	rows, err := query.Pager{Store: s, PageSize: 10, MaxPages: 100}.Fetch(context.Background(), store.TableLogs, nil, "timestamp", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 20)
	assert.Len(t, s.CallsOf("select", store.TableLogs), 3)
}

func TestPagerZeroLimitMakesNoRequest(t *testing.T) {
	s := storetest.New()
	seedLogs(s, 5)
	zero := 0
	rows, err := query.Pager{Store: s}.Fetch(context.Background(), store.TableLogs, nil, "timestamp", &zero)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Empty(t, s.Calls())
}

// endless answers every page in full.
type endless struct {
	selects int
}

func (e *endless) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	e.selects++
	rows := make([]store.Row, q.Limit)
	for i := range rows {
		rows[i] = store.Row{"n": q.Offset + i}
	}
	return rows, nil
}

func (e *endless) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	return nil, errors.New("read only")
}

func (e *endless) Call(ctx context.Context, procedure string, args map[string]any) ([]store.Row, error) {
	return nil, store.ErrUnknownProcedure
}

func TestPagerUnboundedSourceIsCapped(t *testing.T) {
	src := &endless{}
	rows, err := query.Pager{Store: src, PageSize: 1000, MaxPages: 100}.Fetch(context.Background(), store.TableLogs, nil, "timestamp", nil)
	require.NoError(t, err)
	assert.Len(t, rows, 100_000)
	assert.Equal(t, 100, src.selects)
	assert.Equal(t, 99_999, rows[0]["n"])
}

func TestPagerKeepsRowsGatheredBeforeFailure(t *testing.T) {
	src := &flaky{failAfter: 2}
	rows, err := query.Pager{Store: src, PageSize: 10, MaxPages: 100}.Fetch(context.Background(), store.TableLogs, nil, "timestamp", nil)
	require.Error(t, err)
	assert.Len(t, rows, 20)
}

type flaky struct {
	endless
	failAfter int
}

func (f *flaky) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	if f.selects >= f.failAfter {
		return nil, errors.New("connection reset")
	}
	return f.endless.Select(ctx, table, q)
}

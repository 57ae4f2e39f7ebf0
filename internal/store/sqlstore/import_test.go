package sqlstore

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskscope/internal/store"
)

func TestReadRowsShapes(t *testing.T) {
	rows, err := ReadRows(strings.NewReader(`[{"id":"a","attempts":2},{"id":"b","cost_in_credits":0.5}]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, int64(2), rows[0]["attempts"])
	assert.Equal(t, 0.5, rows[1]["cost_in_credits"])

	rows, err = ReadRows(strings.NewReader(` {"id":"solo"}`))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "solo", rows[0]["id"])

	_, err = ReadRows(strings.NewReader(`"nope"`))
	require.Error(t, err)
	_, err = ReadRows(strings.NewReader(``))
	require.Error(t, err)
}

func TestImportExportReplacesRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	rows, err := ReadRows(strings.NewReader(`[
		{"id":"t1","status":"Queued","created_at":"2025-01-01T00:00:00Z","params":{"segment_index":1},"extra_column":"dropped"}
	]`))
	require.NoError(t, err)
	n, err := s.Import(ctx, store.TableTasks, rows)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	rows[0]["status"] = "Complete"
	_, err = s.Import(ctx, store.TableTasks, rows)
	require.NoError(t, err)

	got, err := s.Select(ctx, store.TableTasks, store.Query{Filters: []store.Filter{store.Eq("id", "t1")}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Complete", got[0]["status"])
	assert.NotContains(t, got[0], "extra_column")
	params, ok := got[0]["params"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 1, params["segment_index"])
}

package sqlstore

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskscope/internal/db"
	"taskscope/internal/migrate"
	"taskscope/internal/store"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	_, err = migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	return Store{DB: conn}
}

func TestMigrateIsRepeatable(t *testing.T) {
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	require.NoError(t, err)
	defer conn.Close()
	first, err := migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	second, err := migrate.Migrate(context.Background(), conn)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.GreaterOrEqual(t, first, 1)
}

func TestInsertGeneratesIDAndRoundTripsJSON(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	row, err := s.Insert(ctx, store.TableGenerations, store.Row{
		"type":     "video",
		"is_child": true,
		"params":   map[string]any{"tool_type": "travel-between-images"},
		"tasks":    []string{"t1"},
	})
	require.NoError(t, err)
	id, _ := row["id"].(string)
	assert.NotEmpty(t, id)
	assert.Equal(t, true, row["is_child"])
	assert.Equal(t, map[string]any{"tool_type": "travel-between-images"}, row["params"])
	assert.Equal(t, []any{"t1"}, row["tasks"])

	ok, err := store.Exists(ctx, s, store.TableGenerations, id)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestInsertRejectsUnknownColumn(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Insert(context.Background(), store.TableTasks, store.Row{"id": "t1", "nope": 1})
	assert.Error(t, err)
	_, err = s.Select(context.Background(), "tasks; drop table tasks", store.Query{})
	assert.True(t, errors.Is(err, ErrUnknownTable))
}

func TestContainsMatchesArrayAndLegacyScalar(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	n, err := s.Import(ctx, store.TableTasks, []store.Row{
		{"id": "a", "created_at": "2024-05-01T12:00:00Z", "dependant_on": []any{"root", "other"}},
		{"id": "b", "created_at": "2024-05-01T12:01:00Z", "dependant_on": "root"},
		{"id": "c", "created_at": "2024-05-01T12:02:00Z", "dependant_on": []any{"other"}},
		{"id": "d", "created_at": "2024-05-01T12:03:00Z"},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	rows, err := s.Select(ctx, store.TableTasks, store.Query{
		Columns: "id",
		Filters: []store.Filter{store.Contains("dependant_on", "root")},
		Order:   []store.Order{store.Asc("created_at")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "a", rows[0]["id"])
	assert.Equal(t, "b", rows[1]["id"])
}

func TestFiltersOrderLimitOffset(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Import(ctx, store.TableLogs, []store.Row{
		{"id": "1", "source_type": "worker", "log_level": "INFO", "message": "[Travel] started", "timestamp": "2024-05-01T12:00:00Z"},
		{"id": "2", "source_type": "worker", "log_level": "ERROR", "message": "Timeout reached", "timestamp": "2024-05-01T12:01:00Z"},
		{"id": "3", "source_type": "browser", "log_level": "INFO", "message": "100% done", "timestamp": "2024-05-01T12:02:00Z"},
		{"id": "4", "source_type": "worker", "log_level": "INFO", "message": "finished", "timestamp": "2024-05-01T12:03:00Z"},
	})
	require.NoError(t, err)

	rows, err := s.Select(ctx, store.TableLogs, store.Query{
		Filters: []store.Filter{store.ILike("message", "timeout")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "2", rows[0]["id"])

	rows, err = s.Select(ctx, store.TableLogs, store.Query{
		Filters: []store.Filter{store.ILike("message", "100%")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	rows, err = s.Select(ctx, store.TableLogs, store.Query{
		Columns: "id",
		Filters: []store.Filter{
			store.In("source_type", []string{"worker"}),
			store.Gte("timestamp", "2024-05-01T12:01:00Z"),
		},
		Order: []store.Order{store.Desc("timestamp")},
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "4", rows[0]["id"])

	rows, err = s.Select(ctx, store.TableLogs, store.Query{
		Columns: "id",
		Order:   []store.Order{store.Desc("timestamp")},
		Limit:   2,
		Offset:  1,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "3", rows[0]["id"])
	assert.Equal(t, "2", rows[1]["id"])

	rows, err = s.Select(ctx, store.TableLogs, store.Query{Columns: "id", Order: []store.Order{store.Asc("timestamp")}, Offset: 3})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "4", rows[0]["id"])
}

func TestProcedures(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	_, err := s.Import(ctx, store.TableGenerations, []store.Row{
		{"id": "g-old", "created_at": "2024-05-01T10:00:00Z", "tasks": []any{"t1"}},
		{"id": "g-new", "created_at": "2024-05-01T11:00:00Z", "tasks": []any{"t0", "t1"}},
		{"id": "g-legacy", "created_at": "2024-05-01T09:00:00Z", "tasks": "t9"},
	})
	require.NoError(t, err)
	_, err = s.Import(ctx, store.TableTasks, []store.Row{
		{"id": "s1", "task_type": "travel_segment", "created_at": "2024-05-01T10:00:00Z", "params": map[string]any{"orchestrator_run_id": "run-1", "segment_index": 0}},
		{"id": "s2", "task_type": "travel_segment", "created_at": "2024-05-01T10:01:00Z", "params": `{"orchestrator_run_id":"run-1","segment_index":1}`},
		{"id": "s3", "task_type": "travel_segment", "created_at": "2024-05-01T10:02:00Z", "params": map[string]any{"orchestrator_run_id": "run-2"}},
		{"id": "o1", "task_type": "travel_orchestrator", "created_at": "2024-05-01T09:59:00Z", "params": map[string]any{"run_id": "run-1"}},
	})
	require.NoError(t, err)

	gens, err := s.Call(ctx, store.ProcGenerationByTaskID, map[string]any{"p_task_id": "t1"})
	require.NoError(t, err)
	require.Len(t, gens, 2)
	assert.Equal(t, "g-new", gens[0]["id"])

	gens, err = s.Call(ctx, store.ProcGenerationByTaskID, map[string]any{"p_task_id": "t9"})
	require.NoError(t, err)
	require.Len(t, gens, 1)

	tasks, err := s.Call(ctx, store.ProcTasksByRunID, map[string]any{"p_run_id": "run-1", "p_exclude_task_id": nil})
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "s1", tasks[0]["id"])
	assert.Equal(t, "s2", tasks[1]["id"])

	tasks, err = s.Call(ctx, store.ProcTasksByRunID, map[string]any{"p_run_id": "run-1", "p_exclude_task_id": "s1"})
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "s2", tasks[0]["id"])

	_, err = s.Call(ctx, "nope", nil)
	assert.ErrorIs(t, err, store.ErrUnknownProcedure)
}

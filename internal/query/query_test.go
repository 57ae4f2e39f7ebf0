package query_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskscope/internal/domain"
	"taskscope/internal/query"
	"taskscope/internal/store"
	"taskscope/internal/store/storetest"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFirstStopsAtFirstAnswer(t *testing.T) {
	var ran []string
	step := func(name string, v int, ok bool, err error) query.Strategy[int] {
		return query.Strategy[int]{Name: name, Fn: func(ctx context.Context) (int, bool, error) {
			ran = append(ran, name)
			return v, ok, err
		}}
	}
	v, ok := query.First(context.Background(), quietLogger(), "test",
		step("broken", 0, false, errors.New("boom")),
		step("empty", 0, false, nil),
		step("hit", 7, true, nil),
		step("never", 9, true, nil),
	)
	assert.True(t, ok)
	assert.Equal(t, 7, v)
	assert.Equal(t, []string{"broken", "empty", "hit"}, ran)
}

func TestFirstAllFailIsNotFound(t *testing.T) {
	v, ok := query.First(context.Background(), quietLogger(), "test",
		query.Strategy[string]{Name: "a", Fn: func(ctx context.Context) (string, bool, error) { return "", false, errors.New("x") }},
		query.Strategy[string]{Name: "b", Fn: func(ctx context.Context) (string, bool, error) { return "", false, nil }},
	)
	assert.False(t, ok)
	assert.Equal(t, "", v)
}

func newLayer(s *storetest.Store) *query.Layer {
	l := query.New(s, quietLogger())
	return l
}

func TestGenerationForTaskPrefersParams(t *testing.T) {
	s := storetest.New().
		Seed(store.TableGenerations, store.Row{"id": "g-param", "created_at": "2024-05-01T10:00:00Z"}).
		Procedure(store.ProcGenerationByTaskID, func(*storetest.Store, map[string]any) ([]store.Row, error) {
			t.Fatalf("procedure must not run when params resolve")
			return nil, nil
		})
	task := domain.Task{ID: "t1", Params: domain.Params{"generation_id": "g-param"}}
	g := newLayer(s).GenerationForTask(context.Background(), task)
	require.NotNil(t, g)
	assert.Equal(t, "g-param", g.ID)
}

func TestGenerationForTaskFallsBackToScan(t *testing.T) {
	s := storetest.New().Seed(store.TableGenerations,
		store.Row{"id": "g1", "created_at": "2024-05-01T10:00:00Z", "tasks": []any{"other"}},
		store.Row{"id": "g2", "created_at": "2024-05-01T11:00:00Z", "tasks": []any{"t1"}},
	)
	// No procedure registered: the call fails with ErrUnknownProcedure.
	g := newLayer(s).GenerationForTask(context.Background(), domain.Task{ID: "t1", Params: domain.Params{"generation_id": "missing"}})
	require.NotNil(t, g)
	assert.Equal(t, "g2", g.ID)

	scans := s.CallsOf("select", store.TableGenerations)
	last := scans[len(scans)-1]
	assert.Equal(t, query.DefaultScanLimit, last.Query.Limit)
}

func TestGenerationForTaskViaProcedure(t *testing.T) {
	s := storetest.New().Procedure(store.ProcGenerationByTaskID, func(_ *storetest.Store, args map[string]any) ([]store.Row, error) {
		if args["p_task_id"] != "t1" {
			return nil, nil
		}
		return []store.Row{{"id": "g-rpc", "tasks": []any{"t1"}}}, nil
	})
	g := newLayer(s).GenerationForTask(context.Background(), domain.Task{ID: "t1"})
	require.NotNil(t, g)
	assert.Equal(t, "g-rpc", g.ID)
	assert.Empty(t, s.CallsOf("select", store.TableGenerations))
}

func TestGenerationForTaskNotFound(t *testing.T) {
	s := storetest.New().Fail(store.TableGenerations, errors.New("down"))
	assert.Nil(t, newLayer(s).GenerationForTask(context.Background(), domain.Task{ID: "t1"}))
}

func TestChildTasksFallbackSortsBySegmentIndex(t *testing.T) {
	s := storetest.New().Seed(store.TableTasks,
		store.Row{"id": "c2", "task_type": "travel_segment", "created_at": "2024-05-01T10:00:03Z", "params": map[string]any{"orchestrator_run_id": "run-1", "segment_index": 2}},
		store.Row{"id": "c0", "task_type": "travel_segment", "created_at": "2024-05-01T10:00:01Z", "params": map[string]any{"orchestrator_run_id": "run-1"}},
		store.Row{"id": "c1", "task_type": "join_clips_segment", "created_at": "2024-05-01T10:00:02Z", "params": map[string]any{"orchestrator_run_id": "run-1", "sequence_index": 1}},
		store.Row{"id": "x", "task_type": "travel_segment", "created_at": "2024-05-01T10:00:04Z", "params": map[string]any{"orchestrator_run_id": "run-2", "segment_index": 0}},
		store.Row{"id": "o", "task_type": "travel_orchestrator", "created_at": "2024-05-01T10:00:00Z", "params": map[string]any{"run_id": "run-1"}},
	)
	children := newLayer(s).ChildTasks(context.Background(), "run-1")
	require.Len(t, children, 3)
	assert.Equal(t, []string{"c0", "c1", "c2"}, []string{children[0].ID, children[1].ID, children[2].ID})
	assert.Nil(t, children[0].SegmentIndex)
	require.NotNil(t, children[1].SegmentIndex)
	assert.Equal(t, 1, *children[1].SegmentIndex)
	assert.Equal(t, 2, *children[2].SegmentIndex)

	calls := s.CallsOf("call", store.ProcTasksByRunID)
	require.Len(t, calls, 1)
	assert.Nil(t, calls[0].Args["p_exclude_task_id"])
}

func TestRunSiblingsProcedureResult(t *testing.T) {
	s := storetest.New().Procedure(store.ProcTasksByRunID, func(_ *storetest.Store, args map[string]any) ([]store.Row, error) {
		assert.Equal(t, "run-1", args["p_run_id"])
		assert.Equal(t, "me", args["p_exclude_task_id"])
		return []store.Row{{"id": "sib", "task_type": "travel_segment"}}, nil
	})
	sibs := newLayer(s).RunSiblings(context.Background(), "run-1", "me")
	require.Len(t, sibs, 1)
	assert.Equal(t, "sib", sibs[0].ID)
	assert.Empty(t, s.CallsOf("select", store.TableTasks))
}

func TestRunSiblingsFallbackExcludesSelf(t *testing.T) {
	s := storetest.New().
		Procedure(store.ProcTasksByRunID, func(*storetest.Store, map[string]any) ([]store.Row, error) { return nil, nil }).
		Seed(store.TableTasks,
			store.Row{"id": "me", "task_type": "travel_segment", "created_at": "2024-05-01T10:00:01Z", "params": map[string]any{"orchestrator_run_id": "run-1"}},
			store.Row{"id": "sib", "task_type": "travel_segment", "created_at": "2024-05-01T10:00:02Z", "params": map[string]any{"orchestrator_run_id": "run-1"}},
		)
	sibs := newLayer(s).RunSiblings(context.Background(), "run-1", "me")
	require.Len(t, sibs, 1)
	assert.Equal(t, "sib", sibs[0].ID)
}

func TestPredecessorsLegacyAndCurrentShapes(t *testing.T) {
	s := storetest.New().Seed(store.TableTasks,
		store.Row{"id": "p1", "status": "Complete", "created_at": "2024-05-01T10:00:00Z"},
		store.Row{"id": "p2", "status": "Failed", "created_at": "2024-05-01T10:01:00Z"},
	)
	l := newLayer(s)

	var legacy, current domain.Task
	require.NoError(t, store.DecodeRow(store.Row{"id": "t", "dependant_on": "p1"}, &legacy))
	require.NoError(t, store.DecodeRow(store.Row{"id": "t", "dependant_on": []any{"p2", "gone"}}, &current))

	got := l.Predecessors(context.Background(), legacy.DependantOn)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ID)

	got = l.Predecessors(context.Background(), current.DependantOn)
	require.Len(t, got, 1)
	assert.Equal(t, "p2", got[0].ID)

	assert.Empty(t, l.Predecessors(context.Background(), nil))
}

func TestDependentTasks(t *testing.T) {
	s := storetest.New().Seed(store.TableTasks,
		store.Row{"id": "d2", "created_at": "2024-05-01T10:02:00Z", "dependant_on": []any{"root"}},
		store.Row{"id": "d1", "created_at": "2024-05-01T10:01:00Z", "dependant_on": "root"},
		store.Row{"id": "n", "created_at": "2024-05-01T10:03:00Z", "dependant_on": []any{"other"}},
	)
	deps, err := newLayer(s).DependentTasks(context.Background(), "root")
	require.NoError(t, err)
	require.Len(t, deps, 2)
	assert.Equal(t, "d1", deps[0].ID)
	assert.Equal(t, "d2", deps[1].ID)
}

// scalarDependantOn behaves like a store whose dependant_on column is plain
// text: array containment on it is a query error.
type scalarDependantOn struct {
	*storetest.Store
}

func (s scalarDependantOn) Select(ctx context.Context, table string, q store.Query) ([]store.Row, error) {
	for _, f := range q.Filters {
		if f.Op == store.OpContains {
			return nil, errors.New("operator does not exist: text @> unknown")
		}
	}
	return s.Store.Select(ctx, table, q)
}

func TestDependentTasksScalarColumnFallsBackToEq(t *testing.T) {
	s := storetest.New().Seed(store.TableTasks,
		store.Row{"id": "d1", "created_at": "2024-05-01T10:01:00Z", "dependant_on": "root"},
		store.Row{"id": "n", "created_at": "2024-05-01T10:02:00Z", "dependant_on": "other"},
	)
	l := query.New(scalarDependantOn{s}, quietLogger())
	deps, err := l.DependentTasks(context.Background(), "root")
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, "d1", deps[0].ID)

	selects := s.CallsOf("select", store.TableTasks)
	require.Len(t, selects, 1)
	assert.Equal(t, store.OpEq, selects[0].Query.Filters[0].Op)
}

func TestDependentTasksBothMatchesFail(t *testing.T) {
	s := storetest.New().Fail(store.TableTasks, errors.New("down"))
	_, err := query.New(s, quietLogger()).DependentTasks(context.Background(), "root")
	require.Error(t, err)
	assert.Len(t, s.CallsOf("select", store.TableTasks), 2)
}

func TestOrchestrationByRole(t *testing.T) {
	s := storetest.New().Seed(store.TableTasks,
		store.Row{"id": "orch", "task_type": "travel_orchestrator", "status": "In Progress", "created_at": "2024-05-01T10:00:00Z", "params": map[string]any{"run_id": "run-1"}},
		store.Row{"id": "seg", "task_type": "travel_segment", "created_at": "2024-05-01T10:00:01Z", "params": map[string]any{"orchestrator_task_id_ref": "orch", "orchestrator_run_id": "run-1", "segment_index": 0}},
	)
	l := newLayer(s)

	var seg, orch domain.Task
	require.NoError(t, store.DecodeRow(s.Rows(store.TableTasks)[1], &seg))
	require.NoError(t, store.DecodeRow(s.Rows(store.TableTasks)[0], &orch))

	o := l.Orchestration(context.Background(), seg)
	require.NotNil(t, o.Orchestrator)
	assert.Equal(t, "orch", o.Orchestrator.ID)
	assert.Empty(t, o.Siblings)
	assert.Nil(t, o.Children)

	o = l.Orchestration(context.Background(), orch)
	assert.Nil(t, o.Orchestrator)
	require.Len(t, o.Children, 1)
	assert.Equal(t, "seg", o.Children[0].ID)

	o = l.Orchestration(context.Background(), domain.Task{ID: "plain", TaskType: "image_generation", Params: domain.Params{"run_id": "run-1"}})
	assert.Nil(t, o.Orchestrator)
	assert.Nil(t, o.Children)
	assert.Nil(t, o.Siblings)
}

func TestShotAssociationsAttachShots(t *testing.T) {
	s := storetest.New().
		Seed(store.TableShotGenerations, store.Row{"id": "sg1", "shot_id": "s1", "generation_id": "g1", "timeline_frame": 12}).
		Seed(store.TableShots, store.Row{"id": "s1", "name": "Opening"})
	assocs, err := newLayer(s).ShotAssociations(context.Background(), "g1")
	require.NoError(t, err)
	require.Len(t, assocs, 1)
	require.NotNil(t, assocs[0].Shot)
	assert.Equal(t, "Opening", assocs[0].Shot.Name)
	require.NotNil(t, assocs[0].TimelineFrame)
	assert.Equal(t, 12, *assocs[0].TimelineFrame)
}

func TestLogsFiltersAndTag(t *testing.T) {
	s := storetest.New().Seed(store.TableLogs,
		store.Row{"id": 1, "source_type": "worker", "task_id": "t1", "log_level": "INFO", "message": "[Travel] start", "timestamp": "2024-05-01T10:00:00Z"},
		store.Row{"id": 2, "source_type": "worker", "task_id": "t1", "log_level": "ERROR", "message": "[travel] failed", "timestamp": "2024-05-01T10:00:01Z"},
		store.Row{"id": 3, "source_type": "worker", "task_id": "t2", "log_level": "INFO", "message": "[Travel] other", "timestamp": "2024-05-01T10:00:02Z"},
	)
	l := newLayer(s)
	logs, err := l.TaskLogs(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "[Travel] start", logs[0].Message)

	logs, err = l.Logs(context.Background(), query.LogFilter{Tag: "TRAVEL", Level: "error"}, nil)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "[travel] failed", logs[0].Message)
}

func TestBrowserSessions(t *testing.T) {
	s := storetest.New().Seed(store.TableLogs,
		store.Row{"id": 1, "source_type": "browser", "session_id": "a", "log_level": "INFO", "message": "m", "timestamp": "2024-05-01T10:00:00Z"},
		store.Row{"id": 2, "source_type": "browser", "session_id": "a", "log_level": "ERROR", "message": "m", "timestamp": "2024-05-01T10:00:05Z"},
		store.Row{"id": 3, "source_type": "browser", "session_id": "b", "log_level": "INFO", "message": "m", "timestamp": "2024-05-01T11:00:00Z"},
		store.Row{"id": 4, "source_type": "worker", "session_id": "c", "log_level": "INFO", "message": "m", "timestamp": "2024-05-01T12:00:00Z"},
	)
	l := newLayer(s)
	sessions, err := l.BrowserSessions(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, domain.BrowserSession{SessionID: "b", LogCount: 1, LastTimestamp: "2024-05-01T11:00:00Z"}, sessions[0])
	assert.Equal(t, domain.BrowserSession{SessionID: "a", LogCount: 2, ErrorCount: 1, LastTimestamp: "2024-05-01T10:00:05Z"}, sessions[1])

	latest, err := l.LatestBrowserSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", latest)
}

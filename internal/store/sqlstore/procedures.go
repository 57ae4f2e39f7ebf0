package sqlstore

import (
	"context"
	"fmt"
	"strings"

	"taskscope/internal/store"
)

// paramsDoc unwraps params that were stored as a JSON-encoded string.
const paramsDoc = `CASE WHEN json_type(params) = 'text' THEN json_extract(params, '$') ELSE params END`

func (s Store) Call(ctx context.Context, procedure string, args map[string]any) ([]store.Row, error) {
	switch procedure {
	case store.ProcGenerationByTaskID:
		taskID, _ := args["p_task_id"].(string)
		if taskID == "" {
			return nil, fmt.Errorf("%s: p_task_id is required", procedure)
		}
		t := tables[store.TableGenerations]
		projection, _ := projectionOf(t, "")
		stmt := fmt.Sprintf(`SELECT %s FROM generations
WHERE EXISTS (SELECT 1 FROM json_each(CASE WHEN json_valid(tasks) THEN tasks ELSE json_quote(tasks) END) WHERE value = ?)
ORDER BY created_at DESC, rowid ASC`, strings.Join(projection, ","))
		return s.query(ctx, s.DB, t, stmt, taskID)

	case store.ProcTasksByRunID:
		runID, _ := args["p_run_id"].(string)
		if runID == "" {
			return nil, fmt.Errorf("%s: p_run_id is required", procedure)
		}
		exclude, _ := args["p_exclude_task_id"].(string)
		t := tables[store.TableTasks]
		projection, _ := projectionOf(t, "")
		stmt := fmt.Sprintf(`SELECT %s FROM tasks
WHERE json_valid(params) AND json_extract(%s, '$.orchestrator_run_id') = ?
  AND (? = '' OR id <> ?)
ORDER BY created_at ASC, rowid ASC`, strings.Join(projection, ","), paramsDoc)
		return s.query(ctx, s.DB, t, stmt, runID, exclude, exclude)
	}
	return nil, fmt.Errorf("%w: %s", store.ErrUnknownProcedure, procedure)
}

package sqlstore

import "taskscope/internal/store"

type kind int

const (
	kindText kind = iota
	kindInt
	kindReal
	kindBool
	kindJSON
)

type column struct {
	name string
	kind kind
}

type table struct {
	name    string
	columns []column
}

func (t table) column(name string) (column, bool) {
	for _, c := range t.columns {
		if c.name == name {
			return c, true
		}
	}
	return column{}, false
}

func cols(spec ...any) []column {
	out := make([]column, 0, len(spec)/2)
	for i := 0; i+1 < len(spec); i += 2 {
		out = append(out, column{name: spec[i].(string), kind: spec[i+1].(kind)})
	}
	return out
}

// tables mirrors sql/001_init.sql in the migrate package. Every identifier that
// reaches a statement is checked against it.
var tables = map[string]table{
	store.TableTasks: {name: store.TableTasks, columns: cols(
		"id", kindText, "project_id", kindText, "task_type", kindText, "status", kindText,
		"params", kindJSON, "dependant_on", kindJSON, "attempts", kindInt, "worker_id", kindText,
		"output_location", kindText, "error_message", kindText, "cost_in_credits", kindReal,
		"created_at", kindText, "updated_at", kindText, "generation_started_at", kindText,
		"generation_processed_at", kindText,
	)},
	store.TableGenerations: {name: store.TableGenerations, columns: cols(
		"id", kindText, "project_id", kindText, "type", kindText, "is_child", kindBool,
		"parent_generation_id", kindText, "child_order", kindInt, "location", kindText,
		"thumbnail_url", kindText, "based_on", kindText, "params", kindJSON, "tasks", kindJSON,
		"created_at", kindText,
	)},
	store.TableVariants: {name: store.TableVariants, columns: cols(
		"id", kindText, "generation_id", kindText, "location", kindText, "thumbnail_url", kindText,
		"is_primary", kindBool, "variant_type", kindText, "params", kindJSON, "created_at", kindText,
	)},
	store.TableWorkers: {name: store.TableWorkers, columns: cols(
		"id", kindText, "status", kindText, "metadata", kindJSON, "last_heartbeat", kindText,
		"created_at", kindText,
	)},
	store.TableCredits: {name: store.TableCredits, columns: cols(
		"id", kindText, "task_id", kindText, "user_id", kindText, "amount", kindReal,
		"type", kindText, "created_at", kindText,
	)},
	store.TableLogs: {name: store.TableLogs, columns: cols(
		"id", kindText, "source_type", kindText, "source_id", kindText, "task_id", kindText,
		"session_id", kindText, "log_level", kindText, "message", kindText, "timestamp", kindText,
		"metadata", kindJSON,
	)},
	store.TableShots: {name: store.TableShots, columns: cols(
		"id", kindText, "name", kindText,
	)},
	store.TableShotGenerations: {name: store.TableShotGenerations, columns: cols(
		"id", kindText, "shot_id", kindText, "generation_id", kindText, "timeline_frame", kindInt,
	)},
}

// Tables lists the tables a snapshot can hold.
func Tables() []string {
	return []string{
		store.TableTasks, store.TableGenerations, store.TableVariants, store.TableWorkers,
		store.TableCredits, store.TableLogs, store.TableShots, store.TableShotGenerations,
	}
}

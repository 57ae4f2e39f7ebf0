// Package query resolves tasks, generations and their relationships against a
// store.Client, falling back across lookup strategies where the store may lack
// a procedure.
package query

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"time"

	"taskscope/internal/domain"
	"taskscope/internal/store"
)

const DefaultScanLimit = 100

type Layer struct {
	Store     store.Client
	Logger    *slog.Logger
	ScanLimit int
	Pager     Pager
}

func New(c store.Client, logger *slog.Logger) *Layer {
	return &Layer{
		Store:     c,
		Logger:    logger,
		ScanLimit: DefaultScanLimit,
		Pager:     Pager{Store: c, PageSize: DefaultPageSize, MaxPages: DefaultMaxPages},
	}
}

func (l *Layer) log() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func (l *Layer) scanLimit() int {
	if l.ScanLimit <= 0 {
		return DefaultScanLimit
	}
	return l.ScanLimit
}

func (l *Layer) pager() Pager {
	p := l.Pager
	if p.Store == nil {
		p.Store = l.Store
	}
	return p
}

// Task returns the full task row, or nil when it does not exist.
func (l *Layer) Task(ctx context.Context, id string) (*domain.Task, error) {
	return l.task(ctx, id, "")
}

// TaskSummary returns the columns shown when a task appears as a relationship.
func (l *Layer) TaskSummary(ctx context.Context, id string) (*domain.Task, error) {
	return l.task(ctx, id, domain.TaskSummaryColumns)
}

func (l *Layer) task(ctx context.Context, id, columns string) (*domain.Task, error) {
	if id == "" {
		return nil, nil
	}
	t, err := store.One[domain.Task](ctx, l.Store, store.TableTasks, columns, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (l *Layer) generation(ctx context.Context, id string) (domain.Generation, bool, error) {
	g, err := store.One[domain.Generation](ctx, l.Store, store.TableGenerations, "", id)
	if errors.Is(err, store.ErrNotFound) {
		return g, false, nil
	}
	return g, err == nil, err
}

// GenerationForTask finds the generation the task produced.
func (l *Layer) GenerationForTask(ctx context.Context, task domain.Task) *domain.Generation {
	g, ok := First(ctx, l.log().With("task_id", task.ID), "generation_for_task",
		Strategy[domain.Generation]{Name: "params", Fn: func(ctx context.Context) (domain.Generation, bool, error) {
			id := task.Params.String(domain.ParamGenerationID)
			if id == "" {
				return domain.Generation{}, false, nil
			}
			return l.generation(ctx, id)
		}},
		Strategy[domain.Generation]{Name: "procedure", Fn: func(ctx context.Context) (domain.Generation, bool, error) {
			rows, err := l.Store.Call(ctx, store.ProcGenerationByTaskID, map[string]any{"p_task_id": task.ID})
			if err != nil || len(rows) == 0 {
				return domain.Generation{}, false, err
			}
			var g domain.Generation
			err = store.DecodeRow(rows[0], &g)
			return g, err == nil, err
		}},
		Strategy[domain.Generation]{Name: "scan", Fn: func(ctx context.Context) (domain.Generation, bool, error) {
			rows, err := l.Store.Select(ctx, store.TableGenerations, store.Query{
				Order: []store.Order{store.Desc("created_at")},
				Limit: l.scanLimit(),
			})
			if err != nil {
				return domain.Generation{}, false, err
			}
			gens, err := store.Decode[domain.Generation](rows)
			if err != nil {
				return domain.Generation{}, false, err
			}
			for _, g := range gens {
				if g.ProducedBy(task.ID) {
					return g, true, nil
				}
			}
			return domain.Generation{}, false, nil
		}},
	)
	if !ok {
		return nil
	}
	return &g
}

func (l *Layer) runTasksByProcedure(runID, excludeID string) Strategy[[]domain.Task] {
	return Strategy[[]domain.Task]{Name: "procedure", Fn: func(ctx context.Context) ([]domain.Task, bool, error) {
		var exclude any
		if excludeID != "" {
			exclude = excludeID
		}
		rows, err := l.Store.Call(ctx, store.ProcTasksByRunID, map[string]any{"p_run_id": runID, "p_exclude_task_id": exclude})
		if err != nil || len(rows) == 0 {
			return nil, false, err
		}
		tasks, err := store.Decode[domain.Task](rows)
		return tasks, err == nil, err
	}}
}

// scanRun reads the newest segment tasks and keeps those belonging to runID.
func (l *Layer) scanRun(ctx context.Context, runID, excludeID string) ([]domain.Task, error) {
	rows, err := l.Store.Select(ctx, store.TableTasks, store.Query{
		Columns: domain.RunTaskColumns,
		Filters: []store.Filter{store.In("task_type", domain.SegmentTaskTypes)},
		Order:   []store.Order{store.Desc("created_at")},
		Limit:   l.scanLimit(),
	})
	if err != nil {
		return nil, err
	}
	tasks, err := store.Decode[domain.Task](rows)
	if err != nil {
		return nil, err
	}
	var out []domain.Task
	for _, t := range tasks {
		if t.Params.String(domain.ParamOrchestratorRunID) == runID && t.ID != excludeID {
			out = append(out, t)
		}
	}
	return out, nil
}

// RunSiblings lists the other tasks of a segment's run.
func (l *Layer) RunSiblings(ctx context.Context, runID, excludeID string) []domain.Task {
	if runID == "" {
		return nil
	}
	tasks, _ := First(ctx, l.log().With("run_id", runID), "run_siblings",
		l.runTasksByProcedure(runID, excludeID),
		Strategy[[]domain.Task]{Name: "scan", Fn: func(ctx context.Context) ([]domain.Task, bool, error) {
			tasks, err := l.scanRun(ctx, runID, excludeID)
			return tasks, err == nil, err
		}},
	)
	return tasks
}

// ChildTasks lists the segment tasks of an orchestrator's run, each annotated
// with its segment index.
func (l *Layer) ChildTasks(ctx context.Context, runID string) []domain.Task {
	if runID == "" {
		return nil
	}
	tasks, _ := First(ctx, l.log().With("run_id", runID), "child_tasks",
		l.runTasksByProcedure(runID, ""),
		Strategy[[]domain.Task]{Name: "scan", Fn: func(ctx context.Context) ([]domain.Task, bool, error) {
			tasks, err := l.scanRun(ctx, runID, "")
			if err != nil {
				return nil, false, err
			}
			annotateSegments(tasks)
			sort.SliceStable(tasks, func(i, j int) bool {
				return segmentIndex(tasks[i]) < segmentIndex(tasks[j])
			})
			return tasks, true, nil
		}},
	)
	if tasks != nil {
		annotateSegments(tasks)
	}
	return tasks
}

func annotateSegments(tasks []domain.Task) {
	for i := range tasks {
		if tasks[i].SegmentIndex != nil {
			continue
		}
		if idx, ok := tasks[i].ParamsSegmentIndex(); ok {
			tasks[i].SegmentIndex = &idx
		}
	}
}

func segmentIndex(t domain.Task) int {
	if t.SegmentIndex == nil {
		return 0
	}
	return *t.SegmentIndex
}

// Predecessors resolves each id to a task summary. Ids that resolve to nothing
// are dropped.
func (l *Layer) Predecessors(ctx context.Context, ids domain.IDList) []domain.Task {
	out := []domain.Task{}
	for _, id := range ids {
		t, err := l.TaskSummary(ctx, id)
		if err != nil {
			l.log().Warn("predecessor lookup failed", "task_id", id, "err", err)
			continue
		}
		if t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// DependentTasks lists tasks whose dependant_on includes taskID. Stores where
// dependant_on is still a scalar text column reject the array match, so the
// lookup is retried as an equality match.
func (l *Layer) DependentTasks(ctx context.Context, taskID string) ([]domain.Task, error) {
	rows, err := l.dependents(ctx, store.Contains("dependant_on", taskID))
	if err != nil {
		l.log().Warn("dependant_on array match failed, retrying as scalar", "task_id", taskID, "err", err)
		var eqErr error
		rows, eqErr = l.dependents(ctx, store.Eq("dependant_on", taskID))
		if eqErr != nil {
			return nil, errors.Join(err, eqErr)
		}
	}
	return store.Decode[domain.Task](rows)
}

func (l *Layer) dependents(ctx context.Context, f store.Filter) ([]store.Row, error) {
	return l.Store.Select(ctx, store.TableTasks, store.Query{
		Columns: "id,task_type,status,created_at,generation_processed_at",
		Filters: []store.Filter{f},
		Order:   []store.Order{store.Asc("created_at")},
	})
}

// Orchestration holds the run relationships of a task.
type Orchestration struct {
	Orchestrator *domain.Task
	Siblings     []domain.Task
	Children     []domain.Task
}

// Orchestration looks up or down the run depending on the task's type only.
func (l *Layer) Orchestration(ctx context.Context, task domain.Task) Orchestration {
	var o Orchestration
	switch domain.RoleOf(task.TaskType) {
	case domain.RoleSegment:
		if id := task.OrchestratorTaskID(); id != "" {
			t, err := l.TaskSummary(ctx, id)
			if err != nil {
				l.log().Warn("orchestrator lookup failed", "task_id", task.ID, "orchestrator_task_id", id, "err", err)
			}
			o.Orchestrator = t
		}
		o.Siblings = l.RunSiblings(ctx, task.RunID(), task.ID)
	case domain.RoleOrchestrator:
		o.Children = l.ChildTasks(ctx, task.RunID())
	}
	return o
}

func (l *Layer) Variants(ctx context.Context, generationID string) ([]domain.Variant, error) {
	if generationID == "" {
		return nil, nil
	}
	rows, err := l.Store.Select(ctx, store.TableVariants, store.Query{
		Filters: []store.Filter{store.Eq("generation_id", generationID)},
		Order:   []store.Order{store.Asc("created_at")},
	})
	if err != nil {
		return nil, err
	}
	return store.Decode[domain.Variant](rows)
}

// ShotAssociations lists the shots a generation is placed on, with shot names attached.
func (l *Layer) ShotAssociations(ctx context.Context, generationID string) ([]domain.ShotAssociation, error) {
	if generationID == "" {
		return nil, nil
	}
	rows, err := l.Store.Select(ctx, store.TableShotGenerations, store.Query{
		Filters: []store.Filter{store.Eq("generation_id", generationID)},
	})
	if err != nil {
		return nil, err
	}
	assocs, err := store.Decode[domain.ShotAssociation](rows)
	if err != nil || len(assocs) == 0 {
		return assocs, err
	}
	var ids []string
	for _, a := range assocs {
		if a.ShotID != "" {
			ids = append(ids, a.ShotID)
		}
	}
	if len(ids) == 0 {
		return assocs, nil
	}
	shotRows, err := l.Store.Select(ctx, store.TableShots, store.Query{
		Columns: "id,name",
		Filters: []store.Filter{store.In("id", ids)},
	})
	if err != nil {
		l.log().Warn("shot lookup failed", "generation_id", generationID, "err", err)
		return assocs, nil
	}
	shots, err := store.Decode[domain.Shot](shotRows)
	if err != nil {
		return assocs, nil
	}
	byID := make(map[string]domain.Shot, len(shots))
	for _, s := range shots {
		byID[s.ID] = s
	}
	for i := range assocs {
		if s, ok := byID[assocs[i].ShotID]; ok {
			assocs[i].Shot = &s
		}
	}
	return assocs, nil
}

func (l *Layer) Worker(ctx context.Context, id string) (*domain.Worker, error) {
	if id == "" {
		return nil, nil
	}
	w, err := store.One[domain.Worker](ctx, l.Store, store.TableWorkers, "", id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (l *Layer) CreditEntries(ctx context.Context, taskID string) ([]domain.CreditEntry, error) {
	rows, err := l.Store.Select(ctx, store.TableCredits, store.Query{
		Filters: []store.Filter{store.Eq("task_id", taskID)},
		Order:   []store.Order{store.Asc("created_at")},
	})
	if err != nil {
		return nil, err
	}
	return store.Decode[domain.CreditEntry](rows)
}

type RecentFilter struct {
	Limit    int
	Status   string
	TaskType string
	Since    time.Time
}

// RecentTasks returns the newest tasks matching f.
func (l *Layer) RecentTasks(ctx context.Context, f RecentFilter) ([]domain.Task, error) {
	var filters []store.Filter
	if f.Status != "" {
		filters = append(filters, store.Eq("status", f.Status))
	}
	if f.TaskType != "" {
		filters = append(filters, store.Eq("task_type", f.TaskType))
	}
	if !f.Since.IsZero() {
		filters = append(filters, store.Gte("created_at", f.Since.UTC().Format(time.RFC3339)))
	}
	rows, err := l.Store.Select(ctx, store.TableTasks, store.Query{
		Filters: filters,
		Order:   []store.Order{store.Desc("created_at")},
		Limit:   f.Limit,
	})
	if err != nil {
		return nil, err
	}
	return store.Decode[domain.Task](rows)
}

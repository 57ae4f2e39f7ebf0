// Package inspect assembles the full picture of a task from its relationships
// and summarizes sets of recent tasks.
package inspect

import (
	"context"
	"log/slog"

	"taskscope/internal/domain"
	"taskscope/internal/query"
)

// TaskView is everything known about one task. Collections are never nil so
// they serialize as empty lists.
type TaskView struct {
	TaskID           string                   `json:"task_id"`
	State            *domain.Task             `json:"state"`
	Logs             []domain.LogEntry        `json:"logs"`
	Generation       *domain.Generation       `json:"generation"`
	Variants         []domain.Variant         `json:"variants"`
	ShotAssociations []domain.ShotAssociation `json:"shot_associations"`
	Worker           *domain.Worker           `json:"worker"`
	CreditEntries    []domain.CreditEntry     `json:"credit_entries"`
	OrchestratorTask *domain.Task             `json:"orchestrator_task"`
	ChildTasks       []domain.Task            `json:"child_tasks"`
	RunSiblings      []domain.Task            `json:"run_siblings"`
	DependentTasks   []domain.Task            `json:"dependent_tasks"`
	PredecessorTasks []domain.Task            `json:"predecessor_tasks"`
}

func emptyView(taskID string) TaskView {
	return TaskView{
		TaskID:           taskID,
		Logs:             []domain.LogEntry{},
		Variants:         []domain.Variant{},
		ShotAssociations: []domain.ShotAssociation{},
		CreditEntries:    []domain.CreditEntry{},
		ChildTasks:       []domain.Task{},
		RunSiblings:      []domain.Task{},
		DependentTasks:   []domain.Task{},
		PredecessorTasks: []domain.Task{},
	}
}

type Assembler struct {
	Query  *query.Layer
	Logger *slog.Logger
}

func New(q *query.Layer, logger *slog.Logger) *Assembler {
	return &Assembler{Query: q, Logger: logger}
}

func (a *Assembler) log() *slog.Logger {
	if a.Logger == nil {
		return slog.Default()
	}
	return a.Logger
}

// Assemble never fails: each relationship that cannot be fetched is left empty
// and logged.
func (a *Assembler) Assemble(ctx context.Context, taskID string) TaskView {
	view := emptyView(taskID)
	log := a.log().With("task_id", taskID)

	task, err := a.Query.Task(ctx, taskID)
	if err != nil {
		log.Warn("task lookup failed", "err", err)
		return view
	}
	if task == nil {
		return view
	}
	view.State = task

	// A paging failure still leaves the pages read before it.
	logs, err := a.Query.TaskLogs(ctx, taskID)
	if err != nil {
		log.Warn("logs lookup failed", "err", err)
	}
	view.Logs = orEmpty(logs)

	view.Generation = a.Query.GenerationForTask(ctx, *task)
	if view.Generation != nil {
		genID := view.Generation.ID
		if variants, err := a.Query.Variants(ctx, genID); err != nil {
			log.Warn("variants lookup failed", "generation_id", genID, "err", err)
		} else {
			view.Variants = orEmpty(variants)
		}
		if shots, err := a.Query.ShotAssociations(ctx, genID); err != nil {
			log.Warn("shot lookup failed", "generation_id", genID, "err", err)
		} else {
			view.ShotAssociations = orEmpty(shots)
		}
	}

	if w, err := a.Query.Worker(ctx, task.Worker()); err != nil {
		log.Warn("worker lookup failed", "worker_id", task.Worker(), "err", err)
	} else {
		view.Worker = w
	}

	if credits, err := a.Query.CreditEntries(ctx, taskID); err != nil {
		log.Warn("credit lookup failed", "err", err)
	} else {
		view.CreditEntries = orEmpty(credits)
	}

	view.PredecessorTasks = orEmpty(a.Query.Predecessors(ctx, task.DependantOn))

	if deps, err := a.Query.DependentTasks(ctx, taskID); err != nil {
		log.Warn("dependent lookup failed", "err", err)
	} else {
		view.DependentTasks = orEmpty(deps)
	}

	o := a.Query.Orchestration(ctx, *task)
	view.OrchestratorTask = o.Orchestrator
	view.RunSiblings = orEmpty(o.Siblings)
	view.ChildTasks = orEmpty(o.Children)
	return view
}

func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

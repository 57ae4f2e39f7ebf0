// Package recovery rebuilds parent and child generations, with their variants,
// from exported segment task records.
package recovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"taskscope/internal/domain"
	"taskscope/internal/store"
)

const (
	GenerationTypeVideo   = "video"
	ToolType              = "travel-between-images"
	CreatedFrom           = "recovery_script"
	VariantTypeIndividual = "individual_segment"
)

var (
	ErrNoParentID   = errors.New("no parent generation id in records and none given")
	ErrParentCreate = errors.New("create parent generation")
)

type Options struct {
	ParentGenerationID string
}

// Engine performs recovery. With DryRun set it makes the same reads and
// decisions but never inserts.
type Engine struct {
	Store  store.Client
	Logger *slog.Logger
	DryRun bool
	Now    func() time.Time
}

func (e *Engine) log() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}
	return e.Logger
}

func (e *Engine) now() string {
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	return now().UTC().Format(time.RFC3339Nano)
}

// Run recovers every segment found in tasks. Only a missing parent id or a
// failure to create the parent stops the run; segment problems are recorded
// in the report.
func (e *Engine) Run(ctx context.Context, tasks []domain.Task, opts Options) (Report, error) {
	a := Analyze(tasks, opts.ParentGenerationID)
	report := Report{
		DryRun:             e.DryRun,
		Loaded:             len(tasks),
		SkippedRecords:     a.Skipped,
		ParentGenerationID: a.ParentGenerationID,
		ParentOverridden:   a.ParentOverridden,
		ProjectID:          a.ProjectID,
		Breakdown:          a.Stats(),
		Segments:           []SegmentResult{},
		Total:              len(a.Indices),
	}
	if a.ParentGenerationID == "" {
		return report, ErrNoParentID
	}
	log := e.log().With("parent_generation_id", a.ParentGenerationID, "dry_run", e.DryRun)

	if err := e.ensureParent(ctx, log, a, &report); err != nil {
		return report, err
	}

	for _, idx := range a.Indices {
		res := e.recoverSegment(ctx, log.With("segment_index", idx), a, idx)
		if res.Recovered() {
			report.Recovered++
		}
		report.Segments = append(report.Segments, res)
	}
	log.Info("recovery finished", "recovered", report.Recovered, "total", report.Total)
	return report, nil
}

func (e *Engine) ensureParent(ctx context.Context, log *slog.Logger, a Analysis, report *Report) error {
	exists, err := store.Exists(ctx, e.Store, store.TableGenerations, a.ParentGenerationID)
	if err != nil {
		if !e.DryRun {
			return fmt.Errorf("%w: check existing: %v", ErrParentCreate, err)
		}
		log.Warn("parent existence check failed", "err", err)
	}
	if exists {
		report.ParentExisted = true
		log.Info("parent generation already exists")
		return nil
	}
	report.ParentCreated = true
	if e.DryRun {
		log.Info("would create parent generation")
		return nil
	}
	_, err = e.Store.Insert(ctx, store.TableGenerations, store.Row{
		"id":         a.ParentGenerationID,
		"project_id": nullable(a.ProjectID),
		"type":       GenerationTypeVideo,
		"is_child":   false,
		"params":     map[string]any{"tool_type": ToolType, "created_from": CreatedFrom},
		"created_at": e.now(),
	})
	if err != nil {
		report.ParentCreated = false
		return fmt.Errorf("%w: %v", ErrParentCreate, err)
	}
	log.Info("created parent generation")
	return nil
}

func (e *Engine) recoverSegment(ctx context.Context, log *slog.Logger, a Analysis, idx int) SegmentResult {
	group := a.Segments[idx]
	res := SegmentResult{Index: idx}

	for _, r := range group {
		if r.ChildGenerationID != "" {
			res.ChildGenerationID = r.ChildGenerationID
			break
		}
	}
	if res.ChildGenerationID == "" {
		res.Outcome, res.Reason = OutcomeSkipped, "no child_generation_id"
		log.Warn("skipping segment", "reason", res.Reason)
		return res
	}
	log = log.With("child_generation_id", res.ChildGenerationID)

	exists, err := store.Exists(ctx, e.Store, store.TableGenerations, res.ChildGenerationID)
	if err != nil {
		res.Outcome, res.Reason = OutcomeFailed, "existence check: "+err.Error()
		log.Error("segment failed", "err", err)
		return res
	}
	if exists {
		res.Outcome = OutcomeExisting
		log.Info("child generation already exists")
		return res
	}

	var source *Record
	for i := range group {
		if group[i].hasOutput() {
			source = &group[i]
			break
		}
	}
	if source == nil {
		res.Outcome, res.Reason = OutcomeSkipped, "no completed task with output"
		log.Warn("skipping segment", "reason", res.Reason)
		return res
	}
	res.SourceTaskID = source.TaskID
	res.Location = source.OutputLocation
	res.Variants = planVariants(group)

	if e.DryRun {
		res.Outcome = OutcomeCreated
		log.Info("would create child generation", "source_task_id", source.TaskID, "variants", len(res.Variants))
		return res
	}

	if _, err := e.Store.Insert(ctx, store.TableGenerations, e.childRow(a, idx, res.ChildGenerationID, *source)); err != nil {
		res.Outcome, res.Reason = OutcomeFailed, "create child generation: "+err.Error()
		log.Error("segment failed", "err", err)
		return res
	}
	res.Outcome = OutcomeCreated

	pos := 0
	for i, r := range group {
		if !r.hasOutput() {
			continue
		}
		row, err := e.Store.Insert(ctx, store.TableVariants, e.variantRow(res.ChildGenerationID, r, i == 0))
		if err != nil {
			res.VariantFailures++
			log.Error("variant insert failed", "source_task_id", r.TaskID, "err", err)
		} else {
			res.VariantsCreated++
			if id, ok := row["id"].(string); ok {
				res.Variants[pos].VariantID = id
			}
		}
		pos++
	}
	log.Info("created child generation", "source_task_id", source.TaskID, "variants", res.VariantsCreated)
	return res
}

// planVariants lists one variant per completed record with output. Only the
// newest record of the group can be primary.
func planVariants(group []Record) []PlannedVariant {
	var out []PlannedVariant
	for i, r := range group {
		if !r.hasOutput() {
			continue
		}
		out = append(out, PlannedVariant{
			SourceTaskID: r.TaskID,
			Location:     r.OutputLocation,
			IsPrimary:    i == 0,
			CreatedAt:    r.CreatedAt,
		})
	}
	return out
}

func (e *Engine) childRow(a Analysis, idx int, id string, src Record) store.Row {
	params := map[string]any{
		"tool_type":     ToolType,
		"created_from":  CreatedFrom,
		"segment_index": idx,
	}
	if pair := src.PairShotGenerationID(); pair != "" {
		params[domain.ParamPairShotGenerationID] = pair
	}
	return store.Row{
		"id":                   id,
		"project_id":           nullable(a.ProjectID),
		"type":                 GenerationTypeVideo,
		"is_child":             true,
		"parent_generation_id": a.ParentGenerationID,
		"child_order":          idx,
		"location":             src.OutputLocation,
		"thumbnail_url":        nullable(src.ThumbnailURL),
		"params":               params,
		"created_at":           e.createdAt(src),
	}
}

func (e *Engine) variantRow(generationID string, r Record, primary bool) store.Row {
	params := r.Params.Clone()
	params["tool_type"] = ToolType
	params["source_task_id"] = r.TaskID
	params["created_from"] = CreatedFrom
	if pair := r.PairShotGenerationID(); pair != "" {
		params[domain.ParamPairShotGenerationID] = pair
	}
	return store.Row{
		"generation_id": generationID,
		"location":      r.OutputLocation,
		"thumbnail_url": nullable(r.ThumbnailURL),
		"is_primary":    primary,
		"variant_type":  VariantTypeIndividual,
		"params":        map[string]any(params),
		"created_at":    e.createdAt(r),
	}
}

func (e *Engine) createdAt(r Record) string {
	if r.CreatedAt != "" {
		return r.CreatedAt
	}
	return e.now()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

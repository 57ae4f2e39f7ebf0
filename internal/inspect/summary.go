package inspect

import (
	"context"
	"time"

	"taskscope/internal/domain"
	"taskscope/internal/query"
)

const (
	DefaultRecentLimit = 50
	maxErrorSummary    = 10
)

type RecentOptions struct {
	Limit    int
	Status   string
	TaskType string
	Since    time.Time
}

type TimingStats struct {
	AvgQueueSeconds      *float64 `json:"avg_queue_seconds"`
	AvgProcessingSeconds *float64 `json:"avg_processing_seconds"`
	TotalWithTiming      int      `json:"total_with_timing"`
}

type ErrorDigest struct {
	TaskID         string `json:"task_id"`
	TaskType       string `json:"task_type"`
	ErrorMessage   string `json:"error_message"`
	OutputLocation string `json:"output_location,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type TasksSummary struct {
	Tasks                []domain.Task  `json:"tasks"`
	TotalCount           int            `json:"total_count"`
	StatusDistribution   map[string]int `json:"status_distribution"`
	TaskTypeDistribution map[string]int `json:"task_type_distribution"`
	WorkerDistribution   map[string]int `json:"worker_distribution"`
	TimingStats          TimingStats    `json:"timing_stats"`
	ErrorSummary         []ErrorDigest  `json:"error_summary"`
}

// Recent fetches the newest tasks matching opts and summarizes them.
func (a *Assembler) Recent(ctx context.Context, opts RecentOptions) (TasksSummary, error) {
	if opts.Limit <= 0 {
		opts.Limit = DefaultRecentLimit
	}
	tasks, err := a.Query.RecentTasks(ctx, query.RecentFilter{
		Limit:    opts.Limit,
		Status:   opts.Status,
		TaskType: opts.TaskType,
		Since:    opts.Since,
	})
	if err != nil {
		return TasksSummary{}, err
	}
	return Summarize(tasks), nil
}

// Summarize computes distributions, timing averages and an error digest.
// Queue time counts tasks with created and started timestamps; processing
// time counts tasks with started and processed timestamps.
func Summarize(tasks []domain.Task) TasksSummary {
	s := TasksSummary{
		Tasks:                orEmpty(tasks),
		TotalCount:           len(tasks),
		StatusDistribution:   map[string]int{},
		TaskTypeDistribution: map[string]int{},
		WorkerDistribution:   map[string]int{},
		ErrorSummary:         []ErrorDigest{},
	}
	var queueSum, procSum float64
	var queueN, procN int
	for _, t := range tasks {
		s.StatusDistribution[string(t.Status)]++
		s.TaskTypeDistribution[t.TaskType]++
		if w := t.Worker(); w != "" {
			s.WorkerDistribution[w]++
		}
		if d, ok := t.QueueDuration(); ok {
			queueSum += d.Seconds()
			queueN++
		}
		if d, ok := t.ProcessingDuration(); ok {
			procSum += d.Seconds()
			procN++
		}
		if t.Status == domain.StatusFailed && len(s.ErrorSummary) < maxErrorSummary {
			s.ErrorSummary = append(s.ErrorSummary, ErrorDigest{
				TaskID:         t.ID,
				TaskType:       t.TaskType,
				ErrorMessage:   t.ErrorText(),
				OutputLocation: t.Output(),
				CreatedAt:      t.CreatedAt,
			})
		}
	}
	if queueN > 0 {
		avg := queueSum / float64(queueN)
		s.TimingStats.AvgQueueSeconds = &avg
	}
	if procN > 0 {
		avg := procSum / float64(procN)
		s.TimingStats.AvgProcessingSeconds = &avg
	}
	s.TimingStats.TotalWithTiming = procN
	return s
}

package server

import (
	"time"

	"taskscope/internal/inspect"
	"taskscope/internal/query"
)

type HealthResponse struct {
	Status string `json:"status" example:"ok"`
}

type taskPath struct {
	TaskID string `path:"task_id" doc:"Task id"`
}

type RecentParams struct {
	Limit    int    `query:"limit" default:"50" minimum:"1" maximum:"1000"`
	Status   string `query:"status" doc:"Exact status, e.g. Failed"`
	TaskType string `query:"task_type"`
	Hours    int    `query:"hours" minimum:"0" doc:"Only tasks created in the last N hours"`
}

func (p RecentParams) options(now time.Time) inspect.RecentOptions {
	opts := inspect.RecentOptions{Limit: p.Limit, Status: p.Status, TaskType: p.TaskType}
	if p.Hours > 0 {
		opts.Since = now.Add(-time.Duration(p.Hours) * time.Hour)
	}
	return opts
}

type LogsParams struct {
	TaskID     string `query:"task_id"`
	SourceType string `query:"source_type" doc:"worker, orchestrator_gpu, orchestrator_api, edge_function or browser"`
	SourceID   string `query:"source_id"`
	SessionID  string `query:"session_id"`
	Level      string `query:"level"`
	Hours      int    `query:"hours" minimum:"0"`
	Tag        string `query:"tag" doc:"Matches messages containing [tag"`
	Limit      int    `query:"limit" default:"500" minimum:"0" doc:"0 reads every page"`
	Latest     bool   `query:"latest" doc:"Only the most recent browser session"`
}

func (p LogsParams) options(now time.Time) inspect.LogsOptions {
	opts := inspect.LogsOptions{
		LogFilter: query.LogFilter{
			TaskID:     p.TaskID,
			SourceType: p.SourceType,
			SourceID:   p.SourceID,
			SessionID:  p.SessionID,
			Level:      p.Level,
			Tag:        p.Tag,
		},
		Limit:         p.Limit,
		LatestSession: p.Latest,
	}
	if p.Hours > 0 {
		opts.Since = now.Add(-time.Duration(p.Hours) * time.Hour)
	}
	return opts
}

type SessionsParams struct {
	Limit int `query:"limit" default:"10" minimum:"1" maximum:"100"`
}

package inspect

import (
	"context"

	"taskscope/internal/domain"
	"taskscope/internal/query"
)

const DefaultLogLimit = 5000

type LogsOptions struct {
	query.LogFilter
	// Limit of 0 reads everything up to the pager's cap.
	Limit int
	// LatestSession narrows to the most recent browser session.
	LatestSession bool
}

type LogsResult struct {
	Logs      []domain.LogEntry `json:"logs"`
	SessionID string            `json:"session_id,omitempty"`
	TagFilter string            `json:"tag_filter,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// Logs reads system logs. A failed page after earlier successes returns the
// rows read so far together with the error.
func (a *Assembler) Logs(ctx context.Context, opts LogsOptions) (LogsResult, error) {
	res := LogsResult{Logs: []domain.LogEntry{}, TagFilter: opts.Tag}
	f := opts.LogFilter
	if opts.LatestSession {
		id, err := a.Query.LatestBrowserSession(ctx)
		if err != nil {
			return res, err
		}
		if id == "" {
			res.Message = "No browser sessions found"
			return res, nil
		}
		f.SessionID = id
		f.SourceType = query.SourceBrowser
	}
	res.SessionID = f.SessionID

	var limit *int
	if opts.Limit > 0 {
		limit = &opts.Limit
	}
	logs, err := a.Query.Logs(ctx, f, limit)
	res.Logs = orEmpty(logs)
	return res, err
}

func (a *Assembler) Sessions(ctx context.Context, limit int) ([]domain.BrowserSession, error) {
	sessions, err := a.Query.BrowserSessions(ctx, limit)
	return orEmpty(sessions), err
}

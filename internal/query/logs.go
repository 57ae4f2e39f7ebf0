package query

import (
	"context"
	"sort"
	"strings"
	"time"

	"taskscope/internal/domain"
	"taskscope/internal/store"
)

const (
	SourceBrowser = "browser"

	// sessionScan bounds how many browser log rows are grouped into sessions.
	sessionScan = 5000
)

type LogFilter struct {
	TaskID     string
	SourceType string
	SourceID   string
	SessionID  string
	Level      string
	Since      time.Time
	// Tag matches messages carrying a "[Tag" marker, case-insensitively.
	Tag string
}

func (f LogFilter) filters() []store.Filter {
	var out []store.Filter
	if f.TaskID != "" {
		out = append(out, store.Eq("task_id", f.TaskID))
	}
	if f.SourceType != "" {
		out = append(out, store.Eq("source_type", f.SourceType))
	}
	if f.SourceID != "" {
		out = append(out, store.Eq("source_id", f.SourceID))
	}
	if f.SessionID != "" {
		out = append(out, store.Eq("session_id", f.SessionID))
	}
	if f.Level != "" {
		out = append(out, store.Eq("log_level", strings.ToUpper(f.Level)))
	}
	if !f.Since.IsZero() {
		out = append(out, store.Gte("timestamp", f.Since.UTC().Format(time.RFC3339)))
	}
	if f.Tag != "" {
		out = append(out, store.ILike("message", "["+f.Tag))
	}
	return out
}

// Logs returns matching log entries in chronological order. A nil limit
// fetches everything up to the pager's cap.
func (l *Layer) Logs(ctx context.Context, f LogFilter, limit *int) ([]domain.LogEntry, error) {
	rows, err := l.pager().Fetch(ctx, store.TableLogs, f.filters(), "timestamp", limit)
	logs, decErr := store.Decode[domain.LogEntry](rows)
	if decErr != nil {
		return nil, decErr
	}
	return logs, err
}

// TaskLogs returns every log line written for a task.
func (l *Layer) TaskLogs(ctx context.Context, taskID string) ([]domain.LogEntry, error) {
	return l.Logs(ctx, LogFilter{TaskID: taskID}, nil)
}

// BrowserSessions groups recent browser logs by session, newest session first.
func (l *Layer) BrowserSessions(ctx context.Context, limit int) ([]domain.BrowserSession, error) {
	scan := sessionScan
	rows, err := l.pager().Fetch(ctx, store.TableLogs, []store.Filter{store.Eq("source_type", SourceBrowser)}, "timestamp", &scan)
	if err != nil && len(rows) == 0 {
		return nil, err
	}
	logs, decErr := store.Decode[domain.LogEntry](rows)
	if decErr != nil {
		return nil, decErr
	}
	byID := map[string]*domain.BrowserSession{}
	for _, e := range logs {
		if e.SessionID == "" {
			continue
		}
		s, ok := byID[e.SessionID]
		if !ok {
			s = &domain.BrowserSession{SessionID: e.SessionID}
			byID[e.SessionID] = s
		}
		s.LogCount++
		if strings.EqualFold(e.LogLevel, "ERROR") {
			s.ErrorCount++
		}
		if e.Timestamp > s.LastTimestamp {
			s.LastTimestamp = e.Timestamp
		}
	}
	out := make([]domain.BrowserSession, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LastTimestamp != out[j].LastTimestamp {
			return out[i].LastTimestamp > out[j].LastTimestamp
		}
		return out[i].SessionID < out[j].SessionID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, err
}

// LatestBrowserSession returns the session id of the most recent browser log,
// or "" when there is none.
func (l *Layer) LatestBrowserSession(ctx context.Context) (string, error) {
	rows, err := l.Store.Select(ctx, store.TableLogs, store.Query{
		Columns: "session_id,timestamp",
		Filters: []store.Filter{store.Eq("source_type", SourceBrowser)},
		Order:   []store.Order{store.Desc("timestamp")},
		Limit:   l.scanLimit(),
	})
	if err != nil {
		return "", err
	}
	for _, r := range rows {
		if s, _ := r["session_id"].(string); s != "" {
			return s, nil
		}
	}
	return "", nil
}

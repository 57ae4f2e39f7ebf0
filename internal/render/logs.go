package render

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"taskscope/internal/domain"
	"taskscope/internal/inspect"
)

const (
	logMessageWidth = 120
	logSourceWidth  = 15
)

var levelSymbols = map[string]string{
	"DEBUG":    "·",
	"INFO":     "i",
	"WARNING":  "!",
	"ERROR":    "x",
	"CRITICAL": "X",
}

// Logs prints log rows grouped under a separator for each minute.
func (r *Renderer) Logs(res inspect.LogsResult) {
	if res.Message != "" {
		r.println(res.Message)
		return
	}
	switch {
	case res.SessionID != "":
		r.banner("Browser session " + res.SessionID)
	default:
		r.banner("System logs")
	}
	if res.TagFilter != "" {
		r.printf("Tag filter: [%s]\n", res.TagFilter)
	}
	if len(res.Logs) == 0 {
		r.println("No logs found")
		return
	}
	r.printf("%d entries\n", len(res.Logs))
	var minute string
	for _, l := range res.Logs {
		if m := truncate(l.Timestamp, 16, ""); m != minute {
			minute = m
			r.println()
			r.println(r.style(mutedStyle, "--- "+minute+" ---"))
		}
		r.println(r.logLine(l))
	}
}

func (r *Renderer) logLine(l domain.LogEntry) string {
	sym, ok := levelSymbols[l.LogLevel]
	if !ok {
		sym = "?"
	}
	source := l.SourceID
	if source == "" {
		source = l.SourceType
	}
	return fmt.Sprintf("%s %s [%-*s] %s",
		clock(l.Timestamp), r.levelAs(l.LogLevel, sym), logSourceWidth, truncate(source, logSourceWidth, ""),
		truncate(l.Message, logMessageWidth, "..."))
}

// Sessions prints browser sessions newest first.
func (r *Renderer) Sessions(sessions []domain.BrowserSession) {
	if len(sessions) == 0 {
		r.println("No browser sessions found")
		return
	}
	tw := r.table()
	tw.AppendHeader(table.Row{"Session", "Logs", "Errors", "Last Seen"})
	for _, s := range sessions {
		errs := fmt.Sprint(s.ErrorCount)
		if s.ErrorCount > 0 {
			errs = r.style(errStyle, errs)
		}
		tw.AppendRow(table.Row{s.SessionID, s.LogCount, errs, truncate(s.LastTimestamp, 19, "")})
	}
	tw.Render()
}

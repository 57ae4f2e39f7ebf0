package render

import (
	"fmt"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"

	"taskscope/internal/inspect"
)

const (
	topTaskTypes   = 10
	topWorkers     = 5
	summaryErrors  = 5
	errorTextWidth = 100
)

type count struct {
	Key string
	N   int
}

// ranked orders a distribution by count descending, then key.
func ranked(m map[string]int) []count {
	out := make([]count, 0, len(m))
	for k, n := range m {
		out = append(out, count{k, n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].N != out[j].N {
			return out[i].N > out[j].N
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (r *Renderer) table() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.W)
	tw.SetStyle(table.StyleLight)
	return tw
}

// Summary prints the recent-task summary.
func (r *Renderer) Summary(s inspect.TasksSummary) {
	r.banner("RECENT TASKS SUMMARY")
	r.section("Overview")
	r.printf("   Total tasks: %d\n", s.TotalCount)
	if s.TotalCount == 0 {
		r.println("   No tasks found")
		return
	}
	oldest, newest := s.Tasks[0].CreatedAt, s.Tasks[0].CreatedAt
	for _, t := range s.Tasks {
		if t.CreatedAt != "" && (oldest == "" || t.CreatedAt < oldest) {
			oldest = t.CreatedAt
		}
		if t.CreatedAt > newest {
			newest = t.CreatedAt
		}
	}
	r.printf("   Time range: %s to %s\n", truncate(oldest, 19, ""), truncate(newest, 19, ""))

	r.section("Status Distribution")
	tw := r.table()
	tw.AppendHeader(table.Row{"Status", "Count", "Share"})
	for _, c := range ranked(s.StatusDistribution) {
		tw.AppendRow(table.Row{c.Key, c.N, fmt.Sprintf("%.1f%%", float64(c.N)*100/float64(s.TotalCount))})
	}
	tw.Render()

	r.section("Task Types")
	tw = r.table()
	tw.AppendHeader(table.Row{"Type", "Count"})
	for i, c := range ranked(s.TaskTypeDistribution) {
		if i == topTaskTypes {
			break
		}
		tw.AppendRow(table.Row{c.Key, c.N})
	}
	tw.Render()

	if len(s.WorkerDistribution) > 0 {
		r.section("Workers")
		tw = r.table()
		tw.AppendHeader(table.Row{"Worker", "Tasks"})
		for i, c := range ranked(s.WorkerDistribution) {
			if i == topWorkers {
				break
			}
			tw.AppendRow(table.Row{short(c.Key, 40), c.N})
		}
		tw.Render()
	}

	if ts := s.TimingStats; ts.AvgQueueSeconds != nil || ts.AvgProcessingSeconds != nil {
		r.section("Timing")
		if ts.AvgQueueSeconds != nil {
			r.printf("   Avg queue time: %.1fs\n", *ts.AvgQueueSeconds)
		}
		if ts.AvgProcessingSeconds != nil {
			r.printf("   Avg processing time: %.1fs\n", *ts.AvgProcessingSeconds)
		}
		r.printf("   Tasks with timing: %d\n", ts.TotalWithTiming)
	}

	if n := len(s.ErrorSummary); n > 0 {
		r.section(r.style(errStyle, fmt.Sprintf("Recent Errors (%d)", n)))
		for i, e := range s.ErrorSummary {
			if i == summaryErrors {
				break
			}
			msg := e.ErrorMessage
			if msg == "" {
				msg = e.OutputLocation
			}
			if msg == "" {
				msg = "No error message"
			}
			r.printf("   %s (%s)\n", short(e.TaskID, 12), e.TaskType)
			r.printf("      %s\n", truncate(msg, errorTextWidth, "..."))
		}
	}
	r.println()
	r.println(rule)
}

package render

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"taskscope/internal/recovery"
)

// Recovery prints a recovery report. Verbose adds the per-segment breakdown
// of the loaded records.
func (r *Renderer) Recovery(rep recovery.Report, verbose bool) {
	title := "GENERATION RECOVERY"
	if rep.DryRun {
		title += " (dry run)"
	}
	r.banner(title)
	r.printf("   Loaded: %d tasks", rep.Loaded)
	if rep.SkippedRecords > 0 {
		r.printf(" (%d without segment index)", rep.SkippedRecords)
	}
	r.println()
	parent := rep.ParentGenerationID
	if rep.ParentOverridden {
		parent += " (override)"
	}
	r.printf("   Parent generation: %s\n", parent)
	r.printf("   Project: %s\n", rep.ProjectID)
	switch {
	case rep.ParentExisted:
		r.println("   Parent: exists")
	case rep.ParentCreated && rep.DryRun:
		r.println("   Parent: would be created")
	case rep.ParentCreated:
		r.println("   Parent: created")
	}

	if verbose && len(rep.Breakdown) > 0 {
		r.section("Segments in export")
		tw := r.table()
		tw.AppendHeader(table.Row{"Segment", "Tasks", "With Output", "Child IDs"})
		for _, b := range rep.Breakdown {
			tw.AppendRow(table.Row{b.Index, b.Tasks, b.WithOutput, len(b.ChildIDs)})
		}
		tw.Render()
	}

	r.section("Results")
	tw := r.table()
	tw.AppendHeader(table.Row{"Segment", "Child", "Outcome", "Variants", "Note"})
	for _, s := range rep.Segments {
		variants := len(s.Variants)
		if !rep.DryRun {
			variants = s.VariantsCreated
		}
		note := s.Reason
		if s.VariantFailures > 0 {
			note = r.style(warnStyle, fmt.Sprintf("%d variant failures", s.VariantFailures))
		}
		tw.AppendRow(table.Row{s.Index, short(s.ChildGenerationID, 12), r.outcome(s.Outcome), variants, note})
	}
	tw.Render()
	r.println()
	r.println(r.style(titleStyle, rep.Summary()))
}

func (r *Renderer) outcome(o recovery.Outcome) string {
	switch o {
	case recovery.OutcomeCreated:
		return r.style(okStyle, string(o))
	case recovery.OutcomeExisting:
		return r.style(infoStyle, string(o))
	case recovery.OutcomeFailed:
		return r.style(errStyle, string(o))
	}
	return r.style(mutedStyle, string(o))
}

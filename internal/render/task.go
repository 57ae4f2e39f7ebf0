package render

import (
	"fmt"
	"sort"
	"strings"

	"taskscope/internal/domain"
	"taskscope/internal/inspect"
)

const (
	maxTimelineLogs  = 50
	maxChildrenShown = 5
	maxDependents    = 3
	maxExtraParams   = 5
	maxParamWidth    = 80
)

var priorityParams = []string{"prompt", "base_prompt", "shot_id", "generation_id", "orchestrator_task_id", "orchestrator_run_id", "segment_index"}

// Task prints the human-readable view of an assembled task.
func (r *Renderer) Task(v inspect.TaskView) {
	r.banner("TASK: " + v.TaskID)
	if v.State == nil {
		r.println()
		r.println(r.style(errStyle, "Task not found"))
		return
	}
	t := v.State

	r.section("Overview")
	r.printf("   Status: %s\n", r.status(string(t.Status)))
	r.printf("   Type: %s\n", t.TaskType)
	r.printf("   Project: %s\n", t.ProjectID)
	switch {
	case v.Worker != nil:
		r.printf("   Worker: %s\n", short(v.Worker.ID, 40))
		r.printf("   Worker Status: %s\n", v.Worker.Status)
		if gpu, ok := v.Worker.Metadata["gpu_type"]; ok && gpu != nil {
			r.printf("   GPU: %v\n", gpu)
		}
		if mem, ok := v.Worker.Metadata["gpu_memory_gb"]; ok && mem != nil {
			r.printf("   GPU Memory: %v GB\n", mem)
		}
	case t.Worker() != "":
		r.printf("   Worker ID: %s\n", short(t.Worker(), 40))
	}
	if c := deref(t.CostInCredits); c != 0 {
		r.printf("   Cost: %g credits\n", c)
	}

	r.timing(*t)

	if t.Status == domain.StatusFailed {
		r.section(r.style(errStyle, "ERROR"))
		switch msg := t.ErrorText(); {
		case msg != "":
			r.printf("   %s\n", msg)
		case strings.Contains(strings.ToLower(t.Output()), "error"):
			r.printf("   %s\n", t.Output())
		default:
			r.println("   No error message recorded")
		}
	}

	r.relationships(v)
	r.generation(v)

	if len(v.CreditEntries) > 0 {
		r.section("Credits")
		var total float64
		for _, e := range v.CreditEntries {
			total += e.Amount
		}
		r.printf("   Total: %.2f credits\n", total)
		for _, e := range v.CreditEntries {
			r.printf("   %s: %g (%s)\n", e.Type, e.Amount, truncate(e.CreatedAt, 19, ""))
		}
	}

	r.timeline(v.Logs)
	r.params(t.Params)

	if t.HasOutput() && !strings.Contains(strings.ToLower(t.Output()), "error") {
		r.section(r.style(okStyle, "Output"))
		r.printf("   %s\n", t.Output())
	}
	r.println()
	r.println(rule)
}

func (r *Renderer) timing(t domain.Task) {
	r.section("Timing")
	if t.CreatedAt == "" {
		return
	}
	r.printf("   Created: %s\n", t.CreatedAt)
	if t.GenerationStartedAt == nil {
		r.println("   " + r.style(warnStyle, "Never started"))
		return
	}
	queue, ok := t.QueueDuration()
	if !ok {
		r.println("   Could not parse timestamps")
		return
	}
	r.printf("   Started: %s (queue: %.1fs)\n", *t.GenerationStartedAt, queue.Seconds())
	if t.GenerationProcessedAt == nil {
		started, _ := domain.ParseTime(*t.GenerationStartedAt)
		r.println("   " + r.style(warnStyle, fmt.Sprintf("Still running (%.1fs elapsed)", r.now().Sub(started).Seconds())))
		return
	}
	proc, ok := t.ProcessingDuration()
	if !ok {
		r.println("   Could not parse timestamps")
		return
	}
	r.printf("   Processed: %s (processing: %.1fs)\n", *t.GenerationProcessedAt, proc.Seconds())
	r.printf("   Total: %.1fs\n", (queue + proc).Seconds())
}

func statusBreakdown(tasks []domain.Task) string {
	counts := map[string]int{}
	for _, t := range tasks {
		s := string(t.Status)
		if s == "" {
			s = "Unknown"
		}
		counts[s]++
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %d", k, counts[k]))
	}
	return strings.Join(parts, ", ")
}

func (r *Renderer) relationships(v inspect.TaskView) {
	if v.OrchestratorTask == nil && len(v.ChildTasks) == 0 && len(v.RunSiblings) == 0 &&
		len(v.PredecessorTasks) == 0 && len(v.DependentTasks) == 0 {
		return
	}
	r.section("Relationships")
	if o := v.OrchestratorTask; o != nil {
		r.printf("   Parent Orchestrator: %s\n", short(o.ID, 20))
		r.printf("      Status: %s | Type: %s\n", r.status(string(o.Status)), o.TaskType)
	}
	if n := len(v.ChildTasks); n > 0 {
		r.printf("   Child Tasks: %d\n", n)
		r.printf("      Status breakdown: %s\n", statusBreakdown(v.ChildTasks))
		for i, c := range v.ChildTasks {
			if i == maxChildrenShown {
				r.printf("      ... and %d more\n", n-maxChildrenShown)
				break
			}
			idx := i
			if c.SegmentIndex != nil {
				idx = *c.SegmentIndex
			}
			r.printf("      [%d] %s %s\n", idx, short(c.ID, 12), r.status(string(c.Status)))
		}
	}
	if n := len(v.RunSiblings); n > 0 {
		r.printf("   Run Siblings: %d other tasks in same run\n", n)
		r.printf("      Status breakdown: %s\n", statusBreakdown(v.RunSiblings))
	}
	for _, p := range v.PredecessorTasks {
		r.printf("   Depends On: %s\n", short(p.ID, 20))
		r.printf("      Status: %s | Type: %s\n", r.status(string(p.Status)), p.TaskType)
	}
	if n := len(v.DependentTasks); n > 0 {
		r.printf("   Blocking Tasks: %d tasks depend on this\n", n)
		for i, d := range v.DependentTasks {
			if i == maxDependents {
				break
			}
			r.printf("      -> %s (%s) - %s\n", short(d.ID, 12), d.TaskType, r.status(string(d.Status)))
		}
	}
}

func (r *Renderer) generation(v inspect.TaskView) {
	g := v.Generation
	if g == nil {
		return
	}
	r.section("Generation")
	r.printf("   ID: %s\n", g.ID)
	r.printf("   Type: %s\n", g.Type)
	if loc := deref(g.Location); loc != "" {
		r.printf("   Location: %s\n", loc)
	}
	if based := deref(g.BasedOn); based != "" {
		r.printf("   Based On: %s\n", based)
	}
	if parent := deref(g.ParentGenerationID); parent != "" {
		r.printf("   Parent: %s (child_order: %d)\n", parent, deref(g.ChildOrder))
	}
	if g.IsChild {
		r.println("   Is Child: Yes")
	}
	if len(v.Variants) > 0 {
		r.printf("   Variants: %d\n", len(v.Variants))
		for _, vr := range v.Variants {
			mark := " "
			if vr.IsPrimary {
				mark = r.style(okStyle, "★")
			}
			kind := vr.VariantType
			if kind == "" {
				kind = "unknown"
			}
			r.printf("      %s %s: %s\n", mark, kind, short(vr.ID, 12))
		}
	}
	if len(v.ShotAssociations) > 0 {
		r.printf("   Shots: %d\n", len(v.ShotAssociations))
		for _, a := range v.ShotAssociations {
			name := "Unknown"
			if a.Shot != nil {
				name = a.Shot.Name
			}
			frame := "-"
			if a.TimelineFrame != nil {
				frame = fmt.Sprint(*a.TimelineFrame)
			}
			r.printf("      -> %s (frame: %s)\n", name, frame)
		}
	}
}

func (r *Renderer) timeline(logs []domain.LogEntry) {
	if len(logs) == 0 {
		r.section("Event Timeline")
		r.println("   No logs found for this task")
		return
	}
	r.section("Event Timeline (from system_logs)")
	r.printf("   Found %d log entries\n\n", len(logs))
	for i, l := range logs {
		if i == maxTimelineLogs {
			r.printf("\n   ... and %d more log entries\n", len(logs)-maxTimelineLogs)
			break
		}
		source := l.SourceID
		if source == "" {
			source = "unknown"
		}
		r.printf("   [%s] [%s] [%-20s] %s\n", clock(l.Timestamp), r.level(l.LogLevel), truncate(source, 20, ""), truncate(l.Message, 100, ""))
	}
}

func (r *Renderer) params(p domain.Params) {
	if len(p) == 0 {
		return
	}
	r.section("Parameters (truncated)")
	shown := map[string]bool{}
	for _, k := range priorityParams {
		if v, ok := p[k]; ok {
			r.printf("   %s: %s\n", k, truncate(fmt.Sprint(v), maxParamWidth, "..."))
			shown[k] = true
		}
	}
	var rest []string
	for k := range p {
		if !shown[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	for i, k := range rest {
		if i == maxExtraParams {
			r.printf("   ... and %d more parameters\n", len(rest)-maxExtraParams)
			break
		}
		r.printf("   %s: %s\n", k, truncate(fmt.Sprint(p[k]), maxParamWidth, "..."))
	}
}

// TaskLogs prints only the log timeline of a task.
func (r *Renderer) TaskLogs(v inspect.TaskView) {
	r.println(r.style(titleStyle, "Event Timeline for Task: "+v.TaskID))
	r.println(rule)
	if len(v.Logs) == 0 {
		r.println("No logs found")
		return
	}
	for _, l := range v.Logs {
		r.printf("[%s] [%s] %s\n", clock(l.Timestamp), r.level(l.LogLevel), l.Message)
	}
}

package recovery

import (
	"sort"

	"taskscope/internal/domain"
)

// Record is one historical task as recovery sees it.
type Record struct {
	TaskID            string
	SegmentIndex      int
	ChildGenerationID string
	OutputLocation    string
	ThumbnailURL      string
	Status            domain.TaskStatus
	CreatedAt         string
	Params            domain.Params
}

func (r Record) hasOutput() bool {
	return r.Status == domain.StatusComplete && r.OutputLocation != ""
}

// PairShotGenerationID reads the pairing reference, which older tasks nest
// under individual_segment_params.
func (r Record) PairShotGenerationID() string {
	if id := r.Params.String(domain.ParamPairShotGenerationID); id != "" {
		return id
	}
	return r.Params.Map(domain.ParamIndividualSegmentParam).String(domain.ParamPairShotGenerationID)
}

type Analysis struct {
	ParentGenerationID string
	ParentOverridden   bool
	ProjectID          string
	// Segments holds each group newest first.
	Segments map[int][]Record
	// Indices lists segment indices ascending.
	Indices []int
	// Skipped counts records without a segment index.
	Skipped int
}

// SegmentStats describes one group before any decision is made.
type SegmentStats struct {
	Index      int      `json:"index"`
	Tasks      int      `json:"tasks"`
	WithOutput int      `json:"with_output"`
	ChildIDs   []string `json:"child_ids"`
}

// Analyze groups records by segment index. The first parent generation and
// project ids found become the run-wide values; parentOverride wins when set.
func Analyze(tasks []domain.Task, parentOverride string) Analysis {
	a := Analysis{Segments: map[int][]Record{}}
	for _, t := range tasks {
		idx, ok := t.Params.Int(domain.ParamSegmentIndex)
		if !ok {
			a.Skipped++
			continue
		}
		if a.ParentGenerationID == "" {
			a.ParentGenerationID = t.Params.String(domain.ParamParentGenerationID)
		}
		if a.ProjectID == "" {
			a.ProjectID = t.Params.String(domain.ParamProjectID)
		}
		a.Segments[idx] = append(a.Segments[idx], Record{
			TaskID:            t.ID,
			SegmentIndex:      idx,
			ChildGenerationID: t.Params.String(domain.ParamChildGenerationID),
			OutputLocation:    t.Output(),
			ThumbnailURL:      t.Params.String(domain.ParamThumbnailURL),
			Status:            t.Status,
			CreatedAt:         t.CreatedAt,
			Params:            t.Params,
		})
	}
	if parentOverride != "" {
		a.ParentGenerationID = parentOverride
		a.ParentOverridden = true
	}
	for idx, group := range a.Segments {
		// Equal timestamps keep export order.
		sort.SliceStable(group, func(i, j int) bool { return newer(group[i].CreatedAt, group[j].CreatedAt) })
		a.Indices = append(a.Indices, idx)
	}
	sort.Ints(a.Indices)
	return a
}

func (a Analysis) Stats() []SegmentStats {
	out := make([]SegmentStats, 0, len(a.Indices))
	for _, idx := range a.Indices {
		s := SegmentStats{Index: idx, Tasks: len(a.Segments[idx]), ChildIDs: []string{}}
		seen := map[string]bool{}
		for _, r := range a.Segments[idx] {
			if r.hasOutput() {
				s.WithOutput++
			}
			if r.ChildGenerationID != "" && !seen[r.ChildGenerationID] {
				seen[r.ChildGenerationID] = true
				s.ChildIDs = append(s.ChildIDs, r.ChildGenerationID)
			}
		}
		out = append(out, s)
	}
	return out
}

// newer compares creation times, falling back to text order when either side
// does not parse. Missing times sort last.
func newer(a, b string) bool {
	ta, okA := domain.ParseTime(a)
	tb, okB := domain.ParseTime(b)
	if okA && okB {
		return ta.After(tb)
	}
	return a > b
}

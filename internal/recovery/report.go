package recovery

import "fmt"

type Outcome string

const (
	OutcomeCreated  Outcome = "created"
	OutcomeExisting Outcome = "existing"
	OutcomeSkipped  Outcome = "skipped"
	OutcomeFailed   Outcome = "failed"
)

// PlannedVariant is a variant recovery creates, or would create in a dry run.
type PlannedVariant struct {
	VariantID    string `json:"variant_id,omitempty"`
	SourceTaskID string `json:"source_task_id"`
	Location     string `json:"location"`
	IsPrimary    bool   `json:"is_primary"`
	CreatedAt    string `json:"created_at"`
}

type SegmentResult struct {
	Index             int              `json:"index"`
	ChildGenerationID string           `json:"child_generation_id,omitempty"`
	Outcome           Outcome          `json:"outcome"`
	Reason            string           `json:"reason,omitempty"`
	SourceTaskID      string           `json:"source_task_id,omitempty"`
	Location          string           `json:"location,omitempty"`
	Variants          []PlannedVariant `json:"variants,omitempty"`
	VariantsCreated   int              `json:"variants_created"`
	VariantFailures   int              `json:"variant_failures"`
}

// Recovered reports whether the segment counts toward the success tally.
func (s SegmentResult) Recovered() bool {
	return s.Outcome == OutcomeCreated || s.Outcome == OutcomeExisting
}

type Report struct {
	DryRun             bool            `json:"dry_run"`
	Loaded             int             `json:"loaded"`
	SkippedRecords     int             `json:"skipped_records"`
	ParentGenerationID string          `json:"parent_generation_id"`
	ParentOverridden   bool            `json:"parent_overridden"`
	ProjectID          string          `json:"project_id"`
	ParentCreated      bool            `json:"parent_created"`
	ParentExisted      bool            `json:"parent_existed"`
	Breakdown          []SegmentStats  `json:"breakdown"`
	Segments           []SegmentResult `json:"segments"`
	Recovered          int             `json:"recovered"`
	Total              int             `json:"total"`
}

func (r Report) Summary() string {
	verb := "recovered"
	if r.DryRun {
		verb = "would recover"
	}
	return fmt.Sprintf("%s %d / %d segments", verb, r.Recovered, r.Total)
}

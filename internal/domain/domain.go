package domain

import "time"

type TaskStatus string

const (
	StatusQueued     TaskStatus = "Queued"
	StatusInProgress TaskStatus = "In Progress"
	StatusComplete   TaskStatus = "Complete"
	StatusFailed     TaskStatus = "Failed"
	StatusCancelled  TaskStatus = "Cancelled"
)

// Task types that carry orchestration semantics. Any other task_type is a plain task.
const (
	TaskTypeTravelSegment         = "travel_segment"
	TaskTypeJoinClipsSegment      = "join_clips_segment"
	TaskTypeTravelOrchestrator    = "travel_orchestrator"
	TaskTypeJoinClipsOrchestrator = "join_clips_orchestrator"
)

// SegmentTaskTypes lists the task types a run fans out into.
var SegmentTaskTypes = []string{TaskTypeTravelSegment, TaskTypeJoinClipsSegment}

type Task struct {
	ID                    string     `json:"id"`
	ProjectID             string     `json:"project_id,omitempty"`
	TaskType              string     `json:"task_type,omitempty"`
	Status                TaskStatus `json:"status,omitempty"`
	Params                Params     `json:"params,omitempty"`
	DependantOn           IDList     `json:"dependant_on,omitempty"`
	Attempts              *int       `json:"attempts,omitempty"`
	WorkerID              *string    `json:"worker_id,omitempty"`
	OutputLocation        *string    `json:"output_location,omitempty"`
	ErrorMessage          *string    `json:"error_message,omitempty"`
	CostInCredits         *float64   `json:"cost_in_credits,omitempty"`
	CreatedAt             string     `json:"created_at,omitempty" format:"date-time"`
	UpdatedAt             *string    `json:"updated_at,omitempty" format:"date-time"`
	GenerationStartedAt   *string    `json:"generation_started_at,omitempty" format:"date-time"`
	GenerationProcessedAt *string    `json:"generation_processed_at,omitempty" format:"date-time"`

	// SegmentIndex is derived from params when tasks are listed as children of a run.
	SegmentIndex *int `json:"segment_index,omitempty"`
}

// TaskSummaryColumns is the projection used when a task is shown as a relationship of another task.
const TaskSummaryColumns = "id,task_type,status,created_at,generation_processed_at,output_location,error_message,worker_id"

// RunTaskColumns adds params, which run membership is decided on.
const RunTaskColumns = "id,task_type,status,created_at,generation_processed_at,params,output_location,error_message"

func (t Task) Output() string {
	if t.OutputLocation == nil {
		return ""
	}
	return *t.OutputLocation
}

func (t Task) ErrorText() string {
	if t.ErrorMessage == nil {
		return ""
	}
	return *t.ErrorMessage
}

func (t Task) Worker() string {
	if t.WorkerID == nil {
		return ""
	}
	return *t.WorkerID
}

// HasOutput reports whether the task completed and left an artifact behind.
func (t Task) HasOutput() bool {
	return t.Status == StatusComplete && t.Output() != ""
}

// QueueDuration is the time between creation and the start of generation.
func (t Task) QueueDuration() (time.Duration, bool) {
	if t.GenerationStartedAt == nil {
		return 0, false
	}
	created, ok := ParseTime(t.CreatedAt)
	if !ok {
		return 0, false
	}
	started, ok := ParseTime(*t.GenerationStartedAt)
	if !ok {
		return 0, false
	}
	return started.Sub(created), true
}

// ProcessingDuration is the time between the start and the end of generation.
func (t Task) ProcessingDuration() (time.Duration, bool) {
	if t.GenerationStartedAt == nil || t.GenerationProcessedAt == nil {
		return 0, false
	}
	started, ok := ParseTime(*t.GenerationStartedAt)
	if !ok {
		return 0, false
	}
	processed, ok := ParseTime(*t.GenerationProcessedAt)
	if !ok {
		return 0, false
	}
	return processed.Sub(started), true
}

// TimingValid checks that a processed task was started, and not after it was processed.
func (t Task) TimingValid() bool {
	if t.GenerationProcessedAt == nil {
		return true
	}
	d, ok := t.ProcessingDuration()
	return ok && d >= 0
}

type Generation struct {
	ID                 string  `json:"id"`
	ProjectID          string  `json:"project_id,omitempty"`
	Type               string  `json:"type,omitempty"`
	IsChild            bool    `json:"is_child"`
	ParentGenerationID *string `json:"parent_generation_id,omitempty"`
	ChildOrder         *int    `json:"child_order,omitempty"`
	Location           *string `json:"location,omitempty"`
	ThumbnailURL       *string `json:"thumbnail_url,omitempty"`
	BasedOn            *string `json:"based_on,omitempty"`
	Params             Params  `json:"params,omitempty"`
	Tasks              IDList  `json:"tasks,omitempty"`
	CreatedAt          string  `json:"created_at,omitempty" format:"date-time"`
}

// ProducedBy reports whether taskID is listed among the generation's tasks.
func (g Generation) ProducedBy(taskID string) bool {
	return g.Tasks.Contains(taskID)
}

type Variant struct {
	ID           string  `json:"id,omitempty"`
	GenerationID string  `json:"generation_id"`
	Location     string  `json:"location"`
	ThumbnailURL *string `json:"thumbnail_url,omitempty"`
	IsPrimary    bool    `json:"is_primary"`
	VariantType  string  `json:"variant_type,omitempty"`
	Params       Params  `json:"params,omitempty"`
	CreatedAt    string  `json:"created_at,omitempty" format:"date-time"`
}

type CreditEntry struct {
	ID        any     `json:"id,omitempty"`
	TaskID    string  `json:"task_id"`
	UserID    string  `json:"user_id,omitempty"`
	Amount    float64 `json:"amount"`
	Type      string  `json:"type"`
	CreatedAt string  `json:"created_at" format:"date-time"`
}

type LogEntry struct {
	ID         any            `json:"id,omitempty"`
	SourceType string         `json:"source_type"`
	SourceID   string         `json:"source_id,omitempty"`
	TaskID     string         `json:"task_id,omitempty"`
	SessionID  string         `json:"session_id,omitempty"`
	LogLevel   string         `json:"log_level"`
	Message    string         `json:"message"`
	Timestamp  string         `json:"timestamp" format:"date-time"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

type Worker struct {
	ID            string         `json:"id"`
	Status        string         `json:"status,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
	LastHeartbeat *string        `json:"last_heartbeat,omitempty" format:"date-time"`
	CreatedAt     string         `json:"created_at,omitempty" format:"date-time"`
}

type Shot struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ShotAssociation struct {
	ID            any    `json:"id,omitempty"`
	ShotID        string `json:"shot_id"`
	GenerationID  string `json:"generation_id"`
	TimelineFrame *int   `json:"timeline_frame,omitempty"`
	Shot          *Shot  `json:"shot,omitempty"`
}

// BrowserSession summarizes the logs of one browser session.
type BrowserSession struct {
	SessionID     string `json:"session_id"`
	LogCount      int    `json:"log_count"`
	ErrorCount    int    `json:"error_count"`
	LastTimestamp string `json:"last_timestamp"`
}

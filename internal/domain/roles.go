package domain

// Role is the position a task takes in an orchestrated run.
type Role int

const (
	RoleNone Role = iota
	RoleSegment
	RoleOrchestrator
)

// RoleOf classifies a task purely by its task_type.
func RoleOf(taskType string) Role {
	switch taskType {
	case TaskTypeTravelSegment, TaskTypeJoinClipsSegment:
		return RoleSegment
	case TaskTypeTravelOrchestrator, TaskTypeJoinClipsOrchestrator:
		return RoleOrchestrator
	}
	return RoleNone
}

// OrchestratorTaskID is the parent orchestrator a segment task points at.
func (t Task) OrchestratorTaskID() string {
	return t.Params.FirstString(ParamOrchestratorTaskID, ParamOrchestratorTaskIDRef)
}

// RunID returns the run a task belongs to: orchestrator_run_id for segments,
// run_id for orchestrators, empty otherwise.
func (t Task) RunID() string {
	switch RoleOf(t.TaskType) {
	case RoleSegment:
		return t.Params.String(ParamOrchestratorRunID)
	case RoleOrchestrator:
		return t.Params.String(ParamRunID)
	}
	return ""
}

// ParamsSegmentIndex reads segment_index, falling back to sequence_index.
func (t Task) ParamsSegmentIndex() (int, bool) {
	if n, ok := t.Params.Int(ParamSegmentIndex); ok {
		return n, true
	}
	return t.Params.Int(ParamSequenceIndex)
}

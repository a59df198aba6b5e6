package model

import "time"

// RunStatus represents the current state of a pipeline run.
type RunStatus string

const (
	RunStatusQueued       RunStatus = "queued"
	RunStatusClassifying  RunStatus = "classifying"
	RunStatusSynthesizing RunStatus = "synthesizing"
	RunStatusExecuting    RunStatus = "executing"
	RunStatusVisualizing  RunStatus = "visualizing"
	RunStatusDashboard    RunStatus = "dashboard"
	RunStatusComplete     RunStatus = "complete"
	RunStatusRejected     RunStatus = "rejected"
	RunStatusFailed       RunStatus = "failed"
)

// Run is a persisted pipeline run for one question.
type Run struct {
	ID        string     `json:"id"`
	Question  string     `json:"question"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunResult is the final summary stored on a run once the router reaches done.
type RunResult struct {
	Outcome     Outcome        `json:"outcome"`
	Reason      string         `json:"reason,omitempty"`
	State       *PipelineState `json:"state,omitempty"`
	Stages      []StageResult  `json:"stages"`
	TotalTokens int            `json:"total_tokens"`
	TotalCost   float64        `json:"total_cost"`
}

// RunStage is a persisted stage record belonging to a run.
type RunStage struct {
	ID        string       `json:"id"`
	RunID     string       `json:"run_id"`
	Name      string       `json:"name"`
	Status    StageStatus  `json:"status"`
	Result    *StageResult `json:"result,omitempty"`
	StartedAt time.Time    `json:"started_at"`
}

// StageStatus represents the current state of a pipeline stage.
type StageStatus string

const (
	StageStatusRunning  StageStatus = "running"
	StageStatusComplete StageStatus = "complete"
	StageStatusFailed   StageStatus = "failed"
	StageStatusSkipped  StageStatus = "skipped"
)

// StageResult holds the outcome of a pipeline stage.
type StageResult struct {
	Name       string         `json:"name"`
	Status     StageStatus    `json:"status"`
	Duration   int64          `json:"duration_ms"`
	TokenUsage TokenUsage     `json:"token_usage"`
	Error      string         `json:"error,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// TokenUsage tracks oracle token consumption.
type TokenUsage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheWriteTokens int `json:"cache_write_tokens,omitempty"`
	CacheReadTokens  int `json:"cache_read_tokens,omitempty"`
	Calls            int `json:"calls"`
}

// Add accumulates another usage into u.
func (u *TokenUsage) Add(other TokenUsage) {
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	u.CacheWriteTokens += other.CacheWriteTokens
	u.CacheReadTokens += other.CacheReadTokens
	u.Calls += other.Calls
}

// Total returns input plus output tokens.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// StatusForOutcome maps a terminal pipeline outcome onto the run status
// persisted alongside the result.
func StatusForOutcome(o Outcome) RunStatus {
	switch o {
	case OutcomeAnswered, OutcomeDashboard:
		return RunStatusComplete
	case OutcomeRejected:
		return RunStatusRejected
	default:
		return RunStatusFailed
	}
}

package model

// Outcome is the terminal classification of a run.
type Outcome string

const (
	OutcomePending           Outcome = ""
	OutcomeAnswered          Outcome = "answered"
	OutcomeRejected          Outcome = "rejected_non_analytics"
	OutcomeSynthesisFailed   Outcome = "sql_synthesis_exhausted"
	OutcomeExecutionFailed   Outcome = "execution_failed"
	OutcomeDashboard         Outcome = "dashboard"
	OutcomeDashboardEmpty    Outcome = "dashboard_empty"
	OutcomeDashboardFailed   Outcome = "dashboard_failed"
	OutcomeClassificationErr Outcome = "classification_parse_error"
)

// PipelineState is the record threaded through the stages. Stages never
// mutate a state they were handed; they return a delta that Merge lays over
// the previous state.
type PipelineState struct {
	RunID              string                `json:"run_id,omitempty"`
	Question           string                `json:"question"`
	Classification     *ClassificationResult `json:"classification,omitempty"`
	SQL                *SQLArtifact          `json:"sql,omitempty"`
	Execution          *ExecutionOutcome     `json:"execution,omitempty"`
	Repair             *RepairAttempt        `json:"repair,omitempty"`
	Visualization      *VisualizationSpec    `json:"visualization,omitempty"`
	VisualizationError string                `json:"visualization_error,omitempty"`
	Chart              *ChartArtifact        `json:"chart,omitempty"`
	Dashboard          *DashboardArtifact    `json:"dashboard,omitempty"`
	Outcome            Outcome               `json:"outcome,omitempty"`
	Reason             string                `json:"reason,omitempty"`
}

// Merge returns a copy of s with every field set in delta laid over it.
// Question and RunID are fixed at construction and never overwritten.
func (s PipelineState) Merge(delta PipelineState) PipelineState {
	out := s
	if delta.Classification != nil {
		out.Classification = delta.Classification
	}
	if delta.SQL != nil {
		out.SQL = delta.SQL
	}
	if delta.Execution != nil {
		out.Execution = delta.Execution
	}
	if delta.Repair != nil {
		out.Repair = delta.Repair
	}
	if delta.Visualization != nil {
		out.Visualization = delta.Visualization
	}
	if delta.VisualizationError != "" {
		out.VisualizationError = delta.VisualizationError
	}
	if delta.Chart != nil {
		out.Chart = delta.Chart
	}
	if delta.Dashboard != nil {
		out.Dashboard = delta.Dashboard
	}
	if delta.Outcome != OutcomePending {
		out.Outcome = delta.Outcome
	}
	if delta.Reason != "" {
		out.Reason = delta.Reason
	}
	return out
}

// Done reports whether a terminal outcome has been recorded.
func (s PipelineState) Done() bool {
	return s.Outcome != OutcomePending
}

package model

import "strings"

// ChartKind is the closed set of chart renderings.
type ChartKind string

const (
	ChartBar             ChartKind = "bar"
	ChartLine            ChartKind = "line"
	ChartPie             ChartKind = "pie"
	ChartArea            ChartKind = "area"
	ChartScatterFallback ChartKind = "scatter-fallback"
)

// ParseChartKind maps an oracle-provided chart type onto the closed set.
// Anything unrecognized falls back to a scatter rendering.
func ParseChartKind(s string) ChartKind {
	switch ChartKind(strings.ToLower(strings.TrimSpace(s))) {
	case ChartBar:
		return ChartBar
	case ChartLine:
		return ChartLine
	case ChartPie:
		return ChartPie
	case ChartArea:
		return ChartArea
	default:
		return ChartScatterFallback
	}
}

// VisualizationSpec maps result columns onto a chart. XField and YField must
// name columns of the result table.
type VisualizationSpec struct {
	ChartKind ChartKind `json:"chart_kind"`
	XField    string    `json:"x_field"`
	YField    string    `json:"y_field"`
	Title     string    `json:"title"`
}

// ChartArtifact is a rendered chart.
type ChartArtifact struct {
	StoragePath string            `json:"storage_path"`
	Spec        VisualizationSpec `json:"spec"`
	Question    string            `json:"question,omitempty"`
}

// DashboardRequest is the decomposition of a broad question.
type DashboardRequest struct {
	SourceQuestion string   `json:"source_question"`
	SubQuestions   []string `json:"sub_questions"`
}

// DashboardItemStatus reports what happened to one sub-question.
type DashboardItemStatus string

const (
	DashboardItemCharted  DashboardItemStatus = "charted"
	DashboardItemAnswered DashboardItemStatus = "answered"
	DashboardItemSkipped  DashboardItemStatus = "skipped"
)

// DashboardItem is the per-sub-question summary, in submission order.
type DashboardItem struct {
	Index    int                 `json:"index"`
	Question string              `json:"question"`
	Status   DashboardItemStatus `json:"status"`
	Reason   string              `json:"reason,omitempty"`
	RunState *PipelineState      `json:"state,omitempty"`
}

// DashboardArtifact aggregates the chart artifacts of surviving sub-questions.
// ChartArtifacts follow sub-question order, never completion order.
type DashboardArtifact struct {
	Request        DashboardRequest `json:"request"`
	ChartArtifacts []ChartArtifact  `json:"chart_artifacts"`
	Items          []DashboardItem  `json:"items"`
	StoragePath    string           `json:"storage_path,omitempty"`
}

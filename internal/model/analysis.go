package model

import (
	"encoding/json"
	"strings"
)

// ClassificationResult is the single, immutable interpretation of a question.
type ClassificationResult struct {
	IsValid            bool   `json:"is_valid"`
	IsAnalytics        bool   `json:"is_analytics"`
	AnalysisGoal       string `json:"analysis_goal"`
	RequiresSQL        bool   `json:"requires_sql"`
	WantsVisualization bool   `json:"wants_visualization"`
	WantsDashboard     bool   `json:"wants_dashboard"`
	RejectionReason    string `json:"rejection_reason,omitempty"`
}

// Accepted reports whether the question should continue past classification.
func (c ClassificationResult) Accepted() bool {
	return c.IsValid && c.IsAnalytics
}

// SQLArtifact is a synthesized statement. IsUsable=false is the sentinel
// "could not synthesize" value and must never reach the warehouse.
type SQLArtifact struct {
	Statement string `json:"statement"`
	IsUsable  bool   `json:"is_usable"`
	Attempts  int    `json:"attempts,omitempty"`
}

// SentinelStatement marks an artifact that no attempt could produce.
const SentinelStatement = "/* unable to generate SQL */"

// ExhaustedArtifact returns the sentinel artifact after the given attempts.
func ExhaustedArtifact(attempts int) SQLArtifact {
	return SQLArtifact{Statement: SentinelStatement, IsUsable: false, Attempts: attempts}
}

// ExecutionStatus classifies an execution outcome.
type ExecutionStatus string

const (
	ExecutionSuccess     ExecutionStatus = "success"
	ExecutionEmptyResult ExecutionStatus = "empty_result"
	ExecutionEngineError ExecutionStatus = "engine_error"
)

// ExecutionOutcome is the result of running one statement.
type ExecutionOutcome struct {
	Status      ExecutionStatus `json:"status"`
	Rows        *Table          `json:"rows,omitempty"`
	RowCount    int             `json:"row_count"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	Statement   string          `json:"statement"`
}

// Succeeded reports whether the outcome carries at least one row.
func (o ExecutionOutcome) Succeeded() bool {
	return o.Status == ExecutionSuccess && o.RowCount > 0
}

// FailureDetail returns the text handed to the repair collaborator.
func (o ExecutionOutcome) FailureDetail() string {
	switch o.Status {
	case ExecutionEmptyResult:
		return "query returned no rows"
	case ExecutionEngineError:
		return o.ErrorDetail
	default:
		return ""
	}
}

// RepairAttempt records the single repair round-trip after a failed execution.
type RepairAttempt struct {
	InputQuestion   string      `json:"input_question"`
	FailedStatement string      `json:"failed_statement"`
	FailureDetail   string      `json:"failure_detail"`
	Repaired        SQLArtifact `json:"repaired"`
}

// Table is a tabular result with a stable column order equal to the engine's.
type Table struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Len returns the number of rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.Rows)
}

// HasColumn reports whether name is one of the table's columns.
func (t *Table) HasColumn(name string) bool {
	if t == nil {
		return false
	}
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// ColumnIndex returns the position of name, or -1.
func (t *Table) ColumnIndex(name string) int {
	if t == nil {
		return -1
	}
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Head returns a table holding at most n leading rows.
func (t *Table) Head(n int) *Table {
	if t == nil {
		return nil
	}
	if n < 0 || n > len(t.Rows) {
		n = len(t.Rows)
	}
	return &Table{Columns: t.Columns, Rows: t.Rows[:n]}
}

// Records returns the rows as column-keyed maps, preserving row order.
func (t *Table) Records() []map[string]any {
	if t == nil {
		return nil
	}
	out := make([]map[string]any, 0, len(t.Rows))
	for _, row := range t.Rows {
		rec := make(map[string]any, len(t.Columns))
		for i, c := range t.Columns {
			if i < len(row) {
				rec[c] = row[i]
			}
		}
		out = append(out, rec)
	}
	return out
}

// PreviewJSON renders the first n rows as a JSON array of records.
func (t *Table) PreviewJSON(n int) string {
	b, err := json.Marshal(t.Head(n).Records())
	if err != nil {
		return "[]"
	}
	return string(b)
}

// String renders the table as a pipe-separated block for prompts.
func (t *Table) String() string {
	if t == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.Join(t.Columns, " | "))
	for _, row := range t.Rows {
		b.WriteString("\n")
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = formatCell(v)
		}
		b.WriteString(strings.Join(cells, " | "))
	}
	return b.String()
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "?"
	}
	return string(b)
}

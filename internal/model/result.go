package model

import "time"

// FailedPreview replaces the data preview of a failed execution in the results log.
const FailedPreview = "SQL_FAILED"

// ResultRecord is one append-only results log entry.
type ResultRecord struct {
	ID           string          `json:"id"`
	RunID        string          `json:"run_id,omitempty"`
	Question     string          `json:"question"`
	SQLStatement string          `json:"sql_statement"`
	DataPreview  string          `json:"data_preview"`
	Status       ExecutionStatus `json:"status"`
	RowCount     int             `json:"row_count"`
	Repaired     bool            `json:"repaired"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewResultRecord builds the log entry for a terminal execution outcome.
func NewResultRecord(runID, question string, outcome ExecutionOutcome, repaired bool, previewRows int) ResultRecord {
	rec := ResultRecord{
		RunID:        runID,
		Question:     question,
		SQLStatement: outcome.Statement,
		Status:       outcome.Status,
		RowCount:     outcome.RowCount,
		Repaired:     repaired,
		DataPreview:  FailedPreview,
	}
	if outcome.Succeeded() {
		rec.DataPreview = outcome.Rows.PreviewJSON(previewRows)
	}
	return rec
}

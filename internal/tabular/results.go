package tabular

import (
	"io"
	"strconv"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/datagenie/internal/model"
)

var resultHeader = []string{
	"id", "run_id", "question", "sql_statement", "data_preview",
	"status", "row_count", "repaired", "created_at",
}

// WriteResults exports results log records in the given format.
func WriteResults(w io.Writer, format Format, records []model.ResultRecord) error {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			r.ID,
			r.RunID,
			r.Question,
			r.SQLStatement,
			r.DataPreview,
			string(r.Status),
			strconv.Itoa(r.RowCount),
			strconv.FormatBool(r.Repaired),
			r.CreatedAt.UTC().Format(time.RFC3339),
		})
	}

	switch format {
	case FormatCSV:
		return WriteCSV(w, resultHeader, rows)
	case FormatXLSX:
		return WriteXLSX(w, "results", resultHeader, rows)
	default:
		return eris.Errorf("tabular: unsupported format %q", format)
	}
}

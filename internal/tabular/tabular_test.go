package tabular

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/datagenie/internal/model"
)

func createTestXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "questions.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func writeTestFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestReadQuestions_Text(t *testing.T) {
	path := writeTestFile(t, "questions.txt", "How many customers do we have?\n\n# ignored\n  Top 10 products by revenue  \n")

	qs, err := ReadQuestions(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"How many customers do we have?", "Top 10 products by revenue"}, qs)
}

func TestReadQuestions_CSV(t *testing.T) {
	path := writeTestFile(t, "questions.csv", "question,owner\n\"Revenue by year, last 3 years\",finance\n# skipped\nReturn rate by region,ops\n")

	qs, err := ReadQuestions(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Revenue by year, last 3 years", "Return rate by region"}, qs)
}

func TestReadQuestions_XLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"Question"},
		{"Profit by category"},
		{""},
		{"Customers by occupation"},
	})

	qs, err := ReadQuestions(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Profit by category", "Customers by occupation"}, qs)
}

func TestReadQuestions_Missing(t *testing.T) {
	_, err := ReadQuestions(context.Background(), filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestReadXLSX_SheetSelection(t *testing.T) {
	path := createTestXLSX(t, [][]string{{"a", "b"}, {"c", "d"}})

	rows, err := ReadXLSX(path, XLSXOptions{SkipRows: 1})
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"c", "d"}}, rows)

	_, err = ReadXLSX(path, XLSXOptions{SheetName: "Missing"})
	assert.Error(t, err)
	_, err = ReadXLSX(path, XLSXOptions{SheetIndex: 3})
	assert.Error(t, err)
}

func TestReadCSV_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReadCSV(ctx, strings.NewReader("a,b\n"), CSVOptions{})
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("", "out/results.XLSX")
	require.NoError(t, err)
	assert.Equal(t, FormatXLSX, f)

	f, err = ParseFormat("csv", "out/results.xlsx")
	require.NoError(t, err)
	assert.Equal(t, FormatCSV, f)

	_, err = ParseFormat("", "results.json")
	assert.Error(t, err)
}

func sampleRecords() []model.ResultRecord {
	at := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)
	return []model.ResultRecord{
		{ID: "r1", RunID: "run-1", Question: "How many customers?", SQLStatement: "SELECT COUNT(*) FROM dim_customers", DataPreview: `[{"count":18148}]`, Status: model.ExecutionSuccess, RowCount: 1, CreatedAt: at},
		{ID: "r2", RunID: "run-2", Question: "Revenue per robot?", SQLStatement: model.SentinelStatement, DataPreview: model.FailedPreview, Status: model.ExecutionEngineError, Repaired: true, CreatedAt: at},
	}
}

func TestWriteResults_CSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatCSV, sampleRecords()))

	rows, err := ReadCSV(context.Background(), &buf, CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, resultHeader, rows[0])
	assert.Equal(t, `[{"count":18148}]`, rows[1][4])
	assert.Equal(t, "SQL_FAILED", rows[2][4])
	assert.Equal(t, "true", rows[2][7])
	assert.Equal(t, "2026-03-14T09:26:53Z", rows[1][8])
}

func TestWriteResults_XLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteResults(&buf, FormatXLSX, sampleRecords()))

	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	rows, err := ReadXLSX(path, XLSXOptions{SheetName: "results"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "question", rows[0][2])
	assert.Equal(t, "Revenue per robot?", rows[2][2])
}

func TestWriteResults_UnknownFormat(t *testing.T) {
	assert.Error(t, WriteResults(&bytes.Buffer{}, Format("json"), nil))
}

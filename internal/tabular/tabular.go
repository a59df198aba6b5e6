// Package tabular reads question lists from text, CSV and XLSX files and
// exports results log records as CSV or XLSX.
package tabular

import (
	"bufio"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

// Format is an export file format.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatXLSX Format = "xlsx"
)

// ParseFormat resolves an explicit format name, or the extension of path when
// name is empty.
func ParseFormat(name, path string) (Format, error) {
	if name == "" {
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch Format(strings.ToLower(name)) {
	case FormatCSV:
		return FormatCSV, nil
	case FormatXLSX:
		return FormatXLSX, nil
	default:
		return "", eris.Errorf("tabular: unsupported format %q", name)
	}
}

// questionHeader is skipped when it appears as the first cell of a sheet.
const questionHeader = "question"

// ReadQuestions loads one question per line (.txt and anything else), per
// row (first column of .csv) or per sheet row (first column of the first
// .xlsx sheet). Blank entries and "#" comments are skipped.
func ReadQuestions(ctx context.Context, path string) ([]string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rows, err := ReadCSV(ctx, f, CSVOptions{Comment: '#', TrimSpace: true})
		if err != nil {
			return nil, err
		}
		return firstColumn(rows), nil
	case ".xlsx":
		rows, err := ReadXLSX(path, XLSXOptions{})
		if err != nil {
			return nil, err
		}
		return firstColumn(rows), nil
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "tabular: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return readLines(ctx, f)
	}
}

func readLines(ctx context.Context, r io.Reader) ([]string, error) {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "tabular: read lines")
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "tabular: read lines")
	}
	return out, nil
}

func firstColumn(rows [][]string) []string {
	var out []string
	for i, row := range rows {
		if len(row) == 0 {
			continue
		}
		cell := strings.TrimSpace(row[0])
		if cell == "" || strings.HasPrefix(cell, "#") {
			continue
		}
		if i == 0 && strings.EqualFold(cell, questionHeader) {
			continue
		}
		out = append(out, cell)
	}
	return out
}

package workspace

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ocrdesk/ocrdesk/internal/models"
)

var ErrNothingToExport = errors.New("no content to export")

// Exporter writes entries in a download format.
type Exporter interface {
	Format() string
	Export(w io.Writer, entries []Entry) error
}

// ExporterFor returns the exporter for "csv" or "txt".
func ExporterFor(format string) (Exporter, error) {
	switch strings.ToLower(format) {
	case "csv":
		return CSVExporter{}, nil
	case "txt", "text":
		return TextExporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// CSVExporter writes every table, each cell quoted, rows ending in CRLF.
// Tables after the first are preceded by a "--- Table N ---" separator.
type CSVExporter struct{}

func (CSVExporter) Format() string { return "csv" }

func (CSVExporter) Export(w io.Writer, entries []Entry) error {
	var tables []*Table
	for _, e := range entries {
		if t := tableOf(e); t != nil {
			tables = append(tables, t)
		}
	}
	if len(tables) == 0 {
		return ErrNothingToExport
	}

	var b strings.Builder
	for i, t := range tables {
		if i > 0 {
			fmt.Fprintf(&b, "\n\n--- Table %d ---\n", i+1)
		}
		for _, r := range t.Rows() {
			cells := make([]string, len(r))
			for j, c := range r {
				cells[j] = `"` + strings.ReplaceAll(c.Text, `"`, `""`) + `"`
			}
			b.WriteString(strings.Join(cells, ","))
			b.WriteString("\r\n")
		}
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// TextExporter writes each entry's visible text, separated by a rule. Table
// cells are tab separated.
type TextExporter struct{}

func (TextExporter) Format() string { return "txt" }

func (TextExporter) Export(w io.Writer, entries []Entry) error {
	if len(entries) == 0 {
		return ErrNothingToExport
	}
	parts := make([]string, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, plainText(e))
	}
	_, err := io.WriteString(w, strings.Join(parts, "\n\n"+strings.Repeat("=", 20)+"\n\n"))
	return err
}

func tableOf(e Entry) *Table {
	if e.Kind == models.SessionTypeText {
		return nil
	}
	if e.Table != nil {
		return e.Table
	}
	if e.Raw != "" {
		return parseTable(e.Raw)
	}
	return nil
}

func plainText(e Entry) string {
	if e.Kind == models.SessionTypeText {
		return e.Text
	}
	t := tableOf(e)
	if t == nil {
		return e.Raw
	}
	lines := make([]string, 0, len(t.Head)+len(t.Body))
	for _, r := range t.Rows() {
		cells := make([]string, len(r))
		for i, c := range r {
			cells[i] = c.Text
		}
		lines = append(lines, strings.Join(cells, "\t"))
	}
	return strings.Join(lines, "\n")
}

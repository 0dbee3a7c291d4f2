package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/ocrdesk/ocrdesk/internal/workspace"
)

// ResolveEntry finds an entry by id or by its 1-based position.
func ResolveEntry(entries []workspace.Entry, ref string) (workspace.Entry, error) {
	for _, e := range entries {
		if e.ID == ref {
			return e, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(entries) {
		return entries[n-1], nil
	}
	return workspace.Entry{}, fmt.Errorf("%w: %s", workspace.ErrUnknownEntry, ref)
}

// ParseCell reads a 1-based "ROW,COL" pair and returns 0-based indexes.
// Rows count header rows first, as printed.
func ParseCell(s string) (row, col int, err error) {
	r, c, ok := strings.Cut(s, ",")
	if !ok {
		return 0, 0, fmt.Errorf("cell %q: want ROW,COL", s)
	}
	row, err = strconv.Atoi(strings.TrimSpace(r))
	if err != nil || row < 1 {
		return 0, 0, fmt.Errorf("cell %q: bad row", s)
	}
	col, err = strconv.Atoi(strings.TrimSpace(c))
	if err != nil || col < 1 {
		return 0, 0, fmt.Errorf("cell %q: bad column", s)
	}
	return row - 1, col - 1, nil
}

// PrintEntryList writes one line per entry: position, id, kind and title.
func PrintEntryList(w io.Writer, entries []workspace.Entry) error {
	if len(entries) == 0 {
		_, err := fmt.Fprintln(w, "Session is empty.")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tID\tKIND\tTITLE")
	for i, e := range entries {
		kind := string(e.Kind)
		if !e.Editable {
			kind += " (read-only)"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", i+1, e.ID, kind, e.Title)
	}
	return tw.Flush()
}

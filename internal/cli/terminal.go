// Package cli holds the terminal implementations of the ui collaborators
// and the line-based image editor prompt.
package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"

	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/workspace"
)

// Spinner is a ui.Indicator drawn on w.
type Spinner struct {
	mu sync.Mutex
	s  *spinner.Spinner
	on bool
}

func NewSpinner(w io.Writer, message string) *Spinner {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + message
	s.Writer = w
	return &Spinner{s: s}
}

func (s *Spinner) Show() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.on {
		s.s.Start()
		s.on = true
	}
}

func (s *Spinner) Hide() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.on {
		s.s.Stop()
		s.on = false
	}
}

// Notifier prints alerts in red and the saved signal in green.
type Notifier struct {
	mu    sync.Mutex
	w     io.Writer
	quiet bool
}

// NewNotifier writes to w. A quiet notifier drops the saved signal.
func NewNotifier(w io.Writer, quiet bool) *Notifier {
	return &Notifier{w: w, quiet: quiet}
}

func (n *Notifier) Alert(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	color.New(color.FgRed).Fprintf(n.w, "✗ %s\n", msg)
}

func (n *Notifier) Saved(name string) {
	if n.quiet {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	color.New(color.FgGreen).Fprintf(n.w, "✓ Saved %q\n", name)
}

// StreamRenderer writes the new part of each entry's content as it arrives.
type StreamRenderer struct {
	mu      sync.Mutex
	w       io.Writer
	written map[string]int
}

func NewStreamRenderer(w io.Writer) *StreamRenderer {
	return &StreamRenderer{w: w, written: make(map[string]int)}
}

func (r *StreamRenderer) RenderEntry(id, title, content string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, seen := r.written[id]
	if !seen {
		color.New(color.FgCyan, color.Bold).Fprintf(r.w, "── %s ──\n", title)
	}
	if n > len(content) {
		n = 0
	}
	fmt.Fprint(r.w, content[n:])
	r.written[id] = len(content)
}

// PrintEntries writes the workspace as plain text: tables aligned in
// columns, text entries as they are.
func PrintEntries(w io.Writer, entries []workspace.Entry) error {
	for i, e := range entries {
		if i > 0 {
			fmt.Fprintln(w)
		}
		color.New(color.FgCyan, color.Bold).Fprintf(w, "── %s ──\n", e.Title)
		if e.Kind == models.SessionTypeText || e.Table == nil {
			body := e.Content()
			fmt.Fprint(w, body)
			if !strings.HasSuffix(body, "\n") {
				fmt.Fprintln(w)
			}
			continue
		}
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, row := range e.Table.Rows() {
			cells := make([]string, len(row))
			for j, c := range row {
				cells[j] = c.Text
			}
			fmt.Fprintln(tw, strings.Join(cells, "\t"))
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// PrintHistory lists saved sessions newest first.
func PrintHistory(w io.Writer, rows []models.SessionSummary) error {
	if len(rows) == 0 {
		fmt.Fprintln(w, "No saved sessions.")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSAVED")
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", r.ID, r.Name, r.Timestamp)
	}
	return tw.Flush()
}

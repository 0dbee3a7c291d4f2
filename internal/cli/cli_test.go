package cli

import (
	"bytes"
	"context"
	"image"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrdesk/ocrdesk/internal/editor"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/workspace"
)

func init() {
	color.NoColor = true
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want editor.Command
	}{
		{"l", editor.Command{Op: editor.OpRotate, Degrees: -90}},
		{"RIGHT", editor.Command{Op: editor.OpRotate, Degrees: 90}},
		{"  y ", editor.Command{Op: editor.OpConfirm}},
		{"skip", editor.Command{Op: editor.OpSkip}},
		{"q", editor.Command{Op: editor.OpCancel}},
		{"reset", editor.Command{Op: editor.OpReset}},
		{"crop 10 20 30 40", editor.Command{Op: editor.OpCrop, Rect: image.Rect(10, 20, 40, 60)}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "rotate", "crop 1 2 3", "crop a b c d"} {
		_, err := ParseCommand(bad)
		assert.Error(t, err, bad)
	}
}

func TestLinePrompter_SkipsBadInput(t *testing.T) {
	var out bytes.Buffer
	p := NewLinePrompter(strings.NewReader("spin\nr\ny\n"), &out)
	view := editor.View{Name: "a.png", Format: "png", Width: 4, Height: 2}

	cmd, err := p.Next(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, editor.OpRotate, cmd.Op)

	cmd, err = p.Next(context.Background(), view)
	require.NoError(t, err)
	assert.Equal(t, editor.OpConfirm, cmd.Op)

	_, err = p.Next(context.Background(), view)
	assert.ErrorIs(t, err, ErrInputClosed)

	assert.Contains(t, out.String(), `unknown command "spin"`)
	assert.Contains(t, out.String(), "a.png (png) 4x2")
}

func TestLinePrompter_ContextEnds(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	p := NewLinePrompter(pr, io.Discard)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := p.Next(ctx, editor.View{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStreamRenderer_WritesDeltas(t *testing.T) {
	var out bytes.Buffer
	r := NewStreamRenderer(&out)
	r.RenderEntry("e1", "letter.png", "Dear ")
	r.RenderEntry("e1", "letter.png", "Dear reader")
	assert.Equal(t, "── letter.png ──\nDear reader", out.String())
}

func TestNotifier(t *testing.T) {
	var out bytes.Buffer
	NewNotifier(&out, false).Alert("Error processing a.png: boom")
	NewNotifier(&out, false).Saved("Receipts")
	NewNotifier(&out, true).Saved("hidden")
	assert.Equal(t, "✗ Error processing a.png: boom\n✓ Saved \"Receipts\"\n", out.String())
}

func TestPrintEntries(t *testing.T) {
	ws := workspace.New()
	ws.NewSession(models.SessionTypeTable)
	id := ws.AddEntry("a.png")
	require.NoError(t, ws.SetContent(id, "<table><thead><tr><th>Item</th><th>Qty</th></tr></thead><tbody><tr><td>Pencil</td><td>2</td></tr></tbody></table>"))
	require.NoError(t, ws.MakeEditable(id, nil))

	var out bytes.Buffer
	require.NoError(t, PrintEntries(&out, ws.Entries()))
	assert.Equal(t, "── a.png ──\nItem    Qty\nPencil  2\n", out.String())
}

func TestPrintHistory(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, PrintHistory(&out, nil))
	assert.Equal(t, "No saved sessions.\n", out.String())

	out.Reset()
	require.NoError(t, PrintHistory(&out, []models.SessionSummary{{ID: "abc", Name: "Receipts", Timestamp: "2024-01-01 10:00:00"}}))
	assert.Contains(t, out.String(), "abc  Receipts  2024-01-01 10:00:00")
}

func TestResolveEntry(t *testing.T) {
	entries := []workspace.Entry{{ID: "tbl-a", Title: "a.png"}, {ID: "tbl-b", Title: "b.png"}}

	e, err := ResolveEntry(entries, "tbl-b")
	require.NoError(t, err)
	assert.Equal(t, "b.png", e.Title)

	e, err = ResolveEntry(entries, "1")
	require.NoError(t, err)
	assert.Equal(t, "tbl-a", e.ID)

	for _, ref := range []string{"0", "3", "tbl-c"} {
		_, err = ResolveEntry(entries, ref)
		assert.ErrorIs(t, err, workspace.ErrUnknownEntry, ref)
	}
}

func TestParseCell(t *testing.T) {
	row, col, err := ParseCell("2, 3")
	require.NoError(t, err)
	assert.Equal(t, 1, row)
	assert.Equal(t, 2, col)

	for _, bad := range []string{"", "2", "0,1", "1,x", "-1,2"} {
		_, _, err := ParseCell(bad)
		assert.Error(t, err, bad)
	}
}

func TestPrintEntryList(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintEntryList(&buf, nil))
	assert.Equal(t, "Session is empty.\n", buf.String())

	buf.Reset()
	require.NoError(t, PrintEntryList(&buf, []workspace.Entry{
		{ID: "tbl-a", Title: "a.png", Kind: models.SessionTypeTable, Editable: true},
		{ID: "tbl-b", Title: "b.png", Kind: models.SessionTypeTable},
	}))
	assert.Equal(t, "#  ID     KIND               TITLE\n"+
		"1  tbl-a  table              a.png\n"+
		"2  tbl-b  table (read-only)  b.png\n", buf.String())
}

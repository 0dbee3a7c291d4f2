// Package engine defines the OCR engine contract used by the server and the
// helpers engines share to turn recognized lines into streamed fragments.
package engine

import (
	"context"
	"errors"
	"html"
	"regexp"
	"strings"

	"github.com/ocrdesk/ocrdesk/internal/models"
)

// ErrUnavailable is returned by engines whose backing model is not loaded.
var ErrUnavailable = errors.New("ocr engine unavailable")

// Request is one image to recognize.
type Request struct {
	Image    []byte
	Filename string
	Mode     models.SessionType
}

// Emit delivers one fragment to the client. An error stops recognition.
type Emit func(fragment string) error

// Engine recognizes an image and streams the result. Table mode emits an
// HTML table, text mode plain text. Implementations return ctx.Err() once
// ctx is done.
type Engine interface {
	Name() string
	Recognize(ctx context.Context, req Request, emit Emit) error
}

// Func adapts a function to Engine.
type Func func(ctx context.Context, req Request, emit Emit) error

func (f Func) Name() string { return "func" }

func (f Func) Recognize(ctx context.Context, req Request, emit Emit) error {
	return f(ctx, req, emit)
}

var columnGap = regexp.MustCompile(`\t+|\s{2,}`)

// SplitColumns splits a recognized line on tabs or runs of two or more spaces.
func SplitColumns(line string) []string {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	return columnGap.Split(line, -1)
}

// Lines splits text into lines, dropping blank ones.
func Lines(text string) []string {
	var out []string
	for _, l := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n") {
		if strings.TrimSpace(l) != "" {
			out = append(out, strings.TrimRight(l, " \t"))
		}
	}
	return out
}

// RenderRow renders one tr with escaped cell text.
func RenderRow(cells []string, header bool) string {
	tag := "td"
	if header {
		tag = "th"
	}
	var b strings.Builder
	b.WriteString("<tr>")
	for _, c := range cells {
		b.WriteString("<" + tag + ">")
		b.WriteString(html.EscapeString(c))
		b.WriteString("</" + tag + ">")
	}
	b.WriteString("</tr>")
	return b.String()
}

// StreamTable emits lines as a table, the first line as the header row. It
// stops between rows once ctx is done.
func StreamTable(ctx context.Context, lines []string, emit Emit) error {
	if err := emit("<table>"); err != nil {
		return err
	}
	wroteHead := false
	for i, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells := SplitColumns(line)
		if len(cells) == 0 {
			continue
		}
		var frag string
		if i == 0 {
			frag = "<thead>" + RenderRow(cells, true) + "</thead><tbody>"
			wroteHead = true
		} else {
			frag = RenderRow(cells, false)
		}
		if err := emit(frag); err != nil {
			return err
		}
	}
	if !wroteHead {
		return emit("<tbody></tbody></table>")
	}
	return emit("</tbody></table>")
}

// StreamText emits each line followed by a newline, stopping between lines
// once ctx is done.
func StreamText(ctx context.Context, lines []string, emit Emit) error {
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(line + "\n"); err != nil {
			return err
		}
	}
	return nil
}

// Stream picks StreamTable or StreamText for mode.
func Stream(ctx context.Context, mode models.SessionType, lines []string, emit Emit) error {
	if mode == models.SessionTypeText {
		return StreamText(ctx, lines, emit)
	}
	return StreamTable(ctx, lines, emit)
}

package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/ocrdesk/ocrdesk/internal/editor"
)

// ErrInputClosed is returned when the command input reaches EOF.
var ErrInputClosed = errors.New("input closed")

const promptHelp = "commands: l|left, r|right, crop X Y W H, reset, s|skip, y|ok, x|cancel"

// LinePrompter reads editor commands one line at a time. Lines are read on
// a goroutine so Next can return as soon as ctx ends.
type LinePrompter struct {
	out   io.Writer
	lines chan string
	once  sync.Once
	in    io.Reader
	err   error
}

func NewLinePrompter(in io.Reader, out io.Writer) *LinePrompter {
	return &LinePrompter{in: in, out: out, lines: make(chan string)}
}

func (p *LinePrompter) start() {
	go func() {
		sc := bufio.NewScanner(p.in)
		for sc.Scan() {
			p.lines <- sc.Text()
		}
		p.err = sc.Err()
		close(p.lines)
	}()
}

// Next shows view and waits for a valid command. Unrecognised input is
// reported and the prompt repeats.
func (p *LinePrompter) Next(ctx context.Context, view editor.View) (editor.Command, error) {
	p.once.Do(p.start)
	p.show(view)
	for {
		fmt.Fprint(p.out, "> ")
		select {
		case <-ctx.Done():
			fmt.Fprintln(p.out)
			return editor.Command{}, ctx.Err()
		case line, ok := <-p.lines:
			if !ok {
				if p.err != nil {
					return editor.Command{}, p.err
				}
				return editor.Command{}, ErrInputClosed
			}
			cmd, err := ParseCommand(line)
			if err != nil {
				p.Problem(err.Error())
				continue
			}
			return cmd, nil
		}
	}
}

func (p *LinePrompter) Problem(msg string) {
	color.New(color.FgYellow).Fprintf(p.out, "⚠ %s\n", msg)
}

func (p *LinePrompter) show(v editor.View) {
	color.New(color.FgCyan).Fprintf(p.out, "%s (%s) %dx%d", v.Name, v.Format, v.Width, v.Height)
	if v.Rotation != 0 {
		fmt.Fprintf(p.out, " rotated %d°", v.Rotation)
	}
	if !v.Crop.Empty() {
		fmt.Fprintf(p.out, " crop %d,%d %dx%d", v.Crop.Min.X, v.Crop.Min.Y, v.Crop.Dx(), v.Crop.Dy())
	}
	fmt.Fprintln(p.out)
	fmt.Fprintln(p.out, promptHelp)
}

// ParseCommand turns one input line into an editor command.
func ParseCommand(line string) (editor.Command, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return editor.Command{}, errors.New("empty command")
	}
	switch fields[0] {
	case "l", "left":
		return editor.Command{Op: editor.OpRotate, Degrees: -90}, nil
	case "r", "right":
		return editor.Command{Op: editor.OpRotate, Degrees: 90}, nil
	case "reset":
		return editor.Command{Op: editor.OpReset}, nil
	case "s", "skip":
		return editor.Command{Op: editor.OpSkip}, nil
	case "y", "ok", "confirm":
		return editor.Command{Op: editor.OpConfirm}, nil
	case "x", "q", "cancel":
		return editor.Command{Op: editor.OpCancel}, nil
	case "crop":
		if len(fields) != 5 {
			return editor.Command{}, errors.New("usage: crop X Y W H")
		}
		var n [4]int
		for i, f := range fields[1:] {
			v, err := strconv.Atoi(f)
			if err != nil {
				return editor.Command{}, fmt.Errorf("crop: %q is not a number", f)
			}
			n[i] = v
		}
		return editor.Command{Op: editor.OpCrop, Rect: image.Rect(n[0], n[1], n[0]+n[2], n[1]+n[3])}, nil
	default:
		return editor.Command{}, fmt.Errorf("unknown command %q", fields[0])
	}
}

package editor

import (
	"context"
	"image"

	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/queue"
)

// Op is one editor command.
type Op int

const (
	OpCancel Op = iota
	OpSkip
	OpConfirm
	OpRotate
	OpCrop
	OpReset
)

// Command is what the user asked for. Degrees applies to OpRotate and Rect
// to OpCrop.
type Command struct {
	Op      Op
	Degrees int
	Rect    image.Rectangle
}

// Prompter shows the surface and reads the next command. It returns an
// error when the user goes away or ctx ends; that counts as cancel.
type Prompter interface {
	Next(ctx context.Context, view View) (Command, error)
	// Problem reports a command that could not be applied.
	Problem(msg string)
}

// Options tune the export of confirmed edits.
type Options struct {
	Quality      int
	MaxDimension int
}

// Interactive implements queue.PreProcessor.
type Interactive struct {
	prompter Prompter
	opts     Options
	log      zerolog.Logger
}

func NewInteractive(p Prompter, opts Options, log zerolog.Logger) *Interactive {
	return &Interactive{prompter: p, opts: opts, log: logging.Component(log, "editor")}
}

// PreProcess runs the editor for one file. A file that cannot be decoded
// resolves to cancel with the decode error.
func (e *Interactive) PreProcess(ctx context.Context, file models.PendingFile) (queue.Decision, error) {
	s, err := Open(file)
	if err != nil {
		return queue.Decision{Action: queue.ActionCancel}, err
	}

	for {
		cmd, err := e.prompter.Next(ctx, s.View())
		if err != nil {
			return queue.Decision{Action: queue.ActionCancel}, err
		}

		switch cmd.Op {
		case OpCancel:
			return queue.Decision{Action: queue.ActionCancel}, nil
		case OpSkip:
			return queue.Decision{Action: queue.ActionSkip, File: file}, nil
		case OpConfirm:
			out, err := s.Export(e.opts.Quality, e.opts.MaxDimension)
			if err != nil {
				return queue.Decision{Action: queue.ActionCancel}, err
			}
			e.log.Debug().Str("file", file.Name).Int("rotation", s.rotation).Int("bytes", len(out.Data)).Msg("edited image exported")
			return queue.Decision{Action: queue.ActionConfirm, File: out}, nil
		case OpRotate:
			if err := s.Rotate(cmd.Degrees); err != nil {
				e.prompter.Problem(err.Error())
			}
		case OpCrop:
			if err := s.SetCrop(cmd.Rect); err != nil {
				e.prompter.Problem(err.Error())
			}
		case OpReset:
			s.Reset()
		}
	}
}

package editor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrdesk/ocrdesk/internal/imaging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/queue"
)

func pngFile(t *testing.T, w, h int) models.PendingFile {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return models.PendingFile{Name: "scan.png", Data: buf.Bytes(), ContentType: "image/png"}
}

type scriptPrompter struct {
	cmds     []Command
	views    []View
	problems []string
}

func (s *scriptPrompter) Next(ctx context.Context, v View) (Command, error) {
	s.views = append(s.views, v)
	if len(s.cmds) == 0 {
		return Command{}, errors.New("input closed")
	}
	c := s.cmds[0]
	s.cmds = s.cmds[1:]
	return c, nil
}

func (s *scriptPrompter) Problem(msg string) { s.problems = append(s.problems, msg) }

func run(t *testing.T, f models.PendingFile, cmds ...Command) (queue.Decision, *scriptPrompter, error) {
	t.Helper()
	p := &scriptPrompter{cmds: cmds}
	e := NewInteractive(p, Options{}, zerolog.Nop())
	dec, err := e.PreProcess(context.Background(), f)
	return dec, p, err
}

func TestPreProcess_Skip(t *testing.T) {
	f := pngFile(t, 40, 20)
	dec, _, err := run(t, f, Command{Op: OpRotate, Degrees: 90}, Command{Op: OpSkip})

	require.NoError(t, err)
	assert.Equal(t, queue.ActionSkip, dec.Action)
	assert.Equal(t, f, dec.File, "skip uploads the original bytes")
}

func TestPreProcess_ConfirmRotateAndCrop(t *testing.T) {
	f := pngFile(t, 40, 20)
	dec, p, err := run(t, f,
		Command{Op: OpRotate, Degrees: 90},
		Command{Op: OpCrop, Rect: image.Rect(0, 0, 10, 30)},
		Command{Op: OpConfirm},
	)

	require.NoError(t, err)
	assert.Equal(t, queue.ActionConfirm, dec.Action)
	assert.Equal(t, "scan.png", dec.File.Name)
	assert.Equal(t, "image/jpeg", dec.File.ContentType)

	img, format, err := imaging.Decode(dec.File.Data)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	assert.Equal(t, 10, img.Bounds().Dx())
	assert.Equal(t, 30, img.Bounds().Dy())

	require.Len(t, p.views, 3)
	assert.Equal(t, 20, p.views[1].Width, "rotated view swaps sides")
	assert.Equal(t, 40, p.views[1].Height)
}

func TestPreProcess_Cancel(t *testing.T) {
	dec, _, err := run(t, pngFile(t, 4, 4), Command{Op: OpCancel})
	require.NoError(t, err)
	assert.Equal(t, queue.ActionCancel, dec.Action)
}

func TestPreProcess_InputGoneIsCancel(t *testing.T) {
	dec, _, err := run(t, pngFile(t, 4, 4))
	assert.Error(t, err)
	assert.Equal(t, queue.ActionCancel, dec.Action)
}

func TestPreProcess_UndecodableIsCancel(t *testing.T) {
	dec, p, err := run(t, models.PendingFile{Name: "notes.txt", Data: []byte("hello")}, Command{Op: OpConfirm})

	assert.Error(t, err)
	assert.Equal(t, queue.ActionCancel, dec.Action)
	assert.Empty(t, p.views, "the editor never opened")
}

func TestPreProcess_BadCommandsReported(t *testing.T) {
	dec, p, err := run(t, pngFile(t, 10, 10),
		Command{Op: OpRotate, Degrees: 45},
		Command{Op: OpCrop, Rect: image.Rect(50, 50, 60, 60)},
		Command{Op: OpReset},
		Command{Op: OpConfirm},
	)

	require.NoError(t, err)
	assert.Equal(t, queue.ActionConfirm, dec.Action)
	assert.Len(t, p.problems, 2)
}

func TestSurface_ResetAndEdited(t *testing.T) {
	s, err := Open(pngFile(t, 8, 6))
	require.NoError(t, err)
	assert.False(t, s.Edited())

	require.NoError(t, s.Rotate(-90))
	assert.Equal(t, 270, s.View().Rotation)
	require.NoError(t, s.SetCrop(image.Rect(1, 1, 3, 3)))
	assert.True(t, s.Edited())

	s.Reset()
	assert.False(t, s.Edited())
	assert.Equal(t, View{Name: "scan.png", Format: "png", Width: 8, Height: 6}, s.View())
}

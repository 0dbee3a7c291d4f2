// Package tesseract is the Tesseract-backed OCR engine.
package tesseract

import (
	"context"
	"fmt"

	"github.com/otiai10/gosseract/v2"

	"github.com/ocrdesk/ocrdesk/internal/engine"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// Engine runs one gosseract client per request.
type Engine struct {
	languages     []string
	clientFactory func() *gosseract.Client
}

type Option func(*Engine)

// WithLanguages sets the Tesseract language packs, "eng" by default.
func WithLanguages(langs ...string) Option {
	return func(e *Engine) {
		if len(langs) > 0 {
			e.languages = langs
		}
	}
}

// New builds the engine and checks that the language packs load.
func New(opts ...Option) (*Engine, error) {
	e := &Engine{languages: []string{"eng"}, clientFactory: gosseract.NewClient}
	for _, opt := range opts {
		opt(e)
	}

	c := e.clientFactory()
	defer c.Close()
	if err := c.SetLanguage(e.languages...); err != nil {
		return nil, fmt.Errorf("%w: set languages: %v", engine.ErrUnavailable, err)
	}
	return e, nil
}

func (e *Engine) Name() string { return "tesseract" }

// Version reports the linked Tesseract version.
func Version() string { return gosseract.Version() }

// Recognize runs Tesseract over the whole image, then streams the result
// line by line. Table mode keeps inter-word spacing so columns survive.
func (e *Engine) Recognize(ctx context.Context, req engine.Request, emit engine.Emit) error {
	c := e.clientFactory()
	defer c.Close()

	if err := c.SetImageFromBytes(req.Image); err != nil {
		return fmt.Errorf("set image: %w", err)
	}
	if err := c.SetLanguage(e.languages...); err != nil {
		return fmt.Errorf("set languages: %w", err)
	}

	if req.Mode == models.SessionTypeTable {
		if err := c.SetVariable(gosseract.SettableVariable("preserve_interword_spaces"), "1"); err != nil {
			return fmt.Errorf("set variable: %w", err)
		}
		if err := c.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
			return fmt.Errorf("set page seg mode: %w", err)
		}
	} else if err := c.SetPageSegMode(gosseract.PSM_AUTO); err != nil {
		return fmt.Errorf("set page seg mode: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	text, err := c.Text()
	if err != nil {
		return fmt.Errorf("recognize text: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	return engine.Stream(ctx, req.Mode, engine.Lines(text), emit)
}

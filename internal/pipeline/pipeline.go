// Package pipeline uploads one confirmed file, streams the result into the
// workspace and reports how the upload ended.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/cancel"
	"github.com/ocrdesk/ocrdesk/internal/client"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/stream"
	"github.com/ocrdesk/ocrdesk/internal/ui"
)

// Outcome is how an upload ended.
type Outcome int

const (
	Succeeded Outcome = iota
	// Aborted means the server stopped the job and sent the sentinel.
	Aborted
	Failed
	// Cancelled means the user cancelled; nothing more is done for the file.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case Aborted:
		return "aborted"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// OCRClient starts a streaming OCR request.
type OCRClient interface {
	OCR(ctx context.Context, file models.PendingFile, typ models.SessionType) (*client.OCRResponse, error)
}

// Sink is the workspace as seen by an upload.
type Sink interface {
	SessionType() models.SessionType
	AddEntry(title string) string
	SetContent(id, content string) error
	MakeEditable(id string, onEdit func()) error
	SetUploadVisible(v bool)
}

// Scheduler requests a debounced save.
type Scheduler interface {
	ScheduleSave()
}

// Tokens issues and releases upload tokens.
type Tokens interface {
	Issue(parent context.Context) *cancel.Token
	Release(tok *cancel.Token)
}

// Pipeline runs uploads one at a time; the queue guarantees that.
type Pipeline struct {
	client    OCRClient
	sink      Sink
	tokens    Tokens
	saver     Scheduler
	indicator ui.Indicator
	notifier  ui.Notifier
	renderer  ui.Renderer
	log       zerolog.Logger
}

// Deps are the collaborators of a Pipeline. UI fields may be nil.
type Deps struct {
	Client    OCRClient
	Sink      Sink
	Tokens    Tokens
	Saver     Scheduler
	Indicator ui.Indicator
	Notifier  ui.Notifier
	Renderer  ui.Renderer
	Logger    zerolog.Logger
}

func New(d Deps) *Pipeline {
	p := &Pipeline{
		client:    d.Client,
		sink:      d.Sink,
		tokens:    d.Tokens,
		saver:     d.Saver,
		indicator: d.Indicator,
		notifier:  d.Notifier,
		renderer:  d.Renderer,
		log:       logging.Component(d.Logger, "pipeline"),
	}
	if p.indicator == nil {
		p.indicator = ui.Nop{}
	}
	if p.notifier == nil {
		p.notifier = ui.Nop{}
	}
	if p.renderer == nil {
		p.renderer = ui.Nop{}
	}
	return p
}

// Upload sends file and streams the answer into a new workspace entry. The
// indicator is hidden on every path. Except after a cancel, a save is
// scheduled and the upload affordance is hidden.
func (p *Pipeline) Upload(ctx context.Context, file models.PendingFile) Outcome {
	p.indicator.Show()
	defer p.indicator.Hide()

	tok := p.tokens.Issue(ctx)
	defer p.tokens.Release(tok)

	log := p.log.With().Str("file", file.Name).Uint64("token", tok.ID()).Logger()
	outcome, err := p.run(tok, file, log)

	switch {
	case outcome == Cancelled:
		log.Info().Msg("upload cancelled")
		return Cancelled
	case err != nil:
		log.Error().Err(err).Msg("upload failed")
		p.notifier.Alert(fmt.Sprintf("Error processing %s: %v", file.Name, err))
		outcome = Failed
	case outcome == Aborted:
		log.Info().Msg("server aborted job")
	default:
		log.Info().Msg("upload complete")
	}

	p.sink.SetUploadVisible(false)
	p.saver.ScheduleSave()
	return outcome
}

func (p *Pipeline) run(tok *cancel.Token, file models.PendingFile, log zerolog.Logger) (Outcome, error) {
	typ := p.sink.SessionType()

	resp, err := p.client.OCR(tok.Context(), file, typ)
	if err != nil {
		if stopped(tok) || client.IsCancelled(err) {
			return Cancelled, nil
		}
		return Failed, err
	}
	defer resp.Body.Close()

	if stopped(tok) {
		return Cancelled, nil
	}
	title := resp.Filename
	id := p.sink.AddEntry(title)
	if typ == models.SessionTypeText {
		if err := p.sink.MakeEditable(id, p.saver.ScheduleSave); err != nil {
			return Failed, err
		}
	}

	dec := stream.NewDecoder(resp.Body)
	outcome := Succeeded
	for {
		frag, err := dec.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if stopped(tok) || errors.Is(err, context.Canceled) {
				return Cancelled, nil
			}
			return Failed, fmt.Errorf("read response: %w", err)
		}
		if stopped(tok) {
			return Cancelled, nil
		}
		if frag.Text != "" {
			content := dec.Accumulated()
			if err := p.sink.SetContent(id, content); err != nil {
				return Failed, err
			}
			p.renderer.RenderEntry(id, title, content)
		}
		if frag.Aborted {
			outcome = Aborted
			break
		}
	}

	if stopped(tok) {
		return Cancelled, nil
	}
	if typ == models.SessionTypeTable {
		if err := p.sink.MakeEditable(id, p.saver.ScheduleSave); err != nil {
			return Failed, err
		}
	}
	log.Debug().Int("bytes", len(dec.Accumulated())).Msg("stream finished")
	return outcome, nil
}

// stopped reports whether the upload was cancelled, either by the user or
// because the queue's busy period ended.
func stopped(tok *cancel.Token) bool {
	return tok.Revoked() || tok.Context().Err() != nil
}

// Package desk assembles the client side of ocrdesk: the workspace, the
// processing queue, the upload pipeline, cancellation, persistence and
// history, behind one facade used by the CLI.
package desk

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/cancel"
	"github.com/ocrdesk/ocrdesk/internal/history"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/persist"
	"github.com/ocrdesk/ocrdesk/internal/pipeline"
	"github.com/ocrdesk/ocrdesk/internal/queue"
	"github.com/ocrdesk/ocrdesk/internal/ui"
	"github.com/ocrdesk/ocrdesk/internal/workspace"
)

// Client is the server API the desk talks to. *client.Client implements it.
type Client interface {
	pipeline.OCRClient
	persist.SaveClient
	history.Client
	cancel.Notifier
	GPU(ctx context.Context) (models.GPUStatus, error)
}

// Options configure a Desk. Zero values pick defaults.
type Options struct {
	Type        models.SessionType
	QuietPeriod time.Duration
	SaveTimeout time.Duration
	Clock       persist.Clock

	// PreProcessor runs before each upload; nil uploads files as they are.
	PreProcessor queue.PreProcessor
	Indicator    ui.Indicator
	Notifier     ui.Notifier
	Renderer     ui.Renderer
	Observer     func(queue.Transition)
	Logger       zerolog.Logger
}

// Desk is one interactive OCR session.
type Desk struct {
	client  Client
	ws      *workspace.Workspace
	coord   *cancel.Coordinator
	queue   *queue.Orchestrator
	saver   *persist.Saver
	history *history.Manager
	log     zerolog.Logger
}

// New wires a desk around c. The workspace starts as a new session of
// opts.Type.
func New(c Client, opts Options) *Desk {
	if opts.Indicator == nil {
		opts.Indicator = ui.Nop{}
	}
	if opts.Notifier == nil {
		opts.Notifier = ui.Nop{}
	}
	if opts.PreProcessor == nil {
		opts.PreProcessor = queue.SkipEditing
	}
	if opts.Type == "" {
		opts.Type = models.SessionTypeTable
	}

	d := &Desk{
		client: c,
		ws:     workspace.New(),
		log:    logging.Component(opts.Logger, "desk"),
	}
	d.ws.NewSession(opts.Type)

	d.saver = persist.NewSaver(c, d.ws, persist.Options{
		QuietPeriod: opts.QuietPeriod,
		Timeout:     opts.SaveTimeout,
		Clock:       opts.Clock,
		Logger:      opts.Logger,
		Notifier:    opts.Notifier,
		OnSaved:     d.refreshHistory,
	})
	d.history = history.NewManager(c, d.ws, d.saver.ScheduleSave, opts.Logger)
	d.coord = cancel.NewCoordinator(c, opts.Logger)

	pipe := pipeline.New(pipeline.Deps{
		Client:    c,
		Sink:      d.ws,
		Tokens:    d.coord,
		Saver:     d.saver,
		Indicator: opts.Indicator,
		Notifier:  opts.Notifier,
		Renderer:  opts.Renderer,
		Logger:    opts.Logger,
	})

	qopts := []queue.Option{queue.WithIndicator(opts.Indicator), queue.WithLogger(opts.Logger)}
	if opts.Observer != nil {
		qopts = append(qopts, queue.WithObserver(opts.Observer))
	}
	d.queue = queue.New(opts.PreProcessor, pipe, qopts...)
	d.coord.Bind(d.queue)
	return d
}

// Workspace exposes the workspace for rendering and inspection.
func (d *Desk) Workspace() *workspace.Workspace { return d.ws }

// Enqueue adds files to the processing queue.
func (d *Desk) Enqueue(files ...models.PendingFile) {
	d.queue.Enqueue(files...)
}

// Status reports the queue state.
func (d *Desk) Status() queue.Status { return d.queue.Status() }

// WaitIdle blocks until the queue has drained or ctx ends.
func (d *Desk) WaitIdle(ctx context.Context) error {
	return d.queue.WaitIdle(ctx)
}

// Cancel abandons the current upload and everything still queued. An empty
// workspace gets its upload affordance back.
func (d *Desk) Cancel() {
	d.coord.CancelCurrent()
	if d.ws.IsEmpty() {
		d.ws.SetUploadVisible(true)
	}
}

// Save persists the workspace now.
func (d *Desk) Save(ctx context.Context) error {
	return d.saver.Save(ctx)
}

// Flush runs a pending debounced save now. It reports whether one was
// pending.
func (d *Desk) Flush() bool {
	return d.saver.Flush()
}

// Rename sets the session name and saves.
func (d *Desk) Rename(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("name must not be empty")
	}
	d.ws.SetName(name)
	return d.saver.Save(ctx)
}

// NewSession clears the workspace. A pending save of the old session runs
// first.
func (d *Desk) NewSession(typ models.SessionType) {
	d.saver.Flush()
	d.ws.NewSession(typ)
}

// History refreshes and returns the saved sessions.
func (d *Desk) History(ctx context.Context) ([]history.Row, error) {
	return d.history.Refresh(ctx)
}

// Load opens a saved session. A pending save of the current one runs first.
func (d *Desk) Load(ctx context.Context, id string) error {
	d.saver.Flush()
	return d.history.LoadByID(ctx, id)
}

// DeleteSession removes a saved session. Deleting the open session drops
// its pending save so it is not written back.
func (d *Desk) DeleteSession(ctx context.Context, id string) error {
	if id == d.ws.SessionID() {
		d.saver.Discard()
	}
	return d.history.Delete(ctx, id)
}

// EditCell changes one table cell.
func (d *Desk) EditCell(id string, row, col int, text string) error {
	return d.ws.EditCell(id, row, col, text)
}

// EditText replaces the body of a text entry.
func (d *Desk) EditText(id, text string) error {
	return d.ws.EditText(id, text)
}

// Select marks an entry for merging.
func (d *Desk) Select(id string, selected bool) error {
	return d.ws.Select(id, selected)
}

// Remove deletes an entry and saves straight away.
func (d *Desk) Remove(ctx context.Context, id string) error {
	if !d.ws.Remove(id) {
		return fmt.Errorf("%w: %s", workspace.ErrUnknownEntry, id)
	}
	_ = d.saver.Save(ctx)
	return nil
}

// Merge folds the selected tables into the first one and saves.
func (d *Desk) Merge(ctx context.Context) error {
	if err := d.ws.MergeSelected(); err != nil {
		return err
	}
	_ = d.saver.Save(ctx)
	return nil
}

// Export writes every entry in format ("csv" or "txt").
func (d *Desk) Export(w io.Writer, format string) error {
	exp, err := workspace.ExporterFor(format)
	if err != nil {
		return err
	}
	return exp.Export(w, d.ws.Entries())
}

// GPU reports the server's accelerator status.
func (d *Desk) GPU(ctx context.Context) (models.GPUStatus, error) {
	return d.client.GPU(ctx)
}

// Close runs any pending save, disables further ones and waits for server
// cancel requests to finish.
func (d *Desk) Close() {
	d.saver.Flush()
	d.saver.Stop()
	d.coord.Wait()
}

func (d *Desk) refreshHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := d.history.Refresh(ctx); err != nil {
		d.log.Warn().Err(err).Msg("history refresh failed")
	}
}

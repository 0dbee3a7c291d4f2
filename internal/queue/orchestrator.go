// Package queue serializes pending files through the editor and the upload
// pipeline: one file at a time, in arrival order.
package queue

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/pipeline"
	"github.com/ocrdesk/ocrdesk/internal/ui"
)

// Action is how the user closed the editor.
type Action int

const (
	ActionCancel Action = iota
	ActionSkip
	ActionConfirm
)

// Decision is the editor's result. File is what to upload for skip and
// confirm; an empty File means the original.
type Decision struct {
	Action Action
	File   models.PendingFile
}

// PreProcessor shows one file to the user. An error counts as cancel.
type PreProcessor interface {
	PreProcess(ctx context.Context, file models.PendingFile) (Decision, error)
}

// PreProcessorFunc adapts a function to PreProcessor.
type PreProcessorFunc func(ctx context.Context, file models.PendingFile) (Decision, error)

func (f PreProcessorFunc) PreProcess(ctx context.Context, file models.PendingFile) (Decision, error) {
	return f(ctx, file)
}

// SkipEditing uploads every file untouched.
var SkipEditing PreProcessor = PreProcessorFunc(func(_ context.Context, file models.PendingFile) (Decision, error) {
	return Decision{Action: ActionSkip, File: file}, nil
})

// Uploader runs the upload pipeline for one file.
type Uploader interface {
	Upload(ctx context.Context, file models.PendingFile) pipeline.Outcome
}

// Transition is one state change of the active file.
type Transition struct {
	File     string
	From, To State
}

// Status is a point-in-time view of the queue.
type Status struct {
	State   State
	Active  string
	Pending int
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

func WithIndicator(i ui.Indicator) Option {
	return func(o *Orchestrator) { o.indicator = i }
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = logging.Component(l, "queue") }
}

// WithObserver receives every transition. It runs with the queue lock held
// and must not call back into the Orchestrator.
func WithObserver(fn func(Transition)) Option {
	return func(o *Orchestrator) { o.observer = fn }
}

// WithContext sets the parent of every busy period's context.
func WithContext(ctx context.Context) Option {
	return func(o *Orchestrator) { o.base = ctx }
}

// Orchestrator owns the pending list and the single active file. A busy
// period starts when a file arrives at an idle queue and ends when the list
// is empty or CancelAll runs. Each busy period has one goroutine and one
// generation number; work from an older generation changes nothing.
type Orchestrator struct {
	pre       PreProcessor
	up        Uploader
	indicator ui.Indicator
	log       zerolog.Logger
	observer  func(Transition)
	base      context.Context

	mu      sync.Mutex
	pending []models.PendingFile
	active  *models.PendingFile
	state   State
	gen     uint64
	stop    context.CancelFunc
	idle    chan struct{}
}

func New(pre PreProcessor, up Uploader, opts ...Option) *Orchestrator {
	idle := make(chan struct{})
	close(idle)
	o := &Orchestrator{
		pre:       pre,
		up:        up,
		indicator: ui.Nop{},
		log:       zerolog.Nop(),
		base:      context.Background(),
		idle:      idle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue appends files. An idle queue starts on the first of them at once.
func (o *Orchestrator) Enqueue(files ...models.PendingFile) {
	if len(files) == 0 {
		return
	}
	o.mu.Lock()
	o.pending = append(o.pending, files...)
	if o.active != nil {
		o.log.Debug().Int("added", len(files)).Int("pending", len(o.pending)).Msg("queued behind active file")
		o.mu.Unlock()
		return
	}

	ctx, stop := context.WithCancel(o.base)
	o.stop = stop
	o.idle = make(chan struct{})
	gen := o.gen
	file := o.popLocked()
	o.mu.Unlock()

	go o.drain(ctx, gen, file)
}

// CancelAll empties the queue and forces it idle. Work still running for
// the dropped file sees its context cancelled and will not advance.
func (o *Orchestrator) CancelAll() {
	o.mu.Lock()
	defer o.mu.Unlock()

	dropped := len(o.pending)
	o.pending = nil
	o.gen++
	if o.active != nil {
		o.log.Info().Str("active", o.active.Name).Int("dropped", dropped).Msg("queue cancelled")
		o.goIdleLocked()
	}
	o.indicator.Hide()
}

// Status returns the current state.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	s := Status{State: o.state, Pending: len(o.pending)}
	if o.active != nil {
		s.Active = o.active.Name
	}
	return s
}

// Busy reports whether a file is being edited or uploaded.
func (o *Orchestrator) Busy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.active != nil
}

// WaitIdle blocks until the current busy period ends.
func (o *Orchestrator) WaitIdle(ctx context.Context) error {
	o.mu.Lock()
	idle := o.idle
	o.mu.Unlock()
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) drain(ctx context.Context, gen uint64, file models.PendingFile) {
	for {
		o.process(ctx, gen, file)
		next, ok := o.advance(ctx, gen)
		if !ok {
			return
		}
		file = next
	}
}

func (o *Orchestrator) process(ctx context.Context, gen uint64, file models.PendingFile) {
	dec, err := o.pre.PreProcess(ctx, file)
	if err != nil {
		if ctx.Err() == nil {
			o.log.Warn().Err(err).Str("file", file.Name).Msg("editor failed, dropping file")
		}
		dec = Decision{Action: ActionCancel}
	}

	closed := EditCancelled
	switch dec.Action {
	case ActionSkip:
		closed = Skipped
	case ActionConfirm:
		closed = Confirmed
	}
	if !o.transition(gen, closed) || advancesOnClose(closed) {
		return
	}

	upload := dec.File
	if upload.Data == nil {
		upload = file
	}
	if !o.transition(gen, Uploading) {
		return
	}
	outcome := o.up.Upload(ctx, upload)
	o.transition(gen, outcomeState(outcome))
}

func outcomeState(o pipeline.Outcome) State {
	switch o {
	case pipeline.Succeeded:
		return Succeeded
	case pipeline.Aborted:
		return Aborted
	case pipeline.Cancelled:
		return UploadCancelled
	default:
		return Failed
	}
}

// advance moves to the next file or ends the busy period. It reports false
// when the drain goroutine should exit.
func (o *Orchestrator) advance(ctx context.Context, gen uint64) (models.PendingFile, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return models.PendingFile{}, false
	}
	if len(o.pending) == 0 || ctx.Err() != nil {
		o.pending = nil
		o.goIdleLocked()
		return models.PendingFile{}, false
	}
	return o.popLocked(), true
}

func (o *Orchestrator) transition(gen uint64, to State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if gen != o.gen {
		return false
	}
	o.setStateLocked(to, false)
	return true
}

func (o *Orchestrator) popLocked() models.PendingFile {
	f := o.pending[0]
	o.pending[0] = models.PendingFile{}
	o.pending = o.pending[1:]
	o.active = &f
	o.setStateLocked(Editing, false)
	return f
}

func (o *Orchestrator) goIdleLocked() {
	o.setStateLocked(Idle, true)
	o.active = nil
	if o.stop != nil {
		o.stop()
		o.stop = nil
	}
	close(o.idle)
	o.indicator.Hide()
}

func (o *Orchestrator) setStateLocked(to State, force bool) {
	from := o.state
	if !force && !CanTransition(from, to) {
		o.log.Error().Stringer("from", from).Stringer("to", to).Msg("illegal queue transition")
	}
	o.state = to
	name := ""
	if o.active != nil {
		name = o.active.Name
	}
	o.log.Debug().Str("file", name).Stringer("from", from).Stringer("to", to).Msg("transition")
	if o.observer != nil {
		o.observer(Transition{File: name, From: from, To: to})
	}
}

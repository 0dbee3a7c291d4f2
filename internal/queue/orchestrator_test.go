package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/pipeline"
)

func file(name string) models.PendingFile {
	return models.PendingFile{Name: name, Data: []byte(name)}
}

// scriptedEditor answers per file name; unknown names confirm unchanged.
type scriptedEditor struct {
	mu        sync.Mutex
	decisions map[string]Decision
	errs      map[string]error
	gate      map[string]chan struct{}
	seen      []string
	active    atomic.Int32
	maxActive atomic.Int32
	entered   chan string
}

func newEditor() *scriptedEditor {
	return &scriptedEditor{
		decisions: map[string]Decision{},
		errs:      map[string]error{},
		gate:      map[string]chan struct{}{},
		entered:   make(chan string, 32),
	}
}

func (e *scriptedEditor) PreProcess(ctx context.Context, f models.PendingFile) (Decision, error) {
	n := e.active.Add(1)
	defer e.active.Add(-1)
	for {
		m := e.maxActive.Load()
		if n <= m || e.maxActive.CompareAndSwap(m, n) {
			break
		}
	}

	e.mu.Lock()
	e.seen = append(e.seen, f.Name)
	gate := e.gate[f.Name]
	dec, ok := e.decisions[f.Name]
	err := e.errs[f.Name]
	e.mu.Unlock()
	e.entered <- f.Name

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return Decision{}, ctx.Err()
		}
	}
	if err != nil {
		return Decision{}, err
	}
	if !ok {
		dec = Decision{Action: ActionConfirm}
	}
	return dec, nil
}

type scriptedUploader struct {
	mu        sync.Mutex
	uploads   []models.PendingFile
	outcomes  map[string]pipeline.Outcome
	block     map[string]bool
	active    atomic.Int32
	maxActive atomic.Int32
	started   chan string
}

func newUploader() *scriptedUploader {
	return &scriptedUploader{
		outcomes: map[string]pipeline.Outcome{},
		block:    map[string]bool{},
		started:  make(chan string, 32),
	}
}

func (u *scriptedUploader) Upload(ctx context.Context, f models.PendingFile) pipeline.Outcome {
	n := u.active.Add(1)
	defer u.active.Add(-1)
	if n > u.maxActive.Load() {
		u.maxActive.Store(n)
	}

	u.mu.Lock()
	u.uploads = append(u.uploads, f)
	block := u.block[f.Name]
	outcome, ok := u.outcomes[f.Name]
	u.mu.Unlock()
	u.started <- f.Name

	if block {
		<-ctx.Done()
		return pipeline.Cancelled
	}
	if !ok {
		outcome = pipeline.Succeeded
	}
	return outcome
}

func (u *scriptedUploader) names() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	var out []string
	for _, f := range u.uploads {
		out = append(out, f.Name)
	}
	return out
}

func waitIdle(t *testing.T, o *Orchestrator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, o.WaitIdle(ctx))
}

func waitFor(t *testing.T, ch <-chan string, want string) {
	t.Helper()
	select {
	case got := <-ch:
		require.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for %s", want)
	}
}

type countingIndicator struct{ hides atomic.Int32 }

func (c *countingIndicator) Show() {}
func (c *countingIndicator) Hide() { c.hides.Add(1) }

func TestOrchestrator_ProcessesInOrderOneAtATime(t *testing.T) {
	ed, up := newEditor(), newUploader()
	ind := &countingIndicator{}
	o := New(ed, up, WithIndicator(ind))

	o.Enqueue(file("a"), file("b"), file("c"))
	waitIdle(t, o)

	assert.Equal(t, []string{"a", "b", "c"}, up.names())
	assert.Equal(t, int32(1), up.maxActive.Load())
	assert.Equal(t, int32(1), ed.maxActive.Load())
	assert.Equal(t, Status{State: Idle}, o.Status())
	assert.False(t, o.Busy())
	assert.GreaterOrEqual(t, ind.hides.Load(), int32(1))
}

func TestOrchestrator_EnqueueWhileBusyAppends(t *testing.T) {
	ed, up := newEditor(), newUploader()
	ed.gate["a"] = make(chan struct{})
	o := New(ed, up)

	o.Enqueue(file("a"))
	waitFor(t, ed.entered, "a")
	o.Enqueue(file("b"))
	o.Enqueue(file("c"))

	st := o.Status()
	assert.Equal(t, Editing, st.State)
	assert.Equal(t, "a", st.Active)
	assert.Equal(t, 2, st.Pending)

	close(ed.gate["a"])
	waitIdle(t, o)

	assert.Equal(t, []string{"a", "b", "c"}, up.names())
	assert.Equal(t, int32(1), ed.maxActive.Load())
}

func TestOrchestrator_EditorOutcomes(t *testing.T) {
	edited := models.PendingFile{Name: "b", Data: []byte("cropped"), ContentType: "image/jpeg"}
	ed, up := newEditor(), newUploader()
	ed.decisions["a"] = Decision{Action: ActionCancel}
	ed.decisions["b"] = Decision{Action: ActionConfirm, File: edited}
	ed.decisions["c"] = Decision{Action: ActionSkip}
	ed.errs["d"] = errors.New("cannot decode image")
	o := New(ed, up)

	o.Enqueue(file("a"), file("b"), file("c"), file("d"), file("e"))
	waitIdle(t, o)

	require.Equal(t, []string{"b", "c", "e"}, up.names())
	assert.Equal(t, []byte("cropped"), up.uploads[0].Data)
	assert.Equal(t, []byte("c"), up.uploads[1].Data, "skip uploads the original")
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, ed.seen)
}

func TestOrchestrator_FailuresStillAdvance(t *testing.T) {
	ed, up := newEditor(), newUploader()
	up.outcomes["a"] = pipeline.Failed
	up.outcomes["b"] = pipeline.Aborted
	o := New(ed, up)

	o.Enqueue(file("a"), file("b"), file("c"))
	waitIdle(t, o)

	assert.Equal(t, []string{"a", "b", "c"}, up.names())
}

func TestOrchestrator_CancelAllDuringUpload(t *testing.T) {
	ed, up := newEditor(), newUploader()
	up.block["a"] = true
	ind := &countingIndicator{}
	o := New(ed, up, WithIndicator(ind))

	o.Enqueue(file("a"), file("b"), file("c"))
	waitFor(t, up.started, "a")

	o.CancelAll()

	assert.Equal(t, Status{State: Idle}, o.Status())
	assert.GreaterOrEqual(t, ind.hides.Load(), int32(1))
	waitIdle(t, o)

	// the blocked upload returns once its context is cancelled; nothing follows it
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, []string{"a"}, up.names())

	o.Enqueue(file("d"))
	waitIdle(t, o)
	assert.Equal(t, []string{"a", "d"}, up.names())
}

func TestOrchestrator_CancelAllDuringEditing(t *testing.T) {
	ed, up := newEditor(), newUploader()
	ed.gate["a"] = make(chan struct{})
	o := New(ed, up)

	o.Enqueue(file("a"), file("b"))
	waitFor(t, ed.entered, "a")
	o.CancelAll()
	waitIdle(t, o)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, up.names())
	assert.Equal(t, []string{"a"}, ed.seen)
}

func TestOrchestrator_CancelAllWhenIdle(t *testing.T) {
	o := New(newEditor(), newUploader())
	o.CancelAll()
	assert.Equal(t, Status{State: Idle}, o.Status())
	waitIdle(t, o)
}

func TestOrchestrator_ObserverSeesFileLifeCycle(t *testing.T) {
	var mu sync.Mutex
	var got []State
	o := New(newEditor(), newUploader(), WithObserver(func(tr Transition) {
		mu.Lock()
		got = append(got, tr.To)
		mu.Unlock()
	}))

	o.Enqueue(file("a"))
	waitIdle(t, o)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []State{Editing, Confirmed, Uploading, Succeeded, Idle}, got)
}

func TestTransitionTable(t *testing.T) {
	assert.True(t, CanTransition(Idle, Editing))
	assert.True(t, CanTransition(Skipped, Uploading))
	assert.False(t, CanTransition(EditCancelled, Uploading))
	assert.False(t, CanTransition(Idle, Uploading))

	assert.True(t, advancesOnClose(EditCancelled))
	assert.False(t, advancesOnClose(Skipped))
	assert.False(t, advancesOnClose(Confirmed))

	assert.Equal(t, "upload-cancelled", UploadCancelled.String())
}

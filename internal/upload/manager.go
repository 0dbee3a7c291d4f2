// Package upload runs OCR jobs for uploaded images: it bounds concurrency,
// tracks each job's status and lets the cancel endpoint abort everything in
// flight.
package upload

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ocrdesk/ocrdesk/internal/engine"
	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// ErrAborted is returned by Run when AbortAll stopped the job.
var ErrAborted = errors.New("ocr job aborted")

// Status represents the job processing status.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusAborted    Status = "aborted"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

// Finished reports whether s is terminal.
func (s Status) Finished() bool {
	switch s {
	case StatusComplete, StatusAborted, StatusCancelled, StatusError:
		return true
	}
	return false
}

// Job is one OCR request.
type Job struct {
	ID          string             `json:"id"`
	FileName    string             `json:"fileName"`
	Mode        models.SessionType `json:"mode"`
	Status      Status             `json:"status"`
	Fragments   int                `json:"fragments"`
	Bytes       int64              `json:"bytes"`
	Error       string             `json:"error,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	CompletedAt *time.Time         `json:"completedAt,omitempty"`
}

// Event is published on every job status change.
type Event struct {
	Type string `json:"type"`
	Job  Job    `json:"job"`
}

const subscriberBuffer = 32

type running struct {
	cancel  context.CancelFunc
	aborted bool
}

// Manager handles OCR jobs.
type Manager struct {
	mu      sync.RWMutex
	jobs    map[string]*Job
	running map[string]*running
	subs    map[int]chan Event
	nextSub int

	engine engine.Engine
	sem    *semaphore.Weighted
	log    zerolog.Logger
}

// NewManager creates a manager around eng. eng may be nil when the engine
// failed to load; Run then fails with engine.ErrUnavailable.
func NewManager(eng engine.Engine, maxJobs int, log zerolog.Logger) *Manager {
	if maxJobs <= 0 {
		maxJobs = 1
	}
	return &Manager{
		jobs:    make(map[string]*Job),
		running: make(map[string]*running),
		subs:    make(map[int]chan Event),
		engine:  eng,
		sem:     semaphore.NewWeighted(int64(maxJobs)),
		log:     logging.Component(log, "jobs"),
	}
}

// HasEngine reports whether an engine is loaded.
func (m *Manager) HasEngine() bool { return m.engine != nil }

// EngineName returns the loaded engine's name, or "".
func (m *Manager) EngineName() string {
	if m.engine == nil {
		return ""
	}
	return m.engine.Name()
}

// Run recognizes req, passing each fragment to emit. It blocks until the
// engine finishes, ctx ends or AbortAll is called; the latter returns
// ErrAborted.
func (m *Manager) Run(ctx context.Context, req engine.Request, emit engine.Emit) (Job, error) {
	if m.engine == nil {
		return Job{}, engine.ErrUnavailable
	}

	job := &Job{
		ID:        uuid.New().String(),
		FileName:  req.Filename,
		Mode:      req.Mode,
		Status:    StatusQueued,
		CreatedAt: time.Now(),
	}
	jctx, cancel := context.WithCancel(ctx)
	defer cancel()
	run := &running{cancel: cancel}

	m.mu.Lock()
	m.jobs[job.ID] = job
	m.running[job.ID] = run
	m.mu.Unlock()
	m.publish(job)

	defer func() {
		m.mu.Lock()
		delete(m.running, job.ID)
		m.mu.Unlock()
	}()

	if err := m.sem.Acquire(jctx, 1); err != nil {
		return m.finish(job, run, err), m.outcome(run, err)
	}
	defer m.sem.Release(1)

	m.updateJobStatus(job, StatusProcessing)
	m.log.Info().Str("job", logging.ShortID(job.ID)).Str("file", job.FileName).Str("mode", string(job.Mode)).Msg("ocr started")

	err := m.engine.Recognize(jctx, req, func(frag string) error {
		m.mu.Lock()
		job.Fragments++
		job.Bytes += int64(len(frag))
		m.mu.Unlock()
		return emit(frag)
	})
	return m.finish(job, run, err), m.outcome(run, err)
}

func (m *Manager) outcome(run *running, err error) error {
	m.mu.RLock()
	aborted := run.aborted
	m.mu.RUnlock()
	if aborted {
		return ErrAborted
	}
	return err
}

func (m *Manager) finish(job *Job, run *running, err error) Job {
	m.mu.Lock()
	now := time.Now()
	job.CompletedAt = &now
	switch {
	case run.aborted:
		job.Status = StatusAborted
	case err == nil:
		job.Status = StatusComplete
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		job.Status = StatusCancelled
	default:
		job.Status = StatusError
		job.Error = err.Error()
	}
	snapshot := *job
	m.mu.Unlock()

	ev := m.log.Info()
	if snapshot.Status == StatusError {
		ev = m.log.Error().Str("error", snapshot.Error)
	}
	ev.Str("job", logging.ShortID(snapshot.ID)).
		Str("status", string(snapshot.Status)).
		Int("fragments", snapshot.Fragments).
		Dur("elapsed", now.Sub(snapshot.CreatedAt)).
		Msg("ocr finished")

	m.publishSnapshot(snapshot)
	return snapshot
}

// AbortAll stops every queued or running job and returns how many it hit.
func (m *Manager) AbortAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.running {
		r.aborted = true
		r.cancel()
	}
	n := len(m.running)
	if n > 0 {
		m.log.Info().Int("jobs", n).Msg("aborting jobs")
	}
	return n
}

// GetJob retrieves a job by ID.
func (m *Manager) GetJob(id string) (Job, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, false
	}
	return *job, true
}

// ActiveJobs counts jobs that have not finished.
func (m *Manager) ActiveJobs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.running)
}

// Subscribe returns a channel of job events and a function to stop
// receiving them. Slow subscribers miss events rather than block jobs.
func (m *Manager) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.subs, id)
			m.mu.Unlock()
			close(ch)
		})
	}
}

func (m *Manager) updateJobStatus(job *Job, status Status) {
	m.mu.Lock()
	job.Status = status
	snapshot := *job
	m.mu.Unlock()
	m.publishSnapshot(snapshot)
}

func (m *Manager) publish(job *Job) {
	m.mu.RLock()
	snapshot := *job
	m.mu.RUnlock()
	m.publishSnapshot(snapshot)
}

func (m *Manager) publishSnapshot(job Job) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, ch := range m.subs {
		select {
		case ch <- Event{Type: "job", Job: job}:
		default:
		}
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (m *Manager) CleanupOldJobs(maxAge time.Duration) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range m.jobs {
		if job.Status.Finished() && job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(m.jobs, id)
			removed++
		}
	}
	return removed
}

package upload

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocrdesk/ocrdesk/internal/engine"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/testutil"
)

func collect() (*[]string, engine.Emit) {
	var out []string
	return &out, func(s string) error {
		out = append(out, s)
		return nil
	}
}

func tableReq() engine.Request {
	return engine.Request{Image: []byte("img"), Filename: "a.png", Mode: models.SessionTypeTable}
}

func TestRun_Complete(t *testing.T) {
	eng := testutil.NewScriptedEngine([]string{"<table>", "<tr><td>1</td></tr>", "</table>"}, nil)
	m := NewManager(eng, 1, zerolog.Nop())

	out, emit := collect()
	job, err := m.Run(context.Background(), tableReq(), emit)

	require.NoError(t, err)
	assert.Equal(t, StatusComplete, job.Status)
	assert.Equal(t, 3, job.Fragments)
	assert.Equal(t, "a.png", job.FileName)
	assert.NotNil(t, job.CompletedAt)
	assert.Len(t, *out, 3)

	stored, ok := m.GetJob(job.ID)
	require.True(t, ok)
	assert.Equal(t, StatusComplete, stored.Status)
	assert.Equal(t, 0, m.ActiveJobs())
}

func TestRun_NoEngine(t *testing.T) {
	m := NewManager(nil, 1, zerolog.Nop())
	assert.False(t, m.HasEngine())
	_, err := m.Run(context.Background(), tableReq(), func(string) error { return nil })
	assert.ErrorIs(t, err, engine.ErrUnavailable)
}

func TestRun_AbortAll(t *testing.T) {
	eng := testutil.NewScriptedEngine([]string{"<table>", "<tr>"}, nil)
	eng.Hold = make(chan struct{})
	eng.HoldAfter = 1
	m := NewManager(eng, 1, zerolog.Nop())

	type result struct {
		job Job
		err error
	}
	done := make(chan result, 1)
	out, emit := collect()
	go func() {
		job, err := m.Run(context.Background(), tableReq(), emit)
		done <- result{job, err}
	}()

	<-eng.Reached
	assert.Equal(t, 1, m.AbortAll())

	r := <-done
	assert.ErrorIs(t, r.err, ErrAborted)
	assert.Equal(t, StatusAborted, r.job.Status)
	assert.Equal(t, []string{"<table>"}, *out)
	assert.Equal(t, 0, m.AbortAll(), "nothing left to abort")
}

func TestRun_ClientGone(t *testing.T) {
	eng := testutil.NewScriptedEngine([]string{"a", "b"}, nil)
	eng.Hold = make(chan struct{})
	eng.HoldAfter = 1
	m := NewManager(eng, 1, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-eng.Reached
		cancel()
	}()

	job, err := m.Run(ctx, tableReq(), func(string) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusCancelled, job.Status)
}

func TestRun_EngineError(t *testing.T) {
	eng := testutil.NewScriptedEngine(nil, []string{"partial"})
	eng.Err = errors.New("model crashed")
	m := NewManager(eng, 1, zerolog.Nop())

	req := tableReq()
	req.Mode = models.SessionTypeText
	job, err := m.Run(context.Background(), req, func(string) error { return nil })

	assert.EqualError(t, err, "model crashed")
	assert.Equal(t, StatusError, job.Status)
	assert.Equal(t, "model crashed", job.Error)
	assert.Equal(t, 1, job.Fragments)
}

func TestRun_BoundsConcurrency(t *testing.T) {
	var running, peak int32
	release := make(chan struct{})
	eng := engine.Func(func(ctx context.Context, req engine.Request, emit engine.Emit) error {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		<-release
		atomic.AddInt32(&running, -1)
		return nil
	})
	m := NewManager(eng, 2, zerolog.Nop())

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Run(context.Background(), tableReq(), func(string) error { return nil })
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return m.ActiveJobs() == 5 }, time.Second, 5*time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSubscribe(t *testing.T) {
	eng := testutil.NewScriptedEngine([]string{"x"}, nil)
	m := NewManager(eng, 1, zerolog.Nop())

	events, unsubscribe := m.Subscribe()
	_, err := m.Run(context.Background(), tableReq(), func(string) error { return nil })
	require.NoError(t, err)
	unsubscribe()
	unsubscribe()

	var statuses []Status
	for ev := range events {
		assert.Equal(t, "job", ev.Type)
		statuses = append(statuses, ev.Job.Status)
	}
	assert.Equal(t, []Status{StatusQueued, StatusProcessing, StatusComplete}, statuses)
}

func TestCleanupOldJobs(t *testing.T) {
	eng := testutil.NewScriptedEngine([]string{"x"}, nil)
	m := NewManager(eng, 1, zerolog.Nop())

	job, err := m.Run(context.Background(), tableReq(), func(string) error { return nil })
	require.NoError(t, err)

	assert.Equal(t, 0, m.CleanupOldJobs(time.Hour))
	assert.Equal(t, 1, m.CleanupOldJobs(-time.Second))
	_, ok := m.GetJob(job.ID)
	assert.False(t, ok)
}

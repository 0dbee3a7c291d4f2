// Package cancel coordinates the one live upload token with the server-side
// abort and the queue.
package cancel

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/logging"
)

// Token is the handle of one in-flight upload. Revoked tokens belong to a
// cancelled upload; nothing they produce may reach the workspace.
type Token struct {
	id      uint64
	ctx     context.Context
	cancel  context.CancelFunc
	revoked atomic.Bool
}

// Context is cancelled when the upload is cancelled or released.
func (t *Token) Context() context.Context {
	return t.ctx
}

// Revoked reports whether the user cancelled this upload.
func (t *Token) Revoked() bool {
	return t.revoked.Load()
}

// Valid is the inverse of Revoked.
func (t *Token) Valid() bool {
	return !t.revoked.Load()
}

func (t *Token) ID() uint64 {
	return t.id
}

// Notifier tells the server to abort whatever it is doing.
type Notifier interface {
	Cancel(ctx context.Context) error
}

// Queue is the part of the orchestrator a cancel needs.
type Queue interface {
	CancelAll()
}

// Coordinator owns the single live token.
type Coordinator struct {
	remote  Notifier
	timeout time.Duration
	log     zerolog.Logger

	mu    sync.Mutex
	live  *Token
	seq   uint64
	queue Queue

	inflight sync.WaitGroup
}

func NewCoordinator(remote Notifier, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		remote:  remote,
		timeout: 10 * time.Second,
		log:     logging.Component(log, "cancel"),
	}
}

// Bind attaches the queue cleared by CancelCurrent. The queue and the
// coordinator reference each other, so this happens after construction.
func (c *Coordinator) Bind(q Queue) {
	c.mu.Lock()
	c.queue = q
	c.mu.Unlock()
}

// Issue creates the token for a new upload, replacing any previous one.
func (c *Coordinator) Issue(parent context.Context) *Token {
	ctx, cancel := context.WithCancel(parent)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.live != nil {
		c.live.cancel()
	}
	c.seq++
	c.live = &Token{id: c.seq, ctx: ctx, cancel: cancel}
	return c.live
}

// Release ends tok's lifetime once its upload has finished.
func (c *Coordinator) Release(tok *Token) {
	tok.cancel()
	c.mu.Lock()
	if c.live == tok {
		c.live = nil
	}
	c.mu.Unlock()
}

// Live returns the current token, or nil.
func (c *Coordinator) Live() *Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.live
}

// CancelCurrent is the user's cancel. It fires the server abort without
// waiting, revokes the live token and clears the queue.
func (c *Coordinator) CancelCurrent() {
	c.inflight.Add(1)
	go c.notifyServer()

	c.mu.Lock()
	tok := c.live
	c.live = nil
	q := c.queue
	c.mu.Unlock()

	if tok != nil {
		tok.revoked.Store(true)
		tok.cancel()
		c.log.Info().Uint64("token", tok.id).Msg("upload cancelled")
	}
	if q != nil {
		q.CancelAll()
	}
}

func (c *Coordinator) notifyServer() {
	defer c.inflight.Done()
	if c.remote == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	if err := c.remote.Cancel(ctx); err != nil {
		c.log.Warn().Err(err).Msg("server cancel request failed")
	}
}

// Wait blocks until every server abort request has finished.
func (c *Coordinator) Wait() {
	c.inflight.Wait()
}

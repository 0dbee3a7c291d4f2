package testutil

import (
	"context"
	"sync"

	"github.com/ocrdesk/ocrdesk/internal/engine"
	"github.com/ocrdesk/ocrdesk/internal/models"
)

// ScriptedEngine implements engine.Engine by replaying fixed fragments.
//
// When Hold is non-nil the engine stops after HoldAfter fragments, signals
// Reached, and waits for Hold to close or ctx to end. Err is returned after
// the fragments are emitted.
type ScriptedEngine struct {
	Table []string
	Text  []string
	Err   error

	Hold      chan struct{}
	HoldAfter int
	Reached   chan struct{}

	mu       sync.Mutex
	requests []engine.Request
}

// NewScriptedEngine returns an engine emitting table for table requests and
// text for text requests.
func NewScriptedEngine(table, text []string) *ScriptedEngine {
	return &ScriptedEngine{Table: table, Text: text, Reached: make(chan struct{}, 16)}
}

func (e *ScriptedEngine) Name() string { return "scripted" }

func (e *ScriptedEngine) Recognize(ctx context.Context, req engine.Request, emit engine.Emit) error {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()

	frags := e.Table
	if req.Mode == models.SessionTypeText {
		frags = e.Text
	}
	for i, f := range frags {
		if e.Hold != nil && i == e.HoldAfter {
			if err := e.wait(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := emit(f); err != nil {
			return err
		}
	}
	if e.Hold != nil && e.HoldAfter >= len(frags) {
		if err := e.wait(ctx); err != nil {
			return err
		}
	}
	return e.Err
}

func (e *ScriptedEngine) wait(ctx context.Context) error {
	select {
	case e.Reached <- struct{}{}:
	default:
	}
	select {
	case <-e.Hold:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Requests returns the requests seen so far.
func (e *ScriptedEngine) Requests() []engine.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]engine.Request(nil), e.requests...)
}

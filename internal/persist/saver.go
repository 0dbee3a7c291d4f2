package persist

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/ocrdesk/ocrdesk/internal/logging"
	"github.com/ocrdesk/ocrdesk/internal/models"
	"github.com/ocrdesk/ocrdesk/internal/ui"
	"github.com/ocrdesk/ocrdesk/internal/workspace"
)

// ErrRejected is returned when the server answers a save without success.
var ErrRejected = errors.New("save rejected by server")

// SaveClient posts a snapshot to the server.
type SaveClient interface {
	Save(ctx context.Context, req models.SaveRequest) (models.SaveResponse, error)
}

// Source is the workspace as seen by the saver.
type Source interface {
	Snapshot() workspace.Snapshot
	AdoptID(epoch uint64, id string) bool
}

// Options tune a Saver. Zero values pick defaults.
type Options struct {
	QuietPeriod time.Duration
	Timeout     time.Duration
	Clock       Clock
	Logger      zerolog.Logger
	Notifier    ui.Notifier
	// OnSaved runs after every successful save, e.g. to refresh history.
	OnSaved func()
}

// Saver snapshots the workspace and posts it. Saves are not serialized;
// concurrent saves may land in either order.
type Saver struct {
	client   SaveClient
	src      Source
	timeout  time.Duration
	log      zerolog.Logger
	notifier ui.Notifier
	debounce *Debouncer
	seq      atomic.Uint64

	mu      sync.Mutex
	onSaved func()
}

func NewSaver(client SaveClient, src Source, opts Options) *Saver {
	s := &Saver{
		client:   client,
		src:      src,
		timeout:  opts.Timeout,
		log:      logging.Component(opts.Logger, "saver"),
		notifier: opts.Notifier,
		onSaved:  opts.OnSaved,
	}
	if s.timeout <= 0 {
		s.timeout = 30 * time.Second
	}
	if s.notifier == nil {
		s.notifier = ui.Nop{}
	}
	s.debounce = NewDebouncer(opts.QuietPeriod, opts.Clock, s.background)
	return s
}

// SetOnSaved replaces the post-save hook.
func (s *Saver) SetOnSaved(fn func()) {
	s.mu.Lock()
	s.onSaved = fn
	s.mu.Unlock()
}

// ScheduleSave asks for a save once edits go quiet. It is the edit listener
// attached to workspace entries.
func (s *Saver) ScheduleSave() {
	s.debounce.Trigger()
}

// Pending reports whether a debounced save is scheduled.
func (s *Saver) Pending() bool {
	return s.debounce.Pending()
}

// Flush runs a scheduled save immediately.
func (s *Saver) Flush() bool {
	return s.debounce.Flush()
}

// Discard drops a scheduled save without running it.
func (s *Saver) Discard() {
	s.debounce.Cancel()
}

// Stop drops any scheduled save and disables scheduling.
func (s *Saver) Stop() {
	s.debounce.Stop()
}

func (s *Saver) background() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	// failures are logged inside Save
	_ = s.Save(ctx)
}

// Save posts the current snapshot. A never-saved empty workspace is not
// saved. On success the returned id becomes the session id.
func (s *Saver) Save(ctx context.Context) error {
	snap := s.src.Snapshot()
	if snap.Empty && snap.ID == "" {
		s.log.Debug().Msg("nothing to save")
		return nil
	}

	seq := s.seq.Add(1)
	req := models.SaveRequest{Name: snap.Name, Content: snap.Content}
	if snap.ID != "" {
		id := snap.ID
		req.ID = &id
	}

	resp, err := s.client.Save(ctx, req)
	if err != nil {
		s.log.Warn().Err(err).Uint64("seq", seq).Str("session", logging.ShortID(snap.ID)).Msg("auto-save failed")
		return fmt.Errorf("save session: %w", err)
	}
	if resp.Status != "success" {
		s.log.Warn().Str("status", resp.Status).Uint64("seq", seq).Msg("auto-save failed")
		return ErrRejected
	}

	if !s.src.AdoptID(snap.Epoch, resp.ID) {
		s.log.Debug().Str("session", logging.ShortID(resp.ID)).Msg("session switched during save; id not adopted")
	}
	s.log.Debug().Uint64("seq", seq).Str("session", logging.ShortID(resp.ID)).Msg("saved")
	s.notifier.Saved(snap.Name)

	s.mu.Lock()
	hook := s.onSaved
	s.mu.Unlock()
	if hook != nil {
		hook()
	}
	return nil
}

package notes

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"coldcall-platform/internal/apperr"

	"github.com/jonboulle/clockwork"
)

type State string

const (
	StateClean  State = "clean"
	StateDirty  State = "dirty"
	StateSaving State = "saving"
)

const (
	DefaultDebounce = 2 * time.Second
	DefaultAckFor   = 2 * time.Second

	saveFailedMessage = "Failed to save notes. Please try again."
)

// Saver persists the full draft of one call-history record.
type Saver func(ctx context.Context, content string) error

type Options struct {
	Clock    clockwork.Clock
	Debounce time.Duration
	AckFor   time.Duration

	// ReadOnly rejects edits and never shows the saved indicator.
	ReadOnly bool

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	out := o
	if out.Clock == nil {
		out.Clock = clockwork.NewRealClock()
	}
	if out.Debounce <= 0 {
		out.Debounce = DefaultDebounce
	}
	if out.AckFor <= 0 {
		out.AckFor = DefaultAckFor
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

type Snapshot struct {
	Content  string `json:"content"`
	State    State  `json:"state"`
	SavedAck bool   `json:"saved_ack"`
	ReadOnly bool   `json:"read_only"`
}

// Controller debounces edits of a note draft: a save runs once the draft has
// been quiet for Debounce. Last edit wins.
type Controller struct {
	mu sync.Mutex

	content  string
	state    State
	savedAck bool

	save Saver
	opts Options

	debounce clockwork.Timer
	ack      clockwork.Timer

	// edits increments on every accepted edit; a save that finishes under an
	// older value leaves the draft dirty.
	edits    uint64
	disposed bool
}

func New(initial string, save Saver, opts Options) *Controller {
	return &Controller{
		content: initial,
		state:   StateClean,
		save:    save,
		opts:    opts.withDefaults(),
	}
}

func (c *Controller) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.content
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Content: c.content, State: c.state, SavedAck: c.savedAck, ReadOnly: c.opts.ReadOnly}
}

func (c *Controller) Dirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == StateDirty
}

// SetReadOnly toggles display mode. A pending autosave still runs; its saved
// indicator is suppressed.
func (c *Controller) SetReadOnly(readOnly bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.opts.ReadOnly = readOnly
	if readOnly {
		stopTimer(c.ack)
		c.savedAck = false
	}
}

// Edit replaces the draft and restarts the debounce window.
func (c *Controller) Edit(content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.opts.ReadOnly {
		return apperr.ErrReadOnly
	}
	if c.disposed {
		return nil
	}

	c.content = content
	c.state = StateDirty
	c.savedAck = false
	stopTimer(c.ack)
	stopTimer(c.debounce)

	c.edits++
	edits := c.edits
	c.debounce = c.opts.Clock.AfterFunc(c.opts.Debounce, func() {
		c.flush(context.Background(), edits)
	})
	return nil
}

// SaveNow cancels the pending debounce and saves at once. A clean draft is a
// no-op.
func (c *Controller) SaveNow(ctx context.Context) error {
	c.mu.Lock()
	if c.opts.ReadOnly {
		c.mu.Unlock()
		return apperr.ErrReadOnly
	}
	switch c.state {
	case StateClean:
		c.mu.Unlock()
		return nil
	case StateSaving:
		c.mu.Unlock()
		return apperr.ErrBusy
	}
	stopTimer(c.debounce)
	edits := c.edits
	c.mu.Unlock()

	if err := c.flush(ctx, edits); err != nil {
		return apperr.Persistence("save_notes", saveFailedMessage, err)
	}
	return nil
}

func (c *Controller) flush(ctx context.Context, edits uint64) error {
	c.mu.Lock()
	if c.disposed || edits != c.edits || c.state != StateDirty {
		c.mu.Unlock()
		return nil
	}
	c.state = StateSaving
	content := c.content
	c.mu.Unlock()

	err := c.save(ctx, content)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.disposed {
		return err
	}
	if edits != c.edits {
		// edited while saving; the newer draft has its own timer
		return err
	}
	if err != nil {
		c.state = StateDirty
		c.opts.Logger.Warn("notes autosave failed", "err", err)
		return err
	}

	c.state = StateClean
	if c.opts.ReadOnly {
		return nil
	}
	c.savedAck = true
	c.ack = c.opts.Clock.AfterFunc(c.opts.AckFor, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if edits == c.edits {
			c.savedAck = false
		}
	})
	return nil
}

// Reset loads a new draft for the next record, dropping pending work.
func (c *Controller) Reset(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	stopTimer(c.debounce)
	stopTimer(c.ack)
	c.debounce, c.ack = nil, nil
	c.content = content
	c.state = StateClean
	c.savedAck = false
	c.edits++
}

// Dispose cancels both timers. Later callbacks and edits are no-ops.
func (c *Controller) Dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()
	stopTimer(c.debounce)
	stopTimer(c.ack)
	c.debounce, c.ack = nil, nil
	c.disposed = true
}

func stopTimer(t clockwork.Timer) {
	if t != nil {
		t.Stop()
	}
}

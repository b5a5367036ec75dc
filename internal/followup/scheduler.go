package followup

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"coldcall-platform/internal/apperr"
	"coldcall-platform/internal/calls"

	"github.com/jonboulle/clockwork"
)

// State is the save lifecycle of one follow-up.
type State string

const (
	StateIdle       State = "idle"
	StateEditing    State = "editing"
	StateValidating State = "validating"
	StateSaving     State = "saving"
	StateSaved      State = "saved"
)

// CalendarState is the independent "add to external calendar" lifecycle.
type CalendarState string

const (
	CalendarIdle   CalendarState = "idle"
	CalendarAdding CalendarState = "adding"
	CalendarAdded  CalendarState = "added"
)

const (
	DefaultResetAfter    = 3 * time.Second
	DefaultCalendarDelay = 2 * time.Second

	saveFailedMessage     = "Failed to schedule. Please try again."
	calendarFailedMessage = "Failed to add to calendar. Please try again."
)

// Saver persists a validated follow-up.
type Saver func(ctx context.Context, kind calls.FollowUpKind, date, clock string) error

// CalendarAdder pushes a follow-up to an external calendar.
type CalendarAdder func(ctx context.Context, f Snapshot) error

type Options struct {
	Clock      clockwork.Clock
	ResetAfter time.Duration

	// CalendarIntegrated disables AddToCalendar: the integration adds
	// follow-ups on its own.
	CalendarIntegrated bool
	// Calendar is called by AddToCalendar. When nil the add completes on its
	// own after CalendarDelay.
	Calendar      CalendarAdder
	CalendarDelay time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	out := o
	if out.Clock == nil {
		out.Clock = clockwork.NewRealClock()
	}
	if out.ResetAfter <= 0 {
		out.ResetAfter = DefaultResetAfter
	}
	if out.CalendarDelay <= 0 {
		out.CalendarDelay = DefaultCalendarDelay
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	return out
}

// Snapshot is a point-in-time copy of a scheduler.
type Snapshot struct {
	Kind          calls.FollowUpKind `json:"kind"`
	Date          string             `json:"date"`
	Time          string             `json:"time"`
	State         State              `json:"state"`
	CalendarState CalendarState      `json:"calendar_state"`
}

// Scheduler tracks a single callback or meeting: its fields, its save
// lifecycle and its calendar lifecycle. Safe for concurrent use; timers fire
// on their own goroutines.
type Scheduler struct {
	mu sync.Mutex

	kind  calls.FollowUpKind
	date  string
	clock string

	state    State
	calState CalendarState

	save Saver
	opts Options

	saveReset clockwork.Timer
	calDone   clockwork.Timer
	calReset  clockwork.Timer

	// gen changes on Reset; timer callbacks and in-flight saves captured
	// under an older gen are dropped.
	gen      uint64
	disposed bool
}

func New(kind calls.FollowUpKind, save Saver, opts Options) *Scheduler {
	return &Scheduler{
		kind:     kind,
		state:    StateIdle,
		calState: CalendarIdle,
		save:     save,
		opts:     opts.withDefaults(),
	}
}

func (s *Scheduler) Kind() calls.FollowUpKind { return s.kind }

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() Snapshot {
	return Snapshot{Kind: s.kind, Date: s.date, Time: s.clock, State: s.state, CalendarState: s.calState}
}

// SetDate stores a YYYY-MM-DD date. Edits are refused while a save is in flight.
func (s *Scheduler) SetDate(date string) error {
	return s.edit(func() { s.date = strings.TrimSpace(date) })
}

// SetTime stores an HH:MM local time.
func (s *Scheduler) SetTime(clock string) error {
	return s.edit(func() { s.clock = strings.TrimSpace(clock) })
}

func (s *Scheduler) edit(apply func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateSaving {
		return apperr.ErrBusy
	}
	stop(s.saveReset)
	apply()
	s.state = StateEditing
	return nil
}

// Save validates and persists the follow-up. While a save is in flight or
// just confirmed it returns apperr.ErrBusy without calling the saver.
func (s *Scheduler) Save(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateSaving || s.state == StateSaved {
		s.mu.Unlock()
		return apperr.ErrBusy
	}
	s.state = StateValidating
	if s.date == "" || s.clock == "" {
		s.state = StateEditing
		s.mu.Unlock()
		return apperr.ErrMissingFields
	}
	s.state = StateSaving
	kind, date, clock, gen := s.kind, s.date, s.clock, s.gen
	s.mu.Unlock()

	err := s.save(ctx, kind, date, clock)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.disposed {
		return err
	}
	if err != nil {
		s.state = StateEditing
		s.opts.Logger.Warn("follow-up save failed", "kind", kind, "err", err)
		return apperr.Persistence("save_follow_up", saveFailedMessage, err)
	}
	s.state = StateSaved
	s.saveReset = s.opts.Clock.AfterFunc(s.opts.ResetAfter, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen == s.gen && s.state == StateSaved {
			s.state = StateIdle
		}
	})
	return nil
}

// AddToCalendar starts the calendar lifecycle. Without an injected adder it
// returns at once and completes after CalendarDelay.
func (s *Scheduler) AddToCalendar(ctx context.Context) error {
	if s.opts.CalendarIntegrated {
		return apperr.ErrCalendarIntegrated
	}

	s.mu.Lock()
	if s.calState != CalendarIdle {
		s.mu.Unlock()
		return apperr.ErrBusy
	}
	if s.date == "" || s.clock == "" {
		s.mu.Unlock()
		return apperr.ErrMissingFields
	}
	s.calState = CalendarAdding
	gen := s.gen
	snap := s.snapshotLocked()

	if s.opts.Calendar == nil {
		s.calDone = s.opts.Clock.AfterFunc(s.opts.CalendarDelay, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if gen == s.gen && s.calState == CalendarAdding {
				s.markAddedLocked(gen)
			}
		})
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	err := s.opts.Calendar(ctx, snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.disposed {
		return err
	}
	if err != nil {
		s.calState = CalendarIdle
		s.opts.Logger.Warn("calendar add failed", "kind", snap.Kind, "err", err)
		return apperr.Persistence("add_to_calendar", calendarFailedMessage, err)
	}
	s.markAddedLocked(gen)
	return nil
}

func (s *Scheduler) markAddedLocked(gen uint64) {
	s.calState = CalendarAdded
	s.calReset = s.opts.Clock.AfterFunc(s.opts.ResetAfter, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen == s.gen && s.calState == CalendarAdded {
			s.calState = CalendarIdle
		}
	})
}

// Load fills date and time from an already saved follow-up. The scheduler
// stays idle: the save was confirmed before, so no indicator is shown.
func (s *Scheduler) Load(date, clock string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed || s.state == StateSaving {
		return
	}
	s.date = strings.TrimSpace(date)
	s.clock = strings.TrimSpace(clock)
}

// Reset drops fields and both lifecycles, cancelling pending timers.
func (s *Scheduler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
}

func (s *Scheduler) resetLocked() {
	stop(s.saveReset)
	stop(s.calDone)
	stop(s.calReset)
	s.saveReset, s.calDone, s.calReset = nil, nil, nil
	s.date, s.clock = "", ""
	s.state = StateIdle
	s.calState = CalendarIdle
	s.gen++
}

// Dispose resets the scheduler for good; late callbacks become no-ops.
func (s *Scheduler) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.disposed = true
}

func stop(t clockwork.Timer) {
	if t != nil {
		t.Stop()
	}
}

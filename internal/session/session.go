package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"coldcall-platform/internal/apperr"
	"coldcall-platform/internal/calls"
	"coldcall-platform/internal/followup"
	"coldcall-platform/internal/notes"
	"coldcall-platform/internal/reporting"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Phase is where the current call stands. It moves forward only:
// idle -> in_call -> ended -> outcome_selected -> follow_up_scheduled.
// Moving to the next contact starts again at idle.
type Phase string

const (
	PhaseIdle              Phase = "idle"
	PhaseInCall            Phase = "in_call"
	PhaseEnded             Phase = "ended"
	PhaseOutcomeSelected   Phase = "outcome_selected"
	PhaseFollowUpScheduled Phase = "follow_up_scheduled"
)

const DefaultPersistTimeout = 10 * time.Second

const (
	outcomeFailedMessage = "Failed to save outcome. Please try again."
	reasonFailedMessage  = "Failed to save reason. Please try again."
)

var ErrClosed = errors.New("session: closed")

type Options struct {
	Clock    clockwork.Clock
	FollowUp followup.Options
	Notes    notes.Options

	// ReadOnly is the viewer display mode: notes cannot be edited and the
	// saved indicator is never shown.
	ReadOnly bool

	// Strict panics on an outcome the counter does not know. Off, the
	// outcome is logged and rejected.
	Strict bool

	PersistTimeout time.Duration
	Logger         *slog.Logger
	Metrics        Recorder
	NewID          func() string
}

func (o Options) withDefaults() Options {
	out := o
	if out.Clock == nil {
		out.Clock = clockwork.NewRealClock()
	}
	if out.Logger == nil {
		out.Logger = slog.Default()
	}
	if out.Metrics == nil {
		out.Metrics = nopRecorder{}
	}
	if out.NewID == nil {
		out.NewID = uuid.NewString
	}
	if out.PersistTimeout <= 0 {
		out.PersistTimeout = DefaultPersistTimeout
	}
	if out.FollowUp.Clock == nil {
		out.FollowUp.Clock = out.Clock
	}
	if out.FollowUp.Logger == nil {
		out.FollowUp.Logger = out.Logger
	}
	if out.Notes.Clock == nil {
		out.Notes.Clock = out.Clock
	}
	if out.Notes.Logger == nil {
		out.Notes.Logger = out.Logger
	}
	out.Notes.ReadOnly = out.ReadOnly
	return out
}

// Info identifies a session and the list it works through.
type Info struct {
	ID          string
	WorkspaceID string
	UserID      string
	List        calls.ContactList
	// Cursor is the index of the contact to call first.
	Cursor int
}

// Session is one caller's run through a contact list. It owns the running
// stats, the current call, and the follow-up and notes state machines of the
// current contact. Local state changes apply immediately; durable writes run
// in order on a per-session queue and report back through an Ack.
type Session struct {
	mu sync.Mutex

	id          string
	workspaceID string
	userID      string
	list        calls.ContactList
	cursor      int

	phase   Phase
	call    calls.Record
	counted bool
	stats   reporting.Stats

	followUp *followup.Scheduler
	notes    *notes.Controller

	gw     Gateway
	opts   Options
	writes *writeQueue
	log    *slog.Logger

	closed bool
}

// New starts a session at info.Cursor. stats is the read model rebuilt from
// call history; TotalContacts defaults to the list size.
func New(info Info, stats reporting.Stats, gw Gateway, opts Options) *Session {
	opts = opts.withDefaults()
	if stats.TotalContacts == 0 {
		stats.TotalContacts = len(info.List.Contacts)
	}
	s := &Session{
		id:          info.ID,
		workspaceID: info.WorkspaceID,
		userID:      info.UserID,
		list:        info.List,
		cursor:      clampCursor(info.Cursor, len(info.List.Contacts)),
		stats:       stats,
		gw:          gw,
		opts:        opts,
		writes:      newWriteQueue(),
		log:         opts.Logger.With("session_id", info.ID, "list_id", info.List.ID),
	}
	s.beginContactLocked(opts.NewID(), "")
	return s
}

func clampCursor(i, n int) int {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func (s *Session) ID() string          { return s.id }
func (s *Session) WorkspaceID() string { return s.workspaceID }
func (s *Session) UserID() string      { return s.userID }

func (s *Session) contactLocked() (calls.Contact, bool) {
	if s.cursor >= len(s.list.Contacts) {
		return calls.Contact{}, false
	}
	return s.list.Contacts[s.cursor], true
}

// beginContactLocked resets per-call state for the contact under the cursor.
func (s *Session) beginContactLocked(callID, draft string) {
	s.phase = PhaseIdle
	s.counted = false
	s.call = calls.Record{
		CallID:      callID,
		WorkspaceID: s.workspaceID,
		ListID:      s.list.ID,
		UserID:      s.userID,
	}
	if c, ok := s.contactLocked(); ok {
		s.call.ContactID = c.ID
	}
	s.followUp = nil
	s.notes = notes.New(draft, s.notesSaver(s.call.Ref()), s.opts.Notes)
}

// notesSaver writes through the session queue so notes saves and reason
// updates reach the notes column in the order they were made.
func (s *Session) notesSaver(ref calls.Ref) notes.Saver {
	return func(ctx context.Context, content string) error {
		ack := s.enqueue(ctx, func(ctx context.Context) error {
			if err := s.gw.SaveNotes(ctx, ref, content); err != nil {
				s.opts.Metrics.PersistenceFailed("save_notes")
				return err
			}
			s.opts.Metrics.NotesAutosaved()
			return nil
		})
		return ack.Wait(ctx)
	}
}

func (s *Session) followUpSaver(ref calls.Ref) followup.Saver {
	return func(ctx context.Context, kind calls.FollowUpKind, date, clock string) error {
		ctx, cancel := context.WithTimeout(ctx, s.opts.PersistTimeout)
		defer cancel()
		if err := s.gw.SaveFollowUp(ctx, ref, kind, date, clock); err != nil {
			s.opts.Metrics.PersistenceFailed("save_follow_up")
			return err
		}
		s.opts.Metrics.FollowUpSaved(kind)
		return nil
	}
}

// StartCall marks the current contact as dialled.
func (s *Session) StartCall(providerCallID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.contactLocked(); !ok {
		return apperr.ErrListExhausted
	}
	switch s.phase {
	case PhaseIdle:
	case PhaseInCall:
		return apperr.ErrCallInProgress
	case PhaseEnded:
		return apperr.ErrCallAlreadyEnded
	default:
		return apperr.ErrOutcomeAlreadySelected
	}
	s.call.ProviderCallID = strings.TrimSpace(providerCallID)
	s.phase = PhaseInCall
	return nil
}

// EndCall records the call duration; negative durations count as zero.
func (s *Session) EndCall(durationSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endCallLocked(durationSeconds)
}

// EndProviderCall ends the call only if it is the one the provider names.
func (s *Session) EndProviderCall(providerCallID string, durationSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if providerCallID == "" || s.call.ProviderCallID != providerCallID {
		return apperr.ErrNoActiveCall
	}
	return s.endCallLocked(durationSeconds)
}

func (s *Session) endCallLocked(durationSeconds int) error {
	if s.closed {
		return ErrClosed
	}
	if s.phase != PhaseInCall {
		return apperr.ErrNoActiveCall
	}
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	s.call.DurationSeconds = durationSeconds
	s.phase = PhaseEnded
	return nil
}

func (s *Session) callEndedLocked() bool {
	switch s.phase {
	case PhaseEnded, PhaseOutcomeSelected, PhaseFollowUpScheduled:
		return true
	default:
		return false
	}
}

// SelectOutcome applies o to the current call. The returned view already
// holds the updated stats; the Ack reports the durable write. A failed write
// does not roll back the selection. Re-selecting on the same call moves the
// count from the old bucket to the new one; selecting the same outcome again
// only repeats the write.
func (s *Session) SelectOutcome(ctx context.Context, o calls.Outcome) (View, *Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, nil, ErrClosed
	}
	if !o.Valid() {
		return View{}, nil, s.unknownOutcomeLocked(o)
	}
	if !s.callEndedLocked() {
		return View{}, nil, apperr.ErrOutcomeBeforeCallEnded
	}

	var (
		next reporting.Stats
		err  error
	)
	if s.counted {
		next, err = reporting.ReplaceOutcome(s.stats, s.call.Outcome, o)
	} else {
		next, err = reporting.ApplyOutcome(s.stats, o, s.call.DurationSeconds)
	}
	if errors.Is(err, apperr.ErrUnknownOutcome) {
		return View{}, nil, s.unknownOutcomeLocked(o)
	}
	if err != nil {
		return View{}, nil, err
	}

	prev := s.call.Outcome
	s.stats = next
	s.counted = true
	s.call.Outcome = o
	s.syncFollowUpLocked(prev, o)
	if prev != o || s.phase == PhaseEnded {
		s.phase = PhaseOutcomeSelected
	}
	s.opts.Metrics.OutcomeSelected(o)

	rec := s.call
	progress := s.progressLocked(s.cursor + 1)
	log := s.log.With("call_id", rec.CallID)
	ack := s.persist(ctx, "save_call_outcome", outcomeFailedMessage,
		func(ctx context.Context) error { return s.gw.SaveCallOutcome(ctx, rec) },
		func(ctx context.Context) {
			if err := s.gw.SaveContactListProgress(ctx, progress); err != nil {
				s.opts.Metrics.PersistenceFailed("save_contact_list_progress")
				log.Warn("contact list progress save failed", "op", "save_contact_list_progress", "err", err)
			}
		})
	return s.viewLocked(), ack, nil
}

func (s *Session) unknownOutcomeLocked(o calls.Outcome) error {
	if s.opts.Strict {
		panic(fmt.Sprintf("session: outcome %q has no counter", o))
	}
	s.log.Error("unknown call outcome ignored", "outcome", string(o))
	return apperr.ErrUnknownOutcome
}

// syncFollowUpLocked keeps the follow-up in line with the outcome. A change
// of kind drops the old follow-up with its date and time.
func (s *Session) syncFollowUpLocked(prev, next calls.Outcome) {
	prevKind, _ := prev.FollowUp()
	nextKind, hasNext := next.FollowUp()
	if s.followUp != nil && hasNext && prevKind == nextKind {
		return
	}
	if s.followUp != nil {
		s.followUp.Dispose()
		s.followUp = nil
	}
	if hasNext {
		s.followUp = followup.New(nextKind, s.followUpSaver(s.call.Ref()), s.opts.FollowUp)
	}
}

func (s *Session) progressLocked(nextIndex int) calls.Progress {
	return calls.Progress{
		WorkspaceID:  s.workspaceID,
		ListID:       s.list.ID,
		CurrentIndex: nextIndex,
		Completed:    s.stats.ContactsCompleted,
		Skipped:      s.stats.ContactsSkipped,
		UpdatedAt:    s.opts.Clock.Now().UTC(),
	}
}

// persist queues a durable write. then runs only after a successful write.
func (s *Session) persist(ctx context.Context, op, message string, write func(context.Context) error, then func(context.Context)) *Ack {
	return s.enqueue(ctx, func(ctx context.Context) error {
		if err := write(ctx); err != nil {
			s.opts.Metrics.PersistenceFailed(op)
			s.log.Warn("session write failed", "op", op, "err", err)
			return apperr.Persistence(op, message, err)
		}
		if then != nil {
			then(ctx)
		}
		return nil
	})
}

// enqueue runs write on the session queue under PersistTimeout. The caller's
// cancellation does not abort a queued write.
func (s *Session) enqueue(ctx context.Context, write func(context.Context) error) *Ack {
	ack := newAck()
	base := context.WithoutCancel(ctx)
	s.writes.push(func() {
		ctx, cancel := context.WithTimeout(base, s.opts.PersistTimeout)
		defer cancel()
		ack.resolve(write(ctx))
	})
	return ack
}

// SetNotInterestedReason attaches the reason to the call's notes, replacing
// a reason set earlier. The draft is replaced by the combined text so a later
// autosave keeps the reason.
func (s *Session) SetNotInterestedReason(ctx context.Context, reason string) (*Ack, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.call.Outcome != calls.OutcomeNotInterested {
		return nil, apperr.ErrNotInterestedOnly
	}
	composed := NotInterestedNotes(s.notes.Content(), reason)
	s.notes.Reset(composed)

	callID := s.call.CallID
	return s.persist(ctx, "update_call_history_record", reasonFailedMessage, func(ctx context.Context) error {
		return s.gw.UpdateCallHistoryRecord(ctx, callID, map[string]any{"notes": composed})
	}, nil), nil
}

func (s *Session) currentFollowUp() (*followup.Scheduler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.followUp == nil {
		return nil, apperr.ErrNoFollowUp
	}
	return s.followUp, nil
}

// SetFollowUp stores the date (YYYY-MM-DD) and time (HH:MM) of the pending
// callback or meeting.
func (s *Session) SetFollowUp(date, clock string) (followup.Snapshot, error) {
	fu, err := s.currentFollowUp()
	if err != nil {
		return followup.Snapshot{}, err
	}
	if err := fu.SetDate(date); err != nil {
		return fu.Snapshot(), err
	}
	if err := fu.SetTime(clock); err != nil {
		return fu.Snapshot(), err
	}
	return fu.Snapshot(), nil
}

// SaveFollowUp persists the follow-up synchronously; on success the call
// moves to follow_up_scheduled.
func (s *Session) SaveFollowUp(ctx context.Context) (followup.Snapshot, error) {
	fu, err := s.currentFollowUp()
	if err != nil {
		return followup.Snapshot{}, err
	}
	if err := fu.Save(ctx); err != nil {
		return fu.Snapshot(), err
	}
	s.mu.Lock()
	if s.followUp == fu {
		s.phase = PhaseFollowUpScheduled
	}
	s.mu.Unlock()
	return fu.Snapshot(), nil
}

func (s *Session) AddFollowUpToCalendar(ctx context.Context) (followup.Snapshot, error) {
	fu, err := s.currentFollowUp()
	if err != nil {
		return followup.Snapshot{}, err
	}
	err = fu.AddToCalendar(ctx)
	return fu.Snapshot(), err
}

func (s *Session) currentNotes() (*notes.Controller, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if _, ok := s.contactLocked(); !ok {
		return nil, apperr.ErrListExhausted
	}
	return s.notes, nil
}

// EditNotes replaces the note draft; it is autosaved after a quiet period.
func (s *Session) EditNotes(content string) (notes.Snapshot, error) {
	nc, err := s.currentNotes()
	if err != nil {
		return notes.Snapshot{}, err
	}
	err = nc.Edit(content)
	return nc.Snapshot(), err
}

func (s *Session) SaveNotes(ctx context.Context) (notes.Snapshot, error) {
	nc, err := s.currentNotes()
	if err != nil {
		return notes.Snapshot{}, err
	}
	err = nc.SaveNow(ctx)
	return nc.Snapshot(), err
}

// Skip passes over the current contact without a completed call.
func (s *Session) Skip(ctx context.Context) error {
	check := func() error {
		switch s.phase {
		case PhaseIdle:
			return nil
		case PhaseInCall:
			return apperr.ErrCallInProgress
		case PhaseEnded:
			return apperr.ErrOutcomeRequired
		default:
			return apperr.ErrOutcomeAlreadySelected
		}
	}
	return s.advance(ctx, check, func() error {
		next, err := reporting.ApplySkip(s.stats)
		if err != nil {
			return err
		}
		s.stats = next
		return nil
	})
}

// Next moves on once the current call has an outcome. A dirty note draft is
// saved first; if that fails the session stays on the contact.
func (s *Session) Next(ctx context.Context) error {
	check := func() error {
		switch s.phase {
		case PhaseOutcomeSelected, PhaseFollowUpScheduled:
			return nil
		case PhaseInCall:
			return apperr.ErrCallInProgress
		default:
			return apperr.ErrOutcomeRequired
		}
	}
	return s.advance(ctx, check, nil)
}

func (s *Session) advance(ctx context.Context, check func() error, apply func() error) error {
	s.mu.Lock()
	if err := s.guardAdvanceLocked(check); err != nil {
		s.mu.Unlock()
		return err
	}
	nc, callID := s.notes, s.call.CallID
	s.mu.Unlock()

	if nc.Dirty() {
		if err := nc.SaveNow(ctx); err != nil && !errors.Is(err, apperr.ErrReadOnly) {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call.CallID != callID {
		return apperr.ErrBusy
	}
	if err := s.guardAdvanceLocked(check); err != nil {
		return err
	}
	if apply != nil {
		if err := apply(); err != nil {
			return err
		}
	}

	s.disposeContactLocked()
	s.cursor++
	s.beginContactLocked(s.opts.NewID(), "")

	progress := s.progressLocked(s.cursor)
	log := s.log
	s.enqueue(ctx, func(ctx context.Context) error {
		if err := s.gw.SaveContactListProgress(ctx, progress); err != nil {
			s.opts.Metrics.PersistenceFailed("save_contact_list_progress")
			log.Warn("contact list progress save failed", "op", "save_contact_list_progress", "err", err)
		}
		return nil
	})
	return nil
}

func (s *Session) guardAdvanceLocked(check func() error) error {
	if s.closed {
		return ErrClosed
	}
	if _, ok := s.contactLocked(); !ok {
		return apperr.ErrListExhausted
	}
	return check()
}

func (s *Session) disposeContactLocked() {
	if s.followUp != nil {
		s.followUp.Dispose()
		s.followUp = nil
	}
	if s.notes != nil {
		s.notes.Dispose()
	}
}

// Dispose cancels every timer the session owns. Queued writes still run.
func (s *Session) Dispose() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.disposeContactLocked()
}

// Close saves a dirty note draft, disposes the session and waits for queued
// writes until ctx ends.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	nc, closed := s.notes, s.closed
	s.mu.Unlock()
	if !closed && nc.Dirty() {
		if err := nc.SaveNow(ctx); err != nil && !errors.Is(err, apperr.ErrReadOnly) {
			s.log.Warn("notes flush on close failed", "err", err)
		}
	}
	s.Dispose()
	return s.Wait(ctx)
}

// Wait blocks until every queued write has settled or ctx ends. A write
// still running when ctx ends keeps running on the queue.
func (s *Session) Wait(ctx context.Context) error {
	select {
	case <-s.writes.done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

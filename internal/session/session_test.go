package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"coldcall-platform/internal/apperr"
	"coldcall-platform/internal/calls"
	"coldcall-platform/internal/followup"
	"coldcall-platform/internal/notes"
	"coldcall-platform/internal/reporting"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("call-%d", n)
	}
}

func newTestSession(t *testing.T, gw *fakeGateway, opts Options) (*Session, *clockwork.FakeClock) {
	t.Helper()
	clk := clockwork.NewFakeClock()
	opts.Clock = clk
	if opts.NewID == nil {
		opts.NewID = sequentialIDs()
	}
	s := New(Info{ID: "sess-1", WorkspaceID: "ws-1", UserID: "u-1", List: gw.list}, reporting.Stats{}, gw, opts)
	t.Cleanup(s.Dispose)
	return s, clk
}

func endedCall(t *testing.T, s *Session, duration int) {
	t.Helper()
	require.NoError(t, s.StartCall("CA123"))
	require.NoError(t, s.EndCall(duration))
}

func TestSelectOutcome_RejectedBeforeCallEnds(t *testing.T) {
	gw := newFakeGateway(3)
	s, _ := newTestSession(t, gw, Options{})

	for _, o := range calls.AllOutcomes() {
		_, _, err := s.SelectOutcome(context.Background(), o)
		assert.ErrorIsf(t, err, apperr.ErrOutcomeBeforeCallEnded, "idle, outcome %q", o)
	}
	require.NoError(t, s.StartCall("CA1"))
	for _, o := range calls.AllOutcomes() {
		_, _, err := s.SelectOutcome(context.Background(), o)
		assert.ErrorIsf(t, err, apperr.ErrOutcomeBeforeCallEnded, "in call, outcome %q", o)
	}

	v := s.View()
	assert.Empty(t, v.Outcome)
	assert.Equal(t, PhaseInCall, v.Phase)
	assert.Equal(t, 0, v.Stats.ContactsCompleted)
	assert.Empty(t, gw.savedOutcomes())
}

func TestSelectOutcome_CallbackCountsOnce(t *testing.T) {
	gw := newFakeGateway(5)
	s, _ := newTestSession(t, gw, Options{})
	endedCall(t, s, 95)

	v, ack, err := s.SelectOutcome(context.Background(), calls.OutcomeCallback)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Stats.Callbacks)
	assert.Equal(t, 1, v.Stats.ContactsCompleted)
	assert.Equal(t, 95, v.Stats.TotalCallTime)
	assert.Equal(t, PhaseOutcomeSelected, v.Phase)
	require.NotNil(t, v.FollowUp)
	assert.Equal(t, calls.FollowUpCallback, v.FollowUp.Kind)

	require.NoError(t, ack.Wait(context.Background()))
	saved := gw.savedOutcomes()
	require.Len(t, saved, 1)
	assert.Equal(t, calls.OutcomeCallback, saved[0].Outcome)
	assert.Equal(t, "c1", saved[0].ContactID)
	assert.Equal(t, "CA123", saved[0].ProviderCallID)
	assert.Equal(t, 95, saved[0].DurationSeconds)

	progress := gw.savedProgress()
	require.Len(t, progress, 1)
	assert.Equal(t, 1, progress[0].CurrentIndex)
	assert.Equal(t, 1, progress[0].Completed)
}

func TestSelectOutcome_ChangeMovesBucketAndResetsFollowUp(t *testing.T) {
	gw := newFakeGateway(5)
	s, _ := newTestSession(t, gw, Options{})
	endedCall(t, s, 60)

	_, _, err := s.SelectOutcome(context.Background(), calls.OutcomeCallback)
	require.NoError(t, err)
	_, err = s.SetFollowUp("2026-10-20", "09:30")
	require.NoError(t, err)

	v, ack, err := s.SelectOutcome(context.Background(), calls.OutcomeMeetingScheduled)
	require.NoError(t, err)
	require.NoError(t, ack.Wait(context.Background()))

	assert.Equal(t, 0, v.Stats.Callbacks)
	assert.Equal(t, 1, v.Stats.MeetingsScheduled)
	assert.Equal(t, 1, v.Stats.ContactsCompleted)
	assert.Equal(t, 60, v.Stats.TotalCallTime)

	require.NotNil(t, v.FollowUp)
	assert.Equal(t, calls.FollowUpMeeting, v.FollowUp.Kind)
	assert.Equal(t, followup.StateIdle, v.FollowUp.State)
	assert.Empty(t, v.FollowUp.Date)
	assert.Empty(t, v.FollowUp.Time)

	v, _, err = s.SelectOutcome(context.Background(), calls.OutcomeSold)
	require.NoError(t, err)
	assert.Nil(t, v.FollowUp)
	_, err = s.SetFollowUp("2026-10-20", "09:30")
	assert.ErrorIs(t, err, apperr.ErrNoFollowUp)
}

func TestSelectOutcome_SameOutcomeRetriesWriteOnly(t *testing.T) {
	gw := newFakeGateway(2)
	gw.failOutcome = errors.New("connection refused")
	rec := newCountingRecorder()
	s, _ := newTestSession(t, gw, Options{Metrics: rec})
	endedCall(t, s, 30)

	v, ack, err := s.SelectOutcome(context.Background(), calls.OutcomeInterested)
	require.NoError(t, err)
	assert.Equal(t, 1, v.Stats.ContactsInterested, "local state is optimistic")

	err = ack.Wait(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsPersistence(err))
	assert.Equal(t, "Failed to save outcome. Please try again.", apperr.UserMessage(err))
	assert.Equal(t, 1, rec.failures("save_call_outcome"))
	assert.Empty(t, gw.savedProgress(), "progress only follows a successful outcome save")
	assert.Equal(t, 1, s.Stats().ContactsInterested, "no rollback")

	gw.mu.Lock()
	gw.failOutcome = nil
	gw.mu.Unlock()

	v, ack, err = s.SelectOutcome(context.Background(), calls.OutcomeInterested)
	require.NoError(t, err)
	require.NoError(t, ack.Wait(context.Background()))
	assert.Equal(t, 1, v.Stats.ContactsInterested)
	assert.Equal(t, 1, v.Stats.ContactsCompleted)
	assert.Len(t, gw.savedOutcomes(), 2)
}

func TestSelectOutcome_ProgressFailureIsBestEffort(t *testing.T) {
	gw := newFakeGateway(2)
	gw.failProgress = errors.New("timeout")
	rec := newCountingRecorder()
	s, _ := newTestSession(t, gw, Options{Metrics: rec})
	endedCall(t, s, 10)

	_, ack, err := s.SelectOutcome(context.Background(), calls.OutcomeNoAnswer)
	require.NoError(t, err)
	assert.NoError(t, ack.Wait(context.Background()))
	assert.Equal(t, 1, rec.failures("save_contact_list_progress"))
}

func TestSelectOutcome_UnknownOutcome(t *testing.T) {
	gw := newFakeGateway(2)
	s, _ := newTestSession(t, gw, Options{})
	endedCall(t, s, 10)

	_, _, err := s.SelectOutcome(context.Background(), calls.Outcome("hung-up"))
	assert.ErrorIs(t, err, apperr.ErrUnknownOutcome)
	assert.Equal(t, PhaseEnded, s.Phase())

	strict, _ := newTestSession(t, gw, Options{Strict: true})
	endedCall(t, strict, 10)
	assert.Panics(t, func() {
		_, _, _ = strict.SelectOutcome(context.Background(), calls.Outcome("hung-up"))
	})
}

func TestSetNotInterestedReason_AppendsToNotes(t *testing.T) {
	gw := newFakeGateway(2)
	s, _ := newTestSession(t, gw, Options{})
	endedCall(t, s, 20)

	_, err := s.EditNotes("called twice")
	require.NoError(t, err)
	_, _, err = s.SelectOutcome(context.Background(), calls.OutcomeNotInterested)
	require.NoError(t, err)

	ack, err := s.SetNotInterestedReason(context.Background(), "  Already using competitor ")
	require.NoError(t, err)
	require.NoError(t, ack.Wait(context.Background()))

	require.Len(t, gw.updates, 1)
	assert.Equal(t, "called twice\n\nNot interested reason: Already using competitor", gw.updates[0]["notes"])
	assert.Equal(t, "called twice\n\nNot interested reason: Already using competitor", s.View().Notes.Content)
	assert.Equal(t, notes.StateClean, s.View().Notes.State)
}

func TestSetNotInterestedReason_ReplacesEarlierReason(t *testing.T) {
	gw := newFakeGateway(2)
	s, _ := newTestSession(t, gw, Options{})
	endedCall(t, s, 20)
	ctx := context.Background()

	_, ack, err := s.SelectOutcome(ctx, calls.OutcomeNotInterested)
	require.NoError(t, err)
	require.NoError(t, ack.Wait(ctx))

	for _, reason := range []string{"Too expensive", "Already using competitor"} {
		ack, err := s.SetNotInterestedReason(ctx, reason)
		require.NoError(t, err)
		require.NoError(t, ack.Wait(ctx))
	}

	want := "Not interested reason: Already using competitor"
	got := s.View().Notes.Content
	assert.Equal(t, want, got)
	assert.Equal(t, 1, strings.Count(got, notInterestedLabel))
	require.Len(t, gw.updates, 2)
	assert.Equal(t, want, gw.updates[1]["notes"])
}

func TestSetNotInterestedReason_QueuedBehindInFlightNotesSave(t *testing.T) {
	gw := newFakeGateway(2)
	s, clk := newTestSession(t, gw, Options{})
	endedCall(t, s, 20)
	ctx := context.Background()

	_, ack, err := s.SelectOutcome(ctx, calls.OutcomeNotInterested)
	require.NoError(t, err)
	require.NoError(t, ack.Wait(ctx))

	gw.notesStarted = make(chan struct{}, 1)
	gw.notesGate = make(chan struct{})
	_, err = s.EditNotes("called twice")
	require.NoError(t, err)
	clk.Advance(2 * time.Second)
	select {
	case <-gw.notesStarted:
	case <-time.After(time.Second):
		t.Fatalf("autosave did not start")
	}

	ack, err = s.SetNotInterestedReason(ctx, "Too expensive")
	require.NoError(t, err)
	select {
	case <-ack.Done():
		t.Fatalf("reason write ran before the notes save settled")
	case <-time.After(20 * time.Millisecond):
	}

	close(gw.notesGate)
	require.NoError(t, ack.Wait(ctx))
	require.NoError(t, s.Wait(ctx))

	composed := "called twice\n\nNot interested reason: Too expensive"
	assert.Equal(t, []string{"called twice", composed}, gw.notesWrites())
	assert.Equal(t, composed, s.View().Notes.Content)
	assert.Equal(t, notes.StateClean, s.View().Notes.State)
}

func TestWait_ReturnsOnContextWhileWriteRuns(t *testing.T) {
	gw := newFakeGateway(1)
	gw.notesGate = make(chan struct{})
	s, _ := newTestSession(t, gw, Options{})

	_, err := s.EditNotes("slow")
	require.NoError(t, err)
	saved := make(chan error, 1)
	go func() {
		_, err := s.SaveNotes(context.Background())
		saved <- err
	}()
	require.Eventually(t, func() bool {
		select {
		case <-s.writes.done():
			return false
		default:
			return true
		}
	}, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Wait(ctx), context.DeadlineExceeded)

	close(gw.notesGate)
	require.NoError(t, <-saved)
	require.NoError(t, s.Wait(context.Background()))
}

func TestSetNotInterestedReason_RequiresNotInterested(t *testing.T) {
	gw := newFakeGateway(2)
	s, _ := newTestSession(t, gw, Options{})
	endedCall(t, s, 20)
	_, _, err := s.SelectOutcome(context.Background(), calls.OutcomeBusy)
	require.NoError(t, err)

	_, err = s.SetNotInterestedReason(context.Background(), "x")
	assert.ErrorIs(t, err, apperr.ErrNotInterestedOnly)
}

func TestNotInterestedNotes(t *testing.T) {
	assert.Equal(t, "Not interested reason: No reason provided", NotInterestedNotes("", "   "))
	assert.Equal(t, "Not interested reason: budget", NotInterestedNotes("  ", "budget"))
	assert.Equal(t, "a\n\nNot interested reason: No reason provided", NotInterestedNotes("a", ""))
	assert.Equal(t, "a\n\nNot interested reason: b", NotInterestedNotes("a\n\nNot interested reason: old", "b"))
	assert.Equal(t, "Not interested reason: b", NotInterestedNotes("Not interested reason: old", "b"))
	assert.Equal(t, "Not interested reason: too pricey for now", NotInterestedNotes("", "too pricey\nfor now"))
	assert.Equal(t, "Not interested reason: old\nthen called back\n\nNot interested reason: b",
		NotInterestedNotes("Not interested reason: old\nthen called back", "b"))
}

func TestSaveFollowUp_MovesToScheduled(t *testing.T) {
	gw := newFakeGateway(2)
	s, clk := newTestSession(t, gw, Options{})
	endedCall(t, s, 20)
	_, _, err := s.SelectOutcome(context.Background(), calls.OutcomeMeetingScheduled)
	require.NoError(t, err)

	_, err = s.SaveFollowUp(context.Background())
	assert.ErrorIs(t, err, apperr.ErrMissingFields)
	assert.Empty(t, gw.followUps)

	_, err = s.SetFollowUp("2026-11-02", "16:00")
	require.NoError(t, err)
	snap, err := s.SaveFollowUp(context.Background())
	require.NoError(t, err)
	assert.Equal(t, followup.StateSaved, snap.State)
	assert.Equal(t, PhaseFollowUpScheduled, s.Phase())

	require.Len(t, gw.followUps, 1)
	assert.Equal(t, followUpWrite{
		Ref:  calls.Ref{CallID: "call-1", WorkspaceID: "ws-1", ListID: "list-1", ContactID: "c1", UserID: "u-1"},
		Kind: calls.FollowUpMeeting, Date: "2026-11-02", Time: "16:00",
	}, gw.followUps[0])

	clk.Advance(3 * time.Second)
	assert.Eventually(t, func() bool { return s.View().FollowUp.State == followup.StateIdle }, time.Second, 5*time.Millisecond)
}

func TestStartAndEndCall_Transitions(t *testing.T) {
	gw := newFakeGateway(1)
	s, _ := newTestSession(t, gw, Options{})

	assert.ErrorIs(t, s.EndCall(10), apperr.ErrNoActiveCall)
	require.NoError(t, s.StartCall(" CA9 "))
	assert.ErrorIs(t, s.StartCall("CA9"), apperr.ErrCallInProgress)
	assert.ErrorIs(t, s.EndProviderCall("CA-other", 10), apperr.ErrNoActiveCall)
	require.NoError(t, s.EndProviderCall("CA9", -4))
	assert.Equal(t, 0, s.View().DurationSeconds)
	assert.ErrorIs(t, s.StartCall("CA10"), apperr.ErrCallAlreadyEnded)
}

func TestSkipAndNext(t *testing.T) {
	gw := newFakeGateway(3)
	s, _ := newTestSession(t, gw, Options{})
	ctx := context.Background()

	require.NoError(t, s.Skip(ctx))
	v := s.View()
	assert.Equal(t, 1, v.Cursor)
	assert.Equal(t, "c2", v.Contact.ID)
	assert.Equal(t, 1, v.Stats.ContactsSkipped)

	assert.ErrorIs(t, s.Next(ctx), apperr.ErrOutcomeRequired)
	endedCall(t, s, 40)
	assert.ErrorIs(t, s.Skip(ctx), apperr.ErrOutcomeRequired)

	_, _, err := s.SelectOutcome(ctx, calls.OutcomePositive)
	require.NoError(t, err)
	assert.ErrorIs(t, s.Skip(ctx), apperr.ErrOutcomeAlreadySelected)

	_, err = s.EditNotes("good chat")
	require.NoError(t, err)
	require.NoError(t, s.Next(ctx))

	v = s.View()
	assert.Equal(t, 2, v.Cursor)
	assert.Equal(t, PhaseIdle, v.Phase)
	assert.Empty(t, v.Outcome)
	assert.Empty(t, v.Notes.Content)
	assert.NotEqual(t, "call-2", v.CallID)
	assert.Equal(t, "good chat", gw.notes["call-2"], "dirty draft flushed before moving on")

	require.NoError(t, s.Skip(ctx))
	v = s.View()
	assert.Nil(t, v.Contact)
	assert.Equal(t, 100, v.Stats.ProgressPct)
	assert.ErrorIs(t, s.StartCall("CA"), apperr.ErrListExhausted)
	assert.ErrorIs(t, s.Skip(ctx), apperr.ErrListExhausted)

	require.NoError(t, s.Wait(ctx))
	progress := gw.savedProgress()
	require.NotEmpty(t, progress)
	assert.Equal(t, 3, progress[len(progress)-1].CurrentIndex)
	assert.Equal(t, 2, progress[len(progress)-1].Skipped)
}

func TestNext_StaysWhenNotesFlushFails(t *testing.T) {
	gw := newFakeGateway(2)
	gw.failNotes = errors.New("db down")
	s, _ := newTestSession(t, gw, Options{})
	endedCall(t, s, 5)
	_, _, err := s.SelectOutcome(context.Background(), calls.OutcomeBusy)
	require.NoError(t, err)
	_, err = s.EditNotes("retry later")
	require.NoError(t, err)

	err = s.Next(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsPersistence(err))
	assert.Equal(t, 0, s.View().Cursor)
}

func TestNotesAutosave_ThroughSession(t *testing.T) {
	gw := newFakeGateway(1)
	s, clk := newTestSession(t, gw, Options{})

	for _, draft := range []string{"h", "he", "hel", "hell", "hello"} {
		_, err := s.EditNotes(draft)
		require.NoError(t, err)
		clk.Advance(300 * time.Millisecond)
	}
	clk.Advance(2 * time.Second)
	assert.Eventually(t, func() bool {
		gw.mu.Lock()
		defer gw.mu.Unlock()
		return gw.notes["call-1"] == "hello"
	}, time.Second, 5*time.Millisecond)
}

func TestReadOnlySession_RejectsNotes(t *testing.T) {
	gw := newFakeGateway(1)
	s, _ := newTestSession(t, gw, Options{ReadOnly: true})

	_, err := s.EditNotes("x")
	assert.ErrorIs(t, err, apperr.ErrReadOnly)
	v := s.View()
	assert.True(t, v.ReadOnly)
	assert.True(t, v.Notes.ReadOnly)
	assert.False(t, v.Notes.SavedAck)
}

func TestDispose_StopsTimers(t *testing.T) {
	gw := newFakeGateway(1)
	s, clk := newTestSession(t, gw, Options{})
	_, err := s.EditNotes("pending")
	require.NoError(t, err)

	s.Dispose()
	clk.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)

	gw.mu.Lock()
	defer gw.mu.Unlock()
	assert.Empty(t, gw.notes)
	assert.ErrorIs(t, s.StartCall("CA"), ErrClosed)
}

func TestRestore_RecountsCurrentOutcome(t *testing.T) {
	gw := newFakeGateway(4)
	base := reporting.Rebuild(4, []calls.Record{{CallID: "old", Outcome: calls.OutcomeSold, DurationSeconds: 50}}, 1)

	s := Restore(State{
		ID: "sess-9", WorkspaceID: "ws-1", UserID: "u-1", ListID: "list-1",
		Cursor: 2, CallID: "call-x", Phase: PhaseFollowUpScheduled,
		Outcome: calls.OutcomeCallback, DurationSeconds: 70, Notes: "draft",
	}, nil, gw.list, base, gw, Options{Clock: clockwork.NewFakeClock()})
	t.Cleanup(s.Dispose)

	v := s.View()
	assert.Equal(t, "c3", v.Contact.ID)
	assert.Equal(t, "call-x", v.CallID)
	assert.Equal(t, PhaseFollowUpScheduled, v.Phase)
	assert.Equal(t, 2, v.Stats.ContactsCompleted)
	assert.Equal(t, 1, v.Stats.Callbacks)
	assert.Equal(t, 120, v.Stats.TotalCallTime)
	assert.Equal(t, "draft", v.Notes.Content)
	require.NotNil(t, v.FollowUp)

	_, _, err := s.SelectOutcome(context.Background(), calls.OutcomeNeutral)
	require.NoError(t, err)
	st := s.Stats()
	assert.Equal(t, 0, st.Callbacks)
	assert.Equal(t, 1, st.Neutrals)
	assert.Equal(t, 2, st.ContactsCompleted)
}

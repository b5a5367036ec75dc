package session

import (
	"context"

	"coldcall-platform/internal/calls"
	"coldcall-platform/internal/reporting"
)

// Gateway is the durable side of a calling session. A non-nil error from any
// save is a persistence failure; reads must filter by workspace.
type Gateway interface {
	reporting.Repository

	LoadContactList(ctx context.Context, workspaceID, listID string) (calls.ContactList, error)

	SaveCallOutcome(ctx context.Context, rec calls.Record) error
	SaveFollowUp(ctx context.Context, ref calls.Ref, kind calls.FollowUpKind, date, clock string) error
	SaveNotes(ctx context.Context, ref calls.Ref, content string) error
	UpdateCallHistoryRecord(ctx context.Context, callID string, fields map[string]any) error
	SaveContactListProgress(ctx context.Context, p calls.Progress) error
}

// Recorder receives session events for metrics. internal/metrics implements it.
type Recorder interface {
	OutcomeSelected(o calls.Outcome)
	PersistenceFailed(op string)
	FollowUpSaved(kind calls.FollowUpKind)
	NotesAutosaved()
	SessionsActive(n int)
}

type nopRecorder struct{}

func (nopRecorder) OutcomeSelected(calls.Outcome) {}
func (nopRecorder) PersistenceFailed(string) {}
func (nopRecorder) FollowUpSaved(calls.FollowUpKind) {}
func (nopRecorder) NotesAutosaved() {}
func (nopRecorder) SessionsActive(int) {}

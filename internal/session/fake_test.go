package session

import (
	"context"
	"fmt"
	"sync"

	"coldcall-platform/internal/calls"
)

type followUpWrite struct {
	Ref  calls.Ref
	Kind calls.FollowUpKind
	Date string
	Time string
}

type fakeGateway struct {
	mu sync.Mutex

	list     calls.ContactList
	rows     []calls.Record
	progress calls.Progress
	hasProg  bool

	outcomes       []calls.Record
	followUps      []followUpWrite
	notes          map[string]string
	updates        []map[string]any
	progressWrites []calls.Progress

	failOutcome  error
	failProgress error
	failNotes    error

	// notesColumn is every value written to the notes column, in order.
	notesColumn []string
	// notesStarted and notesGate, when set, hold SaveNotes until the gate is
	// closed.
	notesStarted chan struct{}
	notesGate    chan struct{}
}

func newFakeGateway(contacts int) *fakeGateway {
	list := calls.ContactList{ID: "list-1", WorkspaceID: "ws-1", Name: "Q4 leads"}
	for i := 0; i < contacts; i++ {
		list.Contacts = append(list.Contacts, calls.Contact{ID: fmt.Sprintf("c%d", i+1), Name: fmt.Sprintf("Contact %d", i+1), Phone: "+15550100"})
	}
	return &fakeGateway{list: list, notes: map[string]string{}}
}

func (f *fakeGateway) LoadContactList(ctx context.Context, workspaceID, listID string) (calls.ContactList, error) {
	if workspaceID != f.list.WorkspaceID || listID != f.list.ID {
		return calls.ContactList{}, ErrNotFound
	}
	return f.list, nil
}

func (f *fakeGateway) ListCallHistory(ctx context.Context, workspaceID, listID string) ([]calls.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calls.Record(nil), f.rows...), nil
}

func (f *fakeGateway) GetProgress(ctx context.Context, workspaceID, listID string) (calls.Progress, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.progress, f.hasProg, nil
}

func (f *fakeGateway) CountContacts(ctx context.Context, workspaceID, listID string) (int, error) {
	return len(f.list.Contacts), nil
}

func (f *fakeGateway) SaveCallOutcome(ctx context.Context, rec calls.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.outcomes = append(f.outcomes, rec)
	return f.failOutcome
}

func (f *fakeGateway) SaveFollowUp(ctx context.Context, ref calls.Ref, kind calls.FollowUpKind, date, clock string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.followUps = append(f.followUps, followUpWrite{Ref: ref, Kind: kind, Date: date, Time: clock})
	return nil
}

func (f *fakeGateway) SaveNotes(ctx context.Context, ref calls.Ref, content string) error {
	if f.notesStarted != nil {
		f.notesStarted <- struct{}{}
	}
	if f.notesGate != nil {
		<-f.notesGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNotes != nil {
		return f.failNotes
	}
	f.notes[ref.CallID] = content
	f.notesColumn = append(f.notesColumn, content)
	return nil
}

func (f *fakeGateway) UpdateCallHistoryRecord(ctx context.Context, callID string, fields map[string]any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, fields)
	if n, ok := fields["notes"].(string); ok {
		f.notesColumn = append(f.notesColumn, n)
	}
	return nil
}

func (f *fakeGateway) notesWrites() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notesColumn...)
}

func (f *fakeGateway) SaveContactListProgress(ctx context.Context, p calls.Progress) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.progressWrites = append(f.progressWrites, p)
	return f.failProgress
}

func (f *fakeGateway) savedOutcomes() []calls.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calls.Record(nil), f.outcomes...)
}

func (f *fakeGateway) savedProgress() []calls.Progress {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]calls.Progress(nil), f.progressWrites...)
}

type countingRecorder struct {
	mu       sync.Mutex
	selected map[calls.Outcome]int
	failed   map[string]int
	active   int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{selected: map[calls.Outcome]int{}, failed: map[string]int{}}
}

func (r *countingRecorder) OutcomeSelected(o calls.Outcome) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.selected[o]++
}

func (r *countingRecorder) PersistenceFailed(op string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[op]++
}

func (r *countingRecorder) FollowUpSaved(calls.FollowUpKind) {}
func (r *countingRecorder) NotesAutosaved() {}

func (r *countingRecorder) SessionsActive(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = n
}

func (r *countingRecorder) failures(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[op]
}

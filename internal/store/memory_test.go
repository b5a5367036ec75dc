package store

import (
	"context"
	"testing"

	"coldcall-platform/internal/calls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_UpsertsOneRowPerCall(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	ref := calls.Ref{CallID: "call-1", WorkspaceID: "ws-1", ListID: "list-1", ContactID: "c1"}

	require.NoError(t, m.SaveNotes(ctx, ref, "first"))
	require.NoError(t, m.SaveCallOutcome(ctx, calls.Record{CallID: "call-1", WorkspaceID: "ws-1", ListID: "list-1", ContactID: "c1", Outcome: calls.OutcomeCallback, DurationSeconds: 30}))
	require.NoError(t, m.SaveFollowUp(ctx, ref, calls.FollowUpCallback, "2026-10-20", "10:00"))

	rows, err := m.ListCallHistory(ctx, "ws-1", "list-1")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "first", rows[0].Notes)
	assert.Equal(t, calls.OutcomeCallback, rows[0].Outcome)
	assert.Equal(t, "10:00", rows[0].FollowUpTime)

	other, err := m.ListCallHistory(ctx, "ws-2", "list-1")
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestMemory_UpdateCallHistoryRecord(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	assert.ErrorIs(t, m.UpdateCallHistoryRecord(ctx, "missing", map[string]any{"notes": "x"}), ErrNotFound)

	require.NoError(t, m.SaveNotes(ctx, calls.Ref{CallID: "call-1", WorkspaceID: "ws-1", ListID: "l"}, "a"))
	require.NoError(t, m.UpdateCallHistoryRecord(ctx, "call-1", map[string]any{"notes": "a\n\nNot interested reason: b"}))
	r, ok := m.Record("call-1")
	require.True(t, ok)
	assert.Equal(t, "a\n\nNot interested reason: b", r.Notes)

	assert.ErrorIs(t, m.UpdateCallHistoryRecord(ctx, "call-1", map[string]any{"workspace_id": "x"}), ErrInvalidField)
	assert.Error(t, m.UpdateCallHistoryRecord(ctx, "call-1", map[string]any{"notes": 7}))
}

func TestMemory_ContactListAndProgress(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	m.PutContactList(calls.ContactList{ID: "list-1", WorkspaceID: "ws-1", Contacts: []calls.Contact{{ID: "c1"}, {ID: "c2"}}})

	list, err := m.LoadContactList(ctx, "ws-1", "list-1")
	require.NoError(t, err)
	assert.Len(t, list.Contacts, 2)
	_, err = m.LoadContactList(ctx, "ws-2", "list-1")
	assert.ErrorIs(t, err, ErrNotFound)

	n, err := m.CountContacts(ctx, "ws-1", "list-1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, found, err := m.GetProgress(ctx, "ws-1", "list-1")
	require.NoError(t, err)
	assert.False(t, found)
	require.NoError(t, m.SaveContactListProgress(ctx, calls.Progress{WorkspaceID: "ws-1", ListID: "list-1", CurrentIndex: 1, Skipped: 1}))
	p, found, err := m.GetProgress(ctx, "ws-1", "list-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, p.CurrentIndex)
	assert.False(t, p.UpdatedAt.IsZero())
}

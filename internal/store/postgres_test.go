package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"regexp"
	"testing"
	"time"

	"coldcall-platform/internal/calls"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 10, 14, 9, 30, 0, 0, time.UTC)

type anyTime struct{}

func (anyTime) Match(v driver.Value) bool {
	_, ok := v.(time.Time)
	return ok
}

func newTestPostgres(t *testing.T) (*Postgres, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	p := NewPostgres(db)
	p.now = func() time.Time { return fixedNow }
	return p, mock
}

func TestPostgres_LoadContactList(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM contact_lists`)).
		WithArgs("ws-1", "list-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "workspace_id", "name"}).AddRow("list-1", "ws-1", "Q4 leads"))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM contacts`)).
		WithArgs("ws-1", "list-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "company", "phone"}).
			AddRow("c1", "Ada", "Acme", "+15550101").
			AddRow("c2", "Grace", "", "+15550102"))
	mock.ExpectCommit()

	list, err := p.LoadContactList(context.Background(), "ws-1", "list-1")
	require.NoError(t, err)
	assert.Equal(t, "Q4 leads", list.Name)
	require.Len(t, list.Contacts, 2)
	assert.Equal(t, "Grace", list.Contacts[1].Name)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_LoadContactList_NotFound(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`FROM contact_lists`)).
		WithArgs("ws-1", "missing").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := p.LoadContactList(context.Background(), "ws-1", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListCallHistory(t *testing.T) {
	p, mock := newTestPostgres(t)

	cols := []string{"id", "workspace_id", "list_id", "contact_id", "user_id", "provider_call_id",
		"outcome", "duration_seconds", "notes", "follow_up_kind", "follow_up_date", "follow_up_time",
		"created_at", "updated_at"}
	mock.ExpectQuery(regexp.QuoteMeta(`FROM call_history`)).
		WithArgs("ws-1", "list-1").
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow("call-1", "ws-1", "list-1", "c1", "u-1", "CA1", "callback", 95, "ring friday", "callback", "2026-10-20", "14:30", fixedNow, fixedNow).
			AddRow("call-2", "ws-1", "list-1", "c2", "u-1", "", "", 0, "", "", "", "", fixedNow, fixedNow))

	rows, err := p.ListCallHistory(context.Background(), "ws-1", "list-1")
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, calls.OutcomeCallback, rows[0].Outcome)
	assert.Equal(t, calls.FollowUpCallback, rows[0].FollowUpKind)
	assert.Equal(t, 95, rows[0].DurationSeconds)
	assert.Empty(t, rows[1].Outcome)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetProgress(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectQuery(regexp.QuoteMeta(`FROM contact_list_progress`)).
		WithArgs("ws-1", "list-1").
		WillReturnRows(sqlmock.NewRows([]string{"workspace_id", "list_id", "current_index", "completed", "skipped", "updated_at"}).
			AddRow("ws-1", "list-1", 7, 5, 2, fixedNow))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM contact_list_progress`)).
		WithArgs("ws-1", "fresh").
		WillReturnError(sql.ErrNoRows)

	pr, found, err := p.GetProgress(context.Background(), "ws-1", "list-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 7, pr.CurrentIndex)

	_, found, err = p.GetProgress(context.Background(), "ws-1", "fresh")
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveCallOutcome_Upserts(t *testing.T) {
	p, mock := newTestPostgres(t)
	rec := calls.Record{CallID: "call-1", WorkspaceID: "ws-1", ListID: "list-1", ContactID: "c1", UserID: "u-1",
		ProviderCallID: "CA1", Outcome: calls.OutcomeSold, DurationSeconds: 240}

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO call_history`)).
		WithArgs("call-1", "ws-1", "list-1", "c1", "u-1", "CA1", "sold", 240, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, p.SaveCallOutcome(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveFollowUpAndNotes(t *testing.T) {
	p, mock := newTestPostgres(t)
	ref := calls.Ref{CallID: "call-1", WorkspaceID: "ws-1", ListID: "list-1", ContactID: "c1", UserID: "u-1"}

	mock.ExpectExec(regexp.QuoteMeta(`SET follow_up_kind = EXCLUDED.follow_up_kind`)).
		WithArgs("call-1", "ws-1", "list-1", "c1", "u-1", "meeting", "2026-11-02", "16:00", fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`SET notes = EXCLUDED.notes`)).
		WithArgs("call-1", "ws-1", "list-1", "c1", "u-1", "asked for pricing", fixedNow).
		WillReturnError(errors.New("conn reset"))

	require.NoError(t, p.SaveFollowUp(context.Background(), ref, calls.FollowUpMeeting, "2026-11-02", "16:00"))
	assert.EqualError(t, p.SaveNotes(context.Background(), ref, "asked for pricing"), "conn reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateCallHistoryRecord(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE call_history SET notes = $1, outcome = $2, updated_at = $3 WHERE id = $4`)).
		WithArgs("x\n\nNot interested reason: price", "not-interested", fixedNow, "call-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE call_history SET notes = $1, updated_at = $2 WHERE id = $3`)).
		WithArgs("y", fixedNow, "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := p.UpdateCallHistoryRecord(context.Background(), "call-1", map[string]any{
		"outcome": "not-interested",
		"notes":   "x\n\nNot interested reason: price",
	})
	require.NoError(t, err)

	err = p.UpdateCallHistoryRecord(context.Background(), "ghost", map[string]any{"notes": "y"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = p.UpdateCallHistoryRecord(context.Background(), "call-1", map[string]any{"workspace_id": "other"})
	assert.ErrorIs(t, err, ErrInvalidField)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveContactListProgress(t *testing.T) {
	p, mock := newTestPostgres(t)

	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO contact_list_progress`)).
		WithArgs("ws-1", "list-1", 4, 3, 1, anyTime{}).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := p.SaveContactListProgress(context.Background(), calls.Progress{WorkspaceID: "ws-1", ListID: "list-1", CurrentIndex: 4, Completed: 3, Skipped: 1})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CountContacts(t *testing.T) {
	p, mock := newTestPostgres(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT count(*)`)).
		WithArgs("ws-1", "list-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))

	n, err := p.CountContacts(context.Background(), "ws-1", "list-1")
	require.NoError(t, err)
	assert.Equal(t, 12, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

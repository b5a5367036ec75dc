package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"coldcall-platform/internal/calls"
	"coldcall-platform/pkg/utils"
)

var (
	ErrNotFound     = errors.New("store: not found")
	ErrInvalidField = errors.New("store: field not updatable")
)

// NOTE: Postgres assumes the tables in schema.sql exist:
// - contact_lists, contacts (position orders a list)
// - call_history (one row per call, upserted by id)
// - contact_list_progress (one row per list, upserted)

// Postgres is the Persistence Gateway over database/sql (pgx stdlib driver).
type Postgres struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db, now: time.Now}
}

// updatable maps UpdateCallHistoryRecord field names to columns.
var updatable = map[string]string{
	"notes":            "notes",
	"outcome":          "outcome",
	"duration_seconds": "duration_seconds",
	"provider_call_id": "provider_call_id",
	"follow_up_kind":   "follow_up_kind",
	"follow_up_date":   "follow_up_date",
	"follow_up_time":   "follow_up_time",
}

func (p *Postgres) LoadContactList(ctx context.Context, workspaceID, listID string) (calls.ContactList, error) {
	var list calls.ContactList
	err := utils.WithTx(ctx, p.db, &sql.TxOptions{ReadOnly: true}, func(ctx context.Context, tx *sql.Tx) error {
		const qList = `
SELECT id, workspace_id, name
FROM contact_lists
WHERE workspace_id = $1 AND id = $2
`
		if err := tx.QueryRowContext(ctx, qList, workspaceID, listID).Scan(&list.ID, &list.WorkspaceID, &list.Name); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return err
		}

		const qContacts = `
SELECT id, name, COALESCE(company, ''), phone
FROM contacts
WHERE workspace_id = $1 AND list_id = $2
ORDER BY position, id
`
		rows, err := tx.QueryContext(ctx, qContacts, workspaceID, listID)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var c calls.Contact
			if err := rows.Scan(&c.ID, &c.Name, &c.Company, &c.Phone); err != nil {
				return err
			}
			list.Contacts = append(list.Contacts, c)
		}
		return rows.Err()
	})
	if err != nil {
		return calls.ContactList{}, err
	}
	return list, nil
}

func (p *Postgres) CountContacts(ctx context.Context, workspaceID, listID string) (int, error) {
	const q = `
SELECT count(*)
FROM contacts
WHERE workspace_id = $1 AND list_id = $2
`
	var n int
	if err := p.db.QueryRowContext(ctx, q, workspaceID, listID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (p *Postgres) ListCallHistory(ctx context.Context, workspaceID, listID string) ([]calls.Record, error) {
	const q = `
SELECT id, workspace_id, list_id, contact_id, COALESCE(user_id, ''), COALESCE(provider_call_id, ''),
       COALESCE(outcome, ''), duration_seconds, COALESCE(notes, ''),
       COALESCE(follow_up_kind, ''), COALESCE(follow_up_date, ''), COALESCE(follow_up_time, ''),
       created_at, updated_at
FROM call_history
WHERE workspace_id = $1 AND list_id = $2
ORDER BY created_at, id
`
	rows, err := p.db.QueryContext(ctx, q, workspaceID, listID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]calls.Record, 0)
	for rows.Next() {
		var r calls.Record
		if err := rows.Scan(
			&r.CallID,
			&r.WorkspaceID,
			&r.ListID,
			&r.ContactID,
			&r.UserID,
			&r.ProviderCallID,
			&r.Outcome,
			&r.DurationSeconds,
			&r.Notes,
			&r.FollowUpKind,
			&r.FollowUpDate,
			&r.FollowUpTime,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (p *Postgres) GetProgress(ctx context.Context, workspaceID, listID string) (calls.Progress, bool, error) {
	const q = `
SELECT workspace_id, list_id, current_index, completed, skipped, updated_at
FROM contact_list_progress
WHERE workspace_id = $1 AND list_id = $2
`
	var pr calls.Progress
	err := p.db.QueryRowContext(ctx, q, workspaceID, listID).Scan(
		&pr.WorkspaceID,
		&pr.ListID,
		&pr.CurrentIndex,
		&pr.Completed,
		&pr.Skipped,
		&pr.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.Progress{}, false, nil
		}
		return calls.Progress{}, false, err
	}
	return pr, true, nil
}

func (p *Postgres) SaveCallOutcome(ctx context.Context, rec calls.Record) error {
	const q = `
INSERT INTO call_history (
  id, workspace_id, list_id, contact_id, user_id, provider_call_id, outcome, duration_seconds, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$9
)
ON CONFLICT (id)
DO UPDATE SET outcome = EXCLUDED.outcome,
              duration_seconds = EXCLUDED.duration_seconds,
              provider_call_id = EXCLUDED.provider_call_id,
              updated_at = EXCLUDED.updated_at
`
	_, err := p.db.ExecContext(ctx, q,
		rec.CallID,
		rec.WorkspaceID,
		rec.ListID,
		rec.ContactID,
		rec.UserID,
		rec.ProviderCallID,
		string(rec.Outcome),
		rec.DurationSeconds,
		p.now().UTC(),
	)
	return err
}

func (p *Postgres) SaveFollowUp(ctx context.Context, ref calls.Ref, kind calls.FollowUpKind, date, clock string) error {
	const q = `
INSERT INTO call_history (
  id, workspace_id, list_id, contact_id, user_id, follow_up_kind, follow_up_date, follow_up_time, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9,$9
)
ON CONFLICT (id)
DO UPDATE SET follow_up_kind = EXCLUDED.follow_up_kind,
              follow_up_date = EXCLUDED.follow_up_date,
              follow_up_time = EXCLUDED.follow_up_time,
              updated_at = EXCLUDED.updated_at
`
	_, err := p.db.ExecContext(ctx, q,
		ref.CallID,
		ref.WorkspaceID,
		ref.ListID,
		ref.ContactID,
		ref.UserID,
		string(kind),
		date,
		clock,
		p.now().UTC(),
	)
	return err
}

func (p *Postgres) SaveNotes(ctx context.Context, ref calls.Ref, content string) error {
	const q = `
INSERT INTO call_history (
  id, workspace_id, list_id, contact_id, user_id, notes, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$7
)
ON CONFLICT (id)
DO UPDATE SET notes = EXCLUDED.notes,
              updated_at = EXCLUDED.updated_at
`
	_, err := p.db.ExecContext(ctx, q,
		ref.CallID,
		ref.WorkspaceID,
		ref.ListID,
		ref.ContactID,
		ref.UserID,
		content,
		p.now().UTC(),
	)
	return err
}

// UpdateCallHistoryRecord patches an existing row. Only columns listed in
// updatable may be set.
func (p *Postgres) UpdateCallHistoryRecord(ctx context.Context, callID string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if _, ok := updatable[k]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidField, k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sets := make([]string, 0, len(keys)+1)
	args := make([]any, 0, len(keys)+2)
	for i, k := range keys {
		sets = append(sets, fmt.Sprintf("%s = $%d", updatable[k], i+1))
		args = append(args, fields[k])
	}
	sets = append(sets, fmt.Sprintf("updated_at = $%d", len(keys)+1))
	args = append(args, p.now().UTC(), callID)

	q := fmt.Sprintf("UPDATE call_history SET %s WHERE id = $%d", strings.Join(sets, ", "), len(keys)+2)
	res, err := p.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) SaveContactListProgress(ctx context.Context, pr calls.Progress) error {
	updatedAt := pr.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = p.now().UTC()
	}
	const q = `
INSERT INTO contact_list_progress (workspace_id, list_id, current_index, completed, skipped, updated_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (workspace_id, list_id)
DO UPDATE SET current_index = EXCLUDED.current_index,
              completed = EXCLUDED.completed,
              skipped = EXCLUDED.skipped,
              updated_at = EXCLUDED.updated_at
`
	_, err := p.db.ExecContext(ctx, q,
		pr.WorkspaceID,
		pr.ListID,
		pr.CurrentIndex,
		pr.Completed,
		pr.Skipped,
		updatedAt,
	)
	return err
}

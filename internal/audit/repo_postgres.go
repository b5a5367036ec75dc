package audit

import (
	"context"
	"database/sql"
)

// PostgresRepo appends to audit_events.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	// NOTE: Tables used: audit_events
	const q = `
INSERT INTO audit_events (id, workspace_id, type, actor_user_id, actor_role, ip_address, session_id, call_id, message, metadata, created_at)
VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''), NULLIF($8, ''), NULLIF($9, ''), NULLIF($10, '')::jsonb, $11)
`
	_, err := r.db.ExecContext(ctx, q,
		e.ID, e.WorkspaceID, string(e.Type),
		e.ActorUserID, e.ActorRole, e.IPAddress,
		e.SessionID, e.CallID, e.Message, e.Metadata,
		e.CreatedAt,
	)
	return err
}

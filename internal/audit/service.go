package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"coldcall-platform/internal/calls"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
// It is append-only: no Update/Delete methods exist.
type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records internal audit information. Callers treat it as
// best-effort.
type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.WorkspaceID == "" || e.Type == "" {
		return ErrInvalidEvent
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.clock().UTC()
	}
	return s.repo.Append(ctx, e)
}

// LogOutcomeChanged records a re-selected outcome on one call.
func (s *Service) LogOutcomeChanged(ctx context.Context, workspaceID string, actor Actor, sessionID, callID string, from, to calls.Outcome) error {
	meta, _ := json.Marshal(map[string]string{"from": string(from), "to": string(to)})
	return s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeOutcomeChanged,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		SessionID:   sessionID,
		CallID:      callID,
		Message:     "outcome changed from " + string(from) + " to " + string(to),
		Metadata:    string(meta),
	})
}

func (s *Service) LogSessionClosed(ctx context.Context, workspaceID string, actor Actor, sessionID string) error {
	return s.Append(ctx, Event{
		WorkspaceID: workspaceID,
		Type:        EventTypeSessionClosed,
		ActorUserID: actor.UserID,
		ActorRole:   actor.Role,
		IPAddress:   actor.IP,
		SessionID:   sessionID,
		Message:     "session closed",
	})
}

package reporting

import (
	"context"
	"errors"

	"coldcall-platform/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts the call-history reads reporting needs.
//
// Implementations must filter by workspace.
type Repository interface {
	ListCallHistory(ctx context.Context, workspaceID, listID string) ([]calls.Record, error)
	GetProgress(ctx context.Context, workspaceID, listID string) (calls.Progress, bool, error)
	CountContacts(ctx context.Context, workspaceID, listID string) (int, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

type ListStatsRequest struct {
	WorkspaceID string `json:"workspace_id"`
	ListID      string `json:"list_id"`
}

// ListStats rebuilds the session read model of a list from durable rows.
func (s *Service) ListStats(ctx context.Context, req ListStatsRequest) (Stats, error) {
	if req.WorkspaceID == "" || req.ListID == "" {
		return Stats{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return Stats{}, errors.New("reporting: repository not configured")
	}

	total, err := s.repo.CountContacts(ctx, req.WorkspaceID, req.ListID)
	if err != nil {
		return Stats{}, err
	}
	rows, err := s.repo.ListCallHistory(ctx, req.WorkspaceID, req.ListID)
	if err != nil {
		return Stats{}, err
	}
	progress, _, err := s.repo.GetProgress(ctx, req.WorkspaceID, req.ListID)
	if err != nil {
		return Stats{}, err
	}
	return Rebuild(total, rows, progress.Skipped), nil
}

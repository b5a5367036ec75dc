package audit

import (
	"context"
	"errors"
	"sync"
)

var ErrDuplicateEvent = errors.New("audit: duplicate event id")

// MemoryRepo keeps a process-local trail per workspace. Event IDs are unique
// like the audit_events primary key. Used for local runs and tests.
type MemoryRepo struct {
	mu          sync.Mutex
	ids         map[string]struct{}
	byWorkspace map[string][]Event
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{ids: map[string]struct{}{}, byWorkspace: map[string][]Event{}}
}

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.ids[e.ID]; dup {
		return ErrDuplicateEvent
	}
	r.ids[e.ID] = struct{}{}
	r.byWorkspace[e.WorkspaceID] = append(r.byWorkspace[e.WorkspaceID], e)
	return nil
}

// List returns the workspace trail in append order. A non-empty sessionID
// narrows it to that session.
func (r *MemoryRepo) List(workspaceID, sessionID string) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, e := range r.byWorkspace[workspaceID] {
		if sessionID != "" && e.SessionID != sessionID {
			continue
		}
		out = append(out, e)
	}
	return out
}

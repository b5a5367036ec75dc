package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"coldcall-platform/internal/calls"
)

// Memory is an in-process gateway for local runs and handler tests.
type Memory struct {
	mu       sync.RWMutex
	lists    map[string]calls.ContactList
	history  map[string]calls.Record
	progress map[string]calls.Progress
	now      func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		lists:    map[string]calls.ContactList{},
		history:  map[string]calls.Record{},
		progress: map[string]calls.Progress{},
		now:      time.Now,
	}
}

func listKey(workspaceID, listID string) string { return workspaceID + "/" + listID }

// PutContactList seeds a list.
func (m *Memory) PutContactList(list calls.ContactList) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list.Contacts = append([]calls.Contact(nil), list.Contacts...)
	m.lists[listKey(list.WorkspaceID, list.ID)] = list
}

func (m *Memory) LoadContactList(ctx context.Context, workspaceID, listID string) (calls.ContactList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list, ok := m.lists[listKey(workspaceID, listID)]
	if !ok {
		return calls.ContactList{}, ErrNotFound
	}
	list.Contacts = append([]calls.Contact(nil), list.Contacts...)
	return list, nil
}

func (m *Memory) CountContacts(ctx context.Context, workspaceID, listID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lists[listKey(workspaceID, listID)].Contacts), nil
}

func (m *Memory) ListCallHistory(ctx context.Context, workspaceID, listID string) ([]calls.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]calls.Record, 0)
	for _, r := range m.history {
		if r.WorkspaceID == workspaceID && r.ListID == listID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CallID < out[j].CallID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) GetProgress(ctx context.Context, workspaceID, listID string) (calls.Progress, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[listKey(workspaceID, listID)]
	return p, ok, nil
}

// upsert applies fn to the row for ref, creating it first if needed.
func (m *Memory) upsert(ref calls.Ref, fn func(*calls.Record)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now().UTC()
	r, ok := m.history[ref.CallID]
	if !ok {
		r = calls.Record{
			CallID:      ref.CallID,
			WorkspaceID: ref.WorkspaceID,
			ListID:      ref.ListID,
			ContactID:   ref.ContactID,
			UserID:      ref.UserID,
			CreatedAt:   now,
		}
	}
	fn(&r)
	r.UpdatedAt = now
	m.history[ref.CallID] = r
}

func (m *Memory) SaveCallOutcome(ctx context.Context, rec calls.Record) error {
	m.upsert(rec.Ref(), func(r *calls.Record) {
		r.Outcome = rec.Outcome
		r.DurationSeconds = rec.DurationSeconds
		r.ProviderCallID = rec.ProviderCallID
	})
	return nil
}

func (m *Memory) SaveFollowUp(ctx context.Context, ref calls.Ref, kind calls.FollowUpKind, date, clock string) error {
	m.upsert(ref, func(r *calls.Record) {
		r.FollowUpKind = kind
		r.FollowUpDate = date
		r.FollowUpTime = clock
	})
	return nil
}

func (m *Memory) SaveNotes(ctx context.Context, ref calls.Ref, content string) error {
	m.upsert(ref, func(r *calls.Record) { r.Notes = content })
	return nil
}

func (m *Memory) UpdateCallHistoryRecord(ctx context.Context, callID string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.history[callID]
	if !ok {
		return ErrNotFound
	}
	for k, v := range fields {
		if _, ok := updatable[k]; !ok {
			return fmt.Errorf("%w: %s", ErrInvalidField, k)
		}
		if err := setField(&r, k, v); err != nil {
			return err
		}
	}
	r.UpdatedAt = m.now().UTC()
	m.history[callID] = r
	return nil
}

func setField(r *calls.Record, field string, v any) error {
	switch field {
	case "duration_seconds":
		n, ok := v.(int)
		if !ok {
			return fmt.Errorf("store: %s must be int, got %T", field, v)
		}
		r.DurationSeconds = n
		return nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Errorf("store: %s must be string, got %T", field, v)
	}
	switch field {
	case "notes":
		r.Notes = s
	case "outcome":
		r.Outcome = calls.Outcome(s)
	case "provider_call_id":
		r.ProviderCallID = s
	case "follow_up_kind":
		r.FollowUpKind = calls.FollowUpKind(s)
	case "follow_up_date":
		r.FollowUpDate = s
	case "follow_up_time":
		r.FollowUpTime = s
	}
	return nil
}

func (m *Memory) SaveContactListProgress(ctx context.Context, p calls.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = m.now().UTC()
	}
	m.progress[listKey(p.WorkspaceID, p.ListID)] = p
	return nil
}

// Record returns one call-history row.
func (m *Memory) Record(callID string) (calls.Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.history[callID]
	return r, ok
}

package session

import (
	"time"

	"coldcall-platform/internal/calls"
	"coldcall-platform/internal/followup"
	"coldcall-platform/internal/notes"
	"coldcall-platform/internal/reporting"
)

// View is what the calling screen renders.
type View struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	UserID      string `json:"user_id"`
	ListID      string `json:"list_id"`
	ListName    string `json:"list_name,omitempty"`

	Cursor  int            `json:"cursor"`
	Contact *calls.Contact `json:"contact,omitempty"`

	Phase           Phase         `json:"phase"`
	CallID          string        `json:"call_id"`
	ProviderCallID  string        `json:"provider_call_id,omitempty"`
	Outcome         calls.Outcome `json:"outcome,omitempty"`
	DurationSeconds int           `json:"duration_seconds"`

	Stats    reporting.Summary  `json:"stats"`
	FollowUp *followup.Snapshot `json:"follow_up,omitempty"`
	Notes    notes.Snapshot     `json:"notes"`
	ReadOnly bool               `json:"read_only"`
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		ID:              s.id,
		WorkspaceID:     s.workspaceID,
		UserID:          s.userID,
		ListID:          s.list.ID,
		ListName:        s.list.Name,
		Cursor:          s.cursor,
		Phase:           s.phase,
		CallID:          s.call.CallID,
		ProviderCallID:  s.call.ProviderCallID,
		Outcome:         s.call.Outcome,
		DurationSeconds: s.call.DurationSeconds,
		Stats:           s.stats.Summary(),
		ReadOnly:        s.opts.ReadOnly,
	}
	if c, ok := s.contactLocked(); ok {
		v.Contact = &c
	}
	if s.followUp != nil {
		fu := s.followUp.Snapshot()
		v.FollowUp = &fu
	}
	if s.notes != nil {
		v.Notes = s.notes.Snapshot()
	}
	return v
}

func (s *Session) Stats() reporting.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// State is the rehydration snapshot of a session. Stats are not part of it:
// they are rebuilt from call history.
type State struct {
	ID              string        `json:"id"`
	WorkspaceID     string        `json:"workspace_id"`
	UserID          string        `json:"user_id"`
	ListID          string        `json:"list_id"`
	Cursor          int           `json:"cursor"`
	CallID          string        `json:"call_id"`
	ProviderCallID  string        `json:"provider_call_id,omitempty"`
	Phase           Phase         `json:"phase"`
	Outcome         calls.Outcome `json:"outcome,omitempty"`
	DurationSeconds int           `json:"duration_seconds"`
	Notes           string        `json:"notes,omitempty"`
	ReadOnly        bool          `json:"read_only"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := State{
		ID:              s.id,
		WorkspaceID:     s.workspaceID,
		UserID:          s.userID,
		ListID:          s.list.ID,
		Cursor:          s.cursor,
		CallID:          s.call.CallID,
		ProviderCallID:  s.call.ProviderCallID,
		Phase:           s.phase,
		Outcome:         s.call.Outcome,
		DurationSeconds: s.call.DurationSeconds,
		ReadOnly:        s.opts.ReadOnly,
		UpdatedAt:       s.opts.Clock.Now().UTC(),
	}
	if s.notes != nil {
		st.Notes = s.notes.Content()
	}
	return st
}

// Restore rebuilds a session from its snapshot. base must be rebuilt from call
// history without the snapshot's own call; its outcome is counted here.
// current is the durable row of the snapshot's call, nil when none was
// written yet. Its notes and saved follow-up win over the snapshot.
func Restore(st State, current *calls.Record, list calls.ContactList, base reporting.Stats, gw Gateway, opts Options) *Session {
	opts.ReadOnly = st.ReadOnly
	s := New(Info{ID: st.ID, WorkspaceID: st.WorkspaceID, UserID: st.UserID, List: list, Cursor: st.Cursor}, base, gw, opts)

	s.mu.Lock()
	defer s.mu.Unlock()
	draft := st.Notes
	if current != nil {
		draft = current.Notes
	}
	if st.CallID != "" {
		s.notes.Dispose()
		s.beginContactLocked(st.CallID, draft)
	}
	s.call.ProviderCallID = st.ProviderCallID
	s.call.DurationSeconds = st.DurationSeconds
	s.phase = st.Phase

	if st.Outcome == "" {
		switch {
		case s.callEndedLocked():
			s.phase = PhaseEnded
		case s.phase != PhaseInCall:
			s.phase = PhaseIdle
		}
		return s
	}
	next, err := reporting.ApplyOutcome(s.stats, st.Outcome, st.DurationSeconds)
	if err != nil {
		s.log.Warn("restored outcome not counted", "outcome", string(st.Outcome), "err", err)
		s.phase = PhaseEnded
		return s
	}
	if s.phase != PhaseFollowUpScheduled {
		s.phase = PhaseOutcomeSelected
	}
	s.stats = next
	s.counted = true
	s.call.Outcome = st.Outcome
	s.syncFollowUpLocked("", st.Outcome)
	if current != nil && s.followUp != nil && current.FollowUpKind == s.followUp.Kind() {
		s.followUp.Load(current.FollowUpDate, current.FollowUpTime)
	}
	return s
}

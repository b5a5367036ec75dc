package calls

import "time"

// Record is one call-history row: the durable trace of a single dial to a
// contact inside a list.
//
// Multi-tenant invariant: WorkspaceID is required on every row.
// Outcome is empty until the caller selects one; re-selection overwrites it.
type Record struct {
	CallID      string `json:"call_id" db:"id"`
	WorkspaceID string `json:"workspace_id" db:"workspace_id"`
	ListID      string `json:"list_id" db:"list_id"`
	ContactID   string `json:"contact_id" db:"contact_id"`
	UserID      string `json:"user_id,omitempty" db:"user_id"`

	// ProviderCallID is the telephony provider's identifier (e.g. Twilio CallSid).
	ProviderCallID string `json:"provider_call_id,omitempty" db:"provider_call_id"`

	Outcome         Outcome `json:"outcome,omitempty" db:"outcome"`
	DurationSeconds int     `json:"duration_seconds" db:"duration_seconds"`
	Notes           string  `json:"notes,omitempty" db:"notes"`

	// FollowUpKind/Date/Time are set once a callback or meeting is saved.
	// Date is YYYY-MM-DD, Time is HH:MM; no timezone is stored.
	FollowUpKind FollowUpKind `json:"follow_up_kind,omitempty" db:"follow_up_kind"`
	FollowUpDate string       `json:"follow_up_date,omitempty" db:"follow_up_date"`
	FollowUpTime string       `json:"follow_up_time,omitempty" db:"follow_up_time"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Ref identifies the call-history row a save targets. Rows are upserted, so a
// ref is enough to create the row on first write.
type Ref struct {
	CallID      string `json:"call_id"`
	WorkspaceID string `json:"workspace_id"`
	ListID      string `json:"list_id"`
	ContactID   string `json:"contact_id"`
	UserID      string `json:"user_id,omitempty"`
}

func (r Record) Ref() Ref {
	return Ref{CallID: r.CallID, WorkspaceID: r.WorkspaceID, ListID: r.ListID, ContactID: r.ContactID, UserID: r.UserID}
}

// Contact is a dialable entry of a contact list.
type Contact struct {
	ID      string `json:"id" db:"id"`
	Name    string `json:"name" db:"name"`
	Company string `json:"company,omitempty" db:"company"`
	Phone   string `json:"phone" db:"phone"`
}

// ContactList is an ordered list of contacts plus the last saved position.
type ContactList struct {
	ID          string    `json:"id" db:"id"`
	WorkspaceID string    `json:"workspace_id" db:"workspace_id"`
	Name        string    `json:"name" db:"name"`
	Contacts    []Contact `json:"contacts"`
}

// Progress is the per-list cursor persisted after each saved outcome.
type Progress struct {
	WorkspaceID  string    `json:"workspace_id" db:"workspace_id"`
	ListID       string    `json:"list_id" db:"list_id"`
	CurrentIndex int       `json:"current_index" db:"current_index"`
	Completed    int       `json:"completed" db:"completed"`
	Skipped      int       `json:"skipped" db:"skipped"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

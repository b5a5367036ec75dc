package apperr

import (
	"errors"
	"fmt"
)

// ValidationError is a local, user-facing rejection. It never reaches the
// persistence gateway and leaves state unchanged.
type ValidationError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s: %s", e.Code, e.Message)
}

// PersistenceError wraps a gateway failure. Message is safe to show to users
// and always invites a retry.
type PersistenceError struct {
	Op      string `json:"op"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

func (e *PersistenceError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("persistence: %s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("persistence: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError. nil stays nil.
func Persistence(op, message string, err error) error {
	if err == nil {
		return nil
	}
	return &PersistenceError{Op: op, Message: message, Err: err}
}

var (
	ErrOutcomeBeforeCallEnded = &ValidationError{Code: "outcome_before_call_ended", Message: "End the call before selecting an outcome."}
	ErrMissingFields          = &ValidationError{Code: "missing_fields", Message: "Please select both date and time."}
	ErrUnknownOutcome         = &ValidationError{Code: "unknown_outcome", Message: "Unknown call outcome."}
	ErrNoActiveCall           = &ValidationError{Code: "no_active_call", Message: "There is no call in progress."}
	ErrCallInProgress         = &ValidationError{Code: "call_in_progress", Message: "Finish the current call first."}
	ErrCallAlreadyEnded       = &ValidationError{Code: "call_already_ended", Message: "This call has ended; select an outcome."}
	ErrOutcomeRequired        = &ValidationError{Code: "outcome_required", Message: "Select an outcome before moving on."}
	ErrOutcomeAlreadySelected = &ValidationError{Code: "outcome_already_selected", Message: "This contact already has an outcome; use next instead."}
	ErrNotInterestedOnly      = &ValidationError{Code: "not_interested_only", Message: "A reason can only be attached to a not-interested outcome."}
	ErrNoFollowUp             = &ValidationError{Code: "no_follow_up", Message: "The selected outcome has no follow-up to schedule."}
	ErrListExhausted          = &ValidationError{Code: "list_exhausted", Message: "Every contact in this list has been handled."}
	ErrReadOnly               = &ValidationError{Code: "read_only", Message: "This session is read-only."}
	ErrCalendarIntegrated     = &ValidationError{Code: "calendar_integrated", Message: "Your calendar is connected; this follow-up is added automatically."}

	// ErrBusy means the same action is already in flight. Callers treat it as
	// "ignored", not as a failure.
	ErrBusy = errors.New("action already in progress")
)

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsPersistence reports whether err is or wraps a PersistenceError.
func IsPersistence(err error) bool {
	var p *PersistenceError
	return errors.As(err, &p)
}

// UserMessage returns the text to surface for err, if any.
func UserMessage(err error) string {
	var v *ValidationError
	if errors.As(err, &v) {
		return v.Message
	}
	var p *PersistenceError
	if errors.As(err, &p) {
		return p.Message
	}
	return ""
}

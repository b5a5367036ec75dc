package telephony

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// CallStatus is Twilio's CallStatus value.
// Ref: https://www.twilio.com/docs/voice/api/call-resource#call-status-values
type CallStatus string

const (
	StatusQueued     CallStatus = "queued"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in-progress"
	StatusCompleted  CallStatus = "completed"
	StatusBusy       CallStatus = "busy"
	StatusNoAnswer   CallStatus = "no-answer"
	StatusFailed     CallStatus = "failed"
	StatusCanceled   CallStatus = "canceled"
)

// Terminal reports whether the call is over.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusBusy, StatusNoAnswer, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// StatusCallback is the subset of status callback fields we act on.
// Twilio sends application/x-www-form-urlencoded.
type StatusCallback struct {
	CallSid         string
	AccountSid      string
	CallStatus      CallStatus
	DurationSeconds int
}

var ErrMissingCallSid = errors.New("telephony: CallSid is required")

func ParseStatusCallback(r *http.Request) (StatusCallback, error) {
	if err := r.ParseForm(); err != nil {
		return StatusCallback{}, err
	}
	cb := StatusCallback{
		CallSid:    strings.TrimSpace(r.PostFormValue("CallSid")),
		AccountSid: strings.TrimSpace(r.PostFormValue("AccountSid")),
		CallStatus: CallStatus(strings.ToLower(strings.TrimSpace(r.PostFormValue("CallStatus")))),
	}
	if cb.CallSid == "" {
		return StatusCallback{}, ErrMissingCallSid
	}
	// CallDuration only accompanies completed calls; absent means 0.
	if raw := strings.TrimSpace(r.PostFormValue("CallDuration")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return StatusCallback{}, fmt.Errorf("telephony: CallDuration %q: %w", raw, err)
		}
		cb.DurationSeconds = n
	}
	return cb, nil
}

package calls

import "strings"

// Outcome is the categorical result of a completed call. The set is closed;
// anything else is rejected by ParseOutcome.
type Outcome string

const (
	OutcomeMeetingScheduled Outcome = "meeting-scheduled"
	OutcomeNoAnswer         Outcome = "no-answer"
	OutcomeNotInterested    Outcome = "not-interested"
	OutcomeCallback         Outcome = "callback"
	OutcomeGatekeeper       Outcome = "gatekeeper"
	OutcomeInterested       Outcome = "interested"
	OutcomePositive         Outcome = "positive"
	OutcomeNeutral          Outcome = "neutral"
	OutcomeNegative         Outcome = "negative"
	OutcomeBusy             Outcome = "busy"
	OutcomeLeftVoicemail    Outcome = "left-voicemail"
	OutcomeWrongNumber      Outcome = "wrong-number"
	OutcomeNotAvailable     Outcome = "not-available"
	OutcomeSold             Outcome = "sold"
	OutcomeDoNotCall        Outcome = "do-not-call"
)

var allOutcomes = []Outcome{
	OutcomeMeetingScheduled,
	OutcomeNoAnswer,
	OutcomeNotInterested,
	OutcomeCallback,
	OutcomeGatekeeper,
	OutcomeInterested,
	OutcomePositive,
	OutcomeNeutral,
	OutcomeNegative,
	OutcomeBusy,
	OutcomeLeftVoicemail,
	OutcomeWrongNumber,
	OutcomeNotAvailable,
	OutcomeSold,
	OutcomeDoNotCall,
}

// AllOutcomes returns every valid outcome in display order.
func AllOutcomes() []Outcome {
	out := make([]Outcome, len(allOutcomes))
	copy(out, allOutcomes)
	return out
}

// Valid reports whether o belongs to the closed set.
func (o Outcome) Valid() bool {
	for _, v := range allOutcomes {
		if v == o {
			return true
		}
	}
	return false
}

// ParseOutcome normalizes and validates a raw tag.
func ParseOutcome(raw string) (Outcome, bool) {
	o := Outcome(strings.ToLower(strings.TrimSpace(raw)))
	if !o.Valid() {
		return "", false
	}
	return o, true
}

// FollowUpKind is the kind of scheduled action an outcome opens, if any.
type FollowUpKind string

const (
	FollowUpCallback FollowUpKind = "callback"
	FollowUpMeeting  FollowUpKind = "meeting"
)

// FollowUp returns the follow-up kind the outcome requires.
func (o Outcome) FollowUp() (FollowUpKind, bool) {
	switch o {
	case OutcomeCallback:
		return FollowUpCallback, true
	case OutcomeMeetingScheduled:
		return FollowUpMeeting, true
	default:
		return "", false
	}
}

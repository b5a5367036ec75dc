package reporting

import (
	"coldcall-platform/internal/apperr"
	"coldcall-platform/internal/calls"
)

// counters maps every outcome to the bucket it increments. TestCountersCoverAllOutcomes
// fails when an outcome is added without a bucket.
var counters = map[calls.Outcome]func(*Stats) *int{
	calls.OutcomeMeetingScheduled: func(s *Stats) *int { return &s.MeetingsScheduled },
	calls.OutcomeNoAnswer:         func(s *Stats) *int { return &s.NoAnswers },
	calls.OutcomeNotInterested:    func(s *Stats) *int { return &s.ContactsNotInterested },
	calls.OutcomeCallback:         func(s *Stats) *int { return &s.Callbacks },
	calls.OutcomeGatekeeper:       func(s *Stats) *int { return &s.Gatekeepers },
	calls.OutcomeInterested:       func(s *Stats) *int { return &s.ContactsInterested },
	calls.OutcomePositive:         func(s *Stats) *int { return &s.Positives },
	calls.OutcomeNeutral:          func(s *Stats) *int { return &s.Neutrals },
	calls.OutcomeNegative:         func(s *Stats) *int { return &s.Negatives },
	calls.OutcomeBusy:             func(s *Stats) *int { return &s.Busy },
	calls.OutcomeLeftVoicemail:    func(s *Stats) *int { return &s.LeftVoicemails },
	calls.OutcomeWrongNumber:      func(s *Stats) *int { return &s.WrongNumbers },
	calls.OutcomeNotAvailable:     func(s *Stats) *int { return &s.NotAvailable },
	calls.OutcomeSold:             func(s *Stats) *int { return &s.Sold },
	calls.OutcomeDoNotCall:        func(s *Stats) *int { return &s.DoNotCall },
}

// ApplyOutcome counts one completed call. It is pure: stats is a value and the
// caller's copy is never touched. Applying twice for one call double-counts;
// use ReplaceOutcome when the outcome of an already counted call changes.
func ApplyOutcome(stats Stats, outcome calls.Outcome, callDurationSeconds int) (Stats, error) {
	bucket, ok := counters[outcome]
	if !ok {
		return stats, apperr.ErrUnknownOutcome
	}
	if stats.TotalContacts > 0 && stats.ContactsCompleted+stats.ContactsSkipped >= stats.TotalContacts {
		return stats, apperr.ErrListExhausted
	}
	if callDurationSeconds < 0 {
		callDurationSeconds = 0
	}

	out := stats
	out.ContactsCompleted++
	out.TotalCallTime += callDurationSeconds
	*bucket(&out)++
	return out, nil
}

// ReplaceOutcome moves one already counted call from the old bucket to the new
// one. Completed count and call time are left alone.
func ReplaceOutcome(stats Stats, old, next calls.Outcome) (Stats, error) {
	oldBucket, ok := counters[old]
	if !ok {
		return stats, apperr.ErrUnknownOutcome
	}
	newBucket, ok := counters[next]
	if !ok {
		return stats, apperr.ErrUnknownOutcome
	}
	if old == next {
		return stats, nil
	}

	out := stats
	if p := oldBucket(&out); *p > 0 {
		*p--
	}
	*newBucket(&out)++
	return out, nil
}

// ApplySkip counts a contact passed over without a completed call.
func ApplySkip(stats Stats) (Stats, error) {
	if stats.TotalContacts > 0 && stats.ContactsCompleted+stats.ContactsSkipped >= stats.TotalContacts {
		return stats, apperr.ErrListExhausted
	}
	out := stats
	out.ContactsSkipped++
	return out, nil
}

// Rebuild reconstructs Stats from call-history rows. Rows without an outcome
// (calls abandoned before one was chosen) are not counted. Skips leave no
// call-history row, so the persisted skip count is passed in.
func Rebuild(totalContacts int, rows []calls.Record, skipped int) Stats {
	s := Stats{TotalContacts: totalContacts, ContactsSkipped: skipped}
	for _, r := range rows {
		bucket, ok := counters[r.Outcome]
		if !ok {
			continue
		}
		s.ContactsCompleted++
		if r.DurationSeconds > 0 {
			s.TotalCallTime += r.DurationSeconds
		}
		*bucket(&s)++
	}
	return s
}

package reporting

import (
	"math"
	"strconv"
)

// Stats is the running read model of one calling session. It is never stored
// as a row: Rebuild derives it from call-history rows at any time.
//
// Invariant: ContactsCompleted + ContactsSkipped <= TotalContacts.
type Stats struct {
	TotalContacts         int `json:"total_contacts"`
	ContactsCompleted     int `json:"contacts_completed"`
	ContactsSkipped       int `json:"contacts_skipped"`
	ContactsInterested    int `json:"contacts_interested"`
	ContactsNotInterested int `json:"contacts_not_interested"`
	Callbacks             int `json:"callbacks"`
	MeetingsScheduled     int `json:"meetings_scheduled"`
	NoAnswers             int `json:"no_answers"`
	WrongNumbers          int `json:"wrong_numbers"`
	Gatekeepers           int `json:"gatekeepers"`
	Positives             int `json:"positives"`
	Neutrals              int `json:"neutrals"`
	Negatives             int `json:"negatives"`
	Busy                  int `json:"busy"`
	LeftVoicemails        int `json:"left_voicemails"`
	NotAvailable          int `json:"not_available"`
	Sold                  int `json:"sold"`
	DoNotCall             int `json:"do_not_call"`

	// TotalCallTime is in seconds.
	TotalCallTime int `json:"total_call_time"`
}

// ProgressPct is the share of handled contacts, rounded and capped at 100.
func (s Stats) ProgressPct() int {
	if s.TotalContacts <= 0 {
		return 0
	}
	pct := float64(s.ContactsCompleted+s.ContactsSkipped) / float64(s.TotalContacts) * 100
	return int(math.Round(math.Min(100, pct)))
}

// ConversionRate is meetings per completed call, in percent.
func (s Stats) ConversionRate() float64 {
	if s.ContactsCompleted == 0 {
		return 0
	}
	return float64(s.MeetingsScheduled) / float64(s.ContactsCompleted) * 100
}

// FormatConversionRate renders ConversionRate with one decimal, e.g. "12.5".
func (s Stats) FormatConversionRate() string {
	return strconv.FormatFloat(s.ConversionRate(), 'f', 1, 64)
}

func (s Stats) PositiveCalls() int {
	return s.ContactsInterested + s.Positives + s.MeetingsScheduled
}

// Summary is Stats plus its derived values, for display.
type Summary struct {
	Stats
	ProgressPct    int    `json:"progress_pct"`
	ConversionRate string `json:"conversion_rate"`
	PositiveCalls  int    `json:"positive_calls"`
}

func (s Stats) Summary() Summary {
	return Summary{
		Stats:          s,
		ProgressPct:    s.ProgressPct(),
		ConversionRate: s.FormatConversionRate(),
		PositiveCalls:  s.PositiveCalls(),
	}
}

package session

import "strings"

const (
	notInterestedLabel = "Not interested reason: "
	noReasonProvided   = "No reason provided"
)

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// NotInterestedNotes appends the labelled reason to existing notes. A reason
// line already at the end of the notes is replaced, so the label appears
// once. A blank reason is stored as "No reason provided"; without prior notes
// the label line stands alone.
func NotInterestedNotes(existing, reason string) string {
	reason = strings.TrimSpace(lineBreaks.Replace(reason))
	if reason == "" {
		reason = noReasonProvided
	}
	line := notInterestedLabel + reason
	existing = withoutReason(existing)
	if strings.TrimSpace(existing) == "" {
		return line
	}
	return existing + "\n\n" + line
}

// withoutReason drops a trailing reason line. Reasons are kept on one line,
// so the last line is the whole reason.
func withoutReason(notes string) string {
	head, last := "", notes
	if i := strings.LastIndex(notes, "\n"); i >= 0 {
		head, last = notes[:i], notes[i+1:]
	}
	if !strings.HasPrefix(last, notInterestedLabel) {
		return notes
	}
	return strings.TrimRight(head, "\r\n")
}

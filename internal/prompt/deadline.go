package prompt

import (
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

const (
	// PlaceholderMissingDate stands in for a deadline when no closing-meeting
	// date is known.
	PlaceholderMissingDate = "[date not provided, use a placeholder]"
	// PlaceholderInvalidDate stands in for a deadline when the closing-meeting
	// date cannot be parsed.
	PlaceholderInvalidDate = "[date calculation error]"
)

// Calendar-day offsets from the closing meeting.
const (
	OffsetContainment            = 2
	OffsetEvidence               = 5
	OffsetRootCause              = 8
	OffsetRootCauseImpact        = 9
	OffsetLateralRollout         = 16
	OffsetRootCauseResult        = 9
	OffsetCorrectiveAction       = 11
	OffsetImplementationEvidence = 26
	OffsetVerificationStart      = 29
	OffsetVerificationEnd        = 31
)

var inputLayouts = []string{
	dateLayout,
	time.RFC3339,
	"2006/01/02",
	"2006.01.02",
	"2006-1-2",
}

// ParseDate reads a closing-meeting date. Only the calendar date is kept.
func ParseDate(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range inputLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// Deadline adds offset calendar days to closingDate and formats the result as
// YYYY-MM-DD. It never fails: a blank date yields PlaceholderMissingDate and
// an unparsable one PlaceholderInvalidDate.
func Deadline(closingDate string, offset int) string {
	if strings.TrimSpace(closingDate) == "" {
		return PlaceholderMissingDate
	}
	t, ok := ParseDate(closingDate)
	if !ok {
		return PlaceholderInvalidDate
	}
	return t.AddDate(0, 0, offset).Format(dateLayout)
}

// Milestone is one computed due date.
type Milestone struct {
	Section    Section
	Label      string
	OffsetDays int
	Date       string
}

// Schedule lists every deadline derived from closingDate in workflow order.
// All dates are offsets from the closing meeting, including steps that in
// practice depend on the previous step finishing.
func Schedule(closingDate string) []Milestone {
	entries := []struct {
		section Section
		label   string
		offset  int
	}{
		{SectionContainment, "S1 containment", OffsetContainment},
		{SectionEvidence, "S2 implementation evidence", OffsetEvidence},
		{SectionRootCause, "S3 root cause analysis", OffsetRootCause},
		{SectionRootCauseImpact, "Impact analysis", OffsetRootCauseImpact},
		{SectionRootCauseImpact, "Lateral roll-out", OffsetLateralRollout},
		{SectionRootCauseResult, "S4 root cause result", OffsetRootCauseResult},
		{SectionCorrectiveAction, "S5 systemic corrective action", OffsetCorrectiveAction},
		{SectionImplementationEvidence, "S6 implementation evidence", OffsetImplementationEvidence},
		{SectionVerification, "S7 verification window opens", OffsetVerificationStart},
		{SectionVerification, "S7 verification window closes", OffsetVerificationEnd},
	}
	out := make([]Milestone, 0, len(entries))
	for _, e := range entries {
		out = append(out, Milestone{
			Section:    e.section,
			Label:      e.label,
			OffsetDays: e.offset,
			Date:       Deadline(closingDate, e.offset),
		})
	}
	return out
}

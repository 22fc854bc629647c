package prompt

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownSection is returned by ParseSection for unrecognised tags.
var ErrUnknownSection = errors.New("unknown section")

// Section selects which part of the corrective-action response is drafted.
type Section string

const (
	SectionContainment            Section = "containment"
	SectionEvidence               Section = "evidence"
	SectionRootCause              Section = "root-cause"
	SectionRootCauseImpact        Section = "root-cause-impact"
	SectionRootCauseResult        Section = "root-cause-result"
	SectionCorrectiveAction       Section = "corrective-action"
	SectionImplementationEvidence Section = "implementation-evidence"
	SectionVerification           Section = "verification"
	SectionAuditorReview          Section = "auditor-review"
)

type sectionMeta struct {
	code  string
	title string
}

var sectionOrder = []Section{
	SectionContainment,
	SectionEvidence,
	SectionRootCause,
	SectionRootCauseImpact,
	SectionRootCauseResult,
	SectionCorrectiveAction,
	SectionImplementationEvidence,
	SectionVerification,
	SectionAuditorReview,
}

var sectionMetas = map[Section]sectionMeta{
	SectionContainment:            {code: "S1_CONTAINMENT", title: "S1 Containment"},
	SectionEvidence:               {code: "S2_EVIDENCE", title: "S2 Implementation evidence files"},
	SectionRootCause:              {code: "S3_ROOT_CAUSE", title: "S3 Root cause analysis"},
	SectionRootCauseImpact:        {code: "ROOT_CAUSE_IMPACT", title: "Root cause impact on other processes"},
	SectionRootCauseResult:        {code: "S4_RESULT", title: "S4 Root cause result"},
	SectionCorrectiveAction:       {code: "S5_CORRECTIVE_ACTION", title: "S5 Systemic corrective action"},
	SectionImplementationEvidence: {code: "S6_EVIDENCE", title: "S6 Implementation evidence"},
	SectionVerification:           {code: "S7_VERIFICATION", title: "S7 Effectiveness verification"},
	SectionAuditorReview:          {code: "AUDITOR_REVIEW", title: "Auditor review"},
}

// Sections returns every section in workflow order.
func Sections() []Section {
	return append([]Section(nil), sectionOrder...)
}

// ParseSection accepts the kebab tag ("root-cause") or the upper-case code
// ("S3_ROOT_CAUSE").
func ParseSection(value string) (Section, error) {
	trimmed := strings.TrimSpace(value)
	candidate := Section(strings.ToLower(trimmed))
	if _, ok := sectionMetas[candidate]; ok {
		return candidate, nil
	}
	for section, meta := range sectionMetas {
		if strings.EqualFold(meta.code, trimmed) {
			return section, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownSection, value)
}

func (s Section) String() string {
	return string(s)
}

// Code returns the upper-case section code used in CARA exports.
func (s Section) Code() string {
	return sectionMetas[s].code
}

// Title returns a human-readable section name.
func (s Section) Title() string {
	if meta, ok := sectionMetas[s]; ok {
		return meta.title
	}
	return string(s)
}

// Bilingual reports whether the section's output is a local-language
// paragraph followed by English. Only the evidence file list is not.
func (s Section) Bilingual() bool {
	return s != SectionEvidence
}

package ncr

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrItemNotFound is returned by Find when no item matches.
var ErrItemNotFound = errors.New("nc item not found")

// Classification grades a non-conformance.
type Classification string

const (
	Major Classification = "Major"
	Minor Classification = "Minor"
)

// Status tracks the organisation's progress on an item.
type Status string

const (
	StatusOpen      Status = "Open"
	StatusCompleted Status = "Completed"
	StatusSubmitted Status = "Submitted"
)

// BasicData is the report header.
type BasicData struct {
	ReportNumber       string `json:"reportNumber" yaml:"reportNumber"`
	AuditType          string `json:"auditType" yaml:"auditType"`
	OrgName            string `json:"orgName" yaml:"orgName"`
	StartDate          string `json:"startDate" yaml:"startDate"`
	EndDate            string `json:"endDate" yaml:"endDate"`
	ClosingMeetingDate string `json:"closingMeetingDate" yaml:"closingMeetingDate"`
	CBID               string `json:"cbId" yaml:"cbId"`
	TotalNCs           int    `json:"totalNCs" yaml:"totalNCs"`
}

// Item is one non-conformance with the auditor's findings and the
// organisation's responses per section.
type Item struct {
	ID             string         `json:"id" yaml:"id"`
	NCNumber       string         `json:"ncNumber" yaml:"ncNumber"`
	Identifier     string         `json:"identifier" yaml:"identifier"`
	Classification Classification `json:"classification" yaml:"classification"`
	Standard       string         `json:"standard" yaml:"standard"`
	StandardClause string         `json:"standardClause" yaml:"standardClause"`
	Requirement    string         `json:"requirement" yaml:"requirement"`
	Statement      string         `json:"statement" yaml:"statement"`
	Evidence       string         `json:"evidence" yaml:"evidence"`
	Rationale      string         `json:"rationale,omitempty" yaml:"rationale,omitempty"`
	Deadline       string         `json:"deadline" yaml:"deadline"`
	Process        string         `json:"process" yaml:"process"`

	S1Containment   string   `json:"s1_containment" yaml:"s1_containment"`
	S1Responsible   string   `json:"s1_responsible" yaml:"s1_responsible"`
	S1Date          string   `json:"s1_date" yaml:"s1_date"`
	S2Evidence      string   `json:"s2_evidence,omitempty" yaml:"s2_evidence,omitempty"`
	S2EvidenceFiles []string `json:"s2_evidence_files,omitempty" yaml:"s2_evidence_files,omitempty"`

	// RootCauseAffectsOthers is nil until the organisation answers.
	RootCauseAffectsOthers *bool  `json:"rootCauseAffectsOthers,omitempty" yaml:"rootCauseAffectsOthers,omitempty"`
	S3RootCause            string `json:"s3_rootCause" yaml:"s3_rootCause"`
	S4ProcessImpact        string `json:"s4_processImpact" yaml:"s4_processImpact"`
	S4RootCauseResult      string `json:"s4_rootCauseResult,omitempty" yaml:"s4_rootCauseResult,omitempty"`

	S5SystemicAction        string `json:"s5_systemicAction" yaml:"s5_systemicAction"`
	S5Responsible           string `json:"s5_responsible" yaml:"s5_responsible"`
	S5Date                  string `json:"s5_date" yaml:"s5_date"`
	S6ImplementationDetails string `json:"s6_implementation_details,omitempty" yaml:"s6_implementation_details,omitempty"`
	S7Verification          string `json:"s7_verification" yaml:"s7_verification"`

	AuditorComments string `json:"auditorComments,omitempty" yaml:"auditorComments,omitempty"`
	Status          Status `json:"status" yaml:"status"`
}

// Label returns the most specific human reference for the item.
func (it Item) Label() string {
	for _, v := range []string{it.Identifier, it.NCNumber, it.ID} {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return "(unnamed)"
}

// Report is a CARA report: header plus items.
type Report struct {
	BasicData BasicData `json:"basicData" yaml:"basicData"`
	Items     []Item    `json:"items" yaml:"items"`
}

// LoadReport decodes a report from a .json, .yaml, or .yml file.
func LoadReport(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var report Report
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		if err := json.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("parse report %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &report); err != nil {
			return nil, fmt.Errorf("parse report %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("report %s: unsupported extension %q (want .json, .yaml, or .yml)", path, ext)
	}
	return &report, nil
}

// Find returns the item whose id, ncNumber, or identifier equals ref
// (case-insensitive).
func (r *Report) Find(ref string) (*Item, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty reference", ErrItemNotFound)
	}
	for i := range r.Items {
		it := &r.Items[i]
		for _, candidate := range []string{it.ID, it.NCNumber, it.Identifier} {
			if strings.EqualFold(strings.TrimSpace(candidate), ref) {
				return it, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrItemNotFound, ref)
}

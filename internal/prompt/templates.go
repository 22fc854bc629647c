package prompt

import (
	"fmt"
	"strings"

	"cara/internal/textutil"
)

type template func(tc *templateContext, s *strings.Builder)

// Every Section has an entry.
var templates = map[Section]template{
	SectionContainment:            containmentTemplate,
	SectionEvidence:               evidenceTemplate,
	SectionRootCause:              rootCauseTemplate,
	SectionRootCauseImpact:        rootCauseImpactTemplate,
	SectionRootCauseResult:        rootCauseResultTemplate,
	SectionCorrectiveAction:       correctiveActionTemplate,
	SectionImplementationEvidence: implementationEvidenceTemplate,
	SectionVerification:           verificationTemplate,
	SectionAuditorReview:          auditorReviewTemplate,
}

func containmentTemplate(tc *templateContext, s *strings.Builder) {
	it := tc.item
	due := tc.deadline(OffsetContainment)
	s.WriteString("Task: complete \"S1 Containment\".\n\n")
	fmt.Fprintf(s, "Deadline: within 2 days of the closing meeting (due %s).\n\n", due)
	s.WriteString(existing(it.S1Containment, "S1 containment"))
	s.WriteString(optionalLine("Responsible", it.S1Responsible))
	s.WriteString(optionalLine("Date", it.S1Date))
	s.WriteString("\nRequirements:\n")
	s.WriteString("1. If content exists, keep its key points and add the missing detail.\n")
	s.WriteString("2. Otherwise draft a complete containment covering:\n")
	s.WriteString("   - immediate correction of the specific defect\n")
	s.WriteString("   - segregation and screening of suspect stock (WIP, finished goods, in transit)\n")
	fmt.Fprintf(s, "   - completion before %s\n", due)
	s.WriteString("   - the owner and the people carrying it out\n")
	s.WriteString("3. Keep it specific and actionable, with explicit dates and owners.")
}

func evidenceTemplate(tc *templateContext, s *strings.Builder) {
	it := tc.item
	due := tc.deadline(OffsetEvidence)
	stamp := "YYYYMMDD"
	if _, ok := ParseDate(due); ok {
		stamp = strings.ReplaceAll(due, "-", "")
	}
	s.WriteString("S1 containment for reference:\n")
	s.WriteString(orNotProvided(it.S1Containment))
	s.WriteString("\n")
	s.WriteString(optionalLine("Responsible", it.S1Responsible))
	s.WriteString(optionalLine("Date", it.S1Date))
	fmt.Fprintf(s, "\nDeadline: implementation evidence within 3 days of S1 (due %s).\n\n", due)
	s.WriteString("Task: produce the \"S2 implementation evidence\" file name list.\n\n")
	s.WriteString(existing(strings.Join(append(splitLines(it.S2Evidence), it.S2EvidenceFiles...), "\n"), "evidence file names"))
	s.WriteString("\nRequirements:\n")
	s.WriteString("1. The field lists attachment FILE NAMES proving implementation, not descriptions.\n")
	s.WriteString("2. Derive one file per S1 action (rework records, WIP and final inspection records, quarantine tags, operator training sign-off, customer notification).\n")
	s.WriteString("3. Keep existing file names and add the missing ones.\n")
	fmt.Fprintf(s, "4. One name per line, with an extension (.pdf, .jpg, .xlsx, .docx) and the date stamp %s, for example:\n", stamp)
	fmt.Fprintf(s, "   rework-record-%s.pdf\n", stamp)
	fmt.Fprintf(s, "   wip-inspection-%s.xlsx\n", stamp)
	fmt.Fprintf(s, "   quarantine-list-%s.pdf", stamp)
}

func rootCauseTemplate(tc *templateContext, s *strings.Builder) {
	it := tc.item
	due := tc.deadline(OffsetRootCause)
	s.WriteString("Task: complete \"S3 Root cause analysis\".\n\n")
	fmt.Fprintf(s, "Deadline: within 8 days of the closing meeting (due %s).\n\n", due)
	s.WriteString(existing(it.S3RootCause, "S3 root cause analysis"))
	if it.RootCauseAffectsOthers != nil {
		fmt.Fprintf(s, "Other processes affected: %s\n", textutil.Ternary(*it.RootCauseAffectsOthers, "yes", "no"))
	}
	s.WriteString("\nRequirements:\n")
	fmt.Fprintf(s, "1. Finish the analysis before %s.\n", due)
	s.WriteString("2. If content exists, keep its 5-Why chain and deepen it.\n")
	s.WriteString("3. Otherwise run a complete 5-Why covering:\n")
	s.WriteString("   - occurrence: why the process produced the defect\n")
	s.WriteString("   - escape: why the defect was not detected\n")
	s.WriteString("   - system: why the management system allowed it\n")
	s.WriteString("4. Reach the root cause, not the symptom, and name an owner and due date.")
}

func rootCauseImpactTemplate(tc *templateContext, s *strings.Builder) {
	it := tc.item
	due := tc.deadline(OffsetRootCauseImpact)
	lateral := tc.deadline(OffsetLateralRollout)
	answer := "not selected"
	if it.RootCauseAffectsOthers != nil {
		answer = textutil.Ternary(*it.RootCauseAffectsOthers, "yes", "no")
	}
	s.WriteString("S3 root cause for reference:\n")
	s.WriteString(orNotProvided(it.S3RootCause))
	fmt.Fprintf(s, "\n\nAffects other processes: %s\n", answer)
	fmt.Fprintf(s, "\nDeadline: impact analysis within 9 days of the closing meeting (due %s).\n\n", due)
	s.WriteString("Task: complete \"How the root cause affects other processes\".\n\n")
	s.WriteString(existing(it.S4ProcessImpact, "root cause impact statement"))
	s.WriteString("\nRequirements:\n")
	fmt.Fprintf(s, "1. Finish the impact analysis before %s.\n", due)
	s.WriteString("2. Base the scope on the S3 conclusion.\n")
	s.WriteString("3. If the answer is yes, list the similar processes or products affected, how the cause shows up there, the risk level, and the processes to check and improve.\n")
	fmt.Fprintf(s, "4. Lateral roll-out must finish before %s (16 days after the closing meeting).\n", lateral)
	s.WriteString("5. If the answer is no, explain why the cause is isolated.\n")
	s.WriteString("6. Name an owner and due date.")
}

func rootCauseResultTemplate(tc *templateContext, s *strings.Builder) {
	it := tc.item
	due := tc.deadline(OffsetRootCauseResult)
	affects := it.RootCauseAffectsOthers != nil && *it.RootCauseAffectsOthers
	s.WriteString("S3 root cause for reference:\n")
	s.WriteString(orNotProvided(it.S3RootCause))
	fmt.Fprintf(s, "\n\nAffects other processes: %s\n", textutil.Ternary(affects, "yes", "no"))
	if strings.TrimSpace(it.S4ProcessImpact) != "" {
		fmt.Fprintf(s, "Impact statement:\n%s\n", strings.TrimSpace(it.S4ProcessImpact))
	}
	fmt.Fprintf(s, "\nDeadline: root cause verification within 9 days of the closing meeting (due %s).\n\n", due)
	s.WriteString("Task: complete \"S4 Root cause result\".\n\n")
	s.WriteString(existing(it.S4RootCauseResult, "S4 root cause result"))
	s.WriteString("\nRequirements:\n")
	fmt.Fprintf(s, "1. Finish verification before %s.\n", due)
	s.WriteString("2. Verify that the S3 root cause is correct.\n")
	s.WriteString("3. If content exists, keep its conclusion and add the verification results.\n")
	s.WriteString("4. Otherwise state the verification method (trial, data analysis, process trace, 5-Why check), the key findings with data, and the confirmed conclusion.\n")
	if affects {
		fmt.Fprintf(s, "5. Include the check results for the other affected processes (impact: %s).\n", textutil.Truncate(it.S4ProcessImpact, 50))
	} else {
		s.WriteString("5. State that the verification is complete and no other process is affected.\n")
	}
	s.WriteString("6. Base the result on facts and data.")
}

func correctiveActionTemplate(tc *templateContext, s *strings.Builder) {
	it := tc.item
	due := tc.deadline(OffsetCorrectiveAction)
	fmt.Fprintf(s, "Root cause for reference: %s\n\n", orNotProvided(it.S3RootCause))
	fmt.Fprintf(s, "Deadline: systemic corrective action within 11 days of the closing meeting (due %s).\n\n", due)
	s.WriteString("Task: complete \"S5 Systemic corrective action\".\n\n")
	s.WriteString(existing(it.S5SystemicAction, "S5 systemic corrective action"))
	s.WriteString(optionalLine("Responsible", it.S5Responsible))
	s.WriteString(optionalLine("Target date", it.S5Date))
	s.WriteString("\nRequirements:\n")
	fmt.Fprintf(s, "1. Define the actions before %s.\n", due)
	s.WriteString("2. If content exists, keep its core actions and add implementation and verification detail.\n")
	s.WriteString("3. Otherwise derive actions from the root cause that prevent recurrence, covering document updates (PFMEA, control plan, work instructions), technical fixes or error-proofing where applicable, and training.\n")
	s.WriteString("4. Every action is verifiable and has an owner and due date.")
}

func implementationEvidenceTemplate(tc *templateContext, s *strings.Builder) {
	it := tc.item
	due := tc.deadline(OffsetImplementationEvidence)
	s.WriteString("S5 systemic corrective action for reference:\n")
	s.WriteString(orNotProvided(it.S5SystemicAction))
	s.WriteString("\n")
	s.WriteString(optionalLine("Responsible", it.S5Responsible))
	s.WriteString(optionalLine("Target date", it.S5Date))
	fmt.Fprintf(s, "\nDeadline: implement every S5 action and attach the updated documents within 26 days of the closing meeting (due %s).\n\n", due)
	s.WriteString("Task: complete \"S6 Implementation evidence (including timing and owners)\".\n\n")
	s.WriteString(existing(it.S6ImplementationDetails, "S6 implementation evidence"))
	s.WriteString("\nRequirements:\n")
	fmt.Fprintf(s, "1. All S5 actions implemented with evidence before %s.\n", due)
	s.WriteString("2. Map each S5 action to its implementation steps, phases, and dates.\n")
	s.WriteString("3. If content exists, keep it and add concrete detail and timing.\n")
	s.WriteString("4. Otherwise list owners and departments, training records, document revision records with versions, tooling or equipment changes, and process change validation.\n")
	if owner := strings.TrimSpace(it.S5Responsible); owner != "" {
		fmt.Fprintf(s, "5. Include the overall plan owned by %s.\n", owner)
	}
	s.WriteString("Evidence must be complete and traceable to S5.")
}

func verificationTemplate(tc *templateContext, s *strings.Builder) {
	it := tc.item
	start := tc.deadline(OffsetVerificationStart)
	end := tc.deadline(OffsetVerificationEnd)
	fmt.Fprintf(s, "Corrective action for reference: %s\n\n", orNotProvided(it.S5SystemicAction))
	fmt.Fprintf(s, "Deadline: effectiveness verification 29-31 days after the closing meeting (%s to %s).\n\n", start, end)
	s.WriteString("Task: complete \"S7 Effectiveness verification\".\n\n")
	s.WriteString(existing(it.S7Verification, "S7 effectiveness verification"))
	s.WriteString("\nRequirements:\n")
	fmt.Fprintf(s, "1. Verify between %s and %s and attach the verification files.\n", start, end)
	s.WriteString("2. If content exists, keep the method and add data and a conclusion.\n")
	s.WriteString("3. Otherwise describe how effectiveness is verified (record review, on-site audit, statistics) over at least 30 days of data, including a layered process audit (LPA), the owner, and the list of verification files.\n")
	s.WriteString("4. The method is objective and quantifiable and ends in a clear effectiveness conclusion.")
}

func auditorReviewTemplate(tc *templateContext, s *strings.Builder) {
	it := tc.item
	s.WriteString("Organisation response summary:\n")
	for _, field := range []struct {
		label string
		value string
	}{
		{"S1 containment", it.S1Containment},
		{"S3 root cause", it.S3RootCause},
		{"S5 corrective action", it.S5SystemicAction},
		{"S7 verification", it.S7Verification},
	} {
		if strings.TrimSpace(field.value) == "" {
			fmt.Fprintf(s, "- %s: not provided\n", field.label)
			continue
		}
		fmt.Fprintf(s, "- %s: provided\n  %s\n", field.label, textutil.Truncate(field.value, 100))
	}
	if strings.TrimSpace(it.AuditorComments) != "" {
		s.WriteString("\n")
		s.WriteString(existing(it.AuditorComments, "auditor comments"))
	}
	s.WriteString("\nTask: review the organisation's response as an IATF lead auditor.\n\n")
	s.WriteString("Requirements:\n")
	s.WriteString("1. Check the chain: does S1 remove the immediate risk, does S3 reach the root cause through 5-Why, does S5 address that cause, does S7 verify S5?\n")
	s.WriteString("2. If the response is sound, draft an acceptance comment.\n")
	s.WriteString("3. If something is missing (shallow root cause, no document updates, no lateral roll-out), draft a rejection comment listing what must change.")
}

func splitLines(value string) []string {
	var out []string
	for _, line := range strings.Split(value, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

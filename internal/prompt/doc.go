// Package prompt renders the system and user prompts for each section of a
// CARA corrective-action response.
//
// Deadlines are calendar-day offsets from the closing meeting. When the date
// is missing or unparsable the prompt carries a placeholder so generation can
// still proceed. Sections with existing content are extended rather than
// regenerated.
package prompt

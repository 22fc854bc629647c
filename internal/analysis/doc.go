// Package analysis drafts one section of a non-conformance response.
//
// Service ties the prompt builder to the provider manager: it tags the
// request with a correlation id, refreshes credentials from the store, sends
// the system and user prompts, and turns backend failures into a Failure
// whose UserMessage fits on one line.
package analysis

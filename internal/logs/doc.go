// Package logs reads cara's JSON log file.
//
// Tail returns the last N entries or everything after a byte offset, and can
// wait for new lines in follow mode. Entries are decoded from the JSON handler
// output and may be narrowed with a Filter, typically to the correlation ID a
// failed generation reported.
package logs

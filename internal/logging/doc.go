// Package logging assembles structured slog loggers and formatting helpers used
// across cara.
//
// It owns the console and JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so request code can tag log
// lines with correlation IDs, providers, and sections. Attributes whose keys
// name a secret are redacted by both handlers; use KeyPresence to describe a
// credential instead of logging it.
package logging

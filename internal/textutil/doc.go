// Package textutil provides small text helpers shared by prompt building and
// CLI output: conditional selection, rune-safe truncation, and filename
// sanitizing for generated evidence names.
package textutil

// Package openaicompat implements the chat completions protocol shared by the
// DeepSeek, GLM, VolcEngine, and SiliconFlow backends.
//
// Client performs a single HTTP exchange per call and maps every failure to
// an *ai.BackendError: non-2xx statuses keep their truncated body and any
// Retry-After hint, transport failures are flagged as timeouts where
// applicable, and 2xx responses without text become EmptyContentError.
// Content is read from message, delta, or the legacy text field, in that
// order. Provider layers key storage and per-backend defaults on top so each
// backend package only supplies its descriptor and quirks.
package openaicompat

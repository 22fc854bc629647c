package logging

import (
	"log/slog"
	"strings"
)

// Redacted replaces the value of any attribute whose key names a secret.
const Redacted = "[redacted]"

var secretKeys = map[string]struct{}{
	"api_key":       {},
	"apikey":        {},
	"key":           {},
	"secret":        {},
	"token":         {},
	"authorization": {},
	"password":      {},
	"x-api-key":     {},
}

// IsSecretKey reports whether an attribute key is treated as a secret.
func IsSecretKey(key string) bool {
	_, ok := secretKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

func redactAttr(attr slog.Attr) slog.Attr {
	if IsSecretKey(attr.Key) && attr.Value.Kind() != slog.KindGroup {
		return slog.String(attr.Key, Redacted)
	}
	return attr
}

// KeyPresence describes a credential without revealing it.
func KeyPresence(key string) []Attr {
	trimmed := strings.TrimSpace(key)
	return []Attr{
		Bool(FieldKeyPresent, trimmed != ""),
		Int(FieldKeyLength, len(trimmed)),
	}
}

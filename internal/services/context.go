package services

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	providerKey  contextKey = "provider"
	sectionKey   contextKey = "section"
)

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithProvider annotates context with the completion backend id.
func WithProvider(ctx context.Context, provider string) context.Context {
	if provider == "" {
		return ctx
	}
	return context.WithValue(ctx, providerKey, provider)
}

// ProviderFromContext returns the backend id if present.
func ProviderFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(providerKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithSection annotates context with the report section being generated.
func WithSection(ctx context.Context, section string) context.Context {
	if section == "" {
		return ctx
	}
	return context.WithValue(ctx, sectionKey, section)
}

// SectionFromContext returns the section tag if present.
func SectionFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(sectionKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

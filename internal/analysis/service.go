package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"cara/internal/ai"
	"cara/internal/logging"
	"cara/internal/ncr"
	"cara/internal/prompt"
	"cara/internal/services"
)

const defaultRequestTimeout = 20 * time.Second

// Completer is the part of ai.Manager the service needs.
type Completer interface {
	Sync(ctx context.Context) error
	CurrentProvider() ai.ProviderID
	ProviderInfo(id ai.ProviderID) (ai.ProviderInfo, error)
	KeyStatus(id ai.ProviderID) (present bool, length int, err error)
	GenerateCompletion(ctx context.Context, messages []ai.Message, opts ai.CompletionOptions) (string, error)
}

// Request selects what to draft.
type Request struct {
	Item        *ncr.Item
	Section     prompt.Section
	Provider    ai.ProviderID
	ClosingDate string
}

// Result is a drafted section.
type Result struct {
	CorrelationID string
	Provider      ai.ProviderID
	Section       prompt.Section
	Text          string
	Elapsed       time.Duration
}

// Service drafts sections through a Completer.
type Service struct {
	manager Completer
	builder *prompt.Builder
	logger  *slog.Logger
	timeout time.Duration
	newID   func() string
}

// Option customizes a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithBuilder replaces the default prompt builder.
func WithBuilder(b *prompt.Builder) Option {
	return func(s *Service) {
		if b != nil {
			s.builder = b
		}
	}
}

// WithRequestTimeout records the per-request timeout quoted in timeout
// messages.
func WithRequestTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// NewService constructs a Service.
func NewService(manager Completer, opts ...Option) *Service {
	s := &Service{
		manager: manager,
		builder: prompt.NewBuilder(),
		logger:  logging.NewNop(),
		timeout: defaultRequestTimeout,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = logging.NewComponentLogger(s.logger, "analysis")
	return s
}

// Preview renders the prompt for req without contacting any provider.
func (s *Service) Preview(req Request) (prompt.Prompt, error) {
	return s.builder.Build(req.Item, req.Section, req.ClosingDate)
}

// Generate drafts one section. Backend and configuration failures come back
// as *Failure; an unknown section or a credential store that cannot be read
// is returned as is.
func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	correlationID := s.newID()
	ctx = services.WithRequestID(ctx, correlationID)
	ctx = services.WithSection(ctx, string(req.Section))

	p, err := s.Preview(req)
	if err != nil {
		return Result{}, err
	}

	if err := s.manager.Sync(ctx); err != nil {
		return Result{}, fmt.Errorf("load credentials: %w", err)
	}

	id := req.Provider
	if id == "" {
		id = s.manager.CurrentProvider()
	}
	ctx = services.WithProvider(ctx, string(id))
	logger := logging.WithContext(ctx, s.logger)

	info, err := s.manager.ProviderInfo(id)
	if err != nil {
		return Result{}, s.fail(logger, req, id, string(id), correlationID, 0, err)
	}
	present, length, _ := s.manager.KeyStatus(id)
	logger.Info("generating section",
		logging.String("display_name", info.DisplayName),
		logging.Bool(logging.FieldKeyPresent, present),
		logging.Int(logging.FieldKeyLength, length),
		logging.String("closing_date", textOr(req.ClosingDate, "not provided")),
		logging.Int("prompt_chars", len([]rune(p.System))+len([]rune(p.User))),
	)

	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: p.System},
		{Role: ai.RoleUser, Content: p.User},
	}
	started := time.Now()
	text, err := s.manager.GenerateCompletion(ctx, messages, ai.CompletionOptions{Provider: id})
	elapsed := time.Since(started)
	if err != nil {
		return Result{}, s.fail(logger, req, id, info.DisplayName, correlationID, elapsed, err)
	}

	logger.Info("section generated",
		logging.Duration("elapsed", elapsed),
		logging.Int("chars", len([]rune(text))),
	)
	return Result{
		CorrelationID: correlationID,
		Provider:      id,
		Section:       req.Section,
		Text:          strings.TrimSpace(text),
		Elapsed:       elapsed,
	}, nil
}

func (s *Service) fail(logger *slog.Logger, req Request, id ai.ProviderID, displayName, correlationID string, elapsed time.Duration, err error) *Failure {
	f := &Failure{
		Provider:      id,
		DisplayName:   displayName,
		Section:       req.Section,
		CorrelationID: correlationID,
		Cause:         describeCause(err, s.timeout),
		Err:           err,
	}
	attrs := []logging.Attr{
		logging.String("display_name", displayName),
		logging.String("cause", f.Cause),
		logging.Duration("elapsed", elapsed),
		logging.Error(err),
	}
	var backendErr *ai.BackendError
	if errors.As(err, &backendErr) {
		attrs = append(attrs,
			logging.Int("status", backendErr.StatusCode),
			logging.Bool("timeout", backendErr.Timeout),
			logging.String("op", backendErr.Op),
		)
	}
	if f.Configuration() {
		logger.Warn("section not generated", logging.Args(attrs...)...)
	} else {
		logger.Error("section generation failed", logging.Args(attrs...)...)
	}
	return f
}

func textOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return strings.TrimSpace(value)
}

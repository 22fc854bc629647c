package governor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"cara/internal/logging"
)

const (
	// DefaultSpacing is the minimum gap between two dispatches to the same key.
	DefaultSpacing = 300 * time.Millisecond

	defaultMaxAttempts = 3
	defaultBaseDelay   = 1 * time.Second
	defaultMultiplier  = 2.0
	defaultMaxDelay    = 8 * time.Second
)

// RetryPolicy controls how failed work is retried while the slot is held.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	Multiplier  float64
	MaxDelay    time.Duration
	// Retryable decides whether err warrants another attempt. Nil means
	// nothing is retried.
	Retryable func(error) bool
}

// DefaultRetryPolicy returns three attempts with a 1s doubling backoff.
func DefaultRetryPolicy(retryable func(error) bool) RetryPolicy {
	return RetryPolicy{
		MaxAttempts: defaultMaxAttempts,
		BaseDelay:   defaultBaseDelay,
		Multiplier:  defaultMultiplier,
		MaxDelay:    defaultMaxDelay,
		Retryable:   retryable,
	}
}

// Delay returns the wait before the attempt following attempt (1-based).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if p.BaseDelay <= 0 {
		return 0
	}
	if attempt < 1 {
		attempt = 1
	}
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= multiplier
		if p.MaxDelay > 0 && delay >= float64(p.MaxDelay) {
			return p.MaxDelay
		}
	}
	return p.capDelay(time.Duration(delay))
}

func (p RetryPolicy) capDelay(delay time.Duration) time.Duration {
	if delay < 0 {
		return 0
	}
	if p.MaxDelay > 0 && delay > p.MaxDelay {
		return p.MaxDelay
	}
	return delay
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts <= 0 {
		return 1
	}
	return p.MaxAttempts
}

// ExhaustedError wraps the last error once the retry budget is spent.
type ExhaustedError struct {
	Key      string
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("%s: failed after %d attempts: %v", e.Key, e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

type retryAfterHinter interface {
	RetryAfterHint() time.Duration
}

// Governor serializes work per key: one call in flight, a minimum spacing
// between dispatches, and bounded retries inside the held slot. Distinct keys
// never wait on each other.
type Governor struct {
	mu      sync.Mutex
	lanes   map[string]*lane
	spacing map[string]time.Duration

	defaultSpacing time.Duration
	policy         RetryPolicy
	sleeper        func(time.Duration)
	logger         *slog.Logger
}

type lane struct {
	slot    *semaphore.Weighted
	limiter *rate.Limiter
}

// Option customizes a Governor.
type Option func(*Governor)

// WithSpacing sets the minimum dispatch gap for one key.
func WithSpacing(key string, spacing time.Duration) Option {
	return func(g *Governor) {
		g.spacing[key] = spacing
	}
}

// WithDefaultSpacing sets the gap used for keys without an explicit spacing.
func WithDefaultSpacing(spacing time.Duration) Option {
	return func(g *Governor) {
		g.defaultSpacing = spacing
	}
}

// WithRetryPolicy replaces the retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(g *Governor) {
		g.policy = policy
	}
}

// WithSleeper overrides how backoff sleeps are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(g *Governor) {
		g.sleeper = sleeper
	}
}

// WithLogger attaches a logger for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Governor) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// New constructs a Governor.
func New(opts ...Option) *Governor {
	g := &Governor{
		lanes:          make(map[string]*lane),
		spacing:        make(map[string]time.Duration),
		defaultSpacing: DefaultSpacing,
		policy:         DefaultRetryPolicy(nil),
		logger:         logging.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.logger = logging.NewComponentLogger(g.logger, "governor")
	return g
}

// Spacing returns the dispatch gap applied to key.
func (g *Governor) Spacing(key string) time.Duration {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.spacingLocked(key)
}

func (g *Governor) spacingLocked(key string) time.Duration {
	if spacing, ok := g.spacing[key]; ok {
		return spacing
	}
	return g.defaultSpacing
}

func (g *Governor) lane(key string) *lane {
	g.mu.Lock()
	defer g.mu.Unlock()
	if l, ok := g.lanes[key]; ok {
		return l
	}
	limit := rate.Inf
	if spacing := g.spacingLocked(key); spacing > 0 {
		limit = rate.Every(spacing)
	}
	l := &lane{
		slot:    semaphore.NewWeighted(1),
		limiter: rate.NewLimiter(limit, 1),
	}
	g.lanes[key] = l
	return l
}

// Do runs fn under key's slot. It waits for any in-flight call on the same key,
// then for the spacing interval, then invokes fn, retrying per the policy.
// The slot is released on every exit path.
func (g *Governor) Do(ctx context.Context, key string, fn func(context.Context) error) error {
	if ctx == nil {
		return errors.New("governor: nil context")
	}
	l := g.lane(key)
	if err := l.slot.Acquire(ctx, 1); err != nil {
		return err
	}
	defer l.slot.Release(1)

	attempts := g.policy.attempts()
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !g.retryable(ctx, err) {
			return err
		}
		if attempt == attempts {
			break
		}
		delay := g.retryDelay(err, attempt)
		g.logger.Warn("retrying after retryable failure",
			logging.String("lane", key),
			logging.Int("attempt", attempt),
			logging.Int("max_attempts", attempts),
			logging.Duration("wait", delay),
			logging.Error(err),
		)
		if err := g.sleep(ctx, delay); err != nil {
			return err
		}
	}

	g.logger.Error("retry budget exhausted",
		logging.String("lane", key),
		logging.Int("attempts", attempts),
		logging.Error(lastErr),
	)
	return &ExhaustedError{Key: key, Attempts: attempts, Err: lastErr}
}

func (g *Governor) retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if g.policy.Retryable == nil {
		return false
	}
	return g.policy.Retryable(err)
}

func (g *Governor) retryDelay(err error, attempt int) time.Duration {
	var hinter retryAfterHinter
	if errors.As(err, &hinter) {
		if hint := hinter.RetryAfterHint(); hint > 0 {
			return g.policy.capDelay(hint)
		}
	}
	return g.policy.Delay(attempt)
}

func (g *Governor) sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if g.sleeper != nil {
		g.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

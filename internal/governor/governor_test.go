package governor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errRetryable = errors.New("busy")

type hintedError struct {
	hint time.Duration
}

func (e hintedError) Error() string                 { return "busy with hint" }
func (e hintedError) RetryAfterHint() time.Duration { return e.hint }

func isRetryable(err error) bool {
	var hinted hintedError
	return errors.Is(err, errRetryable) || errors.As(err, &hinted)
}

type window struct {
	start time.Time
	end   time.Time
}

func TestDoSerializesSameKey(t *testing.T) {
	const spacing = 80 * time.Millisecond
	g := New(WithDefaultSpacing(spacing))

	var mu sync.Mutex
	var windows []window
	work := func(context.Context) error {
		start := time.Now()
		time.Sleep(30 * time.Millisecond)
		end := time.Now()
		mu.Lock()
		windows = append(windows, window{start: start, end: end})
		mu.Unlock()
		return nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := g.Do(context.Background(), "deepseek", work); err != nil {
				t.Errorf("Do returned error: %v", err)
			}
		}()
	}
	wg.Wait()

	if len(windows) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(windows))
	}
	first, second := windows[0], windows[1]
	if second.start.Before(first.end) {
		t.Fatalf("calls overlapped: first ended %v, second started %v", first.end, second.start)
	}
	const tolerance = 5 * time.Millisecond
	if gap := second.start.Sub(first.start); gap < spacing-tolerance {
		t.Fatalf("expected dispatch gap >= %v, got %v", spacing, gap)
	}
}

func TestDoAllowsDifferentKeysToOverlap(t *testing.T) {
	g := New(WithDefaultSpacing(0))

	started := make(chan string, 2)
	release := make(chan struct{})
	work := func(key string) func(context.Context) error {
		return func(context.Context) error {
			started <- key
			<-release
			return nil
		}
	}

	var wg sync.WaitGroup
	for _, key := range []string{"claude", "gemini"} {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			if err := g.Do(context.Background(), key, work(key)); err != nil {
				t.Errorf("Do(%s) returned error: %v", key, err)
			}
		}(key)
	}

	timeout := time.After(2 * time.Second)
	for i := 0; i < 2; i++ {
		select {
		case <-started:
		case <-timeout:
			close(release)
			wg.Wait()
			t.Fatal("expected both keys to be in flight at once")
		}
	}
	close(release)
	wg.Wait()
}

func TestDoRetriesWithDoublingBackoff(t *testing.T) {
	var slept []time.Duration
	g := New(
		WithDefaultSpacing(0),
		WithRetryPolicy(DefaultRetryPolicy(isRetryable)),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)

	calls := 0
	err := g.Do(context.Background(), "gemini", func(context.Context) error {
		calls++
		if calls < 3 {
			return errRetryable
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 calls, got %d", calls)
	}
	if len(slept) != 2 || slept[0] != time.Second || slept[1] != 2*time.Second {
		t.Fatalf("expected waits [1s 2s], got %v", slept)
	}
}

func TestDoReturnsExhaustedError(t *testing.T) {
	g := New(
		WithDefaultSpacing(0),
		WithRetryPolicy(DefaultRetryPolicy(isRetryable)),
		WithSleeper(func(time.Duration) {}),
	)

	calls := 0
	err := g.Do(context.Background(), "glm", func(context.Context) error {
		calls++
		return errRetryable
	})
	var exhausted *ExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("expected ExhaustedError, got %v", err)
	}
	if exhausted.Attempts != 3 || calls != 3 {
		t.Fatalf("expected 3 attempts, got attempts=%d calls=%d", exhausted.Attempts, calls)
	}
	if !errors.Is(err, errRetryable) {
		t.Fatalf("expected exhausted error to wrap the last failure, got %v", err)
	}
}

func TestDoDoesNotRetryOtherErrors(t *testing.T) {
	g := New(
		WithDefaultSpacing(0),
		WithRetryPolicy(DefaultRetryPolicy(isRetryable)),
		WithSleeper(func(time.Duration) { t.Fatal("unexpected sleep") }),
	)
	boom := errors.New("boom")
	calls := 0
	err := g.Do(context.Background(), "claude", func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestDoReleasesSlotAfterFailure(t *testing.T) {
	g := New(WithDefaultSpacing(0))
	boom := errors.New("boom")
	if err := g.Do(context.Background(), "volcengine", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := g.Do(ctx, "volcengine", func(context.Context) error { return nil }); err != nil {
		t.Fatalf("expected slot to be free after failure, got %v", err)
	}
}

func TestDoHonoursRetryAfterHint(t *testing.T) {
	var slept []time.Duration
	g := New(
		WithDefaultSpacing(0),
		WithRetryPolicy(DefaultRetryPolicy(isRetryable)),
		WithSleeper(func(d time.Duration) { slept = append(slept, d) }),
	)
	calls := 0
	err := g.Do(context.Background(), "claude", func(context.Context) error {
		calls++
		if calls == 1 {
			return hintedError{hint: 30 * time.Second}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do returned error: %v", err)
	}
	if len(slept) != 1 || slept[0] != defaultMaxDelay {
		t.Fatalf("expected hint capped at %v, got %v", defaultMaxDelay, slept)
	}
}

func TestDoAbortsWhileWaitingForSlot(t *testing.T) {
	g := New(WithDefaultSpacing(0))
	inFlight := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = g.Do(context.Background(), "siliconflow", func(context.Context) error {
			close(inFlight)
			<-release
			return nil
		})
	}()
	<-inFlight

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := g.Do(ctx, "siliconflow", func(context.Context) error {
		t.Error("work should not run while the slot is held")
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	close(release)
	<-done
}

func TestSpacingPerKey(t *testing.T) {
	g := New(WithSpacing("siliconflow", 500*time.Millisecond))
	if got := g.Spacing("siliconflow"); got != 500*time.Millisecond {
		t.Fatalf("expected 500ms, got %v", got)
	}
	if got := g.Spacing("claude"); got != DefaultSpacing {
		t.Fatalf("expected default spacing, got %v", got)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	policy := DefaultRetryPolicy(nil)
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 8 * time.Second}
	for i, expected := range want {
		if got := policy.Delay(i + 1); got != expected {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, expected, got)
		}
	}
}

package store_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jacentio/tendril/store"
)

func mustReadAsync(t *testing.T, s *store.Store, a store.Atom) store.AsyncValue {
	t.Helper()
	v, err := s.ReadAsync(a)
	if err != nil {
		t.Fatalf("read async %s: %v", a.Name(), err)
	}
	return v
}

func waitState(t *testing.T, s *store.Store, a store.Atom, want store.AsyncState) store.AsyncValue {
	t.Helper()
	var v store.AsyncValue
	waitUntil(t, 2*time.Second, func() bool {
		v = mustReadAsync(t, s, a)
		return v.State() == want
	})
	return v
}

// --- Lifecycle Tests ---

func TestAsync_ResolvesToData(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	answer := s.Async("answer", func(ctx context.Context, tr *store.Tracker) (any, error) {
		return 42, nil
	})

	// The first read starts the computation and observes Loading with
	// no previous data.
	first := mustReadAsync(t, s, answer)
	if first.State() != store.StateLoading {
		t.Errorf("expected Loading on first read, got %v", first.State())
	}
	if _, ok := first.Previous(); ok {
		t.Error("expected no previous data on first load")
	}

	v := waitState(t, s, answer, store.StateData)
	if got, _ := v.Value(); got != 42 {
		t.Errorf("expected 42, got %v", got)
	}
}

func TestAsync_NotAsync(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	src := s.Source("src", 1)
	if _, err := s.ReadAsync(src); !errors.Is(err, store.ErrNotAsync) {
		t.Errorf("expected ErrNotAsync, got %v", err)
	}
	if err := s.Refresh(src); !errors.Is(err, store.ErrNotAsync) {
		t.Errorf("expected ErrNotAsync from Refresh, got %v", err)
	}
}

func TestAsync_LoadingCarriesPrevious(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	src := s.Source("src", 1)
	scaled := s.Async("scaled", func(ctx context.Context, tr *store.Tracker) (any, error) {
		v, err := tr.Get(src)
		if err != nil {
			return nil, err
		}
		return v.(int) * 10, nil
	})

	v := waitState(t, s, scaled, store.StateData)
	if got, _ := v.Value(); got != 10 {
		t.Fatalf("expected 10, got %v", got)
	}

	if err := s.Write(src, 2); err != nil {
		t.Fatalf("write: %v", err)
	}
	loading := mustReadAsync(t, s, scaled)
	if loading.State() != store.StateLoading {
		t.Fatalf("expected Loading after dependency change, got %v", loading.State())
	}
	if prev, ok := loading.Previous(); !ok || prev != 10 {
		t.Errorf("expected previous data 10 during reload, got %v (%v)", prev, ok)
	}

	v = waitState(t, s, scaled, store.StateData)
	if got, _ := v.Value(); got != 20 {
		t.Errorf("expected 20 after reload, got %v", got)
	}
}

func TestAsync_SupersededGenerationDiscarded(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	release := make(chan struct{})
	src := s.Source("src", 1)
	scaled := s.Async("scaled", func(ctx context.Context, tr *store.Tracker) (any, error) {
		v, err := tr.Get(src)
		if err != nil {
			return nil, err
		}
		if v.(int) == 2 {
			<-release
		}
		return v.(int) * 100, nil
	})

	seen := &recorder{}
	unsub, err := s.Subscribe(scaled, func(v any) {
		if av, ok := v.(store.AsyncValue); ok {
			if data, resolved := av.Value(); resolved {
				seen.record(data)
			}
		}
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	// Resolve once so the dependency edge on src exists.
	waitState(t, s, scaled, store.StateData)

	// Start a generation that blocks, then supersede it.
	if err := s.Write(src, 2); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := s.Write(src, 3); err != nil {
		t.Fatalf("write: %v", err)
	}
	v := waitState(t, s, scaled, store.StateData)
	if got, _ := v.Value(); got != 300 {
		t.Fatalf("expected 300 from the newest generation, got %v", got)
	}

	// Unblock the abandoned generation; its result must be discarded.
	close(release)
	time.Sleep(20 * time.Millisecond)
	if got, _ := mustReadAsync(t, s, scaled).Value(); got != 300 {
		t.Errorf("expected stale result discarded, got %v", got)
	}
	for _, data := range seen.list() {
		if data == 200 {
			t.Errorf("observed data from a superseded generation: %v", seen.list())
		}
	}
}

// --- Retry Tests ---

func TestAsync_RetryUntilSuccess(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	var attempts atomic.Int32
	flaky := s.Async("flaky", func(ctx context.Context, tr *store.Tracker) (any, error) {
		if attempts.Add(1) < 3 {
			return nil, errors.New("transient")
		}
		return "ok", nil
	}, store.WithRetry(store.RetryPolicy{
		MaxAttempts:       3,
		Delay:             5 * time.Millisecond,
		BackoffMultiplier: 2,
	}))

	v := waitState(t, s, flaky, store.StateData)
	if got, _ := v.Value(); got != "ok" {
		t.Errorf("expected ok, got %v", got)
	}
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestAsync_RetryExhaustedProducesError(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	boom := errors.New("boom")
	var attempts atomic.Int32
	doomed := s.Async("doomed", func(ctx context.Context, tr *store.Tracker) (any, error) {
		attempts.Add(1)
		return nil, boom
	}, store.WithRetry(store.RetryPolicy{
		MaxAttempts:       2,
		Delay:             time.Millisecond,
		BackoffMultiplier: 2,
	}))

	v := waitState(t, s, doomed, store.StateError)
	if !errors.Is(v.Err(), boom) {
		t.Errorf("expected boom, got %v", v.Err())
	}
	if len(v.Stack()) == 0 {
		t.Error("expected a captured stack trace on the Error value")
	}
	// Initial attempt plus MaxAttempts retries.
	if attempts.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts.Load())
	}
}

func TestAsync_NoRetryWithoutPolicy(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	var attempts atomic.Int32
	doomed := s.Async("doomed", func(ctx context.Context, tr *store.Tracker) (any, error) {
		attempts.Add(1)
		return nil, errors.New("fatal")
	})

	waitState(t, s, doomed, store.StateError)
	time.Sleep(20 * time.Millisecond)
	if attempts.Load() != 1 {
		t.Errorf("expected a single attempt without a retry policy, got %d", attempts.Load())
	}
}

func TestAsync_ShouldRetryGates(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	fatal := errors.New("fatal")
	var consulted atomic.Int32
	doomed := s.Async("doomed", func(ctx context.Context, tr *store.Tracker) (any, error) {
		return nil, fatal
	}, store.WithRetry(store.RetryPolicy{
		MaxAttempts: 5,
		Delay:       time.Millisecond,
		ShouldRetry: func(err error, attempt int) bool {
			consulted.Add(1)
			if !errors.Is(err, fatal) {
				t.Errorf("expected fatal passed to ShouldRetry, got %v", err)
			}
			return false
		},
	}))

	v := waitState(t, s, doomed, store.StateError)
	if !errors.Is(v.Err(), fatal) {
		t.Errorf("expected fatal, got %v", v.Err())
	}
	if consulted.Load() != 1 {
		t.Errorf("expected ShouldRetry consulted once, got %d", consulted.Load())
	}
}

func TestAsync_NewStartAbortsRetryWait(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	src := s.Source("src", 1)
	var attempts atomic.Int32
	mixed := s.Async("mixed", func(ctx context.Context, tr *store.Tracker) (any, error) {
		attempts.Add(1)
		v, err := tr.Get(src)
		if err != nil {
			return nil, err
		}
		if v.(int) == 1 {
			return nil, errors.New("transient")
		}
		return v.(int), nil
	}, store.WithRetry(store.RetryPolicy{
		MaxAttempts:       3,
		Delay:             500 * time.Millisecond,
		BackoffMultiplier: 2,
	}))

	// Let the first attempt fail and enter its long backoff wait.
	mustReadAsync(t, s, mixed)
	waitUntil(t, time.Second, func() bool { return attempts.Load() == 1 })

	// A dependency change starts a new generation; the pending retry
	// must be abandoned rather than waiting out the 500ms delay.
	start := time.Now()
	if err := s.Write(src, 2); err != nil {
		t.Fatalf("write: %v", err)
	}
	v := waitState(t, s, mixed, store.StateData)
	if got, _ := v.Value(); got != 2 {
		t.Errorf("expected 2, got %v", got)
	}
	if elapsed := time.Since(start); elapsed > 400*time.Millisecond {
		t.Errorf("expected retry wait aborted, took %v", elapsed)
	}
}

// --- Refresh and Override Tests ---

func TestAsync_Refresh(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	var runs atomic.Int32
	counter := s.Async("counter", func(ctx context.Context, tr *store.Tracker) (any, error) {
		return int(runs.Add(1)), nil
	})

	v := waitState(t, s, counter, store.StateData)
	if got, _ := v.Value(); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}

	if err := s.Refresh(counter); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	loading := mustReadAsync(t, s, counter)
	if loading.State() == store.StateLoading {
		if prev, ok := loading.Previous(); !ok || prev != 1 {
			t.Errorf("expected previous data 1 during refresh, got %v (%v)", prev, ok)
		}
	}

	v = waitState(t, s, counter, store.StateData)
	if got, _ := v.Value(); got != 2 {
		t.Errorf("expected 2 after refresh, got %v", got)
	}
}

func TestAsync_OverrideSupersedes(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	started := make(chan struct{})
	release := make(chan struct{})
	pending := s.Async("pending", func(ctx context.Context, tr *store.Tracker) (any, error) {
		close(started)
		<-release
		return "computed", nil
	})

	mustReadAsync(t, s, pending)
	<-started

	if err := s.OverrideAsync(pending, store.NewData("seeded")); err != nil {
		t.Fatalf("override: %v", err)
	}
	close(release)
	time.Sleep(20 * time.Millisecond)

	v := mustReadAsync(t, s, pending)
	if got, _ := v.Value(); got != "seeded" {
		t.Errorf("expected override to win over in-flight computation, got %v", got)
	}
}

func TestAsync_CloseCancelsComputation(t *testing.T) {
	s := store.New(store.DefaultConfig())

	canceled := make(chan struct{})
	blocked := s.Async("blocked", func(ctx context.Context, tr *store.Tracker) (any, error) {
		<-ctx.Done()
		close(canceled)
		return nil, ctx.Err()
	})
	mustReadAsync(t, s, blocked)

	s.Close()
	select {
	case <-canceled:
	case <-time.After(time.Second):
		t.Error("expected Close to cancel the in-flight computation")
	}
}

// --- Derivation Tests ---

func TestAsync_DerivedObservesTransitions(t *testing.T) {
	s := store.New(store.DefaultConfig())
	defer s.Close()

	fetch := s.Async("fetch", func(ctx context.Context, tr *store.Tracker) (any, error) {
		return "payload", nil
	})
	label := s.Derived("label", func(tr *store.Tracker) (any, error) {
		v, err := tr.Get(fetch)
		if err != nil {
			return nil, err
		}
		av := v.(store.AsyncValue)
		if data, ok := av.Value(); ok {
			return "got:" + data.(string), nil
		}
		return "waiting", nil
	})

	if got := mustRead(t, s, label); got != "waiting" {
		t.Fatalf("expected waiting, got %v", got)
	}

	waitUntil(t, 2*time.Second, func() bool {
		return mustRead(t, s, label) == "got:payload"
	})
}

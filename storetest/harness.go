// Package storetest provides helpers for testing code built on tendril
// stores: pre-seeding isolated stores, recording emission sequences,
// and waiting for values with an explicit timeout. Everything here is
// built on the store's public read/write/subscribe surface.
package storetest

import (
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/jacentio/tendril/store"
)

// ErrTimeout is returned when a wait deadline elapses before the
// awaited condition becomes true. The deadline is independent of any
// retry or backoff timers the atom itself carries.
var ErrTimeout = errors.New("storetest: timed out waiting for atom")

// Seed writes each override into the store as one batch, failing the
// test on error.
func Seed(t *testing.T, s *store.Store, values map[store.Atom]any) {
	t.Helper()
	err := s.Batch(func(b *store.Batch) error {
		for a, v := range values {
			if err := b.Write(a, v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("seed store: %v", err)
	}
}

// SeedAsync installs explicit AsyncValue overrides for async atoms,
// superseding any in-flight computation, failing the test on error.
func SeedAsync(t *testing.T, s *store.Store, values map[store.Atom]store.AsyncValue) {
	t.Helper()
	for a, v := range values {
		if err := s.OverrideAsync(a, v); err != nil {
			t.Fatalf("seed async atom %s: %v", a.Name(), err)
		}
	}
}

// Recorder captures every notification delivered for one atom.
type Recorder struct {
	mu     sync.Mutex
	values []any
}

// NewRecorder subscribes a recorder to the atom; the subscription is
// removed via t.Cleanup.
func NewRecorder(t *testing.T, s *store.Store, a store.Atom) *Recorder {
	t.Helper()
	r := &Recorder{}
	unsub, err := s.Subscribe(a, func(v any) {
		r.mu.Lock()
		r.values = append(r.values, v)
		r.mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe recorder to %s: %v", a.Name(), err)
	}
	t.Cleanup(unsub)
	return r
}

// Count returns the number of notifications seen so far.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.values)
}

// Values returns a copy of the notification sequence.
func (r *Recorder) Values() []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]any, len(r.values))
	copy(out, r.values)
	return out
}

// Last returns the most recent notification, if any.
func (r *Recorder) Last() (any, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.values) == 0 {
		return nil, false
	}
	return r.values[len(r.values)-1], true
}

// WaitFor blocks until the atom's value satisfies pred or the timeout
// elapses, returning the satisfying value or ErrTimeout. The current
// value is checked before waiting.
func WaitFor(s *store.Store, a store.Atom, timeout time.Duration, pred func(v any) bool) (any, error) {
	ch := make(chan any, 1)
	unsub, err := s.Subscribe(a, func(v any) {
		if pred(v) {
			select {
			case ch <- v:
			default:
			}
		}
	})
	if err != nil {
		return nil, err
	}
	defer unsub()

	if v, err := s.Read(a); err == nil && pred(v) {
		return v, nil
	}

	select {
	case v := <-ch:
		return v, nil
	case <-time.After(timeout):
		return nil, ErrTimeout
	}
}

// WaitForValue blocks until the atom holds want (by the default deep
// equality) or the timeout elapses.
func WaitForValue(s *store.Store, a store.Atom, timeout time.Duration, want any) error {
	_, err := WaitFor(s, a, timeout, func(v any) bool {
		return reflect.DeepEqual(v, want)
	})
	return err
}

// WaitForData blocks until an async atom resolves to Data, returning
// the payload.
func WaitForData(s *store.Store, a store.Atom, timeout time.Duration) (any, error) {
	v, err := WaitFor(s, a, timeout, func(v any) bool {
		av, ok := v.(store.AsyncValue)
		return ok && av.State() == store.StateData
	})
	if err != nil {
		return nil, err
	}
	payload, _ := v.(store.AsyncValue).Value()
	return payload, nil
}

// WaitForSettled blocks until an async atom leaves Loading, returning
// its AsyncValue (Data or Error).
func WaitForSettled(s *store.Store, a store.Atom, timeout time.Duration) (store.AsyncValue, error) {
	v, err := WaitFor(s, a, timeout, func(v any) bool {
		av, ok := v.(store.AsyncValue)
		return ok && av.State() != store.StateLoading
	})
	if err != nil {
		return store.AsyncValue{}, err
	}
	return v.(store.AsyncValue), nil
}

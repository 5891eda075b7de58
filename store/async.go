package store

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/jacentio/tendril/internal/backoff"
)

// startAsyncLocked begins a new generation for an async atom: the prior
// in-flight computation is abandoned, the value becomes Loading
// carrying the last resolved data, and a fresh computation is spawned
// with the attempt counter reset to zero.
func (s *Store) startAsyncLocked(n *node) {
	n.started = true
	n.generation++
	gen := n.generation
	if n.cancel != nil {
		n.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel

	cur, _ := n.value.(AsyncValue)
	n.value = loadingFrom(cur)

	s.spawnAsync(n, gen, ctx, 0)
}

// spawnAsync runs one attempt of the computation on its own goroutine.
func (s *Store) spawnAsync(n *node, gen uint64, ctx context.Context, attempt int) {
	fn := n.computeAsync
	tr := &Tracker{s: s, reads: make(map[uint64]struct{})}
	go func() {
		v, err := fn(ctx, tr)
		s.completeAsync(n, gen, ctx, attempt, tr.reads, v, err)
	}()
}

// completeAsync applies the outcome of one attempt. Outcomes whose
// generation no longer matches are discarded: no transition, no retry.
func (s *Store) completeAsync(n *node, gen uint64, ctx context.Context, attempt int, reads map[uint64]struct{}, v any, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != n.generation {
		s.logger.Debug("discarding superseded async result",
			"store", s.name,
			"atom", n.atom.Name(),
			"generation", gen,
		)
		return
	}

	s.setEdges(n, reads)

	if err == nil {
		n.value = NewData(v)
		s.pendingDirty = append(s.pendingDirty, n.id())
		s.flushLocked()
		return
	}

	if p := n.retry; p != nil && attempt < p.MaxAttempts &&
		(p.ShouldRetry == nil || p.ShouldRetry(err, attempt)) {
		delay := backoff.Delay(p.Delay, p.BackoffMultiplier, attempt)
		s.logger.Debug("retrying async computation",
			"store", s.name,
			"atom", n.atom.Name(),
			"attempt", attempt+1,
			"delay", delay,
			"error", err,
		)
		go s.retryAfter(n, gen, ctx, attempt, delay)
		return
	}

	cur, _ := n.value.(AsyncValue)
	n.value = errorFrom(cur, err, debug.Stack())
	for _, mw := range n.chain {
		if mw.OnError != nil {
			mw.OnError(n.atom, err)
		}
	}
	s.pendingDirty = append(s.pendingDirty, n.id())
	s.flushLocked()
}

// retryAfter waits out the backoff delay and re-runs the computation
// under the same generation. A newer start cancels the generation
// context, aborting the wait immediately.
func (s *Store) retryAfter(n *node, gen uint64, ctx context.Context, attempt int, delay time.Duration) {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != n.generation {
		return
	}
	s.spawnAsync(n, gen, ctx, attempt+1)
}

// Refresh manually restarts an async atom's computation. It follows
// the same transition as a dependency change: a new generation begins
// and the atom moves to Loading carrying its last resolved data.
func (s *Store) Refresh(a Atom) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	n, err := s.node(a)
	if err != nil {
		return err
	}
	if n.kind != KindAsync {
		return ErrNotAsync
	}
	old := n.value
	s.startAsyncLocked(n)
	if !n.equal(old, n.value) {
		s.pendingDirty = append(s.pendingDirty, n.id())
		if s.batching == 0 {
			s.flushLocked()
		}
	}
	return nil
}

// OverrideAsync replaces an async atom's value without running its
// computation, superseding any in-flight generation. It exists for
// test harnesses that seed async atoms with explicit AsyncValues.
func (s *Store) OverrideAsync(a Atom, v AsyncValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	n, err := s.node(a)
	if err != nil {
		return err
	}
	if n.kind != KindAsync {
		return ErrNotAsync
	}
	n.started = true
	n.generation++
	if n.cancel != nil {
		n.cancel()
		n.cancel = nil
	}
	if n.equal(n.value, v) {
		return nil
	}
	n.value = v
	s.pendingDirty = append(s.pendingDirty, n.id())
	if s.batching == 0 {
		s.flushLocked()
	}
	return nil
}

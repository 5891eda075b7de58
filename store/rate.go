package store

import "time"

// Debounced registers a follower atom that tracks source but only
// commits (and notifies) its latest value after a quiet period with no
// further upstream changes; every upstream change restarts the timer.
// The follower is read-only to external writers. Commits land
// asynchronously on a timer goroutine.
func (s *Store) Debounced(name string, source Atom, quiet time.Duration, opts ...AtomOption) (Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Atom{}, ErrClosed
	}
	src, err := s.node(source)
	if err != nil {
		return Atom{}, err
	}

	n := s.newFollower(name, src, opts)

	s.subscribeNodeLocked(src, func(v any) {
		n.pendSeq++
		seq := n.pendSeq
		n.pendValue = v
		if n.timer != nil {
			n.timer.Stop()
		}
		n.timer = time.AfterFunc(quiet, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.closed || n.pendSeq != seq {
				return
			}
			s.commitFollower(n, n.pendValue)
		})
	})
	return n.atom, nil
}

// Throttled registers a follower atom that commits at most once per
// interval. With trailing set, the most recent value seen during a
// suppressed window commits when the window closes (opening the next);
// without it, suppressed values are dropped. Commits land
// asynchronously on a timer goroutine.
func (s *Store) Throttled(name string, source Atom, interval time.Duration, trailing bool, opts ...AtomOption) (Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Atom{}, ErrClosed
	}
	src, err := s.node(source)
	if err != nil {
		return Atom{}, err
	}

	n := s.newFollower(name, src, opts)

	var closeWindow func()
	closeWindow = func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return
		}
		if n.hasPend {
			v := n.pendValue
			n.hasPend = false
			s.commitFollower(n, v)
			n.timer = time.AfterFunc(interval, closeWindow)
			return
		}
		n.windowOpen = false
	}

	s.subscribeNodeLocked(src, func(v any) {
		if n.windowOpen {
			if trailing {
				n.pendValue = v
				n.hasPend = true
			}
			return
		}
		n.windowOpen = true
		lead := v
		time.AfterFunc(0, func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if s.closed {
				return
			}
			s.commitFollower(n, lead)
		})
		n.timer = time.AfterFunc(interval, closeWindow)
	})
	return n.atom, nil
}

// newFollower registers the source-kinded follower node, seeded with
// the upstream's current value, and guards it against external writes.
func (s *Store) newFollower(name string, src *node, opts []AtomOption) *node {
	initial, _ := s.readLocked(src.atom)

	n := s.register(KindSource, name, opts)
	v := initial
	for _, mw := range n.chain {
		if mw.Init != nil {
			v = mw.Init(n.atom, v)
		}
	}
	n.value = v
	n.follower = true
	return n
}

// subscribeNodeLocked attaches an internal subscription that feeds a
// follower from its upstream's notifications.
func (s *Store) subscribeNodeLocked(n *node, fn func(value any)) {
	n.nextSubID++
	n.subs = append(n.subs, subscription{id: n.nextSubID, fn: fn})
}

// commitFollower writes a deferred value into a follower through the
// normal pipeline and propagates it.
func (s *Store) commitFollower(n *node, v any) {
	if err := s.writeLocked(n.atom, v, true); err != nil {
		return
	}
	if s.batching == 0 {
		s.flushLocked()
	}
}

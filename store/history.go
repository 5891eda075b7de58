package store

// defaultHistorySize bounds history logs when EnableHistory is given a
// non-positive maxEntries.
const defaultHistorySize = 100

// history is a linear undo/redo log for one atom. entries[index] is
// the atom's current value; entries past index are the redo tail.
type history struct {
	entries []any
	index   int
	max     int
}

// EnableHistory attaches an undo/redo log to a source atom, seeded
// with the atom's current value. Every subsequent write appends an
// entry; once the log exceeds maxEntries the oldest entry is evicted,
// permanently losing the ability to undo past it. A non-positive
// maxEntries uses a default of 100.
func (s *Store) EnableHistory(a Atom, maxEntries int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	n, err := s.node(a)
	if err != nil {
		return err
	}
	if n.kind != KindSource {
		return ErrReadOnlyAtom
	}
	if maxEntries <= 0 {
		maxEntries = defaultHistorySize
	}
	n.hist = &history{
		entries: []any{n.value},
		index:   0,
		max:     maxEntries,
	}
	return nil
}

// recordHistory appends a stored value to the atom's log, if any.
// A write landing while the index is behind the tail first truncates
// the abandoned redo entries.
func (s *Store) recordHistory(n *node, v any) {
	if n.hist == nil || n.replaying {
		return
	}
	h := n.hist
	h.entries = append(h.entries[:h.index+1], v)
	if len(h.entries) > h.max {
		h.entries = h.entries[1:]
	}
	h.index = len(h.entries) - 1
}

// Undo moves the atom's history index back one entry and writes that
// value back into the atom through the pipeline, without re-appending.
func (s *Store) Undo(a Atom) error {
	return s.replay(a, -1)
}

// Redo moves the history index forward one entry, only valid after an
// Undo with no intervening write.
func (s *Store) Redo(a Atom) error {
	return s.replay(a, +1)
}

func (s *Store) replay(a Atom, dir int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	n, err := s.node(a)
	if err != nil {
		return err
	}
	h := n.hist
	if h == nil {
		return ErrHistoryDisabled
	}
	if dir < 0 && h.index == 0 {
		return ErrNothingToUndo
	}
	if dir > 0 && h.index == len(h.entries)-1 {
		return ErrNothingToRedo
	}
	h.index += dir

	n.replaying = true
	err = s.writeLocked(a, h.entries[h.index], true)
	n.replaying = false
	if err != nil {
		h.index -= dir
		return err
	}
	if s.batching == 0 {
		s.flushLocked()
	}
	return nil
}

// CanUndo reports whether the atom has an earlier history entry.
func (s *Store) CanUndo(a Atom) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.node(a)
	if err != nil || n.hist == nil {
		return false
	}
	return n.hist.index > 0
}

// CanRedo reports whether the atom has a later history entry.
func (s *Store) CanRedo(a Atom) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.node(a)
	if err != nil || n.hist == nil {
		return false
	}
	return n.hist.index < len(n.hist.entries)-1
}

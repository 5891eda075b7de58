package store

import (
	"sync"

	"github.com/google/uuid"
)

// Branch is a copy-on-write overlay layered in front of a parent
// store. Reads fall back to the parent for atoms without an override;
// writes only ever populate the branch's own overlay. The parent is
// read-only from the branch's perspective until an explicit Merge.
//
// A branch owns its overlay exclusively and carries its own mutex, so
// branches of one store may be used concurrently with each other and
// with the parent.
type Branch struct {
	parent *Store
	id     string

	mu      sync.Mutex
	overlay map[uint64]any
	// order preserves first-write order for deterministic Diff and Merge.
	order  []uint64
	closed bool
}

// Change is one overlay entry paired with the parent's value.
type Change struct {
	Atom   Atom
	Parent any
	Branch any
}

// NewBranch creates an empty branch over the store.
func (s *Store) NewBranch() *Branch {
	return &Branch{
		parent:  s,
		id:      uuid.NewString(),
		overlay: make(map[uint64]any),
	}
}

// ID returns the branch's diagnostic identity.
func (b *Branch) ID() string { return b.id }

// Read returns the overlay value for the atom, falling back to the
// parent store when the branch holds no override.
func (b *Branch) Read(a Atom) (any, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBranchClosed
	}
	if v, ok := b.overlay[a.id]; ok {
		return v, nil
	}
	return b.parent.Read(a)
}

// Write stores an override for a source atom in the branch's overlay.
// The parent store is never touched.
func (b *Branch) Write(a Atom, v any) error {
	kind, err := b.parent.KindOf(a)
	if err != nil {
		return err
	}
	if kind != KindSource {
		return ErrReadOnlyAtom
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBranchClosed
	}
	if _, ok := b.overlay[a.id]; !ok {
		b.order = append(b.order, a.id)
	}
	b.overlay[a.id] = v
	return nil
}

// Diff returns every overridden atom together with the parent's value
// and the branch's value, in first-write order.
func (b *Branch) Diff() ([]Change, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrBranchClosed
	}

	changes := make([]Change, 0, len(b.order))
	for _, id := range b.order {
		a, err := b.parent.atomByID(id)
		if err != nil {
			return nil, err
		}
		pv, err := b.parent.Read(a)
		if err != nil {
			return nil, err
		}
		changes = append(changes, Change{Atom: a, Parent: pv, Branch: b.overlay[id]})
	}
	return changes, nil
}

// Merge applies every overlay entry to the parent through the normal
// write pipeline, as a single batch, then leaves the branch inert.
func (b *Branch) Merge() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrBranchClosed
	}

	err := b.parent.Batch(func(batch *Batch) error {
		for _, id := range b.order {
			a, err := b.parent.atomByID(id)
			if err != nil {
				return err
			}
			if err := batch.Write(a, b.overlay[id]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	b.closed = true
	b.overlay = nil
	b.order = nil
	return nil
}

// Discard drops the overlay without touching the parent and leaves the
// branch inert.
func (b *Branch) Discard() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.overlay = nil
	b.order = nil
}

// atomByID resolves a handle from a raw id for branch bookkeeping.
func (s *Store) atomByID(id uint64) (Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return Atom{}, ErrUnknownAtom
	}
	return n.atom, nil
}

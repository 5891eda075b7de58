package store

import (
	"fmt"
	"log/slog"
	"sync"
)

// Store owns a graph of atoms: their identities, current values, and
// dependency edges. All operations on one store are serialized by an
// internal mutex; independent stores (including branches and test
// stores) share no mutable state and may run concurrently.
//
// Subscriber callbacks and middleware hooks run with the store
// serialized and must not call back into the same store synchronously;
// work that needs to re-enter the store should be scheduled on another
// goroutine or timer.
type Store struct {
	mu     sync.Mutex
	name   string
	cfg    Config
	logger *slog.Logger

	nextAtomID uint64
	nodes      map[uint64]*node
	// order records atom registration order for deterministic
	// iteration and reverse-order disposal.
	order []uint64

	batching     int
	pendingDirty []uint64
	pendingAfter []func()

	closed bool
}

// New creates a store from the given configuration.
func New(cfg Config) *Store {
	cfg.validate()
	return &Store{
		name:   cfg.Name,
		cfg:    cfg,
		logger: cfg.Logger,
		nodes:  make(map[uint64]*node),
	}
}

// Name returns the store's diagnostic name.
func (s *Store) Name() string { return s.name }

// --- Registration ---

// Source registers an externally writable atom holding initial.
// Registering on a closed store panics.
func (s *Store) Source(name string, initial any, opts ...AtomOption) Atom {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.register(KindSource, name, opts)
	v := initial
	for _, mw := range n.chain {
		if mw.Init != nil {
			v = mw.Init(n.atom, v)
		}
	}
	n.value = v
	return n.atom
}

// Derived registers an atom computed from other atoms. Evaluation is
// lazy: the computation first runs on the first Read or Subscribe, and
// dependency edges are re-derived on every run.
func (s *Store) Derived(name string, fn ComputeFunc, opts ...AtomOption) Atom {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.register(KindDerived, name, opts)
	n.compute = fn
	s.runInit(n)
	return n.atom
}

// Async registers an atom whose value is an AsyncValue produced by fn.
// The first computation starts on the first Read or Subscribe; until it
// resolves the atom holds a Loading value with no previous data.
func (s *Store) Async(name string, fn AsyncComputeFunc, opts ...AtomOption) Atom {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.register(KindAsync, name, opts)
	n.computeAsync = fn
	n.value = NewLoading()
	s.runInit(n)
	return n.atom
}

func (s *Store) register(kind Kind, name string, opts []AtomOption) *node {
	if s.closed {
		panic("tendril: cannot register atom on closed store")
	}
	s.nextAtomID++
	id := s.nextAtomID
	if name == "" {
		name = fmt.Sprintf("atom-%d", id)
	}
	o := newAtomOptions(opts)

	chain := make([]*Middleware, 0, len(s.cfg.Middleware)+len(o.middleware))
	chain = append(chain, s.cfg.Middleware...)
	chain = append(chain, o.middleware...)

	n := &node{
		atom:        Atom{id: id, name: name},
		kind:        kind,
		equal:       o.equal,
		deps:        make(map[uint64]struct{}),
		dependents:  make(map[uint64]struct{}),
		chain:       chain,
		interceptor: o.interceptor,
		retry:       o.retry,
	}
	s.nodes[id] = n
	s.order = append(s.order, id)
	return n
}

// runInit fires init hooks for non-source atoms, which have no initial
// value for the hooks to replace.
func (s *Store) runInit(n *node) {
	for _, mw := range n.chain {
		if mw.Init != nil {
			mw.Init(n.atom, nil)
		}
	}
}

func (s *Store) node(a Atom) (*node, error) {
	n, ok := s.nodes[a.id]
	if !ok || a.id == 0 {
		return nil, ErrUnknownAtom
	}
	return n, nil
}

// --- Read path ---

// Tracker is the evaluation scope handed to derived and async
// computations. Reads through it both return the current value and
// record a dependency edge for the running evaluation.
type Tracker struct {
	s      *Store
	locked bool
	reads  map[uint64]struct{}
}

// Get reads an atom and records it as a dependency of the evaluation.
func (t *Tracker) Get(a Atom) (any, error) {
	if !t.locked {
		t.s.mu.Lock()
		defer t.s.mu.Unlock()
	}
	if _, ok := t.s.nodes[a.id]; ok {
		t.reads[a.id] = struct{}{}
	}
	return t.s.readLocked(a)
}

// Read returns an atom's current value, evaluating lazily if it is
// dirty. For async atoms the value is an AsyncValue and the first Read
// starts the computation. A derived atom whose computation failed
// returns its last good value alongside the error until a dependency
// changes again.
func (s *Store) Read(a Atom) (any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.readLocked(a)
}

// ReadAsync reads an async atom's AsyncValue.
func (s *Store) ReadAsync(a Atom) (AsyncValue, error) {
	v, err := s.Read(a)
	if err != nil {
		return AsyncValue{}, err
	}
	av, ok := v.(AsyncValue)
	if !ok {
		return AsyncValue{}, ErrNotAsync
	}
	return av, nil
}

func (s *Store) readLocked(a Atom) (any, error) {
	n, err := s.node(a)
	if err != nil {
		return nil, err
	}
	switch n.kind {
	case KindDerived:
		if n.computing {
			return n.value, fmt.Errorf("%w: %s", ErrDependencyCycle, n.atom.name)
		}
		if n.dirty || !n.evaluated {
			s.evaluate(n)
		}
		return n.value, n.evalErr
	case KindAsync:
		if !n.started {
			s.startAsyncLocked(n)
		}
		return n.value, nil
	default:
		return n.value, nil
	}
}

// --- Write path ---

// Write sets a source atom's value through the full pipeline:
// interceptor gate/transform, before-write middleware in order, store,
// mark/propagate/notify, after-write middleware in reverse. A write
// whose final value compares equal to the current one is deduplicated:
// nothing is stored, dirtied, or notified.
func (s *Store) Write(a Atom, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if err := s.writeLocked(a, v, false); err != nil {
		return err
	}
	if s.batching == 0 {
		s.flushLocked()
	}
	return nil
}

// Update applies a read-modify-write to a source atom.
func (s *Store) Update(a Atom, fn func(current any) any) error {
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
	if err := s.writeLocked(a, fn(n.value), false); err != nil {
		return err
	}
	if s.batching == 0 {
		s.flushLocked()
	}
	return nil
}

func (s *Store) writeLocked(a Atom, v any, internal bool) error {
	n, err := s.node(a)
	if err != nil {
		return err
	}
	if n.kind != KindSource {
		return ErrReadOnlyAtom
	}
	if n.follower && !internal {
		return ErrReadOnlyAtom
	}

	cur := n.value
	if ic := n.interceptor; ic != nil {
		if ic.ShouldUpdate != nil && !ic.ShouldUpdate(cur, v) {
			// Rejected writes are silent.
			return nil
		}
		if ic.OnWrite != nil {
			v = ic.OnWrite(cur, v)
		}
	}
	for _, mw := range n.chain {
		if mw.BeforeWrite != nil {
			v = mw.BeforeWrite(n.atom, cur, v)
		}
	}
	if n.equal(cur, v) {
		return nil
	}

	n.value = v
	s.recordHistory(n, v)
	s.pendingDirty = append(s.pendingDirty, n.id())

	stored := v
	atom := n.atom
	chain := n.chain
	s.pendingAfter = append(s.pendingAfter, func() {
		for i := len(chain) - 1; i >= 0; i-- {
			if chain[i].AfterWrite != nil {
				chain[i].AfterWrite(atom, stored)
			}
		}
	})
	return nil
}

// --- Batching ---

// Batch is the write surface inside a Store.Batch call.
type Batch struct {
	s *Store
}

// Batch runs fn collecting all of its writes, then performs a single
// mark/propagate/notify pass, so a derived atom downstream of several
// written atoms recomputes and notifies at most once.
func (s *Store) Batch(fn func(b *Batch) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.batching++
	err := fn(&Batch{s: s})
	s.batching--
	if s.batching == 0 {
		s.flushLocked()
	}
	return err
}

// Write sets a source atom's value within the batch.
func (b *Batch) Write(a Atom, v any) error {
	return b.s.writeLocked(a, v, false)
}

// Update applies a read-modify-write within the batch.
func (b *Batch) Update(a Atom, fn func(current any) any) error {
	n, err := b.s.node(a)
	if err != nil {
		return err
	}
	if n.kind != KindSource {
		return ErrReadOnlyAtom
	}
	return b.s.writeLocked(a, fn(n.value), false)
}

// Read returns an atom's current value within the batch. Derived atoms
// read mid-batch may observe values from before the pending writes
// propagate.
func (b *Batch) Read(a Atom) (any, error) {
	return b.s.readLocked(a)
}

// --- Propagation ---

// flushLocked runs the two-phase mark/propagate pass over everything
// dirtied since the last flush, then notifies subscribers of atoms
// whose value actually changed, then runs queued after-write hooks.
func (s *Store) flushLocked() {
	if len(s.pendingDirty) == 0 && len(s.pendingAfter) == 0 {
		return
	}
	roots := s.pendingDirty
	s.pendingDirty = nil
	after := s.pendingAfter
	s.pendingAfter = nil

	changed := make(map[uint64]bool, len(roots))
	for _, id := range roots {
		changed[id] = true
	}

	visited := s.markLocked(roots)
	order := s.topoOrder(visited)

	for _, id := range order {
		if changed[id] {
			continue
		}
		n := s.nodes[id]
		switch n.kind {
		case KindDerived:
			if n.dirty {
				s.evaluate(n)
			}
			if n.evalErr == nil && !n.equal(n.prevValue, n.value) {
				changed[id] = true
			}
		case KindAsync:
			n.dirty = false
			if !n.started {
				continue
			}
			old := n.value
			s.startAsyncLocked(n)
			if !n.equal(old, n.value) {
				changed[id] = true
			}
		}
	}

	for _, id := range order {
		if !changed[id] {
			continue
		}
		n := s.nodes[id]
		v := n.value
		for _, sub := range n.subs {
			sub.fn(v)
		}
	}

	for _, fn := range after {
		fn()
	}
}

// --- Subscriptions ---

// Subscribe registers fn to run whenever the atom's value changes.
// Callbacks for one atom fire in registration order; across atoms the
// order is topological within a propagation pass. Subscribing to an
// unevaluated derived atom evaluates it; subscribing to an unstarted
// async atom starts it. The returned function removes the
// subscription and is safe to call more than once.
func (s *Store) Subscribe(a Atom, fn func(value any)) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	n, err := s.node(a)
	if err != nil {
		return nil, err
	}
	switch n.kind {
	case KindDerived:
		if !n.evaluated && !n.computing {
			s.evaluate(n)
		}
	case KindAsync:
		if !n.started {
			s.startAsyncLocked(n)
		}
	}

	n.nextSubID++
	id := n.nextSubID
	n.subs = append(n.subs, subscription{id: id, fn: fn})

	removed := false
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if removed {
			return
		}
		removed = true
		for i, sub := range n.subs {
			if sub.id == id {
				n.subs = append(n.subs[:i], n.subs[i+1:]...)
				break
			}
		}
	}, nil
}

// --- Inspection ---

// Has reports whether the handle belongs to this store.
func (s *Store) Has(a Atom) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.nodes[a.id]
	return ok && a.id != 0
}

// KindOf returns the atom's mutability kind.
func (s *Store) KindOf(a Atom) (Kind, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.node(a)
	if err != nil {
		return 0, err
	}
	return n.kind, nil
}

// Dependencies returns the atoms the given atom read during its last
// evaluation, in registration order.
func (s *Store) Dependencies(a Atom) ([]Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.node(a)
	if err != nil {
		return nil, err
	}
	return s.atomSet(n.deps), nil
}

// Dependents returns the atoms that depend on the given atom, in
// registration order.
func (s *Store) Dependents(a Atom) ([]Atom, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err := s.node(a)
	if err != nil {
		return nil, err
	}
	return s.atomSet(n.dependents), nil
}

func (s *Store) atomSet(set map[uint64]struct{}) []Atom {
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sortIDs(ids)
	atoms := make([]Atom, 0, len(ids))
	for _, id := range ids {
		atoms = append(atoms, s.nodes[id].atom)
	}
	return atoms
}

// --- Teardown ---

// Close tears the store down: in-flight async computations are
// abandoned, rate-follower timers stopped, and dispose hooks run once
// per atom in reverse registration order (and reverse chain order
// within an atom). Further operations return ErrClosed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for i := len(s.order) - 1; i >= 0; i-- {
		n := s.nodes[s.order[i]]
		if n.cancel != nil {
			n.cancel()
		}
		if n.timer != nil {
			n.timer.Stop()
		}
		for j := len(n.chain) - 1; j >= 0; j-- {
			if n.chain[j].Dispose != nil {
				n.chain[j].Dispose(n.atom)
			}
		}
	}
}

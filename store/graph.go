package store

import (
	"context"
	"sort"
	"time"
)

// node is a single cell in the graph. All fields are guarded by the
// owning store's mutex.
type node struct {
	atom  Atom
	kind  Kind
	value any
	equal EqualFunc

	compute      ComputeFunc
	computeAsync AsyncComputeFunc

	// deps holds the edges discovered during the last evaluation;
	// dependents is the reverse index.
	deps       map[uint64]struct{}
	dependents map[uint64]struct{}

	subs      []subscription
	nextSubID uint64

	chain       []*Middleware
	interceptor *Interceptor

	// derived bookkeeping
	evaluated bool
	dirty     bool
	computing bool
	evalErr   error
	// prevValue snapshots the value at mark time so change detection
	// survives lazy re-evaluation mid-propagation.
	prevValue any

	// async bookkeeping
	started    bool
	generation uint64
	cancel     context.CancelFunc
	retry      *RetryPolicy

	// rate-follower bookkeeping (debounce/throttle)
	follower   bool
	pendSeq    uint64
	pendValue  any
	hasPend    bool
	timer      *time.Timer
	windowOpen bool

	hist      *history
	replaying bool
}

type subscription struct {
	id uint64
	fn func(value any)
}

// setEdges replaces n's dependency set with the reads recorded during
// an evaluation, dropping edges that were not re-established.
func (s *Store) setEdges(n *node, reads map[uint64]struct{}) {
	for depID := range n.deps {
		if _, ok := reads[depID]; ok {
			continue
		}
		delete(n.deps, depID)
		if dep, ok := s.nodes[depID]; ok {
			delete(dep.dependents, n.id())
		}
	}
	for depID := range reads {
		if _, ok := n.deps[depID]; ok {
			continue
		}
		dep, ok := s.nodes[depID]
		if !ok {
			continue
		}
		n.deps[depID] = struct{}{}
		dep.dependents[n.id()] = struct{}{}
	}
}

func (n *node) id() uint64 { return n.atom.id }

// markLocked walks dependents breadth-first from the changed roots,
// marking every reachable node dirty exactly once. It returns the
// visited set including the roots themselves.
func (s *Store) markLocked(roots []uint64) map[uint64]struct{} {
	visited := make(map[uint64]struct{}, len(roots))
	queue := make([]uint64, 0, len(roots))
	for _, id := range roots {
		if _, ok := visited[id]; ok {
			continue
		}
		visited[id] = struct{}{}
		queue = append(queue, id)
	}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		for depID := range s.nodes[id].dependents {
			if _, ok := visited[depID]; ok {
				continue
			}
			visited[depID] = struct{}{}
			dep := s.nodes[depID]
			dep.dirty = true
			dep.prevValue = dep.value
			queue = append(queue, depID)
		}
	}
	return visited
}

// topoOrder orders the given set so every node follows all of its
// in-set dependencies, with registration order as the tiebreak.
func (s *Store) topoOrder(set map[uint64]struct{}) []uint64 {
	indeg := make(map[uint64]int, len(set))
	for id := range set {
		d := 0
		for depID := range s.nodes[id].deps {
			if _, ok := set[depID]; ok {
				d++
			}
		}
		indeg[id] = d
	}

	var ready []uint64
	for id, d := range indeg {
		if d == 0 {
			ready = append(ready, id)
		}
	}
	sortIDs(ready)

	order := make([]uint64, 0, len(set))
	for len(ready) > 0 {
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		var next []uint64
		for depID := range s.nodes[id].dependents {
			if _, ok := set[depID]; !ok {
				continue
			}
			indeg[depID]--
			if indeg[depID] == 0 {
				next = append(next, depID)
			}
		}
		sortIDs(next)
		ready = append(ready, next...)
	}
	return order
}

// evaluate recomputes a derived node inside a fresh tracking scope and
// re-derives its edge set. A failed computation keeps the previous
// value in place; the error sticks until a dependency changes again.
func (s *Store) evaluate(n *node) {
	n.computing = true
	tr := &Tracker{s: s, locked: true, reads: make(map[uint64]struct{})}
	v, err := n.compute(tr)
	n.computing = false
	n.dirty = false
	n.evaluated = true
	s.setEdges(n, tr.reads)
	if err != nil {
		n.evalErr = err
		return
	}
	n.evalErr = nil
	n.value = v
}

func sortIDs(ids []uint64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

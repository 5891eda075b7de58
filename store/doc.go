// Package store implements a fine-grained reactive state engine: a
// graph of typed, named cells ("atoms") that can be read, written,
// derived, and observed, with first-class async computations, write
// interception/middleware, optimistic writes, and temporal features
// (branching, undo/redo).
//
// # Key Features
//
//   - Dynamic dependency tracking: edges are re-derived on every
//     evaluation, so stale dependencies fall away on their own
//   - Glitch-free propagation: a two-phase mark/propagate pass
//     recomputes each derived atom exactly once per batch, in
//     topological order
//   - Generation-tokened async atoms with cancellation, retry with
//     backoff, debounce, and throttle
//   - A layered write pipeline: per-atom interceptor gate/transform
//     ahead of an ordered middleware chain
//   - Optimistic writes with confirm/rollback sequencing
//   - Copy-on-write branches and per-atom undo/redo history
//
// # Atoms
//
// Atoms are registered on a Store and live for its lifetime:
//
//	s := store.New(store.DefaultConfig())
//	defer s.Close()
//
//	first := s.Source("first", "Ada")
//	last := s.Source("last", "Lovelace")
//	full := s.Derived("full", func(tr *store.Tracker) (any, error) {
//	    f, _ := tr.Get(first)
//	    l, _ := tr.Get(last)
//	    return f.(string) + " " + l.(string), nil
//	})
//
// Async atoms hold an [AsyncValue], a closed Loading/Data/Error union:
//
//	user := s.Async("user", func(ctx context.Context, tr *store.Tracker) (any, error) {
//	    id, _ := tr.Get(userID)
//	    return fetchUser(ctx, id.(string))
//	}, store.WithRetry(store.RetryPolicy{MaxAttempts: 3, Delay: time.Second, BackoffMultiplier: 2}))
//
// # Batching
//
// Use [Store.Batch] to coalesce several writes into one propagation
// pass; an atom downstream of every written atom still recomputes and
// notifies only once.
//
// # Concurrency
//
// All operations on one store are serialized; only async computations
// run on their own goroutines. Subscriber callbacks and middleware
// hooks must not call back into the same store synchronously.
//
// # Errors
//
// The package defines sentinel errors matched with errors.Is:
//
//   - [ErrUnknownAtom] - handle was not issued by this store
//   - [ErrReadOnlyAtom] - write to a derived, async, or follower atom
//   - [ErrDependencyCycle] - a computation read itself
//   - [ErrBranchClosed] - branch used after Merge or Discard
//   - [ErrNothingToUndo], [ErrNothingToRedo] - history edge reached
package store

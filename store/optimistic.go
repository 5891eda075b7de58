package store

import "context"

// Optimistic applies optimisticValue to the atom immediately, runs
// action, then confirms with the action's result or rolls back to
// rollbackValue on failure. Every write goes through the atom's full
// pipeline. The action's error is returned to the caller after the
// rollback lands.
//
// The rollback value must be captured by the caller before the call;
// the coordinator never snapshots the current value itself, so
// concurrent optimistic writes to the same atom cannot smuggle each
// other's optimistic state into a rollback.
//
// Optimistic blocks until the action finishes; callers wanting
// fire-and-forget semantics should run it on their own goroutine.
func (s *Store) Optimistic(ctx context.Context, a Atom, optimisticValue any, action func(ctx context.Context) (any, error), rollbackValue any) error {
	if err := s.Write(a, optimisticValue); err != nil {
		return err
	}

	result, err := action(ctx)
	if err != nil {
		if werr := s.Write(a, rollbackValue); werr != nil {
			s.logger.Warn("optimistic rollback write failed",
				"store", s.name,
				"atom", a.Name(),
				"error", werr,
			)
		}
		return err
	}

	return s.Write(a, result)
}

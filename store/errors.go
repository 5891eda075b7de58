package store

import "errors"

var (
	// ErrUnknownAtom is returned when a handle was not issued by this store.
	ErrUnknownAtom = errors.New("tendril: atom not registered in this store")

	// ErrReadOnlyAtom is returned when writing a derived, async, or
	// rate-follower atom.
	ErrReadOnlyAtom = errors.New("tendril: atom is not writable")

	// ErrNotAsync is returned when an async-only operation is applied to
	// a source or derived atom.
	ErrNotAsync = errors.New("tendril: atom is not async")

	// ErrDependencyCycle is returned when a derived computation reads
	// itself, directly or through other atoms.
	ErrDependencyCycle = errors.New("tendril: dependency cycle detected")

	// ErrClosed is returned when operating on a closed store.
	ErrClosed = errors.New("tendril: store is closed")

	// ErrBranchClosed is returned when using a branch after Merge or Discard.
	ErrBranchClosed = errors.New("tendril: branch has been merged or discarded")

	// ErrHistoryDisabled is returned when undo/redo is used on an atom
	// without an attached history log.
	ErrHistoryDisabled = errors.New("tendril: history not enabled for atom")

	// ErrNothingToUndo is returned when the history index is already at
	// its oldest entry.
	ErrNothingToUndo = errors.New("tendril: no earlier history entry")

	// ErrNothingToRedo is returned when the history index is already at
	// the log's tail.
	ErrNothingToRedo = errors.New("tendril: no later history entry")
)

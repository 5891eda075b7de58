package store

import (
	"context"
	"reflect"
	"time"
)

// Kind describes how an atom's value is produced.
type Kind int

const (
	// KindSource atoms hold externally written values.
	KindSource Kind = iota

	// KindDerived atoms compute their value from other atoms.
	KindDerived

	// KindAsync atoms compute an AsyncValue via a suspending operation.
	KindAsync
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSource:
		return "source"
	case KindDerived:
		return "derived"
	case KindAsync:
		return "async"
	default:
		return "unknown"
	}
}

// Atom is a stable handle to a reactive cell registered in a Store.
// The zero Atom is invalid. Handles are only meaningful to the store
// (or branches of the store) that issued them.
type Atom struct {
	id   uint64
	name string
}

// Name returns the human-readable name given at registration.
func (a Atom) Name() string { return a.name }

// Valid reports whether the handle was issued by a store.
func (a Atom) Valid() bool { return a.id != 0 }

// ComputeFunc computes a derived atom's value. Every atom read through
// the Tracker during a call is recorded as a dependency edge; edges not
// read again on the next call are dropped.
type ComputeFunc func(tr *Tracker) (any, error)

// AsyncComputeFunc computes an async atom's payload. The context is
// canceled when the computation is superseded by a newer generation or
// the store closes; cancellation is advisory and the result of a
// superseded run is discarded either way.
type AsyncComputeFunc func(ctx context.Context, tr *Tracker) (any, error)

// EqualFunc compares two values for the purpose of write deduplication
// and change notification.
type EqualFunc func(a, b any) bool

// RetryPolicy configures automatic re-runs of a failed async computation.
// Retries apply only to genuine failures of the current generation; a
// superseding start resets the attempt counter and aborts a pending wait.
type RetryPolicy struct {
	// MaxAttempts is the number of retries after the initial attempt.
	MaxAttempts int

	// Delay is the wait before the first retry.
	Delay time.Duration

	// BackoffMultiplier scales the delay per attempt
	// (delay × multiplier^attempt). Values <= 0 mean no backoff.
	BackoffMultiplier float64

	// ShouldRetry, when set, is consulted with the error and the
	// zero-based index of the failed attempt. A nil ShouldRetry
	// retries every error.
	ShouldRetry func(err error, attempt int) bool
}

// AtomOption customizes atom registration.
type AtomOption func(*atomOptions)

type atomOptions struct {
	equal       EqualFunc
	interceptor *Interceptor
	middleware  []*Middleware
	retry       *RetryPolicy
}

// WithEqual overrides the equality used for write deduplication and
// change detection. The default is reflect.DeepEqual.
func WithEqual(fn EqualFunc) AtomOption {
	return func(o *atomOptions) { o.equal = fn }
}

// WithInterceptor attaches the atom's single gate/transform, evaluated
// before any middleware on every write.
func WithInterceptor(ic *Interceptor) AtomOption {
	return func(o *atomOptions) { o.interceptor = ic }
}

// WithMiddleware appends atom-specific middleware, run after the
// store-wide chain in the order given.
func WithMiddleware(mw ...*Middleware) AtomOption {
	return func(o *atomOptions) { o.middleware = append(o.middleware, mw...) }
}

// WithRetry sets the retry policy for an async atom. It has no effect
// on other kinds.
func WithRetry(p RetryPolicy) AtomOption {
	return func(o *atomOptions) { o.retry = &p }
}

func newAtomOptions(opts []AtomOption) atomOptions {
	o := atomOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.equal == nil {
		o.equal = deepEqual
	}
	return o
}

func deepEqual(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

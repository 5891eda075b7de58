package store

import "log/slog"

// Interceptor is an atom's single gate/transform, evaluated before the
// middleware chain on every write. A nil hook is a no-op.
type Interceptor struct {
	// ShouldUpdate gates the write. Returning false aborts it
	// entirely: no middleware runs and the current value stays.
	// Rejections are silent; callers that need to distinguish
	// "rejected" from "deduplicated" must inspect the atom's value.
	ShouldUpdate func(current, incoming any) bool

	// OnWrite transforms the incoming value before the middleware
	// chain sees it.
	OnWrite func(current, incoming any) any
}

// Middleware is an ordered set of optional lifecycle hooks wrapped
// around an atom's writes. Every hook defaults to a no-op. Before and
// init hooks run in registration order (store-wide first, then
// atom-specific); after and dispose hooks run in reverse.
type Middleware struct {
	// Name identifies the middleware in diagnostics.
	Name string

	// Init runs exactly once per atom at registration. For source
	// atoms the returned value replaces the initial value handed to
	// the next Init in the chain; for derived and async atoms the
	// return value is ignored.
	Init func(atom Atom, value any) any

	// BeforeWrite receives the previous stage's output and returns
	// the value to pass forward. The final stage's output is stored.
	BeforeWrite func(atom Atom, current, incoming any) any

	// AfterWrite runs after the value is stored and propagated,
	// receiving the final stored value.
	AfterWrite func(atom Atom, stored any)

	// OnError runs when an atom's async computation fails for good,
	// independent of the write path.
	OnError func(atom Atom, err error)

	// Dispose runs exactly once per atom when the store closes.
	Dispose func(atom Atom)
}

// NewLoggingMiddleware returns a middleware that logs atom lifecycle
// events through the given logger. A nil logger falls back to
// slog.Default().
func NewLoggingMiddleware(logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{
		Name: "logging",
		Init: func(atom Atom, value any) any {
			logger.Debug("atom registered", "atom", atom.Name())
			return value
		},
		BeforeWrite: func(atom Atom, current, incoming any) any {
			logger.Debug("writing atom",
				"atom", atom.Name(),
				"current", current,
				"incoming", incoming,
			)
			return incoming
		},
		AfterWrite: func(atom Atom, stored any) {
			logger.Debug("atom write committed", "atom", atom.Name(), "stored", stored)
		},
		OnError: func(atom Atom, err error) {
			logger.Error("async computation failed", "atom", atom.Name(), "error", err)
		},
		Dispose: func(atom Atom) {
			logger.Debug("atom disposed", "atom", atom.Name())
		},
	}
}

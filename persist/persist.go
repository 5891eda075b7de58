// Package persist provides a persistence middleware for tendril atoms,
// serializing values through a pluggable serializer into a thin
// key-value storage adapter.
package persist

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/jacentio/tendril/store"
)

// Adapter is the thin I/O boundary the middleware writes through.
// Implementations wrap an existing key-value backend; the engine never
// implements storage itself.
type Adapter interface {
	// Read returns the stored value for key, with false when absent.
	Read(ctx context.Context, key string) (string, bool, error)

	// Write stores value under key.
	Write(ctx context.Context, key, value string) error

	// Delete removes key.
	Delete(ctx context.Context, key string) error

	// Clear removes every key written by this adapter.
	Clear(ctx context.Context) error
}

// Serializer converts atom values to and from their stored form.
// Round-tripping must be lossless for every value type the atoms hold.
type Serializer struct {
	Marshal   func(v any) (string, error)
	Unmarshal func(s string) (any, error)
}

// JSONSerializer round-trips values through encoding/json. Numbers
// come back as float64 and objects as map[string]any, per the
// package's untyped decoding rules.
func JSONSerializer() Serializer {
	return Serializer{
		Marshal: func(v any) (string, error) {
			b, err := json.Marshal(v)
			if err != nil {
				return "", err
			}
			return string(b), nil
		},
		Unmarshal: func(s string) (any, error) {
			var v any
			if err := json.Unmarshal([]byte(s), &v); err != nil {
				return nil, err
			}
			return v, nil
		},
	}
}

// StringSerializer stores string values as-is.
func StringSerializer() Serializer {
	return Serializer{
		Marshal: func(v any) (string, error) {
			s, _ := v.(string)
			return s, nil
		},
		Unmarshal: func(s string) (any, error) {
			return s, nil
		},
	}
}

// Options configures the persistence middleware.
type Options struct {
	// Prefix is prepended to atom names to form storage keys.
	Prefix string

	// Debounce, when positive, coalesces flushes: after-write values
	// are buffered and written out once no write has landed for this
	// long. Zero flushes on every write.
	Debounce time.Duration

	// Logger receives flush failures. Default: slog.Default().
	Logger *slog.Logger
}

// New builds a persistence middleware around the adapter. On init the
// middleware hydrates each source atom from storage, replacing its
// initial value when a stored one exists; on after-write it serializes
// the stored value back out, optionally debounced. Attach it to source
// atoms (store-wide or per atom); non-source atoms are left alone.
//
// Flush failures are logged and never fail the write: storage catches
// up on the next flush.
func New(adapter Adapter, ser Serializer, opts Options) *store.Middleware {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	p := &persistor{
		adapter: adapter,
		ser:     ser,
		opts:    opts,
		pending: make(map[string]string),
	}
	return &store.Middleware{
		Name:       "persist",
		Init:       p.hydrate,
		AfterWrite: p.afterWrite,
		Dispose:    p.dispose,
	}
}

type persistor struct {
	adapter Adapter
	ser     Serializer
	opts    Options

	mu       sync.Mutex
	pending  map[string]string
	timer    *time.Timer
	disposed bool
}

func (p *persistor) key(atom store.Atom) string {
	return p.opts.Prefix + atom.Name()
}

// hydrate replaces an atom's initial value with the stored one, if
// any. Derived and async atoms register with a nil value and pass
// through untouched.
func (p *persistor) hydrate(atom store.Atom, value any) any {
	if value == nil {
		return value
	}
	raw, ok, err := p.adapter.Read(context.Background(), p.key(atom))
	if err != nil {
		p.opts.Logger.Warn("hydration read failed",
			"atom", atom.Name(),
			"error", err,
		)
		return value
	}
	if !ok {
		return value
	}
	v, err := p.ser.Unmarshal(raw)
	if err != nil {
		p.opts.Logger.Warn("hydration deserialize failed",
			"atom", atom.Name(),
			"error", err,
		)
		return value
	}
	return v
}

func (p *persistor) afterWrite(atom store.Atom, stored any) {
	raw, err := p.ser.Marshal(stored)
	if err != nil {
		p.opts.Logger.Warn("serialize failed",
			"atom", atom.Name(),
			"error", err,
		)
		return
	}
	key := p.key(atom)

	if p.opts.Debounce <= 0 {
		p.writeOut(map[string]string{key: raw})
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.disposed {
		return
	}
	p.pending[key] = raw
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.opts.Debounce, p.flush)
}

// flush drains the pending buffer and writes it out.
func (p *persistor) flush() {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[string]string)
	p.mu.Unlock()
	p.writeOut(batch)
}

// writeOut pushes entries to the adapter, tolerating partial failure;
// a failed key is retried naturally on its next flush.
func (p *persistor) writeOut(batch map[string]string) {
	for key, raw := range batch {
		if err := p.adapter.Write(context.Background(), key, raw); err != nil {
			p.opts.Logger.Warn("persist write failed",
				"key", key,
				"error", err,
			)
		}
	}
}

// dispose flushes whatever is still buffered. It runs once even though
// the store calls Dispose per atom.
func (p *persistor) dispose(store.Atom) {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return
	}
	p.disposed = true
	if p.timer != nil {
		p.timer.Stop()
	}
	batch := p.pending
	p.pending = nil
	p.mu.Unlock()
	p.writeOut(batch)
}

package store

import "fmt"

// AsyncState is the variant tag of an AsyncValue.
type AsyncState int

const (
	// StateLoading means no result for the current generation yet.
	StateLoading AsyncState = iota

	// StateData means the computation resolved successfully.
	StateData

	// StateError means the computation failed for good.
	StateError
)

// String returns the state name.
func (s AsyncState) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateData:
		return "data"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// AsyncValue is the closed three-variant value of an async atom:
// Loading (optionally carrying the previous data), Data, or Error.
// Exactly one variant holds at a time; inspect it by switching on
// State. The zero AsyncValue is Loading with no previous data.
type AsyncValue struct {
	state AsyncState
	value any
	prev  any
	// hasPrev tracks whether a Data value has ever been observed; it
	// is carried across Error so a later Loading can still expose it.
	hasPrev bool
	err     error
	stack   []byte
}

// NewLoading returns a Loading value with no previous data.
func NewLoading() AsyncValue {
	return AsyncValue{state: StateLoading}
}

// NewData returns a Data value.
func NewData(v any) AsyncValue {
	return AsyncValue{state: StateData, value: v, prev: v, hasPrev: true}
}

// NewError returns an Error value.
func NewError(err error) AsyncValue {
	return AsyncValue{state: StateError, err: err}
}

// State returns the variant tag.
func (v AsyncValue) State() AsyncState { return v.state }

// Value returns the payload when the state is Data.
func (v AsyncValue) Value() (any, bool) {
	if v.state != StateData {
		return nil, false
	}
	return v.value, true
}

// Previous returns the last resolved data carried by a Loading value,
// if any. A first-ever load has no previous data.
func (v AsyncValue) Previous() (any, bool) {
	if v.state != StateLoading || !v.hasPrev {
		return nil, false
	}
	return v.prev, true
}

// Err returns the failure when the state is Error, nil otherwise.
func (v AsyncValue) Err() error {
	if v.state != StateError {
		return nil
	}
	return v.err
}

// Stack returns the backtrace captured when the Error value was
// produced, nil for other states.
func (v AsyncValue) Stack() []byte {
	if v.state != StateError {
		return nil
	}
	return v.stack
}

// String renders the value for diagnostics.
func (v AsyncValue) String() string {
	switch v.state {
	case StateData:
		return fmt.Sprintf("data(%v)", v.value)
	case StateError:
		return fmt.Sprintf("error(%v)", v.err)
	default:
		if v.hasPrev {
			return fmt.Sprintf("loading(previous=%v)", v.prev)
		}
		return "loading"
	}
}

// loadingFrom builds the Loading value for a new generation, carrying
// the last resolved data forward per the previous-value invariant.
func loadingFrom(cur AsyncValue) AsyncValue {
	return AsyncValue{state: StateLoading, prev: cur.prev, hasPrev: cur.hasPrev}
}

// errorFrom builds the Error value for a failed generation, retaining
// the last resolved data so a later Loading can still carry it.
func errorFrom(cur AsyncValue, err error, stack []byte) AsyncValue {
	return AsyncValue{state: StateError, err: err, stack: stack, prev: cur.prev, hasPrev: cur.hasPrev}
}

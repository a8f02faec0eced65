package kago

import "errors"

// Sentinel errors reported by handle and lifecycle operations. They are
// local and immediate: an invalid handle or a closed owner fails the one
// operation that touched it and nothing else.
var (
	// ErrInvalidValue is returned by every operation on an empty or
	// abandoned Value.
	ErrInvalidValue = errors.New("value is invalid")

	// ErrRealmClosed is returned by operations on a closed Realm.
	ErrRealmClosed = errors.New("realm is closed")

	// ErrRuntimeClosed is returned by operations on a closed Runtime.
	ErrRuntimeClosed = errors.New("runtime is closed")

	// ErrWrongType is returned by the strict As* accessors when the
	// value does not have the requested type.
	ErrWrongType = errors.New("value has wrong type")

	// ErrNoSuchClass is returned when constructing an instance of a
	// class that was never registered in the realm's runtime.
	ErrNoSuchClass = errors.New("class is not registered")

	// ErrClassRegistered is returned when a class name is registered a
	// second time with a different definition.
	ErrClassRegistered = errors.New("class name already registered with a different definition")

	// ErrPendingError is returned when a Go callable fails while a
	// previously forwarded error is still waiting to be delivered.
	// One native error crosses the boundary at a time.
	ErrPendingError = errors.New("a forwarded error is already pending")
)

// ScriptException is a JavaScript exception that surfaced to the host.
// Eval, Call and the other entry points return it when script code threw
// and no script frame remained to catch the value.
//
// Value holds the thrown value, duplicated into host ownership; callers
// that keep the exception past the realm's lifetime may still inspect
// Message and Stack after Value reports invalid.
type ScriptException struct {
	// Value is the thrown JavaScript value. Any value can be thrown,
	// not only Error instances.
	Value Value

	// Message is the engine's string rendering of the thrown value.
	Message string

	// Stack is the stack trace text when the thrown value is an Error
	// instance, empty otherwise.
	Stack string

	// IsError reports whether the thrown value is an Error instance.
	IsError bool
}

func (e *ScriptException) Error() string { return e.Message }

// Rethrow carries a JavaScript value thrown from inside a Go callable
// that still has script frames above it. Returning it from a callable
// (see Realm.Throw) re-throws the value into the engine, so intervening
// script try/catch blocks observe the original value. Only when the
// exception unwinds past the last script frame does it surface to the
// host as a ScriptException.
type Rethrow struct {
	// Value is the value to throw. Ownership passes back to the engine
	// when the callable returns.
	Value Value
}

func (e *Rethrow) Error() string { return "script throw: " + e.Value.String() }

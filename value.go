package kago

import "fmt"

// Value is a handle to one JavaScript value. Handles are cheap to copy;
// all copies share one underlying record, so freeing or abandoning any
// copy invalidates them all. Owned handles must be released with Free
// unless their realm tears down first, in which case the realm abandons
// them and they merely report invalid. Borrowed handles (callback
// arguments, this bindings, engine singletons) are views owned by the
// engine; Free on them is a no-op and Dup turns them into owned ones.
type Value struct {
	rec *valueRecord
}

// valueRecord is the shared state behind every copy of a Value. Owned
// records sit in their realm's tracking list until freed or abandoned.
type valueRecord struct {
	realm    *Realm
	ptr      ValuePtr
	borrowed bool
	linked   bool
	prev     *valueRecord
	next     *valueRecord
}

// Valid reports whether the handle still refers to a live value in a
// live realm. Every operation on an invalid handle fails with
// ErrInvalidValue (or a zero value from the fail-soft accessors); none
// of them crash.
func (v Value) Valid() bool {
	return v.rec != nil && v.rec.realm != nil && !v.rec.realm.disposed
}

func (v Value) live() (*Realm, error) {
	if !v.Valid() {
		return nil, ErrInvalidValue
	}
	return v.rec.realm, nil
}

// Pointer returns the raw engine pointer, zero for invalid handles.
func (v Value) Pointer() ValuePtr {
	if !v.Valid() {
		return 0
	}
	return v.rec.ptr
}

// Realm returns the realm that owns the value, nil for invalid handles.
func (v Value) Realm() *Realm {
	if !v.Valid() {
		return nil
	}
	return v.rec.realm
}

// Free releases the engine value. Borrowed and already released handles
// are no-ops.
func (v Value) Free() {
	if !v.Valid() || v.rec.borrowed {
		return
	}
	v.rec.realm.releaseRecord(v.rec)
}

// Dup returns a new independently owned handle to the same value.
func (v Value) Dup() (Value, error) {
	r, err := v.live()
	if err != nil {
		return Value{}, err
	}
	ptr, err := r.rt.registry.DupValue(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	if err != nil {
		return Value{}, err
	}
	return r.adopt(ptr), nil
}

// Type predicates. Invalid handles report false.

func (v Value) IsUndefined() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsUndefined(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

func (v Value) IsNull() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsNull(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

func (v Value) IsBool() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsBool(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

func (v Value) IsNumber() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsNumber(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

func (v Value) IsString() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsString(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

func (v Value) IsObject() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsObject(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

func (v Value) IsFunction() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsFunction(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

func (v Value) IsArray() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsArray(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

func (v Value) IsError() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsError(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

// IsException reports whether the handle holds the engine's exception
// marker rather than a real value. The Throw helpers return markers.
func (v Value) IsException() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	ok, _ := r.rt.registry.IsException(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return ok
}

// Strict accessors. They fail with ErrWrongType instead of coercing
// across types.

// AsBool returns the boolean value.
func (v Value) AsBool() (bool, error) {
	r, err := v.live()
	if err != nil {
		return false, err
	}
	if !v.IsBool() {
		return false, ErrWrongType
	}
	b, _, err := r.rt.registry.ToBool(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return b, err
}

// AsInt32 returns the numeric value as an int32.
func (v Value) AsInt32() (int32, error) {
	r, err := v.live()
	if err != nil {
		return 0, err
	}
	if !v.IsNumber() {
		return 0, ErrWrongType
	}
	n, _, err := r.rt.registry.ToInt32(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return n, err
}

// AsUint32 returns the numeric value as a uint32.
func (v Value) AsUint32() (uint32, error) {
	r, err := v.live()
	if err != nil {
		return 0, err
	}
	if !v.IsNumber() {
		return 0, ErrWrongType
	}
	n, _, err := r.rt.registry.ToUint32(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return n, err
}

// AsInt64 returns the numeric value as an int64.
func (v Value) AsInt64() (int64, error) {
	r, err := v.live()
	if err != nil {
		return 0, err
	}
	if !v.IsNumber() {
		return 0, ErrWrongType
	}
	n, _, err := r.rt.registry.ToInt64(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return n, err
}

// AsFloat64 returns the numeric value as a float64.
func (v Value) AsFloat64() (float64, error) {
	r, err := v.live()
	if err != nil {
		return 0, err
	}
	if !v.IsNumber() {
		return 0, ErrWrongType
	}
	n, _, err := r.rt.registry.ToFloat64(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return n, err
}

// AsString returns the string value without coercing other types.
func (v Value) AsString() (string, error) {
	r, err := v.live()
	if err != nil {
		return "", err
	}
	if !v.IsString() {
		return "", ErrWrongType
	}
	s, _, err := r.rt.registry.ToString(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	return s, err
}

// Fail-soft accessors. They coerce like the language would and return
// the zero value when the handle is invalid or the coercion fails.

func (v Value) Bool() bool {
	r, err := v.live()
	if err != nil {
		return false
	}
	b, ok, err := r.rt.registry.ToBool(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	if err != nil || !ok {
		return false
	}
	return b
}

func (v Value) Int32() int32 {
	r, err := v.live()
	if err != nil {
		return 0
	}
	n, ok, err := r.rt.registry.ToInt32(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	if err != nil || !ok {
		return 0
	}
	return n
}

func (v Value) Uint32() uint32 {
	r, err := v.live()
	if err != nil {
		return 0
	}
	n, ok, err := r.rt.registry.ToUint32(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	if err != nil || !ok {
		return 0
	}
	return n
}

func (v Value) Int64() int64 {
	r, err := v.live()
	if err != nil {
		return 0
	}
	n, ok, err := r.rt.registry.ToInt64(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	if err != nil || !ok {
		return 0
	}
	return n
}

func (v Value) Float64() float64 {
	r, err := v.live()
	if err != nil {
		return 0
	}
	n, ok, err := r.rt.registry.ToFloat64(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	if err != nil || !ok {
		return 0
	}
	return n
}

// String renders the value with the engine's ToString. Invalid handles
// and failed conversions render as the empty string.
func (v Value) String() string {
	r, err := v.live()
	if err != nil {
		return ""
	}
	s, ok, err := r.rt.registry.ToString(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	if err != nil || !ok {
		return ""
	}
	return s
}

// Properties.

// Get returns the named property. The caller owns the result.
func (v Value) Get(name string) (Value, error) {
	r, err := v.live()
	if err != nil {
		return Value{}, err
	}
	defer r.enter()()
	ptr, err := r.rt.registry.GetProperty(r.rt.wasmCtx, r.ptr, v.rec.ptr, name)
	if err != nil {
		return Value{}, err
	}
	return r.wrapResult(ptr)
}

// Set assigns the named property. val is marshalled like a call
// argument: Values pass as themselves, plain Go values build fresh
// engine values, Go functions become callable script functions.
func (v Value) Set(name string, val any) error {
	r, err := v.live()
	if err != nil {
		return err
	}
	defer r.enter()()
	ptr, err := r.marshalTransfer(val)
	if err != nil {
		return err
	}
	status, err := r.rt.registry.SetProperty(r.rt.wasmCtx, r.ptr, v.rec.ptr, name, ptr)
	if err != nil {
		return err
	}
	if status < 0 {
		return r.takeException()
	}
	return nil
}

// GetIndex returns the i-th element. The caller owns the result.
func (v Value) GetIndex(i uint32) (Value, error) {
	r, err := v.live()
	if err != nil {
		return Value{}, err
	}
	defer r.enter()()
	ptr, err := r.rt.registry.GetIndex(r.rt.wasmCtx, r.ptr, v.rec.ptr, i)
	if err != nil {
		return Value{}, err
	}
	return r.wrapResult(ptr)
}

// SetIndex assigns the i-th element, marshalling val like Set.
func (v Value) SetIndex(i uint32, val any) error {
	r, err := v.live()
	if err != nil {
		return err
	}
	defer r.enter()()
	ptr, err := r.marshalTransfer(val)
	if err != nil {
		return err
	}
	status, err := r.rt.registry.SetIndex(r.rt.wasmCtx, r.ptr, v.rec.ptr, i, ptr)
	if err != nil {
		return err
	}
	if status < 0 {
		return r.takeException()
	}
	return nil
}

// Calls.

// Call invokes the value as a function with undefined as this.
func (v Value) Call(args ...any) (Value, error) {
	return v.CallWith(Value{}, args...)
}

// CallWith invokes the value as a function with an explicit this. An
// invalid this calls with undefined, matching how missing arguments
// are padded.
func (v Value) CallWith(this Value, args ...any) (Value, error) {
	r, err := v.live()
	if err != nil {
		return Value{}, err
	}
	defer r.enter()()
	argv, release, err := r.marshalArgs(args)
	if err != nil {
		return Value{}, err
	}
	defer release()
	thisPtr := r.undefPtr
	if this.Valid() && this.rec.realm == r {
		thisPtr = this.rec.ptr
	}
	ptr, err := r.rt.registry.Call(r.rt.wasmCtx, r.ptr, v.rec.ptr, thisPtr, argv)
	if err != nil {
		return Value{}, err
	}
	return r.wrapResult(ptr)
}

// Invoke calls the named method with the value itself as this.
func (v Value) Invoke(method string, args ...any) (Value, error) {
	fn, err := v.Get(method)
	if err != nil {
		return Value{}, err
	}
	defer fn.Free()
	return fn.CallWith(v, args...)
}

// CallConstructor invokes the value as a constructor, like new does.
func (v Value) CallConstructor(args ...any) (Value, error) {
	r, err := v.live()
	if err != nil {
		return Value{}, err
	}
	defer r.enter()()
	argv, release, err := r.marshalArgs(args)
	if err != nil {
		return Value{}, err
	}
	defer release()
	ptr, err := r.rt.registry.CallConstructor(r.rt.wasmCtx, r.ptr, v.rec.ptr, argv)
	if err != nil {
		return Value{}, err
	}
	return r.wrapResult(ptr)
}

// StrictEquals reports whether the two values compare === equal. Both
// handles must be valid and belong to the same realm.
func (v Value) StrictEquals(other Value) (bool, error) {
	r, err := v.live()
	if err != nil {
		return false, err
	}
	if _, err := other.live(); err != nil {
		return false, err
	}
	if other.rec.realm != r {
		return false, fmt.Errorf("values belong to different realms")
	}
	return r.rt.registry.StrictEquals(r.rt.wasmCtx, r.ptr, v.rec.ptr, other.rec.ptr)
}

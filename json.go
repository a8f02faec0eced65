package kago

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewFromJSON marshals a Go value to JSON and parses it inside the
// engine. It is the wide bridge for structured data: anything jsoniter
// can marshal arrives as plain objects, arrays and primitives.
func (r *Realm) NewFromJSON(v any) (Value, error) {
	if r.disposed {
		return Value{}, ErrRealmClosed
	}
	data, err := json.Marshal(v)
	if err != nil {
		return Value{}, fmt.Errorf("marshal: %w", err)
	}
	ptr, err := r.rt.registry.JSONParse(r.rt.wasmCtx, r.ptr, data)
	if err != nil {
		return Value{}, err
	}
	return r.wrapResult(ptr)
}

// BindJSON publishes a Go value on the global object under name, going
// through [Realm.NewFromJSON].
func (r *Realm) BindJSON(name string, v any) error {
	val, err := r.NewFromJSON(v)
	if err != nil {
		return err
	}
	defer val.Free()
	return r.SetGlobal(name, val)
}

// DecodeJSON stringifies the value inside the engine and unmarshals
// the result into out, which must be a pointer. Values JSON cannot
// represent (undefined, bare functions) fail.
func (v Value) DecodeJSON(out any) error {
	r, err := v.live()
	if err != nil {
		return err
	}
	ptr, err := r.rt.registry.JSONStringify(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	if err != nil {
		return err
	}
	sv, err := r.wrapResult(ptr)
	if err != nil {
		return err
	}
	defer sv.Free()
	if sv.IsUndefined() {
		return fmt.Errorf("value has no JSON representation")
	}
	s, err := sv.AsString()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), out); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	return nil
}

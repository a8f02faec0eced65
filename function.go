package kago

import (
	"fmt"
	"reflect"
)

// hostFunc is one Go callable reachable from script. The store in
// Runtime keys every live hostFunc by FuncID; the engine routes
// invocations back through the call_function import.
type hostFunc interface {
	invoke(r *Realm, this ValuePtr, argv []ValuePtr) (Value, error)
}

// funcDesc is the registration-time shape of one plain Go function:
// whether it takes the raw Args view, which typed parameters follow,
// and what it returns. The shape is deduced once, when the function is
// bound; every invocation just interprets it.
type funcDesc struct {
	fn       reflect.Value
	name     string
	wantArgs bool
	params   []paramKind
	results  resultShape
}

type paramKind int

const (
	paramValue paramKind = iota
	paramBool
	paramInt32
	paramUint32
	paramInt64
	paramFloat64
	paramString
)

type resultShape int

const (
	retNone resultShape = iota
	retValue
	retError
	retValueError
)

var (
	typeValue = reflect.TypeOf(Value{})
	typeArgs  = reflect.TypeOf(Args{})
	typeError = reflect.TypeOf((*error)(nil)).Elem()
)

// bindCallable deduces the descriptor for fn. Unsupported signatures
// fail here, at registration, never at call time.
func bindCallable(name string, fn any) (*funcDesc, error) {
	rv := reflect.ValueOf(fn)
	if !rv.IsValid() || rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("%s: not a function: %T", name, fn)
	}
	if rv.IsNil() {
		return nil, fmt.Errorf("%s: nil function", name)
	}
	ft := rv.Type()
	if ft.IsVariadic() {
		return nil, fmt.Errorf("%s: variadic functions are not supported", name)
	}

	desc := &funcDesc{fn: rv, name: name}
	in := 0
	if ft.NumIn() > 0 && ft.In(0) == typeArgs {
		desc.wantArgs = true
		in = 1
	}
	for ; in < ft.NumIn(); in++ {
		kind, err := paramKindOf(ft.In(in))
		if err != nil {
			return nil, fmt.Errorf("%s: parameter %d: %w", name, in, err)
		}
		desc.params = append(desc.params, kind)
	}

	switch ft.NumOut() {
	case 0:
		desc.results = retNone
	case 1:
		if ft.Out(0) == typeError {
			desc.results = retError
			break
		}
		if !canMarshal(ft.Out(0)) {
			return nil, fmt.Errorf("%s: unsupported result type %s", name, ft.Out(0))
		}
		desc.results = retValue
	case 2:
		if ft.Out(1) != typeError {
			return nil, fmt.Errorf("%s: second result must be error, have %s", name, ft.Out(1))
		}
		if !canMarshal(ft.Out(0)) {
			return nil, fmt.Errorf("%s: unsupported result type %s", name, ft.Out(0))
		}
		desc.results = retValueError
	default:
		return nil, fmt.Errorf("%s: at most two results are supported, have %d", name, ft.NumOut())
	}
	return desc, nil
}

func paramKindOf(t reflect.Type) (paramKind, error) {
	if t == typeValue {
		return paramValue, nil
	}
	switch t.Kind() {
	case reflect.Bool:
		return paramBool, nil
	case reflect.Int32:
		return paramInt32, nil
	case reflect.Uint32:
		return paramUint32, nil
	case reflect.Int64:
		return paramInt64, nil
	case reflect.Float64:
		return paramFloat64, nil
	case reflect.String:
		return paramString, nil
	}
	return 0, fmt.Errorf("unsupported parameter type %s", t)
}

// canMarshal reports whether marshalTransfer accepts values of type t.
func canMarshal(t reflect.Type) bool {
	if t == typeValue {
		return true
	}
	switch t.Kind() {
	case reflect.Bool, reflect.Int, reflect.Int32, reflect.Int64,
		reflect.Uint32, reflect.Float64, reflect.String, reflect.Func:
		return true
	}
	return false
}

// arity is the declared typed-parameter count, the arity the script
// function advertises.
func (d *funcDesc) arity() int32 { return int32(len(d.params)) }

// invoke adapts one script invocation to the Go signature. The
// argument view is padded with undefined to the declared arity, so its
// length is max(arity, argc); conversions are fail-soft and produce
// zero values for mismatched types, so a sloppy script call still runs
// the Go function. Extra arguments stay visible through the raw Args
// view.
func (d *funcDesc) invoke(r *Realm, this ValuePtr, argv []ValuePtr) (Value, error) {
	if len(argv) < len(d.params) {
		padded := make([]ValuePtr, len(d.params))
		copy(padded, argv)
		for i := len(argv); i < len(padded); i++ {
			padded[i] = r.undefPtr
		}
		argv = padded
	}
	args := Args{realm: r, this: this, argv: argv}
	in := make([]reflect.Value, 0, len(d.params)+1)
	if d.wantArgs {
		in = append(in, reflect.ValueOf(args))
	}
	for i, kind := range d.params {
		in = append(in, convertParam(kind, args.Get(i)))
	}

	out := d.fn.Call(in)

	switch d.results {
	case retNone:
		return r.Undefined(), nil
	case retError:
		if e, _ := out[0].Interface().(error); e != nil {
			return Value{}, e
		}
		return r.Undefined(), nil
	case retValue:
		return r.resultValue(out[0])
	default: // retValueError
		if e, _ := out[1].Interface().(error); e != nil {
			return Value{}, e
		}
		return r.resultValue(out[0])
	}
}

// convertParam converts one argument to the declared parameter type.
// The strict accessors enforce the type; their zero results are the
// fail-soft fallback.
func convertParam(kind paramKind, v Value) reflect.Value {
	switch kind {
	case paramValue:
		return reflect.ValueOf(v)
	case paramBool:
		b, _ := v.AsBool()
		return reflect.ValueOf(b)
	case paramInt32:
		n, _ := v.AsInt32()
		return reflect.ValueOf(n)
	case paramUint32:
		n, _ := v.AsUint32()
		return reflect.ValueOf(n)
	case paramInt64:
		n, _ := v.AsInt64()
		return reflect.ValueOf(n)
	case paramFloat64:
		n, _ := v.AsFloat64()
		return reflect.ValueOf(n)
	default: // paramString
		s, _ := v.AsString()
		return reflect.ValueOf(s)
	}
}

// resultValue turns a Go result into a Value. Value results pass
// through untouched, so markers from the Throw helpers reach the
// engine; everything else marshals into a fresh owned value.
func (r *Realm) resultValue(rv reflect.Value) (Value, error) {
	if rv.Type() == typeValue {
		return rv.Interface().(Value), nil
	}
	ptr, err := r.marshalTransfer(rv.Interface())
	if err != nil {
		return Value{}, err
	}
	return r.adopt(ptr), nil
}

// marshalTransfer builds one engine value whose reference the caller
// hands away, for reference-stealing exports (property stores, callback
// results). Value arguments are duplicated, so the caller's handle
// stays alive; invalid handles marshal as undefined.
func (r *Realm) marshalTransfer(val any) (ValuePtr, error) {
	switch v := val.(type) {
	case nil:
		return r.nullPtr, nil
	case Value:
		if !v.Valid() || v.rec.realm != r {
			return r.undefPtr, nil
		}
		return r.rt.registry.DupValue(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	case bool:
		return r.rt.registry.Bool(r.rt.wasmCtx, v)
	case int:
		return r.rt.registry.NewInt64(r.rt.wasmCtx, r.ptr, int64(v))
	case int32:
		return r.rt.registry.NewInt32(r.rt.wasmCtx, r.ptr, v)
	case uint32:
		return r.rt.registry.NewUint32(r.rt.wasmCtx, r.ptr, v)
	case int64:
		return r.rt.registry.NewInt64(r.rt.wasmCtx, r.ptr, v)
	case float64:
		return r.rt.registry.NewFloat64(r.rt.wasmCtx, r.ptr, v)
	case string:
		return r.rt.registry.NewString(r.rt.wasmCtx, r.ptr, v)
	}
	if reflect.ValueOf(val).Kind() == reflect.Func {
		fn, err := r.NewFunction("", val)
		if err != nil {
			return 0, err
		}
		return r.transferOut(fn)
	}
	return 0, fmt.Errorf("cannot marshal %T into a script value", val)
}

// marshalArgs prepares call arguments. Values pass as borrowed
// pointers; everything else builds a temporary released by the cleanup
// function once the call returns, since call exports only borrow argv.
func (r *Realm) marshalArgs(args []any) ([]ValuePtr, func(), error) {
	ptrs := make([]ValuePtr, len(args))
	temps := make([]ValuePtr, 0, len(args))
	release := func() {
		for _, p := range temps {
			_ = r.rt.registry.FreeValue(r.rt.wasmCtx, r.ptr, p)
		}
	}
	for i, arg := range args {
		if v, ok := arg.(Value); ok {
			if v.Valid() && v.rec.realm == r {
				ptrs[i] = v.rec.ptr
			} else {
				ptrs[i] = r.undefPtr
			}
			continue
		}
		ptr, err := r.marshalTransfer(arg)
		if err != nil {
			release()
			return nil, nil, err
		}
		ptrs[i] = ptr
		temps = append(temps, ptr)
	}
	return ptrs, release, nil
}

// NewFunction builds a script function from a Go callable.
//
// Accepted shapes: an optional leading Args parameter (the raw view of
// the invocation), then typed parameters drawn from Value, bool, int32,
// uint32, int64, float64 and string; results may be empty, a single
// marshallable value, an error, or a (value, error) pair. Missing
// trailing arguments arrive as undefined, mismatched ones as zero
// values, and arguments beyond the declared arity remain visible
// through the Args view.
//
// The callable's captured state is held until the engine collects the
// script function.
func (r *Realm) NewFunction(name string, fn any) (Value, error) {
	if r.disposed {
		return Value{}, ErrRealmClosed
	}
	desc, err := bindCallable(name, fn)
	if err != nil {
		return Value{}, err
	}
	return r.newHostFunction(desc, desc.name, desc.arity(), funcKindNormal)
}

// newHostFunction stores fn and builds its engine-side trampoline. The
// store entry is dropped again if the engine rejects the function, and
// otherwise lives until the function object's finalizer runs.
func (r *Realm) newHostFunction(fn hostFunc, name string, arity int32, kind funcKind) (Value, error) {
	id := r.rt.funcs.put(fn)
	ptr, err := r.rt.registry.NewFunction(r.rt.wasmCtx, r.ptr, id, name, arity, kind)
	if err != nil {
		r.rt.funcs.drop(id)
		return Value{}, err
	}
	v, err := r.wrapResult(ptr)
	if err != nil {
		r.rt.funcs.drop(id)
		return Value{}, err
	}
	return v, nil
}

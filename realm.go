package kago

import "fmt"

// Realm is one JavaScript execution context with its own global object.
// It tracks every owned Value it hands out, so closing the realm (or
// its runtime) leaves stale handles invalid instead of dangling.
//
// A realm is single-threaded: it must only be used from one goroutine
// at a time, including from inside callbacks it invokes.
type Realm struct {
	ptr      ContextPtr
	rt       *Runtime
	disposed bool

	// depth counts active native-to-script crossings. Exception
	// classification reads it: an exception observed at depth 1 has no
	// script frame left above it, at greater depths it still does.
	depth int

	// pending holds at most one Go error forwarded through the engine
	// as an uncatchable abort. takeException consumes it.
	pending error

	values  valueList
	classes map[*ClassDef]classInfo

	undefPtr ValuePtr
	nullPtr  ValuePtr
}

func newRealm(rt *Runtime, ptr ContextPtr) (*Realm, error) {
	r := &Realm{
		ptr:     ptr,
		rt:      rt,
		classes: make(map[*ClassDef]classInfo),
	}
	undef, err := rt.registry.Undefined(rt.wasmCtx)
	if err != nil {
		return nil, err
	}
	null, err := rt.registry.Null(rt.wasmCtx)
	if err != nil {
		return nil, err
	}
	r.undefPtr = undef
	r.nullPtr = null
	return r, nil
}

// Runtime returns the owning runtime.
func (r *Realm) Runtime() *Runtime { return r.rt }

// Pointer returns the raw engine context pointer.
func (r *Realm) Pointer() ContextPtr { return r.ptr }

// Close abandons every Value the realm still tracks, releases the
// engine context and detaches from the runtime. Handles held by the
// caller stay safe to touch; they report invalid. Close is idempotent.
func (r *Realm) Close() error {
	if r.disposed {
		return nil
	}
	r.disposed = true
	r.rt.callbacks.UnregisterContext(r.ptr)
	r.abandonValues()
	r.classes = nil
	r.pending = nil
	err := r.rt.registry.FreeContext(r.rt.wasmCtx, r.ptr)
	r.rt.dropRealm(r.ptr)
	r.rt.logger.Debug("realm closed", realmField(r.ptr))
	return err
}

// abandonValues frees every tracked engine reference and leaves the
// handles invalid. The list is detached first so records can unlink
// themselves while the sweep is in flight.
func (r *Realm) abandonValues() {
	var doomed valueList
	r.values.moveTo(&doomed)
	doomed.forEach(func(rec *valueRecord) {
		doomed.unlink(rec)
		_ = r.rt.registry.FreeValue(r.rt.wasmCtx, r.ptr, rec.ptr)
		rec.realm = nil
		rec.ptr = 0
	})
}

// adopt takes ownership of an engine value and tracks it.
func (r *Realm) adopt(ptr ValuePtr) Value {
	rec := &valueRecord{realm: r, ptr: ptr}
	r.values.insert(rec)
	return Value{rec: rec}
}

// adoptBorrowed wraps an engine-owned value. Borrowed handles are not
// tracked and Free on them is a no-op.
func (r *Realm) adoptBorrowed(ptr ValuePtr) Value {
	return Value{rec: &valueRecord{realm: r, ptr: ptr, borrowed: true}}
}

// releaseRecord is the Free path for one owned record.
func (r *Realm) releaseRecord(rec *valueRecord) {
	r.values.unlink(rec)
	_ = r.rt.registry.FreeValue(r.rt.wasmCtx, r.ptr, rec.ptr)
	rec.realm = nil
	rec.ptr = 0
}

// transferOut surrenders a handle's engine reference to the caller, for
// exports that steal references. Borrowed handles pass a duplicate;
// invalid handles pass undefined.
func (r *Realm) transferOut(v Value) (ValuePtr, error) {
	if !v.Valid() || v.rec.realm != r {
		return r.undefPtr, nil
	}
	if v.rec.borrowed {
		return r.rt.registry.DupValue(r.rt.wasmCtx, r.ptr, v.rec.ptr)
	}
	ptr := v.rec.ptr
	r.values.unlink(v.rec)
	v.rec.realm = nil
	v.rec.ptr = 0
	return ptr, nil
}

// enter bumps the nesting depth for the duration of one engine
// crossing: defer r.enter()().
func (r *Realm) enter() func() {
	r.depth++
	return func() { r.depth-- }
}

// Value constructors. They return invalid handles when the realm is
// closed or the engine rejects the construction; the fallible paths
// that callers actually branch on (Eval, Call, Get) report errors.

// Undefined returns the undefined singleton. Borrowed, no Free needed.
func (r *Realm) Undefined() Value {
	if r.disposed {
		return Value{}
	}
	return r.adoptBorrowed(r.undefPtr)
}

// Null returns the null singleton. Borrowed, no Free needed.
func (r *Realm) Null() Value {
	if r.disposed {
		return Value{}
	}
	return r.adoptBorrowed(r.nullPtr)
}

// NewBool returns a boolean value. Borrowed, no Free needed.
func (r *Realm) NewBool(v bool) Value {
	if r.disposed {
		return Value{}
	}
	ptr, err := r.rt.registry.Bool(r.rt.wasmCtx, v)
	if err != nil {
		return Value{}
	}
	return r.adoptBorrowed(ptr)
}

// NewInt32 returns a number value.
func (r *Realm) NewInt32(v int32) Value {
	if r.disposed {
		return Value{}
	}
	ptr, err := r.rt.registry.NewInt32(r.rt.wasmCtx, r.ptr, v)
	if err != nil {
		return Value{}
	}
	return r.adopt(ptr)
}

// NewUint32 returns a number value.
func (r *Realm) NewUint32(v uint32) Value {
	if r.disposed {
		return Value{}
	}
	ptr, err := r.rt.registry.NewUint32(r.rt.wasmCtx, r.ptr, v)
	if err != nil {
		return Value{}
	}
	return r.adopt(ptr)
}

// NewInt64 returns a number value. Values beyond 2^53 lose precision
// the way JavaScript numbers do.
func (r *Realm) NewInt64(v int64) Value {
	if r.disposed {
		return Value{}
	}
	ptr, err := r.rt.registry.NewInt64(r.rt.wasmCtx, r.ptr, v)
	if err != nil {
		return Value{}
	}
	return r.adopt(ptr)
}

// NewFloat64 returns a number value.
func (r *Realm) NewFloat64(v float64) Value {
	if r.disposed {
		return Value{}
	}
	ptr, err := r.rt.registry.NewFloat64(r.rt.wasmCtx, r.ptr, v)
	if err != nil {
		return Value{}
	}
	return r.adopt(ptr)
}

// NewString returns a string value.
func (r *Realm) NewString(s string) Value {
	if r.disposed {
		return Value{}
	}
	ptr, err := r.rt.registry.NewString(r.rt.wasmCtx, r.ptr, s)
	if err != nil {
		return Value{}
	}
	return r.adopt(ptr)
}

// NewObject returns an empty plain object.
func (r *Realm) NewObject() Value {
	if r.disposed {
		return Value{}
	}
	ptr, err := r.rt.registry.NewObject(r.rt.wasmCtx, r.ptr)
	if err != nil {
		return Value{}
	}
	return r.adopt(ptr)
}

// NewArray returns an empty array.
func (r *Realm) NewArray() Value {
	if r.disposed {
		return Value{}
	}
	ptr, err := r.rt.registry.NewArray(r.rt.wasmCtx, r.ptr)
	if err != nil {
		return Value{}
	}
	return r.adopt(ptr)
}

// EvalOption adjusts one evaluation.
type EvalOption func(*evalConfig)

type evalConfig struct {
	filename string
	flags    int32
}

// EvalFilename sets the script name shown in stack traces.
func EvalFilename(name string) EvalOption {
	return func(c *evalConfig) { c.filename = name }
}

// EvalStrict evaluates in strict mode.
func EvalStrict() EvalOption {
	return func(c *evalConfig) { c.flags |= evalFlagStrict }
}

// EvalCompileOnly parses and compiles without running the result.
func EvalCompileOnly() EvalOption {
	return func(c *evalConfig) { c.flags |= evalFlagCompileOnly }
}

// EvalModule evaluates the code as an ES module instead of a classic
// script.
func EvalModule() EvalOption {
	return func(c *evalConfig) { c.flags |= evalFlagModule }
}

// Eval runs code in the realm and returns its completion value. Empty
// code evaluates to undefined. A script exception comes back as a
// *ScriptException; a Go error forwarded out of a nested callback comes
// back unchanged.
func (r *Realm) Eval(code string, opts ...EvalOption) (Value, error) {
	if r.disposed {
		return Value{}, ErrRealmClosed
	}
	if code == "" {
		return r.Undefined(), nil
	}
	cfg := evalConfig{filename: "<eval>"}
	for _, opt := range opts {
		opt(&cfg)
	}
	ptr, err := r.rt.registry.Eval(r.rt.wasmCtx, r.ptr, code, cfg.filename, cfg.flags)
	if err != nil {
		return Value{}, err
	}
	return r.wrapResult(ptr)
}

// Global returns the realm's global object. The caller owns the handle.
func (r *Realm) Global() (Value, error) {
	if r.disposed {
		return Value{}, ErrRealmClosed
	}
	ptr, err := r.rt.registry.GetGlobalObject(r.rt.wasmCtx, r.ptr)
	if err != nil {
		return Value{}, err
	}
	return r.adopt(ptr), nil
}

// SetGlobal assigns a property on the global object, marshalling val
// like a call argument.
func (r *Realm) SetGlobal(name string, val any) error {
	global, err := r.Global()
	if err != nil {
		return err
	}
	defer global.Free()
	return global.Set(name, val)
}

// CallGlobal looks up a global by name and calls it. Calling a name
// that is not bound fails the way the language fails it, with a
// TypeError from the engine.
func (r *Realm) CallGlobal(name string, args ...any) (Value, error) {
	global, err := r.Global()
	if err != nil {
		return Value{}, err
	}
	defer global.Free()
	fn, err := global.Get(name)
	if err != nil {
		return Value{}, err
	}
	defer fn.Free()
	return fn.Call(args...)
}

// wrapResult adopts an engine call result, turning the exception marker
// into the matching Go error.
func (r *Realm) wrapResult(ptr ValuePtr) (Value, error) {
	isExc, err := r.rt.registry.IsException(r.rt.wasmCtx, r.ptr, ptr)
	if err != nil {
		return Value{}, err
	}
	if !isExc {
		return r.adopt(ptr), nil
	}
	return Value{}, r.takeException()
}

// takeException consumes the engine's pending exception and maps it to
// the error the caller should see. A forwarded Go error is replayed
// verbatim and the engine-side abort value is discarded. Otherwise the
// thrown value surfaces as a *Rethrow while script frames remain above
// the failure, and as a *ScriptException once none do.
func (r *Realm) takeException() error {
	if fwd := r.pending; fwd != nil {
		r.pending = nil
		ptr, err := r.rt.registry.GetException(r.rt.wasmCtx, r.ptr)
		if err == nil {
			_ = r.rt.registry.FreeValue(r.rt.wasmCtx, r.ptr, ptr)
		}
		return fwd
	}
	ptr, err := r.rt.registry.GetException(r.rt.wasmCtx, r.ptr)
	if err != nil {
		return err
	}
	val := r.adopt(ptr)
	if r.depth > 1 {
		return &Rethrow{Value: val}
	}
	exc := &ScriptException{Value: val, Message: val.String()}
	if val.IsError() {
		exc.IsError = true
		if stack, serr := val.Get("stack"); serr == nil {
			exc.Stack = stack.String()
			stack.Free()
		}
	}
	return exc
}

// Throw wraps v in the re-throw sentinel for returning from a Go
// callable as its error. Script frames above the callable observe v in
// their try/catch; with none left it reaches the host as a
// ScriptException carrying v.
func (r *Realm) Throw(v Value) error {
	return &Rethrow{Value: v}
}

// ThrowValue sets v as the realm's pending exception and returns the
// exception marker, the other way for a Go callable to throw: return
// the marker as the call result. Ownership of v passes to the engine.
func (r *Realm) ThrowValue(v Value) Value {
	if r.disposed {
		return Value{}
	}
	ptr, err := r.transferOut(v)
	if err != nil {
		return Value{}
	}
	marker, err := r.rt.registry.Throw(r.rt.wasmCtx, r.ptr, ptr)
	if err != nil {
		return Value{}
	}
	return r.adoptBorrowed(marker)
}

func (r *Realm) throwErrorKind(kind errKind, format string, args ...any) Value {
	if r.disposed {
		return Value{}
	}
	marker, err := r.rt.registry.ThrowError(r.rt.wasmCtx, r.ptr, kind, fmt.Sprintf(format, args...))
	if err != nil {
		return Value{}
	}
	return r.adoptBorrowed(marker)
}

// ThrowError throws an Error built from the format string and returns
// the exception marker.
func (r *Realm) ThrowError(format string, args ...any) Value {
	return r.throwErrorKind(errKindPlain, format, args...)
}

// ThrowTypeError throws a TypeError and returns the exception marker.
func (r *Realm) ThrowTypeError(format string, args ...any) Value {
	return r.throwErrorKind(errKindType, format, args...)
}

// ThrowRangeError throws a RangeError and returns the exception marker.
func (r *Realm) ThrowRangeError(format string, args ...any) Value {
	return r.throwErrorKind(errKindRange, format, args...)
}

// ThrowReferenceError throws a ReferenceError and returns the exception
// marker.
func (r *Realm) ThrowReferenceError(format string, args ...any) Value {
	return r.throwErrorKind(errKindReference, format, args...)
}

// ThrowSyntaxError throws a SyntaxError and returns the exception
// marker.
func (r *Realm) ThrowSyntaxError(format string, args ...any) Value {
	return r.throwErrorKind(errKindSyntax, format, args...)
}

package kago

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"
)

// engineExports lists every engine entry point the host calls. All of
// them are resolved once at startup so a mismatched engine build fails
// at New instead of in the middle of a script.
var engineExports = []string{
	"kago_malloc",
	"kago_free",
	"kago_new_runtime",
	"kago_free_runtime",
	"kago_run_gc",
	"kago_set_memory_limit",
	"kago_set_max_stack_size",
	"kago_set_gc_threshold",
	"kago_enable_interrupts",
	"kago_enable_alloc_trace",
	"kago_is_job_pending",
	"kago_execute_pending_job",
	"kago_memory_usage",
	"kago_new_context",
	"kago_free_context",
	"kago_get_global_object",
	"kago_dup_value",
	"kago_free_value",
	"kago_undefined",
	"kago_null",
	"kago_bool",
	"kago_new_int32",
	"kago_new_uint32",
	"kago_new_int64",
	"kago_new_float64",
	"kago_new_string",
	"kago_new_object",
	"kago_new_array",
	"kago_is_undefined",
	"kago_is_null",
	"kago_is_bool",
	"kago_is_number",
	"kago_is_string",
	"kago_is_object",
	"kago_is_function",
	"kago_is_array",
	"kago_is_error",
	"kago_is_exception",
	"kago_to_bool",
	"kago_to_int32",
	"kago_to_uint32",
	"kago_to_int64",
	"kago_to_float64",
	"kago_to_cstring",
	"kago_free_cstring",
	"kago_get_property",
	"kago_set_property",
	"kago_get_index",
	"kago_set_index",
	"kago_define_getset",
	"kago_eval",
	"kago_call",
	"kago_call_constructor",
	"kago_strict_equals",
	"kago_has_exception",
	"kago_get_exception",
	"kago_throw",
	"kago_throw_error",
	"kago_throw_uncatchable",
	"kago_new_function",
	"kago_new_class_id",
	"kago_register_class",
	"kago_new_object_class",
	"kago_set_constructor",
	"kago_set_opaque",
	"kago_get_opaque",
	"kago_mark_value",
	"kago_json_parse",
	"kago_json_stringify",
}

// Registry resolves and invokes the engine module's exports. It also owns
// the scratch-buffer helpers built on the engine allocator, so every byte
// handed to the engine lives in the engine's own heap.
type Registry struct {
	mod api.Module
	mem *memory
	fns map[string]api.Function
}

// NewRegistry resolves the engine's export table from an instantiated
// module.
func NewRegistry(mod api.Module) (*Registry, error) {
	linear := mod.Memory()
	if linear == nil {
		return nil, fmt.Errorf("engine module has no linear memory")
	}
	fns := make(map[string]api.Function, len(engineExports))
	for _, name := range engineExports {
		fn := mod.ExportedFunction(name)
		if fn == nil {
			return nil, fmt.Errorf("engine module is missing export %q", name)
		}
		fns[name] = fn
	}
	return &Registry{mod: mod, mem: newMemory(linear), fns: fns}, nil
}

func (r *Registry) call(ctx context.Context, name string, params ...uint64) ([]uint64, error) {
	res, err := r.fns[name].Call(ctx, params...)
	if err != nil {
		return nil, fmt.Errorf("engine call %s: %w", name, err)
	}
	return res, nil
}

// call1 invokes an export with exactly one i32 result.
func (r *Registry) call1(ctx context.Context, name string, params ...uint64) (int32, error) {
	res, err := r.call(ctx, name, params...)
	if err != nil {
		return 0, err
	}
	return api.DecodeI32(res[0]), nil
}

// call0 invokes an export with no results.
func (r *Registry) call0(ctx context.Context, name string, params ...uint64) error {
	_, err := r.call(ctx, name, params...)
	return err
}

func i32(v int32) uint64   { return api.EncodeI32(v) }
func f64(v float64) uint64 { return api.EncodeF64(v) }

// Scratch allocation on the engine heap.

func (r *Registry) alloc(ctx context.Context, size int32) (MemoryPtr, error) {
	ptr, err := r.call1(ctx, "kago_malloc", i32(size))
	if err != nil {
		return 0, err
	}
	if MemoryPtr(ptr).IsNull() {
		return 0, fmt.Errorf("engine allocation of %d bytes failed", size)
	}
	return MemoryPtr(ptr), nil
}

func (r *Registry) freeMem(ctx context.Context, ptr MemoryPtr) {
	if ptr.IsNull() {
		return
	}
	_ = r.call0(ctx, "kago_free", i32(int32(ptr)))
}

// writeBuffer copies data into a fresh engine allocation. Empty data
// writes nothing and returns a null pointer.
func (r *Registry) writeBuffer(ctx context.Context, data []byte) (MemoryPtr, error) {
	if len(data) == 0 {
		return 0, nil
	}
	ptr, err := r.alloc(ctx, int32(len(data)))
	if err != nil {
		return 0, err
	}
	if !r.mem.writeBytes(ptr, data) {
		r.freeMem(ctx, ptr)
		return 0, fmt.Errorf("write of %d bytes at %s failed", len(data), ptr)
	}
	return ptr, nil
}

// writeCString copies s into a fresh engine allocation with a NUL
// terminator, for exports that take C strings.
func (r *Registry) writeCString(ctx context.Context, s string) (MemoryPtr, error) {
	ptr, err := r.alloc(ctx, int32(len(s)+1))
	if err != nil {
		return 0, err
	}
	if !r.mem.writeCString(ptr, s) {
		r.freeMem(ctx, ptr)
		return 0, fmt.Errorf("write of string (%d bytes) at %s failed", len(s)+1, ptr)
	}
	return ptr, nil
}

// writeArgv packs value pointers into an engine-heap array of
// little-endian u32 slots, the layout the call exports expect.
func (r *Registry) writeArgv(ctx context.Context, args []ValuePtr) (MemoryPtr, error) {
	if len(args) == 0 {
		return 0, nil
	}
	ptr, err := r.alloc(ctx, int32(len(args)*4))
	if err != nil {
		return 0, err
	}
	for idx, arg := range args {
		if !r.mem.writeUint32(ptr+MemoryPtr(idx*4), uint32(arg)) {
			r.freeMem(ctx, ptr)
			return 0, fmt.Errorf("write of argv slot %d at %s failed", idx, ptr)
		}
	}
	return ptr, nil
}

// Runtime lifecycle.

func (r *Registry) NewRuntime(ctx context.Context) (RuntimePtr, error) {
	ptr, err := r.call1(ctx, "kago_new_runtime")
	return RuntimePtr(ptr), err
}

func (r *Registry) FreeRuntime(ctx context.Context, rt RuntimePtr) error {
	return r.call0(ctx, "kago_free_runtime", i32(int32(rt)))
}

func (r *Registry) RunGC(ctx context.Context, rt RuntimePtr) error {
	return r.call0(ctx, "kago_run_gc", i32(int32(rt)))
}

func (r *Registry) SetMemoryLimit(ctx context.Context, rt RuntimePtr, bytes int32) error {
	return r.call0(ctx, "kago_set_memory_limit", i32(int32(rt)), i32(bytes))
}

func (r *Registry) SetMaxStackSize(ctx context.Context, rt RuntimePtr, bytes int32) error {
	return r.call0(ctx, "kago_set_max_stack_size", i32(int32(rt)), i32(bytes))
}

func (r *Registry) SetGCThreshold(ctx context.Context, rt RuntimePtr, bytes int32) error {
	return r.call0(ctx, "kago_set_gc_threshold", i32(int32(rt)), i32(bytes))
}

// EnableInterrupts makes the engine poll the interrupt_handler import
// during execution.
func (r *Registry) EnableInterrupts(ctx context.Context, rt RuntimePtr) error {
	return r.call0(ctx, "kago_enable_interrupts", i32(int32(rt)))
}

// EnableAllocTrace makes the engine allocator report every event through
// the alloc_trace import.
func (r *Registry) EnableAllocTrace(ctx context.Context, rt RuntimePtr) error {
	return r.call0(ctx, "kago_enable_alloc_trace", i32(int32(rt)))
}

func (r *Registry) IsJobPending(ctx context.Context, rt RuntimePtr) (bool, error) {
	res, err := r.call1(ctx, "kago_is_job_pending", i32(int32(rt)))
	return res != 0, err
}

// ExecutePendingJob runs one queued job. It returns 1 when a job ran,
// 0 when the queue was empty and -1 when the job threw; on -1 the
// throwing job's context is written to the returned pointer.
func (r *Registry) ExecutePendingJob(ctx context.Context, rt RuntimePtr) (int32, ContextPtr, error) {
	outPtr, err := r.alloc(ctx, 4)
	if err != nil {
		return 0, 0, err
	}
	defer r.freeMem(ctx, outPtr)
	status, err := r.call1(ctx, "kago_execute_pending_job", i32(int32(rt)), i32(int32(outPtr)))
	if err != nil {
		return 0, 0, err
	}
	jobCtx, ok := r.mem.readUint32(outPtr)
	if !ok {
		return 0, 0, fmt.Errorf("read of job context at %s failed", outPtr)
	}
	return status, ContextPtr(jobCtx), nil
}

// MemoryUsage reads the engine's allocation counters.
func (r *Registry) MemoryUsage(ctx context.Context, rt RuntimePtr) (MemoryUsage, error) {
	const usageSize = 32
	outPtr, err := r.alloc(ctx, usageSize)
	if err != nil {
		return MemoryUsage{}, err
	}
	defer r.freeMem(ctx, outPtr)
	if err := r.call0(ctx, "kago_memory_usage", i32(int32(rt)), i32(int32(outPtr))); err != nil {
		return MemoryUsage{}, err
	}
	var raw [4]uint64
	for idx := range raw {
		v, ok := r.mem.readUint64(outPtr + MemoryPtr(idx*8))
		if !ok {
			return MemoryUsage{}, fmt.Errorf("read of memory usage field %d at %s failed", idx, outPtr)
		}
		raw[idx] = v
	}
	return MemoryUsage{
		MallocCount: int64(raw[0]),
		MallocSize:  int64(raw[1]),
		MemoryCount: int64(raw[2]),
		MemorySize:  int64(raw[3]),
	}, nil
}

// Context lifecycle.

func (r *Registry) NewContext(ctx context.Context, rt RuntimePtr) (ContextPtr, error) {
	ptr, err := r.call1(ctx, "kago_new_context", i32(int32(rt)))
	return ContextPtr(ptr), err
}

func (r *Registry) FreeContext(ctx context.Context, jsCtx ContextPtr) error {
	return r.call0(ctx, "kago_free_context", i32(int32(jsCtx)))
}

func (r *Registry) GetGlobalObject(ctx context.Context, jsCtx ContextPtr) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_get_global_object", i32(int32(jsCtx)))
	return ValuePtr(ptr), err
}

// Value construction and reference counting.

func (r *Registry) DupValue(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_dup_value", i32(int32(jsCtx)), i32(int32(val)))
	return ValuePtr(ptr), err
}

func (r *Registry) FreeValue(ctx context.Context, jsCtx ContextPtr, val ValuePtr) error {
	return r.call0(ctx, "kago_free_value", i32(int32(jsCtx)), i32(int32(val)))
}

func (r *Registry) Undefined(ctx context.Context) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_undefined")
	return ValuePtr(ptr), err
}

func (r *Registry) Null(ctx context.Context) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_null")
	return ValuePtr(ptr), err
}

func (r *Registry) Bool(ctx context.Context, v bool) (ValuePtr, error) {
	arg := int32(0)
	if v {
		arg = 1
	}
	ptr, err := r.call1(ctx, "kago_bool", i32(arg))
	return ValuePtr(ptr), err
}

func (r *Registry) NewInt32(ctx context.Context, jsCtx ContextPtr, v int32) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_new_int32", i32(int32(jsCtx)), i32(v))
	return ValuePtr(ptr), err
}

func (r *Registry) NewUint32(ctx context.Context, jsCtx ContextPtr, v uint32) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_new_uint32", i32(int32(jsCtx)), i32(int32(v)))
	return ValuePtr(ptr), err
}

func (r *Registry) NewInt64(ctx context.Context, jsCtx ContextPtr, v int64) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_new_int64", i32(int32(jsCtx)), api.EncodeI64(v))
	return ValuePtr(ptr), err
}

func (r *Registry) NewFloat64(ctx context.Context, jsCtx ContextPtr, v float64) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_new_float64", i32(int32(jsCtx)), f64(v))
	return ValuePtr(ptr), err
}

func (r *Registry) NewString(ctx context.Context, jsCtx ContextPtr, s string) (ValuePtr, error) {
	buf, err := r.writeBuffer(ctx, []byte(s))
	if err != nil {
		return 0, err
	}
	defer r.freeMem(ctx, buf)
	ptr, err := r.call1(ctx, "kago_new_string", i32(int32(jsCtx)), i32(int32(buf)), i32(int32(len(s))))
	return ValuePtr(ptr), err
}

func (r *Registry) NewObject(ctx context.Context, jsCtx ContextPtr) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_new_object", i32(int32(jsCtx)))
	return ValuePtr(ptr), err
}

func (r *Registry) NewArray(ctx context.Context, jsCtx ContextPtr) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_new_array", i32(int32(jsCtx)))
	return ValuePtr(ptr), err
}

// Type predicates.

func (r *Registry) predicate(ctx context.Context, name string, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	res, err := r.call1(ctx, name, i32(int32(jsCtx)), i32(int32(val)))
	return res != 0, err
}

func (r *Registry) IsUndefined(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_undefined", jsCtx, val)
}

func (r *Registry) IsNull(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_null", jsCtx, val)
}

func (r *Registry) IsBool(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_bool", jsCtx, val)
}

func (r *Registry) IsNumber(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_number", jsCtx, val)
}

func (r *Registry) IsString(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_string", jsCtx, val)
}

func (r *Registry) IsObject(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_object", jsCtx, val)
}

func (r *Registry) IsFunction(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_function", jsCtx, val)
}

func (r *Registry) IsArray(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_array", jsCtx, val)
}

func (r *Registry) IsError(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_error", jsCtx, val)
}

// IsException reports whether val is the engine's exception marker, not
// a real value.
func (r *Registry) IsException(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (bool, error) {
	return r.predicate(ctx, "kago_is_exception", jsCtx, val)
}

// Coercions. The ok result reports whether the engine could produce the
// requested type; a false ok is not an error, and the engine consumes
// any exception the conversion raised.

func (r *Registry) ToBool(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (v, ok bool, err error) {
	res, err := r.call1(ctx, "kago_to_bool", i32(int32(jsCtx)), i32(int32(val)))
	if err != nil {
		return false, false, err
	}
	if res < 0 {
		return false, false, nil
	}
	return res != 0, true, nil
}

func (r *Registry) ToInt32(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (int32, bool, error) {
	outPtr, err := r.alloc(ctx, 4)
	if err != nil {
		return 0, false, err
	}
	defer r.freeMem(ctx, outPtr)
	status, err := r.call1(ctx, "kago_to_int32", i32(int32(jsCtx)), i32(int32(val)), i32(int32(outPtr)))
	if err != nil || status != 0 {
		return 0, false, err
	}
	raw, ok := r.mem.readUint32(outPtr)
	if !ok {
		return 0, false, fmt.Errorf("read of int32 result at %s failed", outPtr)
	}
	return int32(raw), true, nil
}

func (r *Registry) ToUint32(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (uint32, bool, error) {
	outPtr, err := r.alloc(ctx, 4)
	if err != nil {
		return 0, false, err
	}
	defer r.freeMem(ctx, outPtr)
	status, err := r.call1(ctx, "kago_to_uint32", i32(int32(jsCtx)), i32(int32(val)), i32(int32(outPtr)))
	if err != nil || status != 0 {
		return 0, false, err
	}
	raw, ok := r.mem.readUint32(outPtr)
	if !ok {
		return 0, false, fmt.Errorf("read of uint32 result at %s failed", outPtr)
	}
	return raw, true, nil
}

func (r *Registry) ToInt64(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (int64, bool, error) {
	outPtr, err := r.alloc(ctx, 8)
	if err != nil {
		return 0, false, err
	}
	defer r.freeMem(ctx, outPtr)
	status, err := r.call1(ctx, "kago_to_int64", i32(int32(jsCtx)), i32(int32(val)), i32(int32(outPtr)))
	if err != nil || status != 0 {
		return 0, false, err
	}
	raw, ok := r.mem.readUint64(outPtr)
	if !ok {
		return 0, false, fmt.Errorf("read of int64 result at %s failed", outPtr)
	}
	return int64(raw), true, nil
}

func (r *Registry) ToFloat64(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (float64, bool, error) {
	outPtr, err := r.alloc(ctx, 8)
	if err != nil {
		return 0, false, err
	}
	defer r.freeMem(ctx, outPtr)
	status, err := r.call1(ctx, "kago_to_float64", i32(int32(jsCtx)), i32(int32(val)), i32(int32(outPtr)))
	if err != nil || status != 0 {
		return 0, false, err
	}
	raw, ok := r.mem.readFloat64(outPtr)
	if !ok {
		return 0, false, fmt.Errorf("read of float64 result at %s failed", outPtr)
	}
	return raw, true, nil
}

// ToString renders val with the engine's ToString and copies the text
// out of the engine heap.
func (r *Registry) ToString(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (string, bool, error) {
	lenPtr, err := r.alloc(ctx, 4)
	if err != nil {
		return "", false, err
	}
	defer r.freeMem(ctx, lenPtr)
	strPtr, err := r.call1(ctx, "kago_to_cstring", i32(int32(jsCtx)), i32(int32(val)), i32(int32(lenPtr)))
	if err != nil {
		return "", false, err
	}
	if MemoryPtr(strPtr).IsNull() {
		return "", false, nil
	}
	defer func() {
		_ = r.call0(ctx, "kago_free_cstring", i32(int32(jsCtx)), i32(strPtr))
	}()
	n, ok := r.mem.readUint32(lenPtr)
	if !ok {
		return "", false, fmt.Errorf("read of string length at %s failed", lenPtr)
	}
	s, ok := r.mem.readString(MemoryPtr(strPtr), n)
	if !ok {
		return "", false, fmt.Errorf("read of %d string bytes at 0x%x failed", n, strPtr)
	}
	return s, true, nil
}

// Properties. Status results follow the engine convention: negative
// means an exception is pending.

func (r *Registry) GetProperty(ctx context.Context, jsCtx ContextPtr, obj ValuePtr, name string) (ValuePtr, error) {
	namePtr, err := r.writeCString(ctx, name)
	if err != nil {
		return 0, err
	}
	defer r.freeMem(ctx, namePtr)
	ptr, err := r.call1(ctx, "kago_get_property", i32(int32(jsCtx)), i32(int32(obj)), i32(int32(namePtr)))
	return ValuePtr(ptr), err
}

func (r *Registry) SetProperty(ctx context.Context, jsCtx ContextPtr, obj ValuePtr, name string, val ValuePtr) (int32, error) {
	namePtr, err := r.writeCString(ctx, name)
	if err != nil {
		return -1, err
	}
	defer r.freeMem(ctx, namePtr)
	return r.call1(ctx, "kago_set_property", i32(int32(jsCtx)), i32(int32(obj)), i32(int32(namePtr)), i32(int32(val)))
}

func (r *Registry) GetIndex(ctx context.Context, jsCtx ContextPtr, obj ValuePtr, idx uint32) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_get_index", i32(int32(jsCtx)), i32(int32(obj)), i32(int32(idx)))
	return ValuePtr(ptr), err
}

func (r *Registry) SetIndex(ctx context.Context, jsCtx ContextPtr, obj ValuePtr, idx uint32, val ValuePtr) (int32, error) {
	return r.call1(ctx, "kago_set_index", i32(int32(jsCtx)), i32(int32(obj)), i32(int32(idx)), i32(int32(val)))
}

// DefineGetSet installs accessor functions on obj. A null getter or
// setter leaves that side undefined.
func (r *Registry) DefineGetSet(ctx context.Context, jsCtx ContextPtr, obj ValuePtr, name string, getter, setter ValuePtr) (int32, error) {
	namePtr, err := r.writeCString(ctx, name)
	if err != nil {
		return -1, err
	}
	defer r.freeMem(ctx, namePtr)
	return r.call1(ctx, "kago_define_getset",
		i32(int32(jsCtx)), i32(int32(obj)), i32(int32(namePtr)), i32(int32(getter)), i32(int32(setter)))
}

// Evaluation and calls. Results are value pointers; the exception marker
// signals a pending engine exception.

func (r *Registry) Eval(ctx context.Context, jsCtx ContextPtr, code, filename string, flags int32) (ValuePtr, error) {
	codePtr, err := r.writeBuffer(ctx, []byte(code))
	if err != nil {
		return 0, err
	}
	defer r.freeMem(ctx, codePtr)
	filenamePtr, err := r.writeCString(ctx, filename)
	if err != nil {
		return 0, err
	}
	defer r.freeMem(ctx, filenamePtr)
	ptr, err := r.call1(ctx, "kago_eval",
		i32(int32(jsCtx)), i32(int32(codePtr)), i32(int32(len(code))), i32(int32(filenamePtr)), i32(flags))
	return ValuePtr(ptr), err
}

func (r *Registry) Call(ctx context.Context, jsCtx ContextPtr, fn, this ValuePtr, args []ValuePtr) (ValuePtr, error) {
	argvPtr, err := r.writeArgv(ctx, args)
	if err != nil {
		return 0, err
	}
	defer r.freeMem(ctx, argvPtr)
	ptr, err := r.call1(ctx, "kago_call",
		i32(int32(jsCtx)), i32(int32(fn)), i32(int32(this)), i32(int32(len(args))), i32(int32(argvPtr)))
	return ValuePtr(ptr), err
}

func (r *Registry) CallConstructor(ctx context.Context, jsCtx ContextPtr, fn ValuePtr, args []ValuePtr) (ValuePtr, error) {
	argvPtr, err := r.writeArgv(ctx, args)
	if err != nil {
		return 0, err
	}
	defer r.freeMem(ctx, argvPtr)
	ptr, err := r.call1(ctx, "kago_call_constructor",
		i32(int32(jsCtx)), i32(int32(fn)), i32(int32(len(args))), i32(int32(argvPtr)))
	return ValuePtr(ptr), err
}

func (r *Registry) StrictEquals(ctx context.Context, jsCtx ContextPtr, a, b ValuePtr) (bool, error) {
	res, err := r.call1(ctx, "kago_strict_equals", i32(int32(jsCtx)), i32(int32(a)), i32(int32(b)))
	return res != 0, err
}

// Exceptions.

func (r *Registry) HasException(ctx context.Context, jsCtx ContextPtr) (bool, error) {
	res, err := r.call1(ctx, "kago_has_exception", i32(int32(jsCtx)))
	return res != 0, err
}

// GetException pops the pending exception value. The context's pending
// slot is empty afterwards.
func (r *Registry) GetException(ctx context.Context, jsCtx ContextPtr) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_get_exception", i32(int32(jsCtx)))
	return ValuePtr(ptr), err
}

// Throw sets val as the context's pending exception and returns the
// exception marker. Ownership of val passes to the engine.
func (r *Registry) Throw(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_throw", i32(int32(jsCtx)), i32(int32(val)))
	return ValuePtr(ptr), err
}

// ThrowError builds an Error of the given kind with msg as its message,
// sets it pending and returns the exception marker.
func (r *Registry) ThrowError(ctx context.Context, jsCtx ContextPtr, kind errKind, msg string) (ValuePtr, error) {
	msgPtr, err := r.writeCString(ctx, msg)
	if err != nil {
		return 0, err
	}
	defer r.freeMem(ctx, msgPtr)
	ptr, err := r.call1(ctx, "kago_throw_error", i32(int32(jsCtx)), i32(int32(kind)), i32(int32(msgPtr)))
	return ValuePtr(ptr), err
}

// ThrowUncatchable sets a pending error that script try/catch cannot
// observe, unwinding every script frame on the way out.
func (r *Registry) ThrowUncatchable(ctx context.Context, jsCtx ContextPtr) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_throw_uncatchable", i32(int32(jsCtx)))
	return ValuePtr(ptr), err
}

// Host-backed functions and classes.

// NewFunction builds a script function whose invocation trampolines to
// the call_function import with id.
func (r *Registry) NewFunction(ctx context.Context, jsCtx ContextPtr, id FuncID, name string, arity int32, kind funcKind) (ValuePtr, error) {
	namePtr, err := r.writeCString(ctx, name)
	if err != nil {
		return 0, err
	}
	defer r.freeMem(ctx, namePtr)
	ptr, err := r.call1(ctx, "kago_new_function",
		i32(int32(jsCtx)), i32(int32(id)), i32(int32(namePtr)), i32(arity), i32(int32(kind)))
	return ValuePtr(ptr), err
}

func (r *Registry) NewClassID(ctx context.Context, rt RuntimePtr) (ClassID, error) {
	id, err := r.call1(ctx, "kago_new_class_id", i32(int32(rt)))
	return ClassID(id), err
}

// RegisterClass installs the finalizer trampoline (and, when hasGCMark
// is set, the mark trampoline) for id. Registering an already
// registered id is a no-op.
func (r *Registry) RegisterClass(ctx context.Context, rt RuntimePtr, id ClassID, name string, hasGCMark bool) (int32, error) {
	namePtr, err := r.writeCString(ctx, name)
	if err != nil {
		return -1, err
	}
	defer r.freeMem(ctx, namePtr)
	mark := int32(0)
	if hasGCMark {
		mark = 1
	}
	return r.call1(ctx, "kago_register_class", i32(int32(rt)), i32(int32(id)), i32(int32(namePtr)), i32(mark))
}

func (r *Registry) NewObjectClass(ctx context.Context, jsCtx ContextPtr, proto ValuePtr, id ClassID) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_new_object_class", i32(int32(jsCtx)), i32(int32(proto)), i32(int32(id)))
	return ValuePtr(ptr), err
}

func (r *Registry) SetConstructor(ctx context.Context, jsCtx ContextPtr, ctor, proto ValuePtr) error {
	return r.call0(ctx, "kago_set_constructor", i32(int32(jsCtx)), i32(int32(ctor)), i32(int32(proto)))
}

func (r *Registry) SetOpaque(ctx context.Context, jsCtx ContextPtr, obj ValuePtr, opaque OpaqueID) error {
	return r.call0(ctx, "kago_set_opaque", i32(int32(jsCtx)), i32(int32(obj)), i32(int32(opaque)))
}

// GetOpaque reads the opaque slot of obj when it is an instance of id,
// zero otherwise.
func (r *Registry) GetOpaque(ctx context.Context, jsCtx ContextPtr, obj ValuePtr, id ClassID) (OpaqueID, error) {
	opaque, err := r.call1(ctx, "kago_get_opaque", i32(int32(jsCtx)), i32(int32(obj)), i32(int32(id)))
	return OpaqueID(opaque), err
}

// MarkValue forwards one value to the engine's GC mark function. Only
// valid inside a class_gc_mark callback, with the markFn the engine
// passed in.
func (r *Registry) MarkValue(ctx context.Context, rt RuntimePtr, val ValuePtr, markFn int32) error {
	return r.call0(ctx, "kago_mark_value", i32(int32(rt)), i32(int32(val)), i32(markFn))
}

// JSON.

func (r *Registry) JSONParse(ctx context.Context, jsCtx ContextPtr, data []byte) (ValuePtr, error) {
	bufPtr, err := r.writeBuffer(ctx, data)
	if err != nil {
		return 0, err
	}
	defer r.freeMem(ctx, bufPtr)
	ptr, err := r.call1(ctx, "kago_json_parse", i32(int32(jsCtx)), i32(int32(bufPtr)), i32(int32(len(data))))
	return ValuePtr(ptr), err
}

func (r *Registry) JSONStringify(ctx context.Context, jsCtx ContextPtr, val ValuePtr) (ValuePtr, error) {
	ptr, err := r.call1(ctx, "kago_json_stringify", i32(int32(jsCtx)), i32(int32(val)))
	return ValuePtr(ptr), err
}

package kago

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
)

// CallbackManager routes engine callbacks to the owning Realm or
// Runtime. The engine hands back raw pointers; the manager maps them
// to live Go objects, under a lock because GC finalizers can fire from
// any engine call.
type CallbackManager struct {
	mu       sync.RWMutex
	contexts map[ContextPtr]*Realm
	runtimes map[RuntimePtr]*Runtime
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		contexts: make(map[ContextPtr]*Realm),
		runtimes: make(map[RuntimePtr]*Runtime),
	}
}

// RegisterContext maps an engine context pointer to its Realm.
func (cm *CallbackManager) RegisterContext(ptr ContextPtr, realm *Realm) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.contexts[ptr] = realm
}

// UnregisterContext removes a context mapping.
func (cm *CallbackManager) UnregisterContext(ptr ContextPtr) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.contexts, ptr)
}

// RegisterRuntime maps an engine runtime pointer to its Runtime.
func (cm *CallbackManager) RegisterRuntime(ptr RuntimePtr, rt *Runtime) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.runtimes[ptr] = rt
}

// UnregisterRuntime removes a runtime mapping.
func (cm *CallbackManager) UnregisterRuntime(ptr RuntimePtr) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	delete(cm.runtimes, ptr)
}

func (cm *CallbackManager) lookupRealm(ptr ContextPtr) *Realm {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.contexts[ptr]
}

func (cm *CallbackManager) lookupRuntime(ptr RuntimePtr) *Runtime {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.runtimes[ptr]
}

// AddToHostModule registers the host imports the engine links against.
// Signatures must match the engine's import section exactly.
func (cm *CallbackManager) AddToHostModule(ctx context.Context, builder wazero.HostModuleBuilder) (api.Closer, error) {
	return builder.
		// call_function: (i32, i32, i32, i32, i32) -> i32
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, jsCtx, funcID, thisVal, argc, argv int32) int32 {
			return int32(cm.handleCallFunction(ContextPtr(jsCtx), FuncID(funcID), ValuePtr(thisVal), argc, MemoryPtr(argv)))
		}).
		Export("call_function").
		// class_constructor: (i32, i32, i32, i32, i32) -> i32
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, jsCtx, funcID, newTarget, argc, argv int32) int32 {
			return int32(cm.handleCallFunction(ContextPtr(jsCtx), FuncID(funcID), ValuePtr(newTarget), argc, MemoryPtr(argv)))
		}).
		Export("class_constructor").
		// function_finalizer: (i32, i32) -> nil
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, rtPtr, funcID int32) {
			cm.handleFunctionFinalizer(RuntimePtr(rtPtr), FuncID(funcID))
		}).
		Export("function_finalizer").
		// class_finalizer: (i32, i32, i32) -> nil
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, rtPtr, classID, opaque int32) {
			cm.handleClassFinalizer(RuntimePtr(rtPtr), ClassID(classID), OpaqueID(opaque))
		}).
		Export("class_finalizer").
		// class_gc_mark: (i32, i32, i32, i32) -> nil
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, rtPtr, classID, opaque, markFn int32) {
			cm.handleClassGCMark(RuntimePtr(rtPtr), ClassID(classID), OpaqueID(opaque), markFn)
		}).
		Export("class_gc_mark").
		// interrupt_handler: (i32) -> i32
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, rtPtr int32) int32 {
			return cm.handleInterrupt(RuntimePtr(rtPtr))
		}).
		Export("interrupt_handler").
		// alloc_trace: (i32, i32, i32) -> nil
		NewFunctionBuilder().
		WithFunc(func(_ context.Context, rtPtr, kind, size int32) {
			cm.handleAllocTrace(RuntimePtr(rtPtr), kind, size)
		}).
		Export("alloc_trace").
		Instantiate(ctx)
}

// handleCallFunction services both call_function and class_constructor:
// the engine passes the function object's id plus either the this value
// or the new target, and the packed argument vector.
func (cm *CallbackManager) handleCallFunction(jsCtx ContextPtr, id FuncID, this ValuePtr, argc int32, argv MemoryPtr) ValuePtr {
	r := cm.lookupRealm(jsCtx)
	if r == nil || r.disposed {
		return 0
	}
	fn, ok := r.rt.funcs.get(id)
	if !ok {
		r.rt.logger.Error("callback for unknown function", realmField(jsCtx), zap.Stringer("func", id))
		return 0
	}
	args, ok := r.readArgv(argc, argv)
	if !ok {
		return 0
	}
	return r.dispatch(fn, this, args)
}

func (cm *CallbackManager) handleFunctionFinalizer(ptr RuntimePtr, id FuncID) {
	rt := cm.lookupRuntime(ptr)
	if rt == nil {
		return
	}
	rt.funcs.drop(id)
}

func (cm *CallbackManager) handleClassFinalizer(ptr RuntimePtr, _ ClassID, opaque OpaqueID) {
	rt := cm.lookupRuntime(ptr)
	if rt == nil {
		return
	}
	box, ok := rt.instances.take(opaque)
	if !ok {
		rt.logger.Warn("finalizer for unknown instance", zap.Stringer("opaque", opaque))
		return
	}
	if box.def.shared {
		if ent, ok := rt.identity[box.inst]; ok && ent.opaque == opaque {
			delete(rt.identity, box.inst)
		}
		return
	}
	if f, ok := box.inst.(Finalizer); ok {
		f.Finalize()
	}
}

func (cm *CallbackManager) handleClassGCMark(ptr RuntimePtr, _ ClassID, opaque OpaqueID, markFn int32) {
	rt := cm.lookupRuntime(ptr)
	if rt == nil {
		return
	}
	box, ok := rt.instances.get(opaque)
	if !ok || box.def.mark == nil {
		return
	}
	box.def.mark(box.inst, func(v Value) {
		if !v.Valid() {
			return
		}
		_ = rt.registry.MarkValue(rt.wasmCtx, ptr, v.rec.ptr, markFn)
	})
}

func (cm *CallbackManager) handleInterrupt(ptr RuntimePtr) int32 {
	rt := cm.lookupRuntime(ptr)
	if rt == nil || rt.interrupt == nil {
		return 0
	}
	if rt.interrupt() {
		return 1
	}
	return 0
}

func (cm *CallbackManager) handleAllocTrace(ptr RuntimePtr, kind, size int32) {
	rt := cm.lookupRuntime(ptr)
	if rt == nil {
		return
	}
	var op string
	switch kind {
	case allocTraceMalloc:
		op = "malloc"
	case allocTraceRealloc:
		op = "realloc"
	case allocTraceFree:
		op = "free"
	default:
		op = "unknown"
	}
	rt.logger.Debug("engine alloc", zap.String("op", op), zap.Int32("size", size))
}

// readArgv reads the packed argument vector the engine built for a
// callback: argc little-endian u32 value pointers.
func (r *Realm) readArgv(argc int32, argv MemoryPtr) ([]ValuePtr, bool) {
	if argc <= 0 {
		return nil, true
	}
	out := make([]ValuePtr, argc)
	for i := range out {
		raw, ok := r.rt.registry.mem.readUint32(argv + MemoryPtr(i*4))
		if !ok {
			return nil, false
		}
		out[i] = ValuePtr(raw)
	}
	return out, true
}

// dispatch runs one host callable on behalf of the engine and
// translates its outcome into an engine value. Returned values pass
// out. A Rethrow error goes back in as a catchable script throw. Any
// other error (and any panic) is parked in the realm's pending slot
// behind an uncatchable abort, so the original Go error resurfaces
// verbatim once control returns to the host boundary.
func (r *Realm) dispatch(fn hostFunc, this ValuePtr, argv []ValuePtr) ValuePtr {
	res, err := func() (res Value, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				r.rt.logger.Error("panic in host callback", realmField(r.ptr), zap.Any("panic", rec))
				err = fmt.Errorf("panic in host callback: %v", rec)
			}
		}()
		return fn.invoke(r, this, argv)
	}()
	if err == nil {
		if !res.Valid() {
			return r.undefPtr
		}
		ptr, terr := r.transferOut(res)
		if terr == nil {
			return ptr
		}
		err = terr
	}

	var rth *Rethrow
	if errors.As(err, &rth) {
		ptr, terr := r.transferOut(rth.Value)
		if terr == nil {
			marker, merr := r.rt.registry.Throw(r.rt.wasmCtx, r.ptr, ptr)
			if merr == nil {
				return marker
			}
			err = merr
		} else {
			err = terr
		}
	}

	if r.pending != nil {
		err = fmt.Errorf("%w: %v", ErrPendingError, err)
	}
	r.pending = err
	marker, merr := r.rt.registry.ThrowUncatchable(r.rt.wasmCtx, r.ptr)
	if merr != nil {
		return 0
	}
	return marker
}

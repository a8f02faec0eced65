package kago

import (
	"context"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/experimental"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Runtime is one QuickJS engine instance running in WebAssembly. It
// owns the wazero runtime, the engine module and every Realm created
// from it.
//
// Use [New] to create a Runtime, [Runtime.CreateRealm] for execution
// contexts and [Runtime.Close] to release everything.
//
// The engine is single-threaded: a Runtime and all its realms must be
// confined to one goroutine at a time, including the host callables
// they invoke.
type Runtime struct {
	ptr       RuntimePtr
	wasmCtx   context.Context
	wazero    wazero.Runtime
	module    api.Module
	registry  *Registry
	callbacks *CallbackManager
	logger    *zap.Logger

	mu     sync.Mutex
	realms map[ContextPtr]*Realm

	// funcs and instances pin host callables and native class instances
	// for as long as the engine holds a reference to them; the
	// finalizer imports remove entries.
	funcs     *funcStore
	instances *instanceStore

	// identity maps a shared-class instance to its one live wrapper, so
	// wrapping the same Go value twice preserves script === identity.
	// Keys must be comparable; pointers are the usual choice.
	identity map[any]*identityEntry

	// classIDs caches the engine class allocated for each definition.
	// Engine classes are runtime-wide; prototypes are per realm.
	classIDs map[*ClassDef]ClassID

	interrupt func() bool
	disposed  bool
}

// MemoryUsage holds the engine allocator's counters.
type MemoryUsage struct {
	// MallocCount is the number of live allocations.
	MallocCount int64
	// MallocSize is the total bytes currently allocated.
	MallocSize int64
	// MemoryCount and MemorySize cover memory blocks used by the
	// allocator itself.
	MemoryCount int64
	MemorySize  int64
}

// funcStore keys live host callables by FuncID.
type funcStore struct {
	next  FuncID
	funcs map[FuncID]hostFunc
}

func newFuncStore() *funcStore {
	return &funcStore{funcs: make(map[FuncID]hostFunc)}
}

func (s *funcStore) put(fn hostFunc) FuncID {
	s.next++
	s.funcs[s.next] = fn
	return s.next
}

func (s *funcStore) get(id FuncID) (hostFunc, bool) {
	fn, ok := s.funcs[id]
	return fn, ok
}

func (s *funcStore) drop(id FuncID) {
	delete(s.funcs, id)
}

// instanceStore pins native class instances by OpaqueID.
type instanceStore struct {
	next  OpaqueID
	boxes map[OpaqueID]*instanceBox
}

func newInstanceStore() *instanceStore {
	return &instanceStore{boxes: make(map[OpaqueID]*instanceBox)}
}

func (s *instanceStore) put(box *instanceBox) OpaqueID {
	s.next++
	s.boxes[s.next] = box
	return s.next
}

func (s *instanceStore) get(id OpaqueID) (*instanceBox, bool) {
	box, ok := s.boxes[id]
	return box, ok
}

func (s *instanceStore) drop(id OpaqueID) {
	delete(s.boxes, id)
}

func (s *instanceStore) take(id OpaqueID) (*instanceBox, bool) {
	box, ok := s.boxes[id]
	if ok {
		delete(s.boxes, id)
	}
	return box, ok
}

// identityEntry records the one live wrapper of a shared instance. The
// value pointer is non-owning; the wrapper's own reference keeps it
// alive and the class finalizer removes the entry.
type identityEntry struct {
	realm  *Realm
	ptr    ValuePtr
	opaque OpaqueID
}

func realmField(ptr ContextPtr) zap.Field {
	return zap.Stringer("realm", ptr)
}

// New creates a Runtime from the engine's WASM binary.
//
// The context is used for all WASM operations and should remain valid
// for the lifetime of the Runtime. opts may be nil.
func New(ctx context.Context, wasmBytes []byte, opts *Options) (*Runtime, error) {
	if opts == nil {
		opts = &Options{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	// The engine uses tail calls, which needs experimental wazero
	// support.
	cfg := wazero.NewRuntimeConfig().
		WithCoreFeatures(api.CoreFeaturesV2 | experimental.CoreFeaturesTailCall)
	if opts.CompilationCache != nil {
		cfg = cfg.WithCompilationCache(opts.CompilationCache)
	}
	wzr := wazero.NewRuntimeWithConfig(ctx, cfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, wzr); err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := wzr.CompileModule(ctx, wasmBytes)
	if err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("compile module: %w", err)
	}

	// wazero's HostModuleBuilder can only export Go functions, not
	// memory, while the engine imports its linear memory from
	// "env.memory" and its callbacks from "kago.*". So three modules:
	//   1. "env" - a minimal WASM module that only exports memory
	//   2. "kago" - the Go host module with the callback imports
	//   3. "kago_quickjs" - the engine itself
	//
	// The env module is a hand-crafted binary equivalent to:
	//   (module (memory (export "memory") 384 4096))
	// 384 pages (24 MiB) is the engine's floor, 4096 pages (256 MiB)
	// the ceiling.
	envWasm := []byte{
		0x00, 0x61, 0x73, 0x6d, // magic: \0asm
		0x01, 0x00, 0x00, 0x00, // version: 1
		0x05, 0x06, 0x01, // memory section
		0x01, 0x80, 0x03, // limits: min=384
		0x80, 0x20, // limits: max=4096
		0x07, 0x0a, 0x01, // export section
		0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79, // "memory"
		0x02, 0x00, // memory index 0
	}

	envCompiled, err := wzr.CompileModule(ctx, envWasm)
	if err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("compile env module: %w", err)
	}
	if _, err := wzr.InstantiateModule(ctx, envCompiled, wazero.NewModuleConfig().WithName("env")); err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("instantiate env module: %w", err)
	}

	callbacks := NewCallbackManager()
	if _, err := callbacks.AddToHostModule(ctx, wzr.NewHostModuleBuilder("kago")); err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("bind callbacks: %w", err)
	}

	modCfg := wazero.NewModuleConfig().
		WithName("kago_quickjs").
		WithStartFunctions("_initialize")
	if opts.Stdout != nil {
		modCfg = modCfg.WithStdout(opts.Stdout)
	}
	if opts.Stderr != nil {
		modCfg = modCfg.WithStderr(opts.Stderr)
	}
	module, err := wzr.InstantiateModule(ctx, compiled, modCfg)
	if err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("instantiate module: %w", err)
	}

	registry, err := NewRegistry(module)
	if err != nil {
		wzr.Close(ctx)
		return nil, fmt.Errorf("create registry: %w", err)
	}

	rtPtr, err := registry.NewRuntime(ctx)
	if err != nil {
		wzr.Close(ctx)
		return nil, err
	}
	if rtPtr.IsNull() {
		wzr.Close(ctx)
		return nil, fmt.Errorf("create engine runtime: returned null")
	}

	rt := &Runtime{
		ptr:       rtPtr,
		wasmCtx:   ctx,
		wazero:    wzr,
		module:    module,
		registry:  registry,
		callbacks: callbacks,
		logger:    logger,
		realms:    make(map[ContextPtr]*Realm),
		funcs:     newFuncStore(),
		instances: newInstanceStore(),
		identity:  make(map[any]*identityEntry),
		classIDs:  make(map[*ClassDef]ClassID),
		interrupt: opts.InterruptHandler,
	}
	callbacks.RegisterRuntime(rtPtr, rt)

	if err := rt.applyOptions(opts); err != nil {
		rt.Close()
		return nil, err
	}

	logger.Debug("runtime created", zap.Stringer("runtime", rtPtr))
	return rt, nil
}

func (rt *Runtime) applyOptions(opts *Options) error {
	if opts.MemoryLimitBytes > 0 {
		if err := rt.registry.SetMemoryLimit(rt.wasmCtx, rt.ptr, opts.MemoryLimitBytes); err != nil {
			return err
		}
	}
	if opts.MaxStackSizeBytes > 0 {
		if err := rt.registry.SetMaxStackSize(rt.wasmCtx, rt.ptr, opts.MaxStackSizeBytes); err != nil {
			return err
		}
	}
	if opts.GCThresholdBytes > 0 {
		if err := rt.registry.SetGCThreshold(rt.wasmCtx, rt.ptr, opts.GCThresholdBytes); err != nil {
			return err
		}
	}
	if opts.InterruptHandler != nil {
		if err := rt.registry.EnableInterrupts(rt.wasmCtx, rt.ptr); err != nil {
			return err
		}
	}
	if opts.TraceAllocations {
		if err := rt.registry.EnableAllocTrace(rt.wasmCtx, rt.ptr); err != nil {
			return err
		}
	}
	return nil
}

// Pointer returns the raw engine runtime pointer.
func (rt *Runtime) Pointer() RuntimePtr { return rt.ptr }

// CreateRealm creates a new JavaScript execution context. Each Realm
// has its own global object and built-ins; multiple Realms in one
// Runtime give sandboxed execution over a shared heap.
//
// Call [Realm.Close] when done to free its resources early; closing
// the Runtime closes any realms still open.
func (rt *Runtime) CreateRealm() (*Realm, error) {
	if rt.disposed {
		return nil, ErrRuntimeClosed
	}
	ctxPtr, err := rt.registry.NewContext(rt.wasmCtx, rt.ptr)
	if err != nil {
		return nil, err
	}
	if ctxPtr.IsNull() {
		return nil, fmt.Errorf("create context: returned null")
	}
	realm, err := newRealm(rt, ctxPtr)
	if err != nil {
		_ = rt.registry.FreeContext(rt.wasmCtx, ctxPtr)
		return nil, err
	}

	rt.mu.Lock()
	rt.realms[ctxPtr] = realm
	rt.mu.Unlock()

	rt.callbacks.RegisterContext(ctxPtr, realm)
	rt.logger.Debug("realm created", realmField(ctxPtr))
	return realm, nil
}

// dropRealm removes a realm from tracking (called by Realm.Close).
func (rt *Runtime) dropRealm(ptr ContextPtr) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	delete(rt.realms, ptr)
}

// classIDFor returns the runtime-wide engine class for def, allocating
// and registering it on first use.
func (rt *Runtime) classIDFor(def *ClassDef) (ClassID, error) {
	if id, ok := rt.classIDs[def]; ok {
		return id, nil
	}
	id, err := rt.registry.NewClassID(rt.wasmCtx, rt.ptr)
	if err != nil {
		return 0, err
	}
	status, err := rt.registry.RegisterClass(rt.wasmCtx, rt.ptr, id, def.name, def.mark != nil)
	if err != nil {
		return 0, err
	}
	if status < 0 {
		return 0, fmt.Errorf("register class %s: engine refused", def.name)
	}
	rt.classIDs[def] = id
	return id, nil
}

// RunGC triggers a full engine garbage collection cycle.
func (rt *Runtime) RunGC() error {
	if rt.disposed {
		return ErrRuntimeClosed
	}
	return rt.registry.RunGC(rt.wasmCtx, rt.ptr)
}

// MemoryUsage returns the engine allocator's counters.
func (rt *Runtime) MemoryUsage() (MemoryUsage, error) {
	if rt.disposed {
		return MemoryUsage{}, ErrRuntimeClosed
	}
	return rt.registry.MemoryUsage(rt.wasmCtx, rt.ptr)
}

// IsJobPending reports whether promise jobs are queued.
func (rt *Runtime) IsJobPending() (bool, error) {
	if rt.disposed {
		return false, ErrRuntimeClosed
	}
	return rt.registry.IsJobPending(rt.wasmCtx, rt.ptr)
}

// ExecutePendingJobs runs queued promise jobs until the queue drains
// or max jobs have run; max <= 0 means no cap. It returns the number
// of jobs that completed. A job that throws stops the loop, and its
// exception surfaces like any other script failure: a ScriptException
// for script throws, the original Go error for failures forwarded out
// of a host callable.
func (rt *Runtime) ExecutePendingJobs(max int) (int, error) {
	if rt.disposed {
		return 0, ErrRuntimeClosed
	}
	ran := 0
	for max <= 0 || ran < max {
		status, jobCtx, err := rt.registry.ExecutePendingJob(rt.wasmCtx, rt.ptr)
		if err != nil {
			return ran, err
		}
		if status == 0 {
			return ran, nil
		}
		if status < 0 {
			if r := rt.callbacks.lookupRealm(jobCtx); r != nil {
				return ran, r.takeException()
			}
			return ran, fmt.Errorf("pending job failed in unknown context %s", jobCtx)
		}
		ran++
	}
	return ran, nil
}

// Close closes every realm, frees the engine runtime and shuts the
// wazero runtime down. Freeing the engine runtime runs the remaining
// finalizers, so exclusive instances still wrapped get their Finalize
// call here. Close is idempotent.
func (rt *Runtime) Close() error {
	if rt.disposed {
		return nil
	}
	rt.disposed = true

	rt.mu.Lock()
	realms := make([]*Realm, 0, len(rt.realms))
	for _, realm := range rt.realms {
		realms = append(realms, realm)
	}
	rt.mu.Unlock()

	var errs error
	for _, realm := range realms {
		errs = multierr.Append(errs, realm.Close())
	}

	// Freeing the runtime fires the finalizer imports; unregister only
	// after they have run.
	errs = multierr.Append(errs, rt.registry.FreeRuntime(rt.wasmCtx, rt.ptr))
	rt.callbacks.UnregisterRuntime(rt.ptr)
	errs = multierr.Append(errs, rt.wazero.Close(rt.wasmCtx))
	rt.logger.Debug("runtime closed", zap.Stringer("runtime", rt.ptr))
	return errs
}

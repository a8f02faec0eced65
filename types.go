// Package kago embeds the QuickJS JavaScript engine, compiled to
// WebAssembly, into Go programs. The engine runs inside a wazero
// sandbox; kago tracks every JavaScript value handed across that
// boundary so handles stay safe to hold after their owner is gone,
// and keeps Go errors and script exceptions from leaking into one
// another.
package kago

import "fmt"

// RuntimePtr locates a JSRuntime inside the engine's linear memory.
// A runtime owns the engine heap and every realm created from it.
type RuntimePtr int32

// IsNull reports whether the pointer is null (zero).
func (p RuntimePtr) IsNull() bool { return p == 0 }

func (p RuntimePtr) String() string { return fmt.Sprintf("RuntimePtr(0x%x)", int32(p)) }

// ContextPtr locates a JSContext inside the engine's linear memory.
// A context is one JavaScript realm with its own global object.
type ContextPtr int32

// IsNull reports whether the pointer is null (zero).
func (p ContextPtr) IsNull() bool { return p == 0 }

func (p ContextPtr) String() string { return fmt.Sprintf("ContextPtr(0x%x)", int32(p)) }

// ValuePtr locates a heap-boxed JSValue inside the engine's linear
// memory. Every box is released exactly once with FreeValue; the
// engine's static boxes (undefined, null, booleans and the exception
// marker) tolerate spurious frees.
type ValuePtr int32

// IsNull reports whether the pointer is null (zero).
func (p ValuePtr) IsNull() bool { return p == 0 }

func (p ValuePtr) String() string { return fmt.Sprintf("ValuePtr(0x%x)", int32(p)) }

// MemoryPtr locates a raw allocation inside the engine's linear memory.
type MemoryPtr int32

// IsNull reports whether the pointer is null (zero).
func (p MemoryPtr) IsNull() bool { return p == 0 }

func (p MemoryPtr) String() string { return fmt.Sprintf("MemoryPtr(0x%x)", int32(p)) }

// ClassID identifies a registered object class inside one engine
// runtime. IDs are allocated by the engine and never reused.
type ClassID int32

// IsValid reports whether the class ID is valid (non-zero).
func (id ClassID) IsValid() bool { return id != 0 }

func (id ClassID) String() string { return fmt.Sprintf("ClassID(%d)", int32(id)) }

// FuncID keys a Go callable in the runtime's function store. The
// engine passes it back through the call_function import when the
// corresponding script function is invoked.
type FuncID int32

func (id FuncID) String() string { return fmt.Sprintf("FuncID(%d)", int32(id)) }

// OpaqueID keys a native class instance in the runtime's instance
// store. The engine stores it in the object's opaque slot and hands
// it back to finalizer and mark callbacks.
type OpaqueID int32

func (id OpaqueID) String() string { return fmt.Sprintf("OpaqueID(%d)", int32(id)) }

// funcKind selects the engine trampoline built by NewFunction.
type funcKind int32

const (
	funcKindNormal      funcKind = 0
	funcKindConstructor funcKind = 1
	funcKindGetter      funcKind = 2
	funcKindSetter      funcKind = 3
)

// errKind selects the Error subclass built by ThrowError.
type errKind int32

const (
	errKindPlain     errKind = 0
	errKindType      errKind = 1
	errKindRange     errKind = 2
	errKindReference errKind = 3
	errKindSyntax    errKind = 4
	errKindInternal  errKind = 5
)

// Evaluation flags, forwarded verbatim to the engine's eval entry.
const (
	evalFlagStrict      int32 = 1 << 0
	evalFlagCompileOnly int32 = 1 << 1
	evalFlagModule      int32 = 1 << 2
)

// Allocation trace event kinds reported through the alloc_trace import.
const (
	allocTraceMalloc  int32 = 0
	allocTraceRealloc int32 = 1
	allocTraceFree    int32 = 2
)

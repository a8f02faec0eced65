package kago

import (
	"io"

	"github.com/tetratelabs/wazero"
	"go.uber.org/zap"
)

// Options configures Runtime creation. The zero value (or a nil
// pointer) keeps the engine defaults: no memory limit, no interrupts,
// no tracing, no logging.
type Options struct {
	// MemoryLimitBytes caps the engine heap. Zero means no limit.
	MemoryLimitBytes int32

	// MaxStackSizeBytes caps script stack growth. Zero keeps the
	// engine default.
	MaxStackSizeBytes int32

	// GCThresholdBytes sets the allocation volume that triggers a GC
	// cycle. Zero keeps the engine default.
	GCThresholdBytes int32

	// InterruptHandler is polled while script runs; returning true
	// aborts the script with an uncatchable error. Use it to bound
	// runaway scripts.
	InterruptHandler func() bool

	// TraceAllocations logs every engine allocator event at debug
	// level. Costly; meant for leak hunts.
	TraceAllocations bool

	// Logger receives lifecycle and callback diagnostics. Nil disables
	// logging.
	Logger *zap.Logger

	// Stdout and Stderr receive the engine's WASI output streams,
	// which scripts reach through print. Nil discards.
	Stdout io.Writer
	Stderr io.Writer

	// CompilationCache shares compiled engine code across runtimes, so
	// only the first New pays the compile cost.
	CompilationCache wazero.CompilationCache
}

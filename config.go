package kago

import (
	"context"
	"fmt"
	"os"

	"github.com/go-viper/mapstructure/v2"
)

// Config is the serializable counterpart of Options, for hosts that
// load engine settings from configuration files. Decode one with
// [DecodeConfig] and turn it into Options with [Config.Options], or
// hand it straight to [NewFromConfig].
type Config struct {
	// Path locates the engine's WASM binary for [NewFromConfig]. Hosts
	// that embed the binary and call [New] themselves may leave it
	// empty.
	Path string `mapstructure:"path"`

	// MemoryLimitBytes caps the engine heap. Zero means no limit.
	MemoryLimitBytes int32 `mapstructure:"memory_limit_bytes"`

	// MaxStackSizeBytes caps script stack growth. Zero keeps the
	// engine default.
	MaxStackSizeBytes int32 `mapstructure:"max_stack_size_bytes"`

	// GCThresholdBytes sets the allocation volume that triggers a GC
	// cycle. Zero keeps the engine default.
	GCThresholdBytes int32 `mapstructure:"gc_threshold_bytes"`

	// TraceAllocations logs engine allocator events at debug level.
	TraceAllocations bool `mapstructure:"trace_allocations"`
}

// Validate checks the configuration for values the engine would
// reject.
func (c *Config) Validate() error {
	if c.MemoryLimitBytes < 0 {
		return fmt.Errorf("memory_limit_bytes must not be negative, have %d", c.MemoryLimitBytes)
	}
	if c.MaxStackSizeBytes < 0 {
		return fmt.Errorf("max_stack_size_bytes must not be negative, have %d", c.MaxStackSizeBytes)
	}
	if c.GCThresholdBytes < 0 {
		return fmt.Errorf("gc_threshold_bytes must not be negative, have %d", c.GCThresholdBytes)
	}
	if c.MemoryLimitBytes > 0 && c.GCThresholdBytes > c.MemoryLimitBytes {
		return fmt.Errorf("gc_threshold_bytes %d exceeds memory_limit_bytes %d", c.GCThresholdBytes, c.MemoryLimitBytes)
	}
	return nil
}

// DecodeConfig builds a validated Config from loosely typed
// configuration data, such as a YAML or JSON document already
// unmarshalled into a map. Unknown keys are an error, so typos in
// config files surface instead of silently doing nothing.
func DecodeConfig(raw map[string]any) (*Config, error) {
	var cfg Config
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:      &cfg,
		ErrorUnused: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(raw); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Options converts the configuration into runtime Options. Fields a
// config file cannot carry (logger, writers, interrupt handler,
// compilation cache) stay unset.
func (c *Config) Options() *Options {
	return &Options{
		MemoryLimitBytes:  c.MemoryLimitBytes,
		MaxStackSizeBytes: c.MaxStackSizeBytes,
		GCThresholdBytes:  c.GCThresholdBytes,
		TraceAllocations:  c.TraceAllocations,
	}
}

// NewFromConfig reads the engine binary from cfg.Path and creates a
// Runtime with the configured limits. opts may be nil; when given,
// only the fields a config file cannot carry are taken from it, and
// the limits come from cfg.
func NewFromConfig(ctx context.Context, cfg *Config, opts *Options) (*Runtime, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("config names no engine path")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	engine, err := os.ReadFile(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("read engine binary: %w", err)
	}
	merged := cfg.Options()
	if opts != nil {
		merged.InterruptHandler = opts.InterruptHandler
		merged.Logger = opts.Logger
		merged.Stdout = opts.Stdout
		merged.Stderr = opts.Stderr
		merged.CompilationCache = opts.CompilationCache
	}
	return New(ctx, engine, merged)
}

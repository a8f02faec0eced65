package kago_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kagojs/kago"
)

func TestDecodeConfig(t *testing.T) {
	cfg, err := kago.DecodeConfig(map[string]any{
		"path":                 "engine/kago_quickjs.wasm",
		"memory_limit_bytes":   16 * 1024 * 1024,
		"max_stack_size_bytes": 512 * 1024,
		"gc_threshold_bytes":   1024 * 1024,
		"trace_allocations":    true,
	})
	require.NoError(t, err)
	assert.Equal(t, "engine/kago_quickjs.wasm", cfg.Path)
	assert.Equal(t, int32(16*1024*1024), cfg.MemoryLimitBytes)
	assert.Equal(t, int32(512*1024), cfg.MaxStackSizeBytes)
	assert.Equal(t, int32(1024*1024), cfg.GCThresholdBytes)
	assert.True(t, cfg.TraceAllocations)
}

func TestDecodeConfigDefaults(t *testing.T) {
	cfg, err := kago.DecodeConfig(map[string]any{})
	require.NoError(t, err)
	assert.Zero(t, cfg.MemoryLimitBytes)
	assert.Zero(t, cfg.MaxStackSizeBytes)
	assert.Zero(t, cfg.GCThresholdBytes)
	assert.False(t, cfg.TraceAllocations)
}

func TestDecodeConfigRejectsUnknownKeys(t *testing.T) {
	_, err := kago.DecodeConfig(map[string]any{
		"memory_limit_bytse": 1024,
	})
	require.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  kago.Config
		ok   bool
	}{
		{"zero value", kago.Config{}, true},
		{"limits set", kago.Config{MemoryLimitBytes: 1 << 20, GCThresholdBytes: 1 << 16}, true},
		{"negative memory limit", kago.Config{MemoryLimitBytes: -1}, false},
		{"negative stack size", kago.Config{MaxStackSizeBytes: -1}, false},
		{"negative gc threshold", kago.Config{GCThresholdBytes: -1}, false},
		{"threshold above limit", kago.Config{MemoryLimitBytes: 1 << 16, GCThresholdBytes: 1 << 20}, false},
		{"threshold without limit", kago.Config{GCThresholdBytes: 1 << 20}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestConfigOptions(t *testing.T) {
	cfg := kago.Config{
		MemoryLimitBytes:  1 << 20,
		MaxStackSizeBytes: 1 << 18,
		GCThresholdBytes:  1 << 16,
		TraceAllocations:  true,
	}
	opts := cfg.Options()
	assert.Equal(t, cfg.MemoryLimitBytes, opts.MemoryLimitBytes)
	assert.Equal(t, cfg.MaxStackSizeBytes, opts.MaxStackSizeBytes)
	assert.Equal(t, cfg.GCThresholdBytes, opts.GCThresholdBytes)
	assert.True(t, opts.TraceAllocations)
	assert.Nil(t, opts.Logger)
	assert.Nil(t, opts.InterruptHandler)
}

func TestNewFromConfigErrors(t *testing.T) {
	ctx := context.Background()

	_, err := kago.NewFromConfig(ctx, nil, nil)
	require.Error(t, err)

	_, err = kago.NewFromConfig(ctx, &kago.Config{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path")

	_, err = kago.NewFromConfig(ctx, &kago.Config{Path: "engine.wasm", MemoryLimitBytes: -1}, nil)
	require.Error(t, err)

	_, err = kago.NewFromConfig(ctx, &kago.Config{Path: filepath.Join(t.TempDir(), "missing.wasm")}, nil)
	require.ErrorIs(t, err, os.ErrNotExist)

	junk := filepath.Join(t.TempDir(), "engine.wasm")
	require.NoError(t, os.WriteFile(junk, []byte("not a module"), 0o644))
	_, err = kago.NewFromConfig(ctx, &kago.Config{Path: junk}, nil)
	require.Error(t, err)
}

func TestNewFromConfigBoots(t *testing.T) {
	path := os.Getenv("KAGO_WASM")
	if path == "" {
		path = filepath.Join("testdata", "kago_quickjs.wasm")
	}
	if _, err := os.Stat(path); err != nil {
		t.Skipf("engine binary not available: %v", err)
	}

	rt, err := kago.NewFromConfig(context.Background(), &kago.Config{
		Path:             path,
		MemoryLimitBytes: 32 * 1024 * 1024,
	}, &kago.Options{Logger: zap.NewNop()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })

	realm, err := rt.CreateRealm()
	require.NoError(t, err)
	v, err := realm.Eval("6 * 7")
	require.NoError(t, err)
	defer v.Free()
	assert.Equal(t, int32(42), v.Int32())
}

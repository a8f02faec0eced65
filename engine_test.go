package kago_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kagojs/kago"
)

var (
	wasmOnce  sync.Once
	wasmBytes []byte
	wasmErr   error
)

// engineWasm loads the engine binary, skipping the test when it is not
// present. Set KAGO_WASM to point at a build outside the repo.
func engineWasm(t *testing.T) []byte {
	t.Helper()
	wasmOnce.Do(func() {
		path := os.Getenv("KAGO_WASM")
		if path == "" {
			path = filepath.Join("testdata", "kago_quickjs.wasm")
		}
		wasmBytes, wasmErr = os.ReadFile(path)
	})
	if wasmErr != nil {
		t.Skipf("engine binary not available: %v", wasmErr)
	}
	return wasmBytes
}

func newTestRuntime(t *testing.T, opts *kago.Options) *kago.Runtime {
	t.Helper()
	rt, err := kago.New(context.Background(), engineWasm(t), opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func newTestRealm(t *testing.T) *kago.Realm {
	t.Helper()
	rt := newTestRuntime(t, nil)
	realm, err := rt.CreateRealm()
	require.NoError(t, err)
	return realm
}

// mustEval evaluates code and fails the test on any error.
func mustEval(t *testing.T, realm *kago.Realm, code string, opts ...kago.EvalOption) kago.Value {
	t.Helper()
	v, err := realm.Eval(code, opts...)
	require.NoError(t, err)
	return v
}

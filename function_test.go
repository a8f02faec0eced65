package kago

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBindCallableShapes(t *testing.T) {
	tests := []struct {
		name     string
		fn       any
		wantArgs bool
		params   []paramKind
		results  resultShape
	}{
		{
			name:    "niladic",
			fn:      func() {},
			results: retNone,
		},
		{
			name:     "args only",
			fn:       func(Args) {},
			wantArgs: true,
			results:  retNone,
		},
		{
			name:    "typed params",
			fn:      func(int32, string, float64) {},
			params:  []paramKind{paramInt32, paramString, paramFloat64},
			results: retNone,
		},
		{
			name:     "args then typed",
			fn:       func(Args, Value, bool) {},
			wantArgs: true,
			params:   []paramKind{paramValue, paramBool},
			results:  retNone,
		},
		{
			name:    "all typed kinds",
			fn:      func(Value, bool, int32, uint32, int64, float64, string) {},
			params:  []paramKind{paramValue, paramBool, paramInt32, paramUint32, paramInt64, paramFloat64, paramString},
			results: retNone,
		},
		{
			name:    "value result",
			fn:      func() string { return "" },
			results: retValue,
		},
		{
			name:    "error result",
			fn:      func() error { return nil },
			results: retError,
		},
		{
			name:    "value and error",
			fn:      func() (Value, error) { return Value{}, nil },
			results: retValueError,
		},
		{
			name:    "plain int result",
			fn:      func() int { return 0 },
			results: retValue,
		},
		{
			name:    "func result",
			fn:      func() func() { return nil },
			results: retValue,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			desc, err := bindCallable(tt.name, tt.fn)
			require.NoError(t, err)
			assert.Equal(t, tt.wantArgs, desc.wantArgs)
			assert.Equal(t, tt.params, desc.params)
			assert.Equal(t, tt.results, desc.results)
			assert.Equal(t, int32(len(tt.params)), desc.arity())
		})
	}
}

func TestBindCallableRejects(t *testing.T) {
	tests := []struct {
		name string
		fn   any
	}{
		{"not a function", 42},
		{"nil function", (func())(nil)},
		{"variadic", func(...int32) {}},
		{"unsupported param float32", func(float32) {}},
		{"unsupported param struct", func(struct{ X int }) {}},
		{"unsupported param pointer", func(*int32) {}},
		{"args not first", func(int32, Args) {}},
		{"unsupported result", func() chan int { return nil }},
		{"error not last", func() (error, Value) { return nil, Value{} }},
		{"three results", func() (Value, Value, error) { return Value{}, Value{}, nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := bindCallable(tt.name, tt.fn)
			require.Error(t, err)
		})
	}
}

func TestBindCallableNamesErrors(t *testing.T) {
	_, err := bindCallable("greet", func(float32) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "greet")
	assert.Contains(t, err.Error(), "parameter 0")
}

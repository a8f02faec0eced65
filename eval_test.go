package kago_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagojs/kago"
)

func TestEvalNumber(t *testing.T) {
	realm := newTestRealm(t)

	v := mustEval(t, realm, "6 * 7")
	defer v.Free()
	assert.True(t, v.IsNumber())
	n, err := v.AsInt32()
	require.NoError(t, err)
	assert.Equal(t, int32(42), n)
}

func TestEvalString(t *testing.T) {
	realm := newTestRealm(t)

	v := mustEval(t, realm, `"hello" + " " + "world"`)
	defer v.Free()
	assert.True(t, v.IsString())
	s, err := v.AsString()
	require.NoError(t, err)
	assert.Equal(t, "hello world", s)
}

func TestEvalEmptyCode(t *testing.T) {
	realm := newTestRealm(t)

	v, err := realm.Eval("")
	require.NoError(t, err)
	assert.True(t, v.IsUndefined())
}

func TestEvalStatePersistsAcrossCalls(t *testing.T) {
	realm := newTestRealm(t)

	mustEval(t, realm, "globalThis.counter = 40").Free()
	v := mustEval(t, realm, "counter + 2")
	defer v.Free()
	assert.Equal(t, int64(42), v.Int64())
}

func TestEvalScriptExceptionFromError(t *testing.T) {
	realm := newTestRealm(t)

	_, err := realm.Eval(`throw new Error("boom")`)
	require.Error(t, err)

	var exc *kago.ScriptException
	require.ErrorAs(t, err, &exc)
	assert.True(t, exc.IsError)
	assert.Contains(t, exc.Message, "boom")
	assert.NotEmpty(t, exc.Stack)
	assert.True(t, exc.Value.IsError())
	exc.Value.Free()
}

func TestEvalScriptExceptionFromPlainValue(t *testing.T) {
	realm := newTestRealm(t)

	// Any value can be thrown; non-Error values carry no stack.
	_, err := realm.Eval("throw 42")
	require.Error(t, err)

	var exc *kago.ScriptException
	require.ErrorAs(t, err, &exc)
	assert.False(t, exc.IsError)
	assert.Equal(t, "42", exc.Message)
	assert.Empty(t, exc.Stack)
	assert.Equal(t, int32(42), exc.Value.Int32())
	exc.Value.Free()
}

func TestEvalSyntaxError(t *testing.T) {
	realm := newTestRealm(t)

	_, err := realm.Eval("function (")
	require.Error(t, err)

	var exc *kago.ScriptException
	require.ErrorAs(t, err, &exc)
	assert.True(t, exc.IsError)
	assert.Contains(t, exc.Message, "SyntaxError")
	exc.Value.Free()
}

func TestEvalFilenameInStack(t *testing.T) {
	realm := newTestRealm(t)

	_, err := realm.Eval(`throw new Error("where am I")`, kago.EvalFilename("app.js"))
	require.Error(t, err)

	var exc *kago.ScriptException
	require.ErrorAs(t, err, &exc)
	assert.Contains(t, exc.Stack, "app.js")
	exc.Value.Free()
}

func TestEvalStrictMode(t *testing.T) {
	realm := newTestRealm(t)

	// Sloppy mode creates the global implicitly.
	mustEval(t, realm, "implicitGlobal = 1").Free()

	// Strict mode rejects the same assignment.
	_, err := realm.Eval("anotherImplicit = 1", kago.EvalStrict())
	require.Error(t, err)

	var exc *kago.ScriptException
	require.ErrorAs(t, err, &exc)
	assert.Contains(t, exc.Message, "ReferenceError")
	exc.Value.Free()
}

func TestEvalCompileOnly(t *testing.T) {
	realm := newTestRealm(t)

	compiled, err := realm.Eval("globalThis.ran = true", kago.EvalCompileOnly())
	require.NoError(t, err)
	compiled.Free()

	v := mustEval(t, realm, "globalThis.ran")
	defer v.Free()
	assert.True(t, v.IsUndefined())
}

func TestEvalCompileOnlyStillChecksSyntax(t *testing.T) {
	realm := newTestRealm(t)

	_, err := realm.Eval("function (", kago.EvalCompileOnly())
	require.Error(t, err)
}

func TestEvalOnClosedRealm(t *testing.T) {
	realm := newTestRealm(t)
	require.NoError(t, realm.Close())

	_, err := realm.Eval("1 + 1")
	assert.ErrorIs(t, err, kago.ErrRealmClosed)
}

package kago_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kagojs/kago"
)

type point struct {
	x, y float64
}

func pointClass() *kago.ClassDef {
	return kago.NewClass("Point").
		Constructor(func(a kago.Args) (any, error) {
			return &point{x: a.Get(0).Float64(), y: a.Get(1).Float64()}, nil
		}).
		Method("norm", func(inst any, a kago.Args) (kago.Value, error) {
			p := inst.(*point)
			return a.Realm().NewFloat64(p.x*p.x + p.y*p.y), nil
		}).
		Accessor("x",
			func(inst any, this kago.Value) (kago.Value, error) {
				return this.Realm().NewFloat64(inst.(*point).x), nil
			},
			func(inst any, this kago.Value, v kago.Value) error {
				inst.(*point).x = v.Float64()
				return nil
			}).
		Accessor("y",
			func(inst any, this kago.Value) (kago.Value, error) {
				return this.Realm().NewFloat64(inst.(*point).y), nil
			},
			nil).
		Build()
}

func TestClassConstructFromScript(t *testing.T) {
	realm := newTestRealm(t)
	require.NoError(t, realm.RegisterClass(pointClass()))

	v := mustEval(t, realm, "new Point(3, 4).norm()")
	assert.Equal(t, float64(25), v.Float64())
	v.Free()

	v = mustEval(t, realm, "new Point(3, 4) instanceof Point")
	assert.True(t, v.Bool())
	v.Free()
}

func TestClassAccessors(t *testing.T) {
	realm := newTestRealm(t)
	require.NoError(t, realm.RegisterClass(pointClass()))

	v := mustEval(t, realm, `
		(() => {
			const p = new Point(1, 2);
			p.x = 10;
			return p.x + "," + p.y;
		})()
	`)
	assert.Equal(t, "10,2", v.String())
	v.Free()
}

func TestClassReadOnlyAccessorThrows(t *testing.T) {
	realm := newTestRealm(t)
	require.NoError(t, realm.RegisterClass(pointClass()))

	// y has no setter; strict mode surfaces the write as a TypeError.
	v := mustEval(t, realm, `
		(() => {
			"use strict";
			const p = new Point(1, 2);
			try { p.y = 5 } catch (e) { return e instanceof TypeError }
			return "did not throw";
		})()
	`)
	assert.Equal(t, "true", v.String())
	v.Free()
}

func TestClassWriteOnlyAccessorReadsUndefined(t *testing.T) {
	realm := newTestRealm(t)

	type sink struct{ last float64 }
	var captured float64
	def := kago.NewClass("Sink").
		Constructor(func(kago.Args) (any, error) { return &sink{}, nil }).
		Accessor("input", nil,
			func(inst any, this kago.Value, v kago.Value) error {
				inst.(*sink).last = v.Float64()
				captured = inst.(*sink).last
				return nil
			}).
		Build()
	require.NoError(t, realm.RegisterClass(def))

	v := mustEval(t, realm, `
		(() => {
			const s = new Sink();
			s.input = 7;
			return typeof s.input;
		})()
	`)
	assert.Equal(t, "undefined", v.String())
	assert.Equal(t, float64(7), captured)
	v.Free()
}

func TestClassMethodOnForeignObjectThrows(t *testing.T) {
	realm := newTestRealm(t)
	require.NoError(t, realm.RegisterClass(pointClass()))

	v := mustEval(t, realm, `
		(() => {
			try { Point.prototype.norm.call({}) } catch (e) { return e instanceof TypeError }
			return "did not throw";
		})()
	`)
	assert.Equal(t, "true", v.String())
	v.Free()
}

func TestClassConstructFromHost(t *testing.T) {
	realm := newTestRealm(t)
	def := pointClass()
	require.NoError(t, realm.RegisterClass(def))

	p, err := realm.New(def, 3.0, 4.0)
	require.NoError(t, err)
	defer p.Free()

	norm, err := p.Invoke("norm")
	require.NoError(t, err)
	assert.Equal(t, float64(25), norm.Float64())
	norm.Free()
}

func TestClassNewUnregistered(t *testing.T) {
	realm := newTestRealm(t)

	_, err := realm.New(pointClass())
	assert.ErrorIs(t, err, kago.ErrNoSuchClass)
	_, err = realm.Wrap(pointClass(), &point{})
	assert.ErrorIs(t, err, kago.ErrNoSuchClass)
}

func TestClassRegisterTwice(t *testing.T) {
	realm := newTestRealm(t)
	def := pointClass()
	require.NoError(t, realm.RegisterClass(def))

	// Same definition again is a no-op.
	require.NoError(t, realm.RegisterClass(def))

	// A different definition under the same name is rejected.
	err := realm.RegisterClass(pointClass())
	assert.ErrorIs(t, err, kago.ErrClassRegistered)
}

func TestClassConstructorThrowIsCatchable(t *testing.T) {
	realm := newTestRealm(t)

	def := kago.NewClass("Strict").
		Constructor(func(a kago.Args) (any, error) {
			if a.Len() == 0 {
				return nil, a.Realm().Throw(a.Realm().NewString("need an argument"))
			}
			return &struct{}{}, nil
		}).
		Build()
	require.NoError(t, realm.RegisterClass(def))

	v := mustEval(t, realm, `
		(() => {
			try { new Strict() } catch (e) { return "caught:" + e }
			return "did not throw";
		})()
	`)
	assert.Equal(t, "caught:need an argument", v.String())
	v.Free()

	ok := mustEval(t, realm, "new Strict(1) instanceof Strict")
	assert.True(t, ok.Bool())
	ok.Free()
}

func TestClassConstructorGoErrorAborts(t *testing.T) {
	realm := newTestRealm(t)

	failure := fmt.Errorf("backend unavailable")
	def := kago.NewClass("Broken").
		Constructor(func(a kago.Args) (any, error) { return nil, failure }).
		Build()
	require.NoError(t, realm.RegisterClass(def))

	_, err := realm.Eval("try { new Broken() } catch (e) { globalThis.sawIt = true }")
	require.Error(t, err)
	assert.ErrorIs(t, err, failure)

	saw := mustEval(t, realm, "globalThis.sawIt === true")
	assert.False(t, saw.Bool())
}

func TestClassWithoutConstructor(t *testing.T) {
	realm := newTestRealm(t)

	def := kago.NewSharedClass("WrapOnly").
		Method("ping", func(inst any, a kago.Args) (kago.Value, error) {
			return a.Realm().NewString("pong"), nil
		}).
		Build()
	require.NoError(t, realm.RegisterClass(def))

	v := mustEval(t, realm, `
		(() => {
			try { new WrapOnly() } catch (e) { return e instanceof TypeError }
			return "constructed";
		})()
	`)
	assert.Equal(t, "true", v.String())
	v.Free()

	// Wrapping still works without a constructor.
	w, err := realm.Wrap(def, &struct{}{})
	require.NoError(t, err)
	defer w.Free()
	pong, err := w.Invoke("ping")
	require.NoError(t, err)
	assert.Equal(t, "pong", pong.String())
	pong.Free()
}

type counter struct {
	n int32
}

func counterClass() *kago.ClassDef {
	return kago.NewSharedClass("Counter").
		Constructor(func(a kago.Args) (any, error) { return &counter{}, nil }).
		Method("inc", func(inst any, a kago.Args) (kago.Value, error) {
			inst.(*counter).n++
			return a.This(), nil
		}).
		Accessor("value",
			func(inst any, this kago.Value) (kago.Value, error) {
				return this.Realm().NewInt32(inst.(*counter).n), nil
			},
			nil).
		Build()
}

func TestSharedClassWrapPreservesIdentity(t *testing.T) {
	realm := newTestRealm(t)
	def := counterClass()
	require.NoError(t, realm.RegisterClass(def))

	inst := &counter{n: 5}
	a, err := realm.Wrap(def, inst)
	require.NoError(t, err)
	defer a.Free()
	b, err := realm.Wrap(def, inst)
	require.NoError(t, err)
	defer b.Free()

	// The same Go instance wraps to the same script object.
	eq, err := a.StrictEquals(b)
	require.NoError(t, err)
	assert.True(t, eq)

	// A different instance wraps to a different object.
	other, err := realm.Wrap(def, &counter{})
	require.NoError(t, err)
	defer other.Free()
	eq, err = a.StrictEquals(other)
	require.NoError(t, err)
	assert.False(t, eq)

	// And mutations through either handle hit the shared instance.
	res, err := a.Invoke("inc")
	require.NoError(t, err)
	res.Free()
	assert.Equal(t, int32(6), inst.n)
}

func TestSharedClassMethodChaining(t *testing.T) {
	realm := newTestRealm(t)
	require.NoError(t, realm.RegisterClass(counterClass()))

	v := mustEval(t, realm, "new Counter().inc().inc().inc().value")
	assert.Equal(t, int32(3), v.Int32())
	v.Free()
}

type tracked struct {
	finalized *bool
}

func (i *tracked) Finalize() { *i.finalized = true }

func TestExclusiveClassFinalizer(t *testing.T) {
	realm := newTestRealm(t)

	finalized := false
	def := kago.NewClass("Tracked").
		Constructor(func(a kago.Args) (any, error) {
			return &tracked{finalized: &finalized}, nil
		}).
		Build()
	require.NoError(t, realm.RegisterClass(def))

	mustEval(t, realm, "globalThis.keep = new Tracked()").Free()
	assert.False(t, finalized)

	// Dropping the last script reference releases the instance.
	mustEval(t, realm, "globalThis.keep = null").Free()
	require.NoError(t, realm.Runtime().RunGC())
	assert.True(t, finalized)
}

func TestExclusiveClassFinalizerOnRuntimeClose(t *testing.T) {
	rt := newTestRuntime(t, nil)
	realm, err := rt.CreateRealm()
	require.NoError(t, err)

	finalized := false
	def := kago.NewClass("Held").
		Constructor(func(a kago.Args) (any, error) {
			return &tracked{finalized: &finalized}, nil
		}).
		Build()
	require.NoError(t, realm.RegisterClass(def))

	mustEval(t, realm, "globalThis.held = new Held()").Free()
	require.NoError(t, rt.Close())
	assert.True(t, finalized)
}

func TestClassGCMarkKeepsRetainedValues(t *testing.T) {
	realm := newTestRealm(t)

	type holder struct {
		retained kago.Value
	}
	def := kago.NewClass("Holder").
		Constructor(func(a kago.Args) (any, error) {
			v, err := a.Get(0).Dup()
			if err != nil {
				return nil, err
			}
			return &holder{retained: v}, nil
		}).
		Method("get", func(inst any, a kago.Args) (kago.Value, error) {
			return inst.(*holder).retained.Dup()
		}).
		GCMark(func(inst any, mark func(kago.Value)) {
			mark(inst.(*holder).retained)
		}).
		Build()
	require.NoError(t, realm.RegisterClass(def))

	mustEval(t, realm, `globalThis.h = new Holder({secret: 42})`).Free()
	require.NoError(t, realm.Runtime().RunGC())

	v := mustEval(t, realm, "h.get().secret")
	assert.Equal(t, int32(42), v.Int32())
	v.Free()
}

type stash struct {
	retained kago.Value
}

func stashClass() *kago.ClassDef {
	return kago.NewSharedClass("Stash").
		Method("put", func(inst any, a kago.Args) (kago.Value, error) {
			v, err := a.Get(0).Dup()
			if err != nil {
				return kago.Value{}, err
			}
			inst.(*stash).retained = v
			return kago.Value{}, nil
		}).
		Build()
}

func TestInstanceHeldValuesInvalidAfterClose(t *testing.T) {
	rt := newTestRuntime(t, nil)
	def := stashClass()

	realm, err := rt.CreateRealm()
	require.NoError(t, err)
	require.NoError(t, realm.RegisterClass(def))

	first := &stash{}
	obj, err := realm.Wrap(def, first)
	require.NoError(t, err)
	require.NoError(t, realm.SetGlobal("stash", obj))
	obj.Free()

	mustEval(t, realm, `stash.put({big: "plans"})`).Free()
	require.True(t, first.retained.Valid())

	// Values an instance kept past the call go invalid with their realm.
	require.NoError(t, realm.Close())
	assert.False(t, first.retained.Valid())
	_, err = first.retained.Get("big")
	assert.ErrorIs(t, err, kago.ErrInvalidValue)
	first.retained.Free()

	// Runtime teardown abandons instance-held Values the same way.
	second := &stash{}
	other, err := rt.CreateRealm()
	require.NoError(t, err)
	require.NoError(t, other.RegisterClass(def))
	obj, err = other.Wrap(def, second)
	require.NoError(t, err)
	require.NoError(t, other.SetGlobal("stash", obj))
	obj.Free()
	mustEval(t, other, `stash.put([1, 2, 3])`).Free()
	require.True(t, second.retained.Valid())

	require.NoError(t, rt.Close())
	assert.False(t, second.retained.Valid())
	assert.Zero(t, second.retained.Int32())
}

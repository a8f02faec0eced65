package kago

import "fmt"

// CtorFunc builds the native instance behind one script construction.
// Returning an error aborts the construction; no instance is attached
// and the error propagates like any other callable failure.
type CtorFunc func(a Args) (any, error)

// MethodFunc handles a method call on a bound instance.
type MethodFunc func(inst any, a Args) (Value, error)

// GetterFunc produces a property value from a bound instance.
type GetterFunc func(inst any, this Value) (Value, error)

// SetterFunc stores a property value on a bound instance.
type SetterFunc func(inst any, this Value, v Value) error

// MarkFunc reports extra Values an instance retains, during the
// engine's GC mark phase. Call mark for each retained Value.
type MarkFunc func(inst any, mark func(Value))

// Finalizer is implemented by exclusive instances that want a call when
// the engine collects their wrapper object.
type Finalizer interface {
	Finalize()
}

// ClassDef describes a native-backed script class. Definitions are
// immutable once built and may be registered in any number of realms;
// the engine class itself is allocated once per runtime.
type ClassDef struct {
	name      string
	shared    bool
	ctor      CtorFunc
	methods   map[string]MethodFunc
	accessors map[string]accessorDef
	mark      MarkFunc
}

type accessorDef struct {
	get GetterFunc
	set SetterFunc
}

// Name returns the class name, which is also the global the
// constructor is published under.
func (d *ClassDef) Name() string { return d.name }

// Shared reports whether instances use shared ownership.
func (d *ClassDef) Shared() bool { return d.shared }

// classInfo is one realm's registration of a ClassDef.
type classInfo struct {
	id    ClassID
	ctor  Value
	proto Value
}

// ClassBuilder assembles a ClassDef. Start from NewClass or
// NewSharedClass and finish with Build.
type ClassBuilder struct {
	def *ClassDef
}

// NewClass starts an exclusive-ownership class: each wrapper object
// owns its native instance, and the engine finalizer releases the
// instance (calling Finalize when implemented) once the wrapper is
// collected.
func NewClass(name string) *ClassBuilder {
	return &ClassBuilder{def: &ClassDef{
		name:      name,
		methods:   make(map[string]MethodFunc),
		accessors: make(map[string]accessorDef),
	}}
}

// NewSharedClass starts a shared-ownership class: instances are Go
// references the host may keep too, instances must be comparable
// (typically pointers), and wrapping the same instance twice yields
// the same script object, so === identity holds.
func NewSharedClass(name string) *ClassBuilder {
	b := NewClass(name)
	b.def.shared = true
	return b
}

// Constructor sets the native constructor run by script new and by
// Realm.New. A class without one is not constructable from script.
func (b *ClassBuilder) Constructor(fn CtorFunc) *ClassBuilder {
	b.def.ctor = fn
	return b
}

// Method adds a method under the given name.
func (b *ClassBuilder) Method(name string, fn MethodFunc) *ClassBuilder {
	b.def.methods[name] = fn
	return b
}

// Accessor adds a property with native get and set halves. A nil get
// makes the property write-only, a nil set read-only.
func (b *ClassBuilder) Accessor(name string, get GetterFunc, set SetterFunc) *ClassBuilder {
	b.def.accessors[name] = accessorDef{get: get, set: set}
	return b
}

// GCMark installs the mark hook for instances that retain Values.
func (b *ClassBuilder) GCMark(fn MarkFunc) *ClassBuilder {
	b.def.mark = fn
	return b
}

// Build finishes the definition.
func (b *ClassBuilder) Build() *ClassDef { return b.def }

// instanceBox pins one native instance while its wrapper object lives.
type instanceBox struct {
	def  *ClassDef
	inst any
}

// Dispatch thunks. They locate the instance through the wrapper's
// opaque slot; a wrapper without one (construction aborted, or a
// foreign object) raises a TypeError in the engine instead of
// crashing.

type methodThunk struct {
	def  *ClassDef
	name string
	fn   MethodFunc
}

func (t *methodThunk) invoke(r *Realm, this ValuePtr, argv []ValuePtr) (Value, error) {
	inst, ok := r.lookupInstance(t.def, this)
	if !ok {
		return r.ThrowTypeError("%s.%s called on a detached or foreign object", t.def.name, t.name), nil
	}
	return t.fn(inst, Args{realm: r, this: this, argv: argv})
}

type getterThunk struct {
	def  *ClassDef
	name string
	fn   GetterFunc
}

func (t *getterThunk) invoke(r *Realm, this ValuePtr, argv []ValuePtr) (Value, error) {
	inst, ok := r.lookupInstance(t.def, this)
	if !ok {
		return r.ThrowTypeError("%s.%s read on a detached or foreign object", t.def.name, t.name), nil
	}
	return t.fn(inst, r.adoptBorrowed(this))
}

type setterThunk struct {
	def  *ClassDef
	name string
	fn   SetterFunc
}

func (t *setterThunk) invoke(r *Realm, this ValuePtr, argv []ValuePtr) (Value, error) {
	inst, ok := r.lookupInstance(t.def, this)
	if !ok {
		return r.ThrowTypeError("%s.%s written on a detached or foreign object", t.def.name, t.name), nil
	}
	val := r.Undefined()
	if len(argv) > 0 {
		val = r.adoptBorrowed(argv[0])
	}
	if err := t.fn(inst, r.adoptBorrowed(this), val); err != nil {
		return Value{}, err
	}
	return r.Undefined(), nil
}

// ctorThunk builds instances. It is dispatched through the
// class_constructor import so the wrapper object exists before the
// native constructor runs; on constructor failure the wrapper is
// released with its opaque slot still empty.
type ctorThunk struct {
	def *ClassDef
}

func (t *ctorThunk) invoke(r *Realm, newTarget ValuePtr, argv []ValuePtr) (Value, error) {
	info, ok := r.classes[t.def]
	if !ok {
		return Value{}, ErrNoSuchClass
	}
	if t.def.ctor == nil {
		return r.ThrowTypeError("%s cannot be constructed", t.def.name), nil
	}
	objPtr, err := r.rt.registry.NewObjectClass(r.rt.wasmCtx, r.ptr, info.proto.rec.ptr, info.id)
	if err != nil {
		return Value{}, err
	}
	obj, err := r.wrapResult(objPtr)
	if err != nil {
		return Value{}, err
	}
	inst, err := t.def.ctor(Args{realm: r, this: obj.rec.ptr, argv: argv})
	if err != nil {
		obj.Free()
		return Value{}, err
	}
	if err := r.attachInstance(obj, t.def, info, inst); err != nil {
		obj.Free()
		return Value{}, err
	}
	return obj, nil
}

// attachInstance stores inst in the wrapper's opaque slot and, for
// shared classes, records the wrapper as the instance's one script
// identity.
func (r *Realm) attachInstance(obj Value, def *ClassDef, info classInfo, inst any) error {
	box := &instanceBox{def: def, inst: inst}
	id := r.rt.instances.put(box)
	if err := r.rt.registry.SetOpaque(r.rt.wasmCtx, r.ptr, obj.rec.ptr, id); err != nil {
		r.rt.instances.drop(id)
		return err
	}
	if def.shared {
		r.rt.identity[inst] = &identityEntry{realm: r, ptr: obj.rec.ptr, opaque: id}
	}
	return nil
}

// lookupInstance resolves the native instance behind a wrapper object.
func (r *Realm) lookupInstance(def *ClassDef, this ValuePtr) (any, bool) {
	info, ok := r.classes[def]
	if !ok {
		return nil, false
	}
	opaque, err := r.rt.registry.GetOpaque(r.rt.wasmCtx, r.ptr, this, info.id)
	if err != nil || opaque == 0 {
		return nil, false
	}
	box, ok := r.rt.instances.get(opaque)
	if !ok {
		return nil, false
	}
	return box.inst, true
}

// RegisterClass makes def usable in the realm: it allocates the engine
// class (once per runtime), builds the prototype with the method and
// accessor thunks, builds the constructor, links the two, and
// publishes the constructor on the global object under the class name.
//
// Registering the same definition again is a no-op. Registering a
// different definition under an already used name fails with
// ErrClassRegistered.
func (r *Realm) RegisterClass(def *ClassDef) error {
	if r.disposed {
		return ErrRealmClosed
	}
	if _, ok := r.classes[def]; ok {
		return nil
	}
	for other := range r.classes {
		if other.name == def.name {
			return fmt.Errorf("%w: %s", ErrClassRegistered, def.name)
		}
	}
	id, err := r.rt.classIDFor(def)
	if err != nil {
		return err
	}

	proto := r.NewObject()
	if !proto.Valid() {
		return fmt.Errorf("building %s prototype failed", def.name)
	}
	for name, fn := range def.methods {
		m, err := r.newHostFunction(&methodThunk{def: def, name: name, fn: fn}, name, 0, funcKindNormal)
		if err != nil {
			proto.Free()
			return err
		}
		err = proto.Set(name, m)
		m.Free()
		if err != nil {
			proto.Free()
			return err
		}
	}
	for name, acc := range def.accessors {
		var getPtr, setPtr ValuePtr
		if acc.get != nil {
			g, err := r.newHostFunction(&getterThunk{def: def, name: name, fn: acc.get}, "get "+name, 0, funcKindGetter)
			if err != nil {
				proto.Free()
				return err
			}
			if getPtr, err = r.transferOut(g); err != nil {
				proto.Free()
				return err
			}
		}
		if acc.set != nil {
			s, err := r.newHostFunction(&setterThunk{def: def, name: name, fn: acc.set}, "set "+name, 1, funcKindSetter)
			if err != nil {
				proto.Free()
				return err
			}
			if setPtr, err = r.transferOut(s); err != nil {
				proto.Free()
				return err
			}
		}
		status, err := r.rt.registry.DefineGetSet(r.rt.wasmCtx, r.ptr, proto.rec.ptr, name, getPtr, setPtr)
		if err != nil {
			proto.Free()
			return err
		}
		if status < 0 {
			err := r.takeException()
			proto.Free()
			return err
		}
	}

	ctor, err := r.newHostFunction(&ctorThunk{def: def}, def.name, 0, funcKindConstructor)
	if err != nil {
		proto.Free()
		return err
	}
	if err := r.rt.registry.SetConstructor(r.rt.wasmCtx, r.ptr, ctor.rec.ptr, proto.rec.ptr); err != nil {
		ctor.Free()
		proto.Free()
		return err
	}
	if err := r.SetGlobal(def.name, ctor); err != nil {
		ctor.Free()
		proto.Free()
		return err
	}

	r.classes[def] = classInfo{id: id, ctor: ctor, proto: proto}
	return nil
}

// New constructs an instance of def through the engine, the same path
// script new takes: wrapper first, then the native constructor.
func (r *Realm) New(def *ClassDef, args ...any) (Value, error) {
	if r.disposed {
		return Value{}, ErrRealmClosed
	}
	info, ok := r.classes[def]
	if !ok {
		return Value{}, ErrNoSuchClass
	}
	return info.ctor.CallConstructor(args...)
}

// Wrap builds a wrapper object around an existing native instance
// without running the constructor. For shared classes, wrapping an
// instance that already has a live wrapper in this realm returns that
// same object again. Exclusive instances must be wrapped at most once;
// the wrapper assumes ownership.
func (r *Realm) Wrap(def *ClassDef, inst any) (Value, error) {
	if r.disposed {
		return Value{}, ErrRealmClosed
	}
	info, ok := r.classes[def]
	if !ok {
		return Value{}, ErrNoSuchClass
	}
	if def.shared {
		if ent, ok := r.rt.identity[inst]; ok && ent.realm == r {
			ptr, err := r.rt.registry.DupValue(r.rt.wasmCtx, r.ptr, ent.ptr)
			if err != nil {
				return Value{}, err
			}
			return r.adopt(ptr), nil
		}
	}
	objPtr, err := r.rt.registry.NewObjectClass(r.rt.wasmCtx, r.ptr, info.proto.rec.ptr, info.id)
	if err != nil {
		return Value{}, err
	}
	obj, err := r.wrapResult(objPtr)
	if err != nil {
		return Value{}, err
	}
	if err := r.attachInstance(obj, def, info, inst); err != nil {
		obj.Free()
		return Value{}, err
	}
	return obj, nil
}

package kago

// Args is the raw view of one callback invocation: the un-expanded
// argument list plus the this binding. For callables with typed
// parameters the view is padded with undefined to the declared arity,
// so its length is max(arity, argc); raw-only callables see exactly
// what the script passed. Every handle it returns is borrowed and
// lives only for the duration of the call; Dup anything that must
// outlive it.
type Args struct {
	realm *Realm
	this  ValuePtr
	argv  []ValuePtr
}

// Realm returns the realm the call arrived in.
func (a Args) Realm() *Realm { return a.realm }

// Len returns the length of the view.
func (a Args) Len() int { return len(a.argv) }

// Get returns the i-th argument. Out-of-range indexes return undefined,
// the same padding missing trailing arguments get.
func (a Args) Get(i int) Value {
	if i < 0 || i >= len(a.argv) {
		return a.realm.Undefined()
	}
	return a.realm.adoptBorrowed(a.argv[i])
}

// This returns the call's this binding.
func (a Args) This() Value {
	return a.realm.adoptBorrowed(a.this)
}

// Slice returns a forwarding view of the arguments in [from, to), with
// the bounds clamped to the actual argument count. The view shares the
// call's this binding.
func (a Args) Slice(from, to int) Args {
	if from < 0 {
		from = 0
	}
	if to > len(a.argv) {
		to = len(a.argv)
	}
	if from > to {
		from = to
	}
	return Args{realm: a.realm, this: a.this, argv: a.argv[from:to]}
}

// Values returns every argument in the view, ready to splat into Call
// or CallWith when forwarding.
func (a Args) Values() []any {
	out := make([]any, len(a.argv))
	for i := range a.argv {
		out[i] = a.realm.adoptBorrowed(a.argv[i])
	}
	return out
}

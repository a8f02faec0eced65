package kago

// valueList tracks every owned value record of a realm so teardown can
// abandon all of them in one sweep. The links live inside the records,
// so insert and unlink are O(1) and need no allocation.
type valueList struct {
	head *valueRecord
}

// insert prepends rec. rec must not be linked anywhere.
func (l *valueList) insert(rec *valueRecord) {
	if rec.linked {
		panic("kago: record already tracked")
	}
	rec.prev = nil
	rec.next = l.head
	if l.head != nil {
		l.head.prev = rec
	}
	l.head = rec
	rec.linked = true
}

// unlink removes rec. Safe to call on a record that was never inserted
// or was already removed.
func (l *valueList) unlink(rec *valueRecord) {
	if !rec.linked {
		return
	}
	if rec.prev != nil {
		rec.prev.next = rec.next
	} else {
		l.head = rec.next
	}
	if rec.next != nil {
		rec.next.prev = rec.prev
	}
	rec.prev = nil
	rec.next = nil
	rec.linked = false
}

// forEach visits every record. The successor is read before the visit,
// so fn may unlink the record it was handed.
func (l *valueList) forEach(fn func(*valueRecord)) {
	for rec := l.head; rec != nil; {
		next := rec.next
		fn(rec)
		rec = next
	}
}

// moveTo transfers the whole list into dst, which must be empty. The
// records keep their links; only the heads change. Moving an empty list
// is a no-op.
func (l *valueList) moveTo(dst *valueList) {
	if l.head == nil {
		return
	}
	if dst.head != nil {
		panic("kago: move into non-empty list")
	}
	dst.head = l.head
	l.head = nil
}

func (l *valueList) empty() bool { return l.head == nil }

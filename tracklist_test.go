package kago

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(l *valueList) []*valueRecord {
	var out []*valueRecord
	l.forEach(func(rec *valueRecord) { out = append(out, rec) })
	return out
}

func TestValueListInsertAndUnlink(t *testing.T) {
	var l valueList
	a, b, c := &valueRecord{}, &valueRecord{}, &valueRecord{}

	l.insert(a)
	l.insert(b)
	l.insert(c)
	require.Equal(t, []*valueRecord{c, b, a}, collect(&l))

	l.unlink(b)
	assert.False(t, b.linked)
	assert.Nil(t, b.prev)
	assert.Nil(t, b.next)
	assert.Equal(t, []*valueRecord{c, a}, collect(&l))

	l.unlink(c)
	assert.Equal(t, []*valueRecord{a}, collect(&l))

	l.unlink(a)
	assert.True(t, l.empty())
}

func TestValueListUnlinkIsIdempotent(t *testing.T) {
	var l valueList
	rec := &valueRecord{}

	// Never inserted.
	l.unlink(rec)
	assert.True(t, l.empty())

	l.insert(rec)
	l.unlink(rec)
	l.unlink(rec)
	assert.True(t, l.empty())
}

func TestValueListInsertLinkedPanics(t *testing.T) {
	var l valueList
	rec := &valueRecord{}
	l.insert(rec)
	require.Panics(t, func() { l.insert(rec) })
}

func TestValueListUnlinkDuringForEach(t *testing.T) {
	var l valueList
	recs := []*valueRecord{{}, {}, {}, {}}
	for _, rec := range recs {
		l.insert(rec)
	}

	// The teardown sweep unlinks every record while walking the list.
	var seen int
	l.forEach(func(rec *valueRecord) {
		l.unlink(rec)
		seen++
	})
	assert.Equal(t, len(recs), seen)
	assert.True(t, l.empty())
}

func TestValueListMoveTo(t *testing.T) {
	var src, dst valueList
	a, b := &valueRecord{}, &valueRecord{}
	src.insert(a)
	src.insert(b)

	src.moveTo(&dst)
	assert.True(t, src.empty())
	assert.Equal(t, []*valueRecord{b, a}, collect(&dst))

	// Records stay linked and unlink against the new owner.
	dst.unlink(b)
	assert.Equal(t, []*valueRecord{a}, collect(&dst))
}

func TestValueListMoveToEmptySource(t *testing.T) {
	var src, dst valueList
	dst.insert(&valueRecord{})

	// Moving nothing must not disturb a populated destination.
	src.moveTo(&dst)
	assert.Len(t, collect(&dst), 1)
}

func TestValueListMoveToOccupiedPanics(t *testing.T) {
	var src, dst valueList
	src.insert(&valueRecord{})
	dst.insert(&valueRecord{})
	require.Panics(t, func() { src.moveTo(&dst) })
}

package kacl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/kernelguard/kernel/ktable"
)

func newPopulatedStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	require.NoError(t, s.Register(&Entry{
		ID:     1,
		Name:   "keysize",
		Access: ReadLow | ReadHigh | WriteLow | ExternalOK,
		Kind:   KindNumeric,
		Low:    128,
		High:   256,
	}))
	require.NoError(t, s.Register(&Entry{
		ID:     2,
		Name:   "internal_state",
		Access: ReadHigh,
		Kind:   KindNumeric,
	}))
	return s
}

func TestStore_Register(t *testing.T) {
	t.Run("Should reject an entry missing its required name", func(t *testing.T) {
		s := NewStore()

		err := s.Register(&Entry{ID: 1})

		assert.Error(t, err)
	})

	t.Run("Should keep entries sorted by id for binary search", func(t *testing.T) {
		s := NewStore()
		require.NoError(t, s.Register(&Entry{ID: 5, Name: "b"}))
		require.NoError(t, s.Register(&Entry{ID: 1, Name: "a"}))

		e, err := s.Lookup(1)
		require.NoError(t, err)
		assert.Equal(t, "a", e.Name)
	})
}

func TestStore_Lookup(t *testing.T) {
	t.Run("Should return argument-error for an unregistered id", func(t *testing.T) {
		s := newPopulatedStore(t)

		_, err := s.Lookup(999)

		assert.Error(t, err)
	})
}

func TestEntry_CheckRead(t *testing.T) {
	t.Run("Should report argument-error to an external caller for a non-external attribute", func(t *testing.T) {
		s := newPopulatedStore(t)
		e, err := s.Lookup(2)
		require.NoError(t, err)

		err = e.CheckRead(0, true, false)

		assert.Error(t, err)
	})

	t.Run("Should allow an internal caller to read a high-state-only attribute", func(t *testing.T) {
		s := newPopulatedStore(t)
		e, err := s.Lookup(2)
		require.NoError(t, err)

		err = e.CheckRead(0, true, true)

		assert.NoError(t, err)
	})

	t.Run("Should allow an external caller to read an externally-visible low-state attribute", func(t *testing.T) {
		s := newPopulatedStore(t)
		e, err := s.Lookup(1)
		require.NoError(t, err)

		err = e.CheckRead(0, false, false)

		assert.NoError(t, err)
	})
}

func TestEntry_CheckWrite(t *testing.T) {
	t.Run("Should reject writing an attribute with no high-state write bit", func(t *testing.T) {
		s := newPopulatedStore(t)
		e, err := s.Lookup(1)
		require.NoError(t, err)

		err = e.CheckWrite(0, true, true)

		assert.Error(t, err)
	})

	t.Run("Should permit writing a low-state-writable attribute", func(t *testing.T) {
		s := newPopulatedStore(t)
		e, err := s.Lookup(1)
		require.NoError(t, err)

		err = e.CheckWrite(0, false, false)

		assert.NoError(t, err)
	})
}

func TestEntry_CheckNumeric(t *testing.T) {
	t.Run("Should reject a value outside a plain range", func(t *testing.T) {
		e := &Entry{RangeKind: RangePlain, Low: 1, High: 10}

		assert.Error(t, e.CheckNumeric(20))
		assert.NoError(t, e.CheckNumeric(5))
	})

	t.Run("Should accept only the zero sentinel for RangeSelectValue", func(t *testing.T) {
		e := &Entry{RangeKind: RangeSelectValue}

		assert.NoError(t, e.CheckNumeric(0))
		assert.Error(t, e.CheckNumeric(1))
	})

	t.Run("Should validate against an explicit allowed set", func(t *testing.T) {
		e := &Entry{RangeKind: RangeAllowedValues, Allowed: []int{2, 4, 8}}

		assert.NoError(t, e.CheckNumeric(4))
		assert.Error(t, e.CheckNumeric(3))
	})

	t.Run("Should validate against disjoint subranges", func(t *testing.T) {
		e := &Entry{RangeKind: RangeSubranges, Subranges: []Subrange{{Lo: 1, Hi: 2}, {Lo: 10, Hi: 20}}}

		assert.NoError(t, e.CheckNumeric(15))
		assert.Error(t, e.CheckNumeric(5))
	})
}

func TestEntry_appliesTo(t *testing.T) {
	t.Run("Should apply to every subtype when both masks are zero", func(t *testing.T) {
		e := &Entry{}

		assert.True(t, e.appliesTo(ktable.SubtypeContextHash))
	})

	t.Run("Should restrict to the subtypes named in either mask", func(t *testing.T) {
		e := &Entry{SubA: uint32(ktable.SubtypeContextPKC)}

		assert.True(t, e.appliesTo(ktable.SubtypeContextPKC))
		assert.False(t, e.appliesTo(ktable.SubtypeContextHash))
	})
}

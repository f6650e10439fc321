package kacl

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/compozy/kernelguard/kernel/ktable"
)

func TestKeysetRule_CheckAccess(t *testing.T) {
	rule := &KeysetRule{
		Item:                   ItemPrivateKey,
		AllowedSubtypes:        map[KeysetAccess]uint32{AccessRead: uint32(ktable.SubtypeKeysetFile)},
		WritableObjectSubtypes: uint32(ktable.SubtypeContextPKC),
		RequireID:              map[KeysetAccess]bool{AccessRead: true},
	}

	t.Run("Should reject access for a subtype not in the allowed set", func(t *testing.T) {
		err := rule.CheckAccess(AccessRead, uint32(ktable.SubtypeKeysetDB), false, true, true, nil)

		assert.Error(t, err)
	})

	t.Run("Should require an ID when the rule demands one", func(t *testing.T) {
		err := rule.CheckAccess(AccessRead, uint32(ktable.SubtypeKeysetFile), false, false, true, nil)

		assert.Error(t, err)
	})

	t.Run("Should require a password for a keyset private-key read", func(t *testing.T) {
		err := rule.CheckAccess(AccessRead, uint32(ktable.SubtypeKeysetFile), false, true, false, nil)

		assert.Error(t, err)
	})

	t.Run("Should not require a password for a crypto-device private-key read", func(t *testing.T) {
		err := rule.CheckAccess(AccessRead, uint32(ktable.SubtypeKeysetFile), true, true, false, nil)

		assert.NoError(t, err)
	})

	t.Run("Should reject writing an object of the wrong subtype", func(t *testing.T) {
		writeRule := &KeysetRule{
			Item:                   ItemPublicKey,
			AllowedSubtypes:        map[KeysetAccess]uint32{AccessWrite: uint32(ktable.SubtypeKeysetFile)},
			WritableObjectSubtypes: uint32(ktable.SubtypeContextPKC),
		}
		obj := &ktable.Object{Subtype: ktable.SubtypeContextHash}

		err := writeRule.CheckAccess(AccessWrite, uint32(ktable.SubtypeKeysetFile), false, true, true, obj)

		assert.Error(t, err)
	})

	t.Run("Should accept a well-formed write", func(t *testing.T) {
		writeRule := &KeysetRule{
			Item:                   ItemPublicKey,
			AllowedSubtypes:        map[KeysetAccess]uint32{AccessWrite: uint32(ktable.SubtypeKeysetFile)},
			WritableObjectSubtypes: uint32(ktable.SubtypeContextPKC),
		}
		obj := &ktable.Object{Subtype: ktable.SubtypeContextPKC}

		err := writeRule.CheckAccess(AccessWrite, uint32(ktable.SubtypeKeysetFile), false, true, true, obj)

		assert.NoError(t, err)
	})
}

func TestNewKeysetItemID(t *testing.T) {
	t.Run("Should mint two distinct non-empty identifiers", func(t *testing.T) {
		a, err := NewKeysetItemID()
		assert.NoError(t, err)
		assert.NotEmpty(t, a)

		b, err := NewKeysetItemID()
		assert.NoError(t, err)
		assert.NotEqual(t, a, b)
	})
}

func TestKeymgmtStore(t *testing.T) {
	t.Run("Should return argument-error for an unregistered item type", func(t *testing.T) {
		s := NewKeymgmtStore()

		_, err := s.Lookup(ItemData)

		assert.Error(t, err)
	})

	t.Run("Should return a registered rule", func(t *testing.T) {
		s := NewKeymgmtStore()
		rule := &KeysetRule{Item: ItemData}
		s.Register(rule)

		got, err := s.Lookup(ItemData)

		assert.NoError(t, err)
		assert.Same(t, rule, got)
	})
}

package kdispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/kconfig"
	"github.com/compozy/kernelguard/kernel/ktable"
	"github.com/compozy/kernelguard/pkg/logger"
)

func newTestKernel(t *testing.T) *Kernel {
	t.Helper()
	cfg := kconfig.Default()
	cfg.BusyWaitIterationCap = 3
	return New(cfg, logger.NewLogger(logger.TestConfig()))
}

// allocReady installs a live, high-state object directly (bypassing
// klifecycle, which would create an import cycle from this package).
func allocReady(t *testing.T, k *Kernel, obj *ktable.Object) ktable.Handle {
	t.Helper()
	obj.ForwardCount = -1
	obj.UsageCount = -1
	h, err := k.Table.Alloc(obj, 0)
	require.NoError(t, err)
	k.Table.Mu.Lock()
	obj.Flags &^= ktable.FlagNotInited
	obj.Flags |= ktable.FlagHighState
	k.Table.Mu.Unlock()
	return h
}

// allocLowState installs a live, inited-but-low-state object: NotInited is
// cleared but HighState is left unset, matching the attribute ACL's
// low-state-writable rows (spec.md §4.3).
func allocLowState(t *testing.T, k *Kernel, obj *ktable.Object) ktable.Handle {
	t.Helper()
	obj.ForwardCount = -1
	obj.UsageCount = -1
	h, err := k.Table.Alloc(obj, 0)
	require.NoError(t, err)
	k.Table.Mu.Lock()
	obj.Flags &^= ktable.FlagNotInited
	k.Table.Mu.Unlock()
	return h
}

func TestKernel_Send_ShapeDecode(t *testing.T) {
	t.Run("Should reject a handle/message combination that fails shape decode", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocReady(t, k, &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash})

		err := k.Send(context.Background(), h, MsgHash, nil, -1)

		assert.Error(t, err)
	})
}

func TestKernel_Send_IncDecRefCount(t *testing.T) {
	t.Run("Should destroy the object once a decrement takes refcount below zero", func(t *testing.T) {
		k := newTestKernel(t)
		destroyed := false
		obj := &ktable.Object{
			Type:    ktable.TypeContext,
			Subtype: ktable.SubtypeContextHash,
			Handler: func(_ *ktable.Object, messageType int, _ any, _ int) error {
				if messageType == int(MsgDestroy) {
					destroyed = true
				}
				return nil
			},
		}
		h := allocReady(t, k, obj)

		require.NoError(t, k.Send(context.Background(), h, MsgIncRefCount, nil, 0))
		require.NoError(t, k.Send(context.Background(), h, MsgDecRefCount, nil, 0))
		assert.False(t, destroyed)

		require.NoError(t, k.Send(context.Background(), h, MsgDecRefCount, nil, 0))
		assert.True(t, destroyed)

		_, err := k.Table.Lookup(h)
		assert.Error(t, err)
	})
}

func TestKernel_Send_Destroy(t *testing.T) {
	t.Run("Should reject any further message against a destroyed handle", func(t *testing.T) {
		k := newTestKernel(t)
		obj := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash}
		h := allocReady(t, k, obj)

		require.NoError(t, k.Send(context.Background(), h, MsgDestroy, nil, 0))

		err := k.Send(context.Background(), h, MsgIncRefCount, nil, 0)
		assert.Error(t, err)
	})
}

func TestKernel_Send_Shutdown(t *testing.T) {
	t.Run("Should reject non-essential messages once shutdown has begun", func(t *testing.T) {
		k := newTestKernel(t)
		obj := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash}
		h := allocReady(t, k, obj)

		k.BeginShutdown()

		err := k.Send(context.Background(), h, MsgIncRefCount, nil, 0)
		assert.Error(t, err)
	})
}

func TestKernel_Send_InternalOnly(t *testing.T) {
	t.Run("Should reject an external send to an internal-only object", func(t *testing.T) {
		k := newTestKernel(t)
		obj := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash, Flags: ktable.FlagInternal}
		h := allocReady(t, k, obj)

		err := k.Send(context.Background(), h, MsgIncRefCount, nil, 0)

		assert.Error(t, err)
	})
}

func TestKernel_Compare(t *testing.T) {
	t.Run("Should report equal handles as matching via CompareObjectHandle", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocReady(t, k, &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash})

		eq, err := k.Compare(context.Background(), h, CompareObjectHandle, h)

		require.NoError(t, err)
		assert.True(t, eq)
	})

	t.Run("Should refuse to compare an object that has not completed initialisation", func(t *testing.T) {
		k := newTestKernel(t)
		h1, err := k.Table.Alloc(&ktable.Object{Type: ktable.TypeContext, ForwardCount: -1, UsageCount: -1}, 0)
		require.NoError(t, err)
		h2 := allocReady(t, k, &ktable.Object{Type: ktable.TypeContext})

		_, err = k.Compare(context.Background(), h1, CompareObjectHandle, h2)

		assert.Error(t, err)
	})
}

type certChecker struct{ allow map[ktable.Action]bool }

func (c certChecker) CheckAction(a ktable.Action) bool { return c.allow[a] }

func TestKernel_ChangeNotify_Recomposition(t *testing.T) {
	t.Run("Should retighten a context's permissions on a change-notify naming its certificate dependency", func(t *testing.T) {
		k := newTestKernel(t)
		ctxObj := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextPKC}
		for i := range ctxObj.Perms {
			ctxObj.Perms[i] = ktable.PermAll
		}
		ctxHandle := allocReady(t, k, ctxObj)

		certObj := &ktable.Object{
			Type:    ktable.TypeCertificate,
			Subtype: ktable.SubtypeCertCert,
			Body:    certChecker{allow: map[ktable.Action]bool{ktable.ActionSigCheck: true}},
		}
		certHandle := allocReady(t, k, certObj)

		require.NoError(t, k.Send(context.Background(), ctxHandle, MsgChangeNotify, certHandle, 0))

		assert.Equal(t, ktable.PermInternalOnly, ctxObj.Perms[ktable.ActionSigCheck])
		assert.Equal(t, ktable.PermNotAvailable, ctxObj.Perms[ktable.ActionEncrypt])
	})

	t.Run("Should notify an object's dependent object and device via NotifyDependents", func(t *testing.T) {
		k := newTestKernel(t)
		var notified []ktable.Handle
		dep := &ktable.Object{
			Type:    ktable.TypeContext,
			Subtype: ktable.SubtypeContextHash,
			Handler: func(o *ktable.Object, messageType int, data any, _ int) error {
				if messageType == int(MsgChangeNotify) {
					notified = append(notified, o.Handle)
				}
				return nil
			},
		}
		depHandle := allocReady(t, k, dep)
		src := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash, DependentObject: depHandle}
		srcHandle := allocReady(t, k, src)

		k.NotifyDependents(context.Background(), srcHandle)

		assert.Contains(t, notified, depHandle)
	})
}

func TestKernel_GetObject(t *testing.T) {
	t.Run("Should reject getObject for an object type outside the allowed set", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocReady(t, k, &ktable.Object{Type: ktable.TypeContext})

		_, err := k.GetObject(context.Background(), h, ktable.TypeContext)

		assert.Error(t, err)
	})

	t.Run("Should resolve the body for an allowed type and release cleanly", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocReady(t, k, &ktable.Object{Type: ktable.TypeDevice, Body: "device-state"})

		body, err := k.GetObject(context.Background(), h, ktable.TypeDevice)
		require.NoError(t, err)
		assert.Equal(t, "device-state", body)

		require.NoError(t, k.ReleaseObject(h))

		obj, err := k.Table.Lookup(h)
		require.NoError(t, err)
		assert.False(t, obj.HasFlag(ktable.FlagBusy))
	})
}

func TestKernel_Clone(t *testing.T) {
	t.Run("Should alias source and destination then resolve COW on demand", func(t *testing.T) {
		k := newTestKernel(t)
		src := allocReady(t, k, &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash})
		destObj := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash}
		dest, err := k.Table.Alloc(destObj, 0)
		require.NoError(t, err)
		k.Table.Mu.Lock()
		destObj.Flags &^= ktable.FlagNotInited
		destObj.Flags |= ktable.FlagHighState
		k.Table.Mu.Unlock()

		require.NoError(t, k.Send(context.Background(), src, MsgClone, destObj, 0))

		srcObj, err := k.Table.Lookup(src)
		require.NoError(t, err)
		assert.True(t, srcObj.HasFlag(ktable.FlagAliased))
		assert.True(t, destObj.HasFlag(ktable.FlagAliased))
		assert.Equal(t, dest, srcObj.ClonePeer)
	})
}

func TestKernel_Property(t *testing.T) {
	t.Run("Should set and read the internal property through the kernel-handled path", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocReady(t, k, &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash})

		require.NoError(t, k.Send(context.Background(), h, MsgSetProperty, kacl.PropInternal, 1))

		obj, err := k.Table.Lookup(h)
		require.NoError(t, err)
		assert.True(t, obj.HasFlag(ktable.FlagInternal))
	})

	t.Run("Should hand the get-property result back through the caller's query pointer", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocReady(t, k, &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash})
		require.NoError(t, k.Send(context.Background(), h, MsgSetProperty, kacl.PropInternal, 1))

		query := &kacl.PropertyQuery{ID: kacl.PropInternal}
		require.NoError(t, k.Send(context.Background(), h, MsgGetProperty, query, 0))

		assert.Equal(t, 1, query.Result)
	})
}

func TestKernel_Send_ThreadBound(t *testing.T) {
	t.Run("Should reject a send from a thread other than the object's bound thread", func(t *testing.T) {
		k := newTestKernel(t)
		obj := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash, Flags: ktable.FlagThreadBound, BoundThread: 7}
		h := allocReady(t, k, obj)

		err := k.Send(context.Background(), h, MsgIncRefCount, nil, 0)

		assert.Error(t, err)
	})

	t.Run("Should allow a send from the object's own bound thread", func(t *testing.T) {
		k := newTestKernel(t)
		obj := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash, Flags: ktable.FlagThreadBound, BoundThread: 7}
		h := allocReady(t, k, obj)

		err := k.Send(WithThreadID(context.Background(), 7), h, MsgIncRefCount, nil, 0)

		assert.NoError(t, err)
	})
}

func TestKernel_TransferOwnership(t *testing.T) {
	t.Run("Should ratchet the forward count down across successive transfers and deny the one past zero", func(t *testing.T) {
		k := newTestKernel(t)
		obj := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash}
		h := allocReady(t, k, obj)
		obj.ForwardCount = 2

		require.NoError(t, k.Send(context.Background(), h, MsgTransferOwnership, ktable.Handle(101), 0))
		assert.Equal(t, 1, obj.ForwardCount)
		assert.Equal(t, ktable.Handle(101), obj.Owner)

		require.NoError(t, k.Send(context.Background(), h, MsgTransferOwnership, ktable.Handle(102), 0))
		assert.Equal(t, 0, obj.ForwardCount)
		assert.Equal(t, ktable.Handle(102), obj.Owner)

		err := k.Send(context.Background(), h, MsgTransferOwnership, ktable.Handle(103), 0)
		assert.Error(t, err)
		assert.Equal(t, ktable.Handle(102), obj.Owner)
	})

	t.Run("Should never decrement an unlimited forward count", func(t *testing.T) {
		k := newTestKernel(t)
		obj := &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash}
		h := allocReady(t, k, obj)

		require.NoError(t, k.Send(context.Background(), h, MsgTransferOwnership, ktable.Handle(101), 0))

		assert.Equal(t, -1, obj.ForwardCount)
	})
}

type nonceBody struct{ nonce []byte }

func (n nonceBody) Nonce() []byte { return n.nonce }

func TestKernel_Compare_Nonce(t *testing.T) {
	t.Run("Should route CompareNonce through the configured tolerance policy", func(t *testing.T) {
		k := newTestKernel(t)
		h1 := allocReady(t, k, &ktable.Object{Type: ktable.TypeSession, Subtype: ktable.SubtypeSessionOCSP, Body: nonceBody{nonce: []byte{0x00, 0x01}}})
		h2 := allocReady(t, k, &ktable.Object{Type: ktable.TypeSession, Subtype: ktable.SubtypeSessionOCSP, Body: nonceBody{nonce: []byte{0x01}}})

		eq, err := k.Compare(context.Background(), h1, CompareNonce, h2)

		require.NoError(t, err)
		assert.True(t, eq)
	})
}

func TestKernel_Send_AttributeACL(t *testing.T) {
	t.Run("Should enforce the default attribute ACL's value shape on set-attribute", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocLowState(t, k, &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextConventional})

		err := k.Send(context.Background(), h, MsgSetAttribute, 42, int(kacl.AttrLabel))

		assert.Error(t, err)
	})

	t.Run("Should accept a well-formed set-attribute and reach the object's handler", func(t *testing.T) {
		k := newTestKernel(t)
		reached := false
		obj := &ktable.Object{
			Type:    ktable.TypeContext,
			Subtype: ktable.SubtypeContextConventional,
			Handler: func(_ *ktable.Object, messageType int, _ any, _ int) error {
				if messageType == int(MsgSetAttribute) {
					reached = true
				}
				return nil
			},
		}
		h := allocLowState(t, k, obj)

		err := k.Send(context.Background(), h, MsgSetAttribute, "a label", int(kacl.AttrLabel))

		require.NoError(t, err)
		assert.True(t, reached)
	})

	t.Run("Should reject an attribute that does not apply to the object's subtype", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocReady(t, k, &ktable.Object{Type: ktable.TypeContext, Subtype: ktable.SubtypeContextHash})

		err := k.Send(context.Background(), h, MsgGetAttribute, nil, int(kacl.AttrCertSubject))

		assert.Error(t, err)
	})
}

func TestKernel_Send_MechanismACL(t *testing.T) {
	t.Run("Should validate mechanism parameters and the shared-owner rule before the device handler runs", func(t *testing.T) {
		k := newTestKernel(t)
		owner := ktable.Handle(55)
		device := allocReady(t, k, &ktable.Object{Type: ktable.TypeDevice, Subtype: ktable.SubtypeDeviceSystem, Owner: owner})
		signingCtx := &ktable.Object{Owner: owner, Flags: ktable.FlagHighState}

		params := [5]kacl.Param{
			{Kind: kacl.ParamObject, Object: signingCtx},
			{Kind: kacl.ParamString, String: []byte("payload")},
		}

		err := k.Send(context.Background(), device, MsgMechanism, params, int(kacl.MechSign))

		assert.NoError(t, err)
	})

	t.Run("Should reject a mechanism object parameter owned by a different user", func(t *testing.T) {
		k := newTestKernel(t)
		owner := ktable.Handle(55)
		device := allocReady(t, k, &ktable.Object{Type: ktable.TypeDevice, Subtype: ktable.SubtypeDeviceSystem, Owner: owner})
		foreignCtx := &ktable.Object{Owner: ktable.Handle(99), Flags: ktable.FlagHighState}

		params := [5]kacl.Param{
			{Kind: kacl.ParamObject, Object: foreignCtx},
			{Kind: kacl.ParamString, String: []byte("payload")},
		}

		err := k.Send(context.Background(), device, MsgMechanism, params, int(kacl.MechSign))

		assert.Error(t, err)
	})
}

func TestKernel_Send_KeysetACL(t *testing.T) {
	t.Run("Should allow a public-key read against a file keyset with no ID required", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocReady(t, k, &ktable.Object{Type: ktable.TypeKeyset, Subtype: ktable.SubtypeKeysetFile})

		err := k.Send(context.Background(), h, MsgKeysetRead, &kacl.KeysetCall{Item: kacl.ItemPublicKey}, 0)

		assert.NoError(t, err)
	})

	t.Run("Should reject a private-key read with no ID", func(t *testing.T) {
		k := newTestKernel(t)
		h := allocReady(t, k, &ktable.Object{Type: ktable.TypeKeyset, Subtype: ktable.SubtypeKeysetFile})

		err := k.Send(context.Background(), h, MsgKeysetRead, &kacl.KeysetCall{Item: kacl.ItemPrivateKey}, 0)

		assert.Error(t, err)
	})
}

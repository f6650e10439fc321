package kdispatch

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// checkKeysetAccess is the pre-dispatch hook for keyset read/write
// (spec.md §4.6): it looks up the item type's compile-time rule and
// validates it against the target keyset/crypto-device's own subtype,
// the hardcoded private-key-read password rule, and (for writes) the
// written object's subtype.
func checkKeysetAccess(
	_ context.Context,
	k *Kernel,
	target *ktable.Object,
	mt MessageType,
	data any,
	_ int,
	_ bool,
) error {
	if mt != MsgKeysetRead && mt != MsgKeysetWrite {
		return nil
	}
	call, ok := data.(*kacl.KeysetCall)
	if !ok || call == nil {
		return kerrors.Argument(3, "keyset access requires a *kacl.KeysetCall in data")
	}
	rule, err := k.Keysets.Lookup(call.Item)
	if err != nil {
		return err
	}
	access := kacl.AccessRead
	if mt == MsgKeysetWrite {
		access = kacl.AccessWrite
	}
	isCryptoDevice := target.Type == ktable.TypeDevice
	return rule.CheckAccess(access, uint32(target.Subtype), isCryptoDevice, call.HasID, call.HasPassword, call.WrittenObject)
}

func init() {
	RegisterPreDispatch(MsgKeysetRead, checkKeysetAccess)
	RegisterPreDispatch(MsgKeysetWrite, checkKeysetAccess)
}

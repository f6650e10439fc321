package kdispatch

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// getObjectTypes restricts GetObject/ReleaseObject to the three types that
// legitimately need two-object simultaneous access: certificate copy,
// device-resident context operations, user config updates (spec.md §6,
// grounded on cryptlib's OBJECT_TYPE_CERTIFICATE/DEVICE/USER checks in
// cryptkrn.c's pre/post-dispatch object validation).
var getObjectTypes = map[ktable.ObjectType]bool{
	ktable.TypeCertificate: true,
	ktable.TypeDevice:      true,
	ktable.TypeUser:        true,
}

// GetObject resolves handle to its body for direct access outside the
// normal Send pipeline, reproducing the same busy-wait/lifecycle gating
// as Send but without going through a message type or ACL (spec.md §6
// "getObject(handle, expectedType) -> bodyPointer"). The object's busy
// flag is set for the duration; callers must pair this with ReleaseObject.
func (k *Kernel) GetObject(ctx context.Context, handle ktable.Handle, expectedType ktable.ObjectType) (any, error) {
	if !getObjectTypes[expectedType] {
		return nil, kerrors.Argument(2, "getObject is not available for this object type")
	}

	k.Table.Mu.Lock()
	obj, err := k.Table.LookupNoLock(handle)
	if err != nil {
		k.Table.Mu.Unlock()
		return nil, err
	}
	if obj.Type != expectedType {
		k.Table.Mu.Unlock()
		return nil, kerrors.Argument(2, "handle is not of the expected type")
	}
	if obj.HasFlag(ktable.FlagNotInited) {
		k.Table.Mu.Unlock()
		return nil, kerrors.New(kerrors.NotInited, "object has not completed initialisation")
	}
	if obj.HasFlag(ktable.FlagSignalled) {
		k.Table.Mu.Unlock()
		return nil, kerrors.New(kerrors.Signalled, "object has been destroyed")
	}
	busy := obj.InUse()
	k.Table.Mu.Unlock()

	if busy {
		if err := k.waitForBusy(ctx, obj); err != nil {
			return nil, err
		}
	}

	k.Table.Mu.Lock()
	obj.MarkBusy(ThreadIDFromContext(ctx))
	k.Table.Mu.Unlock()

	k.Table.CacheBody(handle, obj.Body)
	return obj.Body, nil
}

// ReleaseObject clears the busy flag GetObject set, making the object
// available to other callers again (spec.md §6 "releaseObject(handle)").
func (k *Kernel) ReleaseObject(handle ktable.Handle) error {
	k.Table.Mu.Lock()
	defer k.Table.Mu.Unlock()
	obj, err := k.Table.LookupNoLock(handle)
	if err != nil {
		return err
	}
	obj.ClearBusy()
	return nil
}

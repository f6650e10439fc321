package kdispatch

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// dispatchKernelHandled executes the internal handler for messages the
// kernel itself answers (incref, decref, clone, set-dependent,
// get-dependent, transfer-ownership, property get/set) in place of the
// object's own handler (spec.md §4.2 step 9). Caller must hold Table.Mu.
// Messages that return a value (get-dependent, get-property) write it
// through a caller-supplied pointer in data rather than through a second
// return value, so the result survives back out through Send's single
// error-only return.
func (k *Kernel) dispatchKernelHandled(
	ctx context.Context,
	target *ktable.Object,
	mt MessageType,
	data any,
	value int,
	external bool,
) error {
	switch mt {
	case MsgIncRefCount:
		target.RefCount++
		return nil
	case MsgDecRefCount:
		return k.decRefCountLocked(ctx, target)
	case MsgClone:
		dest, ok := data.(*ktable.Object)
		if !ok || dest == nil {
			return kerrors.Argument(3, "clone requires a destination object")
		}
		return k.cloneLocked(target, dest)
	case MsgSetDependent:
		depHandle, ok := data.(ktable.Handle)
		if !ok {
			return kerrors.Argument(3, "set-dependent requires a handle in data")
		}
		incRef := value != 0
		return k.setDependentLocked(target, depHandle, incRef)
	case MsgGetDependent:
		out, ok := data.(*ktable.Handle)
		if !ok || out == nil {
			return kerrors.Argument(3, "get-dependent requires an output handle pointer in data")
		}
		*out = target.DependentObject
		return nil
	case MsgTransferOwnership:
		newOwner, ok := data.(ktable.Handle)
		if !ok {
			return kerrors.Argument(3, "transfer-ownership requires the new owner's handle in data")
		}
		return k.transferOwnershipLocked(target, newOwner)
	case MsgGetProperty:
		q, ok := data.(*kacl.PropertyQuery)
		if !ok || q == nil {
			return kerrors.Argument(3, "get-property requires an output *PropertyQuery in data")
		}
		v, err := kacl.HandleProperty(q.ID, target, false, value)
		if err != nil {
			return err
		}
		q.Result = v
		return nil
	case MsgSetProperty:
		propID, _ := data.(kacl.PropertyID)
		_, err := kacl.HandleProperty(propID, target, true, value)
		return err
	default:
		return kerrors.Argument(2, "not a kernel-handled message")
	}
}

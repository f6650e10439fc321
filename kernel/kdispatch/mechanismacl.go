package kdispatch

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// checkMechanismAccess is the pre-dispatch hook for MESSAGE_MECHANISM
// (spec.md §4.5): it looks up the mechanism named by value in the
// kernel's compile-time mechanism ACL store and validates every
// caller-supplied parameter, including that every object parameter is
// owned by the same user as the mechanism's target device, before the
// device's own handler runs. target is already the device object, having
// been routed there via RouteToDevice.
func checkMechanismAccess(
	_ context.Context,
	k *Kernel,
	target *ktable.Object,
	mt MessageType,
	data any,
	value int,
	_ bool,
) error {
	if mt != MsgMechanism {
		return nil
	}
	entry, err := k.Mechs.Lookup(kacl.MechanismID(value))
	if err != nil {
		return err
	}
	params, ok := data.([5]kacl.Param)
	if !ok {
		return kerrors.Argument(3, "mechanism requires a [5]kacl.Param parameter block")
	}
	return entry.CheckParams(params, target.Owner)
}

func init() {
	RegisterPreDispatch(MsgMechanism, checkMechanismAccess)
}

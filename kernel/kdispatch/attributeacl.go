package kdispatch

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// checkAttributeAccess is the pre-dispatch hook for the attribute
// get/set/delete family (spec.md §4.3): it looks up the attribute named by
// value in the kernel's compile-time ACL store and enforces the
// low/high-state, internal/external, and (for set) value-shape rules
// before the object's own handler ever runs. value carries the attribute
// id, per the ShapeDataAttributeType calling convention (cryptlib's
// dataPointer/numericValue split).
func checkAttributeAccess(
	_ context.Context,
	k *Kernel,
	obj *ktable.Object,
	mt MessageType,
	data any,
	value int,
	external bool,
) error {
	if mt != MsgGetAttribute && mt != MsgSetAttribute && mt != MsgDeleteAttribute {
		return nil
	}
	entry, err := k.Attrs.Lookup(kacl.AttributeID(value))
	if err != nil {
		return err
	}
	highState := obj.HasFlag(ktable.FlagHighState)
	internal := !external
	switch mt {
	case MsgGetAttribute:
		return entry.CheckRead(obj.Subtype, highState, internal)
	case MsgDeleteAttribute:
		return entry.CheckDelete(obj.Subtype, highState, internal)
	case MsgSetAttribute:
		if err := entry.CheckWrite(obj.Subtype, highState, internal); err != nil {
			return err
		}
		return entry.CheckValue(data)
	}
	return nil
}

// triggerAttributeState runs after a successful set-attribute: attributes
// marked Trigger drive the object from low state to high state on a
// successful write (spec.md §4.3 "trigger flag"). Runs as a post-dispatch
// hook with Table.Mu held.
func triggerAttributeState(
	_ context.Context,
	k *Kernel,
	obj *ktable.Object,
	mt MessageType,
	_ any,
	value int,
	handlerErr error,
) error {
	if mt != MsgSetAttribute || handlerErr != nil {
		return nil
	}
	entry, err := k.Attrs.Lookup(kacl.AttributeID(value))
	if err != nil {
		return nil
	}
	if entry.Trigger && !obj.HasFlag(ktable.FlagHighState) {
		obj.Flags |= ktable.FlagHighState
	}
	return nil
}

func init() {
	RegisterPreDispatch(MsgGetAttribute, checkAttributeAccess)
	RegisterPreDispatch(MsgSetAttribute, checkAttributeAccess)
	RegisterPreDispatch(MsgDeleteAttribute, checkAttributeAccess)
	RegisterPostDispatch(MsgSetAttribute, triggerAttributeState)
}

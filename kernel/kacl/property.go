package kacl

import (
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// PropertyID names one of the small set of kernel-internal property
// attributes (internal, locked, forwardcount, usagecount, and similar)
// that cryptlib routes through a dedicated handler distinct from the
// generic attribute-ACL get/set path (spec.md §4.2 step 9; cryptkrn.c).
type PropertyID int

const (
	PropInternal PropertyID = iota
	PropLocked
	PropForwardCount
	PropUsageCount
)

// PropertyHandler reads or writes a property attribute directly against
// the object descriptor, bypassing the generic attribute ACL.
type PropertyHandler func(obj *ktable.Object, set bool, value int) (int, error)

// PropertyQuery carries a property get through kdispatch.MsgGetProperty's
// kernel-handled dispatch: ID selects which property handler to run,
// Result is filled in with the handler's returned value on success so the
// caller can read it back through Send's data parameter (cryptlib's
// dataPointer-as-output convention).
type PropertyQuery struct {
	ID     PropertyID
	Result int
}

var propertyTable = map[PropertyID]PropertyHandler{
	PropInternal: func(obj *ktable.Object, set bool, value int) (int, error) {
		if set {
			if value != 0 {
				obj.Flags |= ktable.FlagInternal
			} else {
				obj.Flags &^= ktable.FlagInternal
			}
			return 0, nil
		}
		if obj.HasFlag(ktable.FlagInternal) {
			return 1, nil
		}
		return 0, nil
	},
	PropLocked: func(obj *ktable.Object, set bool, value int) (int, error) {
		if set {
			if value != 0 {
				obj.Flags |= ktable.FlagAttributeLocked
			} else {
				obj.Flags &^= ktable.FlagAttributeLocked
			}
			return 0, nil
		}
		if obj.HasFlag(ktable.FlagAttributeLocked) {
			return 1, nil
		}
		return 0, nil
	},
	PropForwardCount: func(obj *ktable.Object, set bool, value int) (int, error) {
		if set {
			if obj.ForwardCount != -1 && value > obj.ForwardCount {
				return 0, kerrors.New(kerrors.PermissionDenied, "forward count is write-down only")
			}
			obj.ForwardCount = value
			return 0, nil
		}
		return obj.ForwardCount, nil
	},
	PropUsageCount: func(obj *ktable.Object, set bool, value int) (int, error) {
		if set {
			if obj.UsageCount != -1 && value > obj.UsageCount {
				return 0, kerrors.New(kerrors.PermissionDenied, "usage count is write-down only")
			}
			obj.UsageCount = value
			return 0, nil
		}
		return obj.UsageCount, nil
	},
}

// HandleProperty dispatches a property get/set through the kernel-internal
// property handler table.
func HandleProperty(id PropertyID, obj *ktable.Object, set bool, value int) (int, error) {
	h, ok := propertyTable[id]
	if !ok {
		return 0, kerrors.Argument(2, "unknown property attribute")
	}
	return h(obj, set, value)
}

package klifecycle

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kdispatch"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// Shutdown sets the shutdown flag (causing all subsequent sends except
// destroy/decref/status-read to return permission-denied) and destroys
// every live object in three waves ordered by dependency depth —
// depth-3 first, then depth-2, then depth-1 — so that no object is
// referenced by another when freed, then the two root system objects by
// direct handler invocation (spec.md §5 "Cancellation / shutdown").
func Shutdown(ctx context.Context, k *kdispatch.Kernel) {
	k.BeginShutdown()

	for depth := 3; depth >= 1; depth-- {
		for _, h := range handlesAtDepth(k, depth) {
			_ = k.Send(ctx, h, kdispatch.MsgDestroy, nil, 0)
		}
	}

	destroySystemObject(k, ktable.DefaultUserHandle)
	destroySystemObject(k, ktable.SystemDeviceHandle)
}

// depthOf returns one plus the number of other live, non-root objects obj
// depends on transitively (via DependentObject/DependentDevice), capped at 3. A leaf
// with no dependents of its own is depth 1; an object that depends on one
// leaf is depth 2; one that depends on a depth-2 object is depth 3. Must
// be called with Table.Mu already held (Range's callback holds it).
func depthOf(k *kdispatch.Kernel, obj *ktable.Object) int {
	depth := 1
	current := obj
	for hop := 0; hop < 2; hop++ {
		next := current.DependentObject
		if next == 0 {
			next = current.DependentDevice
		}
		if next == 0 || next == ktable.SystemDeviceHandle || next == ktable.DefaultUserHandle {
			break
		}
		nextObj, err := k.Table.LookupNoLock(next)
		if err != nil {
			break
		}
		depth++
		current = nextObj
	}
	return depth
}

func handlesAtDepth(k *kdispatch.Kernel, depth int) []ktable.Handle {
	var out []ktable.Handle
	k.Table.Range(func(obj *ktable.Object) bool {
		if obj.Handle == ktable.SystemDeviceHandle || obj.Handle == ktable.DefaultUserHandle {
			return true
		}
		if depthOf(k, obj) == depth {
			out = append(out, obj.Handle)
		}
		return true
	})
	return out
}

func destroySystemObject(k *kdispatch.Kernel, h ktable.Handle) {
	obj, err := k.Table.Lookup(h)
	if err != nil || obj.Handler == nil {
		return
	}
	_ = obj.Handler(obj, 0, nil, 0)
	k.Table.Free(h)
}

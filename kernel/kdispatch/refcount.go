package kdispatch

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// destroyLocked runs the full destroy sequence of spec.md §3 Lifecycle:
// mark signalled, call the object's own handler with destroy (lock
// released), decrement the dependent object's and dependent device's
// reference counts, then zero the descriptor. Entered with Table.Mu held;
// always returns with Table.Mu held again, the same convention every
// other *Locked helper in this package follows.
func (k *Kernel) destroyLocked(ctx context.Context, target *ktable.Object) error {
	dependentObj := target.DependentObject
	dependentDev := target.DependentDevice
	target.Flags |= ktable.FlagSignalled
	handle := target.Handle
	handler := target.Handler

	k.Table.Mu.Unlock()

	var handlerErr error
	if handler != nil {
		handlerErr = handler(target, int(MsgDestroy), nil, 0)
	}
	if dependentObj != 0 {
		_ = k.Send(ctx, dependentObj, MsgDecRefCount, nil, 0)
	}
	if dependentDev != 0 {
		_ = k.Send(ctx, dependentDev, MsgDecRefCount, nil, 0)
	}
	k.Table.Free(handle)
	k.Metrics.Sends.WithLabelValues(messageTypeLabel(MsgDestroy)).Inc()

	k.Table.Mu.Lock()
	return handlerErr
}

// decRefCountLocked implements spec.md §4.7: a decrement that takes the
// count below zero triggers a destroy, dispatched with the table lock released so
// handlers may call back into the kernel; before destruction the kernel
// decrements the reference counts of the dependent object and dependent
// device, propagating deletion. Caller must hold Table.Mu; it is released
// and reacquired internally around the destroy dispatch.
func (k *Kernel) decRefCountLocked(ctx context.Context, target *ktable.Object) error {
	target.RefCount--
	if target.RefCount >= 0 {
		return nil
	}
	// destroyLocked decrements the dependent object/device reference
	// counts itself, then zeroes the descriptor (spec.md §3 Lifecycle).
	// It is entered and returns with Table.Mu held, matching this
	// function's own contract.
	return k.destroyLocked(ctx, target)
}

// transferOwnershipLocked reassigns target's owner, consuming one unit of
// its forward count (spec.md §8 scenario S1: "set forward-count=2;
// transfer to T1 (decrements to 1); transfer to T2 (decrements to 0);
// attempt transfer to T3 -> permission-denied"). ForwardCount == -1 means
// unlimited and is never decremented. Caller must hold Table.Mu.
func (k *Kernel) transferOwnershipLocked(target *ktable.Object, newOwner ktable.Handle) error {
	if target.ForwardCount == 0 {
		return kerrors.New(kerrors.PermissionDenied, "forward count exhausted, ownership cannot be transferred again")
	}
	if target.ForwardCount > 0 {
		target.ForwardCount--
	}
	target.Owner = newOwner
	return nil
}

// sendNotifier is krnlSendNotifier's Go equivalent: a fire-and-forget
// variant of Send used by NotifyDependents for change-notify messages (the
// decRefCount cascade and shutdown call Send directly), whose
// returned status is deliberately ignored by callers that only care about
// the side effect (it still propagates to callers who do want it, such as
// tests).
func (k *Kernel) sendNotifier(ctx context.Context, handle ktable.Handle, mt MessageType, data any, value int) error {
	return k.Send(ctx, handle, mt, data, value)
}

// setDependentLocked implements spec.md §4.7: increments the target's
// refcount (unless incRef is false), refuses a dependency cycle of length
// <= 2 (invariant 3), and triggers action-permission composition (§4.4)
// when one side is a context and the other a certificate. Caller must
// hold Table.Mu.
func (k *Kernel) setDependentLocked(obj *ktable.Object, dep ktable.Handle, incRef bool) error {
	depObj, err := k.Table.LookupNoLock(dep)
	if err != nil {
		return err
	}
	if depObj.DependentObject == obj.Handle {
		return kerrors.New(kerrors.ArgError, "dependency would create a 2-cycle")
	}
	if depObj.DependentObject != 0 {
		if third, terr := k.Table.LookupNoLock(depObj.DependentObject); terr == nil && third.DependentObject == obj.Handle {
			return kerrors.New(kerrors.ArgError, "dependency would create a 3-cycle")
		}
	}
	if incRef {
		depObj.RefCount++
	}
	obj.DependentObject = dep

	isCtxCertPair := (obj.Type == ktable.TypeContext && depObj.Type == ktable.TypeCertificate) ||
		(obj.Type == ktable.TypeCertificate && depObj.Type == ktable.TypeContext)
	if isCtxCertPair {
		ctxObj, certObj := obj, depObj
		if obj.Type == ktable.TypeCertificate {
			ctxObj, certObj = depObj, obj
		}
		if checker, ok := certObj.Body.(kacl.CertChecker); ok {
			beforeUniqueID := ctxObj.UniqueID
			existing := ctxObj.Perms
			k.Table.Mu.Unlock()
			composed := kacl.ComposeWithCert(existing, checker)
			k.Table.Mu.Lock()
			// Re-verify the context wasn't replaced during the yield
			// (spec.md §4.4): a handle reuse would show a different
			// uniqueID here.
			if ctxObj.UniqueID == beforeUniqueID {
				ctxObj.Perms = composed
			}
		}
	}
	return nil
}

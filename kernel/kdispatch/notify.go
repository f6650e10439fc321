package kdispatch

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// notifyDependents fires MESSAGE_CHANGENOTIFY at an object's dependent
// object and dependent device when obj's own state changes in a way that
// might invalidate a cached ACL decision (SPEC_FULL.md SUPPLEMENTED
// FEATURES "change-notify dependency messages"). A certificate
// transitioning to signed is the motivating case: the context holding it
// as a dependent must re-run the §4.4 action-permission composition
// rather than keep acting on the permissive pre-signature state.
func (k *Kernel) notifyDependents(ctx context.Context, obj *ktable.Object) {
	if obj.DependentObject != 0 {
		_ = k.sendNotifier(ctx, obj.DependentObject, MsgChangeNotify, obj.Handle, 0)
	}
	if obj.DependentDevice != 0 {
		_ = k.sendNotifier(ctx, obj.DependentDevice, MsgChangeNotify, obj.Handle, 0)
	}
}

// recomposeOnChangeNotify is the default change-notify handler installed
// for context/certificate pairs: it re-runs ComposeWithCert against the
// notifying object's current certificate-checking behavior, rather than
// relying on whatever was captured the one time set-dependent ran. Runs
// as a pre-dispatch hook, so Table.Mu is already held by the caller; it
// must never lock it itself.
func recomposeOnChangeNotify(_ context.Context, k *Kernel, obj *ktable.Object, mt MessageType, data any, _ int, _ bool) error {
	if mt != MsgChangeNotify {
		return nil
	}
	source, ok := data.(ktable.Handle)
	if !ok {
		return nil
	}
	sourceObj, err := k.Table.LookupNoLock(source)
	if err != nil {
		return nil
	}
	isCtxCertPair := (obj.Type == ktable.TypeContext && sourceObj.Type == ktable.TypeCertificate) ||
		(obj.Type == ktable.TypeCertificate && sourceObj.Type == ktable.TypeContext)
	if !isCtxCertPair {
		return nil
	}
	ctxObj, certObj := obj, sourceObj
	if obj.Type == ktable.TypeCertificate {
		ctxObj, certObj = sourceObj, obj
	}
	checker, ok := certObj.Body.(kacl.CertChecker)
	if !ok {
		return nil
	}
	ctxObj.Perms = kacl.ComposeWithCert(ctxObj.Perms, checker)
	return nil
}

func init() {
	RegisterPreDispatch(MsgChangeNotify, recomposeOnChangeNotify)
}

// NotifyDependents exposes notifyDependents to other kernel-internal
// packages (klifecycle fires it when an object completes initialisation,
// the Go analogue of a certificate's signed transition).
func (k *Kernel) NotifyDependents(ctx context.Context, handle ktable.Handle) {
	obj, err := k.Table.Lookup(handle)
	if err != nil {
		return
	}
	k.notifyDependents(ctx, obj)
}

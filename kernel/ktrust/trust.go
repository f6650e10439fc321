// Package ktrust implements the four narrow routines that legitimately
// bypass the action-permission ACL because they define trust at the
// boundary of a context object: extracting a session key, exporting or
// importing private key material, and the internal half of copy-on-write
// cloning (spec.md §4.9 "Alternative direct access"). Each reproduces the
// handle-to-body lookup and busy-wait protocol of normal dispatch and
// then calls directly into the object body, never through the
// attribute/mechanism/keymgmt ACL layer.
package ktrust

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kdispatch"
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/klifecycle"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// KeyExtractor is implemented by a context body that can hand out its raw
// session key. Only conventional/MAC contexts are expected to satisfy it.
type KeyExtractor interface {
	ExtractSessionKey() ([]byte, error)
}

// PrivateKeyExporter is implemented by a PKC context body holding private
// key components.
type PrivateKeyExporter interface {
	ExportPrivateKeyData() ([]byte, error)
	ImportPrivateKeyData([]byte) error
}

// lookupAfterWait reproduces the handle-to-body lookup and busy-wait
// protocol of normal dispatch (spec.md §4.9) without going through Send,
// since these four routes bypass the action-permission check Send would
// otherwise apply.
func lookupAfterWait(ctx context.Context, k *kdispatch.Kernel, handle ktable.Handle) (*ktable.Object, error) {
	obj, err := k.Table.Lookup(handle)
	if err != nil {
		return nil, err
	}
	if obj.HasFlag(ktable.FlagSignalled) {
		return nil, kerrors.New(kerrors.Signalled, "object has been destroyed")
	}
	if obj.InUse() {
		if err := k.WaitForBusy(ctx, handle); err != nil {
			return nil, err
		}
	}
	return obj, nil
}

// ExtractKey pulls the raw session key out of a conventional-cipher or
// MAC context, bypassing the action-permission check that every other
// route to the key material goes through.
func ExtractKey(ctx context.Context, k *kdispatch.Kernel, handle ktable.Handle) ([]byte, error) {
	obj, err := lookupAfterWait(ctx, k, handle)
	if err != nil {
		return nil, err
	}
	extractor, ok := obj.Body.(KeyExtractor)
	if !ok {
		return nil, kerrors.Argument(1, "object does not support key extraction")
	}
	return extractor.ExtractSessionKey()
}

// ExportPrivateKeyData serialises a PKC context's private components for
// storage (e.g. PKCS#8 wrap upstream of this call).
func ExportPrivateKeyData(ctx context.Context, k *kdispatch.Kernel, handle ktable.Handle) ([]byte, error) {
	obj, err := lookupAfterWait(ctx, k, handle)
	if err != nil {
		return nil, err
	}
	exporter, ok := obj.Body.(PrivateKeyExporter)
	if !ok {
		return nil, kerrors.Argument(1, "object does not support private key export")
	}
	return exporter.ExportPrivateKeyData()
}

// ImportPrivateKeyData loads previously-exported private components back
// into a not-yet-initialised PKC context.
func ImportPrivateKeyData(ctx context.Context, k *kdispatch.Kernel, handle ktable.Handle, data []byte) error {
	obj, err := lookupAfterWait(ctx, k, handle)
	if err != nil {
		return err
	}
	importer, ok := obj.Body.(PrivateKeyExporter)
	if !ok {
		return kerrors.Argument(1, "object does not support private key import")
	}
	return importer.ImportPrivateKeyData(data)
}

// CloneContext is the internal half of spec.md §4.8: it allocates the
// destination descriptor with the source's type, subtype, owner and
// action-permission word, then sends the kernel-handled clone message
// which links the pair as aliased without copying state (spec.md §4.9
// lists this alongside the other three trust hooks since both routes
// reach into a context's state outside the normal ACL-gated path).
func CloneContext(ctx context.Context, k *kdispatch.Kernel, src ktable.Handle) (ktable.Handle, error) {
	srcObj, err := lookupAfterWait(ctx, k, src)
	if err != nil {
		return 0, err
	}
	destHandle, err := klifecycle.CreateObject(
		k,
		srcObj.Type,
		srcObj.Subtype,
		klifecycle.CreationFlags{Internal: srcObj.HasFlag(ktable.FlagInternal)},
		srcObj.Owner,
		srcObj.Perms,
		srcObj.Handler,
		nil,
	)
	if err != nil {
		return 0, err
	}
	if err := klifecycle.CompleteInit(ctx, k, destHandle); err != nil {
		return 0, err
	}
	destObj, err := k.Table.Lookup(destHandle)
	if err != nil {
		return 0, err
	}
	if err := k.Send(ctx, src, kdispatch.MsgClone, destObj, 0); err != nil {
		return 0, err
	}
	return destHandle, nil
}

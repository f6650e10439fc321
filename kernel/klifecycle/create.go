// Package klifecycle implements object creation/initialisation and the
// kernel's ordered shutdown sequence (spec.md §3 Lifecycle, §5 Shutdown).
package klifecycle

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kdispatch"
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// CreationFlags mirror the flags passed to createObject.
type CreationFlags struct {
	Internal bool

	// ThreadBound pins the new object to BoundThread for its lifetime
	// (spec.md §4.2 step 6 "objects owned by another thread"): any Send
	// whose context carries a different thread id is rejected with
	// permission-denied before routing. BoundThread of zero is
	// indistinguishable from unbound, so a genuine binding must use a
	// non-zero thread id.
	ThreadBound bool
	BoundThread int64
}

// CreateObject installs a not-inited descriptor and returns its handle
// (spec.md §6 createObject). The object is internal-only, with external
// sends to it rejected, only when flags.Internal is set; otherwise nothing
// restricts it to internal callers.
func CreateObject(
	k *kdispatch.Kernel,
	typ ktable.ObjectType,
	subtype ktable.Subtype,
	flags CreationFlags,
	owner ktable.Handle,
	actionPerms ktable.ActionPerms,
	handler ktable.MessageHandler,
	body any,
) (ktable.Handle, error) {
	obj := &ktable.Object{
		Type:         typ,
		Subtype:      subtype,
		Body:         body,
		Owner:        owner,
		Perms:        actionPerms,
		ForwardCount: -1,
		UsageCount:   -1,
		Handler:      handler,
	}
	if flags.Internal {
		obj.Flags |= ktable.FlagInternal
	}
	if flags.ThreadBound {
		obj.Flags |= ktable.FlagThreadBound
		obj.BoundThread = flags.BoundThread
	}
	return k.Table.Alloc(obj, 0)
}

// CreateSystemObject installs one of the two predefined system objects at
// its reserved handle (spec.md §2): the root system device at handle 1,
// the default user at handle 2.
func CreateSystemObject(
	k *kdispatch.Kernel,
	reserved ktable.Handle,
	typ ktable.ObjectType,
	subtype ktable.Subtype,
	handler ktable.MessageHandler,
	body any,
) (ktable.Handle, error) {
	obj := &ktable.Object{
		Type:         typ,
		Subtype:      subtype,
		Body:         body,
		Flags:        ktable.FlagInternal,
		ForwardCount: -1,
		UsageCount:   -1,
		Handler:      handler,
	}
	return k.Table.Alloc(obj, reserved)
}

// CompleteInit transitions the object from not-inited to ok (spec.md §3
// Lifecycle "Initialise") by updating its descriptor flags directly under
// the table lock; no set-status message reaches the object's handler.
// Returns nil on an ordinary completion. If a destroy arrived during
// initialisation it was recorded as signalled; the pending status
// transition is converted into a destroy and this returns kerrors.OKSpecial
// (testable scenario S2 — "A sends status <- ok -> return code is
// ok-special"). Any later send against the now-destroyed handle is the
// caller's problem to observe as signalled/argument-error, not this one's.
func CompleteInit(ctx context.Context, k *kdispatch.Kernel, handle ktable.Handle) error {
	k.Table.Mu.Lock()
	obj, err := k.Table.LookupNoLock(handle)
	if err != nil {
		k.Table.Mu.Unlock()
		return err
	}
	signalled := obj.HasFlag(ktable.FlagSignalled)
	if !signalled {
		obj.Flags &^= ktable.FlagNotInited
		obj.Flags |= ktable.FlagHighState
	}
	k.Table.Mu.Unlock()

	if signalled {
		_ = k.Send(ctx, handle, kdispatch.MsgDestroy, nil, 0)
		return kerrors.New(kerrors.OKSpecial, "object destroyed during initialisation")
	}
	// A newly-completed object may be the certificate half of a context/
	// cert dependency formed while it was still not-inited; its holder's
	// action-permission composition needs to be re-run now that it has
	// reached high state (SPEC_FULL.md "change-notify dependency
	// messages").
	k.NotifyDependents(ctx, handle)
	return nil
}

package kdispatch

import (
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// ClonableBody is the narrow contract a stateful context (hash, MAC,
// conventional-cipher) body must implement to support copy-on-write
// cloning (spec.md §4.8).
type ClonableBody interface {
	// ShallowCopy returns a new body holding a copy of the receiver's
	// current state.
	ShallowCopy() ClonableBody
}

// cloneLocked marks src and dest aliased and links them to each other,
// returning immediately without copying state (spec.md §4.8). If src is
// already aliased, the existing pair is resolved first so the alias
// relation stays strictly pairwise.
func (k *Kernel) cloneLocked(src, dest *ktable.Object) error {
	if src.HasFlag(ktable.FlagAliased) {
		if err := k.resolveCOW(src); err != nil {
			return err
		}
	}
	src.Flags |= ktable.FlagAliased
	dest.Flags |= ktable.FlagAliased | ktable.FlagClone
	src.ClonePeer = dest.Handle
	dest.ClonePeer = src.Handle
	return nil
}

// resolveCOW performs the shallow state copy from the original into the
// clone, unlinks the alias, and marks both as normal (spec.md §4.8). Must
// be called with Table.Mu held; never itself takes the lock.
func (k *Kernel) resolveCOW(obj *ktable.Object) error {
	if !obj.HasFlag(ktable.FlagAliased) {
		return nil
	}
	peer, err := k.Table.LookupNoLock(obj.ClonePeer)
	if err != nil {
		// Peer already gone: just clear the alias flags on obj.
		obj.Flags &^= ktable.FlagAliased | ktable.FlagClone
		obj.ClonePeer = 0
		return nil
	}

	original, clone := obj, peer
	if obj.HasFlag(ktable.FlagClone) {
		original, clone = peer, obj
	}

	if body, ok := original.Body.(ClonableBody); ok {
		clone.Body = body.ShallowCopy()
	} else {
		clone.Body = original.Body
	}

	original.Flags &^= ktable.FlagAliased | ktable.FlagClone
	clone.Flags &^= ktable.FlagAliased | ktable.FlagClone
	original.ClonePeer = 0
	clone.ClonePeer = 0
	return nil
}

// destroyAliasedLocked implements spec.md §4.8's swap rule: a destroy
// message on an aliased pair destroys the clone even if the caller named
// the original, by swapping the two descriptors' bodies/metadata so the
// caller's handle now names the survivor.
func (k *Kernel) destroyAliasedLocked(named *ktable.Object) (*ktable.Object, error) {
	if !named.HasFlag(ktable.FlagAliased) {
		return named, nil
	}
	peer, err := k.Table.LookupNoLock(named.ClonePeer)
	if err != nil {
		return nil, kerrors.New(kerrors.Failed, "clone peer missing for aliased object")
	}
	if named.HasFlag(ktable.FlagClone) {
		// The caller already named the clone; it is the one to destroy.
		return named, nil
	}
	// The caller named the original; swap bodies/handles so `named`'s
	// handle now refers to what was the clone, and the clone object
	// (the one actually being torn down) carries the original's body.
	named.Body, peer.Body = peer.Body, named.Body
	named.Flags &^= ktable.FlagAliased | ktable.FlagClone
	peer.Flags &^= ktable.FlagAliased | ktable.FlagClone
	named.ClonePeer, peer.ClonePeer = 0, 0
	return peer, nil
}

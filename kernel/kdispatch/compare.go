package kdispatch

import (
	"bytes"
	"context"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// ObjectHasher is implemented by a context body that can produce a stable
// fingerprint (the completed hash/MAC value, or a key ID) for comparison
// without exposing raw key material.
type ObjectHasher interface {
	ComparisonDigest(kind CompareType) ([]byte, bool)
}

// NonceHolder is implemented by a session body (OCSP, in practice) that
// carries a nonce value eligible for the tolerant comparison spec.md §9's
// second open question resolves (kacl.CompareNonce).
type NonceHolder interface {
	Nonce() []byte
}

// Compare implements MESSAGE_COMPARE (SPEC_FULL.md SUPPLEMENTED FEATURES
// "compare-message family"): certificate-chain and session code use it to
// detect identical keys/certs without ever reading the underlying bytes
// back out through an ACL-gated get-attribute.
func (k *Kernel) Compare(_ context.Context, handle ktable.Handle, kind CompareType, other ktable.Handle) (bool, error) {
	objA, err := k.Table.Lookup(handle)
	if err != nil {
		return false, err
	}
	objB, err := k.Table.Lookup(other)
	if err != nil {
		return false, err
	}
	if objA.HasFlag(ktable.FlagNotInited) || objA.HasFlag(ktable.FlagSignalled) {
		return false, kerrors.New(kerrors.NotInited, "comparison source is not ready")
	}
	if objB.HasFlag(ktable.FlagNotInited) || objB.HasFlag(ktable.FlagSignalled) {
		return false, kerrors.New(kerrors.NotInited, "comparison target is not ready")
	}

	if kind == CompareObjectHandle {
		return objA.Handle == objB.Handle || objA.UniqueID == objB.UniqueID, nil
	}

	if kind == CompareNonce {
		nonceA, ok := objA.Body.(NonceHolder)
		if !ok {
			return false, kerrors.Argument(1, "object does not carry a nonce")
		}
		nonceB, ok := objB.Body.(NonceHolder)
		if !ok {
			return false, kerrors.Argument(3, "comparison target does not carry a nonce")
		}
		return kacl.CompareNonce(k.Config.NonceComparison, nonceA.Nonce(), nonceB.Nonce()), nil
	}

	hasherA, ok := objA.Body.(ObjectHasher)
	if !ok {
		return false, kerrors.Argument(1, "object does not support comparison digests")
	}
	hasherB, ok := objB.Body.(ObjectHasher)
	if !ok {
		return false, kerrors.Argument(3, "comparison target does not support comparison digests")
	}
	digestA, ok := hasherA.ComparisonDigest(kind)
	if !ok {
		return false, kerrors.Argument(1, "comparison type not available for this object")
	}
	digestB, ok := hasherB.ComparisonDigest(kind)
	if !ok {
		return false, kerrors.Argument(3, "comparison type not available for the target object")
	}
	return bytes.Equal(digestA, digestB), nil
}

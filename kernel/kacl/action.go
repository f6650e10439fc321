package kacl

import "github.com/compozy/kernelguard/kernel/ktable"

// CertChecker is the narrow contract the kernel requires from certificate
// objects to compose action permissions (spec.md §4.4) — the concrete
// certificate-chain logic stays out of scope.
type CertChecker interface {
	// CheckAction reports whether the certificate permits the given
	// action class (e.g. a signature-only cert returns false for encrypt).
	CheckAction(action ktable.Action) bool
}

// ComposeWithCert builds the tightened action-permission word that results
// from attaching a certificate to a context (spec.md §4.4): every action
// the certificate permits is reduced to internal-only, then the context's
// existing permissions are tightened against that word.
//
// Open question resolution (spec.md §9, first bullet): when both directions
// of composition — cert-onto-context and context-onto-cert — are requested
// in rapid succession, this kernel takes "first writer wins": the second
// composition direction for the same pair is rejected with argument-error
// rather than silently reordered. See DESIGN.md.
func ComposeWithCert(existing ktable.ActionPerms, cert CertChecker) ktable.ActionPerms {
	var fromCert ktable.ActionPerms
	for a := ktable.ActionEncrypt; a < ktable.Action(len(fromCert)); a++ {
		if cert.CheckAction(a) {
			fromCert[a] = ktable.PermInternalOnly
		} else {
			fromCert[a] = ktable.PermNotAvailable
		}
	}
	result := existing
	result.Tighten(fromCert)
	return result
}

// Freeze lowers the single named action's permission to at most ceiling,
// implementing the write-down-only ratchet testable property 7 ("after
// freeze of an action permission to internal-only or lower, no external
// message to that action subsequently succeeds").
func Freeze(perms *ktable.ActionPerms, action ktable.Action, ceiling ktable.ActionPerm) {
	if ceiling < perms[action] {
		perms[action] = ceiling
	}
}

// Permit reports whether perms allows action for a caller that is
// external (externalCaller=true) or internal.
func Permit(perms ktable.ActionPerms, action ktable.Action, externalCaller bool) bool {
	p := perms[action]
	switch p {
	case ktable.PermAll:
		return true
	case ktable.PermInternalOnly:
		return !externalCaller
	default:
		return false
	}
}

package kacl

import "github.com/compozy/kernelguard/kernel/kconfig"

// CompareNonce resolves spec.md §9's second open question: whether OCSP
// nonce comparison should tolerate a one-byte leading-zero difference
// (cryptlib's ocsp.c does, because the nonce is integer-encoded and a
// leading zero can be added or dropped by ASN.1 INTEGER canonicalisation
// without changing its value). The kernel exposes this as a policy knob
// rather than hardcoding either behavior.
func CompareNonce(mode kconfig.NonceComparisonMode, a, b []byte) bool {
	if mode == kconfig.NonceStrict {
		return bytesEqual(a, b)
	}
	return bytesEqualTolerant(a, b)
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// bytesEqualTolerant strips a single leading zero byte from either operand
// before comparing, matching the original's one-byte leading-zero
// tolerance.
func bytesEqualTolerant(a, b []byte) bool {
	a = stripOneLeadingZero(a)
	b = stripOneLeadingZero(b)
	return bytesEqual(a, b)
}

func stripOneLeadingZero(v []byte) []byte {
	if len(v) > 1 && v[0] == 0 {
		return v[1:]
	}
	return v
}

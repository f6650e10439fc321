// Package ktable implements the kernel's object table: descriptors, handle
// allocation, and the invariants of spec.md §3.
package ktable

import "sync"

// ObjectType is the coarse object classification (spec.md §3).
type ObjectType int

const (
	TypeNone ObjectType = iota
	TypeContext
	TypeKeyset
	TypeEnvelope
	TypeCertificate
	TypeDevice
	TypeSession
	TypeUser
)

// Subtype is a bit within a type-class bitmask, e.g. context/PKC,
// cert/CRL, keyset/file, device/PKCS11, session/OCSP.
type Subtype uint32

const (
	SubtypeContextPKC Subtype = 1 << iota
	SubtypeContextConventional
	SubtypeContextHash
	SubtypeContextMAC
	SubtypeContextGeneric

	SubtypeCertCert
	SubtypeCertCRL
	SubtypeCertRequest
	SubtypeCertAttrCert

	SubtypeKeysetFile
	SubtypeKeysetDB
	SubtypeKeysetLDAP
	SubtypeKeysetHTTP

	SubtypeDeviceSystem
	SubtypeDevicePKCS11
	SubtypeDeviceCryptoAPI

	SubtypeSessionOCSP
	SubtypeSessionTSP
	SubtypeSessionCMP
	SubtypeSessionTLS

	SubtypeUserNormal
	SubtypeUserSO
	// SubtypeUserDefault is a composite: the only subtype permitted to
	// carry more than one bit set (spec.md §3: "exactly one bit must be
	// set except for the composite default-user subtype").
	SubtypeUserDefault = SubtypeUserNormal | SubtypeUserSO
)

// Flags captures per-object lifecycle/visibility state (spec.md §3).
type Flags uint32

const (
	FlagInternal Flags = 1 << iota
	FlagNotInited
	FlagHighState
	FlagSignalled
	FlagBusy
	FlagAliased
	FlagClone
	FlagThreadBound
	FlagAttributeLocked
)

// ActionPerm is the two-bit permission level for one action class.
type ActionPerm uint8

const (
	PermNotAvailable ActionPerm = iota
	PermNone
	PermInternalOnly
	PermAll
)

// Action identifies one of the seven gated action classes.
type Action int

const (
	ActionEncrypt Action = iota
	ActionDecrypt
	ActionSign
	ActionSigCheck
	ActionHash
	ActionGenKey
	ActionKeyExchange
	numActions
)

// ActionPerms is the per-object action-permission word (spec.md §3, §4.4,
// §8 property 2). Tighten via Tighten, never assign a field directly from
// untrusted input.
type ActionPerms [numActions]ActionPerm

// Tighten performs the write-down-only pointwise minimum required by
// spec.md invariant 4 and testable property 2: every field becomes the
// lesser of its current value and the incoming value.
func (a *ActionPerms) Tighten(incoming ActionPerms) {
	for i := range a {
		if incoming[i] < a[i] {
			a[i] = incoming[i]
		}
	}
}

// MessageHandler is an object's subtype-specific dispatch target, invoked
// with the object table lock released (spec.md §4.2 step 11).
type MessageHandler func(obj *Object, messageType int, data any, value int) error

// Object is one object-table entry (spec.md §3 "Object descriptor").
type Object struct {
	Handle   Handle
	Type     ObjectType
	Subtype  Subtype
	Body     any
	Flags    Flags
	Perms    ActionPerms
	RefCount int

	LockCount int
	LockOwner int64

	// BoundThread is the logical thread id an object created with
	// FlagThreadBound is permanently pinned to (spec.md §4.2 step 6
	// "objects owned by another thread"); zero means unbound. Distinct
	// from LockOwner, which only records who currently holds the
	// transient busy lock.
	BoundThread int64

	UniqueID int64

	ForwardCount int // -1 == unlimited
	UsageCount   int // -1 == unlimited

	Owner           Handle
	DependentObject Handle
	DependentDevice Handle
	ClonePeer       Handle

	Handler MessageHandler

	mu sync.Mutex // protects LockCount/LockOwner re-entrant busy lock bookkeeping
}

// HasFlag reports whether all bits in f are set.
func (o *Object) HasFlag(f Flags) bool { return o.Flags&f == f }

func (o *Object) setFlag(f Flags)   { o.Flags |= f }
func (o *Object) clearFlag(f Flags) { o.Flags &^= f }

// InUse reports whether a handler is currently executing on this object
// (spec.md §3 invariant 2).
func (o *Object) InUse() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.LockCount > 0
}

// MarkBusy sets the busy flag and records the re-entrant lock count and
// owning thread (spec.md §3 "lock count + owning thread id"). Called by
// Send and GetObject while Table.Mu is held.
func (o *Object) MarkBusy(threadID int64) {
	o.mu.Lock()
	o.LockCount++
	o.LockOwner = threadID
	o.mu.Unlock()
	o.Flags |= FlagBusy
}

// ClearBusy releases one level of the busy lock MarkBusy acquired.
func (o *Object) ClearBusy() {
	o.mu.Lock()
	if o.LockCount > 0 {
		o.LockCount--
	}
	remaining := o.LockCount
	if remaining == 0 {
		o.LockOwner = 0
	}
	o.mu.Unlock()
	if remaining == 0 {
		o.Flags &^= FlagBusy
	}
}

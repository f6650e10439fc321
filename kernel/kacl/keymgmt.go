package kacl

import (
	"github.com/segmentio/ksuid"

	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// ItemType is one of the keyset item kinds gated by the key-management ACL
// layer (spec.md §4.6).
type ItemType int

const (
	ItemPublicKey ItemType = iota
	ItemPrivateKey
	ItemSecretKey
	ItemCertRequest
	ItemPKIUser
	ItemRevocationInfo
	ItemData
)

// KeysetAccess is one of the access types a keyset ACL row gates.
type KeysetAccess int

const (
	AccessRead KeysetAccess = iota
	AccessWrite
	AccessDelete
	AccessGetFirstNext
	AccessQuery
)

// KeysetRule is one key-management ACL row for a given item type.
type KeysetRule struct {
	Item ItemType

	// AllowedSubtypes lists which keyset/device subtypes accept each
	// access type.
	AllowedSubtypes map[KeysetAccess]uint32

	// WritableObjectSubtypes lists which object subtypes may be written
	// for this item type.
	WritableObjectSubtypes uint32

	// RequiredCertSubtype additionally constrains a write: the object
	// must not just be a PKC context but a certificate of this subtype
	// (e.g. writing to an LDAP directory or certificate store requires a
	// cert, not a bare context) — spec.md §4.6 "specific object"
	// requirement, cryptlib key_rw.c.
	RequiredCertSubtype ktable.Subtype

	// LegalMechanismFlags are the flag bits legal in the mechanism info
	// for this item type.
	LegalMechanismFlags uint32

	// RequireID/RequirePassword record, per access type, whether an ID
	// and/or password must accompany the call.
	RequireID       map[KeysetAccess]bool
	RequirePassword map[KeysetAccess]bool
}

// KeysetCall carries the caller-supplied context a keyset read/write needs
// to evaluate against its KeysetRule, beyond the keyset/device subtype and
// item type already known from the target object and the message's value
// parameter (spec.md §4.6).
type KeysetCall struct {
	Item          ItemType
	HasID         bool
	HasPassword   bool
	WrittenObject *ktable.Object
}

// KeymgmtStore is the compile-time key-management ACL table.
type KeymgmtStore struct {
	byItem map[ItemType]*KeysetRule
}

func NewKeymgmtStore() *KeymgmtStore {
	return &KeymgmtStore{byItem: make(map[ItemType]*KeysetRule)}
}

func (s *KeymgmtStore) Register(r *KeysetRule) { s.byItem[r.Item] = r }

func (s *KeymgmtStore) Lookup(item ItemType) (*KeysetRule, error) {
	r, ok := s.byItem[item]
	if !ok {
		return nil, kerrors.Argument(1, "unknown keyset item type")
	}
	return r, nil
}

// CheckAccess validates a keyset access against the rule, including the
// hardcoded private-key-read password rule from spec.md §4.6: "private-key
// read uses a password in the keyset case but never in the crypto-device
// case".
func (r *KeysetRule) CheckAccess(
	access KeysetAccess,
	keysetOrDeviceSubtype uint32,
	isCryptoDevice bool,
	hasID, hasPassword bool,
	writtenObject *ktable.Object,
) error {
	allowed, ok := r.AllowedSubtypes[access]
	if !ok || allowed&keysetOrDeviceSubtype == 0 {
		return kerrors.New(kerrors.NotAvail, "access not permitted for this keyset/device subtype")
	}
	if access == AccessWrite && writtenObject != nil {
		if r.WritableObjectSubtypes != 0 && uint32(writtenObject.Subtype)&r.WritableObjectSubtypes == 0 {
			return kerrors.Argument(2, "object subtype not writable as this item type")
		}
		if r.RequiredCertSubtype != 0 && uint32(writtenObject.Subtype)&uint32(r.RequiredCertSubtype) == 0 {
			return kerrors.Argument(2, "this keyset requires a certificate of a specific subtype")
		}
	}
	if r.RequireID[access] && !hasID {
		return kerrors.Argument(3, "an ID is required for this access")
	}
	wantPassword := r.RequirePassword[access]
	if r.Item == ItemPrivateKey && access == AccessRead {
		// Hardcoded rule from spec.md §4.6: keyset private-key reads use
		// a password; crypto-device private-key reads never do.
		wantPassword = !isCryptoDevice
	}
	if wantPassword && !hasPassword {
		return kerrors.Argument(4, "a password is required for this access")
	}
	return nil
}

// NewKeysetItemID mints an opaque identifier for a keyset item exposed to
// external directories (PKI-user IDs, cert-request IDs) that must be
// unique but carry no ordering guarantee the way the object table's
// uniqueID does.
func NewKeysetItemID() (string, error) {
	id, err := ksuid.NewRandom()
	if err != nil {
		return "", kerrors.Wrap(err, kerrors.Failed, "failed to mint keyset item id")
	}
	return id.String(), nil
}

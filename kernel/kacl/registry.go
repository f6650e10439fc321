package kacl

import "github.com/compozy/kernelguard/kernel/ktable"

// Default attribute ids (spec.md §4.3). Numbered in the same small,
// hand-maintained block cryptlib uses for its CRYPT_CTXINFO_*/
// CRYPT_CERTINFO_* ranges; new attributes are appended, never renumbered.
const (
	AttrKeySize AttributeID = iota + 1
	AttrAlgo
	AttrLabel
	AttrActive
	AttrIVData
	AttrKeyingMaterial
	AttrCertSubject
	AttrValidFrom
	AttrForwardCount
)

// InstallDefaultAttributes registers the kernel's compile-time attribute
// ACL rows (spec.md §4.3). Kept out of NewStore so unit tests that want a
// blank store for a specific ACL row keep working; kdispatch.New is the
// only production caller.
func InstallDefaultAttributes(s *Store) {
	rows := []*Entry{
		{
			ID:        AttrKeySize,
			Name:      "key_size",
			SubA:      uint32(ktable.SubtypeContextConventional | ktable.SubtypeContextPKC),
			Access:    ReadLow | ReadHigh | WriteLow | ExternalOK,
			Kind:      KindNumeric,
			RangeKind: RangePlain,
			Low:       8,
			High:      8192,
		},
		{
			ID:     AttrAlgo,
			Name:   "algorithm",
			Access: ReadLow | ReadHigh | ExternalOK,
			Kind:   KindNumeric,
			Low:    0,
			High:   255,
		},
		{
			ID:     AttrLabel,
			Name:   "label",
			SubA:   uint32(ktable.SubtypeContextPKC | ktable.SubtypeContextConventional),
			Access: ReadLow | ReadHigh | WriteLow | ExternalOK,
			Kind:   KindString,
			MinLen: 1,
			MaxLen: 64,
		},
		{
			ID:     AttrActive,
			Name:   "active",
			Access: ReadLow | ReadHigh | WriteLow | WriteHigh | ExternalOK,
			Kind:   KindBoolean,
			Trigger: true,
		},
		{
			ID:     AttrIVData,
			Name:   "iv",
			SubA:   uint32(ktable.SubtypeContextConventional),
			Access: ReadHigh | WriteLow | WriteHigh | InternalOK,
			Kind:   KindString,
			MinLen: 8,
			MaxLen: 32,
		},
		{
			ID:               AttrKeyingMaterial,
			Name:             "keying_material",
			SubA:             uint32(ktable.SubtypeContextPKC),
			Access:           WriteLow | InternalOK,
			Kind:             KindObject,
			ObjectSubtypeA:   uint32(ktable.SubtypeContextPKC),
			RequireLowState:  true,
		},
		{
			ID:     AttrCertSubject,
			Name:   "cert_subject",
			SubA:   uint32(ktable.SubtypeCertCert | ktable.SubtypeCertRequest),
			Access: ReadLow | ReadHigh | WriteLow | ExternalOK,
			Kind:   KindWideString,
			MinLen: 1,
			MaxLen: 256,
		},
		{
			ID:     AttrValidFrom,
			Name:   "valid_from",
			SubA:   uint32(ktable.SubtypeCertCert),
			Access: ReadLow | ReadHigh | ExternalOK,
			Kind:   KindTime,
		},
		{
			ID:        AttrForwardCount,
			Name:      "forward_count",
			Access:    ReadLow | ReadHigh | WriteLow | WriteHigh | InternalOK,
			Kind:      KindNumeric,
			RangeKind: RangeAny,
		},
	}
	for _, e := range rows {
		// The compile-time table is hand-written and known-valid; a
		// Register failure here is a programming error, not a runtime
		// condition a caller of New can do anything about.
		if err := s.Register(e); err != nil {
			panic(err)
		}
	}
}

// InstallDefaultMechanisms registers the kernel's compile-time mechanism
// ACL rows (spec.md §4.5).
func InstallDefaultMechanisms(s *MechanismStore) {
	s.Register(&MechanismEntry{
		ID: MechPKCS1Wrap,
		Params: [5]ParamRule{
			{Kind: ParamObject, RequireState: StateHigh},
			{Kind: ParamObject, RequireState: StateHigh},
		},
	})
	s.Register(&MechanismEntry{
		ID: MechPKCS1Unwrap,
		Params: [5]ParamRule{
			{Kind: ParamString, MinLen: 1, MaxLen: 1024},
			{Kind: ParamObject, RequireState: StateHigh},
		},
	})
	s.Register(&MechanismEntry{
		ID: MechCMSWrap,
		Params: [5]ParamRule{
			{Kind: ParamObject, RequireState: StateHigh},
			{Kind: ParamObject, RequireState: StateHigh},
		},
	})
	s.Register(&MechanismEntry{
		ID: MechDerivePKCS5,
		Params: [5]ParamRule{
			{Kind: ParamString, MinLen: 1, MaxLen: 128},
			{Kind: ParamString, MinLen: 8, MaxLen: 64},
			{Kind: ParamNumeric, Low: 1, High: 1 << 20},
		},
	})
	s.Register(&MechanismEntry{
		ID: MechSign,
		Params: [5]ParamRule{
			{Kind: ParamObject, RequireState: StateHigh, RouteToContext: false},
			{Kind: ParamString, MinLen: 1, MaxLen: 512},
		},
	})
}

// InstallDefaultKeysetRules registers the kernel's compile-time
// key-management ACL rows, one per item type (spec.md §4.6).
func InstallDefaultKeysetRules(s *KeymgmtStore) {
	fileAndDB := uint32(ktable.SubtypeKeysetFile | ktable.SubtypeKeysetDB)
	allKeysets := uint32(ktable.SubtypeKeysetFile | ktable.SubtypeKeysetDB | ktable.SubtypeKeysetLDAP | ktable.SubtypeKeysetHTTP)
	cryptoDevice := uint32(ktable.SubtypeDevicePKCS11 | ktable.SubtypeDeviceCryptoAPI)

	s.Register(&KeysetRule{
		Item:                   ItemPublicKey,
		AllowedSubtypes:        map[KeysetAccess]uint32{AccessRead: allKeysets, AccessWrite: fileAndDB, AccessGetFirstNext: allKeysets, AccessQuery: allKeysets},
		WritableObjectSubtypes: uint32(ktable.SubtypeContextPKC),
	})
	s.Register(&KeysetRule{
		Item:                   ItemPrivateKey,
		AllowedSubtypes:        map[KeysetAccess]uint32{AccessRead: fileAndDB | cryptoDevice, AccessWrite: fileAndDB | cryptoDevice},
		WritableObjectSubtypes: uint32(ktable.SubtypeContextPKC),
		RequireID:              map[KeysetAccess]bool{AccessRead: true},
	})
	s.Register(&KeysetRule{
		Item:                   ItemSecretKey,
		AllowedSubtypes:        map[KeysetAccess]uint32{AccessRead: cryptoDevice, AccessWrite: cryptoDevice},
		WritableObjectSubtypes: uint32(ktable.SubtypeContextConventional),
		RequireID:              map[KeysetAccess]bool{AccessRead: true, AccessWrite: true},
	})
	s.Register(&KeysetRule{
		Item:                   ItemCertRequest,
		AllowedSubtypes:        map[KeysetAccess]uint32{AccessWrite: fileAndDB},
		WritableObjectSubtypes: uint32(ktable.SubtypeCertRequest),
	})
	s.Register(&KeysetRule{
		Item:                   ItemPKIUser,
		AllowedSubtypes:        map[KeysetAccess]uint32{AccessRead: uint32(ktable.SubtypeKeysetLDAP), AccessWrite: uint32(ktable.SubtypeKeysetLDAP)},
		WritableObjectSubtypes: uint32(ktable.SubtypeCertAttrCert),
		RequireID:              map[KeysetAccess]bool{AccessRead: true, AccessWrite: true},
	})
	s.Register(&KeysetRule{
		Item:                   ItemRevocationInfo,
		AllowedSubtypes:        map[KeysetAccess]uint32{AccessRead: allKeysets, AccessWrite: fileAndDB},
		WritableObjectSubtypes: uint32(ktable.SubtypeCertCRL),
	})
	s.Register(&KeysetRule{
		Item:            ItemData,
		AllowedSubtypes: map[KeysetAccess]uint32{AccessRead: allKeysets, AccessWrite: fileAndDB},
	})
}

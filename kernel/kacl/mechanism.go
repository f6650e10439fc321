package kacl

import (
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// MechanismID identifies a cryptographic mechanism gated by the mechanism
// ACL layer (spec.md §4.5): PKCS#1 wrap/unwrap, PGP-variant wrap, CMS key
// wrap, private-key wrap (PKCS#8 and variants), KEA, the derive mechanisms
// (PKCS#5, PKCS#12, SSL/TLS PRF, PGP S2K, CMP/Entrust), and sign.
type MechanismID int

const (
	MechPKCS1Wrap MechanismID = iota
	MechPKCS1Unwrap
	MechPGPWrap
	MechCMSWrap
	MechPKCS8Wrap
	MechKEA
	MechDerivePKCS5
	MechDerivePKCS12
	MechDeriveTLSPRF
	MechDerivePGPS2K
	MechDeriveCMP
	MechSign
)

// ParamKind classifies one of a mechanism's up-to-five parameters.
type ParamKind int

const (
	ParamUnused ParamKind = iota
	ParamOptionalString
	ParamString
	ParamNumeric
	ParamObject
)

// ParamRule is the validation rule for a single mechanism parameter.
type ParamRule struct {
	Kind ParamKind

	MinLen, MaxLen int // string/optional-string
	Low, High      int // numeric

	ObjectSubtypeA, ObjectSubtypeB uint32
	RequireState                   ObjectState
	RouteToContext                 bool
}

// ObjectState is the state requirement for an object-valued parameter.
type ObjectState int

const (
	StateAny ObjectState = iota
	StateLow
	StateHigh
)

// MechanismEntry is one mechanism ACL row, up to five parameters.
type MechanismEntry struct {
	ID     MechanismID
	Params [5]ParamRule
}

// MechanismStore is the compile-time table of mechanism ACL rows.
type MechanismStore struct {
	byID map[MechanismID]*MechanismEntry
}

func NewMechanismStore() *MechanismStore {
	return &MechanismStore{byID: make(map[MechanismID]*MechanismEntry)}
}

func (s *MechanismStore) Register(e *MechanismEntry) { s.byID[e.ID] = e }

func (s *MechanismStore) Lookup(id MechanismID) (*MechanismEntry, error) {
	e, ok := s.byID[id]
	if !ok {
		return nil, kerrors.Argument(1, "unknown mechanism")
	}
	return e, nil
}

// Param is one caller-supplied mechanism parameter, pre-dispatch-checked
// against its ParamRule (spec.md §4.5).
type Param struct {
	Kind    ParamKind
	String  []byte
	Numeric int
	Object  *ktable.Object
	// RoutedObject is the underlying context reached by walking the
	// dependency chain when RouteToContext is set.
	RoutedObject *ktable.Object
}

// CheckParams validates every caller-supplied parameter against the
// mechanism's ACL row, and ensures all object parameters share an owner
// with targetUser (spec.md §4.5: "ensure all object parameters are owned
// by the same user as the mechanism's target device").
func (e *MechanismEntry) CheckParams(params [5]Param, targetUser ktable.Handle) error {
	for i, rule := range e.Params {
		p := params[i]
		switch rule.Kind {
		case ParamUnused:
			continue
		case ParamOptionalString:
			if p.String == nil {
				continue
			}
			fallthrough
		case ParamString:
			if len(p.String) < rule.MinLen || len(p.String) > rule.MaxLen {
				return kerrors.Argument(i+2, "mechanism string parameter out of bounds")
			}
		case ParamNumeric:
			if p.Numeric < rule.Low || p.Numeric > rule.High {
				return kerrors.Argument(i+2, "mechanism numeric parameter out of range")
			}
		case ParamObject:
			obj := p.Object
			if rule.RouteToContext {
				if p.RoutedObject == nil {
					return kerrors.Argument(i+2, "object parameter could not be routed to a context")
				}
				obj = p.RoutedObject
			}
			if obj == nil {
				return kerrors.Argument(i+2, "missing object parameter")
			}
			if obj.Owner != targetUser {
				return kerrors.New(kerrors.ArgError, "mechanism object parameter owned by a different user")
			}
			if rule.ObjectSubtypeA != 0 && uint32(obj.Subtype)&rule.ObjectSubtypeA == 0 &&
				(rule.ObjectSubtypeB == 0 || uint32(obj.Subtype)&rule.ObjectSubtypeB == 0) {
				return kerrors.Argument(i+2, "object parameter has the wrong subtype")
			}
			if rule.RequireState == StateHigh && !obj.HasFlag(ktable.FlagHighState) {
				return kerrors.New(kerrors.Invalid, "mechanism object parameter not in high state")
			}
			if rule.RequireState == StateLow && obj.HasFlag(ktable.FlagHighState) {
				return kerrors.New(kerrors.Invalid, "mechanism object parameter not in low state")
			}
		}
	}
	return nil
}

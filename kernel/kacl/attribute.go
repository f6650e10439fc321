// Package kacl implements the kernel's attribute, mechanism, and
// key-management ACL layers (spec.md §4.3-§4.6).
package kacl

import (
	"sort"
	"time"

	validator "github.com/go-playground/validator/v10"

	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// AttributeID uniformly numbers every attribute the kernel knows about.
type AttributeID int

// ValueKind classifies an attribute's value type.
type ValueKind int

const (
	KindBoolean ValueKind = iota
	KindNumeric
	KindString
	KindWideString
	KindTime
	KindObject
	KindSpecial
)

// AccessBits encodes distinct read/write/delete bits for
// low-state/high-state/internal/external, spec.md §4.3.
type AccessBits uint16

const (
	ReadLow AccessBits = 1 << iota
	ReadHigh
	WriteLow
	WriteHigh
	DeleteLow
	DeleteHigh
	InternalOK
	ExternalOK
)

// NumericRangeKind selects one of the special numeric ranges spec.md §4.3
// describes beyond a plain [low,high] bound.
type NumericRangeKind int

const (
	RangePlain NumericRangeKind = iota
	RangeAny
	RangeSelectValue
	RangeAllowedValues
	RangeSubranges
)

type Subrange struct{ Lo, Hi int }

// RouteFlag re-targets an object-valued attribute's parameter before its
// subtype/state check (spec.md §4.3).
type RouteFlag int

const (
	RouteNone RouteFlag = iota
	RouteToContext
	RouteToCert
)

// Entry is one attribute ACL row.
type Entry struct {
	ID    AttributeID
	Name  string `validate:"required"`
	SubA  uint32 // subtype mask A
	SubB  uint32 // subtype mask B
	Access AccessBits
	Kind  ValueKind

	// Numeric constraints.
	RangeKind NumericRangeKind
	Low, High int
	Allowed   []int
	Subranges []Subrange

	// String/wide-string constraints.
	MinLen, MaxLen int

	// Time constraint: earliest acceptable value.
	MinTime time.Time

	// Object-valued constraints.
	ObjectSubtypeA, ObjectSubtypeB uint32
	RequireHighState               bool
	RequireLowState                bool
	Route                          RouteFlag

	// Trigger marks that a successful set drives the object low->high.
	Trigger       bool
	RetriggerableInternal bool
}

// Store is the compile-time attribute ACL table: a single-level binary
// search over contiguous attribute-id ranges (spec.md §4.3).
type Store struct {
	entries  []*Entry
	byID     map[AttributeID]*Entry
	validate *validator.Validate
}

func NewStore() *Store {
	return &Store{byID: make(map[AttributeID]*Entry), validate: validator.New()}
}

// Register adds an ACL row, validating its required fields via struct tags
// before it becomes reachable (catches a malformed compile-time table at
// startup rather than at first use).
func (s *Store) Register(e *Entry) error {
	if err := s.validate.Struct(e); err != nil {
		return kerrors.Wrap(err, kerrors.Invalid, "invalid attribute ACL entry")
	}
	s.entries = append(s.entries, e)
	s.byID[e.ID] = e
	sort.Slice(s.entries, func(i, j int) bool { return s.entries[i].ID < s.entries[j].ID })
	return nil
}

// Lookup performs a binary search over the contiguous attribute-id ranges
// for the ACL row governing id.
func (s *Store) Lookup(id AttributeID) (*Entry, error) {
	n := len(s.entries)
	lo, hi := 0, n-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case s.entries[mid].ID == id:
			return s.entries[mid], nil
		case s.entries[mid].ID < id:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return nil, kerrors.Argument(2, "unknown attribute")
}

// appliesTo reports whether the ACL row's subtype masks admit subtype.
func (e *Entry) appliesTo(subtype ktable.Subtype) bool {
	if e.SubA != 0 && uint32(subtype)&e.SubA != 0 {
		return true
	}
	if e.SubB != 0 && uint32(subtype)&e.SubB != 0 {
		return true
	}
	return e.SubA == 0 && e.SubB == 0
}

// CheckRead enforces spec.md §4.3's external-visibility rule: an attribute
// lacking any external-access bit reports argument-error to an external
// caller, never permission-denied, so internal attributes don't leak
// through the error channel.
func (e *Entry) CheckRead(subtype ktable.Subtype, highState, internal bool) error {
	if !e.appliesTo(subtype) {
		return kerrors.Argument(2, "attribute does not exist for this subtype")
	}
	if !internal && e.Access&ExternalOK == 0 {
		return kerrors.Argument(2, "attribute does not exist")
	}
	bit := ReadLow
	if highState {
		bit = ReadHigh
	}
	if e.Access&bit == 0 {
		if internal {
			return kerrors.New(kerrors.PermissionDenied, "attribute not readable in this state")
		}
		return kerrors.Argument(2, "attribute does not exist")
	}
	return nil
}

// CheckWrite mirrors CheckRead for the write path.
func (e *Entry) CheckWrite(subtype ktable.Subtype, highState, internal bool) error {
	if !e.appliesTo(subtype) {
		return kerrors.Argument(2, "attribute does not exist for this subtype")
	}
	if !internal && e.Access&ExternalOK == 0 {
		return kerrors.Argument(2, "attribute does not exist")
	}
	bit := WriteLow
	if highState {
		bit = WriteHigh
	}
	if e.Access&bit == 0 {
		if internal {
			return kerrors.New(kerrors.PermissionDenied, "attribute not writable in this state")
		}
		return kerrors.Argument(2, "attribute does not exist")
	}
	return nil
}

// CheckDelete mirrors CheckRead/CheckWrite for the delete path.
func (e *Entry) CheckDelete(subtype ktable.Subtype, highState, internal bool) error {
	if !e.appliesTo(subtype) {
		return kerrors.Argument(2, "attribute does not exist for this subtype")
	}
	if !internal && e.Access&ExternalOK == 0 {
		return kerrors.Argument(2, "attribute does not exist")
	}
	bit := DeleteLow
	if highState {
		bit = DeleteHigh
	}
	if e.Access&bit == 0 {
		if internal {
			return kerrors.New(kerrors.PermissionDenied, "attribute not deletable in this state")
		}
		return kerrors.Argument(2, "attribute does not exist")
	}
	return nil
}

// CheckValue validates a caller-supplied value against the entry's Kind,
// dispatching to CheckNumeric for numeric attributes and doing the
// matching shape/bound check for every other value kind (spec.md §4.3
// "value kind"). KindSpecial attributes carry kernel-opaque payloads
// (e.g. algorithm-specific parameter blocks) and are not shape-checked
// here.
func (e *Entry) CheckValue(v any) error {
	switch e.Kind {
	case KindBoolean:
		if _, ok := v.(bool); !ok {
			return kerrors.Argument(3, "attribute requires a boolean value")
		}
		return nil
	case KindNumeric:
		n, ok := v.(int)
		if !ok {
			return kerrors.Argument(3, "attribute requires a numeric value")
		}
		return e.CheckNumeric(n)
	case KindString:
		s, ok := v.([]byte)
		if !ok {
			str, isStr := v.(string)
			if !isStr {
				return kerrors.Argument(3, "attribute requires a string value")
			}
			s = []byte(str)
		}
		if len(s) < e.MinLen || (e.MaxLen > 0 && len(s) > e.MaxLen) {
			return kerrors.Argument(3, "string value out of bounds")
		}
		return nil
	case KindWideString:
		s, ok := v.(string)
		if !ok {
			return kerrors.Argument(3, "attribute requires a wide-string value")
		}
		if len(s) < e.MinLen || (e.MaxLen > 0 && len(s) > e.MaxLen) {
			return kerrors.Argument(3, "wide-string value out of bounds")
		}
		return nil
	case KindTime:
		t, ok := v.(time.Time)
		if !ok {
			return kerrors.Argument(3, "attribute requires a time value")
		}
		if !e.MinTime.IsZero() && t.Before(e.MinTime) {
			return kerrors.Argument(3, "time value earlier than permitted")
		}
		return nil
	case KindObject:
		obj, ok := v.(*ktable.Object)
		if !ok || obj == nil {
			return kerrors.Argument(3, "attribute requires an object value")
		}
		if e.ObjectSubtypeA != 0 && uint32(obj.Subtype)&e.ObjectSubtypeA == 0 &&
			(e.ObjectSubtypeB == 0 || uint32(obj.Subtype)&e.ObjectSubtypeB == 0) {
			return kerrors.Argument(3, "object value has the wrong subtype")
		}
		if e.RequireHighState && !obj.HasFlag(ktable.FlagHighState) {
			return kerrors.New(kerrors.Invalid, "object value is not in high state")
		}
		if e.RequireLowState && obj.HasFlag(ktable.FlagHighState) {
			return kerrors.New(kerrors.Invalid, "object value is not in low state")
		}
		return nil
	default:
		return nil
	}
}

// CheckNumeric validates v against the entry's numeric range rule.
func (e *Entry) CheckNumeric(v int) error {
	switch e.RangeKind {
	case RangeAny:
		return nil
	case RangeSelectValue:
		if v != 0 {
			return kerrors.Argument(3, "only the unused sentinel is accepted here")
		}
		return nil
	case RangeAllowedValues:
		for _, a := range e.Allowed {
			if a == v {
				return nil
			}
		}
		return kerrors.Argument(3, "value not in allowed set")
	case RangeSubranges:
		for _, sr := range e.Subranges {
			if v >= sr.Lo && v <= sr.Hi {
				return nil
			}
		}
		return kerrors.Argument(3, "value not in any allowed subrange")
	default:
		if v < e.Low || v > e.High {
			return kerrors.Argument(3, "value out of range")
		}
		return nil
	}
}

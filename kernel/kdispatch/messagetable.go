package kdispatch

import "github.com/compozy/kernelguard/kernel/ktable"

// MessageType enumerates every message the kernel routes (spec.md §4.2).
type MessageType int

const (
	MsgDestroy MessageType = iota
	MsgIncRefCount
	MsgDecRefCount
	MsgClone
	MsgSetDependent
	MsgGetDependent
	MsgGetAttribute
	MsgSetAttribute
	MsgDeleteAttribute
	MsgGetProperty
	MsgSetProperty
	MsgCheck
	MsgCompare
	MsgChangeNotify
	MsgSetStatus
	MsgEncrypt
	MsgDecrypt
	MsgSign
	MsgSigCheck
	MsgHash
	MsgGenKey
	MsgCtxGenKey
	MsgKeyExchange
	MsgCertSign
	MsgMechanism
	MsgKeysetRead
	MsgKeysetWrite
	MsgUser
	MsgTransferOwnership
)

// RouteTarget is the routing target type a message carries, or the
// implicit/none variants (spec.md §4.2).
type RouteTarget int

const (
	RouteNoneTarget RouteTarget = iota
	RouteImplicit               // attribute get/set/delete: resolves to the addressed object; no attribute-specific target is followed
	RouteToCertificate
	RouteToDevice
	RouteToContextTarget
)

// Record is one row of the compile-time message-handling table (spec.md
// §4.2).
type Record struct {
	Type MessageType

	Route RouteTarget

	// SubtypeA/SubtypeB are the two 32-bit masks of valid object subtypes.
	SubtypeA, SubtypeB uint32

	Shape ParamShape

	// KernelHandled messages (incref, decref, clone, set-dependent,
	// get-dependent, property get/set) are executed by an internal
	// handler that replaces the object's own handler.
	KernelHandled bool

	// IsAttributeProperty marks an attribute get/set targeting a
	// kernel-internal property attribute (spec.md §4.2 step 9). Send does
	// not read this field and no default row sets it; property attributes
	// are reached through MsgGetProperty/MsgSetProperty instead.
	IsAttributeProperty bool
}

func (r *Record) appliesTo(subtype ktable.Subtype) bool {
	if r.SubtypeA == 0 && r.SubtypeB == 0 {
		return true
	}
	return uint32(subtype)&r.SubtypeA != 0 || uint32(subtype)&r.SubtypeB != 0
}

// Table is the compile-time, message-type-indexed handling table.
type Table struct {
	byType map[MessageType]*Record
}

func NewTable() *Table {
	t := &Table{byType: make(map[MessageType]*Record)}
	t.installDefaults()
	return t
}

func (t *Table) Register(r *Record) { t.byType[r.Type] = r }

func (t *Table) Lookup(mt MessageType) (*Record, bool) {
	r, ok := t.byType[mt]
	return r, ok
}

// installDefaults wires the standard kernel-handled message set and the
// common routable messages; subsystem packages may Register additional
// rows for their own message types (e.g. mechanism-specific variants).
func (t *Table) installDefaults() {
	all := uint32(0xFFFFFFFF)
	t.Register(&Record{Type: MsgDestroy, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeNoneNone})
	t.Register(&Record{Type: MsgIncRefCount, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeNoneNone, KernelHandled: true})
	t.Register(&Record{Type: MsgDecRefCount, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeNoneNone, KernelHandled: true})
	t.Register(&Record{Type: MsgClone, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeContextHash | ktable.SubtypeContextConventional | ktable.SubtypeContextMAC), Shape: ShapeDataNone, KernelHandled: true})
	t.Register(&Record{Type: MsgSetDependent, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeDataObjType, KernelHandled: true})
	t.Register(&Record{Type: MsgGetDependent, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeDataObjType, KernelHandled: true})
	t.Register(&Record{Type: MsgGetAttribute, Route: RouteImplicit, SubtypeA: all, Shape: ShapeDataAttributeType})
	t.Register(&Record{Type: MsgSetAttribute, Route: RouteImplicit, SubtypeA: all, Shape: ShapeDataAttributeType})
	t.Register(&Record{Type: MsgDeleteAttribute, Route: RouteImplicit, SubtypeA: all, Shape: ShapeDataAttributeType})
	t.Register(&Record{Type: MsgGetProperty, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeDataAttributeType, KernelHandled: true})
	t.Register(&Record{Type: MsgSetProperty, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeDataAttributeType, KernelHandled: true})
	t.Register(&Record{Type: MsgCheck, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeNoneCheckType})
	t.Register(&Record{Type: MsgCompare, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeDataCompareType})
	t.Register(&Record{Type: MsgChangeNotify, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeDataObjType})
	t.Register(&Record{Type: MsgSetStatus, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeNoneStateType})
	t.Register(&Record{Type: MsgEncrypt, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeContextConventional | ktable.SubtypeContextPKC), Shape: ShapeDataLength})
	t.Register(&Record{Type: MsgDecrypt, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeContextConventional | ktable.SubtypeContextPKC), Shape: ShapeDataLength})
	t.Register(&Record{Type: MsgSign, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeContextPKC), Shape: ShapeDataLength})
	t.Register(&Record{Type: MsgSigCheck, Route: RouteToCertificate, SubtypeA: uint32(ktable.SubtypeContextPKC), Shape: ShapeDataLength})
	t.Register(&Record{Type: MsgHash, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeContextHash | ktable.SubtypeContextMAC), Shape: ShapeDataLength})
	t.Register(&Record{Type: MsgCtxGenKey, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeContextPKC | ktable.SubtypeContextConventional), Shape: ShapeNoneBoolean})
	t.Register(&Record{Type: MsgKeyExchange, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeContextPKC), Shape: ShapeDataLength})
	t.Register(&Record{Type: MsgCertSign, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeCertCert | ktable.SubtypeCertCRL), Shape: ShapeNoneNone})
	t.Register(&Record{Type: MsgMechanism, Route: RouteToDevice, SubtypeA: all, Shape: ShapeDataMechanismType})
	t.Register(&Record{Type: MsgKeysetRead, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeKeysetFile | ktable.SubtypeKeysetDB | ktable.SubtypeKeysetLDAP | ktable.SubtypeKeysetHTTP), Shape: ShapeDataFormatType})
	t.Register(&Record{Type: MsgKeysetWrite, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeKeysetFile | ktable.SubtypeKeysetDB | ktable.SubtypeKeysetLDAP), Shape: ShapeDataFormatType})
	t.Register(&Record{Type: MsgUser, Route: RouteNoneTarget, SubtypeA: uint32(ktable.SubtypeUserDefault), Shape: ShapeDataObjType})
	t.Register(&Record{Type: MsgTransferOwnership, Route: RouteNoneTarget, SubtypeA: all, Shape: ShapeDataObjType, KernelHandled: true})
}

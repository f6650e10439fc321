// Package kdispatch implements the kernel's unified message-dispatch
// pipeline (spec.md §4.2): routing, pre/post-dispatch checking, the
// message queue, and the send() primitive itself.
package kdispatch

import "github.com/compozy/kernelguard/kernel/kerrors"

// ParamShape encodes the expected combination of data/value parameters for
// a message type (spec.md §4.2, cryptlib's paramCheckTbl in cryptkrn.c).
// Used both by the dispatcher's sanity checks and by the decoder for the
// numericValue parameter.
type ParamShape int

const (
	ShapeNoneNone ParamShape = iota
	ShapeNoneBoolean
	ShapeNoneCheckType
	ShapeNoneStateType
	ShapeDataLength
	ShapeDataObjType
	ShapeDataMechanismType
	ShapeDataAttributeType
	ShapeDataCompareType
	ShapeDataFormatType
	ShapeDataNone
)

// CheckType enumerates the "none+check-type" numeric values (MESSAGE_CHECK
// family: is-this-a-valid-encrypt-context, etc.).
type CheckType int

const (
	CheckNone CheckType = iota
	CheckPKCPrivate
	CheckPKCPublic
	CheckCrypt
	CheckHash
	CheckMAC
	CheckSign
	CheckSigCheck
	CheckCACert
)

// CompareType enumerates the MESSAGE_COMPARE variants (spec.md SUPPLEMENTED
// FEATURES: "compare-message family").
type CompareType int

const (
	CompareObjectHandle CompareType = iota
	CompareHash
	CompareKeyID
	CompareSubject
	CompareIssuerAndSerialNumber
	CompareCertificate
	CompareNonce
)

// StateType enumerates the "none+state-type" values used by status-change
// messages (MESSAGE_SETDEPENDENT's completion, set-status).
type StateType int

const (
	StateOK StateType = iota
	StateDisabled
)

// Decode validates that value is well-formed for shape, returning
// argument-error(4) (numericValue is always the fourth logical parameter
// after handle/messageType/dataPointer) on mismatch.
func Decode(shape ParamShape, hasData bool, value int) error {
	switch shape {
	case ShapeNoneNone:
		if hasData || value != 0 {
			return kerrors.Argument(4, "message takes no parameters")
		}
	case ShapeNoneBoolean:
		if value != 0 && value != 1 {
			return kerrors.Argument(4, "expected a boolean value")
		}
	case ShapeNoneCheckType:
		if value < int(CheckNone) || value > int(CheckCACert) {
			return kerrors.Argument(4, "invalid check type")
		}
	case ShapeNoneStateType:
		if value != int(StateOK) && value != int(StateDisabled) {
			return kerrors.Argument(4, "invalid state type")
		}
	case ShapeDataLength:
		if !hasData || value < 0 {
			return kerrors.Argument(4, "invalid length parameter")
		}
	case ShapeDataObjType, ShapeDataMechanismType, ShapeDataAttributeType,
		ShapeDataCompareType, ShapeDataFormatType:
		if value < 0 {
			return kerrors.Argument(4, "invalid type discriminator")
		}
	case ShapeDataNone:
		if !hasData {
			return kerrors.Argument(3, "message requires a data parameter")
		}
	}
	return nil
}

package ksystem

import (
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// UserBody is the default user object's state. CreateObject does not
// assign the default user as owner: an object created with owner 0 keeps
// owner 0.
type UserBody struct {
	Label string
}

// UserHandler mirrors DeviceHandler: the default user object answers
// destroy directly at shutdown and otherwise has no messages of its own.
func UserHandler(obj *ktable.Object, messageType int, _ any, _ int) error {
	switch messageType {
	case 0: // MsgDestroy
		return nil
	default:
		return kerrors.New(kerrors.NotAvail, "default user does not service this message")
	}
}

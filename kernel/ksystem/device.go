// Package ksystem implements the two objects every kernel instance boots
// with: the root system device at handle 1 and the default user at handle
// 2 (spec.md §2 "Global state", §3 "system objects").
package ksystem

import (
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// DeviceBody is the system device's object state: the root of the owner
// chain every other object eventually resolves to during message routing.
type DeviceBody struct {
	Label string
}

// DeviceHandler answers the handful of messages the system device itself
// must service directly; everything else kernel-handled (incref, decref,
// property get/set) never reaches here. Destroy on the system device only
// runs at shutdown and is driven by klifecycle.Shutdown, not by a Send.
func DeviceHandler(obj *ktable.Object, messageType int, _ any, _ int) error {
	switch messageType {
	case 0: // MsgDestroy, called directly by klifecycle at shutdown
		return nil
	default:
		return kerrors.New(kerrors.NotAvail, "system device does not service this message")
	}
}

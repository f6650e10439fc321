package klifecycle

import (
	"context"

	"github.com/compozy/kernelguard/kernel/kdispatch"
	"github.com/compozy/kernelguard/kernel/ksystem"
	"github.com/compozy/kernelguard/kernel/ktable"
)

// Boot initialises a freshly constructed Kernel: flips the initialised
// flag via Init, then installs and completes initialisation of the two
// reserved system objects at their fixed handles (spec.md §2, §3 "system
// objects"). Must run exactly once per Kernel before any other Send call.
func Boot(ctx context.Context, k *kdispatch.Kernel) error {
	if err := k.Init(); err != nil {
		return err
	}
	if _, err := CreateSystemObject(
		k,
		ktable.SystemDeviceHandle,
		ktable.TypeDevice,
		ktable.SubtypeDeviceSystem,
		ksystem.DeviceHandler,
		&ksystem.DeviceBody{Label: "system"},
	); err != nil {
		return err
	}
	if err := CompleteInit(ctx, k, ktable.SystemDeviceHandle); err != nil {
		return err
	}
	if _, err := CreateSystemObject(
		k,
		ktable.DefaultUserHandle,
		ktable.TypeUser,
		ktable.SubtypeUserDefault,
		ksystem.UserHandler,
		&ksystem.UserBody{Label: "default"},
	); err != nil {
		return err
	}
	return CompleteInit(ctx, k, ktable.DefaultUserHandle)
}

package main

import (
	"context"
	"fmt"

	"github.com/compozy/kernelguard/kernel/kacl"
	"github.com/compozy/kernelguard/kernel/kdispatch"
	"github.com/compozy/kernelguard/kernel/kerrors"
	"github.com/compozy/kernelguard/kernel/klifecycle"
	"github.com/compozy/kernelguard/kernel/ktable"
	"github.com/spf13/cobra"
)

var sendMessageNames = map[string]kdispatch.MessageType{
	"destroy":       kdispatch.MsgDestroy,
	"incref":        kdispatch.MsgIncRefCount,
	"decref":        kdispatch.MsgDecRefCount,
	"get-property":  kdispatch.MsgGetProperty,
	"set-property":  kdispatch.MsgSetProperty,
	"check":         kdispatch.MsgCheck,
	"change-notify": kdispatch.MsgChangeNotify,
	"compare":       kdispatch.MsgCompare,
}

func newSendCmd() *cobra.Command {
	var messageName string
	var handle int32
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Boot a kernel, create a demo context, and send it one message",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			k, err := bootKernel(ctx, true)
			if err != nil {
				return err
			}

			mt, ok := sendMessageNames[messageName]
			if !ok {
				return kerrors.Argument(1, fmt.Sprintf("unknown message %q", messageName))
			}

			target := ktable.Handle(handle)
			if target == 0 {
				h, err := demoContext(ctx, k)
				if err != nil {
					return err
				}
				target = h
			}

			var data any
			var query *kacl.PropertyQuery
			switch mt {
			case kdispatch.MsgGetProperty:
				query = &kacl.PropertyQuery{ID: kacl.PropInternal}
				data = query
			case kdispatch.MsgSetProperty:
				data = kacl.PropInternal
			}

			if err := k.Send(ctx, target, mt, data, 0); err != nil {
				return err
			}
			if query != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "ok handle=%d message=%s result=%d\n", target, messageName, query.Result)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ok handle=%d message=%s\n", target, messageName)
			return nil
		},
	}
	cmd.Flags().StringVarP(&messageName, "message", "m", "get-property", "message to send")
	cmd.Flags().Int32VarP(&handle, "handle", "H", 0, "target handle (0 = create a demo context first)")
	return cmd
}

// demoContext creates and completes initialisation of a throwaway
// conventional-context object owned by the default user, so send has
// something to aim at without requiring a full crypto subsystem.
func demoContext(ctx context.Context, k *kdispatch.Kernel) (ktable.Handle, error) {
	h, err := klifecycle.CreateObject(
		k,
		ktable.TypeContext,
		ktable.SubtypeContextConventional,
		klifecycle.CreationFlags{},
		ktable.DefaultUserHandle,
		ktable.ActionPerms{},
		func(_ *ktable.Object, _ int, _ any, _ int) error { return nil },
		nil,
	)
	if err != nil {
		return 0, err
	}
	if err := klifecycle.CompleteInit(ctx, k, h); err != nil {
		return 0, err
	}
	return h, nil
}

package main

import (
	"fmt"

	"github.com/compozy/kernelguard/kernel/klifecycle"
	"github.com/spf13/cobra"
)

func newShutdownCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shutdown",
		Short: "Boot a kernel and immediately run it through the ordered shutdown sequence",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			k, err := bootKernel(ctx, true)
			if err != nil {
				return err
			}
			klifecycle.Shutdown(ctx, k)
			fmt.Fprintf(cmd.OutOrStdout(), "closing_down=%v\n", k.ClosingDown())
			return nil
		},
	}
	return cmd
}

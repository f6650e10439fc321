package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Boot a kernel and print its initialised/closing-down flags",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := bootKernel(cmd.Context(), false)
			if err != nil {
				return err
			}
			fmt.Fprintf(
				cmd.OutOrStdout(),
				"initialised=%v closing_down=%v\n",
				k.Initialised(),
				k.ClosingDown(),
			)
			return nil
		},
	}
	return cmd
}

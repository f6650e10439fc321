package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Boot a kernel and report whether the system objects came up",
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := bootKernel(cmd.Context(), verbose)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "kernel initialised: %v\n", k.Initialised())
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log at info level instead of discarding log output")
	return cmd
}

// Command kernelctl is a thin smoke-test harness over the kernelguard
// security kernel: boot it, inspect its state, drive a handful of
// messages through it, and shut it down, all from one process since the
// kernel holds no state across invocations.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "kernelctl",
		Short: "Drive a kernelguard security kernel for inspection and smoke testing",
	}
	root.AddCommand(
		newInitCmd(),
		newStatusCmd(),
		newShutdownCmd(),
		newSendCmd(),
	)
	return root
}

// Command faultline inspects the exception vector table and decodes fault
// diagnostics without raising real faults.
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "faultline",
		Short:         "Inspect the exception vector table and decode fault diagnostics",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newVectorsCmd(), newDecodeCmd(), newFaultCmd())

	return root
}

func parseVector(arg string) (uint8, error) {
	vector, err := strconv.ParseUint(arg, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid vector %q: %w", arg, err)
	}
	return uint8(vector), nil
}

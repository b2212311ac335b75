package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"faultline/kernel/trap"
)

func newDecodeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "decode <vector> <error-code>",
		Short: "Decode a hardware error code for a fault vector",
		Long: `Decode runs the pure error-code decoder for the given vector and prints
the resulting findings. Only the selector-fault family (vectors 10-13) and
the page fault (vector 14) define a decodable bit layout.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			vector, err := parseVector(args[0])
			if err != nil {
				return err
			}

			code, err := strconv.ParseUint(args[1], 0, 64)
			if err != nil {
				return fmt.Errorf("invalid error code %q: %w", args[1], err)
			}

			var findings []string
			switch vector {
			case trap.VecInvalidTSS, trap.VecSegmentNotPresent, trap.VecStackSegmentFault, trap.VecGeneralProtection:
				findings = trap.DecodeSelectorFault(code).Findings()
			case trap.VecPageFault:
				findings = trap.DecodePageFault(code).Findings()
			default:
				return fmt.Errorf("vector %d does not define a decodable error code", vector)
			}

			for _, finding := range findings {
				fmt.Fprintln(cmd.OutOrStdout(), finding)
			}

			return nil
		},
	}
}

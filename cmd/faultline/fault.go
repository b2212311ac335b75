package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"faultline/kernel/gate"
	"faultline/kernel/kcon"
	"faultline/kernel/trap"
)

func newFaultCmd() *cobra.Command {
	var (
		code uint64
		rip  uint64
		rsp  uint64
		cr2  uint64
	)

	cmd := &cobra.Command{
		Use:   "fault <vector>",
		Short: "Simulate dispatching a fault and report the continuation state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			vector, err := parseVector(args[0])
			if err != nil {
				return err
			}

			trap.SetCR2Reader(func() uint64 { return cr2 })
			defer trap.SetCR2Reader(nil)

			kcon.SetOutputSink(cmd.OutOrStdout())
			defer kcon.SetOutputSink(nil)

			regs := &gate.Registers{RIP: rip, RSP: rsp}
			state := trap.NewEngine().Dispatch(vector, regs, code)

			fmt.Fprintln(cmd.OutOrStdout(), "\nRegisters:")
			regs.DumpTo(cmd.OutOrStdout())
			fmt.Fprintf(cmd.OutOrStdout(), "\ncontinuation state: %s\n", state)
			return nil
		},
	}

	cmd.Flags().Uint64Var(&code, "code", 0, "hardware error code pushed for the vector")
	cmd.Flags().Uint64Var(&rip, "rip", 0, "instruction pointer at fault time")
	cmd.Flags().Uint64Var(&rsp, "rsp", 0, "stack pointer at fault time")
	cmd.Flags().Uint64Var(&cr2, "cr2", 0, "faulting linear address reported by the control register")

	return cmd
}

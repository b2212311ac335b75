package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"faultline/kernel/trap"
)

func newVectorsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vectors",
		Short: "Print the boot-time vector table layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Vector", "Mnemonic", "Name", "Gate", "Privilege", "Error code"})

			for _, info := range trap.Vectors() {
				errCode := "-"
				if info.HasErrCode {
					errCode = "yes"
				}

				t.AppendRow(table.Row{
					info.Vector,
					info.Mnemonic,
					info.Name,
					info.Kind.String(),
					info.Privilege.String(),
					errCode,
				})
			}

			t.Render()
			return nil
		},
	}
}

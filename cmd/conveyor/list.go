package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pipelined.dev/conveyor/frame"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the list of available processors",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Available processors:")
		for _, name := range frame.DefaultRegistry().Names() {
			fmt.Fprintf(out, "\t%s\n", name)
		}
		return nil
	},
}

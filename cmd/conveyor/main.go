package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const (
	successExitCode = 0
	errorExitCode   = 1
)

var rootCmd = &cobra.Command{
	Use:   "conveyor",
	Short: "Conveyor runs imaging lines of concurrent stages",
	Long: `Conveyor runs imaging lines of concurrent stages.

Settings are read from CONVEYOR_* environment variables, lines are
defined in YAML files.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(runCmd)
}

func main() {
	os.Exit(execute())
}

func execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Command failed: %v\n", err)
		return errorExitCode
	}
	return successExitCode
}

package main

// ============================================================================
// Wayfinder entry point. All logic lives in internal/cli.
// ============================================================================

import (
	"fmt"
	"os"

	"github.com/NeonPandaSp/wayfinder/internal/cli"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "fatal: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

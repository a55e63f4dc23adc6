package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCmd(os.Stdout, os.Stderr)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "buildingmap",
		Short: "Attach building table rows to campus building outlines",
		Long: `buildingmap links a building table (code, name, address, lat, lon) to a GeoJSON
collection of building outlines and writes the matched outlines with the table's columns
added to their properties.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.AddCommand(createMergeCmd())
	rootCmd.AddCommand(createValidateCmd())
	rootCmd.AddCommand(createSimilarityCmd())

	return rootCmd
}

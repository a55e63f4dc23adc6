package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/campus-outlines/buildingmap/internal/ingest"
	"github.com/campus-outlines/buildingmap/internal/logging"
	"github.com/campus-outlines/buildingmap/pkg/merge"
)

func createValidateCmd() *cobra.Command {
	var rowsPath, outlinesPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Report every bad line of a building table",
		Long: `Check that every data line has at least five columns, a three character code and a
numeric or null latitude and longitude. With --outlines, also check that the outline file
parses and report features that cannot take part in matching.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile("rows", rowsPath); err != nil {
				return err
			}
			if outlinesPath != "" {
				if err := requireFile("outlines", outlinesPath); err != nil {
					return err
				}
			}
			return runValidate(cmd.OutOrStdout(), rowsPath, outlinesPath)
		},
	}

	cmd.Flags().StringVar(&rowsPath, "rows", "", "Building table CSV")
	cmd.Flags().StringVar(&outlinesPath, "outlines", "", "Optional building outline GeoJSON")

	return cmd
}

func runValidate(w io.Writer, rowsPath, outlinesPath string) error {
	logger := logging.NewStructuredLogger(io.Discard, slog.LevelInfo)

	table, err := ingest.ReadTableFile(rowsPath, logger)
	if err != nil {
		return err
	}
	for _, rowErr := range table.Errors {
		fmt.Fprintln(w, rowErr.Error())
	}
	fmt.Fprintf(w, "%s: %d valid rows, %d bad lines\n", rowsPath, len(table.Rows), len(table.Errors))

	skipped := 0
	if outlinesPath != "" {
		fc, err := ingest.ReadOutlinesFile(outlinesPath, logger)
		if err != nil {
			return err
		}
		outlines, n := merge.Outlines(fc, logger)
		skipped = n
		candidates := 0
		for _, o := range outlines {
			if o.Candidate {
				candidates++
			}
		}
		fmt.Fprintf(w, "%s: %d features, %d matchable, %d without properties or geometry\n",
			outlinesPath, len(fc.Features), candidates, skipped)
	}

	if len(table.Errors) > 0 {
		return fmt.Errorf("invalid building table: %d bad lines", len(table.Errors))
	}
	return nil
}

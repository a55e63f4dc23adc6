package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/campus-outlines/buildingmap/internal/ingest"
	"github.com/campus-outlines/buildingmap/internal/logging"
	"github.com/campus-outlines/buildingmap/internal/report"
	"github.com/campus-outlines/buildingmap/internal/textsim"
)

func createSimilarityCmd() *cobra.Command {
	var rowsPath, outlinesPath, outPath, algorithm, buildingTag string

	cmd := &cobra.Command{
		Use:   "similarity",
		Short: "Write the table-name by outline-name similarity matrix",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireFile("rows", rowsPath); err != nil {
				return err
			}
			if err := requireFile("outlines", outlinesPath); err != nil {
				return err
			}
			if outPath == "" {
				return fmt.Errorf("--out is required")
			}
			sim, err := textsim.ForAlgorithm(textsim.Algorithm(algorithm))
			if err != nil {
				return err
			}
			return runSimilarity(cmd.OutOrStdout(), rowsPath, outlinesPath, outPath, buildingTag, sim)
		},
	}

	cmd.Flags().StringVar(&rowsPath, "rows", "", "Building table CSV")
	cmd.Flags().StringVar(&outlinesPath, "outlines", "", "Building outline GeoJSON")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "Output CSV")
	cmd.Flags().StringVar(&algorithm, "similarity", string(textsim.AlgorithmRatio), "Name similarity metric (ratio|jaro-winkler|levenshtein)")
	cmd.Flags().StringVar(&buildingTag, "building-tag", "", "Only list outlines with this building tag value, e.g. university (default: any building)")

	return cmd
}

func runSimilarity(w io.Writer, rowsPath, outlinesPath, outPath, buildingTag string, sim textsim.Func) error {
	logger := logging.NewStructuredLogger(io.Discard, slog.LevelInfo)

	table, err := ingest.ReadTableFile(rowsPath, logger)
	if err != nil {
		return err
	}
	fc, err := ingest.ReadOutlinesFile(outlinesPath, logger)
	if err != nil {
		return err
	}

	rowNames := report.RowNames(table.Rows)
	outlineNames := report.OutlineNames(fc, buildingTag)

	out, err := ingest.Create(outPath)
	if err != nil {
		return err
	}
	if err := report.WriteSimilarityMatrix(out, rowNames, outlineNames, sim); err != nil {
		logging.SafeCloseWithLogging(out, logger, "matrix_file")
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", outPath, err)
	}

	fmt.Fprintf(w, "Wrote %d x %d similarity matrix to: %s\n", len(rowNames), len(outlineNames), outPath)
	return nil
}

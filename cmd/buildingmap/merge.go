package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/spf13/cobra"

	"github.com/campus-outlines/buildingmap/internal/appconf"
	"github.com/campus-outlines/buildingmap/internal/ingest"
	"github.com/campus-outlines/buildingmap/internal/logging"
	"github.com/campus-outlines/buildingmap/internal/metrics"
	"github.com/campus-outlines/buildingmap/internal/report"
	"github.com/campus-outlines/buildingmap/pkg/merge"
)

func createMergeCmd() *cobra.Command {
	config := &Config{}

	cmd := &cobra.Command{
		Use:   "merge",
		Short: "Merge a building table into an outline collection",
		Example: `  buildingmap merge --rows buildings.csv --outlines outlines.geojson --out merged
  buildingmap merge --rows buildings.csv.gz --outlines outlines.geojson.zst --out merged.geojson \
      --name-weighting --threshold 0.01 --report report.csv --metrics-file buildingmap.prom`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateMergeConfig(config); err != nil {
				return err
			}
			settings, err := resolveSettings(cmd, config)
			if err != nil {
				return err
			}
			return runMerge(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), config, settings)
		},
	}

	cmd.Flags().StringVar(&config.RowsPath, "rows", "", "Building table CSV (.gz/.zst accepted)")
	cmd.Flags().StringVar(&config.OutlinesPath, "outlines", "", "Building outline GeoJSON FeatureCollection (.gz/.zst accepted)")
	cmd.Flags().StringVarP(&config.OutputPath, "out", "o", "", "Output GeoJSON; .geojson is appended when there is no extension")
	cmd.Flags().StringVar(&config.ReportPath, "report", "", "Write a per-row match report CSV")
	cmd.Flags().StringVar(&config.MetricsPath, "metrics-file", "", "Write run metrics in Prometheus text format")
	addSettingFlags(cmd, config)

	return cmd
}

func validateMergeConfig(config *Config) error {
	if err := requireFile("rows", config.RowsPath); err != nil {
		return err
	}
	if err := requireFile("outlines", config.OutlinesPath); err != nil {
		return err
	}
	if config.OutputPath == "" {
		return fmt.Errorf("--out is required")
	}
	return nil
}

func mergeOptions(settings *appconf.Config) merge.Options {
	return merge.Options{
		Threshold:       settings.Threshold,
		NameWeighting:   settings.NameWeighting,
		Similarity:      settings.Similarity,
		VertexMode:      settings.VertexMode,
		MaxPasses:       settings.MaxPasses,
		UseSpatialIndex: settings.UseSpatialIndex,
	}
}

func runMerge(ctx context.Context, stdout, stderr io.Writer, config *Config, settings *appconf.Config) error {
	logger := logging.NewLogger(stderr, settings.LogLevel, settings.LogFormat).
		With(slog.String("env", settings.Env.String()))
	ctx = logging.WithLogger(ctx, logger)

	table, err := ingest.ReadTableFile(config.RowsPath, logger)
	if err != nil {
		return fmt.Errorf("loading table: %w", err)
	}
	outlines, err := ingest.ReadOutlinesFile(config.OutlinesPath, logger)
	if err != nil {
		return fmt.Errorf("loading outlines: %w", err)
	}

	merger := merge.NewMerger(mergeOptions(settings), nil)
	var runMetrics *metrics.Metrics
	if config.MetricsPath != "" {
		runMetrics = metrics.New()
		merger.SetObserver(runMetrics)
	}

	fmt.Fprintf(stdout, "Merging %d table lines into %d outlines...\n", len(table.Rows)+len(table.Errors), len(outlines.Features))
	fmt.Fprintf(stdout, "Strategy: %s\n", mergeOptions(settings).Strategy())

	start := time.Now()
	result, err := merger.Merge(ctx, merge.Input{
		Header:    table.Header,
		Rows:      table.Rows,
		Malformed: len(table.Errors),
		Outlines:  outlines,
	})
	if merge.IsInputError(err) {
		return fmt.Errorf("invalid input: %w", err)
	}
	if err != nil {
		return fmt.Errorf("merging: %w", err)
	}
	elapsed := time.Since(start)

	printStats(stdout, result)

	outPath := ingest.OutputPath(config.OutputPath)
	fmt.Fprintf(stdout, "\nWriting merged outlines to: %s\n", outPath)
	if err := ingest.WriteCollectionFile(outPath, result.Merged, logger); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	if config.ReportPath != "" {
		if err := writeReport(config.ReportPath, result, logger); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote match report to: %s\n", config.ReportPath)
	}

	if runMetrics != nil {
		runMetrics.ObserveResult(result, elapsed)
		if err := runMetrics.WriteTextfile(config.MetricsPath); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "Wrote metrics to: %s\n", config.MetricsPath)
	}

	if settings.Verbose {
		dumpState(stderr, result)
	}

	fmt.Fprintln(stdout, "Success!")
	return nil
}

func printStats(w io.Writer, result *merge.MergeResult) {
	stats := result.Stats
	fmt.Fprintf(w, "\nMerge complete!\n")
	fmt.Fprintf(w, "  Run ID: %s\n", result.RunID)
	fmt.Fprintf(w, "  Total rows: %d\n", stats.Total)
	fmt.Fprintf(w, "  Matched: %d\n", stats.Matched)
	fmt.Fprintf(w, "  Ignored: %d\n", stats.Ignored)
	for _, reason := range []string{
		merge.ReasonMalformed,
		merge.ReasonUnknownCoordinates,
		merge.ReasonNoCandidate,
		merge.ReasonColumnMismatch,
		merge.ReasonPassLimit,
	} {
		if n := stats.IgnoredBy[reason]; n > 0 {
			fmt.Fprintf(w, "    %s: %d\n", reason, n)
		}
	}
	fmt.Fprintf(w, "  Collisions: %d\n", stats.Collisions)
	fmt.Fprintf(w, "  Requeues: %d\n", stats.Requeues)
	fmt.Fprintf(w, "  Passes: %d\n", stats.Passes)
	if stats.SkippedFeatures > 0 {
		fmt.Fprintf(w, "  Skipped features: %d\n", stats.SkippedFeatures)
	}
	if result.Truncated {
		fmt.Fprintf(w, "  WARNING: pass limit reached, unresolved rows were ignored\n")
	}
}

func writeReport(path string, result *merge.MergeResult, logger *slog.Logger) error {
	w, err := ingest.Create(path)
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	if err := report.WriteMatchReport(w, result.Outcomes); err != nil {
		logging.SafeCloseWithLogging(w, logger, "report_file")
		return fmt.Errorf("writing report: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	return nil
}

// dumpState prints the final statistics and blacklist for debugging
func dumpState(w io.Writer, result *merge.MergeResult) {
	cfg := spew.ConfigState{Indent: "  ", SortKeys: true, DisablePointerAddresses: true}
	fmt.Fprintf(w, "run %s final state:\n", result.RunID)
	cfg.Fdump(w, result.Stats, result.Blacklist)
}

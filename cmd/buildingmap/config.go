package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/campus-outlines/buildingmap/internal/appconf"
)

// Config holds the CLI configuration of a merge run
type Config struct {
	// Input/output paths
	RowsPath     string
	OutlinesPath string
	OutputPath   string
	ReportPath   string
	MetricsPath  string

	// Config sources
	ConfigPath string
	EnvFile    string

	// Flag values; applied only when set on the command line
	Env           string
	Threshold     float64
	NameWeighting bool
	Similarity    string
	VertexMode    string
	MaxPasses     int
	NoIndex       bool
	LogLevel      string
	LogFormat     string
	Verbose       bool
}

func addSettingFlags(cmd *cobra.Command, config *Config) {
	flags := cmd.Flags()
	flags.StringVar(&config.ConfigPath, "config", "", "JSON or YAML config file")
	flags.StringVar(&config.EnvFile, "env-file", ".env", "File of BUILDINGMAP_* variables loaded before reading the environment")
	flags.StringVar(&config.Env, "env", "development", "Environment (development|test|production)")
	flags.Float64Var(&config.Threshold, "threshold", 0.008, "Largest accepted match cost in coordinate degrees")
	flags.BoolVar(&config.NameWeighting, "name-weighting", false, "Discount distances by name similarity")
	flags.StringVar(&config.Similarity, "similarity", "ratio", "Name similarity metric (ratio|jaro-winkler|levenshtein)")
	flags.StringVar(&config.VertexMode, "vertex-mode", "minimum", "Vertex distance mode (minimum|running-best)")
	flags.IntVar(&config.MaxPasses, "max-passes", 0, "Cap on rows taken off the work queue (0 derives a bound)")
	flags.BoolVar(&config.NoIndex, "no-index", false, "Score every outline instead of prefiltering with an R-tree")
	flags.StringVar(&config.LogLevel, "log-level", "info", "Log level (debug|info|warn|error)")
	flags.StringVar(&config.LogFormat, "log-format", "text", "Log format (text|json)")
	flags.BoolVarP(&config.Verbose, "verbose", "v", false, "Dump the final run state")
}

// resolveSettings layers defaults, the config file, the environment and changed flags,
// in increasing precedence
func resolveSettings(cmd *cobra.Command, config *Config) (*appconf.Config, error) {
	file := appconf.DefaultFileConfig()
	if config.ConfigPath != "" {
		loaded, err := appconf.LoadFromFile(config.ConfigPath)
		if err != nil {
			return nil, err
		}
		file = loaded
	}

	if err := appconf.LoadDotEnv(config.EnvFile); err != nil {
		return nil, err
	}
	if err := file.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("env") {
		file.Env = config.Env
	}
	if flags.Changed("threshold") {
		file.Threshold = config.Threshold
	}
	if flags.Changed("name-weighting") {
		file.NameWeighting = config.NameWeighting
	}
	if flags.Changed("similarity") {
		file.Similarity = config.Similarity
	}
	if flags.Changed("vertex-mode") {
		file.VertexMode = config.VertexMode
	}
	if flags.Changed("max-passes") {
		file.MaxPasses = config.MaxPasses
	}
	if flags.Changed("no-index") {
		file.NoIndex = config.NoIndex
	}
	if flags.Changed("log-level") {
		file.LogLevel = config.LogLevel
	}
	if flags.Changed("log-format") {
		file.LogFormat = config.LogFormat
	}
	if flags.Changed("verbose") {
		file.Verbose = config.Verbose
	}

	return file.Resolve()
}

func requireFile(flag, path string) error {
	if path == "" {
		return fmt.Errorf("--%s is required", flag)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", path)
	}
	return nil
}

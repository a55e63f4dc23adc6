package appconf

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/campus-outlines/buildingmap/internal/logging"
	"github.com/campus-outlines/buildingmap/internal/textsim"
	"github.com/campus-outlines/buildingmap/pkg/merge/scorers"
)

const (
	// maxConfigFileSize bounds what LoadFromFile will read
	maxConfigFileSize = 10 * 1024 * 1024

	defaultThreshold = 0.008

	// Environment variables read by ApplyEnv
	EnvThreshold     = "BUILDINGMAP_THRESHOLD"
	EnvNameWeighting = "BUILDINGMAP_NAME_WEIGHTING"
	EnvSimilarity    = "BUILDINGMAP_SIMILARITY"
	EnvVertexMode    = "BUILDINGMAP_VERTEX_MODE"
	EnvLogLevel      = "BUILDINGMAP_LOG_LEVEL"
	EnvLogFormat     = "BUILDINGMAP_LOG_FORMAT"
)

// FileConfig is the on-disk (JSON or YAML) form of the configuration
type FileConfig struct {
	Env           string  `json:"env" yaml:"env"`
	Threshold     float64 `json:"threshold" yaml:"threshold"`
	NameWeighting bool    `json:"name-weighting" yaml:"name-weighting"`
	Similarity    string  `json:"similarity" yaml:"similarity"`
	VertexMode    string  `json:"vertex-mode" yaml:"vertex-mode"`
	MaxPasses     int     `json:"max-passes" yaml:"max-passes"`
	NoIndex       bool    `json:"no-index" yaml:"no-index"`
	LogLevel      string  `json:"log-level" yaml:"log-level"`
	LogFormat     string  `json:"log-format" yaml:"log-format"`
	Verbose       bool    `json:"verbose" yaml:"verbose"`
}

// DefaultFileConfig returns a configuration with every default applied
func DefaultFileConfig() *FileConfig {
	c := &FileConfig{Threshold: defaultThreshold}
	c.setDefaults()
	return c
}

// LoadFromFile reads a JSON or YAML (.yaml/.yml) config file, applies defaults and validates it
func LoadFromFile(path string) (*FileConfig, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Decoding over the default leaves it in place only when the key is absent,
	// so an explicit zero threshold reaches validate.
	config := FileConfig{Threshold: defaultThreshold}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	}

	config.setDefaults()
	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &config, nil
}

// LoadDotEnv loads variables from a .env file without overriding ones already set.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides fields from BUILDINGMAP_* variables found through lookup
// (os.LookupEnv when nil)
func (c *FileConfig) ApplyEnv(lookup func(string) (string, bool)) error {
	if lookup == nil {
		lookup = os.LookupEnv
	}

	if v, ok := lookup(EnvThreshold); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvThreshold, v, err)
		}
		c.Threshold = f
	}
	if v, ok := lookup(EnvNameWeighting); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", EnvNameWeighting, v, err)
		}
		c.NameWeighting = b
	}
	if v, ok := lookup(EnvSimilarity); ok && v != "" {
		c.Similarity = v
	}
	if v, ok := lookup(EnvVertexMode); ok && v != "" {
		c.VertexMode = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvLogFormat); ok && v != "" {
		c.LogFormat = v
	}
	return nil
}

func (c *FileConfig) setDefaults() {
	if c.Env == "" {
		c.Env = "development"
	}
	if c.Similarity == "" {
		c.Similarity = string(textsim.AlgorithmRatio)
	}
	if c.VertexMode == "" {
		c.VertexMode = scorers.VertexMinimum.String()
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = string(logging.FormatText)
	}
}

func (c *FileConfig) validate() error {
	if c.Env != "development" && c.Env != "test" && c.Env != "production" {
		return fmt.Errorf("env must be one of: development, test, production (got %q)", c.Env)
	}
	if c.Threshold <= 0 || math.IsNaN(c.Threshold) || math.IsInf(c.Threshold, 0) {
		return fmt.Errorf("threshold must be a positive number (got %v)", c.Threshold)
	}
	if c.MaxPasses < 0 {
		return fmt.Errorf("max-passes must not be negative (got %d)", c.MaxPasses)
	}
	if _, err := textsim.ForAlgorithm(textsim.Algorithm(strings.ToLower(c.Similarity))); err != nil {
		return fmt.Errorf("similarity: %w", err)
	}
	if _, err := scorers.ParseVertexMode(c.VertexMode); err != nil {
		return fmt.Errorf("vertex-mode: %w", err)
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log-level: %w", err)
	}
	if _, err := logging.ParseFormat(c.LogFormat); err != nil {
		return fmt.Errorf("log-format: %w", err)
	}
	return nil
}

// Resolve applies defaults, validates and converts to a Config.
// Call it after every override has been applied.
func (c *FileConfig) Resolve() (*Config, error) {
	c.setDefaults()
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	config := c.ToAppConfig()
	return &config, nil
}

// ToAppConfig converts a validated FileConfig to a Config
func (c *FileConfig) ToAppConfig() Config {
	mode, _ := scorers.ParseVertexMode(c.VertexMode)
	level, _ := logging.ParseLevel(c.LogLevel)
	format, _ := logging.ParseFormat(c.LogFormat)

	return Config{
		Env:             EnvFlagToEnvironment(c.Env),
		Threshold:       c.Threshold,
		NameWeighting:   c.NameWeighting,
		Similarity:      textsim.Algorithm(strings.ToLower(c.Similarity)),
		VertexMode:      mode,
		MaxPasses:       c.MaxPasses,
		UseSpatialIndex: !c.NoIndex,
		LogLevel:        level,
		LogFormat:       format,
		Verbose:         c.Verbose,
	}
}

package appconf

import (
	"log/slog"

	"github.com/campus-outlines/buildingmap/internal/logging"
	"github.com/campus-outlines/buildingmap/internal/textsim"
	"github.com/campus-outlines/buildingmap/pkg/merge/scorers"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// EnvFlagToEnvironment maps an exact lower-case flag value to an Environment.
// Anything else is Development.
func EnvFlagToEnvironment(env string) Environment {
	switch env {
	case "test":
		return Test
	case "production":
		return Production
	default:
		return Development
	}
}

// Config is the resolved configuration of one run
type Config struct {
	Env             Environment
	Threshold       float64
	NameWeighting   bool
	Similarity      textsim.Algorithm
	VertexMode      scorers.VertexMode
	MaxPasses       int
	UseSpatialIndex bool
	LogLevel        slog.Level
	LogFormat       logging.Format
	// Verbose dumps the final run state after a merge
	Verbose bool
}

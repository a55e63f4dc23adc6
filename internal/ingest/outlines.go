package ingest

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/paulmach/orb/geojson"

	"github.com/campus-outlines/buildingmap/internal/logging"
)

// DefaultOutputExt is appended to an output name given without an extension
const DefaultOutputExt = ".geojson"

// ReadOutlines parses a GeoJSON FeatureCollection
func ReadOutlines(r io.Reader) (*geojson.FeatureCollection, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read outline collection: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse outline collection: %w", err)
	}
	return fc, nil
}

// ReadOutlinesFile reads a FeatureCollection from path, decompressing by extension
func ReadOutlinesFile(path string, logger *slog.Logger) (*geojson.FeatureCollection, error) {
	r, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer logging.SafeCloseWithLogging(r, logger, "outline_file")

	fc, err := ReadOutlines(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	logging.LogOperation(logger, "outlines_loaded",
		slog.String("path", path),
		slog.Int("features", len(fc.Features)))
	return fc, nil
}

// WriteCollection encodes fc as GeoJSON
func WriteCollection(w io.Writer, fc *geojson.FeatureCollection) error {
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("failed to encode feature collection: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write feature collection: %w", err)
	}
	return nil
}

// WriteCollectionFile writes fc to path, compressing by extension
func WriteCollectionFile(path string, fc *geojson.FeatureCollection, logger *slog.Logger) error {
	w, err := Create(path)
	if err != nil {
		return err
	}
	if err := WriteCollection(w, fc); err != nil {
		logging.SafeCloseWithLogging(w, logger, "output_file")
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	logging.LogOperation(logger, "output_written",
		slog.String("path", path),
		slog.Int("features", len(fc.Features)))
	return nil
}

// OutputPath appends DefaultOutputExt to a name that has no extension.
// A compression suffix alone does not count as an extension.
func OutputPath(name string) string {
	if baseExt(name) != "" {
		return name
	}
	codec := CodecForPath(name)
	if codec == CodecNone {
		return name + DefaultOutputExt
	}
	ext := filepath.Ext(name)
	return name[:len(name)-len(ext)] + DefaultOutputExt + ext
}

package dataset

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/UnknownOlympus/geomap/internal/models"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	flatgeobuf "github.com/tingold/orb-flatgeobuf"
)

// Loader reads the static city dataset fetched once at startup. GeoJSON feature
// collections are the primary format; FlatGeobuf files are supported for larger
// datasets. The loaded slice is never mutated afterwards.
type Loader struct {
	log *slog.Logger
}

// NewLoader creates a dataset loader.
func NewLoader(log *slog.Logger) *Loader {
	return &Loader{log: log}
}

// Load reads the dataset at path and converts its point features into cities.
// Features without point geometry are skipped. Callers that want silent
// degradation may ignore the error and start with an empty slice.
func (l *Loader) Load(path string) ([]models.CityFeature, error) {
	var (
		collection *geojson.FeatureCollection
		err        error
	)

	if strings.EqualFold(filepath.Ext(path), ".fgb") {
		collection, err = readFlatGeobuf(path)
	} else {
		collection, err = readGeoJSON(path)
	}
	if err != nil {
		return nil, err
	}

	cities := make([]models.CityFeature, 0, len(collection.Features))
	for _, feature := range collection.Features {
		point, ok := feature.Geometry.(orb.Point)
		if !ok {
			l.log.Debug("Skipping dataset feature without point geometry",
				"name", feature.Properties.MustString("name", ""))
			continue
		}

		cities = append(cities, models.CityFeature{
			Name:        feature.Properties.MustString("name", "Unknown location"),
			Description: feature.Properties.MustString("description", ""),
			Coords: models.Coordinates{
				Longitude: point.Lon(),
				Latitude:  point.Lat(),
			},
		})
	}

	l.log.Info("City dataset loaded", "path", path, "cities", len(cities))

	return cities, nil
}

// readGeoJSON parses a GeoJSON feature collection document.
func readGeoJSON(path string) (*geojson.FeatureCollection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset file: %w", err)
	}

	collection, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse dataset as a feature collection: %w", err)
	}

	return collection, nil
}

// readFlatGeobuf reads every feature of a FlatGeobuf file.
func readFlatGeobuf(path string) (*geojson.FeatureCollection, error) {
	reader, err := flatgeobuf.NewReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open flatgeobuf dataset: %w", err)
	}
	defer reader.Close()

	collection, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read flatgeobuf features: %w", err)
	}

	return collection, nil
}

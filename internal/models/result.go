package models

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// SearchResult is one ranked item returned by the platform's semantic search
// endpoint. The wire shape is consumed verbatim; geometry may arrive either as an
// inline GeoJSON object or as a serialized string in GeometryJSON.
type SearchResult struct {
	ID           string            `json:"id"`                      // ID is the platform-assigned embedding identifier.
	Name         string            `json:"name"`                    // Name is the display name of the matched feature.
	Similarity   float64           `json:"similarity"`              // Similarity is the relevance score, expected in [0,1].
	Geometry     *geojson.Geometry `json:"geometry,omitempty"`      // Geometry is the optional inline GeoJSON geometry.
	GeometryJSON string            `json:"geometry_json,omitempty"` // GeometryJSON is the optional serialized geometry.
	Properties   map[string]any    `json:"properties,omitempty"`    // Properties holds optional descriptive attributes.
}

// Point resolves the result's location to coordinates. It reports false when the
// result carries no geometry, when the serialized geometry cannot be parsed, or
// when the geometry is not a point. Callers are expected to skip such results
// silently when placing markers.
func (sr *SearchResult) Point() (Coordinates, bool) {
	geom := sr.Geometry
	if geom == nil && sr.GeometryJSON != "" {
		parsed, err := geojson.UnmarshalGeometry([]byte(sr.GeometryJSON))
		if err != nil {
			return Coordinates{}, false
		}
		geom = parsed
	}
	if geom == nil {
		return Coordinates{}, false
	}

	point, ok := geom.Geometry().(orb.Point)
	if !ok {
		return Coordinates{}, false
	}

	return Coordinates{Longitude: point.Lon(), Latitude: point.Lat()}, true
}

// Description returns the optional description property, if one was provided.
func (sr *SearchResult) Description() string {
	if sr.Properties == nil {
		return ""
	}
	desc, _ := sr.Properties["description"].(string)
	return desc
}

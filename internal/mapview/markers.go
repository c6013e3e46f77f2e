package mapview

import (
	"fmt"

	"github.com/UnknownOlympus/geomap/internal/models"
)

// Marker kinds. City markers come from the static dataset layer, result markers
// from the latest search. The page styles them differently.
const (
	KindCity   = "city"
	KindResult = "result"
)

// Marker is one point on the map overlay layer, ready to render.
type Marker struct {
	Longitude float64 `json:"lon"`   // Longitude of the marker.
	Latitude  float64 `json:"lat"`   // Latitude of the marker.
	Popup     string  `json:"popup"` // Popup is the text shown when the marker is clicked.
	Kind      string  `json:"kind"`  // Kind distinguishes city markers from result markers.
}

// Markers rebuilds the complete marker set from scratch: one marker per city,
// followed by one marker per search result that carries point geometry. Results
// without a usable point are skipped and raise no error. The inputs are read
// only; nothing is cached between calls, so the output always reflects exactly
// the arrays passed in.
func Markers(cities []models.CityFeature, results []models.SearchResult) []Marker {
	markers := make([]Marker, 0, len(cities)+len(results))

	for _, city := range cities {
		popup := city.Name
		if city.Description != "" {
			popup = fmt.Sprintf("%s: %s", city.Name, city.Description)
		}
		markers = append(markers, Marker{
			Longitude: city.Coords.Longitude,
			Latitude:  city.Coords.Latitude,
			Popup:     popup,
			Kind:      KindCity,
		})
	}

	for _, result := range results {
		coords, ok := result.Point()
		if !ok {
			continue
		}
		markers = append(markers, Marker{
			Longitude: coords.Longitude,
			Latitude:  coords.Latitude,
			Popup:     fmt.Sprintf("%s (%s)", result.Name, FormatSimilarity(result.Similarity)),
			Kind:      KindResult,
		})
	}

	return markers
}

// FormatSimilarity renders a similarity score as a percentage with one decimal
// place, e.g. 0.876 becomes "87.6%". Scores outside [0,1] are not clamped; the
// platform owns the score range.
func FormatSimilarity(similarity float64) string {
	return fmt.Sprintf("%.1f%%", similarity*100)
}

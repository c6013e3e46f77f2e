package models

// CityFeature is a single point from the static city dataset loaded at startup.
// The slice built from the dataset is immutable after load and shared by reference.
type CityFeature struct {
	Name        string      // Name is the display name of the city.
	Description string      // Description is an optional human-readable summary.
	Coords      Coordinates // Coords is the city location.
}

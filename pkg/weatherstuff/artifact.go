package weatherstuff

import (
	"context"
	"fmt"
	"strconv"
)

// ArtifactVariant distinguishes artifacts computed for the same coordinates.
type ArtifactVariant string

const (
	// VariantForecastShort is the short-range (1.5 day) forecast chart.
	VariantForecastShort ArtifactVariant = "forecast_short"
	// VariantForecastLong is the long-range (10 day) forecast chart.
	VariantForecastLong ArtifactVariant = "forecast_long"
	// VariantRadar is the precipitation radar animation.
	VariantRadar ArtifactVariant = "radar"
)

// Animated reports whether the variant renders as an animation.
func (v ArtifactVariant) Animated() bool {
	return v == VariantRadar
}

// ArtifactKey identifies one cached artifact.
//
// Coordinates compare with exact floating-point equality as received.
type ArtifactKey struct {
	Latitude  float64
	Longitude float64
	Variant   ArtifactVariant
}

// String renders the key with the shortest exact coordinate representation.
func (k ArtifactKey) String() string {
	return fmt.Sprintf(
		"%s:%s:%s",
		strconv.FormatFloat(k.Latitude, 'g', -1, 64),
		strconv.FormatFloat(k.Longitude, 'g', -1, 64),
		k.Variant,
	)
}

// Artifact is the metadata of one rendered and uploaded artifact.
type Artifact struct {
	// RemoteID is the image host's content-hash identifier.
	RemoteID string
	// URL is the public artifact URL.
	URL string
	// ThumbURL is the public thumbnail URL; animations reuse URL.
	ThumbURL string
	// Width is the artifact width in pixels.
	Width int
	// Height is the artifact height in pixels.
	Height int
	// Station is the weather station the forecast was computed for.
	Station string
	// StationDistance is the distance to Station in kilometers.
	StationDistance float64
	// CurrentTemperature is the latest observed temperature in degrees Celsius.
	CurrentTemperature float64
	// CurrentSummary is a short text description of current conditions.
	CurrentSummary string
	// Duration is the rendered time span in days.
	Duration float64
}

// ArtifactSource computes an artifact. It returns ErrNoArtifact when the key
// has no usable data.
type ArtifactSource interface {
	Produce(ctx context.Context, key ArtifactKey) (Artifact, error)
}

// ArtifactSourceFunc adapts a function to ArtifactSource.
type ArtifactSourceFunc func(ctx context.Context, key ArtifactKey) (Artifact, error)

// Produce calls f.
func (f ArtifactSourceFunc) Produce(ctx context.Context, key ArtifactKey) (Artifact, error) {
	return f(ctx, key)
}

// ArtifactCache memoizes ArtifactSource results.
type ArtifactCache interface {
	// Get returns the cached artifact for key, computing it on first use.
	Get(ctx context.Context, key ArtifactKey) (Artifact, error)
}

// Location is one geocoded place.
type Location struct {
	Latitude  float64
	Longitude float64
	Name      string
}

// Geocoder resolves free text into candidate locations.
type Geocoder interface {
	Search(ctx context.Context, query string) ([]Location, error)
}

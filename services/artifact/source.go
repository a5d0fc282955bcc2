// Package artifact renders weather artifacts and uploads them to the image
// host, producing the metadata the artifact cache stores.
package artifact

import (
	"context"
	"fmt"

	"weatherstuff/pkg/weatherstuff"
	"weatherstuff/services/imagehost"
	"weatherstuff/services/render"
)

const radarSize = 512

// Renderer renders charts and radar loops.
type Renderer interface {
	Forecast(ctx context.Context, latitude, longitude, days float64) (render.Forecast, error)
	Radar(ctx context.Context, latitude, longitude float64) ([]byte, error)
}

// Uploader stores rendered artifacts on the image host.
type Uploader interface {
	UploadImage(ctx context.Context, image []byte) (imagehost.Image, error)
	UploadAnimation(ctx context.Context, animation []byte) (imagehost.Animation, error)
}

// Source implements weatherstuff.ArtifactSource with a render and upload step.
type Source struct {
	renderer Renderer
	uploader Uploader
}

// NewSource creates an artifact source.
func NewSource(renderer Renderer, uploader Uploader) (*Source, error) {
	if renderer == nil {
		return nil, fmt.Errorf("new artifact source: nil renderer")
	}
	if uploader == nil {
		return nil, fmt.Errorf("new artifact source: nil uploader")
	}

	return &Source{renderer: renderer, uploader: uploader}, nil
}

// Produce renders and uploads the artifact for key.
func (s *Source) Produce(ctx context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
	switch key.Variant {
	case weatherstuff.VariantForecastShort, weatherstuff.VariantForecastLong:
		return s.produceForecast(ctx, key)
	case weatherstuff.VariantRadar:
		return s.produceRadar(ctx, key)
	default:
		return weatherstuff.Artifact{}, fmt.Errorf("produce %s: unsupported variant %q", key, key.Variant)
	}
}

func (s *Source) produceForecast(ctx context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
	forecast, err := s.renderer.Forecast(ctx, key.Latitude, key.Longitude, forecastDays(key.Variant))
	if err != nil {
		return weatherstuff.Artifact{}, fmt.Errorf("produce %s: %w", key, err)
	}

	image, err := s.uploader.UploadImage(ctx, forecast.Plot)
	if err != nil {
		return weatherstuff.Artifact{}, fmt.Errorf("produce %s: %w", key, err)
	}

	return weatherstuff.Artifact{
		RemoteID:           image.ID,
		URL:                image.Link,
		ThumbURL:           image.ThumbURL,
		Width:              image.Width,
		Height:             image.Height,
		Station:            forecast.Station,
		StationDistance:    forecast.StationDistance,
		CurrentTemperature: forecast.CurrentTemp,
		CurrentSummary:     forecast.CurrentSummary,
		Duration:           forecast.Duration,
	}, nil
}

func (s *Source) produceRadar(ctx context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
	animation, err := s.renderer.Radar(ctx, key.Latitude, key.Longitude)
	if err != nil {
		return weatherstuff.Artifact{}, fmt.Errorf("produce %s: %w", key, err)
	}

	uploaded, err := s.uploader.UploadAnimation(ctx, animation)
	if err != nil {
		return weatherstuff.Artifact{}, fmt.Errorf("produce %s: %w", key, err)
	}

	return weatherstuff.Artifact{
		RemoteID: uploaded.ID,
		URL:      uploaded.Link,
		ThumbURL: uploaded.Link,
		Width:    radarSize,
		Height:   radarSize,
	}, nil
}

func forecastDays(variant weatherstuff.ArtifactVariant) float64 {
	if variant == weatherstuff.VariantForecastShort {
		return 1.5
	}

	return 10
}

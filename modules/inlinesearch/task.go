package inlinesearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"weatherstuff/pkg/weatherstuff"
)

const radarSize = 512

// Candidate is one location paired with the variant to render for it.
type Candidate struct {
	Location weatherstuff.Location
	Variant  weatherstuff.ArtifactVariant
}

// Key returns the cache key of the candidate.
func (c Candidate) Key() weatherstuff.ArtifactKey {
	return weatherstuff.ArtifactKey{
		Latitude:  c.Location.Latitude,
		Longitude: c.Location.Longitude,
		Variant:   c.Variant,
	}
}

// expandCandidates turns each location into a still forecast and a radar candidate.
func expandCandidates(locations []weatherstuff.Location) []Candidate {
	candidates := make([]Candidate, 0, 2*len(locations))
	for _, location := range locations {
		candidates = append(candidates,
			Candidate{Location: location, Variant: weatherstuff.VariantForecastLong},
			Candidate{Location: location, Variant: weatherstuff.VariantRadar},
		)
	}

	return candidates
}

// Produce resolves one candidate through the artifact cache.
//
// It reports false when the candidate yields nothing; compute failures are
// logged and never surface to the caller.
func Produce(
	ctx context.Context,
	cache weatherstuff.ArtifactCache,
	logger *slog.Logger,
	candidate Candidate,
	query string,
) (item weatherstuff.ResultItem, ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorContext(ctx, "inline producer panic recovered",
				"key", candidate.Key().String(),
				"panic", fmt.Sprint(recovered),
			)
			item, ok = weatherstuff.ResultItem{}, false
		}
	}()

	artifact, err := cache.Get(ctx, candidate.Key())
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, weatherstuff.ErrNoArtifact) || errors.Is(err, context.Canceled) {
			level = slog.LevelDebug
		}
		logger.Log(ctx, level, "inline producer skipped candidate",
			"key", candidate.Key().String(),
			"error", err,
		)
		return weatherstuff.ResultItem{}, false
	}

	item = resultFromArtifact(candidate, artifact, query)
	if err := item.Validate(); err != nil {
		logger.WarnContext(ctx, "inline producer dropped invalid artifact",
			"key", candidate.Key().String(),
			"error", err,
		)
		return weatherstuff.ResultItem{}, false
	}

	return item, true
}

func resultFromArtifact(candidate Candidate, artifact weatherstuff.Artifact, query string) weatherstuff.ResultItem {
	if candidate.Variant.Animated() {
		caption := fmt.Sprintf("Radar for %s. Searched for '%s'.", candidate.Location.Name, query)
		return weatherstuff.ResultItem{
			ID:       artifact.RemoteID,
			Kind:     weatherstuff.ResultKindAnimation,
			URL:      artifact.URL,
			ThumbURL: artifact.URL,
			Width:    radarSize,
			Height:   radarSize,
			Title:    candidate.Location.Name,
			Caption:  caption,
		}
	}

	station := artifact.Station
	if station == "" {
		station = candidate.Location.Name
	}
	thumb := artifact.ThumbURL
	if thumb == "" {
		thumb = artifact.URL
	}

	return weatherstuff.ResultItem{
		ID:       artifact.RemoteID,
		Kind:     weatherstuff.ResultKindStill,
		URL:      artifact.URL,
		ThumbURL: thumb,
		Width:    artifact.Width,
		Height:   artifact.Height,
		Title:    station,
		Caption:  fmt.Sprintf("Weather for station %s. Searched for '%s'.", station, query),
	}
}

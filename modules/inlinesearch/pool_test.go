package inlinesearch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"weatherstuff/pkg/weatherstuff"
)

func testLocations(count int) []weatherstuff.Location {
	locations := make([]weatherstuff.Location, 0, count)
	for index := range count {
		locations = append(locations, weatherstuff.Location{
			Latitude:  float64(index + 1),
			Longitude: float64(index + 1),
			Name:      "place",
		})
	}

	return locations
}

func artifactForKey(key weatherstuff.ArtifactKey) weatherstuff.Artifact {
	return weatherstuff.Artifact{
		RemoteID: key.String(),
		URL:      "https://img.example/" + key.String(),
		Station:  "station",
	}
}

type emitRecorder struct {
	mu     sync.Mutex
	items  []weatherstuff.ResultItem
	accept bool
}

func (r *emitRecorder) emit(item weatherstuff.ResultItem) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items = append(r.items, item)

	return r.accept
}

func (r *emitRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.items)
}

func TestPoolRunBoundsConcurrency(t *testing.T) {
	t.Parallel()

	var (
		current atomic.Int64
		peak    atomic.Int64
	)
	cache := cacheFunc(func(_ context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
		now := current.Add(1)
		defer current.Add(-1)
		for {
			seen := peak.Load()
			if now <= seen || peak.CompareAndSwap(seen, now) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return artifactForKey(key), nil
	})

	pool, err := NewPool(&stubGeocoder{locations: testLocations(6)}, cache,
		WithConcurrency(3),
		WithPoolLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("new pool failed: %v", err)
	}

	recorder := &emitRecorder{accept: true}
	pool.Run(context.Background(), "query", recorder.emit)

	if got := recorder.count(); got != 12 {
		t.Fatalf("emitted = %d, want 12", got)
	}
	if got := peak.Load(); got > 3 {
		t.Fatalf("peak concurrency = %d, want <= 3", got)
	}
	seen := make(map[string]struct{})
	for _, item := range recorder.items {
		if _, dup := seen[item.ID]; dup {
			t.Fatalf("duplicate item %s", item.ID)
		}
		seen[item.ID] = struct{}{}
	}
}

func TestPoolRunIsolatesFailures(t *testing.T) {
	t.Parallel()

	cache := cacheFunc(func(_ context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
		switch {
		case key.Latitude == 2 && key.Variant == weatherstuff.VariantRadar:
			panic("radar renderer crashed")
		case key.Latitude == 3:
			return weatherstuff.Artifact{}, weatherstuff.ErrNoArtifact
		default:
			return artifactForKey(key), nil
		}
	})

	pool, err := NewPool(&stubGeocoder{locations: testLocations(3)}, cache,
		WithConcurrency(2),
		WithPoolLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("new pool failed: %v", err)
	}

	recorder := &emitRecorder{accept: true}
	pool.Run(context.Background(), "query", recorder.emit)

	if got := recorder.count(); got != 3 {
		t.Fatalf("emitted = %d, want 3", got)
	}
}

func TestPoolRunCapsLocations(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	cache := cacheFunc(func(_ context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
		calls.Add(1)
		return artifactForKey(key), nil
	})

	pool, err := NewPool(&stubGeocoder{locations: testLocations(5)}, cache,
		WithMaxLocations(2),
		WithPoolLogger(discardLogger()),
	)
	if err != nil {
		t.Fatalf("new pool failed: %v", err)
	}
	if pool.MaxCandidates() != 4 {
		t.Fatalf("max candidates = %d, want 4", pool.MaxCandidates())
	}

	pool.Run(context.Background(), "query", (&emitRecorder{accept: true}).emit)
	if got := calls.Load(); got != 4 {
		t.Fatalf("cache calls = %d, want 4", got)
	}
}

func TestPoolRunStopsOnGeocodeFailureOrCancel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		geocoder *stubGeocoder
		cancel   bool
	}{
		{name: "geocode failure", geocoder: &stubGeocoder{err: errors.New("nominatim: 429")}},
		{name: "canceled before start", geocoder: &stubGeocoder{locations: testLocations(4)}, cancel: true},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			var calls atomic.Int64
			cache := cacheFunc(func(_ context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
				calls.Add(1)
				return artifactForKey(key), nil
			})
			pool, err := NewPool(testCase.geocoder, cache, WithPoolLogger(discardLogger()))
			if err != nil {
				t.Fatalf("new pool failed: %v", err)
			}

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			if testCase.cancel {
				cancel()
			}

			recorder := &emitRecorder{accept: true}
			pool.Run(ctx, "query", recorder.emit)
			if recorder.count() != 0 || calls.Load() != 0 {
				t.Fatalf("emitted %d with %d cache calls, want none", recorder.count(), calls.Load())
			}
		})
	}
}

func TestNewPoolValidation(t *testing.T) {
	t.Parallel()

	cache := cacheFunc(func(context.Context, weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
		return weatherstuff.Artifact{}, nil
	})
	if _, err := NewPool(nil, cache); err == nil {
		t.Fatal("expected nil geocoder error")
	}
	if _, err := NewPool(&stubGeocoder{}, nil); err == nil {
		t.Fatal("expected nil cache error")
	}
}

package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"weatherstuff/pkg/weatherstuff"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

const (
	defaultComputeTimeout = 2 * time.Minute
	tracerName            = "weatherstuff/modules/artifactcache"
)

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Entries  int
	Hits     uint64
	Misses   uint64
	Computes uint64
	Failures uint64
	Clears   uint64
}

// CacheOption mutates cache configuration.
type CacheOption func(*Cache)

// WithComputeTimeout bounds one source computation. The bound applies even
// after every waiting caller has gone away.
func WithComputeTimeout(timeout time.Duration) CacheOption {
	return func(cache *Cache) {
		if timeout > 0 {
			cache.computeTimeout = timeout
		}
	}
}

// WithTracer overrides the tracer used for compute spans.
func WithTracer(tracer trace.Tracer) CacheOption {
	return func(cache *Cache) {
		if tracer != nil {
			cache.tracer = tracer
		}
	}
}

// Cache memoizes ArtifactSource results by exact key.
//
// Every stored entry belongs to one generation. Clear starts a new generation,
// and a computation that began in an older generation returns its result to
// its waiters without storing it.
type Cache struct {
	source         weatherstuff.ArtifactSource
	computeTimeout time.Duration
	tracer         trace.Tracer

	mu         sync.RWMutex
	generation uint64
	entries    map[weatherstuff.ArtifactKey]weatherstuff.Artifact

	flights singleflight.Group

	hits     atomic.Uint64
	misses   atomic.Uint64
	computes atomic.Uint64
	failures atomic.Uint64
	clears   atomic.Uint64
}

// NewCache creates a cache in front of source.
func NewCache(source weatherstuff.ArtifactSource, options ...CacheOption) (*Cache, error) {
	if source == nil {
		return nil, fmt.Errorf("new artifact cache: nil source")
	}

	cache := &Cache{
		source:         source,
		computeTimeout: defaultComputeTimeout,
		tracer:         otel.Tracer(tracerName),
		entries:        make(map[weatherstuff.ArtifactKey]weatherstuff.Artifact),
	}
	for _, option := range options {
		option(cache)
	}

	return cache, nil
}

// Get returns the artifact for key, computing it once on a miss.
//
// A canceled ctx releases the caller but not the computation; its result is
// still stored for later callers.
func (c *Cache) Get(ctx context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
	key = normalizeKey(key)

	c.mu.RLock()
	artifact, found := c.entries[key]
	generation := c.generation
	c.mu.RUnlock()
	if found {
		c.hits.Add(1)
		return artifact, nil
	}
	c.misses.Add(1)

	flightKey := strconv.FormatUint(generation, 10) + "/" + key.String()
	results := c.flights.DoChan(flightKey, func() (any, error) {
		return c.compute(ctx, key, generation)
	})

	select {
	case <-ctx.Done():
		return weatherstuff.Artifact{}, fmt.Errorf("artifact cache get %s: %w", key, ctx.Err())
	case result := <-results:
		if result.Err != nil {
			return weatherstuff.Artifact{}, fmt.Errorf("artifact cache get %s: %w", key, result.Err)
		}
		return result.Val.(weatherstuff.Artifact), nil
	}
}

func (c *Cache) compute(
	ctx context.Context,
	key weatherstuff.ArtifactKey,
	generation uint64,
) (artifact weatherstuff.Artifact, err error) {
	computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.computeTimeout)
	defer cancel()

	computeCtx, span := c.tracer.Start(computeCtx, "artifactcache.compute", trace.WithAttributes(
		attribute.Float64("artifact.latitude", key.Latitude),
		attribute.Float64("artifact.longitude", key.Longitude),
		attribute.String("artifact.variant", string(key.Variant)),
	))
	defer span.End()

	// A caller may miss just as an earlier flight for the same key lands.
	c.mu.RLock()
	stored, found := c.entries[key]
	current := c.generation == generation
	c.mu.RUnlock()
	if found && current {
		return stored, nil
	}

	c.computes.Add(1)
	defer func() {
		if recovered := recover(); recovered != nil {
			err = fmt.Errorf("compute %s: panic recovered: %v", key, recovered)
		}
		if err != nil {
			c.failures.Add(1)
			if !errors.Is(err, weatherstuff.ErrNoArtifact) {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			}
		}
	}()

	artifact, err = c.source.Produce(computeCtx, key)
	if err != nil {
		return weatherstuff.Artifact{}, err
	}
	span.SetAttributes(attribute.String("artifact.remote_id", artifact.RemoteID))

	c.mu.Lock()
	if c.generation == generation {
		c.entries[key] = artifact
	}
	c.mu.Unlock()

	return artifact, nil
}

// Clear drops every entry and returns how many were dropped.
func (c *Cache) Clear() int {
	c.mu.Lock()
	dropped := len(c.entries)
	c.entries = make(map[weatherstuff.ArtifactKey]weatherstuff.Artifact)
	c.generation++
	c.mu.Unlock()

	c.clears.Add(1)

	return dropped
}

// Stats returns current cache counters.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()

	return Stats{
		Entries:  entries,
		Hits:     c.hits.Load(),
		Misses:   c.misses.Load(),
		Computes: c.computes.Load(),
		Failures: c.failures.Load(),
		Clears:   c.clears.Load(),
	}
}

// normalizeKey folds negative zero so equal coordinates share one flight key.
func normalizeKey(key weatherstuff.ArtifactKey) weatherstuff.ArtifactKey {
	if key.Latitude == 0 {
		key.Latitude = 0
	}
	if key.Longitude == 0 {
		key.Longitude = 0
	}

	return key
}

package inlinesearch

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"weatherstuff/pkg/weatherstuff"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const (
	defaultConcurrency  = 4
	defaultMaxLocations = 10
	tracerName          = "weatherstuff/modules/inlinesearch"
)

// PoolOption mutates producer pool configuration.
type PoolOption func(*Pool)

// WithConcurrency bounds how many candidates are produced at once.
func WithConcurrency(concurrency int) PoolOption {
	return func(pool *Pool) {
		if concurrency > 0 {
			pool.concurrency = concurrency
		}
	}
}

// WithMaxLocations caps how many geocoded locations become candidates.
func WithMaxLocations(maxLocations int) PoolOption {
	return func(pool *Pool) {
		if maxLocations > 0 {
			pool.maxLocations = maxLocations
		}
	}
}

// WithPoolLogger sets the pool logger.
func WithPoolLogger(logger *slog.Logger) PoolOption {
	return func(pool *Pool) {
		if logger != nil {
			pool.logger = logger
		}
	}
}

// WithPoolTracer overrides the tracer used for pool spans.
func WithPoolTracer(tracer trace.Tracer) PoolOption {
	return func(pool *Pool) {
		if tracer != nil {
			pool.tracer = tracer
		}
	}
}

// Pool fans out producer tasks for one query with bounded concurrency.
type Pool struct {
	geocoder     weatherstuff.Geocoder
	cache        weatherstuff.ArtifactCache
	concurrency  int
	maxLocations int
	logger       *slog.Logger
	tracer       trace.Tracer
}

// NewPool creates a producer pool.
func NewPool(geocoder weatherstuff.Geocoder, cache weatherstuff.ArtifactCache, options ...PoolOption) (*Pool, error) {
	if geocoder == nil {
		return nil, fmt.Errorf("new producer pool: nil geocoder")
	}
	if cache == nil {
		return nil, fmt.Errorf("new producer pool: nil artifact cache")
	}

	pool := &Pool{
		geocoder:     geocoder,
		cache:        cache,
		concurrency:  defaultConcurrency,
		maxLocations: defaultMaxLocations,
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
	}
	for _, option := range options {
		option(pool)
	}

	return pool, nil
}

// MaxCandidates returns the largest fan-out a single query can produce.
func (p *Pool) MaxCandidates() int {
	return 2 * p.maxLocations
}

// Run geocodes query and emits one result per successful candidate in
// completion order. Work not yet started is skipped once ctx is canceled.
func (p *Pool) Run(ctx context.Context, query string, emit EmitFunc) {
	ctx, span := p.tracer.Start(ctx, "inlinesearch.pool", trace.WithAttributes(
		attribute.String("query.text", query),
	))
	defer span.End()

	locations, err := p.geocoder.Search(ctx, query)
	if err != nil {
		p.logger.WarnContext(ctx, "inline pool geocode failed",
			"query", query,
			"error", err,
		)
		span.RecordError(err)
		return
	}
	if len(locations) > p.maxLocations {
		locations = locations[:p.maxLocations]
	}
	candidates := expandCandidates(locations)
	span.SetAttributes(attribute.Int("pool.candidates", len(candidates)))

	var group errgroup.Group
	group.SetLimit(p.concurrency)

	var emitted atomic.Int64
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			break
		}
		group.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			item, ok := Produce(ctx, p.cache, p.logger, candidate, query)
			if ok && emit(item) {
				emitted.Add(1)
			}
			return nil
		})
	}
	_ = group.Wait()

	span.SetAttributes(attribute.Int64("pool.emitted", emitted.Load()))
	p.logger.DebugContext(ctx, "inline pool finished",
		"query", query,
		"locations", len(locations),
		"candidates", len(candidates),
		"emitted", emitted.Load(),
	)
}

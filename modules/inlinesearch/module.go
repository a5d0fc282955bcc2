package inlinesearch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"weatherstuff/pkg/weatherstuff"
)

const (
	capabilityName        = "inline-search"
	defaultHandlerWorkers = 8
	defaultHandlerTimeout = 30 * time.Second
	defaultHandlerBuffer  = 256
	// Telegram rejects answers to inline queries that sat unanswered for long.
	defaultMaxQueueAge = 10 * time.Second
)

// Config collects tunables of the inline search module.
type Config struct {
	Concurrency  int
	MaxLocations int
	GracePeriod  time.Duration
	FirstWait    time.Duration
	NextWait     time.Duration
	MaxPageSize  int
	CacheTime    time.Duration
	Workers      int
	Timeout      time.Duration
	MaxQueueAge  time.Duration
}

// Option mutates inline search module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithAnswerer injects the inline answerer, bypassing service lookup.
func WithAnswerer(answerer weatherstuff.InlineAnswerer) Option {
	return func(module *Module) {
		if answerer != nil {
			module.answerer = answerer
		}
	}
}

// WithArtifactCache injects the artifact cache, bypassing service lookup.
func WithArtifactCache(cache weatherstuff.ArtifactCache) Option {
	return func(module *Module) {
		if cache != nil {
			module.cache = cache
		}
	}
}

// WithGeocoder injects the geocoder, bypassing service lookup.
func WithGeocoder(geocoder weatherstuff.Geocoder) Option {
	return func(module *Module) {
		if geocoder != nil {
			module.geocoder = geocoder
		}
	}
}

// WithConfig applies tunables; zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(module *Module) {
		module.cfg = cfg
	}
}

// Module serves inline queries from streaming query sessions.
type Module struct {
	logger   *slog.Logger
	answerer weatherstuff.InlineAnswerer
	cache    weatherstuff.ArtifactCache
	geocoder weatherstuff.Geocoder
	cfg      Config

	registry *Registry
	pager    *Pager
}

// New creates an inline search module.
func New(options ...Option) *Module {
	module := &Module{
		logger: slog.Default(),
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "inline-search"
}

// Spec declares the inline query handler.
func (m *Module) Spec() weatherstuff.ModuleSpec {
	var required []string
	if m.answerer == nil {
		required = append(required, weatherstuff.ServiceInlineAnswerer)
	}
	if m.cache == nil {
		required = append(required, weatherstuff.ServiceArtifactCache)
	}
	if m.geocoder == nil {
		required = append(required, weatherstuff.ServiceGeocoder)
	}

	subscription := weatherstuff.NewDefaultSubscriptionSpec(capabilityName)
	subscription.Buffer = defaultHandlerBuffer
	subscription.Workers = positiveOr(m.cfg.Workers, defaultHandlerWorkers)
	subscription.HandlerTimeout = durationOr(m.cfg.Timeout, defaultHandlerTimeout)
	subscription.Backpressure = weatherstuff.BackpressureDropOldest
	subscription.MaxQueueAge = durationOr(m.cfg.MaxQueueAge, defaultMaxQueueAge)

	return weatherstuff.ModuleSpec{
		Handlers: []weatherstuff.ModuleHandler{
			{
				Capability: weatherstuff.Capability{
					Name:        capabilityName,
					Description: "streams weather charts and radar loops for inline searches page by page",
					Interest: weatherstuff.InterestSet{
						Kinds:              []weatherstuff.EventKind{weatherstuff.EventKindInlineQuery},
						RequireInlineQuery: true,
					},
					RequiredServices: required,
				},
				Subscription: subscription,
				Handler:      m.handleInlineQuery,
			},
		},
	}
}

// OnRegister resolves collaborators and builds the session machinery.
func (m *Module) OnRegister(_ context.Context, runtime weatherstuff.ModuleRuntime) error {
	logger, err := weatherstuff.ResolveAs[*slog.Logger](runtime.Services(), weatherstuff.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, weatherstuff.ErrServiceNotFound):
	default:
		return fmt.Errorf("inline search resolve logger: %w", err)
	}

	if m.answerer == nil {
		m.answerer, err = weatherstuff.ResolveAs[weatherstuff.InlineAnswerer](
			runtime.Services(),
			weatherstuff.ServiceInlineAnswerer,
		)
		if err != nil {
			return fmt.Errorf("inline search resolve inline answerer: %w", err)
		}
	}
	if m.cache == nil {
		m.cache, err = weatherstuff.ResolveAs[weatherstuff.ArtifactCache](
			runtime.Services(),
			weatherstuff.ServiceArtifactCache,
		)
		if err != nil {
			return fmt.Errorf("inline search resolve artifact cache: %w", err)
		}
	}
	if m.geocoder == nil {
		m.geocoder, err = weatherstuff.ResolveAs[weatherstuff.Geocoder](
			runtime.Services(),
			weatherstuff.ServiceGeocoder,
		)
		if err != nil {
			return fmt.Errorf("inline search resolve geocoder: %w", err)
		}
	}

	return m.build()
}

func (m *Module) build() error {
	pool, err := NewPool(m.geocoder, m.cache,
		WithConcurrency(m.cfg.Concurrency),
		WithMaxLocations(m.cfg.MaxLocations),
		WithPoolLogger(m.logger),
	)
	if err != nil {
		return fmt.Errorf("inline search: %w", err)
	}

	registry, err := NewRegistry(pool,
		WithGracePeriod(m.cfg.GracePeriod),
		WithStreamCapacity(pool.MaxCandidates()),
		WithRegistryLogger(m.logger),
	)
	if err != nil {
		return fmt.Errorf("inline search: %w", err)
	}

	pager, err := NewPager(registry, m.answerer,
		WithFirstWait(m.cfg.FirstWait),
		WithNextWait(m.cfg.NextWait),
		WithMaxPageSize(m.cfg.MaxPageSize),
		WithCacheTime(m.cfg.CacheTime),
		WithPagerLogger(m.logger),
	)
	if err != nil {
		return fmt.Errorf("inline search: %w", err)
	}

	m.registry = registry
	m.pager = pager

	return nil
}

// Registry returns the session registry built during registration.
func (m *Module) Registry() *Registry {
	return m.registry
}

// OnStart starts the module lifecycle.
func (m *Module) OnStart(ctx context.Context) error {
	if m.pager == nil {
		return fmt.Errorf("inline search start: module not registered")
	}

	m.logger.InfoContext(ctx,
		"inline search module started",
		"module", m.Name(),
	)

	return nil
}

// OnShutdown releases every live session and waits for their pools.
func (m *Module) OnShutdown(ctx context.Context) error {
	if m.registry == nil {
		return nil
	}

	sessions := m.registry.Len()
	if err := m.registry.Close(ctx); err != nil {
		return fmt.Errorf("inline search shutdown: %w", err)
	}

	m.logger.InfoContext(ctx,
		"inline search module shutdown",
		"module", m.Name(),
		"sessions", sessions,
	)

	return nil
}

func (m *Module) handleInlineQuery(ctx context.Context, event *weatherstuff.Event) error {
	return m.pager.Serve(ctx, event)
}

func positiveOr(value, fallback int) int {
	if value > 0 {
		return value
	}

	return fallback
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}

	return fallback
}

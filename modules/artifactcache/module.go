package artifactcache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"weatherstuff/pkg/weatherstuff"
)

const (
	defaultClearInterval = 10 * time.Minute
	capabilityName       = "artifact-cache"
)

// Option mutates artifact cache module configuration.
type Option func(*Module)

// WithLogger injects a logger directly, bypassing service lookup.
func WithLogger(logger *slog.Logger) Option {
	return func(module *Module) {
		if logger != nil {
			module.logger = logger
		}
	}
}

// WithSource injects the artifact source directly, bypassing service lookup.
func WithSource(source weatherstuff.ArtifactSource) Option {
	return func(module *Module) {
		if source != nil {
			module.source = source
		}
	}
}

// WithClearInterval sets how often the whole cache is dropped.
func WithClearInterval(interval time.Duration) Option {
	return func(module *Module) {
		if interval > 0 {
			module.clearInterval = interval
		}
	}
}

// WithCacheOptions forwards options to the underlying Cache.
func WithCacheOptions(options ...CacheOption) Option {
	return func(module *Module) {
		module.cacheOptions = append(module.cacheOptions, options...)
	}
}

// Module owns the shared artifact cache and its periodic clear loop.
type Module struct {
	logger        *slog.Logger
	source        weatherstuff.ArtifactSource
	clearInterval time.Duration
	cacheOptions  []CacheOption

	cache *Cache

	mu      sync.Mutex
	stop    context.CancelFunc
	stopped chan struct{}
}

// New creates an artifact cache module.
func New(options ...Option) *Module {
	module := &Module{
		logger:        slog.Default(),
		clearInterval: defaultClearInterval,
	}
	for _, option := range options {
		option(module)
	}

	return module
}

// Name returns the stable module identifier.
func (m *Module) Name() string {
	return "artifact-cache"
}

// Spec declares the cache service capability.
func (m *Module) Spec() weatherstuff.ModuleSpec {
	capability := weatherstuff.Capability{
		Name:        capabilityName,
		Description: "memoizes rendered and uploaded weather artifacts with single-flight computation and periodic clear",
	}
	if m.source == nil {
		capability.RequiredServices = []string{weatherstuff.ServiceArtifactSource}
	}

	return weatherstuff.ModuleSpec{
		AdditionalCapabilities: []weatherstuff.Capability{capability},
	}
}

// OnRegister builds the cache and registers it as the shared ArtifactCache service.
func (m *Module) OnRegister(_ context.Context, runtime weatherstuff.ModuleRuntime) error {
	logger, err := weatherstuff.ResolveAs[*slog.Logger](runtime.Services(), weatherstuff.ServiceLogger)
	switch {
	case err == nil:
		m.logger = logger
	case errors.Is(err, weatherstuff.ErrServiceNotFound):
	default:
		return fmt.Errorf("artifact cache resolve logger: %w", err)
	}

	if m.source == nil {
		source, err := weatherstuff.ResolveAs[weatherstuff.ArtifactSource](
			runtime.Services(),
			weatherstuff.ServiceArtifactSource,
		)
		if err != nil {
			return fmt.Errorf("artifact cache resolve artifact source: %w", err)
		}
		m.source = source
	}

	cache, err := NewCache(m.source, m.cacheOptions...)
	if err != nil {
		return fmt.Errorf("artifact cache: %w", err)
	}
	m.cache = cache

	if err := runtime.Services().Register(weatherstuff.ServiceArtifactCache, cache); err != nil {
		return fmt.Errorf("artifact cache register service %s: %w", weatherstuff.ServiceArtifactCache, err)
	}

	return nil
}

// Cache returns the cache built during registration.
func (m *Module) Cache() *Cache {
	return m.cache
}

// OnStart starts the periodic clear loop.
func (m *Module) OnStart(ctx context.Context) error {
	if m.cache == nil {
		return fmt.Errorf("artifact cache start: module not registered")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return fmt.Errorf("artifact cache start: already started")
	}

	loopCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	m.stop = stop
	m.stopped = make(chan struct{})
	go m.runClearLoop(loopCtx, m.stopped)

	m.logger.InfoContext(ctx,
		"artifact cache module started",
		"module", m.Name(),
		"clear_interval", m.clearInterval,
	)

	return nil
}

// OnShutdown stops the clear loop and drops cached state.
func (m *Module) OnShutdown(ctx context.Context) error {
	m.mu.Lock()
	stop := m.stop
	stopped := m.stopped
	m.stop = nil
	m.stopped = nil
	m.mu.Unlock()

	if stop != nil {
		stop()
		select {
		case <-stopped:
		case <-ctx.Done():
			return fmt.Errorf("artifact cache shutdown: %w", ctx.Err())
		}
	}

	if m.cache == nil {
		return nil
	}
	stats := m.cache.Stats()
	m.cache.Clear()

	m.logger.InfoContext(ctx,
		"artifact cache module shutdown",
		"module", m.Name(),
		"entries", stats.Entries,
		"hits", stats.Hits,
		"misses", stats.Misses,
		"computes", stats.Computes,
		"failures", stats.Failures,
	)

	return nil
}

func (m *Module) runClearLoop(ctx context.Context, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(m.clearInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			before := m.cache.Stats()
			dropped := m.cache.Clear()
			m.logger.InfoContext(ctx,
				"artifact cache cleared",
				"module", m.Name(),
				"dropped", dropped,
				"hits", before.Hits,
				"misses", before.Misses,
				"computes", before.Computes,
			)
		}
	}
}

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"weatherstuff/internal/driver"
	"weatherstuff/internal/driver/telegram"
	"weatherstuff/internal/kernel"
	"weatherstuff/internal/telemetry"
	"weatherstuff/modules/artifactcache"
	"weatherstuff/modules/inlinesearch"
	"weatherstuff/pkg/weatherstuff"
	"weatherstuff/services/artifact"
	"weatherstuff/services/geocode"
	"weatherstuff/services/imagehost"
	"weatherstuff/services/render"

	"github.com/caarlos0/env/v11"
)

const (
	envConfigFile              = "WEATHERSTUFF_CONFIG_FILE"
	defaultConfigFilePath      = "config/bot.json"
	alternateConfigFilePath    = "bin/config/bot.json"
	defaultModuleHookTimeout   = 3 * time.Second
	defaultShutdownTimeout     = 10 * time.Second
	defaultSubscriptionBuffer  = 256
	defaultSubscriptionWorker  = 2
	defaultCacheClearInterval  = 10 * time.Minute
	defaultCacheComputeTimeout = 2 * time.Minute
	defaultGeocoderRate        = 1.0
	defaultGeocoderTimeout     = 10 * time.Second
	defaultGeocoderCacheTTL    = 24 * time.Hour
	defaultRenderTimeout       = 60 * time.Second
	defaultImageHostTimeout    = 30 * time.Second
	telemetryFlushTimeout      = 5 * time.Second
)

var runtimeModuleNames = []string{"artifact-cache", "inline-search"}

type appConfig struct {
	logLevel slog.Level

	moduleHookTimeout   time.Duration
	shutdownTimeout     time.Duration
	subscriptionBuffer  int
	subscriptionWorkers int

	drivers        []driver.Definition
	routingDefault *kernel.ModuleRoute
	moduleRoutes   map[string]kernel.ModuleRoute

	inline inlinesearch.Config

	cacheClearInterval  time.Duration
	cacheComputeTimeout time.Duration

	geocoderBaseURL   string
	geocoderUserAgent string
	geocoderRate      float64
	geocoderTimeout   time.Duration
	geocoderCachePath string
	geocoderCacheTTL  time.Duration

	renderURL     string
	renderTimeout time.Duration

	imageHostURL     string
	imageHostTimeout time.Duration

	telemetry telemetry.Config
}

// envOverrides carries deployment secrets and overrides that win over the file.
type envOverrides struct {
	ConfigFile   string `env:"WEATHERSTUFF_CONFIG_FILE"`
	BotToken     string `env:"WEATHERSTUFF_BOT_TOKEN"`
	LogLevel     string `env:"WEATHERSTUFF_LOG_LEVEL"`
	RenderURL    string `env:"WEATHERSTUFF_RENDER_URL"`
	ImageHostURL string `env:"WEATHERSTUFF_IMAGE_HOST_URL"`
	OTelEndpoint string `env:"WEATHERSTUFF_OTEL_ENDPOINT"`
}

type fileConfig struct {
	LogLevel      string                  `json:"log_level"`
	Kernel        fileKernelConfig        `json:"kernel"`
	Drivers       []fileDriverEntry       `json:"drivers"`
	Routing       fileRoutingConfig       `json:"routing"`
	Inline        fileInlineConfig        `json:"inline"`
	ArtifactCache fileArtifactCacheConfig `json:"artifact_cache"`
	Geocoder      fileGeocoderConfig      `json:"geocoder"`
	Render        fileEndpointConfig      `json:"render"`
	ImageHost     fileEndpointConfig      `json:"image_host"`
	Telemetry     fileTelemetryConfig     `json:"telemetry"`
}

type fileKernelConfig struct {
	ModuleHookTimeout   string `json:"module_hook_timeout"`
	ShutdownTimeout     string `json:"shutdown_timeout"`
	SubscriptionBuffer  *int   `json:"subscription_buffer"`
	SubscriptionWorkers *int   `json:"subscription_workers"`
}

type fileDriverEntry struct {
	Name    string          `json:"name"`
	Type    string          `json:"type"`
	Enabled *bool           `json:"enabled"`
	Config  json.RawMessage `json:"config"`
}

type fileRoutingConfig struct {
	Default *fileModuleRoute           `json:"default"`
	Modules map[string]fileModuleRoute `json:"modules"`
}

type fileModuleRoute struct {
	Sources []fileSourceRef `json:"sources"`
}

type fileSourceRef struct {
	Platform string `json:"platform"`
	ID       string `json:"id"`
}

type fileInlineConfig struct {
	Concurrency  *int   `json:"concurrency"`
	MaxLocations *int   `json:"max_locations"`
	MaxPageSize  *int   `json:"max_page_size"`
	Workers      *int   `json:"workers"`
	GracePeriod  string `json:"grace_period"`
	FirstWait    string `json:"first_wait"`
	NextWait     string `json:"next_wait"`
	CacheTime    string `json:"cache_time"`
	Timeout      string `json:"handler_timeout"`
	MaxQueueAge  string `json:"max_queue_age"`
}

type fileArtifactCacheConfig struct {
	ClearInterval  string `json:"clear_interval"`
	ComputeTimeout string `json:"compute_timeout"`
}

type fileGeocoderConfig struct {
	BaseURL   string   `json:"base_url"`
	UserAgent string   `json:"user_agent"`
	Rate      *float64 `json:"rate"`
	Timeout   string   `json:"timeout"`
	CachePath string   `json:"cache_path"`
	CacheTTL  string   `json:"cache_ttl"`
}

type fileEndpointConfig struct {
	URL     string `json:"url"`
	Timeout string `json:"timeout"`
}

type fileTelemetryConfig struct {
	Endpoint    string   `json:"endpoint"`
	ServiceName string   `json:"service_name"`
	SampleRatio *float64 `json:"sample_ratio"`
}

func run() error {
	registry, err := driver.NewBuiltinRegistry()
	if err != nil {
		return fmt.Errorf("new builtin driver registry: %w", err)
	}

	cfg, err := loadConfig(registry)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.logLevel}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.telemetry)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), telemetryFlushTimeout)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	}()

	kernelRuntime := buildKernelRuntime(logger, cfg)

	runtimes, err := buildDriverRuntime(ctx, logger, cfg, registry)
	if err != nil {
		return err
	}
	if err := registerRuntimeDrivers(kernelRuntime, runtimes); err != nil {
		return err
	}

	closeServices, err := registerRuntimeServices(ctx, kernelRuntime, logger, cfg, runtimes)
	if err != nil {
		return err
	}
	defer closeServices()

	if err := registerRuntimeModules(ctx, kernelRuntime, cfg); err != nil {
		return err
	}

	if err := kernelRuntime.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run kernel: %w", err)
	}

	return nil
}

func loadConfig(registry *driver.Registry) (appConfig, error) {
	var overrides envOverrides
	if err := env.Parse(&overrides); err != nil {
		return appConfig{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := defaultAppConfig()
	configFile, err := resolveConfigFilePath(overrides.ConfigFile)
	if err != nil {
		return appConfig{}, err
	}

	if err := applyConfigFile(&cfg, configFile); err != nil {
		return appConfig{}, err
	}
	if err := applyEnvOverrides(&cfg, overrides); err != nil {
		return appConfig{}, err
	}
	if err := validateAppConfig(&cfg, registry); err != nil {
		return appConfig{}, fmt.Errorf("validate config file %s: %w", configFile, err)
	}

	return cfg, nil
}

func resolveConfigFilePath(explicit string) (string, error) {
	if configFile := strings.TrimSpace(explicit); configFile != "" {
		return configFile, nil
	}

	candidates := []string{defaultConfigFilePath, alternateConfigFilePath}
	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil {
			if info.IsDir() {
				return "", fmt.Errorf("config file %s is a directory", candidate)
			}
			return candidate, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return "", fmt.Errorf("stat config file %s: %w", candidate, err)
		}
	}

	return "", fmt.Errorf(
		"config file not found; create %s or %s, or set %s",
		defaultConfigFilePath,
		alternateConfigFilePath,
		envConfigFile,
	)
}

func defaultAppConfig() appConfig {
	return appConfig{
		logLevel: slog.LevelInfo,

		moduleHookTimeout:   defaultModuleHookTimeout,
		shutdownTimeout:     defaultShutdownTimeout,
		subscriptionBuffer:  defaultSubscriptionBuffer,
		subscriptionWorkers: defaultSubscriptionWorker,

		drivers:      make([]driver.Definition, 0),
		moduleRoutes: make(map[string]kernel.ModuleRoute),

		cacheClearInterval:  defaultCacheClearInterval,
		cacheComputeTimeout: defaultCacheComputeTimeout,

		geocoderBaseURL:  geocode.DefaultBaseURL,
		geocoderRate:     defaultGeocoderRate,
		geocoderTimeout:  defaultGeocoderTimeout,
		geocoderCacheTTL: defaultGeocoderCacheTTL,

		renderTimeout:    defaultRenderTimeout,
		imageHostTimeout: defaultImageHostTimeout,

		telemetry: telemetry.Config{ServiceName: "weatherstuff", SampleRatio: 1},
	}
}

func applyConfigFile(cfg *appConfig, path string) error {
	if cfg == nil {
		return fmt.Errorf("apply config file: nil config")
	}
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("config file path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var parsed fileConfig
	if err := json.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if rawLevel := strings.TrimSpace(parsed.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse log_level: %w", err)
		}
		cfg.logLevel = level
	}

	if err := applyKernelConfig(cfg, parsed.Kernel); err != nil {
		return err
	}

	cfg.drivers = make([]driver.Definition, 0, len(parsed.Drivers))
	for index, entry := range parsed.Drivers {
		enabled := true
		if entry.Enabled != nil {
			enabled = *entry.Enabled
		}
		if len(entry.Config) == 0 {
			return fmt.Errorf("parse drivers[%d].config: required", index)
		}
		cfg.drivers = append(cfg.drivers, driver.Definition{
			Name:    strings.TrimSpace(entry.Name),
			Type:    strings.TrimSpace(entry.Type),
			Enabled: enabled,
			Config:  append([]byte(nil), entry.Config...),
		})
	}

	cfg.routingDefault = nil
	if parsed.Routing.Default != nil {
		route, err := parseModuleRoute(*parsed.Routing.Default, "routing.default")
		if err != nil {
			return err
		}
		cfg.routingDefault = &route
	}

	cfg.moduleRoutes = make(map[string]kernel.ModuleRoute, len(parsed.Routing.Modules))
	for moduleName, rawRoute := range parsed.Routing.Modules {
		route, err := parseModuleRoute(rawRoute, fmt.Sprintf("routing.modules.%s", moduleName))
		if err != nil {
			return err
		}
		cfg.moduleRoutes[moduleName] = route
	}

	if err := applyInlineConfig(cfg, parsed.Inline); err != nil {
		return err
	}
	if err := applyServiceConfig(cfg, parsed); err != nil {
		return err
	}

	return nil
}

func applyKernelConfig(cfg *appConfig, raw fileKernelConfig) error {
	if err := parseDurationField(raw.ModuleHookTimeout, "kernel.module_hook_timeout", &cfg.moduleHookTimeout); err != nil {
		return err
	}
	if err := parseDurationField(raw.ShutdownTimeout, "kernel.shutdown_timeout", &cfg.shutdownTimeout); err != nil {
		return err
	}
	if err := parsePositiveField(raw.SubscriptionBuffer, "kernel.subscription_buffer", &cfg.subscriptionBuffer); err != nil {
		return err
	}
	if err := parsePositiveField(raw.SubscriptionWorkers, "kernel.subscription_workers", &cfg.subscriptionWorkers); err != nil {
		return err
	}

	return nil
}

func applyInlineConfig(cfg *appConfig, raw fileInlineConfig) error {
	fields := []struct {
		value  *int
		scope  string
		target *int
	}{
		{raw.Concurrency, "inline.concurrency", &cfg.inline.Concurrency},
		{raw.MaxLocations, "inline.max_locations", &cfg.inline.MaxLocations},
		{raw.MaxPageSize, "inline.max_page_size", &cfg.inline.MaxPageSize},
		{raw.Workers, "inline.workers", &cfg.inline.Workers},
	}
	for _, field := range fields {
		if err := parsePositiveField(field.value, field.scope, field.target); err != nil {
			return err
		}
	}
	if raw.MaxPageSize != nil && *raw.MaxPageSize > weatherstuff.MaxInlinePageSize {
		return fmt.Errorf("parse inline.max_page_size: must be <= %d", weatherstuff.MaxInlinePageSize)
	}

	durations := []struct {
		value  string
		scope  string
		target *time.Duration
	}{
		{raw.GracePeriod, "inline.grace_period", &cfg.inline.GracePeriod},
		{raw.FirstWait, "inline.first_wait", &cfg.inline.FirstWait},
		{raw.NextWait, "inline.next_wait", &cfg.inline.NextWait},
		{raw.CacheTime, "inline.cache_time", &cfg.inline.CacheTime},
		{raw.Timeout, "inline.handler_timeout", &cfg.inline.Timeout},
		{raw.MaxQueueAge, "inline.max_queue_age", &cfg.inline.MaxQueueAge},
	}
	for _, field := range durations {
		if err := parseDurationField(field.value, field.scope, field.target); err != nil {
			return err
		}
	}

	return nil
}

func applyServiceConfig(cfg *appConfig, parsed fileConfig) error {
	durations := []struct {
		value  string
		scope  string
		target *time.Duration
	}{
		{parsed.ArtifactCache.ClearInterval, "artifact_cache.clear_interval", &cfg.cacheClearInterval},
		{parsed.ArtifactCache.ComputeTimeout, "artifact_cache.compute_timeout", &cfg.cacheComputeTimeout},
		{parsed.Geocoder.Timeout, "geocoder.timeout", &cfg.geocoderTimeout},
		{parsed.Geocoder.CacheTTL, "geocoder.cache_ttl", &cfg.geocoderCacheTTL},
		{parsed.Render.Timeout, "render.timeout", &cfg.renderTimeout},
		{parsed.ImageHost.Timeout, "image_host.timeout", &cfg.imageHostTimeout},
	}
	for _, field := range durations {
		if err := parseDurationField(field.value, field.scope, field.target); err != nil {
			return err
		}
	}

	if baseURL := strings.TrimSpace(parsed.Geocoder.BaseURL); baseURL != "" {
		cfg.geocoderBaseURL = baseURL
	}
	cfg.geocoderUserAgent = strings.TrimSpace(parsed.Geocoder.UserAgent)
	cfg.geocoderCachePath = strings.TrimSpace(parsed.Geocoder.CachePath)
	if parsed.Geocoder.Rate != nil {
		if *parsed.Geocoder.Rate <= 0 {
			return fmt.Errorf("parse geocoder.rate: must be > 0")
		}
		cfg.geocoderRate = *parsed.Geocoder.Rate
	}

	cfg.renderURL = strings.TrimSpace(parsed.Render.URL)
	cfg.imageHostURL = strings.TrimSpace(parsed.ImageHost.URL)

	cfg.telemetry.Endpoint = strings.TrimSpace(parsed.Telemetry.Endpoint)
	if serviceName := strings.TrimSpace(parsed.Telemetry.ServiceName); serviceName != "" {
		cfg.telemetry.ServiceName = serviceName
	}
	if parsed.Telemetry.SampleRatio != nil {
		ratio := *parsed.Telemetry.SampleRatio
		if ratio <= 0 || ratio > 1 {
			return fmt.Errorf("parse telemetry.sample_ratio: must be in (0, 1]")
		}
		cfg.telemetry.SampleRatio = ratio
	}

	return nil
}

func applyEnvOverrides(cfg *appConfig, overrides envOverrides) error {
	if rawLevel := strings.TrimSpace(overrides.LogLevel); rawLevel != "" {
		level, err := parseLogLevel(rawLevel)
		if err != nil {
			return fmt.Errorf("parse WEATHERSTUFF_LOG_LEVEL: %w", err)
		}
		cfg.logLevel = level
	}
	if renderURL := strings.TrimSpace(overrides.RenderURL); renderURL != "" {
		cfg.renderURL = renderURL
	}
	if imageHostURL := strings.TrimSpace(overrides.ImageHostURL); imageHostURL != "" {
		cfg.imageHostURL = imageHostURL
	}
	if endpoint := strings.TrimSpace(overrides.OTelEndpoint); endpoint != "" {
		cfg.telemetry.Endpoint = endpoint
	}

	botToken := strings.TrimSpace(overrides.BotToken)
	if botToken == "" {
		return nil
	}
	for index := range cfg.drivers {
		if cfg.drivers[index].Type != telegram.DriverType {
			continue
		}
		patched, err := withBotToken(cfg.drivers[index].Config, botToken)
		if err != nil {
			return fmt.Errorf("apply WEATHERSTUFF_BOT_TOKEN to drivers[%s]: %w", cfg.drivers[index].Name, err)
		}
		cfg.drivers[index].Config = patched
	}

	return nil
}

// withBotToken rewrites one telegram driver config with the given token.
func withBotToken(raw []byte, token string) ([]byte, error) {
	fields := make(map[string]json.RawMessage)
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("decode driver config: %w", err)
	}

	encodedToken, err := json.Marshal(token)
	if err != nil {
		return nil, fmt.Errorf("encode bot token: %w", err)
	}
	fields["bot_token"] = encodedToken

	patched, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("encode driver config: %w", err)
	}

	return patched, nil
}

func parseDurationField(raw string, scope string, target *time.Duration) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	duration, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse %s: %w", scope, err)
	}
	if duration <= 0 {
		return fmt.Errorf("parse %s: must be > 0", scope)
	}
	*target = duration

	return nil
}

func parsePositiveField(raw *int, scope string, target *int) error {
	if raw == nil {
		return nil
	}
	if *raw <= 0 {
		return fmt.Errorf("parse %s: must be > 0", scope)
	}
	*target = *raw

	return nil
}

func parseModuleRoute(raw fileModuleRoute, scope string) (kernel.ModuleRoute, error) {
	if len(raw.Sources) == 0 {
		return kernel.ModuleRoute{}, fmt.Errorf("%s.sources is required", scope)
	}

	sources := make([]weatherstuff.EventSource, 0, len(raw.Sources))
	for index, sourceRef := range raw.Sources {
		source := weatherstuff.EventSource{
			Platform: weatherstuff.Platform(strings.TrimSpace(sourceRef.Platform)),
			ID:       strings.TrimSpace(sourceRef.ID),
		}
		if source.Platform == "" && source.ID == "" {
			return kernel.ModuleRoute{}, fmt.Errorf("%s.sources[%d]: empty source reference", scope, index)
		}
		sources = append(sources, source)
	}

	return kernel.ModuleRoute{Sources: sources}, nil
}

func validateAppConfig(cfg *appConfig, registry *driver.Registry) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if registry == nil {
		return fmt.Errorf("nil driver registry")
	}

	enabledDrivers := make([]driver.Definition, 0, len(cfg.drivers))
	enabledByName := make(map[string]driver.Definition, len(cfg.drivers))
	for _, definition := range cfg.drivers {
		if definition.Name == "" {
			return fmt.Errorf("drivers[].name is required")
		}
		if definition.Type == "" {
			return fmt.Errorf("drivers[%s].type is required", definition.Name)
		}
		if _, exists := enabledByName[definition.Name]; exists {
			return fmt.Errorf("drivers[%s]: duplicate name", definition.Name)
		}
		if !definition.Enabled {
			continue
		}
		if _, err := registry.PlatformForType(definition.Type); err != nil {
			return fmt.Errorf("drivers[%s].type: %w", definition.Name, err)
		}
		enabledDrivers = append(enabledDrivers, definition)
		enabledByName[definition.Name] = definition
	}
	if len(enabledDrivers) == 0 {
		return fmt.Errorf("at least one enabled driver is required")
	}

	if cfg.renderURL == "" {
		return fmt.Errorf("render.url is required")
	}
	if cfg.imageHostURL == "" {
		return fmt.Errorf("image_host.url is required")
	}

	knownModules := make(map[string]struct{}, len(runtimeModuleNames))
	for _, moduleName := range runtimeModuleNames {
		knownModules[moduleName] = struct{}{}
	}
	for moduleName := range cfg.moduleRoutes {
		if _, known := knownModules[moduleName]; !known {
			return fmt.Errorf("routing.modules.%s: unknown module", moduleName)
		}
	}

	for moduleName, route := range cfg.moduleRoutes {
		if err := validateRouteRefs(route, enabledByName, fmt.Sprintf("routing.modules.%s", moduleName)); err != nil {
			return err
		}
	}
	if cfg.routingDefault != nil {
		if err := validateRouteRefs(*cfg.routingDefault, enabledByName, "routing.default"); err != nil {
			return err
		}
	}

	if len(enabledDrivers) == 1 && cfg.routingDefault == nil {
		sole := enabledDrivers[0]
		platform, err := registry.PlatformForType(sole.Type)
		if err != nil {
			return fmt.Errorf("derive default route from driver %s: %w", sole.Name, err)
		}
		cfg.routingDefault = &kernel.ModuleRoute{
			Sources: []weatherstuff.EventSource{{Platform: platform, ID: sole.Name}},
		}
	}

	if len(enabledDrivers) >= 2 && cfg.routingDefault == nil {
		for _, moduleName := range runtimeModuleNames {
			if _, exists := cfg.moduleRoutes[moduleName]; !exists {
				return fmt.Errorf("routing.default is required in multi-driver mode unless all modules override")
			}
		}
	}

	return nil
}

func validateRouteRefs(
	route kernel.ModuleRoute,
	enabledByName map[string]driver.Definition,
	scope string,
) error {
	for index, source := range route.Sources {
		if source.ID != "" {
			if _, exists := enabledByName[source.ID]; !exists {
				return fmt.Errorf("%s.sources[%d]: unknown driver id %s", scope, index, source.ID)
			}
		}
	}

	return nil
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unsupported level %q", raw)
	}
}

func buildKernelRuntime(logger *slog.Logger, cfg appConfig) *kernel.Kernel {
	return kernel.New(
		kernel.WithLogger(logger),
		kernel.WithModuleHookTimeout(cfg.moduleHookTimeout),
		kernel.WithShutdownTimeout(cfg.shutdownTimeout),
		kernel.WithDefaultSubscriptionBuffer(cfg.subscriptionBuffer),
		kernel.WithDefaultSubscriptionWorkers(cfg.subscriptionWorkers),
		kernel.WithAsyncErrorHandler(func(ctx context.Context, scope string, err error) {
			logger.ErrorContext(ctx, "weatherstuff async error", "scope", scope, "error", err)
		}),
		kernel.WithModuleRouting(cfg.routingDefault, cfg.moduleRoutes),
	)
}

func buildDriverRuntime(
	ctx context.Context,
	logger *slog.Logger,
	cfg appConfig,
	registry *driver.Registry,
) ([]driver.Runtime, error) {
	if registry == nil {
		return nil, fmt.Errorf("build drivers: nil driver registry")
	}

	runtimes, err := registry.BuildEnabled(ctx, cfg.drivers, logger)
	if err != nil {
		return nil, fmt.Errorf("build drivers: %w", err)
	}

	return runtimes, nil
}

// registerRuntimeServices wires the answerer and the external clients behind
// the artifact source. The returned func releases the clients.
func registerRuntimeServices(
	ctx context.Context,
	kernelRuntime *kernel.Kernel,
	logger *slog.Logger,
	cfg appConfig,
	runtimes []driver.Runtime,
) (func(), error) {
	answerer, err := driver.NewCompositeInlineAnswerer(runtimes)
	if err != nil {
		return nil, fmt.Errorf("build inline answerer: %w", err)
	}
	if err := kernelRuntime.RegisterService(weatherstuff.ServiceInlineAnswerer, answerer); err != nil {
		return nil, fmt.Errorf("register inline answerer service: %w", err)
	}

	var closers []func() error
	closeAll := func() {
		for index := len(closers) - 1; index >= 0; index-- {
			if err := closers[index](); err != nil {
				logger.Warn("close service client failed", "error", err)
			}
		}
	}

	geocoderOptions := []geocode.Option{
		geocode.WithBaseURL(cfg.geocoderBaseURL),
		geocode.WithTimeout(cfg.geocoderTimeout),
		geocode.WithRateLimit(cfg.geocoderRate),
		geocode.WithLogger(logger),
	}
	if cfg.geocoderUserAgent != "" {
		geocoderOptions = append(geocoderOptions, geocode.WithUserAgent(cfg.geocoderUserAgent))
	}
	if cfg.geocoderCachePath != "" {
		store, err := geocode.OpenStore(cfg.geocoderCachePath, cfg.geocoderCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("open geocode store: %w", err)
		}
		closers = append(closers, store.Close)
		pruned, err := store.Prune(ctx)
		if err != nil {
			logger.Warn("prune geocode store failed", "error", err)
		} else if pruned > 0 {
			logger.Info("pruned geocode store", "rows", pruned)
		}
		geocoderOptions = append(geocoderOptions, geocode.WithStore(store))
	}
	geocoder := geocode.New(geocoderOptions...)
	closers = append(closers, geocoder.Close)
	if err := kernelRuntime.RegisterService(weatherstuff.ServiceGeocoder, geocoder); err != nil {
		closeAll()
		return nil, fmt.Errorf("register geocoder service: %w", err)
	}

	renderer, err := render.New(cfg.renderURL, render.WithTimeout(cfg.renderTimeout))
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("build render client: %w", err)
	}
	closers = append(closers, renderer.Close)

	uploader, err := imagehost.New(cfg.imageHostURL, imagehost.WithTimeout(cfg.imageHostTimeout))
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("build image host client: %w", err)
	}
	closers = append(closers, uploader.Close)

	source, err := artifact.NewSource(renderer, uploader)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("build artifact source: %w", err)
	}
	if err := kernelRuntime.RegisterService(weatherstuff.ServiceArtifactSource, source); err != nil {
		closeAll()
		return nil, fmt.Errorf("register artifact source service: %w", err)
	}

	return closeAll, nil
}

func registerRuntimeModules(ctx context.Context, kernelRuntime *kernel.Kernel, cfg appConfig) error {
	cacheModule := artifactcache.New(
		artifactcache.WithClearInterval(cfg.cacheClearInterval),
		artifactcache.WithCacheOptions(artifactcache.WithComputeTimeout(cfg.cacheComputeTimeout)),
	)
	if err := kernelRuntime.RegisterModule(ctx, cacheModule); err != nil {
		return fmt.Errorf("register artifact cache module: %w", err)
	}
	searchModule := inlinesearch.New(inlinesearch.WithConfig(cfg.inline))
	if err := kernelRuntime.RegisterModule(ctx, searchModule); err != nil {
		return fmt.Errorf("register inline search module: %w", err)
	}

	return nil
}

func registerRuntimeDrivers(kernelRuntime *kernel.Kernel, runtimes []driver.Runtime) error {
	for _, runtime := range runtimes {
		if err := kernelRuntime.RegisterDriver(runtime.Driver); err != nil {
			return fmt.Errorf("register driver %s: %w", runtime.Driver.Name(), err)
		}
	}

	return nil
}

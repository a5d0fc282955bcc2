package driver

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"weatherstuff/pkg/weatherstuff"
)

// Definition describes one configured driver entry.
type Definition struct {
	// Name is the stable configured driver instance identifier.
	Name string
	// Type identifies which builder should construct this runtime.
	Type string
	// Enabled controls whether this definition is active.
	Enabled bool
	// Config stores driver-type-specific JSON payload.
	Config []byte
}

// Runtime contains one fully built driver runtime instance.
type Runtime struct {
	// Source identifies the concrete event source produced by Driver.
	Source weatherstuff.EventSource
	// Driver is the inbound runtime implementation registered with kernel.
	Driver weatherstuff.Driver
	// Answerer delivers inline pages back through this runtime when supported.
	Answerer weatherstuff.InlineAnswerer
}

// BuilderFunc builds one runtime from one configured driver definition.
type BuilderFunc func(ctx context.Context, definition Definition, logger *slog.Logger) (Runtime, error)

// Descriptor binds one driver type token to platform metadata and a runtime builder.
type Descriptor struct {
	// Type is the driver type token from configuration (for example "telegram").
	Type string
	// Platform is the neutral platform for this driver type.
	Platform weatherstuff.Platform
	// Builder constructs one runtime instance for this driver type.
	Builder BuilderFunc
}

type registryEntry struct {
	platform weatherstuff.Platform
	builder  BuilderFunc
}

// Registry maps driver types to runtime builders and type-level platform metadata.
type Registry struct {
	entries map[string]registryEntry
	types   []string
}

// NewRegistry creates one immutable driver registry from descriptors.
func NewRegistry(descriptors []Descriptor) (*Registry, error) {
	entries := make(map[string]registryEntry, len(descriptors))
	types := make([]string, 0, len(descriptors))
	for _, descriptor := range descriptors {
		if descriptor.Type == "" {
			return nil, fmt.Errorf("new registry: empty descriptor type")
		}
		if descriptor.Platform == "" {
			return nil, fmt.Errorf("new registry type %s: empty platform", descriptor.Type)
		}
		if descriptor.Builder == nil {
			return nil, fmt.Errorf("new registry type %s: nil builder", descriptor.Type)
		}
		if _, exists := entries[descriptor.Type]; exists {
			return nil, fmt.Errorf("new registry type %s: duplicate", descriptor.Type)
		}

		entries[descriptor.Type] = registryEntry{
			platform: descriptor.Platform,
			builder:  descriptor.Builder,
		}
		types = append(types, descriptor.Type)
	}
	sort.Strings(types)

	return &Registry{
		entries: entries,
		types:   types,
	}, nil
}

// Types returns all registered driver types in deterministic sorted order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}

	types := make([]string, len(r.types))
	copy(types, r.types)

	return types
}

// PlatformForType resolves one registered driver type to its neutral platform.
func (r *Registry) PlatformForType(driverType string) (weatherstuff.Platform, error) {
	if r == nil {
		return "", fmt.Errorf("resolve platform: nil registry")
	}

	entry, exists := r.entries[driverType]
	if !exists {
		return "", fmt.Errorf("unsupported type %s", driverType)
	}

	return entry.platform, nil
}

// BuildEnabled builds all enabled driver definitions.
func (r *Registry) BuildEnabled(
	ctx context.Context,
	definitions []Definition,
	logger *slog.Logger,
) ([]Runtime, error) {
	if r == nil {
		return nil, fmt.Errorf("build drivers: nil registry")
	}

	runtimes := make([]Runtime, 0, len(definitions))
	seenNames := make(map[string]struct{}, len(definitions))
	for _, definition := range definitions {
		if !definition.Enabled {
			continue
		}
		if definition.Name == "" {
			return nil, fmt.Errorf("build driver: empty name")
		}
		if _, exists := seenNames[definition.Name]; exists {
			return nil, fmt.Errorf("build driver %s: duplicate name", definition.Name)
		}
		seenNames[definition.Name] = struct{}{}
		if definition.Type == "" {
			return nil, fmt.Errorf("build driver %s: empty type", definition.Name)
		}

		entry, exists := r.entries[definition.Type]
		if !exists {
			return nil, fmt.Errorf("build driver %s type %s: unsupported type", definition.Name, definition.Type)
		}

		runtime, err := entry.builder(ctx, definition, logger)
		if err != nil {
			return nil, fmt.Errorf("build driver %s type %s: %w", definition.Name, definition.Type, err)
		}
		if runtime.Driver == nil {
			return nil, fmt.Errorf("build driver %s type %s: nil driver", definition.Name, definition.Type)
		}
		if runtime.Source.Platform == "" {
			return nil, fmt.Errorf("build driver %s type %s: missing source platform", definition.Name, definition.Type)
		}
		if runtime.Source.ID == "" {
			runtime.Source.ID = definition.Name
		}

		runtimes = append(runtimes, runtime)
	}

	return runtimes, nil
}

type answerRoute struct {
	source   weatherstuff.EventSource
	answerer weatherstuff.InlineAnswerer
}

// CompositeInlineAnswerer routes inline answers to the driver that received the query.
type CompositeInlineAnswerer struct {
	byID       map[string]answerRoute
	byPlatform map[weatherstuff.Platform][]string
}

// NewCompositeInlineAnswerer creates a composite answerer from runtime answerers.
func NewCompositeInlineAnswerer(runtimes []Runtime) (*CompositeInlineAnswerer, error) {
	byID := make(map[string]answerRoute)
	byPlatform := make(map[weatherstuff.Platform][]string)
	for _, runtime := range runtimes {
		if runtime.Answerer == nil {
			continue
		}
		if runtime.Source.ID == "" {
			return nil, fmt.Errorf("new composite inline answerer: missing source id")
		}
		if _, exists := byID[runtime.Source.ID]; exists {
			return nil, fmt.Errorf("new composite inline answerer: duplicate source id %s", runtime.Source.ID)
		}

		byID[runtime.Source.ID] = answerRoute{
			source:   runtime.Source,
			answerer: runtime.Answerer,
		}
		byPlatform[runtime.Source.Platform] = append(byPlatform[runtime.Source.Platform], runtime.Source.ID)
	}
	for platform := range byPlatform {
		sort.Strings(byPlatform[platform])
	}

	return &CompositeInlineAnswerer{
		byID:       byID,
		byPlatform: byPlatform,
	}, nil
}

// AnswerInlineQuery routes one inline answer to its source driver.
func (a *CompositeInlineAnswerer) AnswerInlineQuery(ctx context.Context, answer weatherstuff.InlineAnswer) error {
	answerer, err := a.resolve(answer.Source)
	if err != nil {
		return fmt.Errorf("resolve answerer for query %s: %w", answer.QueryID, err)
	}

	if err := answerer.AnswerInlineQuery(ctx, answer); err != nil {
		return fmt.Errorf("route inline answer: %w", err)
	}

	return nil
}

// Sources returns every source that can answer inline queries in sorted id order.
func (a *CompositeInlineAnswerer) Sources() []weatherstuff.EventSource {
	ids := make([]string, 0, len(a.byID))
	for id := range a.byID {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	sources := make([]weatherstuff.EventSource, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, a.byID[id].source)
	}

	return sources
}

func (a *CompositeInlineAnswerer) resolve(source weatherstuff.EventSource) (weatherstuff.InlineAnswerer, error) {
	if a == nil {
		return nil, fmt.Errorf("nil answerer")
	}
	if len(a.byID) == 0 {
		return nil, fmt.Errorf("%w: no answerers configured", weatherstuff.ErrAnswerUnsupported)
	}

	if source.ID != "" {
		route, exists := a.byID[source.ID]
		if !exists {
			return nil, fmt.Errorf("%w: source %s not found", weatherstuff.ErrAnswerUnsupported, source.ID)
		}
		if source.Platform != "" && route.source.Platform != source.Platform {
			return nil, fmt.Errorf(
				"%w: source %s platform mismatch: expected %s got %s",
				weatherstuff.ErrAnswerUnsupported,
				source.ID,
				source.Platform,
				route.source.Platform,
			)
		}

		return route.answerer, nil
	}
	if source.Platform != "" {
		ids := a.byPlatform[source.Platform]
		if len(ids) == 0 {
			return nil, fmt.Errorf("%w: no answerer for platform %s", weatherstuff.ErrAnswerUnsupported, source.Platform)
		}
		if len(ids) > 1 {
			return nil, fmt.Errorf("%w: ambiguous answerer for platform %s", weatherstuff.ErrAnswerUnsupported, source.Platform)
		}

		return a.byID[ids[0]].answerer, nil
	}
	if len(a.byID) == 1 {
		for _, route := range a.byID {
			return route.answerer, nil
		}
	}

	return nil, fmt.Errorf("%w: missing answer source", weatherstuff.ErrAnswerUnsupported)
}

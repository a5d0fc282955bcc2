package weatherstuff

import (
	"fmt"
)

const (
	// ServiceLogger is the optional service registry key for structured logging.
	ServiceLogger = "logger"
	// ServiceInlineAnswerer is the canonical service registry key for inline answering.
	ServiceInlineAnswerer = "weatherstuff.inline_answerer"
	// ServiceArtifactCache is the canonical service registry key for the artifact cache.
	ServiceArtifactCache = "weatherstuff.artifact_cache"
	// ServiceArtifactSource is the canonical service registry key for artifact computation.
	ServiceArtifactSource = "weatherstuff.artifact_source"
	// ServiceGeocoder is the canonical service registry key for location search.
	ServiceGeocoder = "weatherstuff.geocoder"
)

// ServiceRegistry provides runtime dependency injection to modules and drivers.
type ServiceRegistry interface {
	// Register binds a singleton service value to a stable name.
	Register(name string, service any) error
	// Resolve returns a registered service by name.
	Resolve(name string) (any, error)
}

// ResolveAs resolves a service and casts it to the requested type.
func ResolveAs[T any](registry ServiceRegistry, name string) (T, error) {
	var zero T

	service, err := registry.Resolve(name)
	if err != nil {
		return zero, fmt.Errorf("resolve service %s: %w", name, err)
	}

	typed, ok := service.(T)
	if !ok {
		return zero, fmt.Errorf("resolve service %s: type assertion failed", name)
	}

	return typed, nil
}

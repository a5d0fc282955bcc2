package weatherstuff

import "errors"

var (
	// ErrInvalidEvent indicates that an event does not satisfy protocol invariants.
	ErrInvalidEvent = errors.New("weatherstuff: invalid event")
	// ErrInvalidSubscription indicates that a subscription configuration is invalid.
	ErrInvalidSubscription = errors.New("weatherstuff: invalid subscription")
	// ErrSubscriptionClosed indicates that a subscription is no longer active.
	ErrSubscriptionClosed = errors.New("weatherstuff: subscription closed")
	// ErrEventDropped indicates a non-blocking backpressure drop.
	ErrEventDropped = errors.New("weatherstuff: event dropped due to backpressure")
	// ErrServiceAlreadyRegistered indicates duplicate service registration.
	ErrServiceAlreadyRegistered = errors.New("weatherstuff: service already registered")
	// ErrServiceNotFound indicates a service lookup miss.
	ErrServiceNotFound = errors.New("weatherstuff: service not found")
	// ErrModuleAlreadyRegistered indicates duplicate module registration.
	ErrModuleAlreadyRegistered = errors.New("weatherstuff: module already registered")
	// ErrDriverAlreadyRegistered indicates duplicate driver registration.
	ErrDriverAlreadyRegistered = errors.New("weatherstuff: driver already registered")
	// ErrNoArtifact indicates that no artifact can be produced for a key,
	// for example because no weather station is close enough.
	ErrNoArtifact = errors.New("weatherstuff: no artifact for location")
	// ErrInvalidCursor indicates a pagination cursor that cannot be decoded.
	ErrInvalidCursor = errors.New("weatherstuff: invalid cursor")
	// ErrStaleSession indicates a cursor that references a session no longer registered.
	ErrStaleSession = errors.New("weatherstuff: stale session")
	// ErrRegistryClosed indicates that the session registry no longer accepts sessions.
	ErrRegistryClosed = errors.New("weatherstuff: session registry closed")
	// ErrInvalidInlineAnswer indicates an inline answer that violates protocol invariants.
	ErrInvalidInlineAnswer = errors.New("weatherstuff: invalid inline answer")
	// ErrAnswerUnsupported indicates that no configured sink can answer an inline query.
	ErrAnswerUnsupported = errors.New("weatherstuff: inline answer unsupported")
)

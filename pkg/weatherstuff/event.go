package weatherstuff

import (
	"fmt"
	"time"
)

// EventKind identifies a neutral domain event type.
type EventKind string

const (
	// EventKindInlineQuery is emitted when a user requests one page of inline results.
	EventKindInlineQuery EventKind = "inline.query"
)

// Platform identifies an external chat platform source.
type Platform string

const (
	// PlatformTelegram is Telegram.
	PlatformTelegram Platform = "telegram"
)

// EventSource identifies the concrete driver instance that produced an event.
type EventSource struct {
	// Platform is the upstream platform of the driver.
	Platform Platform
	// ID is the configured driver instance name.
	ID string
}

// Event is the neutral protocol envelope that drivers publish and modules consume.
type Event struct {
	// ID is a stable identifier for this event instance.
	ID string
	// Kind selects which payload branch is expected.
	Kind EventKind
	// OccurredAt is the time the driver observed the event.
	OccurredAt time.Time
	// Platform identifies the upstream platform that produced the event.
	Platform Platform
	// Source identifies the driver instance that produced the event.
	Source EventSource
	// Actor identifies who initiated the event when available.
	Actor Actor
	// InlineQuery carries the page request for inline query events.
	InlineQuery *InlineQuery
	// Metadata stores optional driver-provided key/value context.
	Metadata map[string]string
}

// Actor identifies the user/account that initiated an event.
type Actor struct {
	// ID is the stable actor identifier on the source platform.
	ID string
	// Username is the platform handle when available.
	Username string
}

// Validate checks kind-specific payload invariants.
func (e *Event) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}
	if e.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidEvent)
	}
	if e.Kind == "" {
		return fmt.Errorf("%w: missing kind", ErrInvalidEvent)
	}

	switch e.Kind {
	case EventKindInlineQuery:
		if e.InlineQuery == nil {
			return fmt.Errorf("%w: %s requires inline query payload", ErrInvalidEvent, e.Kind)
		}
		if e.InlineQuery.ID == "" {
			return fmt.Errorf("%w: %s requires inline query id", ErrInvalidEvent, e.Kind)
		}
		if e.Actor.ID == "" {
			return fmt.Errorf("%w: %s requires actor id", ErrInvalidEvent, e.Kind)
		}
	default:
		return fmt.Errorf("%w: unsupported kind %s", ErrInvalidEvent, e.Kind)
	}

	return nil
}

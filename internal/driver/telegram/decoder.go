package telegram

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"weatherstuff/pkg/weatherstuff"
)

// Decoder converts Telegram update DTOs into neutral events.
type Decoder interface {
	// Decode maps one adapter update into a validated neutral event envelope.
	Decode(ctx context.Context, update Update) (*weatherstuff.Event, error)
}

// DefaultDecoder provides default Telegram-to-neutral mappings.
type DefaultDecoder struct{}

// NewDefaultDecoder creates a default decoder.
func NewDefaultDecoder() DefaultDecoder {
	return DefaultDecoder{}
}

// Decode converts a Telegram update into a neutral event.
func (d DefaultDecoder) Decode(_ context.Context, update Update) (*weatherstuff.Event, error) {
	event := &weatherstuff.Event{
		ID:         update.ID,
		OccurredAt: update.OccurredAt,
		Platform:   DriverPlatform,
		Actor: weatherstuff.Actor{
			ID:       update.Actor.ID,
			Username: update.Actor.Username,
		},
		Metadata: maps.Clone(update.Metadata),
	}

	switch update.Type {
	case UpdateTypeInlineQuery:
		event.Kind = weatherstuff.EventKindInlineQuery
		query, err := decodeInlineQuery(update.InlineQuery)
		if err != nil {
			return nil, fmt.Errorf("decode inline query: %w", err)
		}
		event.InlineQuery = query
	default:
		return nil, fmt.Errorf("decode update %s: unsupported type", update.Type)
	}

	if err := event.Validate(); err != nil {
		return nil, fmt.Errorf("decode update %s validate: %w", update.Type, err)
	}

	return event, nil
}

func decodeInlineQuery(payload *InlineQueryPayload) (*weatherstuff.InlineQuery, error) {
	if payload == nil {
		return nil, fmt.Errorf("missing inline query payload")
	}
	if payload.QueryID == "" {
		return nil, fmt.Errorf("missing query id")
	}

	return &weatherstuff.InlineQuery{
		ID:     payload.QueryID,
		Text:   strings.TrimSpace(payload.Text),
		Cursor: payload.Offset,
	}, nil
}

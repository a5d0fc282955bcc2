package telegram

import "time"

// UpdateType identifies the Telegram update semantic category.
type UpdateType string

const (
	// UpdateTypeInlineQuery identifies inline query page requests.
	UpdateTypeInlineQuery UpdateType = "inline_query"
)

// Update is the Telegram adapter's internal DTO before neutral decoding.
type Update struct {
	ID          string
	Type        UpdateType
	OccurredAt  time.Time
	Actor       ActorRef
	InlineQuery *InlineQueryPayload
	Metadata    map[string]string
}

// ActorRef identifies Telegram actor context.
type ActorRef struct {
	ID          string
	Username    string
	DisplayName string
	IsBot       bool
}

// InlineQueryPayload is the projection of one bot inline query.
type InlineQueryPayload struct {
	// QueryID is the Telegram inline query id, formatted in base 10.
	QueryID string
	// Text is the raw query text.
	Text string
	// Offset is the next_offset echoed back by the client.
	Offset string
}

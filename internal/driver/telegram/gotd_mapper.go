package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/gotd/td/tg"
)

// DefaultGotdUpdateMapper maps gotd inline query updates into adapter DTO updates.
type DefaultGotdUpdateMapper struct{}

// NewDefaultGotdUpdateMapper creates the default gotd mapper.
func NewDefaultGotdUpdateMapper() DefaultGotdUpdateMapper {
	return DefaultGotdUpdateMapper{}
}

// Map converts a gotd raw update value into an adapter update.
func (m DefaultGotdUpdateMapper) Map(ctx context.Context, raw any) (Update, bool, error) {
	select {
	case <-ctx.Done():
		return Update{}, false, fmt.Errorf("map gotd update context: %w", ctx.Err())
	default:
	}

	envelope, err := normalizeGotdRaw(raw)
	if err != nil {
		return Update{}, false, fmt.Errorf("map gotd raw update: %w", err)
	}
	if envelope.query == nil {
		return Update{}, false, nil
	}

	queryID := strconv.FormatInt(envelope.query.QueryID, 10)

	return Update{
		ID:         "tg:" + string(UpdateTypeInlineQuery) + ":" + queryID,
		Type:       UpdateTypeInlineQuery,
		OccurredAt: envelope.receivedAt,
		Actor:      resolveActorByUserID(envelope.query.UserID, envelope),
		InlineQuery: &InlineQueryPayload{
			QueryID: queryID,
			Text:    envelope.query.Query,
			Offset:  envelope.query.Offset,
		},
		Metadata: map[string]string{
			"gotd_update": envelope.updateClass,
		},
	}, true, nil
}

func normalizeGotdRaw(raw any) (gotdUpdateEnvelope, error) {
	switch typed := raw.(type) {
	case gotdUpdateEnvelope:
		return typed, nil
	case *tg.UpdateBotInlineQuery:
		if typed == nil {
			return gotdUpdateEnvelope{}, fmt.Errorf("nil inline query update")
		}
		return gotdUpdateEnvelope{
			query:       typed,
			updateClass: typed.TypeName(),
		}, nil
	case tg.UpdateClass:
		return gotdUpdateEnvelope{}, nil
	default:
		return gotdUpdateEnvelope{}, fmt.Errorf("unsupported raw type %T", raw)
	}
}

func resolveActorByUserID(userID int64, envelope gotdUpdateEnvelope) ActorRef {
	id := strconv.FormatInt(userID, 10)

	user, ok := envelope.usersByID[userID]
	if !ok || user == nil {
		return ActorRef{ID: id}
	}

	username, _ := user.GetUsername()
	firstName, _ := user.GetFirstName()
	lastName, _ := user.GetLastName()

	displayName := strings.TrimSpace(firstName + " " + lastName)
	if displayName == "" {
		displayName = username
	}
	if displayName == "" {
		displayName = id
	}

	return ActorRef{
		ID:          id,
		Username:    username,
		DisplayName: displayName,
		IsBot:       user.Bot,
	}
}

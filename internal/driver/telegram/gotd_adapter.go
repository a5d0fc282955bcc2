package telegram

import (
	"context"
	"fmt"
	"time"

	"github.com/gotd/td/tg"
)

const defaultGotdUpdateBuffer = 1024

// GotdUpdateChannel is a gotd update handler and raw stream implementation.
//
// Only inline query updates are forwarded; a bot receives nothing else this
// adapter can act on.
type GotdUpdateChannel struct {
	updates chan any
	now     func() time.Time
}

// NewGotdUpdateChannel creates a stream bridge between gotd updates and adapter source.
func NewGotdUpdateChannel(buffer int) (*GotdUpdateChannel, error) {
	if buffer <= 0 {
		buffer = defaultGotdUpdateBuffer
	}

	return &GotdUpdateChannel{
		updates: make(chan any, buffer),
		now:     time.Now,
	}, nil
}

// Updates returns the active stream channel.
func (s *GotdUpdateChannel) Updates(ctx context.Context) (<-chan any, error) {
	if ctx == nil {
		return nil, fmt.Errorf("gotd update channel: nil context")
	}
	if s.updates == nil {
		return nil, fmt.Errorf("gotd update channel: not initialized")
	}

	return s.updates, nil
}

// Handle flattens gotd update batches and forwards each inline query to the active stream.
func (s *GotdUpdateChannel) Handle(ctx context.Context, updates tg.UpdatesClass) error {
	batch, err := flattenGotdUpdates(updates, s.now().UTC())
	if err != nil {
		return fmt.Errorf("handle gotd updates: %w", err)
	}

	for _, item := range batch {
		if err := s.publish(ctx, item); err != nil {
			return fmt.Errorf("handle gotd updates publish: %w", err)
		}
	}

	return nil
}

func (s *GotdUpdateChannel) publish(ctx context.Context, item gotdUpdateEnvelope) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("publish gotd update: %w", ctx.Err())
	case s.updates <- item:
		return nil
	}
}

// gotdUpdateEnvelope carries one inline query with the users delivered in the same batch.
type gotdUpdateEnvelope struct {
	query       *tg.UpdateBotInlineQuery
	receivedAt  time.Time
	usersByID   map[int64]*tg.User
	updateClass string
}

func flattenGotdUpdates(updates tg.UpdatesClass, receivedAt time.Time) ([]gotdUpdateEnvelope, error) {
	if updates == nil {
		return nil, fmt.Errorf("flatten gotd updates: nil updates")
	}

	switch typed := updates.(type) {
	case *tg.Updates:
		return flattenGotdBatch(typed.Updates, typed.Users, receivedAt), nil
	case *tg.UpdatesCombined:
		return flattenGotdBatch(typed.Updates, typed.Users, receivedAt), nil
	case *tg.UpdateShort:
		return flattenGotdBatch([]tg.UpdateClass{typed.Update}, nil, receivedAt), nil
	case *tg.UpdateShortMessage, *tg.UpdateShortChatMessage, *tg.UpdateShortSentMessage, *tg.UpdatesTooLong:
		return nil, nil
	default:
		return nil, fmt.Errorf("flatten gotd updates %s: unsupported container", updates.TypeName())
	}
}

func flattenGotdBatch(updates []tg.UpdateClass, users []tg.UserClass, receivedAt time.Time) []gotdUpdateEnvelope {
	var usersByID map[int64]*tg.User

	batch := make([]gotdUpdateEnvelope, 0, len(updates))
	for _, update := range updates {
		query, ok := update.(*tg.UpdateBotInlineQuery)
		if !ok || query == nil {
			continue
		}
		if usersByID == nil {
			usersByID = indexGotdUsers(users)
		}
		batch = append(batch, gotdUpdateEnvelope{
			query:       query,
			receivedAt:  receivedAt,
			usersByID:   usersByID,
			updateClass: query.TypeName(),
		})
	}

	return batch
}

func indexGotdUsers(users []tg.UserClass) map[int64]*tg.User {
	if len(users) == 0 {
		return nil
	}

	out := make(map[int64]*tg.User, len(users))
	for _, user := range users {
		if user == nil {
			continue
		}
		notEmpty, ok := user.AsNotEmpty()
		if !ok || notEmpty == nil {
			continue
		}
		out[notEmpty.ID] = notEmpty
	}

	return out
}

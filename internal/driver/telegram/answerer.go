package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"net/url"
	"path"
	"strconv"
	"time"

	"weatherstuff/pkg/weatherstuff"

	gotdtelegram "github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

const (
	defaultAnswerTimeout = 5 * time.Second
	stillMIMEType        = "image/jpeg"
	animationMIMEType    = "video/mp4"
	inlineTypePhoto      = "photo"
	inlineTypeGIF        = "gif"
)

// AnswerOption mutates inline answerer configuration.
type AnswerOption func(*answerConfig)

// WithAnswerTimeout configures a timeout bound for each answer RPC call.
func WithAnswerTimeout(timeout time.Duration) AnswerOption {
	return func(cfg *answerConfig) {
		if timeout > 0 {
			cfg.rpcTimeout = timeout
		}
	}
}

// WithAnswerLogger configures structured logging for delivered pages.
func WithAnswerLogger(logger *slog.Logger) AnswerOption {
	return func(cfg *answerConfig) {
		cfg.logger = logger
	}
}

// WithAnswerSource configures the source identity attached to delivery errors.
func WithAnswerSource(source weatherstuff.EventSource) AnswerOption {
	return func(cfg *answerConfig) {
		cfg.source = source
		if cfg.source.Platform == "" {
			cfg.source.Platform = DriverPlatform
		}
	}
}

type answerConfig struct {
	rpcTimeout time.Duration
	logger     *slog.Logger
	source     weatherstuff.EventSource
}

// InlineAnswerer delivers neutral inline pages through messages.setInlineBotResults.
type InlineAnswerer struct {
	cfg      answerConfig
	telegram answerRPC
}

// NewInlineAnswerer creates a Telegram inline answerer using gotd client APIs.
func NewInlineAnswerer(client *gotdtelegram.Client, options ...AnswerOption) (*InlineAnswerer, error) {
	if client == nil {
		return nil, fmt.Errorf("new telegram inline answerer: nil client")
	}

	return newInlineAnswererWithRPC(gotdAnswerRPC{raw: client.API()}, options...)
}

func newInlineAnswererWithRPC(rpc answerRPC, options ...AnswerOption) (*InlineAnswerer, error) {
	if rpc == nil {
		return nil, fmt.Errorf("new telegram inline answerer: nil rpc adapter")
	}

	cfg := answerConfig{
		rpcTimeout: defaultAnswerTimeout,
		source:     weatherstuff.EventSource{Platform: DriverPlatform},
	}
	for _, option := range options {
		option(&cfg)
	}

	return &InlineAnswerer{
		cfg:      cfg,
		telegram: rpc,
	}, nil
}

// AnswerInlineQuery delivers one page to the Telegram inline query it answers.
func (a *InlineAnswerer) AnswerInlineQuery(ctx context.Context, answer weatherstuff.InlineAnswer) error {
	if err := answer.Validate(); err != nil {
		return fmt.Errorf("answer inline query validate: %w", err)
	}

	queryID, err := strconv.ParseInt(answer.QueryID, 10, 64)
	if err != nil {
		return fmt.Errorf("answer inline query: %w: query id %q", weatherstuff.ErrInvalidInlineAnswer, answer.QueryID)
	}

	results := make([]tg.InputBotInlineResultClass, 0, len(answer.Page.Items))
	for _, item := range answer.Page.Items {
		results = append(results, buildInlineResult(item))
	}

	request := &tg.MessagesSetInlineBotResultsRequest{
		QueryID:    queryID,
		Results:    results,
		CacheTime:  int(answer.Page.CacheTime / time.Second),
		NextOffset: answer.Page.NextCursor,
	}

	rpcCtx, cancel := context.WithTimeout(ctx, a.cfg.rpcTimeout)
	defer cancel()

	if err := a.telegram.SetInlineBotResults(rpcCtx, request); err != nil {
		return fmt.Errorf("answer inline query %s: %w", answer.QueryID, mapTelegramDeliveryError(a.cfg.source, answer.QueryID, err))
	}

	if a.cfg.logger != nil {
		a.cfg.logger.DebugContext(ctx, "telegram inline answer",
			"sink_id", a.cfg.source.ID,
			"query_id", answer.QueryID,
			"results", len(results),
			"next_offset", answer.Page.NextCursor,
		)
	}

	return nil
}

func buildInlineResult(item weatherstuff.ResultItem) *tg.InputBotInlineResult {
	result := &tg.InputBotInlineResult{
		ID:          item.ID,
		Type:        inlineTypePhoto,
		Title:       item.Title,
		Description: item.Caption,
		SendMessage: &tg.InputBotInlineMessageMediaAuto{
			Message: item.Caption,
		},
	}

	attributes := []tg.DocumentAttributeClass{
		&tg.DocumentAttributeImageSize{W: item.Width, H: item.Height},
	}
	contentMIME := mimeTypeForURL(item.URL, stillMIMEType)
	if item.Kind == weatherstuff.ResultKindAnimation {
		result.Type = inlineTypeGIF
		contentMIME = animationMIMEType
		attributes = append(attributes, &tg.DocumentAttributeAnimated{})
	}

	result.Content = tg.InputWebDocument{
		URL:        item.URL,
		MimeType:   contentMIME,
		Attributes: attributes,
	}

	thumbURL := item.ThumbURL
	if thumbURL == "" {
		thumbURL = item.URL
	}
	result.Thumb = tg.InputWebDocument{
		URL:      thumbURL,
		MimeType: mimeTypeForURL(thumbURL, contentMIME),
	}

	return result
}

// mimeTypeForURL guesses a media type from the URL path extension.
func mimeTypeForURL(rawURL string, fallback string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fallback
	}
	ext := path.Ext(parsed.Path)
	if ext == "" {
		return fallback
	}
	mediaType, _, err := mime.ParseMediaType(mime.TypeByExtension(ext))
	if err != nil || mediaType == "" {
		return fallback
	}

	return mediaType
}

type answerRPC interface {
	SetInlineBotResults(ctx context.Context, request *tg.MessagesSetInlineBotResultsRequest) error
}

type gotdAnswerRPC struct {
	raw *tg.Client
}

func (r gotdAnswerRPC) SetInlineBotResults(ctx context.Context, request *tg.MessagesSetInlineBotResultsRequest) error {
	if _, err := r.raw.MessagesSetInlineBotResults(ctx, request); err != nil {
		return fmt.Errorf("set inline bot results: %w", err)
	}

	return nil
}

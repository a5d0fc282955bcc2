package inlinesearch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"weatherstuff/pkg/weatherstuff"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	defaultFirstWait = 15 * time.Second
	defaultNextWait  = 500 * time.Millisecond
	defaultCacheTime = 600 * time.Second
)

// PagerOption mutates pager configuration.
type PagerOption func(*Pager)

// WithFirstWait bounds the first pull of every page drain.
func WithFirstWait(wait time.Duration) PagerOption {
	return func(pager *Pager) {
		if wait > 0 {
			pager.limits.firstWait = wait
		}
	}
}

// WithNextWait bounds each pull after the first collected result.
func WithNextWait(wait time.Duration) PagerOption {
	return func(pager *Pager) {
		if wait > 0 {
			pager.limits.nextWait = wait
		}
	}
}

// WithMaxPageSize caps results per page, up to the platform limit.
func WithMaxPageSize(size int) PagerOption {
	return func(pager *Pager) {
		if size > 0 && size <= weatherstuff.MaxInlinePageSize {
			pager.limits.maxItems = size
		}
	}
}

// WithCacheTime sets how long clients may cache an answered page.
func WithCacheTime(cacheTime time.Duration) PagerOption {
	return func(pager *Pager) {
		if cacheTime > 0 {
			pager.cacheTime = cacheTime
		}
	}
}

// WithPagerLogger sets the pager logger.
func WithPagerLogger(logger *slog.Logger) PagerOption {
	return func(pager *Pager) {
		if logger != nil {
			pager.logger = logger
		}
	}
}

// WithPagerTracer overrides the tracer used for page spans.
func WithPagerTracer(tracer trace.Tracer) PagerOption {
	return func(pager *Pager) {
		if tracer != nil {
			pager.tracer = tracer
		}
	}
}

// PageRequest is one inbound inline page request.
type PageRequest struct {
	// QueryID is the platform id of this request.
	QueryID string
	// Owner identifies the requesting user.
	Owner string
	// Text is the search text.
	Text string
	// Cursor is empty on the first page of a search.
	Cursor string
}

// PageResult is the page to answer plus the session it came from.
type PageResult struct {
	Page weatherstuff.InlinePage
	// SessionID is empty when the request resolved to no live session.
	SessionID string
	// Started reports that this request created the session.
	Started bool
}

// Pager translates page requests into session drains and delivers answers.
type Pager struct {
	registry  *Registry
	answerer  weatherstuff.InlineAnswerer
	limits    drainLimits
	cacheTime time.Duration
	logger    *slog.Logger
	tracer    trace.Tracer
}

// NewPager creates a pager over registry that answers through answerer.
func NewPager(registry *Registry, answerer weatherstuff.InlineAnswerer, options ...PagerOption) (*Pager, error) {
	if registry == nil {
		return nil, fmt.Errorf("new pager: nil registry")
	}
	if answerer == nil {
		return nil, fmt.Errorf("new pager: nil answerer")
	}

	pager := &Pager{
		registry: registry,
		answerer: answerer,
		limits: drainLimits{
			firstWait: defaultFirstWait,
			nextWait:  defaultNextWait,
			maxItems:  weatherstuff.MaxInlinePageSize,
		},
		cacheTime: defaultCacheTime,
		logger:    slog.Default(),
		tracer:    otel.Tracer(tracerName),
	}
	for _, option := range options {
		option(pager)
	}

	return pager, nil
}

// Page resolves one request to a page. It never fails: malformed cursors and
// unknown sessions produce a terminal empty page.
func (p *Pager) Page(ctx context.Context, request PageRequest) PageResult {
	var (
		session *Session
		cursor  Cursor
		started bool
	)

	if request.Cursor == "" {
		var err error
		session, started, err = p.registry.StartOrResume(ctx, request.QueryID, request.Owner, request.Text)
		if err != nil {
			p.logger.WarnContext(ctx, "inline page start failed",
				"query_id", request.QueryID,
				"owner", request.Owner,
				"error", err,
			)
			return p.terminal()
		}
		cursor = Cursor{SessionID: session.ID()}
	} else {
		var err error
		cursor, err = ParseCursor(request.Cursor)
		if err != nil {
			p.logger.DebugContext(ctx, "inline page cursor rejected",
				"cursor", request.Cursor,
				"error", err,
			)
			return p.terminal()
		}

		var ok bool
		session, ok = p.registry.Lookup(cursor.SessionID)
		if !ok || session.Owner() != request.Owner {
			p.logger.DebugContext(ctx, "inline page for stale session",
				"session_id", cursor.SessionID,
				"owner", request.Owner,
			)
			return p.terminal()
		}
	}

	p.registry.Touch(session)
	drained := session.drain(ctx, p.limits)
	p.registry.Touch(session)

	result := PageResult{
		Page: weatherstuff.InlinePage{
			Items:      drained.items,
			NextCursor: cursor.Next().String(),
			CacheTime:  p.cacheTime,
		},
		SessionID: session.ID(),
		Started:   started,
	}
	state := session.State()
	if len(drained.items) == 0 && (state == SessionDrained || state == SessionClosed) {
		p.registry.Cancel(session.ID())
		result.Page.NextCursor = ""
	}

	p.logger.DebugContext(ctx, "inline page drained",
		"session_id", session.ID(),
		"cursor_page", cursor.Page,
		"drain", drained.page,
		"items", len(drained.items),
		"duplicates", drained.duplicates,
		"ended", drained.ended,
		"terminal", result.Page.Terminal(),
	)

	return result
}

// Serve answers one inline query event.
//
// A failed delivery cancels the session immediately and is not retried.
func (p *Pager) Serve(ctx context.Context, event *weatherstuff.Event) (err error) {
	if event == nil || event.InlineQuery == nil {
		return fmt.Errorf("inline search serve: %w: missing inline query", weatherstuff.ErrInvalidEvent)
	}

	query := event.InlineQuery
	ctx, span := p.tracer.Start(ctx, "inlinesearch.page", trace.WithAttributes(
		attribute.String("inline.query_id", query.ID),
		attribute.String("inline.cursor", query.Cursor),
		attribute.String("event.source", event.Source.ID),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	result := p.Page(ctx, PageRequest{
		QueryID: query.ID,
		Owner:   ownerKey(event),
		Text:    query.Text,
		Cursor:  query.Cursor,
	})
	span.SetAttributes(
		attribute.String("inline.session_id", result.SessionID),
		attribute.Int("inline.items", len(result.Page.Items)),
	)

	answer := weatherstuff.InlineAnswer{
		Source:  event.Source,
		QueryID: query.ID,
		Page:    result.Page,
	}
	if err := p.answerer.AnswerInlineQuery(ctx, answer); err != nil {
		if result.SessionID != "" {
			p.registry.Cancel(result.SessionID)
		}
		level := slog.LevelWarn
		if weatherstuff.DeliveryErrorKindOf(err) == weatherstuff.DeliveryErrorKindExpired {
			level = slog.LevelInfo
		}
		p.logger.Log(ctx, level, "inline page delivery failed",
			"session_id", result.SessionID,
			"query_id", query.ID,
			"error", err,
		)
		return fmt.Errorf("inline search deliver page for query %s: %w", query.ID, err)
	}

	return nil
}

func (p *Pager) terminal() PageResult {
	return PageResult{
		Page: weatherstuff.InlinePage{CacheTime: p.cacheTime},
	}
}

// ownerKey scopes a user to the bot instance that received the query.
func ownerKey(event *weatherstuff.Event) string {
	return event.Source.ID + "/" + event.Actor.ID
}


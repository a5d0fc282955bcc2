package weatherstuff

import (
	"context"
	"fmt"
	"time"
)

// MaxInlinePageSize is the largest number of results one inline answer may carry.
const MaxInlinePageSize = 50

// InlineQuery is one inbound page request for a free-text search.
type InlineQuery struct {
	// ID identifies this page request on the source platform and is used to answer it.
	ID string
	// Text is the user's search text.
	Text string
	// Cursor is the opaque paging token echoed by the client; empty on the first page.
	Cursor string
}

// ResultKind distinguishes still images from animations.
type ResultKind string

const (
	// ResultKindStill is a still image result such as a forecast chart.
	ResultKindStill ResultKind = "still"
	// ResultKindAnimation is an animated result such as a radar loop.
	ResultKindAnimation ResultKind = "animation"
)

// ResultItem is one deliverable inline result.
type ResultItem struct {
	// ID is the stable, content-derived result identifier.
	ID string
	// Kind selects still or animation presentation.
	Kind ResultKind
	// URL is the full-size artifact URL.
	URL string
	// ThumbURL is the thumbnail URL.
	ThumbURL string
	// Width is the artifact width in pixels.
	Width int
	// Height is the artifact height in pixels.
	Height int
	// Title is the short result title.
	Title string
	// Caption is the message text sent along with the result.
	Caption string
}

// Validate checks that a result carries everything an answer needs.
func (r ResultItem) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: result missing id", ErrInvalidInlineAnswer)
	}
	if r.URL == "" {
		return fmt.Errorf("%w: result %s missing url", ErrInvalidInlineAnswer, r.ID)
	}
	switch r.Kind {
	case ResultKindStill, ResultKindAnimation:
	default:
		return fmt.Errorf("%w: result %s has unsupported kind %q", ErrInvalidInlineAnswer, r.ID, r.Kind)
	}

	return nil
}

// InlinePage is one page of results plus the cursor for the next request.
//
// An empty Items slice is a valid answer. An empty NextCursor tells the client
// that the stream has ended.
type InlinePage struct {
	Items      []ResultItem
	NextCursor string
	// CacheTime is how long the client may cache this answer.
	CacheTime time.Duration
}

// Terminal reports whether the page ends the stream.
func (p InlinePage) Terminal() bool {
	return p.NextCursor == ""
}

// InlineAnswer addresses one page to the inline query it answers.
type InlineAnswer struct {
	// Source identifies which driver instance received the query.
	Source EventSource
	// QueryID is the platform inline query identifier.
	QueryID string
	// Page is the page content.
	Page InlinePage
}

// Validate checks answer invariants before platform delivery.
func (a InlineAnswer) Validate() error {
	if a.QueryID == "" {
		return fmt.Errorf("%w: missing query id", ErrInvalidInlineAnswer)
	}
	if len(a.Page.Items) > MaxInlinePageSize {
		return fmt.Errorf("%w: %d items exceed page limit %d", ErrInvalidInlineAnswer, len(a.Page.Items), MaxInlinePageSize)
	}
	for _, item := range a.Page.Items {
		if err := item.Validate(); err != nil {
			return err
		}
	}

	return nil
}

// InlineAnswerer delivers inline pages back to the platform.
type InlineAnswerer interface {
	// AnswerInlineQuery delivers one page. A returned error means the client
	// did not receive the page.
	AnswerInlineQuery(ctx context.Context, answer InlineAnswer) error
}

package inlinesearch

import (
	"context"
	"sync"
	"time"

	"weatherstuff/pkg/weatherstuff"
)

// SessionState is the lifecycle position of one query session.
type SessionState int

const (
	// SessionCreated is a registered session whose pool has not started yet.
	SessionCreated SessionState = iota
	// SessionProducing is a session whose stream may still yield results.
	SessionProducing
	// SessionDrained is a session whose end of stream has been consumed.
	SessionDrained
	// SessionClosed is a released session.
	SessionClosed
)

// String returns the lower-case state name.
func (s SessionState) String() string {
	switch s {
	case SessionCreated:
		return "created"
	case SessionProducing:
		return "producing"
	case SessionDrained:
		return "drained"
	case SessionClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Session is the live state of one inline search.
//
// The results channel is closed exactly once when the pool finishes; the
// close is the end-of-stream marker.
type Session struct {
	id        string
	owner     string
	query     string
	createdAt time.Time

	results chan weatherstuff.ResultItem
	// done is closed when the session is released.
	done chan struct{}

	mu         sync.Mutex
	state      SessionState
	finished   bool
	cancelPool context.CancelFunc
	grace      *time.Timer

	// drainMu serializes page drains; delivered is guarded by it.
	drainMu   sync.Mutex
	delivered map[string]struct{}
	pages     int
}

func newSession(id, owner, query string, capacity int, now time.Time) *Session {
	return &Session{
		id:        id,
		owner:     owner,
		query:     query,
		createdAt: now,
		results:   make(chan weatherstuff.ResultItem, capacity),
		done:      make(chan struct{}),
		delivered: make(map[string]struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Owner returns the key of the user that started the session.
func (s *Session) Owner() string {
	return s.owner
}

// Query returns the search text the session was started for.
func (s *Session) Query() string {
	return s.query
}

// State returns the current lifecycle state.
func (s *Session) State() SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.state
}

// Done is closed once the session has been released.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// DeliveredCount returns how many distinct results have been handed out.
func (s *Session) DeliveredCount() int {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	return len(s.delivered)
}

// startProducing records the pool cancel function.
func (s *Session) startProducing(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancelPool = cancel
	if s.state == SessionCreated {
		s.state = SessionProducing
	}
}

// push enqueues one result. It reports false once the session is closed or
// the stream has ended, and never blocks.
func (s *Session) push(item weatherstuff.ResultItem) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosed || s.finished {
		return false
	}
	select {
	case s.results <- item:
		return true
	default:
		return false
	}
}

// finish closes the stream. It reports false when the stream was already closed.
func (s *Session) finish() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finished {
		return false
	}
	s.finished = true
	close(s.results)

	return true
}

// armGrace schedules expire after delay when the stream has ended. Each call
// restarts the countdown.
func (s *Session) armGrace(delay time.Duration, expire func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.finished || s.state == SessionClosed {
		return
	}
	if s.grace != nil {
		s.grace.Stop()
	}
	s.grace = time.AfterFunc(delay, expire)
}

// markDrained records that the end of stream was consumed by a page drain.
func (s *Session) markDrained() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionProducing || s.state == SessionCreated {
		s.state = SessionDrained
	}
}

// close releases the session. It reports false when already closed.
func (s *Session) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == SessionClosed {
		return false
	}
	s.state = SessionClosed
	if s.grace != nil {
		s.grace.Stop()
		s.grace = nil
	}
	if s.cancelPool != nil {
		s.cancelPool()
	}
	close(s.done)

	return true
}

// drainLimits bounds one page drain.
type drainLimits struct {
	firstWait time.Duration
	nextWait  time.Duration
	maxItems  int
}

// drainResult is the outcome of one page drain.
type drainResult struct {
	items []weatherstuff.ResultItem
	// ended reports that the end of stream was observed.
	ended bool
	// duplicates counts results skipped because they were already delivered.
	duplicates int
	page       int
}

// drain collects the next page.
//
// The first pull waits up to firstWait; once one result is collected, further
// pulls wait up to nextWait each. Duplicates do not change which wait applies.
func (s *Session) drain(ctx context.Context, limits drainLimits) drainResult {
	s.drainMu.Lock()
	defer s.drainMu.Unlock()

	s.pages++
	result := drainResult{page: s.pages}
	timer := time.NewTimer(limits.firstWait)
	defer timer.Stop()

	for len(result.items) < limits.maxItems {
		select {
		case item, ok := <-s.results:
			if !ok {
				result.ended = true
				s.markDrained()
				return result
			}
			if _, seen := s.delivered[item.ID]; seen {
				result.duplicates++
				continue
			}
			s.delivered[item.ID] = struct{}{}
			result.items = append(result.items, item)
			timer.Reset(limits.nextWait)
		case <-timer.C:
			return result
		case <-s.done:
			return result
		case <-ctx.Done():
			return result
		}
	}

	return result
}

package inlinesearch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"weatherstuff/pkg/weatherstuff"

	"github.com/rs/xid"
)

const (
	defaultGracePeriod    = 5 * time.Second
	defaultStreamCapacity = 2 * defaultMaxLocations
)

// EmitFunc hands one produced result to a session. It reports false once the
// session no longer accepts results.
type EmitFunc func(item weatherstuff.ResultItem) bool

// Runner produces every result for one query and returns when done or canceled.
type Runner interface {
	Run(ctx context.Context, query string, emit EmitFunc)
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, query string, emit EmitFunc)

// Run calls f.
func (f RunnerFunc) Run(ctx context.Context, query string, emit EmitFunc) {
	f(ctx, query, emit)
}

// RegistryOption mutates session registry configuration.
type RegistryOption func(*Registry)

// WithGracePeriod sets how long a finished session stays resumable.
func WithGracePeriod(grace time.Duration) RegistryOption {
	return func(registry *Registry) {
		if grace > 0 {
			registry.grace = grace
		}
	}
}

// WithStreamCapacity sets the per-session result buffer. It must cover the
// largest candidate fan-out.
func WithStreamCapacity(capacity int) RegistryOption {
	return func(registry *Registry) {
		if capacity > 0 {
			registry.capacity = capacity
		}
	}
}

// WithRegistryLogger sets the registry logger.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(registry *Registry) {
		if logger != nil {
			registry.logger = logger
		}
	}
}

// withSessionIDs replaces generated session ids.
func withSessionIDs(newID func() string) RegistryOption {
	return func(registry *Registry) {
		if newID != nil {
			registry.newID = newID
		}
	}
}

// Registry owns every live session and the single active session per owner.
//
// Lock order is registry before session.
type Registry struct {
	runner   Runner
	grace    time.Duration
	capacity int
	logger   *slog.Logger
	newID    func() string
	now      func() time.Time

	mu       sync.Mutex
	closed   bool
	sessions map[string]*Session
	owners   map[string]string

	pools sync.WaitGroup
}

// NewRegistry creates a session registry whose sessions are fed by runner.
func NewRegistry(runner Runner, options ...RegistryOption) (*Registry, error) {
	if runner == nil {
		return nil, fmt.Errorf("new session registry: nil runner")
	}

	registry := &Registry{
		runner:   runner,
		grace:    defaultGracePeriod,
		capacity: defaultStreamCapacity,
		logger:   slog.Default(),
		newID:    func() string { return xid.New().String() },
		now:      time.Now,
		sessions: make(map[string]*Session),
		owners:   make(map[string]string),
	}
	for _, option := range options {
		option(registry)
	}

	return registry, nil
}

// StartOrResume returns the session for a first page request.
//
// A known sessionID owned by the same owner is resumed. Otherwise any active
// session of owner is canceled and a new one is started; an empty sessionID
// gets a generated id.
func (r *Registry) StartOrResume(
	ctx context.Context,
	sessionID string,
	owner string,
	query string,
) (*Session, bool, error) {
	if owner == "" {
		return nil, false, fmt.Errorf("start session: empty owner")
	}
	if sessionID != "" && !validSessionID(sessionID) {
		return nil, false, fmt.Errorf("start session: %w: session id %q", weatherstuff.ErrInvalidCursor, sessionID)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil, false, fmt.Errorf("start session: %w", weatherstuff.ErrRegistryClosed)
	}
	if existing, ok := r.sessions[sessionID]; ok && sessionID != "" {
		if existing.owner != owner {
			return nil, false, fmt.Errorf("start session %s: %w: owned by another user", sessionID, weatherstuff.ErrStaleSession)
		}
		return existing, false, nil
	}

	if previousID, ok := r.owners[owner]; ok {
		if previous, exists := r.sessions[previousID]; exists {
			r.cancelLocked(previous, "superseded")
		}
	}

	if sessionID == "" {
		sessionID = r.newID()
	}
	session := newSession(sessionID, owner, query, r.capacity, r.now())
	r.sessions[sessionID] = session
	r.owners[owner] = sessionID

	poolCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	session.startProducing(cancel)

	r.pools.Add(1)
	go r.runPool(poolCtx, session)

	r.logger.DebugContext(ctx,
		"inline session started",
		"session_id", sessionID,
		"owner", owner,
	)

	return session, true, nil
}

func (r *Registry) runPool(ctx context.Context, session *Session) {
	defer r.pools.Done()
	defer func() {
		if recovered := recover(); recovered != nil {
			r.logger.Error("inline session pool panic recovered",
				"session_id", session.id,
				"panic", recovered,
			)
		}
		session.finish()
		session.armGrace(r.grace, func() { r.expire(session) })
	}()

	r.runner.Run(ctx, session.query, session.push)
}

// Lookup returns a live session by id.
func (r *Registry) Lookup(sessionID string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]

	return session, ok
}

// Touch restarts the grace countdown of a finished session.
func (r *Registry) Touch(session *Session) {
	session.armGrace(r.grace, func() { r.expire(session) })
}

// Cancel releases a session immediately. It reports whether a live session
// was released.
func (r *Registry) Cancel(sessionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[sessionID]
	if !ok {
		return false
	}

	return r.cancelLocked(session, "canceled")
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessions)
}

// ActiveSession returns the id of owner's active session.
func (r *Registry) ActiveSession(owner string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	sessionID, ok := r.owners[owner]

	return sessionID, ok
}

// Close releases every session, rejects new ones, and waits for running
// pools to return.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	for _, session := range r.sessions {
		r.cancelLocked(session, "registry closed")
	}
	r.mu.Unlock()

	waited := make(chan struct{})
	go func() {
		r.pools.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("close session registry: %w", ctx.Err())
	}
}

func (r *Registry) expire(session *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.sessions[session.id]; !ok || current != session {
		return
	}
	r.cancelLocked(session, "grace period elapsed")
}

func (r *Registry) cancelLocked(session *Session, reason string) bool {
	delete(r.sessions, session.id)
	if r.owners[session.owner] == session.id {
		delete(r.owners, session.owner)
	}
	if !session.close() {
		return false
	}

	r.logger.Debug("inline session closed",
		"session_id", session.id,
		"owner", session.owner,
		"reason", reason,
	)

	return true
}

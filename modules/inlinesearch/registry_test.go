package inlinesearch

import (
	"context"
	"errors"
	"testing"
	"time"

	"weatherstuff/pkg/weatherstuff"
)

func TestRegistryStartOrResume(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{release: make(chan struct{})}
	registry := newTestRegistry(t, runner)

	session, started, err := registry.StartOrResume(context.Background(), "-100", "tg/1", "zurich")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if !started {
		t.Fatal("expected a new session")
	}
	if session.ID() != "-100" || session.Query() != "zurich" {
		t.Fatalf("unexpected session %s %q", session.ID(), session.Query())
	}
	if state := session.State(); state != SessionProducing {
		t.Fatalf("state = %s, want producing", state)
	}

	resumed, started, err := registry.StartOrResume(context.Background(), "-100", "tg/1", "zurich")
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if started || resumed != session {
		t.Fatal("expected the re-delivered request to resume the same session")
	}

	_, _, err = registry.StartOrResume(context.Background(), "-100", "tg/2", "zurich")
	if !errors.Is(err, weatherstuff.ErrStaleSession) {
		t.Fatalf("foreign resume error = %v, want ErrStaleSession", err)
	}

	eventually(t, time.Second, func() bool { return runner.runs.Load() == 1 })
}

func TestRegistryGeneratesSessionIDs(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, &scriptedRunner{release: make(chan struct{})},
		withSessionIDs(func() string { return "generated" }),
	)

	session, _, err := registry.StartOrResume(context.Background(), "", "tg/1", "bern")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if session.ID() != "generated" {
		t.Fatalf("session id = %q, want generated", session.ID())
	}
	if _, ok := registry.Lookup("generated"); !ok {
		t.Fatal("expected generated session to be registered")
	}
}

func TestRegistryDefaultIDsContainNoSeparator(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, &scriptedRunner{})
	session, _, err := registry.StartOrResume(context.Background(), "", "tg/1", "bern")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	parsed, err := ParseCursor(Cursor{SessionID: session.ID(), Page: 1}.String())
	if err != nil {
		t.Fatalf("generated id %q does not round trip: %v", session.ID(), err)
	}
	if parsed.SessionID != session.ID() {
		t.Fatalf("parsed session = %q, want %q", parsed.SessionID, session.ID())
	}
}

func TestRegistrySupersedesPreviousSessionOfOwner(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{release: make(chan struct{})}
	registry := newTestRegistry(t, runner)

	first, _, err := registry.StartOrResume(context.Background(), "1", "tg/7", "basel")
	if err != nil {
		t.Fatalf("first start failed: %v", err)
	}
	other, _, err := registry.StartOrResume(context.Background(), "2", "tg/8", "basel")
	if err != nil {
		t.Fatalf("other owner start failed: %v", err)
	}
	second, _, err := registry.StartOrResume(context.Background(), "3", "tg/7", "basel stadt")
	if err != nil {
		t.Fatalf("second start failed: %v", err)
	}

	select {
	case <-first.Done():
	default:
		t.Fatal("expected superseded session to be released")
	}
	if state := first.State(); state != SessionClosed {
		t.Fatalf("superseded state = %s, want closed", state)
	}
	if _, ok := registry.Lookup("1"); ok {
		t.Fatal("superseded session still registered")
	}
	if active, _ := registry.ActiveSession("tg/7"); active != second.ID() {
		t.Fatalf("active session = %q, want %q", active, second.ID())
	}
	if state := other.State(); state != SessionProducing {
		t.Fatalf("other owner state = %s, want producing", state)
	}

	eventually(t, time.Second, func() bool { return runner.canceled.Load() == 1 })
	if registry.Len() != 2 {
		t.Fatalf("live sessions = %d, want 2", registry.Len())
	}
}

func TestRegistryRejectsPushAfterCancel(t *testing.T) {
	t.Parallel()

	emits := make(chan EmitFunc, 1)
	release := make(chan struct{})
	runner := RunnerFunc(func(ctx context.Context, _ string, emit EmitFunc) {
		emits <- emit
		select {
		case <-release:
		case <-ctx.Done():
		}
	})
	registry := newTestRegistry(t, runner)
	defer close(release)

	session, _, err := registry.StartOrResume(context.Background(), "5", "tg/1", "chur")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	emit := <-emits
	if !emit(newItem("a")) {
		t.Fatal("expected push to live session to succeed")
	}

	if !registry.Cancel(session.ID()) {
		t.Fatal("expected cancel to release the session")
	}
	if registry.Cancel(session.ID()) {
		t.Fatal("expected second cancel to be a no-op")
	}
	if emit(newItem("b")) {
		t.Fatal("expected push after cancel to be rejected")
	}
}

func TestRegistryExpiresFinishedSessionAfterGrace(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, &scriptedRunner{items: []weatherstuff.ResultItem{newItem("a")}},
		WithGracePeriod(30*time.Millisecond),
	)

	session, _, err := registry.StartOrResume(context.Background(), "9", "tg/1", "thun")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	eventually(t, time.Second, func() bool { return registry.Len() == 0 })
	if state := session.State(); state != SessionClosed {
		t.Fatalf("state = %s, want closed", state)
	}
	if _, ok := registry.ActiveSession("tg/1"); ok {
		t.Fatal("owner still mapped after expiry")
	}
}

func TestRegistryTouchDefersExpiry(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, &scriptedRunner{}, WithGracePeriod(150*time.Millisecond))

	session, _, err := registry.StartOrResume(context.Background(), "10", "tg/1", "sion")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	eventually(t, time.Second, func() bool {
		session.mu.Lock()
		defer session.mu.Unlock()
		return session.finished
	})

	for range 4 {
		time.Sleep(30 * time.Millisecond)
		registry.Touch(session)
	}
	if _, ok := registry.Lookup("10"); !ok {
		t.Fatal("touched session expired early")
	}

	eventually(t, time.Second, func() bool { return registry.Len() == 0 })
}

func TestRegistryCloseRejectsNewSessions(t *testing.T) {
	t.Parallel()

	runner := &scriptedRunner{release: make(chan struct{})}
	registry, err := NewRegistry(runner, WithRegistryLogger(discardLogger()))
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}

	session, _, err := registry.StartOrResume(context.Background(), "11", "tg/1", "aarau")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := registry.Close(ctx); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if state := session.State(); state != SessionClosed {
		t.Fatalf("state = %s, want closed", state)
	}
	if runner.canceled.Load() != 1 {
		t.Fatalf("runner cancellations = %d, want 1", runner.canceled.Load())
	}

	_, _, err = registry.StartOrResume(context.Background(), "12", "tg/1", "aarau")
	if !errors.Is(err, weatherstuff.ErrRegistryClosed) {
		t.Fatalf("start after close error = %v, want ErrRegistryClosed", err)
	}
}

func TestRegistryRecoversRunnerPanic(t *testing.T) {
	t.Parallel()

	registry := newTestRegistry(t, RunnerFunc(func(context.Context, string, EmitFunc) {
		panic("geocoder exploded")
	}))

	session, _, err := registry.StartOrResume(context.Background(), "13", "tg/1", "lugano")
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}

	select {
	case _, ok := <-session.results:
		if ok {
			t.Fatal("expected closed stream after panic")
		}
	case <-time.After(time.Second):
		t.Fatal("stream not closed after runner panic")
	}
}

func TestNewRegistryRejectsNilRunner(t *testing.T) {
	t.Parallel()

	if _, err := NewRegistry(nil); err == nil {
		t.Fatal("expected nil runner error")
	}
}

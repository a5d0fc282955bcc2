package inlinesearch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"weatherstuff/pkg/weatherstuff"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newItem(id string) weatherstuff.ResultItem {
	return weatherstuff.ResultItem{
		ID:    id,
		Kind:  weatherstuff.ResultKindStill,
		URL:   "https://img.example/" + id + ".png",
		Title: id,
	}
}

type stubGeocoder struct {
	locations []weatherstuff.Location
	err       error
	calls     atomic.Int64
}

func (g *stubGeocoder) Search(context.Context, string) ([]weatherstuff.Location, error) {
	g.calls.Add(1)
	if g.err != nil {
		return nil, g.err
	}

	return append([]weatherstuff.Location(nil), g.locations...), nil
}

type cacheFunc func(ctx context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error)

func (f cacheFunc) Get(ctx context.Context, key weatherstuff.ArtifactKey) (weatherstuff.Artifact, error) {
	return f(ctx, key)
}

type captureAnswerer struct {
	mu      sync.Mutex
	answers []weatherstuff.InlineAnswer
	err     error
}

func (a *captureAnswerer) AnswerInlineQuery(_ context.Context, answer weatherstuff.InlineAnswer) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.answers = append(a.answers, answer)

	return a.err
}

func (a *captureAnswerer) captured() []weatherstuff.InlineAnswer {
	a.mu.Lock()
	defer a.mu.Unlock()

	return append([]weatherstuff.InlineAnswer(nil), a.answers...)
}

// scriptedRunner emits its items, then waits for release when set.
type scriptedRunner struct {
	items   []weatherstuff.ResultItem
	release chan struct{}

	runs     atomic.Int64
	canceled atomic.Int64
	rejected atomic.Int64
}

func (r *scriptedRunner) Run(ctx context.Context, _ string, emit EmitFunc) {
	r.runs.Add(1)
	for _, item := range r.items {
		if !emit(item) {
			r.rejected.Add(1)
		}
	}
	if r.release == nil {
		return
	}

	select {
	case <-r.release:
	case <-ctx.Done():
		r.canceled.Add(1)
	}
}

func newTestRegistry(t *testing.T, runner Runner, options ...RegistryOption) *Registry {
	t.Helper()

	options = append([]RegistryOption{WithRegistryLogger(discardLogger())}, options...)
	registry, err := NewRegistry(runner, options...)
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := registry.Close(ctx); err != nil {
			t.Errorf("close registry failed: %v", err)
		}
	})

	return registry
}

func newTestPager(
	t *testing.T,
	registry *Registry,
	answerer weatherstuff.InlineAnswerer,
	options ...PagerOption,
) *Pager {
	t.Helper()

	options = append([]PagerOption{
		WithPagerLogger(discardLogger()),
		WithFirstWait(time.Second),
		WithNextWait(50 * time.Millisecond),
	}, options...)
	pager, err := NewPager(registry, answerer, options...)
	if err != nil {
		t.Fatalf("new pager failed: %v", err)
	}

	return pager
}

func eventually(t *testing.T, timeout time.Duration, condition func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func itemIDs(items []weatherstuff.ResultItem) []string {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	return ids
}

package driver

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"weatherstuff/pkg/weatherstuff"
)

func TestRegistryBuildEnabled(t *testing.T) {
	t.Parallel()

	registry, err := NewRegistry([]Descriptor{
		{
			Type:     "telegram",
			Platform: weatherstuff.PlatformTelegram,
			Builder: func(_ context.Context, definition Definition, _ *slog.Logger) (Runtime, error) {
				if definition.Name == "broken" {
					return Runtime{}, errors.New("broken build")
				}

				return Runtime{
					Source: weatherstuff.EventSource{Platform: weatherstuff.PlatformTelegram},
					Driver: stubDriver{name: definition.Name},
				}, nil
			},
		},
	})
	if err != nil {
		t.Fatalf("new registry failed: %v", err)
	}

	tests := []struct {
		name        string
		definitions []Definition
		wantIDs     []string
		wantErr     bool
	}{
		{
			name: "disabled entries skipped and source id defaults to name",
			definitions: []Definition{
				{Name: "tg-main", Type: "telegram", Enabled: true},
				{Name: "tg-off", Type: "telegram", Enabled: false},
			},
			wantIDs: []string{"tg-main"},
		},
		{
			name: "builder failure",
			definitions: []Definition{
				{Name: "broken", Type: "telegram", Enabled: true},
			},
			wantErr: true,
		},
		{
			name: "unsupported type",
			definitions: []Definition{
				{Name: "x", Type: "discord", Enabled: true},
			},
			wantErr: true,
		},
		{
			name: "duplicate name",
			definitions: []Definition{
				{Name: "tg-main", Type: "telegram", Enabled: true},
				{Name: "tg-main", Type: "telegram", Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			runtimes, err := registry.BuildEnabled(context.Background(), testCase.definitions, slog.Default())
			if testCase.wantErr {
				if err == nil {
					t.Fatal("expected build error")
				}
				return
			}
			if err != nil {
				t.Fatalf("build enabled failed: %v", err)
			}
			if len(runtimes) != len(testCase.wantIDs) {
				t.Fatalf("runtimes len = %d, want %d", len(runtimes), len(testCase.wantIDs))
			}
			for idx, runtime := range runtimes {
				if runtime.Source.ID != testCase.wantIDs[idx] {
					t.Fatalf("runtime[%d] source id = %s, want %s", idx, runtime.Source.ID, testCase.wantIDs[idx])
				}
			}
		})
	}
}

func TestNewRegistryRejectsInvalidDescriptors(t *testing.T) {
	t.Parallel()

	builder := func(context.Context, Definition, *slog.Logger) (Runtime, error) { return Runtime{}, nil }
	tests := []struct {
		name        string
		descriptors []Descriptor
	}{
		{name: "empty type", descriptors: []Descriptor{{Platform: weatherstuff.PlatformTelegram, Builder: builder}}},
		{name: "empty platform", descriptors: []Descriptor{{Type: "telegram", Builder: builder}}},
		{name: "nil builder", descriptors: []Descriptor{{Type: "telegram", Platform: weatherstuff.PlatformTelegram}}},
		{
			name: "duplicate",
			descriptors: []Descriptor{
				{Type: "telegram", Platform: weatherstuff.PlatformTelegram, Builder: builder},
				{Type: "telegram", Platform: weatherstuff.PlatformTelegram, Builder: builder},
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			if _, err := NewRegistry(testCase.descriptors); err == nil {
				t.Fatal("expected registry error")
			}
		})
	}
}

func TestCompositeInlineAnswererRoutesBySource(t *testing.T) {
	t.Parallel()

	primary := &stubAnswerer{}
	secondary := &stubAnswerer{}
	answerer, err := NewCompositeInlineAnswerer([]Runtime{
		{Source: weatherstuff.EventSource{Platform: weatherstuff.PlatformTelegram, ID: "tg-main"}, Answerer: primary},
		{Source: weatherstuff.EventSource{Platform: weatherstuff.PlatformTelegram, ID: "tg-alt"}, Answerer: secondary},
		{Source: weatherstuff.EventSource{Platform: weatherstuff.PlatformTelegram, ID: "inbound-only"}},
	})
	if err != nil {
		t.Fatalf("new composite inline answerer failed: %v", err)
	}

	err = answerer.AnswerInlineQuery(context.Background(), weatherstuff.InlineAnswer{
		Source:  weatherstuff.EventSource{ID: "tg-main"},
		QueryID: "42",
	})
	if err != nil {
		t.Fatalf("answer inline query failed: %v", err)
	}
	if primary.calls != 1 || secondary.calls != 0 {
		t.Fatalf("calls = (%d, %d), want (1, 0)", primary.calls, secondary.calls)
	}
	if got := answerer.Sources(); len(got) != 2 || got[0].ID != "tg-alt" || got[1].ID != "tg-main" {
		t.Fatalf("sources = %+v, want tg-alt and tg-main", got)
	}
}

func TestCompositeInlineAnswererResolveErrors(t *testing.T) {
	t.Parallel()

	answerer, err := NewCompositeInlineAnswerer([]Runtime{
		{Source: weatherstuff.EventSource{Platform: weatherstuff.PlatformTelegram, ID: "tg-main"}, Answerer: &stubAnswerer{}},
		{Source: weatherstuff.EventSource{Platform: weatherstuff.PlatformTelegram, ID: "tg-alt"}, Answerer: &stubAnswerer{}},
	})
	if err != nil {
		t.Fatalf("new composite inline answerer failed: %v", err)
	}

	tests := []struct {
		name   string
		source weatherstuff.EventSource
	}{
		{name: "ambiguous platform", source: weatherstuff.EventSource{Platform: weatherstuff.PlatformTelegram}},
		{name: "unknown id", source: weatherstuff.EventSource{ID: "tg-missing"}},
		{name: "platform mismatch", source: weatherstuff.EventSource{Platform: "discord", ID: "tg-main"}},
		{name: "empty source with many answerers", source: weatherstuff.EventSource{}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			err := answerer.AnswerInlineQuery(context.Background(), weatherstuff.InlineAnswer{
				Source:  testCase.source,
				QueryID: "42",
			})
			if !errors.Is(err, weatherstuff.ErrAnswerUnsupported) {
				t.Fatalf("error = %v, want ErrAnswerUnsupported", err)
			}
		})
	}
}

func TestNewCompositeInlineAnswererRejectsDuplicates(t *testing.T) {
	t.Parallel()

	_, err := NewCompositeInlineAnswerer([]Runtime{
		{Source: weatherstuff.EventSource{Platform: weatherstuff.PlatformTelegram, ID: "tg-main"}, Answerer: &stubAnswerer{}},
		{Source: weatherstuff.EventSource{Platform: weatherstuff.PlatformTelegram, ID: "tg-main"}, Answerer: &stubAnswerer{}},
	})
	if err == nil {
		t.Fatal("expected duplicate source error")
	}
}

type stubDriver struct {
	name string
}

func (d stubDriver) Name() string {
	return d.name
}

func (d stubDriver) Start(_ context.Context, _ weatherstuff.EventDispatcher) error {
	return nil
}

func (d stubDriver) Shutdown(_ context.Context) error {
	return nil
}

type stubAnswerer struct {
	calls int
}

func (a *stubAnswerer) AnswerInlineQuery(context.Context, weatherstuff.InlineAnswer) error {
	a.calls++
	return nil
}

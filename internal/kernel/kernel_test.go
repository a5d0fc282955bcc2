package kernel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"weatherstuff/pkg/weatherstuff"
)

// TestRegisterModuleDependencyValidation verifies capability-required service validation.
func TestRegisterModuleDependencyValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		registerService bool
		wantErr         bool
	}{
		{
			name:            "missing required service fails",
			registerService: false,
			wantErr:         true,
		},
		{
			name:            "present required service succeeds",
			registerService: true,
			wantErr:         false,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New()
			t.Cleanup(func() {
				_ = kernelRuntime.EventBus().Close(context.Background())
			})
			if testCase.registerService {
				if err := kernelRuntime.RegisterService(weatherstuff.ServiceGeocoder, struct{}{}); err != nil {
					t.Fatalf("register geocoder service failed: %v", err)
				}
			}

			module := &stubModule{
				name: "cap-module",
				spec: weatherstuff.ModuleSpec{
					AdditionalCapabilities: []weatherstuff.Capability{
						{Name: "needs-geocoder", RequiredServices: []string{weatherstuff.ServiceGeocoder}},
					},
				},
			}
			err := kernelRuntime.RegisterModule(context.Background(), module)
			if testCase.wantErr && !errors.Is(err, weatherstuff.ErrServiceNotFound) {
				t.Fatalf("register error = %v, want ErrServiceNotFound", err)
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected module registration error: %v", err)
			}
		})
	}
}

// TestKernelRegistersLoggerService verifies the configured logger is resolvable by modules.
func TestKernelRegistersLoggerService(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	t.Cleanup(func() {
		_ = kernelRuntime.EventBus().Close(context.Background())
	})

	if _, err := kernelRuntime.Services().Resolve(weatherstuff.ServiceLogger); err != nil {
		t.Fatalf("resolve logger failed: %v", err)
	}
}

// TestKernelRunCallsModuleLifecycle verifies lifecycle hook execution during run/shutdown.
func TestKernelRunCallsModuleLifecycle(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()

	module := &stubModule{name: "lifecycle"}
	if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}
	driver := &stubDriver{name: "stub-driver"}
	if err := kernelRuntime.RegisterDriver(driver); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}
	if err := kernelRuntime.RegisterDriver(&stubDriver{name: "stub-driver"}); !errors.Is(err, weatherstuff.ErrDriverAlreadyRegistered) {
		t.Fatalf("duplicate driver error = %v, want ErrDriverAlreadyRegistered", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() {
		runDone <- kernelRuntime.Run(runCtx)
	}()

	eventually(t, 2*time.Second, func() bool {
		return driver.started.Load() > 0
	})
	cancel()

	select {
	case err := <-runDone:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Fatalf("kernel run failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("kernel run did not exit")
	}

	if module.registered.Load() == 0 {
		t.Fatal("module OnRegister was not called")
	}
	if module.started.Load() == 0 {
		t.Fatal("module OnStart was not called")
	}
	if module.shutdown.Load() == 0 {
		t.Fatal("module OnShutdown was not called")
	}
	if driver.stopped.Load() == 0 {
		t.Fatal("driver Shutdown was not called")
	}
}

// TestKernelRunReturnsFatalDriverError verifies a failing driver stops the kernel.
func TestKernelRunReturnsFatalDriverError(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	failure := errors.New("login rejected")
	if err := kernelRuntime.RegisterDriver(&stubDriver{name: "broken", startErr: failure}); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}

	err := kernelRuntime.Run(context.Background())
	if !errors.Is(err, failure) {
		t.Fatalf("run error = %v, want %v", err, failure)
	}
}

// TestKernelDriverEventsReachModules verifies the driver sink stamps and forwards events.
func TestKernelDriverEventsReachModules(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	handled := make(chan *weatherstuff.Event, 1)
	module := &stubModule{
		name: "consumer",
		spec: weatherstuff.ModuleSpec{
			Handlers: []weatherstuff.ModuleHandler{
				{
					Capability: weatherstuff.Capability{
						Name:     "inline",
						Interest: weatherstuff.InterestSet{Kinds: []weatherstuff.EventKind{weatherstuff.EventKindInlineQuery}},
					},
					Handler: func(_ context.Context, event *weatherstuff.Event) error {
						handled <- event
						return nil
					},
				},
			},
		},
	}
	if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}

	event := newTestEvent("e1", "q1")
	event.OccurredAt = time.Time{}
	driver := &stubDriver{name: "publisher", publish: event}
	if err := kernelRuntime.RegisterDriver(driver); err != nil {
		t.Fatalf("register driver failed: %v", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() {
		runDone <- kernelRuntime.Run(runCtx)
	}()

	select {
	case got := <-handled:
		if got.OccurredAt.IsZero() {
			t.Fatal("driver sink did not stamp occurred_at")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for driver event")
	}

	cancel()
	if err := <-runDone; err != nil {
		t.Fatalf("kernel run failed: %v", err)
	}
}

// TestRegisterModuleBindsDeclarativeHandlers verifies handlers in ModuleSpec are auto-subscribed.
func TestRegisterModuleBindsDeclarativeHandlers(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	t.Cleanup(func() {
		_ = kernelRuntime.EventBus().Close(context.Background())
	})

	handled := make(chan string, 1)
	module := &stubModule{
		name: "declarative",
		spec: weatherstuff.ModuleSpec{
			Handlers: []weatherstuff.ModuleHandler{
				{
					Capability: weatherstuff.Capability{
						Name: "inline-query",
						Interest: weatherstuff.InterestSet{
							Kinds: []weatherstuff.EventKind{weatherstuff.EventKindInlineQuery},
						},
					},
					Subscription: weatherstuff.SubscriptionSpec{
						Name:    "declarative-handler",
						Buffer:  1,
						Workers: 1,
					},
					Handler: func(_ context.Context, event *weatherstuff.Event) error {
						handled <- event.ID
						return nil
					},
				},
			},
		},
	}
	if err := kernelRuntime.RegisterModule(context.Background(), module); err != nil {
		t.Fatalf("register module failed: %v", err)
	}
	if err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "declarative"}); !errors.Is(err, weatherstuff.ErrModuleAlreadyRegistered) {
		t.Fatalf("duplicate module error = %v, want ErrModuleAlreadyRegistered", err)
	}

	if err := kernelRuntime.EventBus().Publish(context.Background(), newTestEvent("e1", "q1")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	select {
	case id := <-handled:
		if id != "e1" {
			t.Fatalf("handled event id = %s, want e1", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for declarative handler")
	}
}

// TestRegisterModuleRollbackOnRegisterFailure verifies failed registration frees the module name.
func TestRegisterModuleRollbackOnRegisterFailure(t *testing.T) {
	t.Parallel()

	kernelRuntime := New()
	t.Cleanup(func() {
		_ = kernelRuntime.EventBus().Close(context.Background())
	})

	failing := &stubModule{
		name: "flaky",
		onRegister: func(context.Context, weatherstuff.ModuleRuntime) error {
			return errors.New("dependency unavailable")
		},
	}
	if err := kernelRuntime.RegisterModule(context.Background(), failing); err == nil {
		t.Fatal("expected registration failure")
	}
	if err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "flaky"}); err != nil {
		t.Fatalf("re-register after rollback failed: %v", err)
	}
}

// TestRegisterModuleImperativeSubscriptionCapabilityGate verifies imperative subscriptions
// remain possible, but only when capabilities are explicitly declared.
func TestRegisterModuleImperativeSubscriptionCapabilityGate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		spec    weatherstuff.ModuleSpec
		wantErr bool
	}{
		{
			name:    "missing capability fails",
			spec:    weatherstuff.ModuleSpec{},
			wantErr: true,
		},
		{
			name: "additional capability allows imperative subscribe",
			spec: weatherstuff.ModuleSpec{
				AdditionalCapabilities: []weatherstuff.Capability{
					{
						Name: "imperative-capability",
						Interest: weatherstuff.InterestSet{
							Kinds: []weatherstuff.EventKind{weatherstuff.EventKindInlineQuery},
						},
					},
				},
			},
			wantErr: false,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New()
			t.Cleanup(func() {
				_ = kernelRuntime.EventBus().Close(context.Background())
			})

			module := &stubModule{
				name: "imperative",
				spec: testCase.spec,
				onRegister: func(ctx context.Context, runtime weatherstuff.ModuleRuntime) error {
					_, err := runtime.Subscribe(ctx, weatherstuff.InterestSet{
						Kinds: []weatherstuff.EventKind{weatherstuff.EventKindInlineQuery},
					}, weatherstuff.SubscriptionSpec{
						Name: "imperative-handler",
					}, func(_ context.Context, _ *weatherstuff.Event) error {
						return nil
					})
					if err != nil {
						return fmt.Errorf("subscribe imperative handler: %w", err)
					}

					return nil
				},
			}

			err := kernelRuntime.RegisterModule(context.Background(), module)
			if testCase.wantErr && err == nil {
				t.Fatal("expected module registration error")
			}
			if !testCase.wantErr && err != nil {
				t.Fatalf("unexpected module registration error: %v", err)
			}
		})
	}
}

// TestRegisterModuleSpecValidation verifies declarative spec validation failures.
func TestRegisterModuleSpecValidation(t *testing.T) {
	t.Parallel()

	noop := func(_ context.Context, _ *weatherstuff.Event) error { return nil }
	inlineInterest := weatherstuff.InterestSet{
		Kinds: []weatherstuff.EventKind{weatherstuff.EventKindInlineQuery},
	}

	tests := []struct {
		name       string
		spec       weatherstuff.ModuleSpec
		wantErrSub string
	}{
		{
			name: "empty handler capability name",
			spec: weatherstuff.ModuleSpec{
				Handlers: []weatherstuff.ModuleHandler{
					{Capability: weatherstuff.Capability{Interest: inlineInterest}, Handler: noop},
				},
			},
			wantErrSub: "empty capability name",
		},
		{
			name: "duplicate capability name",
			spec: weatherstuff.ModuleSpec{
				Handlers: []weatherstuff.ModuleHandler{
					{Capability: weatherstuff.Capability{Name: "dup", Interest: inlineInterest}, Handler: noop},
				},
				AdditionalCapabilities: []weatherstuff.Capability{{Name: "dup"}},
			},
			wantErrSub: "duplicate capability name",
		},
		{
			name: "nil handler",
			spec: weatherstuff.ModuleSpec{
				Handlers: []weatherstuff.ModuleHandler{
					{Capability: weatherstuff.Capability{Name: "inline", Interest: inlineInterest}},
				},
			},
			wantErrSub: "nil handler",
		},
		{
			name: "duplicate subscription name",
			spec: weatherstuff.ModuleSpec{
				Handlers: []weatherstuff.ModuleHandler{
					{
						Capability:   weatherstuff.Capability{Name: "a", Interest: inlineInterest},
						Subscription: weatherstuff.SubscriptionSpec{Name: "same"},
						Handler:      noop,
					},
					{
						Capability:   weatherstuff.Capability{Name: "b", Interest: inlineInterest},
						Subscription: weatherstuff.SubscriptionSpec{Name: "same"},
						Handler:      noop,
					},
				},
			},
			wantErrSub: "duplicate subscription name",
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			kernelRuntime := New()
			t.Cleanup(func() {
				_ = kernelRuntime.EventBus().Close(context.Background())
			})

			err := kernelRuntime.RegisterModule(context.Background(), &stubModule{name: "invalid", spec: testCase.spec})
			if err == nil {
				t.Fatal("expected spec validation error")
			}
			if !strings.Contains(err.Error(), testCase.wantErrSub) {
				t.Fatalf("error = %v, want substring %q", err, testCase.wantErrSub)
			}
		})
	}
}

type stubModule struct {
	name string
	spec weatherstuff.ModuleSpec

	onRegister func(ctx context.Context, runtime weatherstuff.ModuleRuntime) error

	registered atomic.Int32
	started    atomic.Int32
	shutdown   atomic.Int32
}

func (m *stubModule) Name() string {
	return m.name
}

func (m *stubModule) Spec() weatherstuff.ModuleSpec {
	return m.spec
}

func (m *stubModule) OnRegister(ctx context.Context, runtime weatherstuff.ModuleRuntime) error {
	m.registered.Add(1)
	if m.onRegister != nil {
		if err := m.onRegister(ctx, runtime); err != nil {
			return err
		}
	}

	return nil
}

func (m *stubModule) OnStart(_ context.Context) error {
	m.started.Add(1)
	return nil
}

func (m *stubModule) OnShutdown(_ context.Context) error {
	m.shutdown.Add(1)
	return nil
}

type stubDriver struct {
	name     string
	startErr error
	publish  *weatherstuff.Event

	started atomic.Int32
	stopped atomic.Int32
}

func (d *stubDriver) Name() string {
	return d.name
}

func (d *stubDriver) Start(ctx context.Context, dispatcher weatherstuff.EventDispatcher) error {
	d.started.Add(1)
	if d.startErr != nil {
		return d.startErr
	}
	if d.publish != nil {
		if err := dispatcher.Publish(ctx, d.publish); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

func (d *stubDriver) Shutdown(_ context.Context) error {
	d.stopped.Add(1)
	return nil
}

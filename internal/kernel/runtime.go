package kernel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"weatherstuff/pkg/weatherstuff"
)

// moduleRecord stores module metadata and subscriptions managed by the kernel.
type moduleRecord struct {
	name          string
	module        weatherstuff.Module
	capabilities  []weatherstuff.Capability
	subscriptions []weatherstuff.Subscription
	subMu         sync.Mutex
}

// addSubscription tracks subscriptions so module shutdown can close them deterministically.
func (m *moduleRecord) addSubscription(subscription weatherstuff.Subscription) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	m.subscriptions = append(m.subscriptions, subscription)
}

// closeSubscriptions closes all tracked subscriptions and aggregates close errors.
// It clears the internal slice first to make repeated shutdown paths idempotent.
func (m *moduleRecord) closeSubscriptions(ctx context.Context) error {
	m.subMu.Lock()
	subscriptions := append([]weatherstuff.Subscription(nil), m.subscriptions...)
	m.subscriptions = nil
	m.subMu.Unlock()

	var closeErr error
	for _, subscription := range subscriptions {
		if err := subscription.Close(ctx); err != nil {
			closeErr = errors.Join(closeErr, fmt.Errorf("close subscription %s: %w", subscription.Name(), err))
		}
	}

	return closeErr
}

// moduleRuntime is the kernel-owned implementation of weatherstuff.ModuleRuntime.
type moduleRuntime struct {
	moduleName    string
	serviceLookup weatherstuff.ServiceRegistry
	bus           weatherstuff.EventBus
	record        *moduleRecord
}

// Services returns the kernel service registry visible to the module.
func (r *moduleRuntime) Services() weatherstuff.ServiceRegistry {
	return r.serviceLookup
}

// Subscribe registers a module-owned subscription after capability checks.
func (r *moduleRuntime) Subscribe(
	ctx context.Context,
	interest weatherstuff.InterestSet,
	spec weatherstuff.SubscriptionSpec,
	handler weatherstuff.EventHandler,
) (weatherstuff.Subscription, error) {
	if spec.Name == "" {
		spec.Name = fmt.Sprintf("%s-subscription", r.moduleName)
	}
	if err := assertSubscriptionAllowed(r.record.capabilities, spec.Name, interest); err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}

	subscription, err := r.bus.Subscribe(ctx, interest, spec, handler)
	if err != nil {
		return nil, fmt.Errorf("module %s subscribe %s: %w", r.moduleName, spec.Name, err)
	}

	r.record.addSubscription(subscription)

	return subscription, nil
}

// assertSubscriptionAllowed enforces capability negotiation at registration time.
// A module can only subscribe to event kinds covered by at least one declared capability.
func assertSubscriptionAllowed(
	capabilities []weatherstuff.Capability,
	subscriptionName string,
	interest weatherstuff.InterestSet,
) error {
	if len(capabilities) == 0 {
		return fmt.Errorf("subscription %s requires at least one declared capability", subscriptionName)
	}

	for _, capability := range capabilities {
		if kindsCovered(capability.Interest.Kinds, interest.Kinds) {
			return nil
		}
	}

	return fmt.Errorf("subscription does not match declared module capabilities")
}

// kindsCovered reports whether every requested kind is allowed by declared.
// An empty declared list allows any kind; an empty requested list needs an empty declared list.
func kindsCovered(declared []weatherstuff.EventKind, requested []weatherstuff.EventKind) bool {
	if len(declared) == 0 {
		return true
	}
	if len(requested) == 0 {
		return false
	}
	for _, kind := range requested {
		found := false
		for _, allowed := range declared {
			if allowed == kind {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	return true
}

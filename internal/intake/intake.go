// Package intake holds the Multiplexer Intake: per-rewritten-subscription-id
// buffers shared between the Manager's pool-drain goroutine and every
// Router's outbound pump. SPEC_FULL §4.6/§9 is explicit that this must be an
// ordinary, explicitly-constructed value passed by reference — never a
// package-level global or a class-level map, which is how the distilled
// spec's source material originally modeled it (REDESIGN FLAG).
package intake

import (
	"sync"

	"nostrmux/internal/nostrmodel"
)

// EventEnvelope is one event queued for delivery to a specific rewritten
// subscription id.
type EventEnvelope struct {
	SubscriptionID string
	Event          nostrmodel.Event
}

// Intake is the process-wide (but never global) shared buffer set. Exactly
// one instance is constructed in cmd/nostrmux and threaded through the
// Manager and every Router.
type Intake struct {
	mu sync.Mutex

	events  map[string][]EventEnvelope
	eoses   map[string]bool
	notices []string
}

// New constructs an empty Intake. Callers own the returned pointer and must
// pass it explicitly to every component that needs it.
func New() *Intake {
	return &Intake{
		events: make(map[string][]EventEnvelope),
		eoses:  make(map[string]bool),
	}
}

// PushEvent appends an event for delivery under subscriptionID.
func (i *Intake) PushEvent(subscriptionID string, e nostrmodel.Event) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.events[subscriptionID] = append(i.events[subscriptionID], EventEnvelope{SubscriptionID: subscriptionID, Event: e})
}

// DrainEvents removes and returns every buffered event for subscriptionID.
func (i *Intake) DrainEvents(subscriptionID string) []EventEnvelope {
	i.mu.Lock()
	defer i.mu.Unlock()
	evs := i.events[subscriptionID]
	delete(i.events, subscriptionID)
	return evs
}

// MarkEOSE records that end-of-stored-events has been seen for
// subscriptionID on at least one relay.
func (i *Intake) MarkEOSE(subscriptionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.eoses[subscriptionID] = true
}

// TakeEOSE reports and clears whether EOSE was seen for subscriptionID.
func (i *Intake) TakeEOSE(subscriptionID string) bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	seen := i.eoses[subscriptionID]
	delete(i.eoses, subscriptionID)
	return seen
}

// PushNotice buffers a relay NOTICE until DrainNotices removes it. Notices are
// not tied to a subscription, and Routers do not forward them to clients.
func (i *Intake) PushNotice(text string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.notices = append(i.notices, text)
}

// DrainNotices removes and returns every buffered notice.
func (i *Intake) DrainNotices() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	notices := i.notices
	i.notices = nil
	return notices
}

// ForgetSubscription drops any buffered state for subscriptionID, called
// when a Router stops owning it.
func (i *Intake) ForgetSubscription(subscriptionID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.events, subscriptionID)
	delete(i.eoses, subscriptionID)
}

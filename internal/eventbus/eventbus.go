package eventbus

import (
	"sync"
	"time"

	"github.com/filtersense/filtersense/internal/store"
)

const defaultBufSize = 256

// RuleEvent is published when the rule set changes.
type RuleEvent struct {
	Type      string    `json:"type"` // "added", "removed" or "replaced"
	Rule      string    `json:"rule,omitempty"`
	Count     int       `json:"count"` // rules in effect after the change
	Timestamp time.Time `json:"timestamp"`
}

// EventBus implements fan-out pub/sub for check records and rule
// changes. Each subscriber gets a buffered channel. If a subscriber is
// slow, events are dropped for that subscriber (the check log in the
// store still has them).
type EventBus struct {
	mu       sync.RWMutex
	checks   map[string]chan *store.CheckRecord
	ruleSubs map[string]chan *RuleEvent
	bufSize  int
}

func New(bufSize int) *EventBus {
	if bufSize <= 0 {
		bufSize = defaultBufSize
	}
	return &EventBus{
		checks:   make(map[string]chan *store.CheckRecord),
		ruleSubs: make(map[string]chan *RuleEvent),
		bufSize:  bufSize,
	}
}

// Subscribe creates a new check subscription. Returns the channel and
// an unsubscribe function that must be called when done.
func (eb *EventBus) Subscribe(id string) (<-chan *store.CheckRecord, func()) {
	ch := make(chan *store.CheckRecord, eb.bufSize)

	eb.mu.Lock()
	eb.checks[id] = ch
	eb.mu.Unlock()

	unsub := func() {
		eb.mu.Lock()
		if cur, ok := eb.checks[id]; ok && cur == ch {
			delete(eb.checks, id)
			close(ch)
		}
		eb.mu.Unlock()
	}
	return ch, unsub
}

// Publish sends a check record to all subscribers. Non-blocking:
// slow subscribers will miss records.
func (eb *EventBus) Publish(rec *store.CheckRecord) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.checks {
		select {
		case ch <- rec:
		default:
		}
	}
}

// SubscribeRules creates a subscription for rule change events.
func (eb *EventBus) SubscribeRules(id string) (<-chan *RuleEvent, func()) {
	ch := make(chan *RuleEvent, eb.bufSize)

	eb.mu.Lock()
	eb.ruleSubs[id] = ch
	eb.mu.Unlock()

	unsub := func() {
		eb.mu.Lock()
		if cur, ok := eb.ruleSubs[id]; ok && cur == ch {
			delete(eb.ruleSubs, id)
			close(ch)
		}
		eb.mu.Unlock()
	}
	return ch, unsub
}

// PublishRule sends a rule event to all rule subscribers.
func (eb *EventBus) PublishRule(event *RuleEvent) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for _, ch := range eb.ruleSubs {
		select {
		case ch <- event:
		default:
		}
	}
}

// SubscriberCount returns the number of active check subscribers.
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.checks)
}

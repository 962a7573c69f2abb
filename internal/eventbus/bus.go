// Package eventbus is the in-process publish/subscribe backbone that
// decouples every component of the engine. Producers publish to a named
// channel (e.g. "market.orderbook.abc123"); subscribers register either an
// exact channel name or a glob pattern ("market.orderbook.*") and receive a
// copy of every event whose channel matches.
//
// Delivery is cooperative and non-blocking: a publish never waits on a slow
// subscriber, and one subscriber's failure (a full inbox, a panicking
// handler) never affects another's. Within a single (publisher, channel)
// sequence, events are delivered to each subscriber in publish order; no
// ordering is guaranteed across channels or publishers.
package eventbus

import (
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Event is one published message.
type Event struct {
	Channel   string
	Publisher string
	Payload   any
	Timestamp time.Time
}

// Handler receives events for a matching subscription. Handlers run on the
// subscription's own drain goroutine, never on the publishing goroutine, so
// a slow handler only backs up its own subscriber, never the publisher or
// other subscribers.
type Handler func(Event)

// Bus is a process-wide pub/sub singleton, constructed once at startup and
// threaded through every component's constructor — the same way the
// underlying codebase threads a logger or cache through its services.
type Bus struct {
	logger *zap.Logger

	mu   sync.RWMutex
	subs map[string]*subscription // keyed by subscription id

	droppedTotal func(reason string)
}

// Option configures a Bus at construction.
type Option func(*Bus)

// WithDroppedCounter installs a callback invoked whenever an event is
// dropped because a subscriber's queue was full. Kept as a callback (rather
// than a hard prometheus import) so the bus package stays independently
// testable. Without this option a dropped event is only logged.
func WithDroppedCounter(f func(reason string)) Option {
	return func(b *Bus) { b.droppedTotal = f }
}

// New constructs an empty Bus.
func New(logger *zap.Logger, opts ...Option) *Bus {
	b := &Bus{
		logger: logger,
		subs:   make(map[string]*subscription),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.droppedTotal == nil {
		b.droppedTotal = func(string) {}
	}
	return b
}

// subscription owns one subscriber's serial delivery queue: a buffered
// channel drained by a single goroutine, so events for this subscriber are
// processed strictly in the order they were enqueued, independent of any
// other subscriber's pace.
type subscription struct {
	id       string
	pattern  string
	handler  Handler
	inbox    chan Event
	stopOnce sync.Once
	done     chan struct{}
}

const defaultInboxSize = 256

// Subscribe registers handler for every future event whose channel matches
// pattern. pattern may be an exact channel name or a glob (shell-style,
// matched with path/filepath.Match — "." is not special, so
// "market.orderbook.*" matches "market.orderbook.abc123"). The returned id
// is used with Unsubscribe.
func (b *Bus) Subscribe(pattern string, handler Handler) string {
	sub := &subscription{
		id:      newSubscriptionID(),
		pattern: pattern,
		handler: handler,
		inbox:   make(chan Event, defaultInboxSize),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()

	go b.drain(sub)

	return sub.id
}

// Unsubscribe removes a subscription and stops its delivery goroutine once
// any in-flight events have drained.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	sub, ok := b.subs[id]
	delete(b.subs, id)
	b.mu.Unlock()

	if !ok {
		return
	}
	sub.stopOnce.Do(func() { close(sub.inbox) })
	<-sub.done
}

// Publish delivers event to every matching subscriber. It never blocks on a
// slow subscriber: if a subscriber's inbox is full, the event is dropped for
// that subscriber only and counted, matching the "at-most-once per
// subscriber per publish" delivery guarantee — a dropped event is never
// retried or redelivered.
func (b *Bus) Publish(channel string, publisher string, payload any) {
	evt := Event{
		Channel:   channel,
		Publisher: publisher,
		Payload:   payload,
		Timestamp: time.Now(),
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subs {
		if !matches(sub.pattern, channel) {
			continue
		}
		select {
		case sub.inbox <- evt:
		default:
			b.droppedTotal("subscriber_full")
			b.logger.Warn("eventbus: dropping event, subscriber inbox full",
				zap.String("channel", channel),
				zap.String("pattern", sub.pattern))
		}
	}
}

// drain runs for the lifetime of a subscription, invoking handler for every
// queued event in order. A panicking handler is recovered so it cannot take
// down the bus or any other subscriber.
func (b *Bus) drain(sub *subscription) {
	defer close(sub.done)
	for evt := range sub.inbox {
		b.invoke(sub, evt)
	}
}

func (b *Bus) invoke(sub *subscription, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("eventbus: subscriber handler panicked",
				zap.String("pattern", sub.pattern),
				zap.String("channel", evt.Channel),
				zap.Any("recovered", r))
		}
	}()
	sub.handler(evt)
}

func matches(pattern, channel string) bool {
	if pattern == channel {
		return true
	}
	ok, err := filepath.Match(pattern, channel)
	return err == nil && ok
}

var idCounter struct {
	mu sync.Mutex
	n  uint64
}

func newSubscriptionID() string {
	idCounter.mu.Lock()
	defer idCounter.mu.Unlock()
	idCounter.n++
	return "sub-" + itoa(idCounter.n)
}

func itoa(n uint64) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

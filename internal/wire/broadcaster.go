// ABOUTME: In-memory fan-out broadcaster for newly-appended events
// ABOUTME: Publishes engine-appended events to every subscriber of a guild

package wire

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/ryanhlewis/Commons-Guild-Protocol/internal/eventlog"
)

// subscriberBufferSize matches the spec's best-effort delivery contract:
// a slow subscriber drops frames rather than blocking the guild lock.
const subscriberBufferSize = 64

// Metrics is the subset of instrumentation the broadcaster reports
// through. Implemented by internal/metrics; nil-safe via nopMetrics.
type Metrics interface {
	SetActiveSubscriptions(n int)
}

type nopMetrics struct{}

func (nopMetrics) SetActiveSubscriptions(int) {}

// Broadcaster provides in-memory pub/sub for newly-appended events.
// Subscribers register for a guildId and receive events as the engine
// appends them. Delivery is best-effort: a full subscriber channel drops
// the event rather than blocking the publisher.
type Broadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *eventlog.Event // guildId -> subId -> ch
	count       int
	logger      *slog.Logger
	metrics     Metrics
}

// NewBroadcaster creates a broadcaster. Pass nil logger for slog.Default().
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{
		subscribers: make(map[string]map[string]chan *eventlog.Event),
		logger:      logger.With("component", "broadcaster"),
		metrics:     nopMetrics{},
	}
}

// SetMetrics wires a gauge that tracks the broadcaster's live subscriber
// count. Without it, subscriptions are still tracked internally but
// nothing outside the broadcaster observes the count.
func (b *Broadcaster) SetMetrics(m Metrics) {
	if m == nil {
		m = nopMetrics{}
	}
	b.mu.Lock()
	b.metrics = m
	b.metrics.SetActiveSubscriptions(b.count)
	b.mu.Unlock()
}

// Subscribe registers a subscriber for a guild's live events. The returned
// channel and subscription id are valid until ctx is cancelled.
func (b *Broadcaster) Subscribe(ctx context.Context, guildID string) (<-chan *eventlog.Event, string) {
	subID := uuid.New().String()
	ch := make(chan *eventlog.Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[guildID]; !ok {
		b.subscribers[guildID] = make(map[string]chan *eventlog.Event)
	}
	b.subscribers[guildID][subID] = ch
	b.count++
	b.metrics.SetActiveSubscriptions(b.count)
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "guild_id", guildID, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(guildID, subID)
	}()

	return ch, subID
}

// Publish sends event to every subscriber of guildID. Non-blocking: a
// subscriber whose channel is full simply misses the event, which is safe
// because it can always resynchronize via a fresh SUB.
func (b *Broadcaster) Publish(guildID string, event *eventlog.Event) {
	b.mu.RLock()
	subs, ok := b.subscribers[guildID]
	if !ok || len(subs) == 0 {
		b.mu.RUnlock()
		return
	}

	targets := make([]chan *eventlog.Event, 0, len(subs))
	for _, ch := range subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber", "guild_id", guildID, "event_id", event.ID)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster) Unsubscribe(guildID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[guildID]
	if !ok {
		return
	}
	ch, ok := subs[subID]
	if !ok {
		return
	}
	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, guildID)
	}
	b.count--
	b.metrics.SetActiveSubscriptions(b.count)

	b.logger.Debug("subscriber removed", "guild_id", guildID, "sub_id", subID)
}

// Close shuts down the broadcaster, closing every subscriber channel.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for guildID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, guildID)
	}
	b.count = 0
	b.metrics.SetActiveSubscriptions(0)
	b.logger.Debug("broadcaster closed")
}

package streaming

import (
	"context"
	"strconv"
	"sync"

	"chatguard-lab/pkg/logger"
)

// EventBus distributes import events to local subscribers and, when
// configured, to NATS for other instances. Delivery is best-effort: a
// subscriber with a full channel misses the event.
type EventBus struct {
	nats   *NATSPublisher
	logger *logger.Logger

	mu          sync.RWMutex
	subscribers map[string]*busSubscriber
	nextID      int
}

type busSubscriber struct {
	ch  chan *ImportEvent
	sub *Subscription
}

// NewEventBus creates a new event bus. nats may be nil for single-instance
// deployments.
func NewEventBus(nats *NATSPublisher, log *logger.Logger) *EventBus {
	return &EventBus{
		nats:        nats,
		logger:      log.WithComponent("event-bus"),
		subscribers: make(map[string]*busSubscriber),
	}
}

// Publish fans an event out to NATS and all matching local subscribers
func (eb *EventBus) Publish(ctx context.Context, event *ImportEvent) {
	if eb.nats != nil && eb.nats.IsConnected() {
		if err := eb.nats.PublishEvent(ctx, event); err != nil {
			eb.logger.Warn().Err(err).Msg("failed to publish to NATS, using local broadcast only")
		}
	}

	eb.mu.RLock()
	defer eb.mu.RUnlock()

	for id, sub := range eb.subscribers {
		if !sub.sub.Matches(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			eb.logger.Debug().Str("subscriber", id).Msg("subscriber channel full, dropping event")
		}
	}
}

// Subscribe registers a consumer and returns its channel plus an unsubscribe
// function
func (eb *EventBus) Subscribe(ctx context.Context, sub *Subscription) (<-chan *ImportEvent, func()) {
	eb.mu.Lock()
	eb.nextID++
	id := strconv.Itoa(eb.nextID)
	ch := make(chan *ImportEvent, 100)
	eb.subscribers[id] = &busSubscriber{ch: ch, sub: sub}
	eb.mu.Unlock()

	eb.logger.Debug().Str("subscriber_id", id).Msg("new subscriber")

	unsubscribe := func() {
		eb.mu.Lock()
		defer eb.mu.Unlock()
		if s, ok := eb.subscribers[id]; ok {
			close(s.ch)
			delete(eb.subscribers, id)
			eb.logger.Debug().Str("subscriber_id", id).Msg("subscriber removed")
		}
	}

	// Cross-instance events arrive through NATS and are forwarded into the
	// same channel
	if eb.nats != nil && eb.nats.IsConnected() {
		natsCh, err := eb.nats.Subscribe(ctx, sub)
		if err == nil {
			go func() {
				for event := range natsCh {
					select {
					case ch <- event:
					case <-ctx.Done():
						return
					}
				}
			}()
		}
	}

	return ch, unsubscribe
}

// SubscriberCount returns the number of active subscribers
func (eb *EventBus) SubscriberCount() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.subscribers)
}

// Close closes the event bus
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, sub := range eb.subscribers {
		close(sub.ch)
		delete(eb.subscribers, id)
	}

	if eb.nats != nil {
		eb.nats.Close()
	}
}

package streaming

import (
	"context"

	"chatguard-lab/pkg/logger"
)

// EventBusPublisher adapts the event bus and WebSocket hub to the
// fire-and-forget publisher interface the orchestrator expects
type EventBusPublisher struct {
	eventBus *EventBus
	wsHub    *WebSocketHub
	logger   *logger.Logger
}

// NewEventBusPublisher creates a new publisher adapter
func NewEventBusPublisher(eventBus *EventBus, wsHub *WebSocketHub, log *logger.Logger) *EventBusPublisher {
	return &EventBusPublisher{
		eventBus: eventBus,
		wsHub:    wsHub,
		logger:   log.WithComponent("event-publisher"),
	}
}

// Publish wraps the payload into an envelope and fans it out. Failures are
// logged and swallowed; the pipeline never waits on delivery.
func (p *EventBusPublisher) Publish(importID, event string, payload interface{}) {
	envelope, err := NewImportEvent(importID, event, payload)
	if err != nil {
		p.logger.Warn().Err(err).Str("event", event).Msg("failed to build event envelope")
		return
	}

	if p.eventBus != nil {
		p.eventBus.Publish(context.Background(), envelope)
	}
	if p.wsHub != nil {
		p.wsHub.BroadcastEvent(envelope)
	}
}

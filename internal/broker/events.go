package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"pos-service/internal/models"

	"github.com/segmentio/kafka-go"
)

// EventPublisher handles publishing domain events
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSettlementCommitted publishes SettlementCommitted event
func (ep *EventPublisher) PublishSettlementCommitted(ctx context.Context, event *models.SettlementCommittedEvent) error {
	key := fmt.Sprintf("table-%d", event.TableID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockConsumed publishes StockConsumed event
func (ep *EventPublisher) PublishStockConsumed(ctx context.Context, event *models.StockConsumedEvent) error {
	key := fmt.Sprintf("settlement-%s", event.SettlementID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishConsumptionFailed publishes ConsumptionFailed event
func (ep *EventPublisher) PublishConsumptionFailed(ctx context.Context, event *models.ConsumptionFailedEvent) error {
	key := fmt.Sprintf("settlement-%s", event.SettlementID)
	return ep.producer.PublishEvent(ctx, key, event)
}

// PublishStockReceived publishes StockReceived event
func (ep *EventPublisher) PublishStockReceived(ctx context.Context, event *models.StockReceivedEvent) error {
	key := fmt.Sprintf("ingredient-%s-%s", event.BranchCode, event.IngredientName)
	return ep.producer.PublishEvent(ctx, key, event)
}

// EventHandler handles incoming events
type EventHandler struct {
	onSettlementCommitted func(context.Context, *models.SettlementCommittedEvent) error
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{}
}

// OnSettlementCommitted registers a handler for SettlementCommitted events
func (eh *EventHandler) OnSettlementCommitted(handler func(context.Context, *models.SettlementCommittedEvent) error) {
	eh.onSettlementCommitted = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	log.Printf("Handling event: type=%s, id=%s", baseEvent.EventType, baseEvent.EventID)

	switch baseEvent.EventType {
	case models.EventTypeSettlementCommitted:
		if eh.onSettlementCommitted != nil {
			var event models.SettlementCommittedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal SettlementCommitted event: %w", err)
			}
			return eh.onSettlementCommitted(ctx, &event)
		}

	default:
		log.Printf("Unhandled event type: %s", baseEvent.EventType)
	}

	return nil
}

package worker

import (
	"context"
	"log"

	"pos-service/internal/broker"
	"pos-service/internal/models"
	"pos-service/internal/service"
)

// EventLedger provides consumer-side idempotency so a redelivered
// settlement event never deducts stock twice.
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// ConsumptionWorker drains committed settlements off the event stream and
// feeds them to the consumption engine. The settlement is already closed by
// the time an event arrives; failures here go to the reconciliation backlog.
type ConsumptionWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	engine       *service.ConsumptionEngine
	ledger       EventLedger
}

// NewConsumptionWorker creates a new consumption worker
func NewConsumptionWorker(
	consumer *broker.Consumer,
	engine *service.ConsumptionEngine,
	ledger EventLedger,
) *ConsumptionWorker {
	w := &ConsumptionWorker{
		consumer: consumer,
		engine:   engine,
		ledger:   ledger,
	}

	eventHandler := broker.NewEventHandler()
	eventHandler.OnSettlementCommitted(w.handleSettlementCommitted)
	w.eventHandler = eventHandler

	return w
}

// Start starts the worker
func (w *ConsumptionWorker) Start(ctx context.Context) error {
	log.Println("Starting consumption worker...")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Stop stops the worker
func (w *ConsumptionWorker) Stop() error {
	log.Println("Stopping consumption worker...")
	return w.consumer.Close()
}

func (w *ConsumptionWorker) handleSettlementCommitted(ctx context.Context, event *models.SettlementCommittedEvent) error {
	processed, err := w.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return err
	}
	if processed {
		log.Printf("Event already processed: %s", event.EventID)
		return nil
	}

	log.Printf("Consuming stock for settlement: %s (table %d)", event.SettlementID, event.TableID)

	result := w.engine.Consume(ctx, event.BranchCode, event.SettlementID, event.Lines)
	if result.Failed > 0 {
		log.Printf("Settlement %s left %d ingredient(s) unreconciled", event.SettlementID, result.Failed)
	}

	if err := w.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		log.Printf("Failed to mark event processed: %v", err)
	}
	return nil
}

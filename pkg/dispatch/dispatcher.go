package dispatch

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/jornada-io/jornada/pkg/eventbus"
	"github.com/jornada-io/jornada/pkg/events"
	"github.com/jornada-io/jornada/pkg/journey"
)

// Dispatcher implements journey.Dispatcher on top of a Queue. Each enqueued
// send also emits a message.send event when a publisher is configured, so
// observers can follow outbound traffic without tailing the queue.
type Dispatcher struct {
	queue     Queue
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

func NewDispatcher(queue Queue, publisher eventbus.EventPublisher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		queue:     queue,
		publisher: publisher,
		logger:    logger.With("module", "dispatcher"),
	}
}

func (d *Dispatcher) EnqueueSend(ctx context.Context, req journey.DispatchRequest) error {
	message := &Message{
		ID:        uuid.New().String(),
		RunID:     req.RunID,
		ContactID: req.ContactID,
		Phone:     req.Phone,
		Body:      req.Body,
		Channel:   req.Channel,
		NodeID:    req.NodeID,
	}

	if err := d.queue.Enqueue(ctx, message); err != nil {
		return err
	}

	if d.publisher != nil {
		event := &events.MessageSend{
			BaseEvent: events.NewBaseEvent(events.MessageSendEvent, req.RunID),
			ContactID: req.ContactID,
			Phone:     req.Phone,
			Body:      req.Body,
			Channel:   req.Channel,
			NodeID:    req.NodeID,
		}

		if err := d.publisher.Publish(ctx, req.RunID, event); err != nil {
			d.logger.WarnContext(ctx, "Failed to publish message.send event",
				"run_id", req.RunID, "contact_id", req.ContactID, "error", err)
		}
	}

	return nil
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/jornada-io/jornada/pkg/dispatch"
	"github.com/jornada-io/jornada/pkg/eventbus"
	"github.com/jornada-io/jornada/pkg/events"
	"github.com/jornada-io/jornada/pkg/journey"
	"github.com/jornada-io/jornada/pkg/otelhelper"
	"github.com/jornada-io/jornada/pkg/webhook"
)

// WorkerManager runs the three worker loops: tick events from the bus, the
// outbound dispatch queue and the inbound reply webhook.
type WorkerManager struct {
	id            string
	logger        *slog.Logger
	coordinator   *journey.Coordinator
	eventBus      eventbus.EventBus
	queue         *dispatch.RedisQueue
	messenger     dispatch.Messenger
	webhookServer *webhook.Server
	tracer        trace.Tracer
}

func NewWorkerManager(
	id string,
	coordinator *journey.Coordinator,
	eventBus eventbus.EventBus,
	queue *dispatch.RedisQueue,
	messenger dispatch.Messenger,
	webhookServer *webhook.Server,
	logger *slog.Logger,
) *WorkerManager {
	return &WorkerManager{
		id:            id,
		logger:        logger.With("module", "jornada-worker", "worker_id", id),
		coordinator:   coordinator,
		eventBus:      eventBus,
		queue:         queue,
		messenger:     messenger,
		webhookServer: webhookServer,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager", "worker_id", w.id)

	tracer, err := otelhelper.NewTracer(ctx, "jornada-worker")
	if err != nil {
		w.logger.WarnContext(ctx, "Tracing disabled", "error", err)
	} else {
		w.tracer = tracer
	}

	err = w.eventBus.Handle(events.RunTickRequestedEvent, w.handleRunTickRequested)
	if err != nil {
		return err
	}

	err = w.eventBus.Subscribe(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to event bus", "error", err)

		return err
	}

	w.queue.Consume(ctx, w.messenger)

	err = w.webhookServer.Start(ctx)
	if err != nil {
		w.logger.ErrorContext(ctx, "Failed to start webhook server", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	if err := w.webhookServer.Stop(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to stop webhook server", "error", err)
	}

	return nil
}

func (w *WorkerManager) handleRunTickRequested(ctx context.Context, event any) error {
	tickEvent, ok := event.(*events.RunTickRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for RunTickRequested")

		return nil
	}

	logger := w.logger.With(
		"run_id", tickEvent.RunID,
		"reason", tickEvent.Reason,
		"event_id", tickEvent.ID,
	)
	logger.InfoContext(ctx, "Processing run tick event")

	var span trace.Span
	if w.tracer != nil {
		ctx, span = otelhelper.StartSpan(ctx, w.tracer, "run.tick",
			attribute.String(otelhelper.RunIDKey, tickEvent.RunID),
			attribute.String(otelhelper.EventIDKey, tickEvent.ID),
			attribute.String(otelhelper.WorkerIDKey, w.id),
		)
		defer span.End()
	}

	err := w.coordinator.Tick(ctx, tickEvent.RunID)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to tick run", "error", err)

		if span != nil {
			otelhelper.SetError(span, err,
				attribute.String(otelhelper.RunIDKey, tickEvent.RunID))
		}

		return err
	}

	return nil
}

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"

	"github.com/jornada-io/jornada/pkg/eventbus"
	"github.com/jornada-io/jornada/pkg/events"
	"github.com/jornada-io/jornada/pkg/models"
	"github.com/jornada-io/jornada/pkg/persistence"
)

// Activator sweeps active runs on a schedule and requests a tick for each.
// Ticks are idempotent, so overlapping with worker-driven ticks is harmless;
// the sweep exists so delay expirations and wait timeouts fire without any
// inbound traffic.
type Activator struct {
	id          string
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	schedule    string
	logger      *slog.Logger
}

func NewActivator(
	id string,
	p persistence.Persistence,
	publisher eventbus.EventPublisher,
	schedule string,
	logger *slog.Logger,
) *Activator {
	return &Activator{
		id:          id,
		persistence: p,
		publisher:   publisher,
		schedule:    schedule,
		logger:      logger.With("module", "jornada-activator", "activator_id", id),
	}
}

func (a *Activator) Start(ctx context.Context) error {
	scheduler := cron.New()

	_, err := scheduler.AddFunc(a.schedule, func() {
		a.sweep(ctx)
	})
	if err != nil {
		a.logger.ErrorContext(ctx, "Invalid sweep schedule", "schedule", a.schedule, "error", err)

		return err
	}

	// First sweep runs immediately so queued runs do not wait a full
	// schedule interval after a restart.
	a.sweep(ctx)

	scheduler.Start()

	a.logger.InfoContext(ctx, "Activator started", "schedule", a.schedule)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
	case <-ctx.Done():
	}

	a.logger.InfoContext(ctx, "Shutting down activator...")

	stopCtx := scheduler.Stop()
	<-stopCtx.Done()

	return nil
}

func (a *Activator) sweep(ctx context.Context) {
	total := 0

	for _, status := range []models.RunStatus{models.RunStatusQueued, models.RunStatusRunning} {
		runs, err := a.persistence.RunRepository().Runs(ctx, status)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to list runs", "status", status, "error", err)

			continue
		}

		for _, run := range runs {
			event := &events.RunTickRequested{
				BaseEvent: events.NewBaseEvent(events.RunTickRequestedEvent, run.ID),
				Reason:    events.TickReasonSchedule,
			}
			event.WorkerID = a.id

			if err := a.publisher.Publish(ctx, run.ID, event); err != nil {
				a.logger.ErrorContext(ctx, "Failed to publish tick request",
					"run_id", run.ID, "error", err)

				continue
			}

			total++
		}
	}

	if total > 0 {
		a.logger.InfoContext(ctx, "Sweep requested ticks", "runs", total)
	}
}

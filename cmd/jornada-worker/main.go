package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/jornada-io/jornada/pkg/apicall"
	"github.com/jornada-io/jornada/pkg/cmd"
	"github.com/jornada-io/jornada/pkg/dispatch"
	"github.com/jornada-io/jornada/pkg/journey"
	"github.com/jornada-io/jornada/pkg/log"
	"github.com/jornada-io/jornada/pkg/webhook"
)

const defaultWebhookPort = 8085

func main() {
	cmdApp := &cli.Command{
		Name:                  "jornada-worker",
		EnableShellCompletion: true,
		Usage:                 "Start workers to execute journey runs",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "event-bus",
				Usage:    "Event bus type (kafka, gochannel)",
				Required: true,
				Sources:  cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker addresses",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis address for the dispatch queue",
				Value:   "localhost:6379",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "redis-password",
				Usage:   "Redis password for the dispatch queue",
				Value:   "",
				Sources: cli.EnvVars("REDIS_PASSWORD"),
			},
			&cli.BoolFlag{
				Name:    "dry-run",
				Usage:   "Log outbound messages instead of delivering them",
				Value:   false,
				Sources: cli.EnvVars("DRY_RUN"),
			},
			&cli.StringFlag{
				Name:    "gateway-url",
				Usage:   "Delivery gateway endpoint for outbound messages",
				Value:   "",
				Sources: cli.EnvVars("GATEWAY_URL"),
			},
			&cli.StringFlag{
				Name:    "gateway-token",
				Usage:   "Bearer token for the delivery gateway",
				Value:   "",
				Sources: cli.EnvVars("GATEWAY_TOKEN"),
			},
			&cli.IntFlag{
				Name:    "webhook-port",
				Usage:   "Port for the inbound reply webhook",
				Value:   defaultWebhookPort,
				Sources: cli.EnvVars("WEBHOOK_PORT"),
			},
			&cli.StringFlag{
				Name:    "webhook-token",
				Usage:   "Shared token required on inbound webhook requests",
				Value:   "",
				Sources: cli.EnvVars("WEBHOOK_TOKEN"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			workerID := command.String("worker-id")
			if workerID == "" {
				workerID = "worker-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("jornada-worker").With("worker_id", workerID)

			logger.InfoContext(ctx, "Initializing Jornada Worker")

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				"jornada-worker",
				logger,
			)
			defer func() {
				err := eventBus.Close()
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			queue, err := dispatch.NewRedisQueue(
				ctx,
				command.String("redis-url"),
				command.String("redis-password"),
				dispatch.DefaultQueueKey,
				logger,
			)
			if err != nil {
				return err
			}

			defer func() {
				if err := queue.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close dispatch queue", "error", err)
				}
			}()

			var messenger dispatch.Messenger
			if command.Bool("dry-run") || command.String("gateway-url") == "" {
				messenger = dispatch.NewDryRunMessenger(logger)
			} else {
				messenger = dispatch.NewGatewayMessenger(
					command.String("gateway-url"),
					command.String("gateway-token"),
					logger,
				)
			}

			dispatcher := dispatch.NewDispatcher(queue, eventBus, logger)
			machine := journey.NewMachine(dispatcher, apicall.NewCaller(logger), logger)
			coordinator := journey.NewCoordinator(persistence, machine, eventBus, logger)

			webhookServer := webhook.NewServer(
				command.Int("webhook-port"),
				command.String("webhook-token"),
				coordinator,
				logger,
			)

			worker := NewWorkerManager(
				workerID,
				coordinator,
				eventBus,
				queue,
				messenger,
				webhookServer,
				logger,
			)

			err = worker.Start(ctx)
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start event-driven worker", "error", err)
			}

			return nil
		},
	}

	err := cmdApp.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

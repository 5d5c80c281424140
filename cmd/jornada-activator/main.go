package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/jornada-io/jornada/pkg/cmd"
	"github.com/jornada-io/jornada/pkg/log"
)

func main() {
	cmdApp := &cli.Command{
		Name:                  "jornada-activator",
		Usage:                 "Periodically schedule ticks for active runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "activator-id",
				Aliases: []string{"id"},
				Usage:   "Custom activator ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("ACTIVATOR_ID"),
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
				Name:    "schedule",
				Usage:   "Cron expression for the tick sweep",
				Value:   "@every 30s",
				Sources: cli.EnvVars("TICK_SCHEDULE"),
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

			activatorID := command.String("activator-id")
			if activatorID == "" {
				activatorID = "activator-" + uuid.New().String()[:8]
			}

			logger := log.WithModule("jornada-activator").With("activator_id", activatorID)

			logger.InfoContext(ctx, "Initializing Jornada Activator")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))
			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				"jornada-activator",
				logger,
			)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			activator := NewActivator(
				activatorID,
				persistence,
				eventBus,
				command.String("schedule"),
				logger,
			)

			return activator.Start(ctx)
		},
	}

	if err := cmdApp.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

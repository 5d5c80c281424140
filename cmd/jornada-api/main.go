package main

import (
	"context"
	"os"
	"strconv"

	"github.com/go-playground/validator/v10"
	cli "github.com/urfave/cli/v3"

	"github.com/jornada-io/jornada/pkg/apicall"
	"github.com/jornada-io/jornada/pkg/cmd"
	"github.com/jornada-io/jornada/pkg/dispatch"
	"github.com/jornada-io/jornada/pkg/journey"
	"github.com/jornada-io/jornada/pkg/log"
	"github.com/jornada-io/jornada/pkg/web"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	cmdApp := &cli.Command{
		Name:                  "jornada-api",
		Usage:                 "Create and manage journeys and runs",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
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
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Jornada API")

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				err := persistence.Close(ctx)
				if err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(
				command.String("event-bus"),
				command.String("kafka-brokers"),
				"jornada-api",
				logger,
			)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
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

			dispatcher := dispatch.NewDispatcher(queue, eventBus, logger)
			machine := journey.NewMachine(dispatcher, apicall.NewCaller(logger), logger)
			coordinator := journey.NewCoordinator(persistence, machine, eventBus, logger)
			journeys := journey.NewRepository(persistence)
			validate := validator.New(validator.WithRequiredStructEnabled())

			app := web.NewApp(journeys, coordinator, persistence, validate)

			err = app.Listen(":" + strconv.Itoa(command.Int("port")))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	err := cmdApp.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	// DefaultQueueKey is the Redis list dispatch messages go through.
	DefaultQueueKey = "jornada:dispatch"

	popTimeout     = 1 * time.Second
	connectTimeout = 5 * time.Second
	maxAttempts    = 3
)

// RedisQueue is a Redis list used as the dispatch queue. Producers RPush,
// the consumer BLPops, so messages survive restarts of either side.
type RedisQueue struct {
	client redis.UniversalClient
	key    string
	logger *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRedisQueue connects to Redis and returns a ready queue.
func NewRedisQueue(ctx context.Context, addr, password, key string, logger *slog.Logger) (*RedisQueue, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	if key == "" {
		key = DefaultQueueKey
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger = logger.With("module", "dispatch_queue", "queue", key)
	logger.InfoContext(ctx, "Connected to Redis", "addr", addr)

	return &RedisQueue{
		client: client,
		key:    key,
		logger: logger,
		stopCh: make(chan struct{}),
	}, nil
}

func (q *RedisQueue) Enqueue(ctx context.Context, message *Message) error {
	if message.EnqueuedAt.IsZero() {
		message.EnqueuedAt = time.Now().UTC()
	}

	raw, err := message.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal dispatch message: %w", err)
	}

	if err := q.client.RPush(ctx, q.key, raw).Err(); err != nil {
		return fmt.Errorf("failed to enqueue dispatch message: %w", err)
	}

	return nil
}

// Consume blocks on the queue and hands each message to the messenger.
// Failed sends are re-queued until maxAttempts, then dropped with an error
// log. Runs until Close or context cancellation.
func (q *RedisQueue) Consume(ctx context.Context, messenger Messenger) {
	q.wg.Add(1)

	go func() {
		defer q.wg.Done()

		q.logger.InfoContext(ctx, "Starting dispatch consumer")

		for {
			select {
			case <-q.stopCh:
				q.logger.InfoContext(ctx, "Dispatch consumer stopped")

				return
			case <-ctx.Done():
				q.logger.InfoContext(ctx, "Context cancelled, stopping dispatch consumer")

				return
			default:
				if err := q.processMessage(ctx, messenger); err != nil {
					q.logger.ErrorContext(ctx, "Error processing dispatch message", "error", err)
					time.Sleep(1 * time.Second)
				}
			}
		}
	}()
}

func (q *RedisQueue) processMessage(ctx context.Context, messenger Messenger) error {
	result, err := q.client.BLPop(ctx, popTimeout, q.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop dispatch message: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	message, err := UnmarshalMessage([]byte(result[1]))
	if err != nil {
		q.logger.ErrorContext(ctx, "Dropping malformed dispatch message", "error", err)

		return nil
	}

	message.Attempts++

	if err := messenger.Send(ctx, message); err != nil {
		if message.Attempts >= maxAttempts {
			q.logger.ErrorContext(ctx, "Dropping dispatch message after retries",
				"message_id", message.ID, "contact_id", message.ContactID,
				"attempts", message.Attempts, "error", err)

			return nil
		}

		q.logger.WarnContext(ctx, "Send failed, re-queueing",
			"message_id", message.ID, "attempt", message.Attempts, "error", err)

		return q.Enqueue(ctx, message)
	}

	q.logger.InfoContext(ctx, "Message delivered",
		"message_id", message.ID, "contact_id", message.ContactID, "channel", message.Channel)

	return nil
}

func (q *RedisQueue) Close() error {
	close(q.stopCh)
	q.wg.Wait()

	return q.client.Close()
}

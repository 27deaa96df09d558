package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/JackBeStrong/email-auto-reply/pkg/models"
)

// QueueReceiver consumes inbound reviewer messages from a Redis list. It is
// an optional alternative to the webhook for gateways that push into a queue
// instead of calling back over HTTP. Both paths feed the same inbound
// routing.
type QueueReceiver struct {
	manager *Manager
	client  *redis.Client
	queue   string
	logger  *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewQueueReceiver connects to Redis and verifies the connection before
// returning.
func NewQueueReceiver(ctx context.Context, manager *Manager, redisURL, queue string, logger *slog.Logger) (*QueueReceiver, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", opts.Addr, "queue", queue)

	return &QueueReceiver{
		manager: manager,
		client:  client,
		queue:   queue,
		logger:  logger.With("module", "queue-receiver"),
		stopCh:  make(chan struct{}),
	}, nil
}

// Start launches the consumer goroutine.
func (r *QueueReceiver) Start(ctx context.Context) {
	r.wg.Add(1)

	go r.consume(ctx)
}

// Stop signals the consumer to exit and waits for it.
func (r *QueueReceiver) Stop() {
	close(r.stopCh)
	r.wg.Wait()

	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis client", "error", err)
	}
}

func (r *QueueReceiver) consume(ctx context.Context) {
	defer r.wg.Done()

	r.logger.InfoContext(ctx, "Starting inbound queue consumer", "queue", r.queue)

	for {
		select {
		case <-r.stopCh:
			r.logger.InfoContext(ctx, "Inbound queue consumer stopped")

			return
		case <-ctx.Done():
			r.logger.InfoContext(ctx, "Context cancelled, stopping inbound queue consumer")

			return
		default:
			if err := r.processMessage(ctx); err != nil {
				r.logger.ErrorContext(ctx, "Failed to process inbound queue message", "error", err)
			}
		}
	}
}

func (r *QueueReceiver) processMessage(ctx context.Context) error {
	result, err := r.client.BLPop(ctx, 1*time.Second, r.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	if len(result) < 2 {
		return nil
	}

	payload := result[1]

	var inbound models.InboundMessage
	if err := json.Unmarshal([]byte(payload), &inbound); err != nil {
		return fmt.Errorf("malformed inbound queue message: %w", err)
	}

	if inbound.ReceivedAt.IsZero() {
		inbound.ReceivedAt = time.Now().UTC()
	}

	r.logger.InfoContext(ctx, "Received inbound message from queue",
		"phone_number", inbound.PhoneNumber)

	return r.manager.HandleInbound(ctx, inbound)
}

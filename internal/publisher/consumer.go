package publisher

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

type SyncRequestHandler func(ctx context.Context, msg SyncRequestMessage) error

var ErrDeliveriesClosed = errors.New("sync request deliveries closed")

// ConsumeSyncRequests delivers queued sync requests to handler one at a time until ctx is done.
// Messages are acked after handler returns; undecodable messages and handler errors are dropped.
func (r *RabbitMQ) ConsumeSyncRequests(ctx context.Context, handler SyncRequestHandler) error {
	ch, err := r.conn.Channel()
	if err != nil {
		return fmt.Errorf("open consumer channel: %w", err)
	}
	defer ch.Close()

	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}

	deliveries, err := ch.ConsumeWithContext(ctx,
		r.requestsQueue,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("consume %s: %w", r.requestsQueue, err)
	}

	r.logger.Info("consuming sync requests", "queue", r.requestsQueue)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return ErrDeliveriesClosed
			}
			r.handleDelivery(ctx, d, handler)
		}
	}
}

func (r *RabbitMQ) handleDelivery(ctx context.Context, d amqp.Delivery, handler SyncRequestHandler) {
	var msg SyncRequestMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		r.logger.Error("failed to decode sync request", "message_id", d.MessageId, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := handler(ctx, msg); err != nil {
		r.logger.Error("sync request failed",
			"attempt_id", msg.AttemptID,
			"subject_id", msg.SubjectID,
			"error", err,
		)
		_ = d.Nack(false, false)
		return
	}

	_ = d.Ack(false)
}

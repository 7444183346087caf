package publisher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"betterlox/internal/domain"
)

type RabbitMQ struct {
	conn               *amqp.Connection
	channel            *amqp.Channel
	exchange           string
	ratingsRoutingKey  string
	requestsRoutingKey string
	requestsQueue      string
	logger             *slog.Logger
}

type Config struct {
	URL                string
	Exchange           string
	RatingsRoutingKey  string
	RatingsQueue       string
	RequestsRoutingKey string
	RequestsQueue      string
}

func NewRabbitMQ(cfg Config, logger *slog.Logger) (*RabbitMQ, error) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		cfg.Exchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	bindings := []struct{ queue, key string }{
		{cfg.RatingsQueue, cfg.RatingsRoutingKey},
		{cfg.RequestsQueue, cfg.RequestsRoutingKey},
	}
	for _, b := range bindings {
		if err := declareAndBind(ch, cfg.Exchange, b.queue, b.key); err != nil {
			ch.Close()
			conn.Close()
			return nil, err
		}
	}

	logger.Info("connected to rabbitmq",
		"exchange", cfg.Exchange,
		"ratings_queue", cfg.RatingsQueue,
		"requests_queue", cfg.RequestsQueue,
	)

	return &RabbitMQ{
		conn:               conn,
		channel:            ch,
		exchange:           cfg.Exchange,
		ratingsRoutingKey:  cfg.RatingsRoutingKey,
		requestsRoutingKey: cfg.RequestsRoutingKey,
		requestsQueue:      cfg.RequestsQueue,
		logger:             logger,
	}, nil
}

func declareAndBind(ch *amqp.Channel, exchange, queue, routingKey string) error {
	q, err := ch.QueueDeclare(
		queue,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("declare queue %s: %w", queue, err)
	}

	if err := ch.QueueBind(q.Name, routingKey, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", queue, err)
	}
	return nil
}

type RatingMessage struct {
	Action    string        `json:"action"` // "create" or "update"
	Rating    domain.Rating `json:"rating"`
	Timestamp time.Time     `json:"timestamp"`
}

// SyncRequestMessage asks a consumer to execute a REQUESTED sync attempt.
type SyncRequestMessage struct {
	AttemptID   uuid.UUID       `json:"attemptId"`
	SubjectID   string          `json:"subjectId"`
	Type        domain.SyncType `json:"type"`
	RequestedAt time.Time       `json:"requestedAt"`
}

func (r *RabbitMQ) Publish(ctx context.Context, rating *domain.Rating, isNew bool) error {
	action := "update"
	if isNew {
		action = "create"
	}

	msg := RatingMessage{
		Action:    action,
		Rating:    *rating,
		Timestamp: time.Now().UTC(),
	}

	if err := r.publishJSON(ctx, r.ratingsRoutingKey, "", msg); err != nil {
		return err
	}

	r.logger.Debug("published rating",
		"external_id", rating.ExternalID,
		"action", action,
	)

	return nil
}

func (r *RabbitMQ) PublishSyncRequest(ctx context.Context, attempt *domain.SyncAttempt) error {
	msg := SyncRequestMessage{
		AttemptID:   attempt.ID,
		SubjectID:   attempt.SubjectID,
		Type:        attempt.Type,
		RequestedAt: time.Now().UTC(),
	}

	if err := r.publishJSON(ctx, r.requestsRoutingKey, attempt.ID.String(), msg); err != nil {
		return err
	}

	r.logger.Debug("published sync request", "attempt_id", attempt.ID)
	return nil
}

func (r *RabbitMQ) publishJSON(ctx context.Context, routingKey, messageID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	err = r.channel.PublishWithContext(
		ctx,
		r.exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	return nil
}

func (r *RabbitMQ) Close() error {
	if r.channel != nil {
		r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

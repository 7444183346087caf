//go:build integration

package publisher

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"

	"betterlox/internal/domain"
	"betterlox/testdata/utils"
)

type RabbitMQIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *rabbitmq.RabbitMQContainer
	amqpURL   string
	logger    *slog.Logger
}

func (s *RabbitMQIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	container, err := rabbitmq.Run(s.ctx,
		"rabbitmq:3.13-management-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Server startup complete").
				WithStartupTimeout(60*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	amqpURL, err := container.AmqpURL(s.ctx)
	s.Require().NoError(err)
	s.amqpURL = amqpURL
}

func (s *RabbitMQIntegrationSuite) TearDownSuite() {
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func TestRabbitMQIntegrationSuite(t *testing.T) {
	suite.Run(t, new(RabbitMQIntegrationSuite))
}

func (s *RabbitMQIntegrationSuite) config(name string) Config {
	return Config{
		URL:                s.amqpURL,
		Exchange:           "test-exchange-" + name,
		RatingsRoutingKey:  "ratings-" + name,
		RatingsQueue:       "test-ratings-" + name,
		RequestsRoutingKey: "requests-" + name,
		RequestsQueue:      "test-requests-" + name,
	}
}

func (s *RabbitMQIntegrationSuite) TestPublisher_Connection() {
	pub, err := NewRabbitMQ(s.config("conn"), s.logger)
	s.NoError(err)
	s.NotNil(pub)

	s.NoError(pub.Close())
}

func (s *RabbitMQIntegrationSuite) TestPublisher_PublishRating() {
	cfg := s.config("rating")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	now := time.Now().Truncate(time.Millisecond)
	rating := &domain.Rating{
		ID:           1,
		UserID:       "u1",
		ExternalID:   "entry-123",
		Movie:        domain.Movie{ID: 603, Title: "The Matrix", Year: utils.Ptr(1999), Slug: "the-matrix"},
		Stars:        4.5,
		PublishedAt:  now,
		LastModified: now,
	}

	s.Require().NoError(pub.Publish(s.ctx, rating, true))

	msg := s.consumeMessage(cfg.RatingsQueue)
	s.Require().NotNil(msg)
	s.Equal("application/json", msg.ContentType)
	s.Equal(uint8(amqp.Persistent), msg.DeliveryMode)

	var received RatingMessage
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal("create", received.Action)
	s.Equal("entry-123", received.Rating.ExternalID)
	s.Equal(4.5, received.Rating.Stars)
	s.Equal(1999, *received.Rating.Movie.Year)
	s.False(received.Timestamp.IsZero())

	s.Require().NoError(pub.Publish(s.ctx, rating, false))
	msg = s.consumeMessage(cfg.RatingsQueue)
	s.Require().NotNil(msg)
	s.Require().NoError(json.Unmarshal(msg.Body, &received))
	s.Equal("update", received.Action)
}

func (s *RabbitMQIntegrationSuite) TestPublisher_SyncRequestRoundTrip() {
	cfg := s.config("requests")
	pub, err := NewRabbitMQ(cfg, s.logger)
	s.Require().NoError(err)
	defer pub.Close()

	attempt := &domain.SyncAttempt{
		ID:        uuid.New(),
		SubjectID: "u1",
		Type:      domain.SyncTypeRecent,
		Status:    domain.SyncStatusRequested,
	}
	s.Require().NoError(pub.PublishSyncRequest(s.ctx, attempt))

	ctx, cancel := context.WithTimeout(s.ctx, 10*time.Second)
	defer cancel()

	received := make(chan SyncRequestMessage, 1)
	err = pub.ConsumeSyncRequests(ctx, func(_ context.Context, msg SyncRequestMessage) error {
		received <- msg
		cancel()
		return nil
	})
	s.True(errors.Is(err, context.Canceled))

	select {
	case msg := <-received:
		s.Equal(attempt.ID, msg.AttemptID)
		s.Equal("u1", msg.SubjectID)
		s.Equal(domain.SyncTypeRecent, msg.Type)
	default:
		s.Fail("no sync request consumed")
	}
}

func (s *RabbitMQIntegrationSuite) consumeMessage(queue string) *amqp.Delivery {
	conn, err := amqp.Dial(s.amqpURL)
	s.Require().NoError(err)
	defer conn.Close()

	ch, err := conn.Channel()
	s.Require().NoError(err)
	defer ch.Close()

	msgs, err := ch.Consume(queue, "", true, false, false, false, nil)
	s.Require().NoError(err)

	select {
	case msg := <-msgs:
		return &msg
	case <-time.After(5 * time.Second):
		s.Fail("Timeout waiting for message")
		return nil
	}
}

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"lealta/internal/models"
)

// CampaignEvent is published on every campaign status transition so
// downstream consumers (analytics, audit) can follow campaign lifecycles
// without polling the status endpoint.
type CampaignEvent struct {
	CampaignID string                `json:"campaign_id"`
	TenantID   string                `json:"tenant_id"`
	Status     models.CampaignStatus `json:"status"`
	Sent       int                   `json:"sent"`
	Failed     int                   `json:"failed"`
	OccurredAt time.Time             `json:"occurred_at"`
}

// EventPublisher publishes campaign lifecycle events to RabbitMQ
type EventPublisher struct {
	conn      *Connection
	queueName string
}

// NewEventPublisher creates a publisher bound to a durable queue
func NewEventPublisher(conn *Connection, queueName string) (*EventPublisher, error) {
	if conn == nil {
		return nil, errors.New("connection cannot be nil")
	}
	if queueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to get channel: %w", err)
	}

	_, err = ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	return &EventPublisher{
		conn:      conn,
		queueName: queueName,
	}, nil
}

// Publish sends one campaign lifecycle event
func (p *EventPublisher) Publish(ctx context.Context, event CampaignEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal campaign event: %w", err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to get channel: %w", err)
	}

	err = ch.PublishWithContext(
		ctx,
		"",          // exchange (default)
		p.queueName, // routing key
		false,       // mandatory
		false,       // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			ContentType:  "application/json",
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish campaign event: %w", err)
	}

	return nil
}

package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/tutorclass-api/internal/models"
)

// ClassEventPublisher pushes class lifecycle events onto a Redis pub/sub channel
// for downstream consumers such as billing and notification workers.
type ClassEventPublisher struct {
	client  *redis.Client
	channel string
}

// NewClassEventPublisher constructs a publisher. A nil client turns Publish into a no-op.
func NewClassEventPublisher(client *redis.Client, channel string) *ClassEventPublisher {
	return &ClassEventPublisher{client: client, channel: channel}
}

// Channel returns the configured pub/sub channel.
func (p *ClassEventPublisher) Channel() string {
	return p.channel
}

// Publish serialises the event and publishes it.
func (p *ClassEventPublisher) Publish(ctx context.Context, event models.ClassEvent) error {
	if p.client == nil || p.channel == "" {
		return nil
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal class event: %w", err)
	}
	if err := p.client.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", p.channel, err)
	}
	return nil
}

// Package publisher emits forward events for external consumers.
package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/blockedby/telescout/internal/scout"
	"github.com/nats-io/nats.go"
)

// ForwardSubject is the subject forward events are published on.
const ForwardSubject = "telescout.forwards"

// NATSClient interface to allow mocking.
type NATSClient interface {
	Publish(subject string, data []byte) error
}

// NATSPublisher implements scout.EventPublisher.
type NATSPublisher struct {
	nc NATSClient
}

// NewNATSPublisher creates a new publisher.
func NewNATSPublisher(conn *nats.Conn) *NATSPublisher {
	return &NATSPublisher{nc: conn}
}

// PublishForward publishes a forward event.
func (p *NATSPublisher) PublishForward(_ context.Context, event scout.ForwardEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if err := p.nc.Publish(ForwardSubject, data); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}

	return nil
}

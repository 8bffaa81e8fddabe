package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes workflow events to NATS JetStream for the
// notification service.
//
// Subject convention: notifications.sourcing.<event_code>
//
// All publish operations are non-fatal — errors are logged but never
// propagated, so notification failures never interrupt workflow operations.
// Delivery is at-least-once; the notification service tolerates duplicates.
type NotificationPublisher struct {
	js  nats.JetStreamContext
	log zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventCode string                 `json:"event_code"`
	ProgramID string                 `json:"program_id,omitempty"`
	Category  string                 `json:"category,omitempty"`
	Severity  string                 `json:"severity,omitempty"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher over an established NATS
// connection. A nil connection yields a disabled publisher.
func NewNotificationPublisher(nc *nats.Conn, log zerolog.Logger) (*NotificationPublisher, error) {
	if nc == nil {
		return &NotificationPublisher{log: log}, nil
	}
	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}
	return &NotificationPublisher{js: js, log: log}, nil
}

// SendNotificationsForUserType publishes one workflow event.
func (p *NotificationPublisher) SendNotificationsForUserType(ctx context.Context, eventCode string, payload map[string]interface{}) {
	if p.js == nil {
		return
	}

	event := &NotificationEvent{
		EventCode: eventCode,
		Category:  "sourcing_workflow",
		Severity:  "info",
		Payload:   payload,
	}
	if pid, ok := payload["program_id"].(string); ok {
		event.ProgramID = pid
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_code", eventCode).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.sourcing.%s", eventCode)
	if _, err := p.js.Publish(subject, data, nats.Context(ctx)); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("event_code", eventCode).
		Msg("notification: event published")
}

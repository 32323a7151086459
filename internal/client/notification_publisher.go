package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// NotificationPublisher publishes repair workflow events to NATS for
// consumption by the notifications service.
//
// Subject convention: notifications.repairs.<event_type>
// Event types: repair_reported, repair_approved, repair_rejected,
//              items_assigned, status_updated, repair_deleted
//
// All publish operations are non-fatal — errors are logged but never
// propagated, so notification failures never interrupt workflow operations.
type NotificationPublisher struct {
	conn *nats.Conn
	log  zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType  string         `json:"event_type"`
	RepairID   string         `json:"repair_id"`
	ActorID    string         `json:"actor_id"`
	Recipients []string       `json:"recipients"`
	Severity   string         `json:"severity,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher backed by the given NATS
// connection. A nil connection disables publishing.
func NewNotificationPublisher(conn *nats.Conn, log zerolog.Logger) *NotificationPublisher {
	return &NotificationPublisher{conn: conn, log: log}
}

// PublishRepairEvent publishes a repair workflow event.
// Subject: notifications.repairs.<eventType>
func (p *NotificationPublisher) PublishRepairEvent(ctx context.Context, eventType, repairID, actorID string, recipients []string, payload map[string]any) {
	if p.conn == nil {
		return
	}
	if len(recipients) == 0 {
		return
	}

	event := &NotificationEvent{
		EventType:  eventType,
		RepairID:   repairID,
		ActorID:    actorID,
		Recipients: recipients,
		Severity:   "info",
		Payload:    payload,
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", eventType).Msg("notification: failed to marshal event")
		return
	}

	subject := fmt.Sprintf("notifications.repairs.%s", eventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("repair_id", repairID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("repair_id", repairID).
		Int("recipients", len(recipients)).
		Msg("notification: event published")
}

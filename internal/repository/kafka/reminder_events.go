package kafka

import (
	"context"
	"time"

	domkafka "github.com/esign-tools/renotify/internal/domain/kafka"
)

// ReminderEventsKafka publishes reminder lifecycle events as JSON messages
// keyed by document id.
type ReminderEventsKafka struct {
	p *Producer
}

func NewReminderEventsKafka(p *Producer) *ReminderEventsKafka { return &ReminderEventsKafka{p: p} }

var _ domkafka.ReminderEvents = (*ReminderEventsKafka)(nil)

type reminderSentPayload struct {
	Type         string    `json:"type"`
	DocumentID   string    `json:"document_id"`
	RecipientIDs []string  `json:"recipient_ids"`
	Ordinal      int       `json:"ordinal"`
	At           time.Time `json:"at"`
}

type subscriptionStoppedPayload struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"document_id"`
	Reason     string    `json:"reason"`
	Actor      string    `json:"actor"`
	At         time.Time `json:"at"`
}

func (e *ReminderEventsKafka) PublishReminderSent(ctx context.Context, documentID string, recipientIDs []string, ordinal int, at time.Time) error {
	return e.p.PublishJSON(ctx, []byte(documentID), reminderSentPayload{
		Type:         "reminder.sent",
		DocumentID:   documentID,
		RecipientIDs: recipientIDs,
		Ordinal:      ordinal,
		At:           at.UTC(),
	})
}

func (e *ReminderEventsKafka) PublishSubscriptionStopped(ctx context.Context, documentID, reason, actor string, at time.Time) error {
	return e.p.PublishJSON(ctx, []byte(documentID), subscriptionStoppedPayload{
		Type:       "subscription.stopped",
		DocumentID: documentID,
		Reason:     reason,
		Actor:      actor,
		At:         at.UTC(),
	})
}

// NopReminderEvents is used when no brokers are configured.
type NopReminderEvents struct{}

var _ domkafka.ReminderEvents = NopReminderEvents{}

func (NopReminderEvents) PublishReminderSent(context.Context, string, []string, int, time.Time) error {
	return nil
}

func (NopReminderEvents) PublishSubscriptionStopped(context.Context, string, string, string, time.Time) error {
	return nil
}

//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/esign-tools/renotify/internal/repository/kafka"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	Type         string    `json:"type"`
	DocumentID   string    `json:"document_id"`
	RecipientIDs []string  `json:"recipient_ids"`
	Ordinal      int       `json:"ordinal"`
	At           time.Time `json:"at"`
}

type stoppedEvent struct {
	Type       string    `json:"type"`
	DocumentID string    `json:"document_id"`
	Reason     string    `json:"reason"`
	Actor      string    `json:"actor"`
	At         time.Time `json:"at"`
}

func TestReminderEvents_Roundtrip(t *testing.T) {
	cfg := LoadCfg()
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.EventsTopic)

	p := kafka.NewProducer([]string{cfg.KafkaBootstrap}, cfg.EventsTopic)
	t.Cleanup(func() { _ = p.Close() })
	bus := kafka.NewReminderEventsKafka(p)

	docID := RandDocID("it-events")
	at := time.Now().UTC().Truncate(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, bus.PublishReminderSent(ctx, docID, []string{"r1", "r2"}, 3, at))

	var got sentEvent
	for {
		ok := ReadOneJSON(t, cfg.KafkaBootstrap, cfg.EventsTopic, "it-events-"+docID, 60*time.Second, &got)
		require.True(t, ok, "no event arrived")
		if got.DocumentID == docID {
			break
		}
		// a leftover message from an earlier run; keep reading
	}

	assert.Equal(t, "reminder.sent", got.Type)
	assert.Equal(t, []string{"r1", "r2"}, got.RecipientIDs)
	assert.Equal(t, 3, got.Ordinal)
	assert.True(t, got.At.Equal(at))
}

func TestSubscriptionStopped_Roundtrip(t *testing.T) {
	cfg := LoadCfg()
	EnsureTopic(t, cfg.KafkaBootstrap, cfg.EventsTopic)

	p := kafka.NewProducer([]string{cfg.KafkaBootstrap}, cfg.EventsTopic)
	t.Cleanup(func() { _ = p.Close() })
	bus := kafka.NewReminderEventsKafka(p)

	docID := RandDocID("it-stopped")
	at := time.Now().UTC().Truncate(time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, bus.PublishSubscriptionStopped(ctx, docID, "max_reminders_reached", "system", at))

	var got stoppedEvent
	for {
		ok := ReadOneJSON(t, cfg.KafkaBootstrap, cfg.EventsTopic, "it-stopped-"+docID, 60*time.Second, &got)
		require.True(t, ok, "no event arrived")
		if got.DocumentID == docID {
			break
		}
	}

	assert.Equal(t, "subscription.stopped", got.Type)
	assert.Equal(t, "max_reminders_reached", got.Reason)
	assert.Equal(t, "system", got.Actor)
}

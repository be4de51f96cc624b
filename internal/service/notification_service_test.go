package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/events"
)

func TestWebhookSenderPostsNotification(t *testing.T) {
	var received Notification
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, string(events.EventTicketsMerged), r.Header.Get("X-Event-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	sender := NewWebhookSender(server.URL, server.Client())
	err := sender.Send(context.Background(), Notification{EventID: "e1", EventType: events.EventTicketsMerged, TicketID: "T4"})
	require.NoError(t, err)
	assert.Equal(t, "T4", received.TicketID)
}

func TestWebhookSenderReportsFailureStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer server.Close()

	err := NewWebhookSender(server.URL, nil).Send(context.Background(), Notification{EventType: events.EventTicketSplit})
	assert.ErrorContains(t, err, "502")
}

type captureSender struct {
	sent []Notification
}

func (c *captureSender) Name() string { return "capture" }

func (c *captureSender) Send(_ context.Context, n Notification) error {
	c.sent = append(c.sent, n)
	return nil
}

func TestNotificationsCarryNoMessageBodies(t *testing.T) {
	f := newFixture(t)
	capture := &captureSender{}
	NewNotificationService(f.deps.Dispatcher, zap.NewNop(), capture).RegisterHandlers()

	f.ticket(t, "T4")
	f.ticket(t, "T5")
	f.reply(t, "T5", "secret internal detail", domain.MessageTypeInternalNote)

	_, err := NewMergeService(f.deps).Merge(context.Background(), testActor, MergeInput{PrimaryTicketID: "T4", TicketIDs: []string{"T5"}, Reason: "dup"})
	require.NoError(t, err)

	require.Len(t, capture.sent, 1)
	n := capture.sent[0]
	assert.Equal(t, events.EventTicketsMerged, n.EventType)
	assert.Equal(t, "tenant-a", n.TenantID)
	encoded, err := json.Marshal(n)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "secret internal detail")
}

func TestBuildNotificationForRelationshipRemoval(t *testing.T) {
	event := events.NewEvent(events.EventRelationshipRemoved, testActor, "T1", time.Now(), events.RelationshipPayload{
		SourceTicketID: "T1", TargetTicketID: "T2", RelationshipType: domain.RelationshipBlocks,
	})
	n := buildNotification(event)
	assert.Contains(t, n.Summary, "unlinked from")
	assert.Equal(t, testActor.UserID, n.ActorID)
}

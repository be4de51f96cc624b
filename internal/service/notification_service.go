package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/config"
	"github.com/spec-kit/ticket-relations/internal/events"
)

// Notification is the customer-safe view of a domain event handed to senders. It never carries
// message bodies.
type Notification struct {
	EventID    string           `json:"event_id"`
	EventType  events.EventType `json:"event_type"`
	TenantID   string           `json:"tenant_id"`
	TicketID   string           `json:"ticket_id"`
	Summary    string           `json:"summary"`
	ActorID    string           `json:"actor_id,omitempty"`
	Data       any              `json:"data,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Sender delivers notifications to one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// NotificationService turns relationship events into notifications for the configured senders.
type NotificationService struct {
	dispatcher events.Dispatcher
	logger     *zap.Logger
	senders    []Sender
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, logger *zap.Logger, senders ...Sender) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{
		dispatcher: dispatcher,
		logger:     logger,
		senders:    senders,
	}
}

// SendersFromConfig builds the log sender and, when a URL is configured, the webhook sender.
func SendersFromConfig(cfg config.NotificationConfig, logger *zap.Logger) []Sender {
	senders := []Sender{NewLogSender(cfg.EmailFrom, logger)}
	if url := strings.TrimSpace(cfg.WebhookURL); url != "" {
		timeout := time.Duration(cfg.WebhookTimeoutSeconds) * time.Second
		senders = append(senders, NewWebhookSender(url, &http.Client{Timeout: timeout}))
	}
	return senders
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventTicketSplit, n.handle)
	n.dispatcher.Subscribe(events.EventTicketsMerged, n.handle)
	n.dispatcher.Subscribe(events.EventRelationshipCreated, n.handle)
	n.dispatcher.Subscribe(events.EventRelationshipRemoved, n.handle)
}

func (n *NotificationService) handle(ctx context.Context, event events.Event) error {
	notification := buildNotification(event)
	var errs []error
	for _, sender := range n.senders {
		if err := sender.Send(ctx, notification); err != nil {
			n.logger.Warn("notification delivery failed",
				zap.String("sender", sender.Name()),
				zap.String("event_type", string(event.Type)),
				zap.String("ticket_id", event.TicketID),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", sender.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func buildNotification(event events.Event) Notification {
	n := Notification{
		EventID:    event.ID,
		EventType:  event.Type,
		TenantID:   event.TenantID,
		TicketID:   event.TicketID,
		ActorID:    event.Actor.UserID,
		OccurredAt: event.Timestamp,
	}
	switch payload := event.Payload.(type) {
	case events.TicketSplitPayload:
		n.Summary = fmt.Sprintf("Ticket %s was split into %d tickets", event.TicketID, len(payload.NewTicketIDs))
		n.Data = map[string]any{"new_ticket_ids": payload.NewTicketIDs, "titles": payload.Titles}
	case events.TicketsMergedPayload:
		n.Summary = fmt.Sprintf("%d ticket(s) were merged into ticket %s", len(payload.MergedTicketIDs), event.TicketID)
		n.Data = map[string]any{"merged_ticket_ids": payload.MergedTicketIDs}
	case events.RelationshipPayload:
		verb := "linked to"
		if event.Type == events.EventRelationshipRemoved {
			verb = "unlinked from"
		}
		n.Summary = fmt.Sprintf("Ticket %s was %s ticket %s (%s)", payload.SourceTicketID, verb, payload.TargetTicketID, payload.RelationshipType)
		n.Data = payload
	default:
		n.Summary = string(event.Type)
	}
	return n
}

// LogSender writes notifications to the structured log. It stands in for email delivery.
type LogSender struct {
	from   string
	logger *zap.Logger
}

// NewLogSender constructs a LogSender.
func NewLogSender(from string, logger *zap.Logger) *LogSender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSender{from: from, logger: logger}
}

func (s *LogSender) Name() string { return "log" }

func (s *LogSender) Send(_ context.Context, n Notification) error {
	s.logger.Info("notification",
		zap.String("from", s.from),
		zap.String("event_type", string(n.EventType)),
		zap.String("tenant_id", n.TenantID),
		zap.String("ticket_id", n.TicketID),
		zap.String("summary", n.Summary))
	return nil
}

// WebhookSender POSTs notifications as JSON.
type WebhookSender struct {
	url        string
	httpClient *http.Client
}

// NewWebhookSender constructs a WebhookSender. A nil client uses a 5 second timeout.
func NewWebhookSender(url string, client *http.Client) *WebhookSender {
	if client == nil {
		client = &http.Client{Timeout: 5 * time.Second}
	}
	return &WebhookSender{url: url, httpClient: client}
}

func (s *WebhookSender) Name() string { return "webhook" }

func (s *WebhookSender) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Event-Type", string(n.EventType))
	req.Header.Set("X-Event-ID", n.EventID)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to post notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		responseBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, string(responseBody))
	}
	return nil
}

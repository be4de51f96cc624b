package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/config"
	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/events"
	"github.com/spec-kit/ticket-relations/internal/observability"
	"github.com/spec-kit/ticket-relations/internal/repository/memory"
)

var testActor = domain.Actor{UserID: "agent-1", UserName: "Grace Agent", TenantID: "tenant-a"}

type fixture struct {
	store     *memory.Store
	deps      Dependencies
	mu        sync.Mutex
	published []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore()}
	dispatcher := events.NewInMemoryDispatcher()
	record := func(_ context.Context, event events.Event) error {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.published = append(f.published, event)
		return nil
	}
	for _, eventType := range []events.EventType{
		events.EventTicketSplit, events.EventTicketsMerged, events.EventRelationshipCreated, events.EventRelationshipRemoved,
	} {
		dispatcher.Subscribe(eventType, record)
	}

	clock := time.Date(2026, 5, 4, 9, 30, 0, 0, time.UTC)
	f.deps = Dependencies{
		Store:      f.store,
		Dispatcher: dispatcher,
		Metrics:    observability.NewMetrics(prometheus.NewRegistry()),
		Logger:     zap.NewNop(),
		Config: config.RelationsConfig{
			DeepCycleCheck:          true,
			MaxCycleDepth:           32,
			OperationTimeoutSeconds: 5,
			LockWaitMillis:          500,
		},
		Now: func() time.Time { return clock },
	}
	return f
}

func (f *fixture) events() []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]events.Event(nil), f.published...)
}

func (f *fixture) ticket(t *testing.T, id string, mutate ...func(*domain.Ticket)) *domain.Ticket {
	t.Helper()
	ticket := &domain.Ticket{
		ID:           id,
		TenantID:     testActor.TenantID,
		ExternalKey:  "TCK-" + id,
		RequesterID:  "customer-1",
		DepartmentID: "support",
		Title:        "ticket " + id,
		Description:  "description of " + id,
		Status:       domain.TicketStatusOpen,
		Priority:     domain.TicketPriorityMedium,
		Tags:         []string{"billing"},
	}
	for _, fn := range mutate {
		fn(ticket)
	}
	require.NoError(t, f.store.Tickets().Create(context.Background(), ticket))
	return ticket
}

func (f *fixture) reply(t *testing.T, ticketID, body string, messageType domain.TicketMessageType) {
	t.Helper()
	author := "customer-1"
	require.NoError(t, f.store.Messages().Create(context.Background(), &domain.TicketMessage{
		TicketID:    ticketID,
		AuthorType:  domain.AuthorTypeUser,
		AuthorID:    &author,
		AuthorName:  "Customer",
		MessageType: messageType,
		Body:        body,
	}))
}

func (f *fixture) attachment(t *testing.T, ticketID, storageKey string) {
	t.Helper()
	require.NoError(t, f.store.Attachments().Create(context.Background(), &domain.AttachmentReference{
		TicketID:   ticketID,
		StorageKey: storageKey,
		FileName:   storageKey + ".pdf",
		MimeType:   "application/pdf",
		SizeBytes:  1024,
	}))
}

func (f *fixture) load(t *testing.T, id string) *domain.Ticket {
	t.Helper()
	ticket, err := f.store.Tickets().GetByID(context.Background(), id)
	require.NoError(t, err)
	return ticket
}

func (f *fixture) messages(t *testing.T, ticketID string) []domain.TicketMessage {
	t.Helper()
	msgs, err := f.store.Messages().ListByTicket(context.Background(), ticketID)
	require.NoError(t, err)
	return msgs
}

func replies(msgs []domain.TicketMessage) []domain.TicketMessage {
	var out []domain.TicketMessage
	for _, msg := range msgs {
		if msg.IsReply() {
			out = append(out, msg)
		}
	}
	return out
}

func systemNotes(msgs []domain.TicketMessage) []domain.TicketMessage {
	var out []domain.TicketMessage
	for _, msg := range msgs {
		if !msg.IsReply() {
			out = append(out, msg)
		}
	}
	return out
}

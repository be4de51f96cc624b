package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-relations/internal/domain"
)

func TestPublishRunsAllHandlersAndJoinsErrors(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()
	boom := errors.New("webhook down")
	calls := 0

	dispatcher.Subscribe(EventTicketSplit, func(context.Context, Event) error {
		calls++
		return boom
	})
	dispatcher.Subscribe(EventTicketSplit, func(context.Context, Event) error {
		calls++
		return nil
	})
	dispatcher.Subscribe(EventTicketsMerged, func(context.Context, Event) error {
		t.Fatal("merge handler must not run for split events")
		return nil
	})

	event := NewEvent(EventTicketSplit, domain.Actor{UserID: "u1", TenantID: "tenant-a"}, "t1", time.Now(), nil)
	err := dispatcher.Publish(context.Background(), event)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "tenant-a", event.TenantID)
	assert.NotEmpty(t, event.ID)
}

func TestPublishWithoutListeners(t *testing.T) {
	dispatcher := NewInMemoryDispatcher()
	assert.NoError(t, dispatcher.Publish(context.Background(), Event{Type: EventRelationshipRemoved}))
}

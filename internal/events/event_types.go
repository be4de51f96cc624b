package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-relations/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventTicketSplit         EventType = "ticket_split"
	EventTicketsMerged       EventType = "tickets_merged"
	EventRelationshipCreated EventType = "relationship_created"
	EventRelationshipRemoved EventType = "relationship_removed"
)

// Actor encapsulates actor metadata for an event.
type Actor struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

// Event represents a domain event emitted by services after their transaction commits.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	TenantID  string    `json:"tenant_id"`
	TicketID  string    `json:"ticket_id"`
	Actor     Actor     `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload"`
}

// NewEvent stamps an event with a fresh ID.
func NewEvent(eventType EventType, actor domain.Actor, ticketID string, at time.Time, payload any) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		TenantID:  actor.TenantID,
		TicketID:  ticketID,
		Actor:     Actor{UserID: actor.UserID, UserName: actor.UserName},
		Timestamp: at,
		Payload:   payload,
	}
}

// TicketSplitPayload payload.
type TicketSplitPayload struct {
	SplitHistoryID string   `json:"split_history_id"`
	NewTicketIDs   []string `json:"new_ticket_ids"`
	Titles         []string `json:"titles"`
	Reason         string   `json:"reason"`
}

// TicketsMergedPayload payload.
type TicketsMergedPayload struct {
	MergeHistoryID    string   `json:"merge_history_id"`
	MergedTicketIDs   []string `json:"merged_ticket_ids"`
	Reason            string   `json:"reason"`
	RepliesCopied     int      `json:"replies_copied"`
	AttachmentsCopied int      `json:"attachments_copied"`
}

// RelationshipPayload is shared by relationship_created and relationship_removed.
type RelationshipPayload struct {
	RelationshipID   string                    `json:"relationship_id"`
	SourceTicketID   string                    `json:"source_ticket_id"`
	TargetTicketID   string                    `json:"target_ticket_id"`
	RelationshipType domain.RelationshipType   `json:"relationship_type"`
	Origin           domain.RelationshipOrigin `json:"origin"`
}

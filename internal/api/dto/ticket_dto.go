package dto

import (
	"time"

	"github.com/spec-kit/ticket-relations/internal/domain"
)

// TicketSummary response.
type TicketSummary struct {
	ID             string                `json:"id"`
	ExternalKey    string                `json:"external_key"`
	DepartmentID   string                `json:"department_id"`
	TeamID         *string               `json:"team_id"`
	AssigneeID     *string               `json:"assignee_id"`
	Title          string                `json:"title"`
	Status         domain.TicketStatus   `json:"status"`
	Priority       domain.TicketPriority `json:"priority"`
	Tags           []string              `json:"tags"`
	ParentTicketID *string               `json:"parent_ticket_id"`
	ChildTicketIDs []string              `json:"child_ticket_ids"`
	CreatedAt      time.Time             `json:"created_at"`
	UpdatedAt      time.Time             `json:"updated_at"`
}

// SplitTicketRequest describes one child ticket.
type SplitTicketRequest struct {
	Title       string                `json:"title"`
	Description string                `json:"description"`
	AssigneeID  *string               `json:"assignee_id,omitempty"`
	Priority    domain.TicketPriority `json:"priority,omitempty"`
}

// SplitRequest payload.
type SplitRequest struct {
	Reason  string               `json:"reason"`
	Tickets []SplitTicketRequest `json:"tickets"`
}

// SplitResponse is returned after a committed split.
type SplitResponse struct {
	SplitHistoryID string          `json:"split_history_id"`
	NewTicketIDs   []string        `json:"new_ticket_ids"`
	Tickets        []TicketSummary `json:"tickets"`
}

// MergeRequest payload. The path ticket is the primary.
type MergeRequest struct {
	TicketIDs []string `json:"ticket_ids"`
	Reason    string   `json:"reason"`
}

// MergeResponse is returned after a committed merge.
type MergeResponse struct {
	MergeHistoryID    string   `json:"merge_history_id"`
	PrimaryTicketID   string   `json:"primary_ticket_id"`
	MergedTicketIDs   []string `json:"merged_ticket_ids"`
	RepliesCopied     int      `json:"replies_copied"`
	AttachmentsCopied int      `json:"attachments_copied"`
}

// SplitHistoryResponse is one split audit record.
type SplitHistoryResponse struct {
	ID                 string                        `json:"id"`
	OriginalTicketID   string                        `json:"original_ticket_id"`
	NewTicketIDs       []string                      `json:"new_ticket_ids"`
	Reason             string                        `json:"reason"`
	ActorID            string                        `json:"actor_id"`
	ActorName          string                        `json:"actor_name"`
	FieldsDistribution map[string]domain.SplitFields `json:"fields_distribution"`
	CreatedAt          time.Time                     `json:"created_at"`
}

// MergeHistoryResponse is one merge audit record.
type MergeHistoryResponse struct {
	ID              string               `json:"id"`
	PrimaryTicketID string               `json:"primary_ticket_id"`
	MergedTicketIDs []string             `json:"merged_ticket_ids"`
	Reason          string               `json:"reason"`
	ActorID         string               `json:"actor_id"`
	ActorName       string               `json:"actor_name"`
	PreservedData   domain.PreservedData `json:"preserved_data"`
	CreatedAt       time.Time            `json:"created_at"`
}

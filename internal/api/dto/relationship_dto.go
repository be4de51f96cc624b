package dto

import (
	"time"

	"github.com/spec-kit/ticket-relations/internal/domain"
)

// CreateRelationshipRequest payload. The path ticket is the source.
type CreateRelationshipRequest struct {
	TargetTicketID   string                  `json:"target_ticket_id"`
	RelationshipType domain.RelationshipType `json:"relationship_type"`
	Description      string                  `json:"description"`
}

// RelationshipResponse is one directed edge.
type RelationshipResponse struct {
	ID               string                    `json:"id"`
	SourceTicketID   string                    `json:"source_ticket_id"`
	TargetTicketID   string                    `json:"target_ticket_id"`
	RelationshipType domain.RelationshipType   `json:"relationship_type"`
	Origin           domain.RelationshipOrigin `json:"origin"`
	PairID           *string                   `json:"pair_id,omitempty"`
	CreatedByID      string                    `json:"created_by_id"`
	CreatedByName    string                    `json:"created_by_name"`
	Description      string                    `json:"description"`
	CreatedAt        time.Time                 `json:"created_at"`
}

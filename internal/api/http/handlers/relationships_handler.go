package handlers

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/ticket-relations/internal/api/dto"
	"github.com/spec-kit/ticket-relations/internal/auth"
	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/service"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

// RelationshipsHandler manages the relationship edges of a ticket.
type RelationshipsHandler struct {
	service *service.RelationshipService
}

// NewRelationshipsHandler constructs handler.
func NewRelationshipsHandler(relationshipService *service.RelationshipService) *RelationshipsHandler {
	return &RelationshipsHandler{service: relationshipService}
}

// Create POST /tickets/:id/relationships.
func (h *RelationshipsHandler) Create(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.CreateRelationshipRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.TargetTicketID == "" || req.RelationshipType == "" {
		return apperrors.NewValidationError("target_ticket_id, relationship_type required", nil)
	}

	rel, err := h.service.CreateRelationship(c.UserContext(), actor, service.CreateRelationshipInput{
		SourceTicketID:   c.Params("id"),
		TargetTicketID:   req.TargetTicketID,
		RelationshipType: req.RelationshipType,
		Description:      req.Description,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": relationshipResponse(rel)})
}

// List GET /tickets/:id/relationships.
func (h *RelationshipsHandler) List(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	rels, err := h.service.ListRelationships(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.RelationshipResponse, 0, len(rels))
	for i := range rels {
		items = append(items, relationshipResponse(&rels[i]))
	}
	return c.JSON(fiber.Map{"data": items})
}

// Remove DELETE /tickets/:id/relationships/:relationshipId.
func (h *RelationshipsHandler) Remove(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	if err := h.service.RemoveRelationship(c.UserContext(), actor, c.Params("id"), c.Params("relationshipId")); err != nil {
		return err
	}
	return c.SendStatus(http.StatusNoContent)
}

func relationshipResponse(rel *domain.TicketRelationship) dto.RelationshipResponse {
	return dto.RelationshipResponse{
		ID:               rel.ID,
		SourceTicketID:   rel.SourceTicketID,
		TargetTicketID:   rel.TargetTicketID,
		RelationshipType: rel.RelationshipType,
		Origin:           rel.Origin,
		PairID:           rel.PairID,
		CreatedByID:      rel.CreatedByID,
		CreatedByName:    rel.CreatedByName,
		Description:      rel.Description,
		CreatedAt:        rel.CreatedAt,
	}
}

package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/events"
	"github.com/spec-kit/ticket-relations/internal/repository"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

const maxRelationshipDescription = 1000

// RelationshipService creates, lists and removes validated ticket relationships.
type RelationshipService struct {
	core
	validator *RelationshipValidator
}

// CreateRelationshipInput describes a manual relationship request.
type CreateRelationshipInput struct {
	SourceTicketID   string
	TargetTicketID   string
	RelationshipType domain.RelationshipType
	Description      string
}

// NewRelationshipService constructs the service.
func NewRelationshipService(deps Dependencies, validator *RelationshipValidator) *RelationshipService {
	if validator == nil {
		validator = NewRelationshipValidator(deps.Config.DeepCycleCheck, deps.Config.MaxCycleDepth)
	}
	return &RelationshipService{core: newCore(deps), validator: validator}
}

// CreateRelationship validates and stores a manual edge plus its inverse for symmetric types.
func (s *RelationshipService) CreateRelationship(ctx context.Context, actor domain.Actor, input CreateRelationshipInput) (rel *domain.TicketRelationship, err error) {
	defer s.observe("relationship_create", time.Now(), &err)

	input.Description = strings.TrimSpace(input.Description)
	if len([]rune(input.Description)) > maxRelationshipDescription {
		return nil, apperrors.NewValidationError("description is too long", map[string]any{
			"field": "description", "rule": "max_length", "max": maxRelationshipDescription,
		})
	}

	err = s.run(ctx, actor.TenantID, []string{input.SourceTicketID, input.TargetTicketID}, func(tx repository.Store) error {
		source, err := s.lookup(ctx, tx, input.SourceTicketID)
		if err != nil {
			return err
		}
		target, err := s.lookup(ctx, tx, input.TargetTicketID)
		if err != nil {
			return err
		}
		if source != nil {
			if err := checkTenant(actor, source); err != nil {
				return err
			}
		}
		if err := s.validator.ValidateCreate(ctx, tx.Relationships(), RelationshipCheck{
			SourceTicketID: input.SourceTicketID,
			TargetTicketID: input.TargetTicketID,
			Type:           input.RelationshipType,
			Source:         source,
			Target:         target,
		}); err != nil {
			return err
		}

		existing, err := tx.Relationships().ListBySource(ctx, input.SourceTicketID)
		if err != nil {
			return err
		}
		for _, edge := range existing {
			if edge.TargetTicketID == input.TargetTicketID && edge.RelationshipType == input.RelationshipType {
				return apperrors.NewConflict("relationship already exists", map[string]any{
					"relationship_id": edge.ID,
				})
			}
		}

		rel = &domain.TicketRelationship{
			TenantID:         source.TenantID,
			SourceTicketID:   source.ID,
			TargetTicketID:   target.ID,
			RelationshipType: input.RelationshipType,
			Origin:           domain.OriginManual,
			CreatedByID:      actor.UserID,
			CreatedByName:    actor.UserName,
			Description:      input.Description,
			CreatedAt:        s.now(),
		}
		return tx.Relationships().Create(ctx, rel)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("relationship created",
		zap.String("relationship_id", rel.ID),
		zap.String("ticket_id", rel.SourceTicketID),
		zap.String("target_ticket_id", rel.TargetTicketID),
		zap.String("relationship_type", string(rel.RelationshipType)),
		zap.String("tenant_id", rel.TenantID))
	s.publish(ctx, events.NewEvent(events.EventRelationshipCreated, actor, rel.SourceTicketID, s.now(), relationshipPayload(rel)))
	return rel, nil
}

// ListRelationships returns the outgoing edges of a ticket.
func (s *RelationshipService) ListRelationships(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.TicketRelationship, error) {
	ticket, err := loadTicket(ctx, s.store.Tickets(), ticketID, false)
	if err != nil {
		return nil, err
	}
	if err := checkTenant(actor, ticket); err != nil {
		return nil, err
	}
	rels, err := s.store.Relationships().ListBySource(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}
	return rels, nil
}

// RemoveRelationship deletes an edge of ticketID and its inverse unless it is system generated.
func (s *RelationshipService) RemoveRelationship(ctx context.Context, actor domain.Actor, ticketID, relationshipID string) (err error) {
	defer s.observe("relationship_remove", time.Now(), &err)

	current, err := s.store.Relationships().GetByID(ctx, relationshipID)
	if err != nil {
		return relationshipLookupError(err, relationshipID)
	}
	if current.SourceTicketID != ticketID {
		return apperrors.NewNotFound("relationship", map[string]any{"relationship_id": relationshipID, "ticket_id": ticketID})
	}

	var removed *domain.TicketRelationship
	err = s.run(ctx, actor.TenantID, []string{current.SourceTicketID, current.TargetTicketID}, func(tx repository.Store) error {
		rel, err := tx.Relationships().GetByID(ctx, relationshipID)
		if err != nil {
			return relationshipLookupError(err, relationshipID)
		}
		if actor.TenantID != "" && rel.TenantID != actor.TenantID {
			return apperrors.NewTenantMismatch(map[string]any{"relationship_id": relationshipID})
		}
		if err := s.validator.ValidateRemoval(rel); err != nil {
			return err
		}
		if err := tx.Relationships().Remove(ctx, rel.ID); err != nil {
			return relationshipLookupError(err, relationshipID)
		}
		removed = rel
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("relationship removed",
		zap.String("relationship_id", removed.ID),
		zap.String("ticket_id", removed.SourceTicketID),
		zap.String("relationship_type", string(removed.RelationshipType)))
	s.publish(ctx, events.NewEvent(events.EventRelationshipRemoved, actor, removed.SourceTicketID, s.now(), relationshipPayload(removed)))
	return nil
}

// lookup returns nil without error when the ticket does not exist so the validator reports it.
func (s *RelationshipService) lookup(ctx context.Context, tx repository.Store, id string) (*domain.Ticket, error) {
	ticket, err := tx.Tickets().GetForUpdate(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	return ticket, err
}

func relationshipLookupError(err error, relationshipID string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return apperrors.NewNotFound("relationship", map[string]any{"relationship_id": relationshipID})
	}
	return storageError(err)
}

func relationshipPayload(rel *domain.TicketRelationship) events.RelationshipPayload {
	return events.RelationshipPayload{
		RelationshipID:   rel.ID,
		SourceTicketID:   rel.SourceTicketID,
		TargetTicketID:   rel.TargetTicketID,
		RelationshipType: rel.RelationshipType,
		Origin:           rel.Origin,
	}
}

package service

import (
	"context"
	"strings"

	"github.com/spec-kit/ticket-relations/internal/domain"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

const (
	defaultMaxCycleDepth = 32
	// legacyManualMarker tags relationships created by a person before origins were recorded.
	legacyManualMarker = "manually created"
)

// EdgeLister reads the outgoing edges of a ticket.
type EdgeLister interface {
	ListBySource(ctx context.Context, ticketID string) ([]domain.TicketRelationship, error)
}

// RelationshipCheck describes a proposed edge. Source and Target are nil when the lookup found nothing.
type RelationshipCheck struct {
	SourceTicketID string
	TargetTicketID string
	Type           domain.RelationshipType
	Source         *domain.Ticket
	Target         *domain.Ticket
}

// RelationshipValidator enforces the structural rules for relationship edges. It never writes.
type RelationshipValidator struct {
	deep     bool
	maxDepth int
}

// NewRelationshipValidator returns a validator. With deep set it also rejects edges that close a
// parent/child cycle longer than two tickets, walking at most maxDepth ancestors.
func NewRelationshipValidator(deep bool, maxDepth int) *RelationshipValidator {
	if maxDepth <= 0 {
		maxDepth = defaultMaxCycleDepth
	}
	return &RelationshipValidator{deep: deep, maxDepth: maxDepth}
}

// ValidateCreate checks whether the proposed edge may be created.
func (v *RelationshipValidator) ValidateCreate(ctx context.Context, edges EdgeLister, check RelationshipCheck) error {
	if check.Source == nil {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": check.SourceTicketID})
	}
	if check.Target == nil {
		return apperrors.NewNotFound("ticket", map[string]any{"ticket_id": check.TargetTicketID})
	}
	if check.SourceTicketID == check.TargetTicketID {
		return apperrors.NewSelfReference(check.SourceTicketID)
	}
	if !check.Type.Valid() {
		return apperrors.NewValidationError("unknown relationship type", map[string]any{
			"field": "relationship_type", "value": string(check.Type),
		})
	}
	if check.Source.TenantID != check.Target.TenantID {
		return apperrors.NewTenantMismatch(map[string]any{
			"source_ticket_id": check.SourceTicketID,
			"target_ticket_id": check.TargetTicketID,
		})
	}

	switch check.Type {
	case domain.RelationshipParentOf:
		if err := v.checkCycle(ctx, edges, check.Source, check.Target); err != nil {
			return err
		}
	case domain.RelationshipChildOf:
		if err := v.checkCycle(ctx, edges, check.Target, check.Source); err != nil {
			return err
		}
	case domain.RelationshipMergedInto:
		if check.Target.IsClosed() {
			return apperrors.NewInvalidTargetState("cannot merge into a closed ticket", map[string]any{
				"ticket_id": check.TargetTicketID, "status": string(check.Target.Status),
			})
		}
	case domain.RelationshipDuplicateOf:
		if !check.Source.IsClosed() {
			return apperrors.NewInvalidSourceState("only closed tickets can be marked as duplicates", map[string]any{
				"ticket_id": check.SourceTicketID, "status": string(check.Source.Status),
			})
		}
	}
	return nil
}

// checkCycle rejects making parent the parent of child when child is already an ancestor of parent.
func (v *RelationshipValidator) checkCycle(ctx context.Context, edges EdgeLister, parent, child *domain.Ticket) error {
	cycle := func(depth int) error {
		return apperrors.NewCircularRelationship("relationship would create a parent/child cycle", map[string]any{
			"parent_ticket_id": parent.ID, "child_ticket_id": child.ID, "depth": depth,
		})
	}

	if parent.ParentTicketID != nil && *parent.ParentTicketID == child.ID {
		return cycle(1)
	}
	parents, err := parentsOf(ctx, edges, parent.ID)
	if err != nil {
		return err
	}
	if contains(parents, child.ID) {
		return cycle(1)
	}
	childEdges, err := listEdges(ctx, edges, child.ID)
	if err != nil {
		return err
	}
	for _, edge := range childEdges {
		if edge.RelationshipType == domain.RelationshipParentOf && edge.TargetTicketID == parent.ID {
			return cycle(1)
		}
	}
	if !v.deep {
		return nil
	}

	if parent.ParentTicketID != nil && *parent.ParentTicketID != "" && !contains(parents, *parent.ParentTicketID) {
		parents = append(parents, *parent.ParentTicketID)
	}
	visited := map[string]bool{parent.ID: true}
	frontier := parents
	for depth := 2; len(frontier) > 0; depth++ {
		if depth > v.maxDepth+1 {
			return apperrors.NewCircularRelationship("ancestor chain exceeds the maximum checked depth", map[string]any{
				"parent_ticket_id": parent.ID, "child_ticket_id": child.ID, "rule": "max_depth", "max_depth": v.maxDepth,
			})
		}
		var next []string
		for _, id := range frontier {
			if visited[id] {
				continue
			}
			visited[id] = true
			ancestors, err := parentsOf(ctx, edges, id)
			if err != nil {
				return err
			}
			for _, ancestor := range ancestors {
				if ancestor == child.ID {
					return cycle(depth)
				}
				if !visited[ancestor] {
					next = append(next, ancestor)
				}
			}
		}
		frontier = next
	}
	return nil
}

// ValidateRemoval rejects removal of audit-critical edges created by split or merge.
func (v *RelationshipValidator) ValidateRemoval(rel *domain.TicketRelationship) error {
	if rel == nil {
		return apperrors.NewNotFound("relationship", nil)
	}
	if !rel.RelationshipType.AuditCritical() || isManual(rel) {
		return nil
	}
	return apperrors.NewSystemGenerated(rel.ID, string(rel.RelationshipType))
}

func isManual(rel *domain.TicketRelationship) bool {
	switch rel.Origin {
	case domain.OriginManual:
		return true
	case domain.OriginSystem:
		return false
	}
	return strings.Contains(strings.ToLower(rel.Description), legacyManualMarker)
}

func parentsOf(ctx context.Context, edges EdgeLister, ticketID string) ([]string, error) {
	out, err := listEdges(ctx, edges, ticketID)
	if err != nil {
		return nil, err
	}
	var parents []string
	for _, edge := range out {
		if edge.RelationshipType == domain.RelationshipChildOf {
			parents = append(parents, edge.TargetTicketID)
		}
	}
	return parents, nil
}

func listEdges(ctx context.Context, edges EdgeLister, ticketID string) ([]domain.TicketRelationship, error) {
	if edges == nil {
		return nil, nil
	}
	out, err := edges.ListBySource(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}
	return out, nil
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

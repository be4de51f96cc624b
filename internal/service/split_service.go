package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/events"
	"github.com/spec-kit/ticket-relations/internal/repository"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

const (
	minSplitTickets      = 2
	maxSplitTickets      = 10
	maxTitleLength       = 200
	maxDescriptionLength = 5000

	splitRelationshipDescription = "Created from ticket split"
)

// SplitService divides one ticket into several child tickets.
type SplitService struct {
	core
}

// SplitTicketSpec describes one ticket produced by a split.
type SplitTicketSpec struct {
	Title       string
	Description string
	AssigneeID  *string
	// Priority defaults to the original ticket's priority.
	Priority domain.TicketPriority
}

// SplitInput is the split request.
type SplitInput struct {
	OriginalTicketID string
	Reason           string
	Tickets          []SplitTicketSpec
}

// SplitResult reports what a split created.
type SplitResult struct {
	SplitHistoryID string
	NewTicketIDs   []string
	Tickets        []*domain.Ticket
}

// NewSplitService constructs the service.
func NewSplitService(deps Dependencies) *SplitService {
	return &SplitService{core: newCore(deps)}
}

// Split creates the new tickets as children of the original, links them, records the history and
// leaves an audit note on the original. All writes commit together.
func (s *SplitService) Split(ctx context.Context, actor domain.Actor, input SplitInput) (result *SplitResult, err error) {
	defer s.observe("split", time.Now(), &err)

	input = normalizeSplitInput(input)
	if err := validateSplitInput(input); err != nil {
		return nil, err
	}

	original, err := loadTicket(ctx, s.store.Tickets(), input.OriginalTicketID, false)
	if err != nil {
		return nil, err
	}
	if err := checkSplitSource(actor, original); err != nil {
		return nil, err
	}

	err = s.run(ctx, original.TenantID, []string{original.ID}, func(tx repository.Store) error {
		current, err := loadTicket(ctx, tx.Tickets(), original.ID, true)
		if err != nil {
			return err
		}
		if err := checkSplitSource(actor, current); err != nil {
			return err
		}

		now := s.now()
		result = &SplitResult{}
		fields := make(map[string]domain.SplitFields, len(input.Tickets))
		for _, spec := range input.Tickets {
			child := splitChild(current, spec)
			if err := tx.Tickets().Create(ctx, child); err != nil {
				return fmt.Errorf("create split ticket: %w", err)
			}
			rel := &domain.TicketRelationship{
				TenantID:         current.TenantID,
				SourceTicketID:   current.ID,
				TargetTicketID:   child.ID,
				RelationshipType: domain.RelationshipParentOf,
				Origin:           domain.OriginSystem,
				CreatedByID:      actor.UserID,
				CreatedByName:    actor.UserName,
				Description:      splitRelationshipDescription,
				CreatedAt:        now,
			}
			if err := tx.Relationships().Create(ctx, rel); err != nil {
				return fmt.Errorf("link split ticket: %w", err)
			}
			result.NewTicketIDs = append(result.NewTicketIDs, child.ID)
			result.Tickets = append(result.Tickets, child)
			fields[child.ID] = domain.SplitFields{
				Title:       child.Title,
				Description: child.Description,
				AssigneeID:  child.AssigneeID,
				Priority:    child.Priority,
			}
		}

		current.ChildTicketIDs = append([]string(nil), result.NewTicketIDs...)
		if err := tx.Tickets().Update(ctx, current); err != nil {
			return fmt.Errorf("update original ticket: %w", err)
		}

		history := &domain.SplitTicketHistory{
			TenantID:           current.TenantID,
			OriginalTicketID:   current.ID,
			NewTicketIDs:       append([]string(nil), result.NewTicketIDs...),
			Reason:             input.Reason,
			ActorID:            actor.UserID,
			ActorName:          actor.UserName,
			FieldsDistribution: fields,
			CreatedAt:          now,
		}
		if err := tx.SplitHistory().Create(ctx, history); err != nil {
			return fmt.Errorf("record split history: %w", err)
		}
		result.SplitHistoryID = history.ID

		note := auditNote(current.ID, actor, splitAuditBody(result.Tickets, input.Reason))
		if err := tx.Messages().Create(ctx, note); err != nil {
			return fmt.Errorf("append split audit note: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ticket split",
		zap.String("ticket_id", original.ID),
		zap.String("tenant_id", original.TenantID),
		zap.Strings("new_ticket_ids", result.NewTicketIDs),
		zap.String("split_history_id", result.SplitHistoryID))

	titles := make([]string, 0, len(result.Tickets))
	for _, ticket := range result.Tickets {
		titles = append(titles, ticket.Title)
	}
	s.publish(ctx, events.NewEvent(events.EventTicketSplit, actor, original.ID, s.now(), events.TicketSplitPayload{
		SplitHistoryID: result.SplitHistoryID,
		NewTicketIDs:   result.NewTicketIDs,
		Titles:         titles,
		Reason:         input.Reason,
	}))
	return result, nil
}

func normalizeSplitInput(input SplitInput) SplitInput {
	input.Reason = strings.TrimSpace(input.Reason)
	specs := make([]SplitTicketSpec, len(input.Tickets))
	for i, spec := range input.Tickets {
		spec.Title = strings.TrimSpace(spec.Title)
		spec.Description = strings.TrimSpace(spec.Description)
		if spec.AssigneeID != nil {
			if id := strings.TrimSpace(*spec.AssigneeID); id != "" {
				spec.AssigneeID = &id
			} else {
				spec.AssigneeID = nil
			}
		}
		spec.Priority = domain.TicketPriority(strings.ToUpper(strings.TrimSpace(string(spec.Priority))))
		specs[i] = spec
	}
	input.Tickets = specs
	return input
}

func validateSplitInput(input SplitInput) error {
	if input.Reason == "" {
		return apperrors.NewInvalidSplitSpec("reason is required", map[string]any{"field": "reason", "rule": "required"})
	}
	if n := len(input.Tickets); n < minSplitTickets || n > maxSplitTickets {
		return apperrors.NewInvalidSplitSpec(
			fmt.Sprintf("a split needs between %d and %d tickets", minSplitTickets, maxSplitTickets),
			map[string]any{"field": "tickets", "rule": "count", "min": minSplitTickets, "max": maxSplitTickets, "actual": n})
	}
	for i, spec := range input.Tickets {
		if err := validateSplitSpec(i, spec); err != nil {
			return err
		}
	}
	return nil
}

func validateSplitSpec(index int, spec SplitTicketSpec) error {
	invalid := func(field, rule, message string) error {
		return apperrors.NewInvalidSplitSpec(message, map[string]any{"field": field, "index": index, "rule": rule})
	}
	switch {
	case spec.Title == "":
		return invalid("title", "required", "title is required")
	case len([]rune(spec.Title)) > maxTitleLength:
		return invalid("title", "max_length", "title must be at most "+strconv.Itoa(maxTitleLength)+" characters")
	case spec.Description == "":
		return invalid("description", "required", "description is required")
	case len([]rune(spec.Description)) > maxDescriptionLength:
		return invalid("description", "max_length", "description must be at most "+strconv.Itoa(maxDescriptionLength)+" characters")
	case spec.Priority != "" && !spec.Priority.Valid():
		return invalid("priority", "enum", "unknown priority "+string(spec.Priority))
	}
	return nil
}

func checkSplitSource(actor domain.Actor, original *domain.Ticket) error {
	if err := checkTenant(actor, original); err != nil {
		return err
	}
	if original.IsClosed() {
		return apperrors.NewInvalidSourceState("closed tickets cannot be split", map[string]any{
			"ticket_id": original.ID, "rule": "closed",
		})
	}
	if original.HasParent() {
		return apperrors.NewInvalidSourceState("child tickets cannot be split", map[string]any{
			"ticket_id": original.ID, "rule": "has_parent", "parent_ticket_id": *original.ParentTicketID,
		})
	}
	return nil
}

// splitChild copies the inherited fields one by one so relationship arrays never leak into children.
func splitChild(original *domain.Ticket, spec SplitTicketSpec) *domain.Ticket {
	parentID := original.ID
	priority := spec.Priority
	if priority == "" {
		priority = original.Priority
	}
	return &domain.Ticket{
		TenantID:       original.TenantID,
		ExternalKey:    generateTicketKey(),
		RequesterID:    original.RequesterID,
		DepartmentID:   original.DepartmentID,
		TeamID:         copyString(original.TeamID),
		AssigneeID:     copyString(spec.AssigneeID),
		Title:          spec.Title,
		Description:    spec.Description,
		Status:         original.Status,
		Priority:       priority,
		Tags:           append([]string(nil), original.Tags...),
		ParentTicketID: &parentID,
	}
}

func splitAuditBody(children []*domain.Ticket, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket split into %d tickets:", len(children))
	for _, child := range children {
		fmt.Fprintf(&b, "\n- %q (%s)", child.Title, child.ID)
	}
	fmt.Fprintf(&b, "\nReason: %s", reason)
	return b.String()
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

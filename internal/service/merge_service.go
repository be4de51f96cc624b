package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/events"
	"github.com/spec-kit/ticket-relations/internal/repository"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

const maxMergeTickets = 20

// MergeService consolidates tickets into a primary ticket.
type MergeService struct {
	core
}

// MergeInput is the merge request. TicketIDs are processed in the given order.
type MergeInput struct {
	PrimaryTicketID string
	TicketIDs       []string
	Reason          string
}

// MergeResult reports what a merge wrote.
type MergeResult struct {
	MergeHistoryID    string
	PrimaryTicketID   string
	MergedTicketIDs   []string
	RepliesCopied     int
	AttachmentsCopied int
}

// NewMergeService constructs the service.
func NewMergeService(deps Dependencies) *MergeService {
	return &MergeService{core: newCore(deps)}
}

// Merge copies replies and attachments of every ticket in input.TicketIDs onto the primary, closes
// them with a merged_into edge, records the history and leaves an audit note on the primary.
func (s *MergeService) Merge(ctx context.Context, actor domain.Actor, input MergeInput) (result *MergeResult, err error) {
	defer s.observe("merge", time.Now(), &err)

	input = normalizeMergeInput(input)
	if err := validateMergeInput(input); err != nil {
		return nil, err
	}

	primary, err := loadTicket(ctx, s.store.Tickets(), input.PrimaryTicketID, false)
	if err != nil {
		return nil, err
	}
	if err := checkMergePrimary(actor, primary); err != nil {
		return nil, err
	}
	for _, id := range input.TicketIDs {
		merged, err := loadTicket(ctx, s.store.Tickets(), id, false)
		if err != nil {
			return nil, err
		}
		if err := checkMergeCandidate(primary, merged); err != nil {
			return nil, err
		}
	}

	lockIDs := append([]string{primary.ID}, input.TicketIDs...)
	err = s.run(ctx, primary.TenantID, lockIDs, func(tx repository.Store) error {
		locked, err := lockTickets(ctx, tx, lockIDs)
		if err != nil {
			return err
		}
		current := locked[primary.ID]
		if err := checkMergePrimary(actor, current); err != nil {
			return err
		}
		for _, id := range input.TicketIDs {
			if err := checkMergeCandidate(current, locked[id]); err != nil {
				return err
			}
			if err := checkNoChildEdges(ctx, tx, id); err != nil {
				return err
			}
		}

		result, err = s.consolidate(ctx, tx, actor, current, locked, input)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("tickets merged",
		zap.String("ticket_id", primary.ID),
		zap.String("tenant_id", primary.TenantID),
		zap.Strings("merged_ticket_ids", result.MergedTicketIDs),
		zap.Int("replies_copied", result.RepliesCopied),
		zap.Int("attachments_copied", result.AttachmentsCopied),
		zap.String("merge_history_id", result.MergeHistoryID))
	s.publish(ctx, events.NewEvent(events.EventTicketsMerged, actor, primary.ID, s.now(), events.TicketsMergedPayload{
		MergeHistoryID:    result.MergeHistoryID,
		MergedTicketIDs:   result.MergedTicketIDs,
		Reason:            input.Reason,
		RepliesCopied:     result.RepliesCopied,
		AttachmentsCopied: result.AttachmentsCopied,
	}))
	return result, nil
}

func (s *MergeService) consolidate(ctx context.Context, tx repository.Store, actor domain.Actor, primary *domain.Ticket,
	locked map[string]*domain.Ticket, input MergeInput) (*MergeResult, error) {
	now := s.now()

	existing, err := tx.Attachments().ListByTicket(ctx, primary.ID)
	if err != nil {
		return nil, fmt.Errorf("list primary attachments: %w", err)
	}
	storageKeys := make(map[string]bool, len(existing))
	for _, att := range existing {
		storageKeys[att.StorageKey] = true
	}

	var (
		replies     []*domain.TicketMessage
		sources     []string
		attachments []*domain.AttachmentReference
		preserved   = domain.PreservedData{
			Replies:     []domain.PreservedReply{},
			Attachments: []domain.PreservedAttachment{},
		}
	)
	for _, id := range input.TicketIDs {
		msgs, err := tx.Messages().ListByTicket(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list replies of %s: %w", id, err)
		}
		for _, msg := range msgs {
			if !msg.IsReply() {
				continue
			}
			replies = append(replies, &domain.TicketMessage{
				TicketID:    primary.ID,
				AuthorType:  msg.AuthorType,
				AuthorID:    copyString(msg.AuthorID),
				AuthorName:  msg.AuthorName,
				MessageType: msg.MessageType,
				Body:        mergedReplyPrefix(id) + msg.Body,
			})
			sources = append(sources, id)
		}

		atts, err := tx.Attachments().ListByTicket(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("list attachments of %s: %w", id, err)
		}
		for _, att := range atts {
			if storageKeys[att.StorageKey] {
				continue
			}
			storageKeys[att.StorageKey] = true
			attachments = append(attachments, &domain.AttachmentReference{
				TicketID:   primary.ID,
				StorageKey: att.StorageKey,
				FileName:   att.FileName,
				MimeType:   att.MimeType,
				SizeBytes:  att.SizeBytes,
			})
			preserved.Attachments = append(preserved.Attachments, domain.PreservedAttachment{
				SourceTicketID: id,
				StorageKey:     att.StorageKey,
				FileName:       att.FileName,
				MimeType:       att.MimeType,
				SizeBytes:      att.SizeBytes,
			})
		}

		merged := locked[id]
		merged.Status = domain.TicketStatusClosed
		resolvedAt := now
		merged.ResolvedAt = &resolvedAt
		if err := tx.Tickets().Update(ctx, merged); err != nil {
			return nil, fmt.Errorf("close merged ticket %s: %w", id, err)
		}
		if err := tx.Relationships().Create(ctx, &domain.TicketRelationship{
			TenantID:         primary.TenantID,
			SourceTicketID:   id,
			TargetTicketID:   primary.ID,
			RelationshipType: domain.RelationshipMergedInto,
			Origin:           domain.OriginSystem,
			CreatedByID:      actor.UserID,
			CreatedByName:    actor.UserName,
			Description:      input.Reason,
			CreatedAt:        now,
		}); err != nil {
			return nil, fmt.Errorf("link merged ticket %s: %w", id, err)
		}
	}

	if err := tx.Messages().CreateBatch(ctx, replies); err != nil {
		return nil, fmt.Errorf("copy replies: %w", err)
	}
	if err := tx.Attachments().CreateBatch(ctx, attachments); err != nil {
		return nil, fmt.Errorf("copy attachments: %w", err)
	}
	for i, reply := range replies {
		preserved.Replies = append(preserved.Replies, domain.PreservedReply{
			MessageID:      reply.ID,
			SourceTicketID: sources[i],
			MessageType:    reply.MessageType,
			AuthorType:     reply.AuthorType,
			AuthorID:       reply.AuthorID,
			Body:           reply.Body,
		})
	}
	if err := tx.Tickets().Update(ctx, primary); err != nil {
		return nil, fmt.Errorf("touch primary ticket: %w", err)
	}

	history := &domain.MergeTicketHistory{
		TenantID:        primary.TenantID,
		PrimaryTicketID: primary.ID,
		MergedTicketIDs: append([]string(nil), input.TicketIDs...),
		Reason:          input.Reason,
		ActorID:         actor.UserID,
		ActorName:       actor.UserName,
		PreservedData:   preserved,
		CreatedAt:       now,
	}
	if err := tx.MergeHistory().Create(ctx, history); err != nil {
		return nil, fmt.Errorf("record merge history: %w", err)
	}

	note := auditNote(primary.ID, actor, mergeAuditBody(input.TicketIDs, input.Reason))
	if err := tx.Messages().Create(ctx, note); err != nil {
		return nil, fmt.Errorf("append merge audit note: %w", err)
	}

	return &MergeResult{
		MergeHistoryID:    history.ID,
		PrimaryTicketID:   primary.ID,
		MergedTicketIDs:   append([]string(nil), input.TicketIDs...),
		RepliesCopied:     len(replies),
		AttachmentsCopied: len(attachments),
	}, nil
}

// lockTickets reads every ticket FOR UPDATE in sorted ID order.
func lockTickets(ctx context.Context, tx repository.Store, ids []string) (map[string]*domain.Ticket, error) {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	locked := make(map[string]*domain.Ticket, len(sorted))
	for _, id := range sorted {
		ticket, err := loadTicket(ctx, tx.Tickets(), id, true)
		if err != nil {
			return nil, err
		}
		locked[id] = ticket
	}
	return locked, nil
}

func normalizeMergeInput(input MergeInput) MergeInput {
	input.PrimaryTicketID = strings.TrimSpace(input.PrimaryTicketID)
	input.Reason = strings.TrimSpace(input.Reason)
	ids := make([]string, len(input.TicketIDs))
	for i, id := range input.TicketIDs {
		ids[i] = strings.TrimSpace(id)
	}
	input.TicketIDs = ids
	return input
}

func validateMergeInput(input MergeInput) error {
	invalid := func(message string, details map[string]any) error {
		return apperrors.NewInvalidMergeSpec(message, details)
	}
	if input.Reason == "" {
		return invalid("reason is required", map[string]any{"field": "reason", "rule": "required"})
	}
	if len(input.TicketIDs) == 0 {
		return invalid("at least one ticket must be merged", map[string]any{"field": "ticket_ids", "rule": "required"})
	}
	if len(input.TicketIDs) > maxMergeTickets {
		return invalid(fmt.Sprintf("at most %d tickets can be merged at once", maxMergeTickets),
			map[string]any{"field": "ticket_ids", "rule": "max_tickets", "max": maxMergeTickets, "actual": len(input.TicketIDs)})
	}
	seen := make(map[string]bool, len(input.TicketIDs))
	for i, id := range input.TicketIDs {
		switch {
		case id == "":
			return invalid("ticket id is required", map[string]any{"field": "ticket_ids", "index": i, "rule": "required"})
		case id == input.PrimaryTicketID:
			return invalid("the primary ticket cannot be merged into itself",
				map[string]any{"field": "ticket_ids", "index": i, "rule": "contains_primary", "ticket_id": id})
		case seen[id]:
			return invalid("ticket listed more than once",
				map[string]any{"field": "ticket_ids", "index": i, "rule": "duplicate", "ticket_id": id})
		}
		seen[id] = true
	}
	return nil
}

func checkMergePrimary(actor domain.Actor, primary *domain.Ticket) error {
	if err := checkTenant(actor, primary); err != nil {
		return err
	}
	if primary.IsClosed() {
		return apperrors.NewInvalidTargetState("cannot merge into a closed ticket", map[string]any{
			"ticket_id": primary.ID, "rule": "closed",
		})
	}
	return nil
}

func checkMergeCandidate(primary, merged *domain.Ticket) error {
	if merged.TenantID != primary.TenantID {
		return apperrors.NewTenantMismatch(map[string]any{"ticket_id": merged.ID, "primary_ticket_id": primary.ID})
	}
	if merged.IsClosed() {
		return apperrors.NewInvalidMergeSpec("closed tickets cannot be merged", map[string]any{
			"ticket_id": merged.ID, "rule": "closed",
		})
	}
	if merged.HasChildren() {
		return apperrors.NewInvalidMergeSpec("tickets with children cannot be merged", map[string]any{
			"ticket_id": merged.ID, "rule": "has_children", "child_ticket_ids": merged.ChildTicketIDs,
		})
	}
	return nil
}

// checkNoChildEdges also treats manually linked children as children.
func checkNoChildEdges(ctx context.Context, tx repository.Store, ticketID string) error {
	edges, err := tx.Relationships().ListBySource(ctx, ticketID)
	if err != nil {
		return fmt.Errorf("list relationships of %s: %w", ticketID, err)
	}
	for _, edge := range edges {
		if edge.RelationshipType == domain.RelationshipParentOf {
			return apperrors.NewInvalidMergeSpec("tickets with children cannot be merged", map[string]any{
				"ticket_id": ticketID, "rule": "has_children", "child_ticket_ids": []string{edge.TargetTicketID},
			})
		}
	}
	return nil
}

func mergedReplyPrefix(ticketID string) string {
	return "[Merged from ticket " + ticketID + "] "
}

func mergeAuditBody(mergedIDs []string, reason string) string {
	return fmt.Sprintf("Merged %d ticket(s) into this ticket: %s\nReason: %s",
		len(mergedIDs), strings.Join(mergedIDs, ", "), reason)
}

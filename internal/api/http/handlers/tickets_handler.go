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

// TicketsHandler exposes split, merge and their history.
type TicketsHandler struct {
	split   *service.SplitService
	merge   *service.MergeService
	history *service.HistoryService
}

// NewTicketsHandler constructs handler.
func NewTicketsHandler(split *service.SplitService, merge *service.MergeService, history *service.HistoryService) *TicketsHandler {
	return &TicketsHandler{split: split, merge: merge, history: history}
}

// Split POST /tickets/:id/split.
func (h *TicketsHandler) Split(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.SplitRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	input := service.SplitInput{OriginalTicketID: c.Params("id"), Reason: req.Reason}
	for _, t := range req.Tickets {
		input.Tickets = append(input.Tickets, service.SplitTicketSpec{
			Title:       t.Title,
			Description: t.Description,
			AssigneeID:  t.AssigneeID,
			Priority:    t.Priority,
		})
	}

	result, err := h.split.Split(c.UserContext(), actor, input)
	if err != nil {
		return err
	}
	resp := dto.SplitResponse{
		SplitHistoryID: result.SplitHistoryID,
		NewTicketIDs:   result.NewTicketIDs,
		Tickets:        make([]dto.TicketSummary, 0, len(result.Tickets)),
	}
	for _, ticket := range result.Tickets {
		resp.Tickets = append(resp.Tickets, ticketSummary(ticket))
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{"data": resp})
}

// Merge POST /tickets/:id/merge.
func (h *TicketsHandler) Merge(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	var req dto.MergeRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}

	result, err := h.merge.Merge(c.UserContext(), actor, service.MergeInput{
		PrimaryTicketID: c.Params("id"),
		TicketIDs:       req.TicketIDs,
		Reason:          req.Reason,
	})
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.MergeResponse{
		MergeHistoryID:    result.MergeHistoryID,
		PrimaryTicketID:   result.PrimaryTicketID,
		MergedTicketIDs:   result.MergedTicketIDs,
		RepliesCopied:     result.RepliesCopied,
		AttachmentsCopied: result.AttachmentsCopied,
	}})
}

// SplitHistory GET /tickets/:id/split-history.
func (h *TicketsHandler) SplitHistory(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	records, err := h.history.ListSplitHistory(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	items := make([]dto.SplitHistoryResponse, 0, len(records))
	for _, rec := range records {
		items = append(items, dto.SplitHistoryResponse{
			ID:                 rec.ID,
			OriginalTicketID:   rec.OriginalTicketID,
			NewTicketIDs:       rec.NewTicketIDs,
			Reason:             rec.Reason,
			ActorID:            rec.ActorID,
			ActorName:          rec.ActorName,
			FieldsDistribution: rec.FieldsDistribution,
			CreatedAt:          rec.CreatedAt,
		})
	}
	return c.JSON(fiber.Map{"data": items})
}

// MergeHistory GET /tickets/:id/merge-history.
func (h *TicketsHandler) MergeHistory(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	records, err := h.history.ListMergeHistory(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mergeHistoryResponses(records, isStaff(c))})
}

// AbsorbedBy GET /tickets/:id/absorbed-by lists merges that consumed the ticket.
func (h *TicketsHandler) AbsorbedBy(c *fiber.Ctx) error {
	actor, err := auth.ActorFromContext(c)
	if err != nil {
		return err
	}
	records, err := h.history.ListMergesAbsorbing(c.UserContext(), actor, c.Params("id"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": mergeHistoryResponses(records, isStaff(c))})
}

func isStaff(c *fiber.Ctx) bool {
	principal, ok := auth.PrincipalFromContext(c)
	return ok && principal.SubjectType == domain.SubjectTypeStaff
}

// mergeHistoryResponses strips private replies from the preserved snapshot unless staff is reading.
func mergeHistoryResponses(records []domain.MergeTicketHistory, staff bool) []dto.MergeHistoryResponse {
	items := make([]dto.MergeHistoryResponse, 0, len(records))
	for _, rec := range records {
		preserved := rec.PreservedData
		if !staff {
			preserved = publicPreservedData(preserved)
		}
		items = append(items, dto.MergeHistoryResponse{
			ID:              rec.ID,
			PrimaryTicketID: rec.PrimaryTicketID,
			MergedTicketIDs: rec.MergedTicketIDs,
			Reason:          rec.Reason,
			ActorID:         rec.ActorID,
			ActorName:       rec.ActorName,
			PreservedData:   preserved,
			CreatedAt:       rec.CreatedAt,
		})
	}
	return items
}

func publicPreservedData(data domain.PreservedData) domain.PreservedData {
	public := domain.PreservedData{
		Replies:     make([]domain.PreservedReply, 0, len(data.Replies)),
		Attachments: data.Attachments,
	}
	for _, reply := range data.Replies {
		if reply.MessageType == domain.MessageTypePublicReply {
			public.Replies = append(public.Replies, reply)
		}
	}
	return public
}

func ticketSummary(ticket *domain.Ticket) dto.TicketSummary {
	return dto.TicketSummary{
		ID:             ticket.ID,
		ExternalKey:    ticket.ExternalKey,
		DepartmentID:   ticket.DepartmentID,
		TeamID:         ticket.TeamID,
		AssigneeID:     ticket.AssigneeID,
		Title:          ticket.Title,
		Status:         ticket.Status,
		Priority:       ticket.Priority,
		Tags:           ticket.Tags,
		ParentTicketID: ticket.ParentTicketID,
		ChildTicketIDs: ticket.ChildTicketIDs,
		CreatedAt:      ticket.CreatedAt,
		UpdatedAt:      ticket.UpdatedAt,
	}
}

package service

import (
	"context"

	"github.com/spec-kit/ticket-relations/internal/domain"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

// HistoryService reads split and merge audit records, newest first.
type HistoryService struct {
	core
}

// NewHistoryService constructs the service.
func NewHistoryService(deps Dependencies) *HistoryService {
	return &HistoryService{core: newCore(deps)}
}

// ListSplitHistory returns the splits whose original was ticketID.
func (s *HistoryService) ListSplitHistory(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.SplitTicketHistory, error) {
	if err := s.authorize(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	records, err := s.store.SplitHistory().ListByOriginal(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}
	return records, nil
}

// ListMergeHistory returns the merges whose primary was ticketID.
func (s *HistoryService) ListMergeHistory(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.MergeTicketHistory, error) {
	if err := s.authorize(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	records, err := s.store.MergeHistory().ListByPrimary(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}
	return records, nil
}

// ListMergesAbsorbing returns the merges that absorbed ticketID.
func (s *HistoryService) ListMergesAbsorbing(ctx context.Context, actor domain.Actor, ticketID string) ([]domain.MergeTicketHistory, error) {
	if err := s.authorize(ctx, actor, ticketID); err != nil {
		return nil, err
	}
	records, err := s.store.MergeHistory().ListByMergedTicket(ctx, ticketID)
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}
	return records, nil
}

func (s *HistoryService) authorize(ctx context.Context, actor domain.Actor, ticketID string) error {
	ticket, err := loadTicket(ctx, s.store.Tickets(), ticketID, false)
	if err != nil {
		return err
	}
	return checkTenant(actor, ticket)
}

package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-relations/internal/domain"
)

// SplitHistoryRepository stores split audit records. Records are never updated or deleted.
type SplitHistoryRepository interface {
	Create(ctx context.Context, history *domain.SplitTicketHistory) error
	ListByOriginal(ctx context.Context, originalTicketID string) ([]domain.SplitTicketHistory, error)
}

// MergeHistoryRepository stores merge audit records. Records are never updated or deleted.
type MergeHistoryRepository interface {
	Create(ctx context.Context, history *domain.MergeTicketHistory) error
	ListByPrimary(ctx context.Context, primaryTicketID string) ([]domain.MergeTicketHistory, error)
	ListByMergedTicket(ctx context.Context, mergedTicketID string) ([]domain.MergeTicketHistory, error)
}

type splitHistoryRepository struct {
	db DBTX
}

// NewSplitHistoryRepository builds repository.
func NewSplitHistoryRepository(db DBTX) SplitHistoryRepository {
	return &splitHistoryRepository{db: db}
}

func (r *splitHistoryRepository) Create(ctx context.Context, history *domain.SplitTicketHistory) error {
	const query = `
        INSERT INTO split_ticket_history (id, tenant_id, original_ticket_id, new_ticket_ids, reason, actor_id, actor_name,
            fields_distribution, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, query,
		history.ID,
		history.TenantID,
		history.OriginalTicketID,
		history.NewTicketIDs,
		history.Reason,
		history.ActorID,
		history.ActorName,
		history.FieldsDistribution,
		history.CreatedAt,
	)
	return err
}

func (r *splitHistoryRepository) ListByOriginal(ctx context.Context, originalTicketID string) ([]domain.SplitTicketHistory, error) {
	const query = `
        SELECT id, tenant_id, original_ticket_id, new_ticket_ids, reason, actor_id, actor_name, fields_distribution, created_at
        FROM split_ticket_history WHERE original_ticket_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, originalTicketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.SplitTicketHistory
	for rows.Next() {
		var history domain.SplitTicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TenantID,
			&history.OriginalTicketID,
			&history.NewTicketIDs,
			&history.Reason,
			&history.ActorID,
			&history.ActorName,
			&history.FieldsDistribution,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

type mergeHistoryRepository struct {
	db DBTX
}

// NewMergeHistoryRepository builds repository.
func NewMergeHistoryRepository(db DBTX) MergeHistoryRepository {
	return &mergeHistoryRepository{db: db}
}

const mergeHistoryColumns = `id, tenant_id, primary_ticket_id, merged_ticket_ids, reason, actor_id, actor_name, preserved_data, created_at`

func (r *mergeHistoryRepository) Create(ctx context.Context, history *domain.MergeTicketHistory) error {
	const query = `
        INSERT INTO merge_ticket_history (` + mergeHistoryColumns + `)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`
	if history.ID == "" {
		history.ID = uuid.NewString()
	}
	if history.CreatedAt.IsZero() {
		history.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(ctx, query,
		history.ID,
		history.TenantID,
		history.PrimaryTicketID,
		history.MergedTicketIDs,
		history.Reason,
		history.ActorID,
		history.ActorName,
		history.PreservedData,
		history.CreatedAt,
	)
	return err
}

func (r *mergeHistoryRepository) ListByPrimary(ctx context.Context, primaryTicketID string) ([]domain.MergeTicketHistory, error) {
	const query = `SELECT ` + mergeHistoryColumns + ` FROM merge_ticket_history
        WHERE primary_ticket_id=$1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, primaryTicketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMergeHistory(rows)
}

func (r *mergeHistoryRepository) ListByMergedTicket(ctx context.Context, mergedTicketID string) ([]domain.MergeTicketHistory, error) {
	const query = `SELECT ` + mergeHistoryColumns + ` FROM merge_ticket_history
        WHERE merged_ticket_ids @> ARRAY[$1]::text[] ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, mergedTicketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMergeHistory(rows)
}

func scanMergeHistory(rows pgx.Rows) ([]domain.MergeTicketHistory, error) {
	var result []domain.MergeTicketHistory
	for rows.Next() {
		var history domain.MergeTicketHistory
		if err := rows.Scan(
			&history.ID,
			&history.TenantID,
			&history.PrimaryTicketID,
			&history.MergedTicketIDs,
			&history.Reason,
			&history.ActorID,
			&history.ActorName,
			&history.PreservedData,
			&history.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}

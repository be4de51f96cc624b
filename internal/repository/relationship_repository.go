package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-relations/internal/domain"
)

// RelationshipRepository persists directed ticket edges. It performs no policy checks.
type RelationshipRepository interface {
	// Create writes rel and, for types with an inverse, the inverse row. Both rows reference
	// each other through PairID. Run it inside Store.WithinTx.
	Create(ctx context.Context, rel *domain.TicketRelationship) error
	GetByID(ctx context.Context, id string) (*domain.TicketRelationship, error)
	ListBySource(ctx context.Context, ticketID string) ([]domain.TicketRelationship, error)
	// Remove deletes the row and its paired inverse.
	Remove(ctx context.Context, id string) error
	// ListUnpaired returns rows of symmetric types whose inverse row is missing.
	ListUnpaired(ctx context.Context, limit int) ([]domain.TicketRelationship, error)
}

type relationshipRepository struct {
	db DBTX
}

// NewRelationshipRepository builds repository.
func NewRelationshipRepository(db DBTX) RelationshipRepository {
	return &relationshipRepository{db: db}
}

const relationshipColumns = `id, tenant_id, source_ticket_id, target_ticket_id, relationship_type, origin, pair_id,
               created_by_id, created_by_name, description, created_at`

func (r *relationshipRepository) Create(ctx context.Context, rel *domain.TicketRelationship) error {
	if rel.ID == "" {
		rel.ID = uuid.NewString()
	}
	if rel.CreatedAt.IsZero() {
		rel.CreatedAt = time.Now().UTC()
	}
	inverse, hasInverse := rel.Inverted()
	if hasInverse {
		inverse.ID = uuid.NewString()
		inverse.PairID = &rel.ID
		rel.PairID = &inverse.ID
	}
	if err := r.insert(ctx, rel); err != nil {
		return err
	}
	if hasInverse {
		return r.insert(ctx, inverse)
	}
	return nil
}

func (r *relationshipRepository) insert(ctx context.Context, rel *domain.TicketRelationship) error {
	const query = `
        INSERT INTO ticket_relationships (id, tenant_id, source_ticket_id, target_ticket_id, relationship_type,
            origin, pair_id, created_by_id, created_by_name, description, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`
	_, err := r.db.Exec(ctx, query,
		rel.ID,
		rel.TenantID,
		rel.SourceTicketID,
		rel.TargetTicketID,
		rel.RelationshipType,
		rel.Origin,
		rel.PairID,
		rel.CreatedByID,
		rel.CreatedByName,
		rel.Description,
		rel.CreatedAt,
	)
	return err
}

func (r *relationshipRepository) GetByID(ctx context.Context, id string) (*domain.TicketRelationship, error) {
	const query = `SELECT ` + relationshipColumns + ` FROM ticket_relationships WHERE id=$1`
	rel, err := scanRelationship(r.db.QueryRow(ctx, query, id))
	if err != nil {
		return nil, notFound(err)
	}
	return rel, nil
}

func (r *relationshipRepository) ListBySource(ctx context.Context, ticketID string) ([]domain.TicketRelationship, error) {
	const query = `SELECT ` + relationshipColumns + ` FROM ticket_relationships WHERE source_ticket_id=$1`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

func (r *relationshipRepository) Remove(ctx context.Context, id string) error {
	const query = `DELETE FROM ticket_relationships WHERE id=$1 OR pair_id=$1`
	cmd, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *relationshipRepository) ListUnpaired(ctx context.Context, limit int) ([]domain.TicketRelationship, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `SELECT ` + relationshipColumns + ` FROM ticket_relationships r
        WHERE r.relationship_type = ANY($1)
          AND (r.pair_id IS NULL OR NOT EXISTS (SELECT 1 FROM ticket_relationships p WHERE p.id = r.pair_id))
        ORDER BY r.created_at ASC
        LIMIT $2`
	rows, err := r.db.Query(ctx, query, SymmetricTypes(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRelationships(rows)
}

// SymmetricTypes lists the relationship types stored as two rows.
func SymmetricTypes() []string {
	return []string{
		string(domain.RelationshipParentOf),
		string(domain.RelationshipChildOf),
		string(domain.RelationshipBlocks),
		string(domain.RelationshipBlockedBy),
	}
}

func scanRelationship(row pgx.Row) (*domain.TicketRelationship, error) {
	var rel domain.TicketRelationship
	if err := row.Scan(
		&rel.ID,
		&rel.TenantID,
		&rel.SourceTicketID,
		&rel.TargetTicketID,
		&rel.RelationshipType,
		&rel.Origin,
		&rel.PairID,
		&rel.CreatedByID,
		&rel.CreatedByName,
		&rel.Description,
		&rel.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &rel, nil
}

func scanRelationships(rows pgx.Rows) ([]domain.TicketRelationship, error) {
	var result []domain.TicketRelationship
	for rows.Next() {
		rel, err := scanRelationship(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rel)
	}
	return result, rows.Err()
}

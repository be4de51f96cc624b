package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-relations/internal/domain"
)

// TicketMessageRepository manages ticket thread messages.
type TicketMessageRepository interface {
	Create(ctx context.Context, msg *domain.TicketMessage) error
	// CreateBatch appends messages in slice order with a single round trip.
	CreateBatch(ctx context.Context, msgs []*domain.TicketMessage) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error)
}

type ticketMessageRepository struct {
	db DBTX
}

// NewTicketMessageRepository builds repository.
func NewTicketMessageRepository(db DBTX) TicketMessageRepository {
	return &ticketMessageRepository{db: db}
}

const insertMessageQuery = `
        INSERT INTO ticket_messages (ticket_id, author_type, author_id, author_name, message_type, body)
        VALUES ($1,$2,$3,$4,$5,$6)
        RETURNING id, created_at`

func (r *ticketMessageRepository) Create(ctx context.Context, msg *domain.TicketMessage) error {
	return r.db.QueryRow(ctx, insertMessageQuery,
		msg.TicketID,
		msg.AuthorType,
		msg.AuthorID,
		msg.AuthorName,
		msg.MessageType,
		msg.Body,
	).Scan(&msg.ID, &msg.CreatedAt)
}

func (r *ticketMessageRepository) CreateBatch(ctx context.Context, msgs []*domain.TicketMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, msg := range msgs {
		batch.Queue(insertMessageQuery,
			msg.TicketID,
			msg.AuthorType,
			msg.AuthorID,
			msg.AuthorName,
			msg.MessageType,
			msg.Body,
		).QueryRow(func(row pgx.Row) error {
			return row.Scan(&msg.ID, &msg.CreatedAt)
		})
	}
	return r.db.SendBatch(ctx, batch).Close()
}

func (r *ticketMessageRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.TicketMessage, error) {
	const query = `
        SELECT id, ticket_id, author_type, author_id, author_name, message_type, body, created_at
        FROM ticket_messages WHERE ticket_id=$1 ORDER BY seq ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.TicketMessage
	for rows.Next() {
		var msg domain.TicketMessage
		if err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&msg.AuthorType,
			&msg.AuthorID,
			&msg.AuthorName,
			&msg.MessageType,
			&msg.Body,
			&msg.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

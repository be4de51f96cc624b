package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/ticket-relations/internal/domain"
)

// AttachmentRepository persists attachment metadata. Attachments form a set per ticket keyed by storage key.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *domain.AttachmentReference) error
	// CreateBatch inserts attachments, skipping storage keys the ticket already has.
	CreateBatch(ctx context.Context, attachments []*domain.AttachmentReference) error
	ListByTicket(ctx context.Context, ticketID string) ([]domain.AttachmentReference, error)
}

type attachmentRepository struct {
	db DBTX
}

// NewAttachmentRepository constructs repository.
func NewAttachmentRepository(db DBTX) AttachmentRepository {
	return &attachmentRepository{db: db}
}

const insertAttachmentQuery = `
        INSERT INTO attachment_references (ticket_id, ticket_message_id, storage_key, file_name, mime_type, size_bytes)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (ticket_id, storage_key) DO NOTHING`

// Create inserts the attachment. A storage key already present on the ticket is skipped and
// attachment.ID stays empty.
func (r *attachmentRepository) Create(ctx context.Context, attachment *domain.AttachmentReference) error {
	err := r.db.QueryRow(ctx, insertAttachmentQuery+` RETURNING id, created_at`,
		attachment.TicketID,
		attachment.TicketMessageID,
		attachment.StorageKey,
		attachment.FileName,
		attachment.MimeType,
		attachment.SizeBytes,
	).Scan(&attachment.ID, &attachment.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}

func (r *attachmentRepository) CreateBatch(ctx context.Context, attachments []*domain.AttachmentReference) error {
	if len(attachments) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, attachment := range attachments {
		batch.Queue(insertAttachmentQuery,
			attachment.TicketID,
			attachment.TicketMessageID,
			attachment.StorageKey,
			attachment.FileName,
			attachment.MimeType,
			attachment.SizeBytes,
		)
	}
	return r.db.SendBatch(ctx, batch).Close()
}

func (r *attachmentRepository) ListByTicket(ctx context.Context, ticketID string) ([]domain.AttachmentReference, error) {
	const query = `
        SELECT id, ticket_id, ticket_message_id, storage_key, file_name, mime_type, size_bytes, created_at
        FROM attachment_references WHERE ticket_id=$1 ORDER BY created_at ASC, id ASC`
	rows, err := r.db.Query(ctx, query, ticketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.AttachmentReference
	for rows.Next() {
		var attachment domain.AttachmentReference
		if err := rows.Scan(
			&attachment.ID,
			&attachment.TicketID,
			&attachment.TicketMessageID,
			&attachment.StorageKey,
			&attachment.FileName,
			&attachment.MimeType,
			&attachment.SizeBytes,
			&attachment.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, attachment)
	}
	return result, rows.Err()
}

package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a looked up row does not exist.
var ErrNotFound = errors.New("record not found")

// DBTX is satisfied by *pgxpool.Pool and pgx.Tx so repositories run inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store groups the repositories touched by relationship, split and merge operations.
type Store interface {
	Tickets() TicketRepository
	Messages() TicketMessageRepository
	Attachments() AttachmentRepository
	Relationships() RelationshipRepository
	SplitHistory() SplitHistoryRepository
	MergeHistory() MergeHistoryRepository
	// WithinTx runs fn against a Store whose writes commit together or not at all.
	WithinTx(ctx context.Context, fn func(Store) error) error
}

type postgresStore struct {
	pool          *pgxpool.Pool
	tickets       TicketRepository
	messages      TicketMessageRepository
	attachments   AttachmentRepository
	relationships RelationshipRepository
	splits        SplitHistoryRepository
	merges        MergeHistoryRepository
}

// NewPostgresStore builds a Store backed by the pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) Store {
	return newPostgresStore(pool, pool)
}

func newPostgresStore(pool *pgxpool.Pool, db DBTX) *postgresStore {
	return &postgresStore{
		pool:          pool,
		tickets:       NewTicketRepository(db),
		messages:      NewTicketMessageRepository(db),
		attachments:   NewAttachmentRepository(db),
		relationships: NewRelationshipRepository(db),
		splits:        NewSplitHistoryRepository(db),
		merges:        NewMergeHistoryRepository(db),
	}
}

func (s *postgresStore) Tickets() TicketRepository             { return s.tickets }
func (s *postgresStore) Messages() TicketMessageRepository     { return s.messages }
func (s *postgresStore) Attachments() AttachmentRepository     { return s.attachments }
func (s *postgresStore) Relationships() RelationshipRepository { return s.relationships }
func (s *postgresStore) SplitHistory() SplitHistoryRepository  { return s.splits }
func (s *postgresStore) MergeHistory() MergeHistoryRepository  { return s.merges }

func (s *postgresStore) WithinTx(ctx context.Context, fn func(Store) error) error {
	if s.pool == nil {
		// already bound to a transaction
		return fn(s)
	}
	return pgx.BeginTxFunc(ctx, s.pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(newPostgresStore(nil, tx))
	})
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

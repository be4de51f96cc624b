package repository

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-relations/internal/domain"
)

func TestRelationshipCreateWritesInverseRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	createdAt := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rel := &domain.TicketRelationship{
		ID:               "rel-1",
		TenantID:         "tenant-a",
		SourceTicketID:   "t1",
		TargetTicketID:   "t2",
		RelationshipType: domain.RelationshipParentOf,
		Origin:           domain.OriginManual,
		CreatedByID:      "u1",
		CreatedByName:    "Ada",
		Description:      "tracking epic",
		CreatedAt:        createdAt,
	}

	mock.ExpectExec("INSERT INTO ticket_relationships").
		WithArgs("rel-1", "tenant-a", "t1", "t2", domain.RelationshipParentOf, domain.OriginManual,
			pgxmock.AnyArg(), "u1", "Ada", "tracking epic", createdAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO ticket_relationships").
		WithArgs(pgxmock.AnyArg(), "tenant-a", "t2", "t1", domain.RelationshipChildOf, domain.OriginManual,
			pgxmock.AnyArg(), "u1", "Ada", "tracking epic", createdAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewRelationshipRepository(mock)
	require.NoError(t, repo.Create(context.Background(), rel))

	require.NotNil(t, rel.PairID)
	assert.NotEqual(t, rel.ID, *rel.PairID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationshipCreateRelatedToWritesSingleRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	rel := &domain.TicketRelationship{
		TenantID:         "tenant-a",
		SourceTicketID:   "t1",
		TargetTicketID:   "t2",
		RelationshipType: domain.RelationshipRelatedTo,
		Origin:           domain.OriginManual,
	}

	mock.ExpectExec("INSERT INTO ticket_relationships").
		WithArgs(pgxmock.AnyArg(), "tenant-a", "t1", "t2", domain.RelationshipRelatedTo, domain.OriginManual,
			pgxmock.AnyArg(), "", "", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	repo := NewRelationshipRepository(mock)
	require.NoError(t, repo.Create(context.Background(), rel))

	assert.NotEmpty(t, rel.ID)
	assert.Nil(t, rel.PairID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationshipRemoveDeletesPair(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM ticket_relationships").
		WithArgs("rel-1").
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	repo := NewRelationshipRepository(mock)
	require.NoError(t, repo.Remove(context.Background(), "rel-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRelationshipRemoveMissingRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("DELETE FROM ticket_relationships").
		WithArgs("missing").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	repo := NewRelationshipRepository(mock)
	assert.ErrorIs(t, repo.Remove(context.Background(), "missing"), ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTicketUpdateReportsMissingTicket(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("UPDATE tickets SET").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), "t-404", "tenant-a").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	repo := NewTicketRepository(mock)
	err = repo.Update(context.Background(), &domain.Ticket{ID: "t-404", TenantID: "tenant-a", Status: domain.TicketStatusOpen})
	assert.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

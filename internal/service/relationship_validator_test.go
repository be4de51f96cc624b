package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-relations/internal/domain"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

type edgeMap map[string][]domain.TicketRelationship

func (m edgeMap) ListBySource(_ context.Context, ticketID string) ([]domain.TicketRelationship, error) {
	return m[ticketID], nil
}

// link records parent as the parent of child the way the store does: both directions.
func (m edgeMap) link(parent, child string) {
	m[parent] = append(m[parent], domain.TicketRelationship{SourceTicketID: parent, TargetTicketID: child, RelationshipType: domain.RelationshipParentOf})
	m[child] = append(m[child], domain.TicketRelationship{SourceTicketID: child, TargetTicketID: parent, RelationshipType: domain.RelationshipChildOf})
}

type failingEdges struct{}

func (failingEdges) ListBySource(context.Context, string) ([]domain.TicketRelationship, error) {
	return nil, errors.New("connection refused")
}

func openTicket(id string) *domain.Ticket {
	return &domain.Ticket{ID: id, TenantID: "tenant-a", Status: domain.TicketStatusOpen}
}

func check(source, target *domain.Ticket, relType domain.RelationshipType) RelationshipCheck {
	c := RelationshipCheck{Type: relType, Source: source, Target: target}
	if source != nil {
		c.SourceTicketID = source.ID
	}
	if target != nil {
		c.TargetTicketID = target.ID
	}
	return c
}

func TestValidateCreateRejectsSelfReferenceForEveryType(t *testing.T) {
	v := NewRelationshipValidator(true, 0)
	ticket := openTicket("t1")
	for _, relType := range []domain.RelationshipType{
		domain.RelationshipParentOf, domain.RelationshipChildOf, domain.RelationshipBlocks, domain.RelationshipBlockedBy,
		domain.RelationshipRelatedTo, domain.RelationshipMergedInto, domain.RelationshipDuplicateOf, domain.RelationshipSplitFrom,
	} {
		err := v.ValidateCreate(context.Background(), edgeMap{}, check(ticket, ticket, relType))
		assert.True(t, apperrors.HasCode(err, apperrors.CodeSelfReference), string(relType))
	}
}

func TestValidateCreateMissingTickets(t *testing.T) {
	v := NewRelationshipValidator(true, 0)
	err := v.ValidateCreate(context.Background(), edgeMap{}, RelationshipCheck{
		SourceTicketID: "t1", TargetTicketID: "t2", Type: domain.RelationshipBlocks, Source: openTicket("t1"),
	})
	require.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.Equal(t, "t2", apperrors.ToDomainError(err).Details["ticket_id"])
}

func TestValidateCreateUnknownType(t *testing.T) {
	v := NewRelationshipValidator(true, 0)
	err := v.ValidateCreate(context.Background(), edgeMap{}, check(openTicket("t1"), openTicket("t2"), "depends_on"))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidation))
}

func TestValidateCreateTenantMismatch(t *testing.T) {
	v := NewRelationshipValidator(true, 0)
	other := openTicket("t2")
	other.TenantID = "tenant-b"
	err := v.ValidateCreate(context.Background(), edgeMap{}, check(openTicket("t1"), other, domain.RelationshipRelatedTo))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTenantMismatch))
}

func TestValidateCreateImmediateCycleFromParentField(t *testing.T) {
	v := NewRelationshipValidator(false, 0)
	parent := openTicket("t1")
	child := openTicket("t2")
	parentID := parent.ID
	child.ParentTicketID = &parentID

	err := v.ValidateCreate(context.Background(), edgeMap{}, check(child, parent, domain.RelationshipParentOf))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCircularRelationship))

	err = v.ValidateCreate(context.Background(), edgeMap{}, check(parent, child, domain.RelationshipChildOf))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCircularRelationship))

	assert.NoError(t, v.ValidateCreate(context.Background(), edgeMap{}, check(parent, child, domain.RelationshipParentOf)))
}

func TestValidateCreateImmediateCycleFromEdges(t *testing.T) {
	v := NewRelationshipValidator(false, 0)
	edges := edgeMap{}
	edges.link("t1", "t2")

	err := v.ValidateCreate(context.Background(), edges, check(openTicket("t2"), openTicket("t1"), domain.RelationshipParentOf))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCircularRelationship))
}

func TestDeepCycleCheckFollowsAncestors(t *testing.T) {
	edges := edgeMap{}
	edges.link("t1", "t2")
	edges.link("t2", "t3")

	shallow := NewRelationshipValidator(false, 0)
	assert.NoError(t, shallow.ValidateCreate(context.Background(), edges, check(openTicket("t3"), openTicket("t1"), domain.RelationshipParentOf)))

	deep := NewRelationshipValidator(true, 0)
	err := deep.ValidateCreate(context.Background(), edges, check(openTicket("t3"), openTicket("t1"), domain.RelationshipParentOf))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCircularRelationship))

	err = deep.ValidateCreate(context.Background(), edges, check(openTicket("t1"), openTicket("t3"), domain.RelationshipChildOf))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCircularRelationship))

	assert.NoError(t, deep.ValidateCreate(context.Background(), edges, check(openTicket("t3"), openTicket("t4"), domain.RelationshipParentOf)))
}

func TestDeepCycleCheckStopsAtMaxDepth(t *testing.T) {
	edges := edgeMap{}
	for i := 1; i < 6; i++ {
		edges.link(fmt.Sprintf("t%d", i), fmt.Sprintf("t%d", i+1))
	}

	v := NewRelationshipValidator(true, 2)
	err := v.ValidateCreate(context.Background(), edges, check(openTicket("t6"), openTicket("t9"), domain.RelationshipParentOf))
	require.True(t, apperrors.HasCode(err, apperrors.CodeCircularRelationship))
	assert.Equal(t, "max_depth", apperrors.ToDomainError(err).Details["rule"])
}

func TestValidateCreateStateRules(t *testing.T) {
	v := NewRelationshipValidator(true, 0)
	closed := openTicket("t2")
	closed.Status = domain.TicketStatusClosed

	err := v.ValidateCreate(context.Background(), edgeMap{}, check(openTicket("t1"), closed, domain.RelationshipMergedInto))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidTargetState))

	err = v.ValidateCreate(context.Background(), edgeMap{}, check(openTicket("t1"), openTicket("t3"), domain.RelationshipDuplicateOf))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidSourceState))

	assert.NoError(t, v.ValidateCreate(context.Background(), edgeMap{}, check(closed, openTicket("t3"), domain.RelationshipDuplicateOf)))
}

func TestValidateCreateEdgeReadFailureIsRetryable(t *testing.T) {
	v := NewRelationshipValidator(true, 0)
	err := v.ValidateCreate(context.Background(), failingEdges{}, check(openTicket("t1"), openTicket("t2"), domain.RelationshipParentOf))
	assert.True(t, apperrors.ToDomainError(err).Retryable())
}

func TestValidateRemoval(t *testing.T) {
	v := NewRelationshipValidator(true, 0)

	cases := []struct {
		name    string
		rel     domain.TicketRelationship
		blocked bool
	}{
		{"system parent_of", domain.TicketRelationship{RelationshipType: domain.RelationshipParentOf, Origin: domain.OriginSystem, Description: "Created from ticket split"}, true},
		{"manual parent_of", domain.TicketRelationship{RelationshipType: domain.RelationshipParentOf, Origin: domain.OriginManual}, false},
		{"system merged_into", domain.TicketRelationship{RelationshipType: domain.RelationshipMergedInto, Origin: domain.OriginSystem}, true},
		{"system blocks", domain.TicketRelationship{RelationshipType: domain.RelationshipBlocks, Origin: domain.OriginSystem}, false},
		{"legacy marker", domain.TicketRelationship{RelationshipType: domain.RelationshipSplitFrom, Description: "Manually Created by agent"}, false},
		{"legacy without marker", domain.TicketRelationship{RelationshipType: domain.RelationshipChildOf, Description: "imported"}, true},
		{"system origin ignores marker", domain.TicketRelationship{RelationshipType: domain.RelationshipChildOf, Origin: domain.OriginSystem, Description: "manually created"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rel := tc.rel
			rel.ID = "rel-1"
			err := v.ValidateRemoval(&rel)
			if tc.blocked {
				assert.True(t, apperrors.HasCode(err, apperrors.CodeSystemGenerated))
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

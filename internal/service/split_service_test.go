package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/events"
	"github.com/spec-kit/ticket-relations/internal/repository/memory"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

func splitSpecs(n int) []SplitTicketSpec {
	specs := make([]SplitTicketSpec, n)
	for i := range specs {
		specs[i] = SplitTicketSpec{Title: fmt.Sprintf("Part %d", i+1), Description: fmt.Sprintf("desc %d", i+1)}
	}
	return specs
}

func TestSplitEndToEnd(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "T1")
	svc := NewSplitService(f.deps)

	result, err := svc.Split(context.Background(), testActor, SplitInput{
		OriginalTicketID: "T1",
		Reason:           "scope too broad",
		Tickets: []SplitTicketSpec{
			{Title: "Part A", Description: "desc A", Priority: "High"},
			{Title: "Part B", Description: "desc B", Priority: domain.TicketPriorityLow},
		},
	})
	require.NoError(t, err)
	require.Len(t, result.NewTicketIDs, 2)
	t2, t3 := result.NewTicketIDs[0], result.NewTicketIDs[1]

	original := f.load(t, "T1")
	assert.Equal(t, []string{t2, t3}, original.ChildTicketIDs)

	partA := f.load(t, t2)
	require.NotNil(t, partA.ParentTicketID)
	assert.Equal(t, "T1", *partA.ParentTicketID)
	assert.Equal(t, "Part A", partA.Title)
	assert.Equal(t, domain.TicketPriorityHigh, partA.Priority)
	assert.Equal(t, original.RequesterID, partA.RequesterID)
	assert.Equal(t, original.DepartmentID, partA.DepartmentID)
	assert.Equal(t, original.Tags, partA.Tags)
	assert.Empty(t, partA.ChildTicketIDs)
	assert.Empty(t, f.messages(t, t2))

	partB := f.load(t, t3)
	assert.Equal(t, domain.TicketPriorityLow, partB.Priority)

	history, err := f.store.SplitHistory().ListByOriginal(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, result.SplitHistoryID, history[0].ID)
	assert.Equal(t, "Part A", history[0].FieldsDistribution[t2].Title)
	assert.Equal(t, "scope too broad", history[0].Reason)
	assert.Equal(t, testActor.UserID, history[0].ActorID)

	notes := f.messages(t, "T1")
	require.Len(t, notes, 1)
	assert.True(t, notes[0].IsPrivate())
	for _, want := range []string{"Part A", "Part B", t2, t3, "scope too broad"} {
		assert.Contains(t, notes[0].Body, want)
	}

	edges, err := f.store.Relationships().ListBySource(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, edges, 2)
	for _, edge := range edges {
		assert.Equal(t, domain.RelationshipParentOf, edge.RelationshipType)
		assert.Equal(t, domain.OriginSystem, edge.Origin)
		assert.Equal(t, splitRelationshipDescription, edge.Description)
	}
	inverse, err := f.store.Relationships().ListBySource(context.Background(), t2)
	require.NoError(t, err)
	require.Len(t, inverse, 1)
	assert.Equal(t, domain.RelationshipChildOf, inverse[0].RelationshipType)

	published := f.events()
	require.Len(t, published, 1)
	assert.Equal(t, events.EventTicketSplit, published[0].Type)
}

func TestSplitDefaultsPriority(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "T1", func(tk *domain.Ticket) { tk.Priority = domain.TicketPriorityUrgent })

	result, err := NewSplitService(f.deps).Split(context.Background(), testActor, SplitInput{OriginalTicketID: "T1", Reason: "r", Tickets: splitSpecs(2)})
	require.NoError(t, err)
	assert.Equal(t, domain.TicketPriorityUrgent, f.load(t, result.NewTicketIDs[0]).Priority)
}

func TestSecondSplitReplacesChildList(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "T1")
	svc := NewSplitService(f.deps)

	first, err := svc.Split(context.Background(), testActor, SplitInput{OriginalTicketID: "T1", Reason: "first", Tickets: splitSpecs(2)})
	require.NoError(t, err)
	second, err := svc.Split(context.Background(), testActor, SplitInput{OriginalTicketID: "T1", Reason: "second", Tickets: splitSpecs(2)})
	require.NoError(t, err)

	assert.Equal(t, second.NewTicketIDs, f.load(t, "T1").ChildTicketIDs)
	assert.NotEqual(t, first.NewTicketIDs, second.NewTicketIDs)
}

func TestSplitHistoryDoesNotAliasResult(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "T1")

	result, err := NewSplitService(f.deps).Split(context.Background(), testActor, SplitInput{OriginalTicketID: "T1", Reason: "r", Tickets: splitSpecs(2)})
	require.NoError(t, err)
	want := append([]string(nil), result.NewTicketIDs...)
	result.NewTicketIDs[0] = "tampered"

	history, err := f.store.SplitHistory().ListByOriginal(context.Background(), "T1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, want, history[0].NewTicketIDs)
	assert.Equal(t, want, f.load(t, "T1").ChildTicketIDs)
}

func TestSplitTicketCountBoundaries(t *testing.T) {
	cases := []struct {
		count int
		ok    bool
	}{{1, false}, {2, true}, {10, true}, {11, false}}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%d tickets", tc.count), func(t *testing.T) {
			f := newFixture(t)
			f.ticket(t, "T1")
			svc := NewSplitService(f.deps)

			result, err := svc.Split(context.Background(), testActor, SplitInput{OriginalTicketID: "T1", Reason: "r", Tickets: splitSpecs(tc.count)})
			if tc.ok {
				require.NoError(t, err)
				assert.Len(t, result.NewTicketIDs, tc.count)
				return
			}
			require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidSplitSpec))
			assert.Empty(t, f.load(t, "T1").ChildTicketIDs)
		})
	}
}

func TestSplitRejectsInvalidSpecs(t *testing.T) {
	long := strings.Repeat("x", maxTitleLength+1)
	cases := []struct {
		name  string
		input SplitInput
		field string
	}{
		{"empty reason", SplitInput{Reason: "   ", Tickets: splitSpecs(2)}, "reason"},
		{"title too long", SplitInput{Reason: "r", Tickets: []SplitTicketSpec{{Title: long, Description: "d"}, {Title: "b", Description: "d"}}}, "title"},
		{"empty title", SplitInput{Reason: "r", Tickets: []SplitTicketSpec{{Title: "a", Description: "d"}, {Title: " ", Description: "d"}}}, "title"},
		{"empty description", SplitInput{Reason: "r", Tickets: []SplitTicketSpec{{Title: "a"}, {Title: "b", Description: "d"}}}, "description"},
		{"unknown priority", SplitInput{Reason: "r", Tickets: []SplitTicketSpec{{Title: "a", Description: "d", Priority: "SOON"}, {Title: "b", Description: "d"}}}, "priority"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			f.ticket(t, "T1")
			tc.input.OriginalTicketID = "T1"

			_, err := NewSplitService(f.deps).Split(context.Background(), testActor, tc.input)
			require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidSplitSpec), err)
			assert.Equal(t, tc.field, apperrors.ToDomainError(err).Details["field"])
			assert.Empty(t, f.messages(t, "T1"))
		})
	}
}

func TestSplitTitleAtLimitIsAccepted(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "T1")
	specs := splitSpecs(2)
	specs[0].Title = strings.Repeat("é", maxTitleLength)

	_, err := NewSplitService(f.deps).Split(context.Background(), testActor, SplitInput{OriginalTicketID: "T1", Reason: "r", Tickets: specs})
	assert.NoError(t, err)
}

func TestSplitRejectsSourceState(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "closed", func(tk *domain.Ticket) { tk.Status = domain.TicketStatusClosed })
	parent := "P"
	f.ticket(t, "child", func(tk *domain.Ticket) { tk.ParentTicketID = &parent })
	svc := NewSplitService(f.deps)

	_, err := svc.Split(context.Background(), testActor, SplitInput{OriginalTicketID: "closed", Reason: "r", Tickets: splitSpecs(2)})
	require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidSourceState))
	assert.Equal(t, "closed", apperrors.ToDomainError(err).Details["rule"])

	_, err = svc.Split(context.Background(), testActor, SplitInput{OriginalTicketID: "child", Reason: "r", Tickets: splitSpecs(2)})
	require.True(t, apperrors.HasCode(err, apperrors.CodeInvalidSourceState))
	assert.Equal(t, "has_parent", apperrors.ToDomainError(err).Details["rule"])

	_, err = svc.Split(context.Background(), testActor, SplitInput{OriginalTicketID: "missing", Reason: "r", Tickets: splitSpecs(2)})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestSplitRejectsOtherTenant(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "T1", func(tk *domain.Ticket) { tk.TenantID = "tenant-b" })

	_, err := NewSplitService(f.deps).Split(context.Background(), testActor, SplitInput{OriginalTicketID: "T1", Reason: "r", Tickets: splitSpecs(2)})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeTenantMismatch))
}

func TestSplitStorageFailureLeavesNoPartialState(t *testing.T) {
	for _, op := range []string{memory.OpRelationshipCreate, memory.OpSplitHistoryCreate, memory.OpMessageCreate} {
		t.Run(op, func(t *testing.T) {
			f := newFixture(t)
			f.ticket(t, "T1")
			f.store.FailOn(op, errors.New("storage unavailable"))

			_, err := NewSplitService(f.deps).Split(context.Background(), testActor, SplitInput{OriginalTicketID: "T1", Reason: "r", Tickets: splitSpecs(3)})
			require.Error(t, err)
			domainErr := apperrors.ToDomainError(err)
			assert.Equal(t, apperrors.CodeStorageFailure, domainErr.Code)
			assert.True(t, domainErr.Retryable())

			assert.Empty(t, f.load(t, "T1").ChildTicketIDs)
			assert.Empty(t, f.messages(t, "T1"))
			edges, err := f.store.Relationships().ListBySource(context.Background(), "T1")
			require.NoError(t, err)
			assert.Empty(t, edges)
			history, err := f.store.SplitHistory().ListByOriginal(context.Background(), "T1")
			require.NoError(t, err)
			assert.Empty(t, history)
			assert.Empty(t, f.events())
		})
	}
}

func TestSplitEdgesCannotBeRemoved(t *testing.T) {
	f := newFixture(t)
	f.ticket(t, "T1")
	_, err := NewSplitService(f.deps).Split(context.Background(), testActor, SplitInput{OriginalTicketID: "T1", Reason: "r", Tickets: splitSpecs(2)})
	require.NoError(t, err)

	edges, err := f.store.Relationships().ListBySource(context.Background(), "T1")
	require.NoError(t, err)
	require.NotEmpty(t, edges)

	err = NewRelationshipService(f.deps, nil).RemoveRelationship(context.Background(), testActor, "T1", edges[0].ID)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSystemGenerated))
}

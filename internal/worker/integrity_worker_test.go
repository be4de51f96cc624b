package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/config"
	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/observability"
	"github.com/spec-kit/ticket-relations/internal/repository"
)

type stubRelationships struct {
	repository.RelationshipRepository
	unpaired  []domain.TicketRelationship
	err       error
	lastLimit int
}

func (s *stubRelationships) ListUnpaired(_ context.Context, limit int) ([]domain.TicketRelationship, error) {
	s.lastLimit = limit
	return s.unpaired, s.err
}

func TestSweepReportsUnpairedRows(t *testing.T) {
	repo := &stubRelationships{unpaired: []domain.TicketRelationship{
		{ID: "r1", SourceTicketID: "t1", TargetTicketID: "t2", RelationshipType: domain.RelationshipParentOf},
	}}
	w := NewIntegrityWorker(repo, observability.NewMetrics(prometheus.NewRegistry()), zap.NewNop(),
		config.IntegrityConfig{BatchSize: 50}, nil)

	count, err := w.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 50, repo.lastLimit)
}

func TestSweepPropagatesStoreErrors(t *testing.T) {
	repo := &stubRelationships{err: errors.New("db down")}
	w := NewIntegrityWorker(repo, nil, zap.NewNop(), config.IntegrityConfig{}, nil)

	_, err := w.Sweep(context.Background())
	assert.ErrorContains(t, err, "db down")
}

func TestStartValidatesSchedule(t *testing.T) {
	engine := cron.New(cron.WithLocation(time.UTC))
	t.Cleanup(func() { engine.Stop() })
	w := NewIntegrityWorker(&stubRelationships{}, nil, zap.NewNop(), config.IntegrityConfig{}, engine)

	assert.Error(t, w.Start("every now and then"))
	require.NoError(t, w.Start(""))
	assert.Empty(t, engine.Entries())

	require.NoError(t, w.Start("@every 1h"))
	assert.Len(t, engine.Entries(), 1)
}

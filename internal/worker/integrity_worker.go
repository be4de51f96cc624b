package worker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/config"
	"github.com/spec-kit/ticket-relations/internal/observability"
	"github.com/spec-kit/ticket-relations/internal/repository"
)

const sweepTimeout = time.Minute

// IntegrityWorker periodically reports symmetric relationship rows whose inverse row is missing.
// It only reports; repairs are left to an operator.
type IntegrityWorker struct {
	relationships repository.RelationshipRepository
	metrics       *observability.Metrics
	logger        *zap.Logger
	batchSize     int
	cron          *cron.Cron
}

// NewIntegrityWorker builds the worker. A nil engine gets a UTC cron scheduler.
func NewIntegrityWorker(relationships repository.RelationshipRepository, metrics *observability.Metrics,
	logger *zap.Logger, cfg config.IntegrityConfig, engine *cron.Cron) *IntegrityWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if engine == nil {
		engine = cron.New(cron.WithLocation(time.UTC))
	}
	return &IntegrityWorker{
		relationships: relationships,
		metrics:       metrics,
		logger:        logger,
		batchSize:     cfg.BatchSize,
		cron:          engine,
	}
}

// Start schedules the sweep. An empty schedule leaves the worker idle.
func (w *IntegrityWorker) Start(schedule string) error {
	schedule = strings.TrimSpace(schedule)
	if schedule == "" {
		w.logger.Info("integrity sweep disabled")
		return nil
	}
	if _, err := w.cron.AddFunc(schedule, w.runScheduled); err != nil {
		return fmt.Errorf("schedule integrity sweep %q: %w", schedule, err)
	}
	w.cron.Start()
	w.logger.Info("integrity sweep scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop halts the scheduler and returns a context done when running sweeps finish.
func (w *IntegrityWorker) Stop() context.Context {
	return w.cron.Stop()
}

func (w *IntegrityWorker) runScheduled() {
	ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
	defer cancel()
	if _, err := w.Sweep(ctx); err != nil {
		w.logger.Warn("integrity sweep failed", zap.Error(err))
	}
}

// Sweep lists unpaired rows once, logs each of them and publishes the count.
func (w *IntegrityWorker) Sweep(ctx context.Context) (int, error) {
	unpaired, err := w.relationships.ListUnpaired(ctx, w.batchSize)
	if err != nil {
		return 0, fmt.Errorf("list unpaired relationships: %w", err)
	}
	w.metrics.SetUnpairedRelationships(len(unpaired))
	for _, rel := range unpaired {
		w.logger.Warn("relationship missing inverse row",
			zap.String("relationship_id", rel.ID),
			zap.String("tenant_id", rel.TenantID),
			zap.String("ticket_id", rel.SourceTicketID),
			zap.String("target_ticket_id", rel.TargetTicketID),
			zap.String("relationship_type", string(rel.RelationshipType)))
	}
	if len(unpaired) > 0 {
		w.logger.Info("integrity sweep finished", zap.Int("unpaired", len(unpaired)))
	}
	return len(unpaired), nil
}

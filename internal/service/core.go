package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-relations/internal/config"
	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/events"
	"github.com/spec-kit/ticket-relations/internal/observability"
	"github.com/spec-kit/ticket-relations/internal/persistence"
	"github.com/spec-kit/ticket-relations/internal/repository"
	apperrors "github.com/spec-kit/ticket-relations/pkg/util/errorutil"
)

const defaultLockWait = 2 * time.Second

// Dependencies bundles collaborators shared by the relationship, split, merge and history services.
type Dependencies struct {
	Store      repository.Store
	Locker     persistence.TicketLocker
	Dispatcher events.Dispatcher
	Metrics    *observability.Metrics
	Logger     *zap.Logger
	Config     config.RelationsConfig
	// Now defaults to time.Now in UTC.
	Now func() time.Time
}

type core struct {
	store      repository.Store
	locker     persistence.TicketLocker
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	cfg        config.RelationsConfig
	now        func() time.Time
}

func newCore(deps Dependencies) core {
	c := core{
		store:      deps.Store,
		locker:     deps.Locker,
		dispatcher: deps.Dispatcher,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		cfg:        deps.Config,
		now:        deps.Now,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = func() time.Time { return time.Now().UTC() }
	}
	if c.locker == nil {
		wait := c.cfg.LockWait()
		if wait <= 0 {
			wait = defaultLockWait
		}
		c.locker = persistence.NewLocalTicketLocker(wait)
	}
	return c
}

// run executes fn in one store transaction while holding the locks of every touched ticket.
func (c core) run(ctx context.Context, tenantID string, ticketIDs []string, fn func(repository.Store) error) error {
	if timeout := c.cfg.OperationTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	release, err := c.locker.Acquire(ctx, tenantID, ticketIDs...)
	if err != nil {
		return apperrors.NewStorageFailure(err)
	}
	defer release()

	if err := c.store.WithinTx(ctx, fn); err != nil {
		return storageError(err)
	}
	return nil
}

// observe records the outcome of a public operation. Use it as defer c.observe(op, time.Now(), &err).
func (c core) observe(operation string, start time.Time, errp *error) {
	c.metrics.RecordOperation(operation, *errp, time.Since(start))
}

func (c core) publish(ctx context.Context, event events.Event) {
	if c.dispatcher == nil {
		return
	}
	if err := c.dispatcher.Publish(context.WithoutCancel(ctx), event); err != nil {
		c.logger.Warn("event handlers failed",
			zap.String("event_type", string(event.Type)),
			zap.String("ticket_id", event.TicketID),
			zap.Error(err))
	}
}

// loadTicket reads a ticket and maps repository errors onto domain errors.
func loadTicket(ctx context.Context, tickets repository.TicketRepository, id string, forUpdate bool) (*domain.Ticket, error) {
	var (
		ticket *domain.Ticket
		err    error
	)
	if forUpdate {
		ticket, err = tickets.GetForUpdate(ctx, id)
	} else {
		ticket, err = tickets.GetByID(ctx, id)
	}
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NewNotFound("ticket", map[string]any{"ticket_id": id})
	}
	if err != nil {
		return nil, apperrors.NewStorageFailure(err)
	}
	return ticket, nil
}

// checkTenant rejects access to tickets outside the actor's tenant. System actors carry no tenant.
func checkTenant(actor domain.Actor, ticket *domain.Ticket) error {
	if actor.TenantID == "" || actor.TenantID == ticket.TenantID {
		return nil
	}
	return apperrors.NewTenantMismatch(map[string]any{"ticket_id": ticket.ID})
}

// storageError keeps domain errors and classifies everything else as a retryable storage failure.
func storageError(err error) error {
	if err == nil || apperrors.IsDomainError(err) {
		return err
	}
	return apperrors.NewStorageFailure(err)
}

func auditNote(ticketID string, actor domain.Actor, body string) *domain.TicketMessage {
	msg := &domain.TicketMessage{
		TicketID:    ticketID,
		AuthorType:  domain.AuthorTypeSystem,
		AuthorName:  "System",
		MessageType: domain.MessageTypeSystemEvent,
		Body:        body,
	}
	if actor.UserID != "" {
		id := actor.UserID
		msg.AuthorType = domain.AuthorTypeStaff
		msg.AuthorID = &id
		msg.AuthorName = actor.UserName
	}
	return msg
}

func generateTicketKey() string {
	return "TCK-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}

// Package memory provides an in-process repository.Store. Transactions are serialized and
// applied copy-on-commit, so a failing transaction leaves no partial state.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/ticket-relations/internal/domain"
	"github.com/spec-kit/ticket-relations/internal/repository"
)

// Operation names accepted by FailOn.
const (
	OpTicketCreate       = "tickets.create"
	OpTicketUpdate       = "tickets.update"
	OpMessageCreate      = "messages.create"
	OpMessageCreateBatch = "messages.create_batch"
	OpAttachmentCreate   = "attachments.create"
	OpRelationshipCreate = "relationships.create"
	OpRelationshipRemove = "relationships.remove"
	OpSplitHistoryCreate = "split_history.create"
	OpMergeHistoryCreate = "merge_history.create"
)

type state struct {
	tickets       map[string]*domain.Ticket
	messages      map[string][]domain.TicketMessage
	attachments   map[string][]domain.AttachmentReference
	relationships map[string]domain.TicketRelationship
	relOrder      []string
	splits        []domain.SplitTicketHistory
	merges        []domain.MergeTicketHistory
}

func newState() *state {
	return &state{
		tickets:       make(map[string]*domain.Ticket),
		messages:      make(map[string][]domain.TicketMessage),
		attachments:   make(map[string][]domain.AttachmentReference),
		relationships: make(map[string]domain.TicketRelationship),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, ticket := range s.tickets {
		c.tickets[id] = ticket.Clone()
	}
	for id, msgs := range s.messages {
		c.messages[id] = append([]domain.TicketMessage(nil), msgs...)
	}
	for id, atts := range s.attachments {
		c.attachments[id] = append([]domain.AttachmentReference(nil), atts...)
	}
	for id, rel := range s.relationships {
		c.relationships[id] = rel
	}
	c.relOrder = append([]string(nil), s.relOrder...)
	c.splits = append([]domain.SplitTicketHistory(nil), s.splits...)
	c.merges = append([]domain.MergeTicketHistory(nil), s.merges...)
	return c
}

type faults struct {
	mu   sync.Mutex
	byOp map[string]error
}

func (f *faults) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err, ok := f.byOp[op]; ok {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

type noopLocker struct{}

func (noopLocker) Lock()   {}
func (noopLocker) Unlock() {}

// handle binds repositories to either the live state or a transaction snapshot.
type handle struct {
	lock   sync.Locker
	state  func() *state
	faults *faults
	now    func() time.Time
}

func (h handle) read(fn func(st *state) error) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	return fn(h.state())
}

func (h handle) write(op string, fn func(st *state) error) error {
	h.lock.Lock()
	defer h.lock.Unlock()
	if err := h.faults.check(op); err != nil {
		return err
	}
	return fn(h.state())
}

// Store is an in-memory repository.Store.
type Store struct {
	mu     sync.Mutex
	txMu   sync.Mutex
	st     *state
	faults *faults
	now    func() time.Time
	h      handle
}

var _ repository.Store = (*Store)(nil)

// NewStore returns an empty store.
func NewStore() *Store {
	s := &Store{
		st:     newState(),
		faults: &faults{byOp: make(map[string]error)},
		now:    func() time.Time { return time.Now().UTC() },
	}
	s.h = handle{lock: &s.mu, state: func() *state { return s.st }, faults: s.faults, now: s.now}
	return s
}

// FailOn makes every later call of op return err. Passing a nil err clears the fault.
func (s *Store) FailOn(op string, err error) {
	s.faults.mu.Lock()
	defer s.faults.mu.Unlock()
	if err == nil {
		delete(s.faults.byOp, op)
		return
	}
	s.faults.byOp[op] = err
}

func (s *Store) Tickets() repository.TicketRepository             { return ticketRepo{s.h} }
func (s *Store) Messages() repository.TicketMessageRepository     { return messageRepo{s.h} }
func (s *Store) Attachments() repository.AttachmentRepository     { return attachmentRepo{s.h} }
func (s *Store) Relationships() repository.RelationshipRepository { return relationshipRepo{s.h} }
func (s *Store) SplitHistory() repository.SplitHistoryRepository  { return splitRepo{s.h} }
func (s *Store) MergeHistory() repository.MergeHistoryRepository  { return mergeRepo{s.h} }

// WithinTx runs fn against a snapshot and swaps it in only when fn succeeds.
func (s *Store) WithinTx(ctx context.Context, fn func(repository.Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	snapshot := s.st.clone()
	s.mu.Unlock()

	tx := &txStore{h: handle{lock: noopLocker{}, state: func() *state { return snapshot }, faults: s.faults, now: s.now}}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = snapshot
	s.mu.Unlock()
	return nil
}

type txStore struct {
	h handle
}

func (t *txStore) Tickets() repository.TicketRepository             { return ticketRepo{t.h} }
func (t *txStore) Messages() repository.TicketMessageRepository     { return messageRepo{t.h} }
func (t *txStore) Attachments() repository.AttachmentRepository     { return attachmentRepo{t.h} }
func (t *txStore) Relationships() repository.RelationshipRepository { return relationshipRepo{t.h} }
func (t *txStore) SplitHistory() repository.SplitHistoryRepository  { return splitRepo{t.h} }
func (t *txStore) MergeHistory() repository.MergeHistoryRepository  { return mergeRepo{t.h} }

func (t *txStore) WithinTx(_ context.Context, fn func(repository.Store) error) error {
	return fn(t)
}

type ticketRepo struct{ h handle }

func (r ticketRepo) Create(_ context.Context, ticket *domain.Ticket) error {
	return r.h.write(OpTicketCreate, func(st *state) error {
		if ticket.ID == "" {
			ticket.ID = uuid.NewString()
		}
		if _, exists := st.tickets[ticket.ID]; exists {
			return fmt.Errorf("ticket %s already exists", ticket.ID)
		}
		now := r.h.now()
		ticket.CreatedAt = now
		ticket.UpdatedAt = now
		st.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r ticketRepo) Update(_ context.Context, ticket *domain.Ticket) error {
	return r.h.write(OpTicketUpdate, func(st *state) error {
		current, ok := st.tickets[ticket.ID]
		if !ok || current.TenantID != ticket.TenantID {
			return repository.ErrNotFound
		}
		ticket.UpdatedAt = r.h.now()
		st.tickets[ticket.ID] = ticket.Clone()
		return nil
	})
}

func (r ticketRepo) GetByID(_ context.Context, id string) (*domain.Ticket, error) {
	var out *domain.Ticket
	err := r.h.read(func(st *state) error {
		ticket, ok := st.tickets[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = ticket.Clone()
		return nil
	})
	return out, err
}

func (r ticketRepo) GetForUpdate(ctx context.Context, id string) (*domain.Ticket, error) {
	return r.GetByID(ctx, id)
}

type messageRepo struct{ h handle }

func (r messageRepo) Create(_ context.Context, msg *domain.TicketMessage) error {
	return r.h.write(OpMessageCreate, func(st *state) error {
		r.appendLocked(st, msg)
		return nil
	})
}

func (r messageRepo) CreateBatch(_ context.Context, msgs []*domain.TicketMessage) error {
	if len(msgs) == 0 {
		return nil
	}
	return r.h.write(OpMessageCreateBatch, func(st *state) error {
		for _, msg := range msgs {
			r.appendLocked(st, msg)
		}
		return nil
	})
}

func (r messageRepo) appendLocked(st *state, msg *domain.TicketMessage) {
	msg.ID = uuid.NewString()
	msg.CreatedAt = r.h.now()
	st.messages[msg.TicketID] = append(st.messages[msg.TicketID], *msg)
}

func (r messageRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.TicketMessage, error) {
	var out []domain.TicketMessage
	err := r.h.read(func(st *state) error {
		out = append([]domain.TicketMessage(nil), st.messages[ticketID]...)
		return nil
	})
	return out, err
}

type attachmentRepo struct{ h handle }

func (r attachmentRepo) Create(ctx context.Context, attachment *domain.AttachmentReference) error {
	return r.CreateBatch(ctx, []*domain.AttachmentReference{attachment})
}

func (r attachmentRepo) CreateBatch(_ context.Context, attachments []*domain.AttachmentReference) error {
	if len(attachments) == 0 {
		return nil
	}
	return r.h.write(OpAttachmentCreate, func(st *state) error {
		for _, attachment := range attachments {
			existing := st.attachments[attachment.TicketID]
			duplicate := false
			for _, att := range existing {
				if att.StorageKey == attachment.StorageKey {
					duplicate = true
					break
				}
			}
			if duplicate {
				continue
			}
			attachment.ID = uuid.NewString()
			attachment.CreatedAt = r.h.now()
			st.attachments[attachment.TicketID] = append(existing, *attachment)
		}
		return nil
	})
}

func (r attachmentRepo) ListByTicket(_ context.Context, ticketID string) ([]domain.AttachmentReference, error) {
	var out []domain.AttachmentReference
	err := r.h.read(func(st *state) error {
		out = append([]domain.AttachmentReference(nil), st.attachments[ticketID]...)
		return nil
	})
	return out, err
}

type relationshipRepo struct{ h handle }

func (r relationshipRepo) Create(_ context.Context, rel *domain.TicketRelationship) error {
	return r.h.write(OpRelationshipCreate, func(st *state) error {
		if rel.ID == "" {
			rel.ID = uuid.NewString()
		}
		if rel.CreatedAt.IsZero() {
			rel.CreatedAt = r.h.now()
		}
		inverse, hasInverse := rel.Inverted()
		if hasInverse {
			inverse.ID = uuid.NewString()
			inverse.PairID = &rel.ID
			rel.PairID = &inverse.ID
		}
		st.relationships[rel.ID] = *rel
		st.relOrder = append(st.relOrder, rel.ID)
		if hasInverse {
			st.relationships[inverse.ID] = *inverse
			st.relOrder = append(st.relOrder, inverse.ID)
		}
		return nil
	})
}

func (r relationshipRepo) GetByID(_ context.Context, id string) (*domain.TicketRelationship, error) {
	var out *domain.TicketRelationship
	err := r.h.read(func(st *state) error {
		rel, ok := st.relationships[id]
		if !ok {
			return repository.ErrNotFound
		}
		out = &rel
		return nil
	})
	return out, err
}

func (r relationshipRepo) ListBySource(_ context.Context, ticketID string) ([]domain.TicketRelationship, error) {
	var out []domain.TicketRelationship
	err := r.h.read(func(st *state) error {
		for _, id := range st.relOrder {
			if rel := st.relationships[id]; rel.SourceTicketID == ticketID {
				out = append(out, rel)
			}
		}
		return nil
	})
	return out, err
}

func (r relationshipRepo) Remove(_ context.Context, id string) error {
	return r.h.write(OpRelationshipRemove, func(st *state) error {
		rel, ok := st.relationships[id]
		if !ok {
			return repository.ErrNotFound
		}
		remove := map[string]bool{id: true}
		if rel.PairID != nil {
			remove[*rel.PairID] = true
		}
		for otherID, other := range st.relationships {
			if other.PairID != nil && *other.PairID == id {
				remove[otherID] = true
			}
		}
		kept := st.relOrder[:0]
		for _, relID := range st.relOrder {
			if remove[relID] {
				delete(st.relationships, relID)
				continue
			}
			kept = append(kept, relID)
		}
		st.relOrder = kept
		return nil
	})
}

func (r relationshipRepo) ListUnpaired(_ context.Context, limit int) ([]domain.TicketRelationship, error) {
	if limit <= 0 {
		limit = 100
	}
	var out []domain.TicketRelationship
	err := r.h.read(func(st *state) error {
		for _, id := range st.relOrder {
			rel := st.relationships[id]
			if _, symmetric := rel.RelationshipType.Inverse(); !symmetric {
				continue
			}
			if rel.PairID != nil {
				if _, ok := st.relationships[*rel.PairID]; ok {
					continue
				}
			}
			out = append(out, rel)
			if len(out) == limit {
				break
			}
		}
		return nil
	})
	return out, err
}

type splitRepo struct{ h handle }

func (r splitRepo) Create(_ context.Context, history *domain.SplitTicketHistory) error {
	return r.h.write(OpSplitHistoryCreate, func(st *state) error {
		if history.ID == "" {
			history.ID = uuid.NewString()
		}
		if history.CreatedAt.IsZero() {
			history.CreatedAt = r.h.now()
		}
		st.splits = append(st.splits, *history)
		return nil
	})
}

func (r splitRepo) ListByOriginal(_ context.Context, originalTicketID string) ([]domain.SplitTicketHistory, error) {
	var out []domain.SplitTicketHistory
	err := r.h.read(func(st *state) error {
		for _, history := range st.splits {
			if history.OriginalTicketID == originalTicketID {
				out = append(out, history)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

type mergeRepo struct{ h handle }

func (r mergeRepo) Create(_ context.Context, history *domain.MergeTicketHistory) error {
	return r.h.write(OpMergeHistoryCreate, func(st *state) error {
		if history.ID == "" {
			history.ID = uuid.NewString()
		}
		if history.CreatedAt.IsZero() {
			history.CreatedAt = r.h.now()
		}
		st.merges = append(st.merges, *history)
		return nil
	})
}

func (r mergeRepo) ListByPrimary(_ context.Context, primaryTicketID string) ([]domain.MergeTicketHistory, error) {
	return r.filter(func(h domain.MergeTicketHistory) bool { return h.PrimaryTicketID == primaryTicketID })
}

func (r mergeRepo) ListByMergedTicket(_ context.Context, mergedTicketID string) ([]domain.MergeTicketHistory, error) {
	return r.filter(func(h domain.MergeTicketHistory) bool {
		for _, id := range h.MergedTicketIDs {
			if id == mergedTicketID {
				return true
			}
		}
		return false
	})
}

func (r mergeRepo) filter(match func(domain.MergeTicketHistory) bool) ([]domain.MergeTicketHistory, error) {
	var out []domain.MergeTicketHistory
	err := r.h.read(func(st *state) error {
		for _, history := range st.merges {
			if match(history) {
				out = append(out, history)
			}
		}
		return nil
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, err
}

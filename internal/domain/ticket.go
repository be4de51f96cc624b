package domain

import "time"

// TicketStatus enumerates lifecycle states for tickets.
type TicketStatus string

const (
	TicketStatusOpen       TicketStatus = "OPEN"
	TicketStatusInProgress TicketStatus = "IN_PROGRESS"
	TicketStatusWaiting    TicketStatus = "WAITING"
	TicketStatusResolved   TicketStatus = "RESOLVED"
	TicketStatusClosed     TicketStatus = "CLOSED"
	TicketStatusAccepted   TicketStatus = "ACCEPTED"
	TicketStatusRejected   TicketStatus = "REJECTED"
	TicketStatusOnHold     TicketStatus = "ON_HOLD"
	TicketStatusPaused     TicketStatus = "PAUSED"
)

// TicketPriority enumerates SLA urgency.
type TicketPriority string

const (
	TicketPriorityLow    TicketPriority = "LOW"
	TicketPriorityMedium TicketPriority = "MEDIUM"
	TicketPriorityHigh   TicketPriority = "HIGH"
	TicketPriorityUrgent TicketPriority = "URGENT"
)

// Valid reports whether p is a known priority.
func (p TicketPriority) Valid() bool {
	switch p {
	case TicketPriorityLow, TicketPriorityMedium, TicketPriorityHigh, TicketPriorityUrgent:
		return true
	}
	return false
}

// Ticket is the aggregate for support requests. Parent and child IDs are weak references.
type Ticket struct {
	ID             string
	TenantID       string
	ExternalKey    string
	RequesterID    string
	DepartmentID   string
	TeamID         *string
	AssigneeID     *string
	Title          string
	Description    string
	Status         TicketStatus
	Priority       TicketPriority
	Tags           []string
	ParentTicketID *string
	ChildTicketIDs []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	ResolvedAt     *time.Time
}

// IsClosed reports whether the ticket reached the terminal CLOSED state.
func (t *Ticket) IsClosed() bool {
	return t.Status == TicketStatusClosed
}

// HasParent reports whether the ticket is a child of another ticket.
func (t *Ticket) HasParent() bool {
	return t.ParentTicketID != nil && *t.ParentTicketID != ""
}

// HasChildren reports whether the ticket has at least one child ticket.
func (t *Ticket) HasChildren() bool {
	return len(t.ChildTicketIDs) > 0
}

// Clone returns a deep copy so callers can mutate it without aliasing slices.
func (t *Ticket) Clone() *Ticket {
	if t == nil {
		return nil
	}
	c := *t
	c.TeamID = cloneString(t.TeamID)
	c.AssigneeID = cloneString(t.AssigneeID)
	c.ParentTicketID = cloneString(t.ParentTicketID)
	c.Tags = append([]string(nil), t.Tags...)
	c.ChildTicketIDs = append([]string(nil), t.ChildTicketIDs...)
	if t.ResolvedAt != nil {
		resolved := *t.ResolvedAt
		c.ResolvedAt = &resolved
	}
	return &c
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

package domain

import "time"

// MessageAuthorType indicates who authored a message.
type MessageAuthorType string

const (
	AuthorTypeUser   MessageAuthorType = "USER"
	AuthorTypeStaff  MessageAuthorType = "STAFF"
	AuthorTypeSystem MessageAuthorType = "SYSTEM"
)

// TicketMessageType differentiates between replies and notes.
type TicketMessageType string

const (
	MessageTypePublicReply  TicketMessageType = "PUBLIC_REPLY"
	MessageTypeInternalNote TicketMessageType = "INTERNAL_NOTE"
	MessageTypeSystemEvent  TicketMessageType = "SYSTEM_EVENT"
)

// TicketMessage captures a reply or note in a ticket thread.
type TicketMessage struct {
	ID          string
	TicketID    string
	AuthorType  MessageAuthorType
	AuthorID    *string
	AuthorName  string
	MessageType TicketMessageType
	Body        string
	CreatedAt   time.Time
}

// IsPrivate reports whether the message is staff-only. Private messages are never sent to customers.
func (m *TicketMessage) IsPrivate() bool {
	return m.MessageType != MessageTypePublicReply
}

// IsReply reports whether the message belongs to the conversation. System events such as
// split and merge audit notes are private but are not replies.
func (m *TicketMessage) IsReply() bool {
	return m.MessageType != MessageTypeSystemEvent
}

// AttachmentReference stores metadata for a file attached to a ticket.
type AttachmentReference struct {
	ID              string
	TicketID        string
	TicketMessageID *string
	StorageKey      string
	FileName        string
	MimeType        string
	SizeBytes       int64
	CreatedAt       time.Time
}

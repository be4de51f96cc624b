package domain

import "time"

// SplitFields are the values a new ticket received from a split.
type SplitFields struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	AssigneeID  *string        `json:"assignee_id,omitempty"`
	Priority    TicketPriority `json:"priority"`
}

// SplitTicketHistory is the immutable audit record of one split.
type SplitTicketHistory struct {
	ID                 string
	TenantID           string
	OriginalTicketID   string
	NewTicketIDs       []string
	Reason             string
	ActorID            string
	ActorName          string
	FieldsDistribution map[string]SplitFields
	CreatedAt          time.Time
}

// PreservedReply is a reply as it was written onto the primary ticket.
type PreservedReply struct {
	MessageID      string            `json:"message_id"`
	SourceTicketID string            `json:"source_ticket_id"`
	MessageType    TicketMessageType `json:"message_type"`
	AuthorType     MessageAuthorType `json:"author_type"`
	AuthorID       *string           `json:"author_id,omitempty"`
	Body           string            `json:"body"`
}

// PreservedAttachment is an attachment copied onto the primary ticket.
type PreservedAttachment struct {
	SourceTicketID string `json:"source_ticket_id"`
	StorageKey     string `json:"storage_key"`
	FileName       string `json:"file_name"`
	MimeType       string `json:"mime_type"`
	SizeBytes      int64  `json:"size_bytes"`
}

// PreservedData snapshots what a merge consolidated into the primary.
type PreservedData struct {
	Replies     []PreservedReply      `json:"replies"`
	Attachments []PreservedAttachment `json:"attachments"`
}

// MergeTicketHistory is the immutable audit record of one merge.
type MergeTicketHistory struct {
	ID              string
	TenantID        string
	PrimaryTicketID string
	MergedTicketIDs []string
	Reason          string
	ActorID         string
	ActorName       string
	PreservedData   PreservedData
	CreatedAt       time.Time
}

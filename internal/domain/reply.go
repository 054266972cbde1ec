package domain

import "time"

// ReplyAuthorType indicates who authored a reply.
type ReplyAuthorType string

const (
	AuthorTypeCustomer ReplyAuthorType = "customer"
	AuthorTypeAgent    ReplyAuthorType = "agent"
	AuthorTypeSystem   ReplyAuthorType = "system"
)

// Reply is a message in a ticket thread.
type Reply struct {
	ID             string
	TicketID       string
	AuthorType     ReplyAuthorType
	AuthorID       *string
	AuthorName     string
	AuthorEmail    string
	Content        string
	IsInternalNote bool
	CreatedAt      time.Time
}

// IsCustomerReply reports whether the customer wrote the reply.
func (r *Reply) IsCustomerReply() bool {
	return r.AuthorType == AuthorTypeCustomer
}

// Attachment stores metadata for a file associated with a ticket or one of its replies.
type Attachment struct {
	ID         string
	TicketID   string
	ReplyID    *string
	FileName   string
	MimeType   string
	SizeBytes  int64
	StorageKey string
	UploadedBy *string
	CreatedAt  time.Time
}

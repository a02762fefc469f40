package providers

import (
	"context"
	"time"

	"mailbridge/models"
)

// RemoteFolder describes a folder as reported by the remote store.
type RemoteFolder struct {
	Identifier models.FolderIdentifier
	Name       string
	Type       models.FolderType
	Selectable bool
	// ParentName is the hierarchical parent's display name, empty at the
	// top level. Only IMAP reports real hierarchy.
	ParentName string
}

// RemoteAddress is a parsed mailbox address.
type RemoteAddress struct {
	Name    string
	Address string
}

// RemoteAttachment carries an attachment's metadata, and its content when the
// fetch requested bodies.
type RemoteAttachment struct {
	Filename    string
	ContentType string
	Size        int64
	Content     []byte

	// attachmentID defers content retrieval for providers that serve
	// attachment bodies from a separate endpoint.
	attachmentID string
}

// RemoteMessage is a protocol-neutral view of a remote mail message.
type RemoteMessage struct {
	RemoteID    string
	Subject     string
	From        RemoteAddress
	To          []RemoteAddress
	Cc          []RemoteAddress
	Bcc         []RemoteAddress
	TextBody    string
	HTMLBody    string
	Read        bool
	Date        time.Time
	MessageID   string
	InReplyTo   string
	References  []string
	Attachments []RemoteAttachment
	// Folders lists every remote folder/label the message belongs to.
	// A message may be a member of several at once.
	Folders []models.FolderIdentifier
}

// OutgoingMessage is a fully assembled message handed to a client for
// transmission.
type OutgoingMessage struct {
	FromName    string
	FromAddress string
	To          []string
	Cc          []string
	Bcc         []string
	Subject     string
	HTMLBody    string
	TextBody    string
	InReplyTo   string
	References  []string
	Attachments []RemoteAttachment
	// FolderOfRecord is where the sent message should be filed remotely,
	// for transports that need an explicit append (IMAP).
	FolderOfRecord models.FolderIdentifier
}

// SendReceipt reports the outcome of a send. A confirmed synchronous send
// carries the remote id of the stored message; an async transport that only
// accepted the message for delivery reports Queued with no remote id, so
// callers can distinguish "sent" from "accepted, pending".
type SendReceipt struct {
	RemoteID string
	Queued   bool
}

// Client is the capability set every protocol backend implements. After
// construction no caller branches on the concrete variant. All operations
// block on network I/O under connect/read timeouts; timeouts surface as
// ConnectionError. A Client is single-use per unit of work and must not be
// cached across requests, because tokens can be invalidated between calls.
type Client interface {
	ListFolders(ctx context.Context) ([]RemoteFolder, error)
	FetchMessages(ctx context.Context, folder models.FolderIdentifier, since time.Time) ([]RemoteMessage, error)
	FetchMessage(ctx context.Context, remoteID string, folder models.FolderIdentifier) (*RemoteMessage, error)
	MarkRead(ctx context.Context, remoteID string, folder models.FolderIdentifier) error
	MarkUnread(ctx context.Context, remoteID string, folder models.FolderIdentifier) error
	DeleteMessage(ctx context.Context, remoteID string) error
	SendMessage(ctx context.Context, msg *OutgoingMessage) (*SendReceipt, error)
	Close() error
}

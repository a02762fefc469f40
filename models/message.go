package models

import "time"

// Message is a mail message mirrored from a remote store or recorded after a
// confirmed send. It is unique per (account_id, remote_id): re-ingestion
// updates it, never duplicates it. Folder membership is many-to-many since a
// message may appear under several remote folders or labels.
type Message struct {
	ID          int64     `db:"id" json:"id"`
	AccountID   int64     `db:"account_id" json:"account_id"`
	RemoteID    string    `db:"remote_id" json:"remote_id"`
	Subject     string    `db:"subject" json:"subject"`
	FromName    string    `db:"from_name" json:"from_name"`
	FromAddress string    `db:"from_address" json:"from_address"`
	To          string    `db:"to_addresses" json:"to"`
	Cc          string    `db:"cc_addresses" json:"cc"`
	Bcc         string    `db:"bcc_addresses" json:"bcc"`
	TextBody    string    `db:"text_body" json:"text_body"`
	HTMLBody    string    `db:"html_body" json:"html_body"`
	Read        bool      `db:"read" json:"read"`
	Date        time.Time `db:"date" json:"date"`

	// Threading headers, kept so replies can be wired into the original
	// conversation by the transport.
	MessageID  string `db:"message_id" json:"message_id"`
	InReplyTo  string `db:"in_reply_to" json:"in_reply_to"`
	References string `db:"references" json:"references"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`

	// Folders is populated on read from the membership table.
	Folders []int64 `db:"-" json:"folders"`
}

// ResourceType names the kind of CRM record an association points at.
type ResourceType string

const (
	ResourceContact ResourceType = "contact"
	ResourceCompany ResourceType = "company"
	ResourceDeal    ResourceType = "deal"
)

// Valid reports whether t is a known resource type.
func (t ResourceType) Valid() bool {
	switch t {
	case ResourceContact, ResourceCompany, ResourceDeal:
		return true
	}
	return false
}

// Association links a message to a CRM record. Associations are created only
// after a send is confirmed successful, never speculatively.
type Association struct {
	ID           int64        `db:"id" json:"id"`
	MessageID    int64        `db:"message_id" json:"message_id"`
	ResourceType ResourceType `db:"resource_type" json:"resource_type"`
	ResourceID   int64        `db:"resource_id" json:"resource_id"`
}

// Attachment records a stored media file belonging to a message. The content
// lives on disk under the media directory; Path is relative to it.
type Attachment struct {
	ID          int64  `db:"id" json:"id"`
	MessageID   int64  `db:"message_id" json:"message_id"`
	Filename    string `db:"filename" json:"filename"`
	ContentType string `db:"content_type" json:"content_type"`
	Size        int64  `db:"size" json:"size"`
	Path        string `db:"path" json:"-"`
}

package models

import (
	"encoding/json"
	"time"
)

// ConnectionType selects the protocol backend for an account. The set is
// closed: every account is bound to exactly one of these at creation.
type ConnectionType string

const (
	ConnectionIMAP    ConnectionType = "imap"
	ConnectionGmail   ConnectionType = "gmail"
	ConnectionOutlook ConnectionType = "outlook"
)

// Valid reports whether t is one of the known connection types.
func (t ConnectionType) Valid() bool {
	switch t {
	case ConnectionIMAP, ConnectionGmail, ConnectionOutlook:
		return true
	}
	return false
}

// SyncState is the lifecycle flag governing whether an account participates
// in periodic synchronization.
type SyncState string

const (
	// SyncEnabled means the scheduler picks the account up on each pass.
	SyncEnabled SyncState = "ENABLED"
	// SyncDisabled is user-initiated and always reversible.
	SyncDisabled SyncState = "DISABLED"
	// SyncStopped is system-initiated on unrecoverable failure and carries a
	// cause comment. Re-enabling requires the cause to be resolved first.
	SyncStopped SyncState = "STOPPED"
)

// Account represents a configured mailbox endpoint, personal or shared.
type Account struct {
	ID               int64          `db:"id" json:"id"`
	Email            string         `db:"email" json:"email"`
	ConnectionType   ConnectionType `db:"connection_type" json:"connection_type"`
	Credentials      string         `db:"credentials" json:"-"`
	SyncState        SyncState      `db:"sync_state" json:"sync_state"`
	SyncStateComment string         `db:"sync_state_comment" json:"sync_state_comment"`
	StopResolved     bool           `db:"stop_resolved" json:"-"`
	LastSyncAt       *time.Time     `db:"last_sync_at" json:"last_sync_at"`
	SentFolderID     *int64         `db:"sent_folder_id" json:"sent_folder_id"`
	TrashFolderID    *int64         `db:"trash_folder_id" json:"trash_folder_id"`
	// OwnerUserID is nil for shared accounts, which have no single owner.
	OwnerUserID *string `db:"owner_user_id" json:"owner_user_id"`
	// FromTemplate formats the display name of outgoing mail. It may contain
	// {agent} and {company} placeholders resolved against the acting user at
	// send time.
	FromTemplate string    `db:"from_template" json:"from_template"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Shared reports whether the account has no single owner.
func (a *Account) Shared() bool {
	return a.OwnerUserID == nil
}

// IMAPSettings holds the connection parameters for an IMAP/SMTP account.
// They are stored serialized in the account's credentials column.
type IMAPSettings struct {
	IMAPServer  string `json:"imap_server"`
	IMAPPort    int    `json:"imap_port"`
	SMTPServer  string `json:"smtp_server"`
	SMTPPort    int    `json:"smtp_port"`
	Username    string `json:"username"`
	Password    string `json:"password"`
	UseSTARTTLS bool   `json:"use_starttls"`
}

// IMAPSettings decodes the credentials column of an IMAP account.
func (a *Account) IMAPSettings() (*IMAPSettings, error) {
	var s IMAPSettings
	if err := json.Unmarshal([]byte(a.Credentials), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ActingUser identifies the authenticated user performing a request. It is
// passed explicitly into the composer so that sends from shared accounts are
// reproducible: the From header is computed per call, never cached.
type ActingUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Company string `json:"company"`
}

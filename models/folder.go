package models

import "strings"

// IdentifierKind tells how a folder is addressed on the remote store.
type IdentifierKind string

const (
	// IdentifierName addresses a folder by its hierarchical IMAP name.
	IdentifierName IdentifierKind = "name"
	// IdentifierID addresses a folder by an opaque remote id (Gmail labels,
	// Graph mail folders). Two folders with equal display names but
	// different ids are distinct.
	IdentifierID IdentifierKind = "id"
)

// FolderIdentifier resolves folder identity independent of protocol.
type FolderIdentifier struct {
	Kind  IdentifierKind `json:"kind"`
	Value string         `json:"value"`
}

// Equal reports whether two identifiers address the same remote folder.
func (f FolderIdentifier) Equal(other FolderIdentifier) bool {
	return f.Kind == other.Kind && f.Value == other.Value
}

func (f FolderIdentifier) String() string {
	return string(f.Kind) + ":" + f.Value
}

// FolderType classifies a folder's role in the mailbox.
type FolderType string

const (
	FolderInbox FolderType = "inbox"
	FolderSent  FolderType = "sent"
	FolderTrash FolderType = "trash"
	FolderOther FolderType = "other"
)

// System reports whether the type is one of the special mailbox roles.
// System folders sort before user-created ones in listings.
func (t FolderType) System() bool {
	return t == FolderInbox || t == FolderSent || t == FolderTrash
}

// displayRank orders folder types for listing: system folders first.
func (t FolderType) displayRank() int {
	switch t {
	case FolderInbox:
		return 0
	case FolderSent:
		return 1
	case FolderTrash:
		return 2
	default:
		return 3
	}
}

// DisplayRank exposes the listing order of the folder's type.
func (f *Folder) DisplayRank() int {
	return f.Type.displayRank()
}

// Folder is a remote mail container mirrored locally.
type Folder struct {
	ID             int64          `db:"id" json:"id"`
	AccountID      int64          `db:"account_id" json:"account_id"`
	IdentifierKind IdentifierKind `db:"identifier_kind" json:"-"`
	IdentifierVal  string         `db:"identifier_value" json:"-"`
	Name           string         `db:"name" json:"name"`
	Type           FolderType     `db:"type" json:"type"`
	Syncable       bool           `db:"syncable" json:"syncable"`
	Selectable     bool           `db:"selectable" json:"selectable"`
	ParentID       *int64         `db:"parent_id" json:"parent_id"`
	// UnreadCount is a derived projection, populated by aggregation at read
	// time. It is never stored on the row.
	UnreadCount int `db:"-" json:"unread_count"`
}

// Identifier returns the folder's remote identity value object.
func (f *Folder) Identifier() FolderIdentifier {
	return FolderIdentifier{Kind: f.IdentifierKind, Value: f.IdentifierVal}
}

// ClassifyFolderName infers a folder type from common display names. The
// protocol clients prefer explicit attributes (IMAP special-use flags, Gmail
// system label ids, Graph well-known names) and fall back to this.
func ClassifyFolderName(name string) FolderType {
	switch strings.ToLower(name) {
	case "inbox":
		return FolderInbox
	case "sent", "sent items", "sent mail", "sent messages":
		return FolderSent
	case "trash", "deleted items", "deleted messages", "bin":
		return FolderTrash
	}
	return FolderOther
}

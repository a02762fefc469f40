package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mailbridge/models"
)

// UpsertMessage inserts the message or, when (account, remote id) is already
// known, refreshes its mutable fields in place. Folder memberships listed in
// folderIDs are added without disturbing memberships learned from other
// folders' pulls. Ingesting the same remote message any number of times
// yields exactly one local row.
func (s *Store) UpsertMessage(ctx context.Context, m *models.Message, folderIDs []int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO messages (
			account_id, remote_id, subject, from_name, from_address,
			to_addresses, cc_addresses, bcc_addresses,
			text_body, html_body, read, date,
			message_id, in_reply_to, "references", created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, remote_id) DO UPDATE SET
			subject = excluded.subject,
			from_name = excluded.from_name,
			from_address = excluded.from_address,
			to_addresses = excluded.to_addresses,
			cc_addresses = excluded.cc_addresses,
			bcc_addresses = excluded.bcc_addresses,
			text_body = excluded.text_body,
			html_body = excluded.html_body,
			read = excluded.read,
			date = excluded.date,
			message_id = excluded.message_id,
			in_reply_to = excluded.in_reply_to,
			"references" = excluded."references"
		RETURNING id`,
		m.AccountID, m.RemoteID, m.Subject, m.FromName, m.FromAddress,
		m.To, m.Cc, m.Bcc,
		m.TextBody, m.HTMLBody, boolToInt(m.Read), m.Date.UTC(),
		m.MessageID, m.InReplyTo, m.References, m.CreatedAt,
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("upserting message %s for account %d: %w", m.RemoteID, m.AccountID, err)
	}

	for _, folderID := range folderIDs {
		_, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO message_folders (message_id, folder_id) VALUES (?, ?)",
			m.ID, folderID,
		)
		if err != nil {
			return fmt.Errorf("adding message %d to folder %d: %w", m.ID, folderID, err)
		}
	}

	return tx.Commit()
}

// GetMessage retrieves a single message by its local id, with folder
// memberships populated.
func (s *Store) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	var m models.Message
	err := s.db.GetContext(ctx, &m, "SELECT * FROM messages WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting message %d: %w", id, err)
	}

	if err := s.db.SelectContext(ctx, &m.Folders,
		"SELECT folder_id FROM message_folders WHERE message_id = ? ORDER BY folder_id", id,
	); err != nil {
		return nil, fmt.Errorf("getting folder memberships for message %d: %w", id, err)
	}

	return &m, nil
}

// MessageByRemoteID resolves a remote message id to its local row.
func (s *Store) MessageByRemoteID(ctx context.Context, accountID int64, remoteID string) (*models.Message, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM messages WHERE account_id = ? AND remote_id = ?",
		accountID, remoteID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving remote message %s for account %d: %w", remoteID, accountID, err)
	}
	return s.GetMessage(ctx, id)
}

// MessageByHeaderID resolves a message by its Message-ID header. A mirrored
// send is filed under that header until the stored copy reports its own
// remote id, so sync uses this lookup to converge the two.
func (s *Store) MessageByHeaderID(ctx context.Context, accountID int64, messageID string) (*models.Message, error) {
	var id int64
	err := s.db.GetContext(ctx, &id,
		"SELECT id FROM messages WHERE account_id = ? AND message_id = ? LIMIT 1",
		accountID, messageID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolving message header %s for account %d: %w", messageID, accountID, err)
	}
	return s.GetMessage(ctx, id)
}

// SetRemoteID re-keys a message to a new remote id.
func (s *Store) SetRemoteID(ctx context.Context, id int64, remoteID string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET remote_id = ? WHERE id = ?", remoteID, id)
	if err != nil {
		return fmt.Errorf("re-keying message %d to %s: %w", id, remoteID, err)
	}
	return requireRow(res, id)
}

// ListMessages retrieves one page of a folder's messages, newest first.
func (s *Store) ListMessages(ctx context.Context, folderID int64, page, pageSize int) (*models.PaginatedMessages, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 50
	}

	var total int
	err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM message_folders WHERE folder_id = ?", folderID)
	if err != nil {
		return nil, fmt.Errorf("counting messages in folder %d: %w", folderID, err)
	}

	var messages []models.Message
	err = s.db.SelectContext(ctx, &messages, `
		SELECT m.* FROM messages m
		JOIN message_folders mf ON mf.message_id = m.id
		WHERE mf.folder_id = ?
		ORDER BY m.date DESC, m.id DESC
		LIMIT ? OFFSET ?`,
		folderID, pageSize, (page-1)*pageSize,
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages in folder %d: %w", folderID, err)
	}

	return models.NewPaginatedMessages(messages, page, pageSize, total), nil
}

// SetRead updates the local read flag of a message.
func (s *Store) SetRead(ctx context.Context, messageID int64, read bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE messages SET read = ? WHERE id = ?", boolToInt(read), messageID)
	if err != nil {
		return fmt.Errorf("setting read flag on message %d: %w", messageID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("message %d: %w", messageID, ErrNotFound)
	}
	return nil
}

// AddAssociations records CRM links for a message. Duplicates are ignored so
// repeated confirmation paths stay idempotent.
func (s *Store) AddAssociations(ctx context.Context, messageID int64, assocs []models.Association) error {
	if len(assocs) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, a := range assocs {
		_, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO associations (message_id, resource_type, resource_id)
			VALUES (?, ?, ?)`,
			messageID, string(a.ResourceType), a.ResourceID,
		)
		if err != nil {
			return fmt.Errorf("adding association %s/%d to message %d: %w",
				a.ResourceType, a.ResourceID, messageID, err)
		}
	}

	return tx.Commit()
}

// Associations retrieves the CRM links recorded for a message.
func (s *Store) Associations(ctx context.Context, messageID int64) ([]models.Association, error) {
	var assocs []models.Association
	err := s.db.SelectContext(ctx, &assocs,
		"SELECT * FROM associations WHERE message_id = ? ORDER BY id", messageID)
	if err != nil {
		return nil, fmt.Errorf("listing associations for message %d: %w", messageID, err)
	}
	return assocs, nil
}

// HasAssociations reports whether any CRM link points at the message.
func (s *Store) HasAssociations(ctx context.Context, messageID int64) (bool, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM associations WHERE message_id = ?", messageID)
	if err != nil {
		return false, fmt.Errorf("counting associations for message %d: %w", messageID, err)
	}
	return count > 0, nil
}

// AddAttachment records a stored attachment for a message.
func (s *Store) AddAttachment(ctx context.Context, att *models.Attachment) error {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (message_id, filename, content_type, size, path)
		VALUES (?, ?, ?, ?, ?)`,
		att.MessageID, att.Filename, att.ContentType, att.Size, att.Path,
	)
	if err != nil {
		return fmt.Errorf("adding attachment %s to message %d: %w", att.Filename, att.MessageID, err)
	}
	att.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading attachment id: %w", err)
	}
	return nil
}

// Attachments retrieves the attachment records of a message.
func (s *Store) Attachments(ctx context.Context, messageID int64) ([]models.Attachment, error) {
	var atts []models.Attachment
	err := s.db.SelectContext(ctx, &atts,
		"SELECT * FROM attachments WHERE message_id = ? ORDER BY id", messageID)
	if err != nil {
		return nil, fmt.Errorf("listing attachments for message %d: %w", messageID, err)
	}
	return atts, nil
}

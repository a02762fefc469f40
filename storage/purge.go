package storage

import (
	"context"
	"fmt"

	"mailbridge/models"
)

// purgeBatchSize bounds how many messages one purge iteration touches, so a
// large mailbox never holds a single long transaction.
const purgeBatchSize = 200

// PurgeAccount removes an account and everything hanging off it: CRM
// associations first, then attachment files and rows, then messages,
// folders, and finally the account itself. Dependent data is always gone
// before its parent so an interrupted purge can be re-run.
func (s *Store) PurgeAccount(ctx context.Context, accountID int64, media *MediaStore) error {
	for {
		var ids []int64
		err := s.db.SelectContext(ctx, &ids,
			"SELECT id FROM messages WHERE account_id = ? LIMIT ?", accountID, purgeBatchSize)
		if err != nil {
			return fmt.Errorf("listing messages to purge for account %d: %w", accountID, err)
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if err := s.purgeMessageRow(ctx, id, media); err != nil {
				return err
			}
		}
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM folders WHERE account_id = ?", accountID); err != nil {
		return fmt.Errorf("deleting folders for account %d: %w", accountID, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM accounts WHERE id = ?", accountID); err != nil {
		return fmt.Errorf("deleting account %d: %w", accountID, err)
	}
	return nil
}

// PurgeFolder removes a folder and its message memberships. Messages still
// reachable through another folder keep their rows; only messages whose last
// membership this was are purged with their associations and media.
func (s *Store) PurgeFolder(ctx context.Context, folderID int64, media *MediaStore) error {
	for {
		// Messages whose only membership is the folder being purged.
		var ids []int64
		err := s.db.SelectContext(ctx, &ids, `
			SELECT mf.message_id FROM message_folders mf
			WHERE mf.folder_id = ?
			AND NOT EXISTS (
				SELECT 1 FROM message_folders other
				WHERE other.message_id = mf.message_id AND other.folder_id != ?
			)
			LIMIT ?`,
			folderID, folderID, purgeBatchSize,
		)
		if err != nil {
			return fmt.Errorf("listing messages to purge for folder %d: %w", folderID, err)
		}
		if len(ids) == 0 {
			break
		}
		for _, id := range ids {
			if err := s.purgeMessageRow(ctx, id, media); err != nil {
				return err
			}
		}
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM message_folders WHERE folder_id = ?", folderID); err != nil {
		return fmt.Errorf("deleting memberships for folder %d: %w", folderID, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM folders WHERE id = ?", folderID); err != nil {
		return fmt.Errorf("deleting folder %d: %w", folderID, err)
	}
	return nil
}

// PurgeMessage removes a single message with its associations, attachments
// and memberships.
func (s *Store) PurgeMessage(ctx context.Context, messageID int64, media *MediaStore) error {
	return s.purgeMessageRow(ctx, messageID, media)
}

func (s *Store) purgeMessageRow(ctx context.Context, messageID int64, media *MediaStore) error {
	linked, err := s.HasAssociations(ctx, messageID)
	if err != nil {
		return err
	}
	if linked {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM associations WHERE message_id = ?", messageID); err != nil {
			return fmt.Errorf("deleting associations for message %d: %w", messageID, err)
		}
	}

	var atts []models.Attachment
	err = s.db.SelectContext(ctx, &atts,
		"SELECT * FROM attachments WHERE message_id = ?", messageID)
	if err != nil {
		return fmt.Errorf("listing attachments to purge for message %d: %w", messageID, err)
	}
	for _, att := range atts {
		if media != nil {
			if err := media.Remove(att.Path); err != nil {
				return err
			}
		}
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM attachments WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("deleting attachment rows for message %d: %w", messageID, err)
	}

	if _, err := s.db.ExecContext(ctx, "DELETE FROM message_folders WHERE message_id = ?", messageID); err != nil {
		return fmt.Errorf("deleting memberships for message %d: %w", messageID, err)
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE id = ?", messageID); err != nil {
		return fmt.Errorf("deleting message %d: %w", messageID, err)
	}
	return nil
}

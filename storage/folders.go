package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"mailbridge/models"
)

// UpsertFolder inserts the folder or, when its remote identifier is already
// known for the account, refreshes its display attributes in place. Identity
// is (account, identifier kind, identifier value), so a rename keeps the row
// and its message memberships. The locally controlled syncable flag survives
// the refresh. The folder's id is filled in either way.
func (s *Store) UpsertFolder(ctx context.Context, f *models.Folder) error {
	err := s.db.QueryRowxContext(ctx, `
		INSERT INTO folders (
			account_id, identifier_kind, identifier_value,
			name, type, syncable, selectable, parent_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, identifier_kind, identifier_value) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			selectable = excluded.selectable,
			parent_id = excluded.parent_id
		RETURNING id, syncable`,
		f.AccountID, string(f.IdentifierKind), f.IdentifierVal,
		f.Name, string(f.Type), boolToInt(f.Syncable), boolToInt(f.Selectable), f.ParentID,
	).Scan(&f.ID, &f.Syncable)
	if err != nil {
		return fmt.Errorf("upserting folder %s for account %d: %w", f.Name, f.AccountID, err)
	}
	return nil
}

// FolderByID retrieves a single folder by its local id.
func (s *Store) FolderByID(ctx context.Context, id int64) (*models.Folder, error) {
	var f models.Folder
	err := s.db.GetContext(ctx, &f, "SELECT * FROM folders WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting folder %d: %w", id, err)
	}
	return &f, nil
}

// FolderByIdentifier resolves a remote folder identifier to its local row.
func (s *Store) FolderByIdentifier(ctx context.Context, accountID int64, ident models.FolderIdentifier) (*models.Folder, error) {
	var f models.Folder
	err := s.db.GetContext(ctx, &f, `
		SELECT * FROM folders
		WHERE account_id = ? AND identifier_kind = ? AND identifier_value = ?`,
		accountID, string(ident.Kind), ident.Value,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting folder %s for account %d: %w", ident, accountID, err)
	}
	return &f, nil
}

// ListFolders retrieves an account's folders in display order: inbox, sent,
// trash, then everything else by name. Unread counts are aggregated from the
// membership table at read time.
func (s *Store) ListFolders(ctx context.Context, accountID int64) ([]models.Folder, error) {
	var folders []models.Folder
	err := s.db.SelectContext(ctx, &folders, `
		SELECT * FROM folders
		WHERE account_id = ?
		ORDER BY CASE type
			WHEN 'inbox' THEN 0
			WHEN 'sent' THEN 1
			WHEN 'trash' THEN 2
			ELSE 3
		END, name`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing folders for account %d: %w", accountID, err)
	}

	counts, err := s.unreadCounts(ctx, accountID)
	if err != nil {
		return nil, err
	}
	for i := range folders {
		folders[i].UnreadCount = counts[folders[i].ID]
	}

	return folders, nil
}

// unreadCounts aggregates unread message counts per folder for one account.
func (s *Store) unreadCounts(ctx context.Context, accountID int64) (map[int64]int, error) {
	rows, err := s.db.QueryxContext(ctx, `
		SELECT mf.folder_id, COUNT(*) AS unread
		FROM message_folders mf
		JOIN messages m ON m.id = mf.message_id
		WHERE m.account_id = ? AND m.read = 0
		GROUP BY mf.folder_id`,
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("aggregating unread counts for account %d: %w", accountID, err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var folderID int64
		var unread int
		if err := rows.Scan(&folderID, &unread); err != nil {
			return nil, fmt.Errorf("scanning unread count row: %w", err)
		}
		counts[folderID] = unread
	}
	return counts, rows.Err()
}

// SyncableFolders retrieves the folders a sync pass should pull messages for.
func (s *Store) SyncableFolders(ctx context.Context, accountID int64) ([]models.Folder, error) {
	var folders []models.Folder
	err := s.db.SelectContext(ctx, &folders,
		"SELECT * FROM folders WHERE account_id = ? AND syncable = 1 AND selectable = 1 ORDER BY id",
		accountID,
	)
	if err != nil {
		return nil, fmt.Errorf("listing syncable folders for account %d: %w", accountID, err)
	}
	return folders, nil
}

// SetFolderSyncable toggles whether a folder participates in sync passes.
func (s *Store) SetFolderSyncable(ctx context.Context, folderID int64, syncable bool) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE folders SET syncable = ? WHERE id = ?",
		boolToInt(syncable), folderID,
	)
	if err != nil {
		return fmt.Errorf("setting syncable on folder %d: %w", folderID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("folder %d: %w", folderID, ErrNotFound)
	}
	return nil
}

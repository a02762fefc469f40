package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"mailbridge/models"
)

// CreateAccount inserts a new account row and fills in its generated id and
// timestamps.
func (s *Store) CreateAccount(ctx context.Context, a *models.Account) error {
	if a.SyncState == "" {
		a.SyncState = models.SyncEnabled
	}
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO accounts (
			email, connection_type, credentials,
			sync_state, sync_state_comment, stop_resolved,
			owner_user_id, from_template, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Email, string(a.ConnectionType), a.Credentials,
		string(a.SyncState), a.SyncStateComment, boolToInt(a.StopResolved),
		a.OwnerUserID, a.FromTemplate, a.CreatedAt, a.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("account %s: %w", a.Email, ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting account %s: %w", a.Email, err)
	}

	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading account id: %w", err)
	}
	return nil
}

// GetAccount retrieves a single account by id.
func (s *Store) GetAccount(ctx context.Context, id int64) (*models.Account, error) {
	var a models.Account
	err := s.db.GetContext(ctx, &a, "SELECT * FROM accounts WHERE id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting account %d: %w", id, err)
	}
	return &a, nil
}

// ListAccounts retrieves all accounts ordered by email.
func (s *Store) ListAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.SelectContext(ctx, &accounts, "SELECT * FROM accounts ORDER BY email")
	if err != nil {
		return nil, fmt.Errorf("listing accounts: %w", err)
	}
	return accounts, nil
}

// SyncableAccounts retrieves the accounts the scheduler should pick up.
func (s *Store) SyncableAccounts(ctx context.Context) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.SelectContext(ctx, &accounts,
		"SELECT * FROM accounts WHERE sync_state = ? ORDER BY id", string(models.SyncEnabled))
	if err != nil {
		return nil, fmt.Errorf("listing syncable accounts: %w", err)
	}
	return accounts, nil
}

// StoppedAccounts retrieves accounts stopped since before the cutoff, for
// the optional auto-retry policy.
func (s *Store) StoppedAccounts(ctx context.Context, before time.Time) ([]models.Account, error) {
	var accounts []models.Account
	err := s.db.SelectContext(ctx, &accounts,
		"SELECT * FROM accounts WHERE sync_state = ? AND updated_at <= ? ORDER BY id",
		string(models.SyncStopped), before.UTC())
	if err != nil {
		return nil, fmt.Errorf("listing stopped accounts: %w", err)
	}
	return accounts, nil
}

// UpdateSyncState writes a state transition. The comment is replaced on every
// transition; entering STOPPED clears the resolved flag so the account stays
// stopped until the cause is acknowledged.
func (s *Store) UpdateSyncState(ctx context.Context, id int64, state models.SyncState, comment string) error {
	resolved := 0
	if state != models.SyncStopped {
		resolved = 1
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET sync_state = ?, sync_state_comment = ?, stop_resolved = ?, updated_at = ?
		WHERE id = ?`,
		string(state), comment, resolved, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating sync state for account %d: %w", id, err)
	}
	return requireRow(res, id)
}

// MarkStopResolved records that the cause behind a STOPPED state has been
// addressed, without changing the state itself.
func (s *Store) MarkStopResolved(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET stop_resolved = 1, updated_at = ? WHERE id = ?",
		time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("marking stop resolved for account %d: %w", id, err)
	}
	return requireRow(res, id)
}

// TouchLastSync records the completion time of a successful sync pass.
func (s *Store) TouchLastSync(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET last_sync_at = ?, updated_at = ? WHERE id = ?",
		at.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("touching last sync for account %d: %w", id, err)
	}
	return requireRow(res, id)
}

// SetSpecialFolders designates the account's sent and trash folders. Either
// id may be nil when the remote store reported no such folder.
func (s *Store) SetSpecialFolders(ctx context.Context, id int64, sentID, trashID *int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET sent_folder_id = ?, trash_folder_id = ?, updated_at = ? WHERE id = ?",
		sentID, trashID, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("setting special folders for account %d: %w", id, err)
	}
	return requireRow(res, id)
}

// UpdateCredentials replaces the stored credentials for an account.
func (s *Store) UpdateCredentials(ctx context.Context, id int64, credentials string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE accounts SET credentials = ?, updated_at = ? WHERE id = ?",
		credentials, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("updating credentials for account %d: %w", id, err)
	}
	return requireRow(res, id)
}

// requireRow converts a zero-row update into ErrNotFound.
func requireRow(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return nil
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

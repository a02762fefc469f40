package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// SaveTrackingToken binds a tracking token to a sent message.
func (s *Store) SaveTrackingToken(ctx context.Context, token string, messageID int64) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO tracking_tokens (token, message_id) VALUES (?, ?)",
		token, messageID)
	if err != nil {
		return fmt.Errorf("saving tracking token for message %d: %w", messageID, err)
	}
	return nil
}

// RecordOpen counts one open for a token.
func (s *Store) RecordOpen(ctx context.Context, token string) error {
	return s.recordHit(ctx, token, "opens")
}

// RecordClick counts one click for a token.
func (s *Store) RecordClick(ctx context.Context, token string) error {
	return s.recordHit(ctx, token, "clicks")
}

func (s *Store) recordHit(ctx context.Context, token, column string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE tracking_tokens SET "+column+" = "+column+" + 1 WHERE token = ?", token)
	if err != nil {
		return fmt.Errorf("recording tracking hit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// TrackingStats reports open and click counts for a message.
func (s *Store) TrackingStats(ctx context.Context, messageID int64) (opens, clicks int, err error) {
	err = s.db.QueryRowxContext(ctx,
		"SELECT COALESCE(SUM(opens), 0), COALESCE(SUM(clicks), 0) FROM tracking_tokens WHERE message_id = ?",
		messageID,
	).Scan(&opens, &clicks)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("reading tracking stats for message %d: %w", messageID, err)
	}
	return opens, clicks, nil
}

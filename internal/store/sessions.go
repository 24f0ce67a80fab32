package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// LoadSession returns the stored credential for handle.
// Returns found=false when no credential has been saved; callers fall back
// to a full login.
func (s *Store) LoadSession(ctx context.Context, handle string) (credential string, found bool, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT credential FROM sessions WHERE handle = ?`, handle).Scan(&credential)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load session %s: %w", handle, err)
	}
	return credential, true, nil
}

// SaveSession creates or replaces the stored credential for handle.
func (s *Store) SaveSession(ctx context.Context, handle, credential string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (handle, credential, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT(handle) DO UPDATE SET
			credential = excluded.credential,
			updated_at = excluded.updated_at
	`, handle, credential, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("save session %s: %w", handle, err)
	}
	return nil
}

// DeleteSession forgets the stored credential for handle.
func (s *Store) DeleteSession(ctx context.Context, handle string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE handle = ?`, handle); err != nil {
		return fmt.Errorf("delete session %s: %w", handle, err)
	}
	return nil
}

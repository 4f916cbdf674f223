package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"chat-gateway/internal/domain"
)

// CheckAndConsume reads and decrements the counter inside one immediate
// transaction, so concurrent callers are serialized by the write lock.
func (s *Store) CheckAndConsume(ctx context.Context, userID string) (domain.QuotaState, error) {
	now := s.now().Unix()
	var state domain.QuotaState
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var remaining, expiresAt int64
		err := tx.QueryRowContext(ctx,
			`SELECT remaining, expires_at FROM quota WHERE user_id = ?`, userID,
		).Scan(&remaining, &expiresAt)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			state = domain.QuotaNotExist
			return nil
		case err != nil:
			return err
		case expiresAt <= now:
			state = domain.QuotaNotExist
			return nil
		case remaining-1 < 0:
			state = domain.QuotaExceeded
			return nil
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE quota SET remaining = remaining - 1 WHERE user_id = ?`, userID); err != nil {
			return err
		}
		state = domain.QuotaOK
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite: CheckAndConsume: %w", err)
	}
	return state, nil
}

// Initialize starts a fresh daily window. A live counter is never overwritten;
// that case reports domain.ErrQuotaAlreadyInitialized.
func (s *Store) Initialize(ctx context.Context, userID string, allowance int) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("sqlite: Initialize: user id is required")
	}
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO quota (user_id, remaining, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			remaining = excluded.remaining,
			expires_at = excluded.expires_at
		WHERE quota.expires_at <= ?`,
		userID, allowance, now.Add(domain.QuotaWindow).Unix(), now.Unix())
	if err != nil {
		return fmt.Errorf("sqlite: Initialize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: Initialize: %w", err)
	}
	if n == 0 {
		return domain.ErrQuotaAlreadyInitialized
	}
	return nil
}

// Remaining reports the live allowance, or found=false when none exists.
func (s *Store) Remaining(ctx context.Context, userID string) (int, time.Time, bool, error) {
	var remaining, expiresAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT remaining, expires_at FROM quota WHERE user_id = ?`, userID,
	).Scan(&remaining, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("sqlite: Remaining: %w", err)
	}
	if expiresAt <= s.now().Unix() {
		return 0, time.Time{}, false, nil
	}
	return int(remaining), time.Unix(expiresAt, 0).UTC(), true, nil
}

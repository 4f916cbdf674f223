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

// GetOrCreate returns the user record, creating it with the default daily
// quota when absent.
func (s *Store) GetOrCreate(ctx context.Context, email string) (domain.User, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return domain.User{}, errors.New("sqlite: GetOrCreate: email is required")
	}
	fresh := domain.NewUser(email, s.defaultQuota, s.now())

	var (
		u       domain.User
		created int64
	)
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO users (email, daily_quota, created_at) VALUES (?, ?, ?)`,
			fresh.Email, fresh.DailyQuota, fresh.CreatedAt.Unix()); err != nil {
			return err
		}
		return tx.QueryRowContext(ctx,
			`SELECT email, daily_quota, created_at FROM users WHERE email = ?`, email,
		).Scan(&u.Email, &u.DailyQuota, &created)
	})
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: GetOrCreate: %w", err)
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

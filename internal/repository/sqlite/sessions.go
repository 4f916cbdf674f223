package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"chat-gateway/internal/domain"
)

// FindSession reads a session by id. Unknown ids report found=false.
func (s *Store) FindSession(ctx context.Context, sessionID string) (domain.Session, bool, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.Session{}, false, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT session_id, partition_key, turns, promo FROM sessions WHERE session_id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("sqlite: FindSession: %w", err)
	}
	return sess, true, nil
}

// SaveSession replaces the full session record.
func (s *Store) SaveSession(ctx context.Context, sess domain.Session) error {
	if strings.TrimSpace(sess.SessionID) == "" || strings.TrimSpace(sess.PartitionKey) == "" {
		return errors.New("sqlite: SaveSession: session id and partition key are required")
	}
	turns := sess.Turns
	if turns == nil {
		turns = []domain.Turn{}
	}
	raw, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("sqlite: SaveSession encode turns: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (session_id, partition_key, turns, promo, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			partition_key = excluded.partition_key,
			turns = excluded.turns,
			promo = excluded.promo,
			updated_at = excluded.updated_at`,
		sess.SessionID, sess.PartitionKey, string(raw), sess.PendingPrompt, s.now().Unix())
	if err != nil {
		return fmt.Errorf("sqlite: SaveSession: %w", err)
	}
	return nil
}

// ListSessions returns up to limit sessions in a date bucket, most recently
// updated first.
func (s *Store) ListSessions(ctx context.Context, partitionKey string, limit int) ([]domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT session_id, partition_key, turns, promo FROM sessions
		WHERE partition_key = ?
		ORDER BY updated_at DESC, session_id
		LIMIT ?`, partitionKey, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite: ListSessions: %w", err)
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: ListSessions scan: %w", err)
		}
		out = append(out, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: ListSessions: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (domain.Session, error) {
	var (
		sess domain.Session
		raw  string
	)
	if err := row.Scan(&sess.SessionID, &sess.PartitionKey, &raw, &sess.PendingPrompt); err != nil {
		return domain.Session{}, err
	}
	if err := json.Unmarshal([]byte(raw), &sess.Turns); err != nil {
		return domain.Session{}, fmt.Errorf("decode turns: %w", err)
	}
	if sess.Turns == nil {
		sess.Turns = []domain.Turn{}
	}
	return sess, nil
}

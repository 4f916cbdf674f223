// Package cache holds the Redis-backed quota ledger.
package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"chat-gateway/internal/domain"
)

const keyPrefix = "users.quote."

// consumeScript reads and decrements the counter atomically on the server.
// It replies with the wire form parsed by domain.ParseQuotaState.
var consumeScript = redis.NewScript(`
local current = redis.call("GET", KEYS[1])
if not current then
	return "NOTEXIST"
end
if tonumber(current) - 1 < 0 then
	return "EXCEEDED"
end
redis.call("DECR", KEYS[1])
return "OK"
`)

// redisAPI is the subset of redis.UniversalClient used by Ledger.
type redisAPI interface {
	redis.Scripter
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	TTL(ctx context.Context, key string) *redis.DurationCmd
}

// Ledger is a QuotaLedger whose counters expire with the Redis key.
type Ledger struct {
	rdb redisAPI
	now func() time.Time
}

// NewLedger wraps a connected Redis client.
func NewLedger(rdb redisAPI) (*Ledger, error) {
	if rdb == nil {
		return nil, errors.New("cache: redis client must not be nil")
	}
	return &Ledger{rdb: rdb, now: time.Now}, nil
}

func quotaKey(userID string) string {
	return keyPrefix + userID
}

// CheckAndConsume runs the consume script against the user's counter.
func (l *Ledger) CheckAndConsume(ctx context.Context, userID string) (domain.QuotaState, error) {
	reply, err := consumeScript.Run(ctx, l.rdb, []string{quotaKey(userID)}).Text()
	if err != nil {
		return 0, fmt.Errorf("cache: CheckAndConsume: %w", err)
	}
	state, err := domain.ParseQuotaState(reply)
	if err != nil {
		return 0, fmt.Errorf("cache: CheckAndConsume: %w", err)
	}
	return state, nil
}

// Initialize sets the allowance with a one-day expiry unless a live counter
// already exists.
func (l *Ledger) Initialize(ctx context.Context, userID string, allowance int) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("cache: Initialize: user id is required")
	}
	ok, err := l.rdb.SetNX(ctx, quotaKey(userID), allowance, domain.QuotaWindow).Result()
	if err != nil {
		return fmt.Errorf("cache: Initialize: %w", err)
	}
	if !ok {
		return domain.ErrQuotaAlreadyInitialized
	}
	return nil
}

// Remaining reports the live allowance and when it expires.
func (l *Ledger) Remaining(ctx context.Context, userID string) (int, time.Time, bool, error) {
	n, err := l.rdb.Get(ctx, quotaKey(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, time.Time{}, false, nil
	}
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("cache: Remaining: %w", err)
	}
	ttl, err := l.rdb.TTL(ctx, quotaKey(userID)).Result()
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("cache: Remaining ttl: %w", err)
	}
	var expires time.Time
	if ttl > 0 {
		expires = l.now().Add(ttl).UTC()
	}
	return n, expires, true, nil
}

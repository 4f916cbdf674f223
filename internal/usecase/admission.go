package usecase

import (
	"context"
	"errors"
	"fmt"

	"chat-gateway/internal/domain"
	"chat-gateway/internal/logging"
)

// admit consumes one unit of the caller's daily allowance. A user without a
// live allowance is created if needed and initialized before the unit is
// consumed, so every admitted request decrements the counter exactly once.
func (s *ChatService) admit(ctx context.Context, userID string) error {
	state, err := s.quota.CheckAndConsume(ctx, userID)
	if err != nil {
		return newError(ErrorInternal, "quota_store_error", err)
	}

	if state == domain.QuotaNotExist {
		if err := s.initializeQuota(ctx, userID); err != nil {
			return err
		}
		state, err = s.quota.CheckAndConsume(ctx, userID)
		if err != nil {
			return newError(ErrorInternal, "quota_store_error", err)
		}
		if state == domain.QuotaNotExist {
			return newError(ErrorInternal, "quota_state_invalid",
				fmt.Errorf("usecase: quota for %q missing right after initialize", userID))
		}
	}

	switch state {
	case domain.QuotaOK:
		return nil
	case domain.QuotaExceeded:
		logging.FromContext(ctx).Info("quota exceeded", "user", userID)
		return newError(ErrorQuotaExceeded, "daily_quota_exceeded", nil)
	default:
		return newError(ErrorInternal, "quota_state_invalid",
			fmt.Errorf("usecase: unexpected quota state %s", state))
	}
}

func (s *ChatService) initializeQuota(ctx context.Context, userID string) error {
	user, err := s.users.GetOrCreate(ctx, userID)
	if err != nil {
		return newError(ErrorInternal, "user_store_error", err)
	}
	err = s.quota.Initialize(ctx, userID, user.DailyQuota)
	switch {
	case err == nil:
		logging.FromContext(ctx).Info("quota initialized", "user", userID, "allowance", user.DailyQuota)
	case errors.Is(err, domain.ErrQuotaAlreadyInitialized):
		// A concurrent request initialized it first; its counter stands.
	default:
		return newError(ErrorInternal, "quota_init_error", err)
	}
	return nil
}

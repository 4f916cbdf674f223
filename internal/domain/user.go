package domain

import "time"

// DefaultDailyQuota is the allowance given to newly created users.
const DefaultDailyQuota = 10

// User is the durable record for a caller identity.
type User struct {
	Email      string
	DailyQuota int
	CreatedAt  time.Time
}

// NewUser builds a record for a previously unseen identity.
func NewUser(email string, dailyQuota int, now time.Time) User {
	if dailyQuota <= 0 {
		dailyQuota = DefaultDailyQuota
	}
	return User{Email: email, DailyQuota: dailyQuota, CreatedAt: now.UTC()}
}

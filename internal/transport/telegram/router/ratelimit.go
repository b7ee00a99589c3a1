package router

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL   = 10 * time.Minute
	limiterSweepSize = 1024
)

// UserLimiter is a per-user token bucket. A nil *UserLimiter allows everything.
type UserLimiter struct {
	mu    sync.Mutex
	every rate.Limit
	burst int
	users map[int64]*userBucket
	now   func() time.Time
}

type userBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewUserLimiter allows perMin requests per minute per user, with a burst of
// up to 5. perMin <= 0 returns nil.
func NewUserLimiter(perMin int) *UserLimiter {
	if perMin <= 0 {
		return nil
	}
	burst := perMin
	if burst > 5 {
		burst = 5
	}
	return &UserLimiter{
		every: rate.Every(time.Minute / time.Duration(perMin)),
		burst: burst,
		users: map[int64]*userBucket{},
		now:   time.Now,
	}
}

func (u *UserLimiter) Allow(userID int64) bool {
	if u == nil {
		return true
	}
	u.mu.Lock()
	defer u.mu.Unlock()

	now := u.now()
	b, ok := u.users[userID]
	if !ok {
		if len(u.users) >= limiterSweepSize {
			u.sweepLocked(now)
		}
		b = &userBucket{lim: rate.NewLimiter(u.every, u.burst)}
		u.users[userID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (u *UserLimiter) sweepLocked(now time.Time) {
	for id, b := range u.users {
		if now.Sub(b.seen) > limiterIdleTTL {
			delete(u.users, id)
		}
	}
}

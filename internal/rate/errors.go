package rate

import (
	"errors"
	"time"
)

var (
	ErrRateLimited      = errors.New("rate limited")
	ErrRedisUnavailable = errors.New("redis unavailable")
)

// LimitError reports an exhausted budget. It matches ErrRateLimited under
// errors.Is.
type LimitError struct {
	Scope      string
	RetryAfter time.Duration
}

func (e *LimitError) Error() string {
	return "rate limited: " + e.Scope
}

func (e *LimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfter returns the time left in the window that rejected err.
func RetryAfter(err error) (time.Duration, bool) {
	var le *LimitError
	if errors.As(err, &le) && le.RetryAfter > 0 {
		return le.RetryAfter, true
	}
	return 0, false
}

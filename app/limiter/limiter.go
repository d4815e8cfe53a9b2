package limiter

import (
	"context"
	"fmt"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/toonfeed/toonfeed/app/database"
)

// Limiter enforces a sliding-window request limit per client IP and endpoint,
// backed by the rate_limits table so the decision survives restarts.
type Limiter struct {
	repo   database.RateLimitRepository
	limit  int
	window time.Duration
}

// ExceededError is returned when a client has used up its window
type ExceededError struct {
	Limit      int
	Window     time.Duration
	RetryAfter time.Duration
}

func (e *ExceededError) Error() string {
	return fmt.Sprintf("rate limit of %d requests per %s exceeded, retry after %s",
		e.Limit, e.Window, e.RetryAfter)
}

// RetryAfterSeconds returns the wait rounded up to whole seconds, never
// below one
func (e *ExceededError) RetryAfterSeconds() int {
	seconds := int(math.Ceil(e.RetryAfter.Seconds()))
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// NewLimiter creates a limiter allowing limit requests per window
func NewLimiter(repo database.RateLimitRepository, limit int, window time.Duration) *Limiter {
	return &Limiter{
		repo:   repo,
		limit:  limit,
		window: window,
	}
}

// Allow reserves one request slot for the client. When the window is full it
// returns an ExceededError whose RetryAfter is when the oldest request in the
// window ages out.
func (l *Limiter) Allow(ctx context.Context, ipAddress, endpoint string) error {
	now := time.Now().UTC()
	windowStart := now.Add(-l.window)

	decision, err := l.repo.ReserveSlot(ctx, ipAddress, endpoint, windowStart, l.limit)
	if err != nil {
		return fmt.Errorf("failed to reserve rate limit slot: %w", err)
	}

	if decision.Allowed {
		return nil
	}

	retryAfter := l.window
	if decision.OldestInWindow != nil {
		retryAfter = decision.OldestInWindow.Add(l.window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	return &ExceededError{Limit: l.limit, Window: l.window, RetryAfter: retryAfter}
}

// ClientIP extracts the originating client address. The first hop of
// X-Forwarded-For wins when a proxy set it, otherwise the connection's remote
// address is used.
func ClientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first := strings.TrimSpace(strings.Split(forwarded, ",")[0])
		if first != "" {
			return first
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

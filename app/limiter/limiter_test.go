package limiter

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/toonfeed/toonfeed/app/database"
)

// fakeRateLimitRepo counts reservations in memory
type fakeRateLimitRepo struct {
	limit     int
	requests  []time.Time
	lastStart time.Time
}

func (f *fakeRateLimitRepo) ReserveSlot(ctx context.Context, ipAddress, endpoint string, windowStart time.Time, limit int) (database.RateLimitDecision, error) {
	f.lastStart = windowStart

	var inWindow []time.Time
	for _, ts := range f.requests {
		if !ts.Before(windowStart) {
			inWindow = append(inWindow, ts)
		}
	}

	if len(inWindow) >= limit {
		oldest := inWindow[0]
		return database.RateLimitDecision{Allowed: false, Count: len(inWindow), OldestInWindow: &oldest}, nil
	}

	f.requests = append(f.requests, time.Now().UTC())
	return database.RateLimitDecision{Allowed: true, Count: len(inWindow) + 1}, nil
}

func (f *fakeRateLimitRepo) SweepOlderThan(ctx context.Context, maxAge time.Duration) (int64, error) {
	return 0, nil
}

func TestAllowUpToLimit(t *testing.T) {
	repo := &fakeRateLimitRepo{}
	lim := NewLimiter(repo, 3, 5*time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := lim.Allow(ctx, "203.0.113.1", "generate-image"); err != nil {
			t.Fatalf("Expected request %d to be allowed, got %v", i+1, err)
		}
	}

	err := lim.Allow(ctx, "203.0.113.1", "generate-image")
	if err == nil {
		t.Fatal("Expected the fourth request to be denied")
	}

	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("Expected an ExceededError, got %T", err)
	}
	if exceeded.Limit != 3 {
		t.Errorf("Expected limit 3 in error, got %d", exceeded.Limit)
	}
	if exceeded.RetryAfterSeconds() < 1 {
		t.Errorf("Expected a positive retry-after, got %d", exceeded.RetryAfterSeconds())
	}
}

func TestAllowComputesWindowStart(t *testing.T) {
	repo := &fakeRateLimitRepo{}
	lim := NewLimiter(repo, 10, 5*time.Minute)

	before := time.Now().UTC().Add(-5 * time.Minute)
	if err := lim.Allow(context.Background(), "203.0.113.1", "generate-image"); err != nil {
		t.Fatalf("Expected request to be allowed, got %v", err)
	}
	after := time.Now().UTC().Add(-5 * time.Minute)

	if repo.lastStart.Before(before) || repo.lastStart.After(after) {
		t.Errorf("Expected window start five minutes back, got %v", repo.lastStart)
	}
}

func TestRetryAfterReflectsOldestRequest(t *testing.T) {
	oldest := time.Now().UTC().Add(-4 * time.Minute)
	repo := &fakeRateLimitRepo{requests: []time.Time{oldest}}
	lim := NewLimiter(repo, 1, 5*time.Minute)

	err := lim.Allow(context.Background(), "203.0.113.1", "generate-image")
	var exceeded *ExceededError
	if !errors.As(err, &exceeded) {
		t.Fatalf("Expected an ExceededError, got %v", err)
	}

	// The oldest request ages out in about one minute
	if exceeded.RetryAfter < 50*time.Second || exceeded.RetryAfter > 70*time.Second {
		t.Errorf("Expected retry-after near one minute, got %s", exceeded.RetryAfter)
	}
}

func TestClientIPPrefersForwardedHeader(t *testing.T) {
	req, _ := http.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 198.51.100.2")

	if got := ClientIP(req); got != "203.0.113.7" {
		t.Errorf("Expected first forwarded hop, got '%s'", got)
	}
}

func TestClientIPFallsBackToRemoteAddr(t *testing.T) {
	req, _ := http.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.10:1234"

	if got := ClientIP(req); got != "192.0.2.10" {
		t.Errorf("Expected remote address host, got '%s'", got)
	}
}

package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/packtdl/packt-dl/internal/logging"
)

// fakeClock is advanced by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSession(refreshAfter time.Duration, tokens func(n int32) (string, error)) (*Session, *fakeClock, *atomic.Int32) {
	var calls atomic.Int32
	clock := &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
	fetch := func(ctx context.Context, username, password string) (string, error) {
		return tokens(calls.Add(1))
	}
	s := newSession("reader@example.com", "secret", refreshAfter, fetch, logging.NewNopLogger())
	s.now = clock.Now
	return s, clock, &calls
}

func plainTokens(n int32) (string, error) {
	return fmt.Sprintf("opaque-%d", n), nil
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "reader",
		"exp": exp.Unix(),
	}).SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return tok
}

func TestSession_EnsureValidLogsInOnce(t *testing.T) {
	s, _, calls := newTestSession(14*time.Minute, plainTokens)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := s.EnsureValid(ctx); err != nil {
			t.Fatalf("EnsureValid failed: %v", err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 login, got %d", calls.Load())
	}
	if s.Header() != "Bearer opaque-1" {
		t.Errorf("unexpected header %q", s.Header())
	}
}

func TestSession_ProactiveRefreshAfterInterval(t *testing.T) {
	s, clock, calls := newTestSession(14*time.Minute, plainTokens)
	ctx := context.Background()

	if err := s.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	clock.Advance(13 * time.Minute)
	if err := s.EnsureValid(ctx); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("refreshed too early: %d logins", calls.Load())
	}
	if s.Age() != 13*time.Minute {
		t.Errorf("Age() = %v, want 13m", s.Age())
	}

	clock.Advance(time.Minute)
	if err := s.EnsureValid(ctx); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected refresh at 14 minutes, got %d logins", calls.Load())
	}
	if s.Header() != "Bearer opaque-2" {
		t.Errorf("header not replaced: %q", s.Header())
	}
	if s.Age() != 0 {
		t.Errorf("Age() after refresh = %v, want 0", s.Age())
	}
}

func TestSession_ExpiryClaimShortensDeadline(t *testing.T) {
	var tokenExp time.Time
	s, clock, calls := newTestSession(14*time.Minute, nil)
	s.fetch = func(ctx context.Context, u, p string) (string, error) {
		calls.Add(1)
		return signedToken(t, tokenExp), nil
	}
	tokenExp = clock.Now().Add(5 * time.Minute)
	ctx := context.Background()

	if err := s.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !s.ExpiresAt().Equal(tokenExp.Truncate(time.Second)) {
		t.Errorf("ExpiresAt() = %v, want %v", s.ExpiresAt(), tokenExp)
	}

	clock.Advance(3*time.Minute + 30*time.Second)
	if err := s.EnsureValid(ctx); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("refreshed before exp-1m: %d logins", calls.Load())
	}

	clock.Advance(30 * time.Second) // exactly one minute before exp
	if err := s.EnsureValid(ctx); err != nil {
		t.Fatalf("EnsureValid failed: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected refresh one minute before exp, got %d logins", calls.Load())
	}
}

func TestSession_OpaqueTokenHasNoExpiry(t *testing.T) {
	s, _, _ := newTestSession(14*time.Minute, plainTokens)
	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if !s.ExpiresAt().IsZero() {
		t.Errorf("expected zero expiry for opaque token, got %v", s.ExpiresAt())
	}
}

func TestSession_ConcurrentRefreshHappensOnce(t *testing.T) {
	s, _, calls := newTestSession(14*time.Minute, plainTokens)
	ctx := context.Background()
	if err := s.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	_, gen := s.current()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.refreshFrom(ctx, gen); err != nil {
				t.Errorf("refreshFrom failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if calls.Load() != 2 {
		t.Errorf("expected exactly one refresh (2 logins total), got %d", calls.Load())
	}
	if s.Generation() != gen+1 {
		t.Errorf("generation = %d, want %d", s.Generation(), gen+1)
	}
}

func TestSession_RefreshFailureKeepsOldToken(t *testing.T) {
	s, _, _ := newTestSession(14*time.Minute, func(n int32) (string, error) {
		if n > 1 {
			return "", fmt.Errorf("%w: status %d", ErrAuthFailed, http.StatusForbidden)
		}
		return "first", nil
	})
	ctx := context.Background()

	if err := s.Login(ctx); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	err := s.Refresh(ctx)
	if !errors.Is(err, ErrAuthFailed) {
		t.Fatalf("Refresh() error = %v, want ErrAuthFailed", err)
	}
	if s.Header() != "Bearer first" {
		t.Errorf("header changed after failed refresh: %q", s.Header())
	}
}

func TestSession_Apply(t *testing.T) {
	s, _, _ := newTestSession(14*time.Minute, plainTokens)
	req, _ := http.NewRequest(http.MethodGet, "https://services.packtpub.com/", nil)

	s.Apply(req)
	if req.Header.Get("Authorization") != "" {
		t.Error("Apply before login must not set a header")
	}

	if err := s.Login(context.Background()); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	s.Apply(req)
	if got := req.Header.Get("Authorization"); got != "Bearer opaque-1" {
		t.Errorf("Authorization = %q", got)
	}
}

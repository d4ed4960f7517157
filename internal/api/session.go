package api

import (
	"context"
	"fmt"
	nethttp "net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/packtdl/packt-dl/internal/constants"
	"github.com/packtdl/packt-dl/internal/logging"
)

// tokenFetcher exchanges credentials for an access token.
type tokenFetcher func(ctx context.Context, username, password string) (string, error)

// Session holds the bearer token for one account.
//
// All access goes through the mutex. generation increments on every
// successful login so callers that saw a 401 with an old token can tell
// whether someone else already refreshed it.
type Session struct {
	username string
	password string
	fetch    tokenFetcher
	logger   *logging.Logger

	refreshAfter time.Duration
	now          func() time.Time

	mu         sync.Mutex
	header     string
	issuedAt   time.Time
	expiresAt  time.Time // zero when the token has no exp claim
	generation uint64
}

func newSession(username, password string, refreshAfter time.Duration, fetch tokenFetcher, logger *logging.Logger) *Session {
	if refreshAfter <= 0 {
		refreshAfter = constants.TokenRefreshAfter
	}
	return &Session{
		username:     username,
		password:     password,
		fetch:        fetch,
		logger:       logger,
		refreshAfter: refreshAfter,
		now:          time.Now,
	}
}

// Login obtains a fresh token. Failures wrap ErrAuthFailed.
func (s *Session) Login(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginLocked(ctx, "login")
}

// Refresh replaces the current token unconditionally.
func (s *Session) Refresh(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loginLocked(ctx, "refresh")
}

// refreshFrom refreshes only if the token is still the one from generation
// gen. Concurrent callers that saw the same stale token log in once.
func (s *Session) refreshFrom(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.generation != gen {
		return nil
	}
	return s.loginLocked(ctx, "refresh after 401")
}

// EnsureValid logs in again when the token is missing or past its proactive
// refresh point: refreshAfter after issue, or one minute before exp,
// whichever comes first.
func (s *Session) EnsureValid(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.header == "" {
		return s.loginLocked(ctx, "login")
	}
	if s.now().Before(s.deadlineLocked()) {
		return nil
	}
	return s.loginLocked(ctx, "proactive refresh")
}

func (s *Session) deadlineLocked() time.Time {
	deadline := s.issuedAt.Add(s.refreshAfter)
	if !s.expiresAt.IsZero() {
		if byExp := s.expiresAt.Add(-constants.TokenExpiryMargin); byExp.Before(deadline) {
			deadline = byExp
		}
	}
	return deadline
}

func (s *Session) loginLocked(ctx context.Context, reason string) error {
	token, err := s.fetch(ctx, s.username, s.password)
	if err != nil {
		return err
	}

	now := s.now()
	if !s.issuedAt.IsZero() {
		s.logger.Debug().
			Str("reason", reason).
			Dur("lasted", now.Sub(s.issuedAt).Round(time.Second)).
			Msg("token replaced")
	}

	s.header = "Bearer " + token
	s.issuedAt = now
	s.expiresAt = tokenExpiry(token)
	s.generation++

	ev := s.logger.Debug().Str("reason", reason).Uint64("generation", s.generation)
	if !s.expiresAt.IsZero() {
		ev = ev.Time("expires", s.expiresAt)
	}
	ev.Msg("session token issued")
	return nil
}

// tokenExpiry reads the exp claim without verifying the signature; the
// storefront's key is not public and the value only steers refresh timing.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}

// Header returns the current Authorization value.
func (s *Session) Header() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header
}

// Apply sets the Authorization header on req.
func (s *Session) Apply(req *nethttp.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.header != "" {
		req.Header.Set("Authorization", s.header)
	}
}

// current returns the header together with its generation.
func (s *Session) current() (string, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.header, s.generation
}

// Age is how long ago the current token was issued.
func (s *Session) Age() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.issuedAt.IsZero() {
		return 0
	}
	return s.now().Sub(s.issuedAt)
}

// ExpiresAt returns the token's exp claim, or the zero time when absent.
func (s *Session) ExpiresAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expiresAt
}

// Generation counts successful logins.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

func (s *Session) String() string {
	return fmt.Sprintf("session(%s, generation %d)", s.username, s.Generation())
}

package dealerapi

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Amahseyn/car-dealer-gateway/internal/repository"
	"github.com/Amahseyn/car-dealer-gateway/pkg/model"
)

var (
	// ErrNotLoggedIn signals an operation that needs a session was called
	// without one.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrSessionExpired signals the refresh-token exchange was rejected;
	// the session is terminated and the stored pair cleared.
	ErrSessionExpired = errors.New("session expired")
)

// TokenStore abstracts persistence of the session token pair.
type TokenStore interface {
	Load() (model.TokenPair, error)
	Save(model.TokenPair) error
	Clear() error
}

// Session is the single source of truth for the access/refresh token pair.
// It is created at startup, shared by every outgoing request, and torn down
// at logout. The mutex serializes token reads against the one in-flight
// refresh, so concurrent 401s trigger at most one exchange.
type Session struct {
	mu     sync.Mutex
	tokens model.TokenPair
	store  TokenStore
}

// NewSession builds a session, restoring a persisted pair when one exists.
func NewSession(store TokenStore) (*Session, error) {
	s := &Session{store: store}
	if store == nil {
		return s, nil
	}
	pair, err := store.Load()
	if err != nil {
		if errors.Is(err, repository.ErrNoTokens) {
			return s, nil
		}
		return nil, fmt.Errorf("restore session: %w", err)
	}
	s.tokens = pair
	return s, nil
}

// LoggedIn reports whether an access token is held.
func (s *Session) LoggedIn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.Access != ""
}

// AccessToken returns the current access token, empty when anonymous.
func (s *Session) AccessToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.Access
}

// SetTokens installs a freshly issued pair and persists it.
func (s *Session) SetTokens(pair model.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = pair
	if s.store == nil {
		return nil
	}
	return s.store.Save(pair)
}

// Clear drops the pair and removes it from the store.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens = model.TokenPair{}
	if s.store == nil {
		return nil
	}
	return s.store.Clear()
}

// RefreshToken returns the refresh token, empty when anonymous.
func (s *Session) RefreshToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens.Refresh
}

// UserID extracts the authenticated user's id from the access token claims.
// The token is not verified here; the upstream API is the authority and
// rejects forged tokens on every call.
func (s *Session) UserID() (int64, error) {
	s.mu.Lock()
	access := s.tokens.Access
	s.mu.Unlock()
	if access == "" {
		return 0, ErrNotLoggedIn
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err != nil {
		return 0, fmt.Errorf("parse access token: %w", err)
	}
	raw, ok := claims["user_id"]
	if !ok {
		return 0, errors.New("access token has no user_id claim")
	}
	id, ok := raw.(float64)
	if !ok {
		return 0, fmt.Errorf("unexpected user_id claim type %T", raw)
	}
	return int64(id), nil
}

// refreshFunc exchanges a refresh token for a new access token.
type refreshFunc func(ctx context.Context, refresh string) (string, error)

// refreshAfter401 performs the single silent refresh-and-retry exchange.
// staleAccess is the token the failed request carried: if another caller
// already refreshed past it, the exchange is skipped and the caller just
// retries with the newer token. A failed exchange invalidates the session
// for every caller.
func (s *Session) refreshAfter401(ctx context.Context, staleAccess string, exchange refreshFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.tokens.Access == "" || s.tokens.Refresh == "" {
		return ErrSessionExpired
	}
	if s.tokens.Access != staleAccess {
		// A concurrent request already won the refresh.
		return nil
	}

	access, err := exchange(ctx, s.tokens.Refresh)
	if err != nil {
		s.tokens = model.TokenPair{}
		if s.store != nil {
			_ = s.store.Clear()
		}
		return fmt.Errorf("%w: %v", ErrSessionExpired, err)
	}

	s.tokens.Access = access
	if s.store != nil {
		if err := s.store.Save(s.tokens); err != nil {
			return fmt.Errorf("persist refreshed tokens: %w", err)
		}
	}
	return nil
}

/*
Package session tracks token validity and gates ledger mutations.

PURPOSE:
  Holds the current Session (user + auth token), answers "is this session
  still valid?", and refreshes the token just in time when it is close to
  expiring. Every ledger-mutating operation calls EnsureValidToken before
  issuing the underlying write and aborts with an unauthenticated error
  when no valid token results.

LIFECYCLE:
  NO_SESSION -> VALID -> (NEAR_EXPIRY -> REFRESHING -> VALID) -> EXPIRED -> NO_SESSION

  Sessions are created on login, replaced wholesale on refresh (new token
  value and expiry), destroyed on logout. Persistence across process
  restarts is a platform concern - this package operates on whatever
  Session a backing store hands it.

REFRESH POLICY:
  When fewer than 30 minutes remain before expiry, the externally supplied
  refresh function is invoked. On failure the stored session is left
  untouched and the error is reported upward - the caller decides whether
  that is fatal.

TOKENS:
  Tokens are JWTs issued by the authentication collaborator. The expiry is
  read from the token's exp claim without verifying the signature -
  verification is the backend's job; this side only needs to know when to
  refresh.

SEE ALSO:
  - purchase/coordinator.go: EnsureValidToken gate before every write
*/
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MKrabs/Snablo-app/ledger"
)

// RefreshThreshold is how much remaining lifetime a token may have before
// RefreshTokenIfNeeded replaces it.
const RefreshThreshold = 30 * time.Minute

// =============================================================================
// SESSION MODEL
// =============================================================================

type Role string

const (
	RoleUser  Role = "USER"  // Regular colleague (buyer)
	RoleAdmin Role = "ADMIN" // Location operator (restock, reconcile, cash counts)
)

type User struct {
	ID    ledger.UserID
	Email string
	Name  string
	Role  Role
}

// AuthToken is the raw token plus its expiry.
type AuthToken struct {
	Token     string
	ExpiresAt time.Time
}

// Session pairs a user with their current token. Replaced wholesale on
// refresh, never partially updated.
type Session struct {
	User  User
	Token AuthToken
}

// TokenExpiry extracts the exp claim from a JWT without verifying the
// signature. Used to build an AuthToken from the raw token the backend
// returns on login/refresh.
func TokenExpiry(raw string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(raw, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, fmt.Errorf("token has no exp claim")
	}
	return claims.ExpiresAt.Time, nil
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// RefreshFunc is the externally supplied token-refresh call. May fail
// (network, credentials); the lifecycle then leaves the existing token
// unchanged.
type RefreshFunc func(ctx context.Context) (AuthToken, error)

// Lifecycle tracks the current session. Safe for concurrent use.
type Lifecycle struct {
	mu      sync.RWMutex
	session *Session
	clock   ledger.Clock
}

func NewLifecycle(clock ledger.Clock) *Lifecycle {
	if clock == nil {
		clock = ledger.SystemClock{}
	}
	return &Lifecycle{clock: clock}
}

// Set installs a session (login).
func (lc *Lifecycle) Set(s Session) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.session = &s
}

// Clear destroys the session (logout).
func (lc *Lifecycle) Clear() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	lc.session = nil
}

// Current returns the session, if any.
func (lc *Lifecycle) Current() (Session, bool) {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	if lc.session == nil {
		return Session{}, false
	}
	return *lc.session, true
}

// HasValidSession reports whether a session exists and its token has not
// expired yet.
func (lc *Lifecycle) HasValidSession() bool {
	lc.mu.RLock()
	defer lc.mu.RUnlock()
	return lc.session != nil && lc.session.Token.ExpiresAt.After(lc.clock.Now())
}

// RefreshTokenIfNeeded returns the current token, refreshing it first when
// fewer than 30 minutes remain before expiry. On refresh failure the stored
// session is left unmodified and the error is returned - the caller decides
// whether to treat it as fatal.
func (lc *Lifecycle) RefreshTokenIfNeeded(ctx context.Context, refresh RefreshFunc) (*AuthToken, error) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if lc.session == nil {
		return nil, ledger.ErrUnauthenticated
	}

	remaining := lc.session.Token.ExpiresAt.Sub(lc.clock.Now())
	if remaining >= RefreshThreshold {
		token := lc.session.Token
		return &token, nil
	}

	// Near expiry with no way to refresh: report it rather than hand out
	// a token about to die.
	if refresh == nil {
		return nil, ledger.ErrUnauthenticated
	}

	newToken, err := refresh(ctx)
	if err != nil {
		return nil, err
	}

	lc.session.Token = newToken
	token := newToken
	return &token, nil
}

// EnsureValidToken gates ledger-mutating operations: it returns nil only
// when a non-expired token exists or a just-in-time refresh produced one.
// refresh may be nil, in which case an expired session is simply rejected.
func (lc *Lifecycle) EnsureValidToken(ctx context.Context, refresh RefreshFunc) error {
	if lc.HasValidSession() {
		return nil
	}
	if refresh == nil {
		return ledger.ErrUnauthenticated
	}
	if _, err := lc.RefreshTokenIfNeeded(ctx, refresh); err != nil {
		return fmt.Errorf("%w: refresh failed: %v", ledger.ErrUnauthenticated, err)
	}
	if !lc.HasValidSession() {
		return ledger.ErrUnauthenticated
	}
	return nil
}

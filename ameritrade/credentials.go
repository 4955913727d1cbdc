package ameritrade

import (
	"context"
	"net/http"
	"sync"
)

// clientIDSuffix is appended to the consumer key in token requests.
const clientIDSuffix = "@AMER.OAUTHAP"

// Credentials is the OAuth state a client is built from.
type Credentials struct {
	ClientID     string
	AccountID    string
	RedirectURL  string
	RefreshToken string
	AccessToken  string
	// CertPath optionally names a PEM file added to the TLS root pool.
	CertPath string
}

// session guards the mutable part of Credentials. Tokens are only written by
// the token-grant path.
type session struct {
	mu    sync.RWMutex
	creds Credentials

	// refreshMu serializes refreshes triggered by concurrent 401s.
	refreshMu sync.Mutex
	refresh   func(ctx context.Context) error
}

func newSession(creds Credentials) *session {
	return &session{creds: creds}
}

func (s *session) snapshot() Credentials {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds
}

func (s *session) accessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds.AccessToken
}

// setTokens stores a granted access token and, when the grant rotated it, the
// refresh token.
func (s *session) setTokens(access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if access != "" {
		s.creds.AccessToken = access
	}
	if refresh != "" {
		s.creds.RefreshToken = refresh
	}
}

// Authorize attaches the bearer token once one is held.
func (s *session) Authorize(h http.Header) {
	if token := s.accessToken(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
}

// Refresh renews the access token. A caller that waited on another refresh
// reuses the token that refresh stored instead of granting again.
func (s *session) Refresh(ctx context.Context) error {
	return s.refreshFrom(ctx, s.accessToken())
}

// refreshFrom renews the token unless it already differs from stale.
func (s *session) refreshFrom(ctx context.Context, stale string) error {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()
	if s.refresh == nil {
		return ErrNotAuthenticated
	}
	if s.accessToken() != stale {
		return nil
	}
	return s.refresh(ctx)
}

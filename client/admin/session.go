package admin

import (
	"context"
	"sync"
	"time"

	"github.com/layer-3/dropgate/core"
)

// Authenticator checks the admin password on the server
type Authenticator interface {
	AdminLogin(ctx context.Context, password string) (*core.AdminGrant, error)
}

// Session is the client side of the admin gate. The window is measured with
// the local clock from the moment the server accepted the password.
type Session struct {
	auth Authenticator
	now  func() time.Time

	mu    sync.Mutex
	grant *core.AdminGrant
}

func NewSession(auth Authenticator) *Session {
	return &Session{auth: auth, now: time.Now}
}

// Login asks the server to check password and opens a local window on success
func (s *Session) Login(ctx context.Context, password string) error {
	if _, err := s.auth.AdminLogin(ctx, password); err != nil {
		s.Logout()
		return err
	}

	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.grant = &core.AdminGrant{GrantedAt: now, ExpiresAt: now.Add(core.AdminWindow)}

	return nil
}

// Active reports whether the window is still open. It never calls the server.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grant.Valid(s.now())
}

// Remaining returns the time left in the window, or zero
func (s *Session) Remaining() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.grant.Valid(now) {
		return 0
	}
	return s.grant.ExpiresAt.Sub(now)
}

func (s *Session) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grant = nil
}

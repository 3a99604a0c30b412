package core

import "time"

// AdminWindow is how long an admin grant stays usable on the client
const AdminWindow = 15 * time.Minute

// AdminGrant is returned after a successful admin password check
type AdminGrant struct {
	GrantedAt time.Time `json:"granted_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Valid reports whether the grant is still inside its window at now
func (g *AdminGrant) Valid(now time.Time) bool {
	return g != nil && !now.Before(g.GrantedAt) && now.Before(g.ExpiresAt)
}

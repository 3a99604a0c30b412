package service

import (
	"fmt"
	"time"

	"github.com/layer-3/dropgate/core"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// AdminGate checks admin passwords against a fixed set of bcrypt hashes
type AdminGate struct {
	hashes [][]byte
	logger *zap.Logger
	now    func() time.Time
}

func NewAdminGate(hashes []string, logger *zap.Logger) *AdminGate {
	g := &AdminGate{logger: logger, now: time.Now}
	for _, h := range hashes {
		if h != "" {
			g.hashes = append(g.hashes, []byte(h))
		}
	}
	return g
}

// Login grants an admin window if password matches any configured hash
func (g *AdminGate) Login(password string) (*core.AdminGrant, error) {
	if password == "" {
		return nil, fmt.Errorf("empty password: %w", core.ErrAdminDenied)
	}

	for _, h := range g.hashes {
		if bcrypt.CompareHashAndPassword(h, []byte(password)) == nil {
			now := g.now().UTC()
			g.logger.Info("admin access granted")
			return &core.AdminGrant{GrantedAt: now, ExpiresAt: now.Add(core.AdminWindow)}, nil
		}
	}

	g.logger.Warn("admin access denied")
	return nil, core.ErrAdminDenied
}

// HashAdminPassword returns a bcrypt hash suitable for the admin hash list
func HashAdminPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

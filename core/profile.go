package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Role is the membership role of a profile
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Tier is the membership tier shown next to a profile
type Tier string

const (
	TierHunter Tier = "Hunter"
	TierScout  Tier = "Scout"
	TierLegend Tier = "Legend"
)

// DefaultAvatars is the avatar set assigned to new profiles
var DefaultAvatars = []string{
	"/avatars/hunter-01.png",
	"/avatars/hunter-02.png",
	"/avatars/hunter-03.png",
	"/avatars/hunter-04.png",
	"/avatars/hunter-05.png",
	"/avatars/hunter-06.png",
	"/avatars/hunter-07.png",
	"/avatars/hunter-08.png",
}

// Profile is the durable user record keyed by wallet address.
// Address is always stored lowercase.
type Profile struct {
	ID               string    `json:"id"`
	Address          string    `json:"address"`
	Role             Role      `json:"role"`
	Tier             Tier      `json:"tier"`
	Username         string    `json:"username"`
	UsernameSet      bool      `json:"username_set"`
	UsernamePrompted bool      `json:"-"`
	AvatarURL        string    `json:"avatar_url"`
	RegisteredAt     time.Time `json:"registered_at"`
	Banned           bool      `json:"banned"`
	XP               int64     `json:"xp"`
	Level            int       `json:"level"`
}

// NewProfile returns the default profile for a freshly verified address.
// The principal id becomes the profile id so that auth and profile ids agree.
func NewProfile(principalID, address string, now time.Time) *Profile {
	address = strings.ToLower(address)
	raw := common.HexToAddress(address).Bytes()

	return &Profile{
		ID:           principalID,
		Address:      address,
		Role:         RoleUser,
		Tier:         TierHunter,
		Username:     PlaceholderUsername(address),
		AvatarURL:    DefaultAvatars[int(raw[len(raw)-1])%len(DefaultAvatars)],
		RegisteredAt: now.UTC(),
		Level:        1,
	}
}

// PlaceholderUsername derives the synthetic username given to new profiles
func PlaceholderUsername(address string) string {
	hex := strings.TrimPrefix(strings.ToLower(address), "0x")
	if len(hex) > 6 {
		hex = hex[:6]
	}
	return fmt.Sprintf("hunter-%s", hex)
}

// NeedsUsername reports whether the user still has to choose a display name
func (p *Profile) NeedsUsername() bool {
	return !p.UsernameSet
}

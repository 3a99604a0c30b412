package core

import (
	"crypto/rand"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// MessageVersion is the only challenge message version accepted
	MessageVersion = "1"

	// DefaultStatement is shown to the user in the wallet signing prompt
	DefaultStatement = "Sign in to Airdrop Hunter to verify that you own this wallet."

	messageHeaderSuffix = " wants you to sign in with your Ethereum account:"
)

// Builder constructs challenge messages for a fixed origin and chain
type Builder struct {
	Domain    string
	URI       string
	ChainID   int64
	Statement string
	Now       func() time.Time
}

// NewBuilder creates a builder for the given page origin (scheme://host[:port]) and chain id
func NewBuilder(origin string, chainID int64) *Builder {
	return &Builder{
		Domain:    HostFromOrigin(origin),
		URI:       origin,
		ChainID:   chainID,
		Statement: DefaultStatement,
		Now:       time.Now,
	}
}

// Build returns a fresh challenge for address. Every call draws a new nonce.
// The address must be present; callers check that before building.
func (b *Builder) Build(address string) *Challenge {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}

	return &Challenge{
		Domain:    b.Domain,
		Address:   ChecksumAddress(address),
		Statement: b.Statement,
		URI:       b.URI,
		Version:   MessageVersion,
		ChainID:   b.ChainID,
		Nonce:     NewNonce(),
		IssuedAt:  now().UTC().Truncate(time.Second),
	}
}

// NewNonce returns a random alphanumeric nonce carrying 130 bits of entropy
func NewNonce() string {
	return rand.Text()
}

// HostFromOrigin extracts the host[:port] part of an origin. Bare hosts are returned as is.
func HostFromOrigin(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return strings.TrimSuffix(origin, "/")
	}
	return u.Host
}

// Message renders the challenge in the EIP-4361 text layout
func (c *Challenge) Message() string {
	var sb strings.Builder

	sb.WriteString(c.Domain + messageHeaderSuffix + "\n")
	sb.WriteString(c.Address + "\n\n")
	if c.Statement != "" {
		sb.WriteString(c.Statement + "\n\n")
	}
	fmt.Fprintf(&sb, "URI: %s\n", c.URI)
	fmt.Fprintf(&sb, "Version: %s\n", c.Version)
	fmt.Fprintf(&sb, "Chain ID: %d\n", c.ChainID)
	fmt.Fprintf(&sb, "Nonce: %s\n", c.Nonce)
	fmt.Fprintf(&sb, "Issued At: %s", c.IssuedAt.UTC().Format(time.RFC3339))

	return sb.String()
}

// ParseMessage parses a message produced by Challenge.Message
func ParseMessage(msg string) (*Challenge, error) {
	lines := strings.Split(msg, "\n")
	if len(lines) < 8 {
		return nil, fmt.Errorf("message too short: %w", ErrInvalidChallenge)
	}

	domain, ok := strings.CutSuffix(lines[0], messageHeaderSuffix)
	if !ok || domain == "" {
		return nil, fmt.Errorf("missing header: %w", ErrInvalidChallenge)
	}

	c := &Challenge{Domain: domain, Address: lines[1]}
	if lines[2] != "" {
		return nil, fmt.Errorf("malformed address block: %w", ErrInvalidChallenge)
	}

	rest := lines[3:]
	if len(rest) > 0 && !strings.HasPrefix(rest[0], "URI: ") {
		if len(rest) < 2 || rest[1] != "" {
			return nil, fmt.Errorf("malformed statement: %w", ErrInvalidChallenge)
		}
		c.Statement = rest[0]
		rest = rest[2:]
	}

	fields := []string{"URI", "Version", "Chain ID", "Nonce", "Issued At"}
	if len(rest) != len(fields) {
		return nil, fmt.Errorf("unexpected field count %d: %w", len(rest), ErrInvalidChallenge)
	}

	values := make(map[string]string, len(fields))
	for i, name := range fields {
		v, ok := strings.CutPrefix(rest[i], name+": ")
		if !ok || v == "" {
			return nil, fmt.Errorf("missing %s: %w", name, ErrInvalidChallenge)
		}
		values[name] = v
	}

	chainID, err := strconv.ParseInt(values["Chain ID"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad chain id: %w", ErrInvalidChallenge)
	}
	issuedAt, err := time.Parse(time.RFC3339, values["Issued At"])
	if err != nil {
		return nil, fmt.Errorf("bad issued at: %w", ErrInvalidChallenge)
	}

	c.URI = values["URI"]
	c.Version = values["Version"]
	c.ChainID = chainID
	c.Nonce = values["Nonce"]
	c.IssuedAt = issuedAt

	return c, nil
}

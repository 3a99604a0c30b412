package core

import "time"

// Challenge represents a sign-in challenge for one wallet address
type Challenge struct {
	Domain    string    // Hostname the user is signing in to
	Address   string    // Checksummed Ethereum address of the user
	Statement string    // Human-readable onboarding statement
	URI       string    // URI of the requesting page
	Version   string    // Message format version, always "1"
	ChainID   int64     // Target chain id
	Nonce     string    // Random single-use nonce
	IssuedAt  time.Time // When the challenge was built
}

// Session represents an authenticated user session
type Session struct {
	ID            string    // Unique session identifier
	Address       string    // Ethereum address of the user
	PrincipalID   string    // Backend principal bound to the address
	IssuedAt      time.Time // When the session was created
	RefreshExpiry time.Time // When the refresh capability expires
	AccessExpiry  time.Time // When the access capability expires
	RefreshID     string    // Unique identifier for the refresh token
}

// VerifyRequest is the challenge/response payload sent by a client after signing
type VerifyRequest struct {
	Message   string `json:"message" binding:"required"`
	Signature string `json:"signature" binding:"required"`
	Address   string `json:"address" binding:"required"`
}

// Grant is what a client receives after a successful verification
type Grant struct {
	AccessToken    string    `json:"access_token"`
	RefreshToken   string    `json:"refresh_token"`
	AccessExpiry   time.Time `json:"expires_at"`
	Profile        *Profile  `json:"profile,omitempty"`
	PromptUsername bool      `json:"prompt_username"`
}

// Principal is the backend login identity derived from a wallet address
type Principal struct {
	ID           string
	Login        string
	PasswordHash string
	CreatedAt    time.Time
}

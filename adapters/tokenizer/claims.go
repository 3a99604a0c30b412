package tokenizer

import "github.com/golang-jwt/jwt/v5"

// AccessClaims combines standard claims with access-specific ones
type AccessClaims struct {
	jwt.RegisteredClaims
	RefreshID   string `json:"rid"` // ID of the refresh token
	PrincipalID string `json:"pid"` // Backend principal bound to the wallet
}

// RefreshClaims carries the principal next to the standard claims
type RefreshClaims struct {
	jwt.RegisteredClaims
	PrincipalID string `json:"pid"`
}

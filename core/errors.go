package core

import "errors"

var (
	ErrInvalidAddress        = errors.New("invalid ethereum address")
	ErrInvalidChallenge      = errors.New("invalid challenge")
	ErrChallengeExpired      = errors.New("challenge has expired")
	ErrNonceReused           = errors.New("nonce has already been used")
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrSessionIssuanceFailed = errors.New("session issuance failed")
	ErrProfileCreateFailed   = errors.New("profile creation failed")
	ErrProfileFetchFailed    = errors.New("profile fetch failed")
	ErrVerificationTimeout   = errors.New("verification timed out")
	ErrUserRejectedSignature = errors.New("user rejected the signature request")

	ErrTokenExpired     = errors.New("token has expired")
	ErrTokenInvalidated = errors.New("token has been invalidated")
	ErrInvalidToken     = errors.New("invalid token")

	ErrProfileNotFound   = errors.New("profile not found")
	ErrProfileExists     = errors.New("profile already exists")
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrPrincipalExists   = errors.New("principal already exists")

	ErrAdminDenied = errors.New("admin password rejected")
)

// errorCodes lists the wire codes in match order
var errorCodes = []struct {
	err  error
	code string
}{
	{ErrInvalidAddress, "invalid_address"},
	{ErrInvalidChallenge, "invalid_challenge"},
	{ErrChallengeExpired, "challenge_expired"},
	{ErrNonceReused, "nonce_reused"},
	{ErrInvalidSignature, "invalid_signature"},
	{ErrSessionIssuanceFailed, "session_issuance_failed"},
	{ErrProfileCreateFailed, "profile_create_failed"},
	{ErrProfileFetchFailed, "profile_fetch_failed"},
	{ErrVerificationTimeout, "verification_timeout"},
	{ErrUserRejectedSignature, "user_rejected"},
	{ErrTokenExpired, "token_expired"},
	{ErrTokenInvalidated, "token_invalidated"},
	{ErrInvalidToken, "invalid_token"},
	{ErrProfileNotFound, "profile_not_found"},
	{ErrAdminDenied, "admin_denied"},
}

// ErrorCode returns the wire code for err, or "internal" if it has none
func ErrorCode(err error) string {
	for _, ec := range errorCodes {
		if errors.Is(err, ec.err) {
			return ec.code
		}
	}
	return "internal"
}

// ErrorFromCode is the inverse of ErrorCode. Unknown codes return nil.
func ErrorFromCode(code string) error {
	for _, ec := range errorCodes {
		if ec.code == code {
			return ec.err
		}
	}
	return nil
}

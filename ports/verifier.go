package ports

// SignatureVerifier checks that message was signed by address.
// Implementations return an error wrapping core.ErrInvalidSignature on mismatch.
type SignatureVerifier interface {
	Verify(message, signature, address string) error
}

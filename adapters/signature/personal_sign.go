package signature

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/dropgate/core"
	"github.com/layer-3/dropgate/ports"
)

// PersonalSign verifies EIP-191 personal_sign signatures over challenge messages
type PersonalSign struct{}

// NewPersonalSign creates a personal_sign verifier
func NewPersonalSign() ports.SignatureVerifier {
	return PersonalSign{}
}

// Verify recovers the signer of message and compares it to address
func (PersonalSign) Verify(message, signature, address string) error {
	sig, err := hexutil.Decode(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("failed to decode signature: %w", core.ErrInvalidSignature)
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes: %w", crypto.SignatureLength, core.ErrInvalidSignature)
	}

	// Wallets emit v as 27/28; recovery expects 0/1
	switch sig[crypto.RecoveryIDOffset] {
	case 0, 1:
	case 27, 28:
		sig[crypto.RecoveryIDOffset] -= 27
	default:
		return fmt.Errorf("bad recovery id %d: %w", sig[crypto.RecoveryIDOffset], core.ErrInvalidSignature)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return fmt.Errorf("failed to recover signer: %w", core.ErrInvalidSignature)
	}

	signer := crypto.PubkeyToAddress(*pub).Hex()
	if !core.SameAddress(signer, address) {
		return fmt.Errorf("signer %s does not match %s: %w", signer, address, core.ErrInvalidSignature)
	}

	return nil
}

package wallet

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/dropgate/core"
)

// Wallet is a connected account that can sign challenge messages
type Wallet interface {
	Address() string
	SignMessage(ctx context.Context, message string) (string, error)
}

// KeyWallet signs with a local secp256k1 key
type KeyWallet struct {
	key *ecdsa.PrivateKey
}

func NewKeyWallet(key *ecdsa.PrivateKey) *KeyWallet {
	return &KeyWallet{key: key}
}

// FromHex parses a hex private key, with or without the 0x prefix
func FromHex(hexKey string) (*KeyWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return NewKeyWallet(key), nil
}

// Address returns the checksummed wallet address
func (w *KeyWallet) Address() string {
	return crypto.PubkeyToAddress(w.key.PublicKey).Hex()
}

// SignMessage produces an EIP-191 personal_sign signature with v in {27, 28}
func (w *KeyWallet) SignMessage(ctx context.Context, message string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), w.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign message: %w", err)
	}

	// Adjust V value to Ethereum convention (27/28)
	sig[crypto.RecoveryIDOffset] += 27

	return hexutil.Encode(sig), nil
}

// ConfirmingWallet shows each message and signs only after the user answers yes
type ConfirmingWallet struct {
	Wallet
	prompter *Prompter
}

func NewConfirmingWallet(w Wallet, p *Prompter) *ConfirmingWallet {
	return &ConfirmingWallet{Wallet: w, prompter: p}
}

// SignMessage asks for confirmation. Anything but y/yes, or closed input, rejects the request.
func (w *ConfirmingWallet) SignMessage(ctx context.Context, message string) (string, error) {
	question := fmt.Sprintf("\nSignature request from %s:\n\n%s\n\nSign? [y/N]: ", w.Address(), message)
	ok, err := w.prompter.Confirm(ctx, question)
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	if !ok {
		return "", core.ErrUserRejectedSignature
	}

	return w.Wallet.SignMessage(ctx, message)
}

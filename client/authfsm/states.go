package authfsm

import (
	"errors"
	"time"

	"github.com/layer-3/dropgate/core"
	"go.uber.org/zap/zapcore"
)

// State is the authentication state of a wallet connection
type State int

const (
	Disconnected State = iota
	PendingVerification
	Verifying
	Authenticated
	VerificationFailed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case PendingVerification:
		return "pending_verification"
	case Verifying:
		return "verifying"
	case Authenticated:
		return "authenticated"
	case VerificationFailed:
		return "verification_failed"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of the machine state
type Snapshot struct {
	State          State
	Address        string
	AccessToken    string
	RefreshToken   string
	AccessExpiry   time.Time
	Profile        *core.Profile
	PromptUsername bool
	// Restored is set when the session came from a marker rather than a signature
	Restored bool
	Err      error
}

// AccessAllowed reports whether the UI may show user data.
// A banned profile is authenticated but gated.
func (s Snapshot) AccessAllowed() bool {
	return s.State == Authenticated && s.Profile != nil && !s.Profile.Banned
}

// Notice is a user-facing message about a finished attempt
type Notice struct {
	Level   zapcore.Level
	Address string
	Message string
	Err     error
}

// NotifyFunc receives notices. It is called without the machine lock held.
type NotifyFunc func(Notice)

func noticeFor(address string, err error) Notice {
	n := Notice{Level: zapcore.ErrorLevel, Address: address, Err: err}

	switch {
	case errors.Is(err, core.ErrUserRejectedSignature):
		n.Level = zapcore.InfoLevel
		n.Message = "Signature request declined. Retry when you are ready to sign."
	case errors.Is(err, core.ErrVerificationTimeout):
		n.Level = zapcore.WarnLevel
		n.Message = "Verification timed out. Retry to sign again."
	case errors.Is(err, core.ErrInvalidSignature):
		n.Message = "The signature did not match your wallet. Retry to sign a new message."
	case errors.Is(err, core.ErrProfileFetchFailed):
		n.Message = "Could not load your profile. Retry in a moment."
	case errors.Is(err, core.ErrProfileCreateFailed):
		n.Message = "Could not create your profile. Retry in a moment."
	default:
		n.Message = "Verification failed. Retry in a moment."
	}

	return n
}

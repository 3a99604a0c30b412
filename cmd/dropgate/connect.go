package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/layer-3/dropgate/client/api"
	"github.com/layer-3/dropgate/client/authfsm"
	"github.com/layer-3/dropgate/client/marker/boltdb"
	"github.com/layer-3/dropgate/client/wallet"
	"github.com/layer-3/dropgate/config"
	"github.com/layer-3/dropgate/core"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"
)

func connectCmd() *cobra.Command {
	var autoSign bool

	cmd := &cobra.Command{
		Use:   "connect",
		Short: "Sign in to a dropgate backend with a local key",
		Long: `Connect a local key as a wallet and drive the sign-in flow.

The private key is read from DROPGATE_PRIVATE_KEY or prompted for.
A verification marker is kept in DROPGATE_MARKER_DB so the next
connect restores the session without signing again.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runConnect(ctx, autoSign, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVarP(&autoSign, "yes", "y", false, "Sign without asking for confirmation")

	return cmd
}

func runConnect(ctx context.Context, autoSign bool, stdin io.Reader, out io.Writer) error {
	cfg, err := config.LoadClient()
	if err != nil {
		return err
	}

	logger, err := config.NewLogger(cfg.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync()

	key, err := readPrivateKey(out)
	if err != nil {
		return err
	}
	keyWallet, err := wallet.FromHex(key)
	if err != nil {
		return err
	}

	markers, err := boltdb.New(ctx, cfg.MarkerDB)
	if err != nil {
		return err
	}
	defer markers.Close()

	prompter := wallet.NewPrompter(stdin, out)
	var w wallet.Wallet = keyWallet
	if !autoSign {
		w = wallet.NewConfirmingWallet(keyWallet, prompter)
	}

	machine := authfsm.New(
		api.New(cfg.BackendURL, cfg.PublicAPIKey),
		markers,
		core.NewBuilder(cfg.Origin, cfg.ChainID),
		authfsm.WithLogger(logger),
		authfsm.WithNotifier(func(n authfsm.Notice) {
			fmt.Fprintln(out, n.Message)
		}),
	)
	defer machine.Close()

	fmt.Fprintf(out, "Connecting %s to %s\n", keyWallet.Address(), cfg.BackendURL)
	if err := machine.Connect(w); err != nil {
		return err
	}

	for {
		snap, err := machine.Watch(ctx, func(s authfsm.Snapshot) bool {
			return s.State == authfsm.Authenticated || s.State == authfsm.VerificationFailed
		})
		if err != nil {
			machine.Disconnect()
			return err
		}

		if snap.State == authfsm.Authenticated {
			printSession(out, snap)
			if snap.PromptUsername {
				fmt.Fprintf(out, "You are signed in as %q. Choose a username in the app.\n", snap.Profile.Username)
				machine.AcknowledgeUsernamePrompt()
			}
			return nil
		}

		logger.Debug("verification failed", zap.Error(snap.Err))
		retry, err := prompter.Confirm(ctx, "Retry? [y/N]: ")
		if err != nil && !errors.Is(err, io.EOF) {
			machine.Disconnect()
			return err
		}
		if !retry {
			machine.Disconnect()
			return snap.Err
		}
		if err := machine.Retry(); err != nil && !errors.Is(err, authfsm.ErrRetryNotAllowed) {
			return err
		}
	}
}

func printSession(out io.Writer, snap authfsm.Snapshot) {
	how := "verified by signature"
	if snap.Restored {
		how = "restored from marker"
	}

	fmt.Fprintf(out, "Authenticated %s (%s)\n", snap.Address, how)
	fmt.Fprintf(out, "  profile:  %s\n", snap.Profile.ID)
	fmt.Fprintf(out, "  username: %s\n", snap.Profile.Username)
	fmt.Fprintf(out, "  tier:     %s (level %d, %d XP)\n", snap.Profile.Tier, snap.Profile.Level, snap.Profile.XP)
	fmt.Fprintf(out, "  expires:  %s\n", snap.AccessExpiry.Local().Format("2006-01-02 15:04:05"))
	if !snap.AccessAllowed() {
		fmt.Fprintln(out, "  This account is banned; access to the app is blocked.")
	}
}

func readPrivateKey(out io.Writer) (string, error) {
	if key := os.Getenv("DROPGATE_PRIVATE_KEY"); key != "" {
		return key, nil
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("%w: DROPGATE_PRIVATE_KEY", config.ErrMissingEnv)
	}

	fmt.Fprint(out, "Private key: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(out)
	if err != nil {
		return "", fmt.Errorf("failed to read private key: %w", err)
	}

	return string(raw), nil
}

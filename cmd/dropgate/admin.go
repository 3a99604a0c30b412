package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/layer-3/dropgate/client/admin"
	"github.com/layer-3/dropgate/client/api"
	"github.com/layer-3/dropgate/config"
	"github.com/layer-3/dropgate/service"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin gate helpers",
	}

	cmd.AddCommand(adminHashCmd(), adminLoginCmd())

	return cmd
}

func adminHashCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hash",
		Short: "Print a bcrypt hash for ADMIN_PASSWORD_HASHES",
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, "Admin password: ")
			if err != nil {
				return err
			}

			hash, err := service.HashAdminPassword(password)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), hash)
			return nil
		},
	}
}

func adminLoginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Check the admin password against the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadClient()
			if err != nil {
				return err
			}

			password, err := readPassword(cmd, "Admin password: ")
			if err != nil {
				return err
			}

			session := admin.NewSession(api.New(cfg.BackendURL, cfg.PublicAPIKey))
			if err := session.Login(cmd.Context(), password); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Admin access granted for %s\n", session.Remaining().Round(time.Second))
			return nil
		},
	}
}

func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", errors.New("a terminal is required to read the password")
	}

	fmt.Fprint(cmd.OutOrStdout(), prompt)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.OutOrStdout())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}

	return string(raw), nil
}

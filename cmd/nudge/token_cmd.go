package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/fentz26/nudge/internal/auth"
	"github.com/fentz26/nudge/internal/client"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token [owner]",
	Short: "Issue a bearer token for an owner",
	Long: `Signs a bearer token with auth.jwt_secret from the local config file.
Run it on the daemon host and hand the token to the owner for "nudge login".`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

var loginCmd = &cobra.Command{
	Use:   "login [token]",
	Short: "Save a bearer token for later commands",
	Args:  cobra.ExactArgs(1),
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the saved token",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, err := newAuthManager()
		if err != nil {
			return err
		}
		if err := mgr.Logout(); err != nil {
			return err
		}
		fmt.Println("Logged out")
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "Token lifetime (default auth.token_ttl from config)")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is not configured")
	}
	ttl := cfg.Auth.TokenTTL.Duration
	if cmd.Flags().Changed("ttl") {
		ttl = tokenTTL
	}

	tokens, err := auth.NewTokenService(cfg.Auth.JWTSecret, ttl)
	if err != nil {
		return err
	}
	token, expires, err := tokens.Issue(args[0])
	if err != nil {
		return err
	}
	fmt.Println(token)
	if !expires.IsZero() {
		fmt.Fprintf(cmd.ErrOrStderr(), "expires %s\n", expires.Local().Format(time.RFC3339))
	}
	return nil
}

func runLogin(cmd *cobra.Command, args []string) error {
	mgr, err := newAuthManager()
	if err != nil {
		return err
	}

	// Verify the token against the daemon before saving it.
	owner, err := client.New(apiAddr, client.WithToken(args[0])).Me(cmd.Context())
	if err != nil {
		return fmt.Errorf("token rejected: %w", err)
	}

	if err := mgr.Login(auth.Session{Token: args[0], Owner: owner.ID}); err != nil {
		return err
	}
	fmt.Printf("Logged in as %s\n", owner.ID)
	return nil
}

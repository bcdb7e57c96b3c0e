// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

package command

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tomtom215/pulse/internal/auth"
)

// NewTokenCmd creates the token command.
func NewTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a development session token",
		Long: `Mint an HS256 session token for a user, signed with the secret the
server verifies socket auth frames with.

  pulsectl token --user alice
  JWT_SECRET=... pulsectl token --user alice --ttl 1h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			user, _ := cmd.Flags().GetString("user")
			secret, _ := cmd.Flags().GetString("secret")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			if user == "" {
				return writeCommandError(cmd, errors.New("--user is required"))
			}

			verifier, err := auth.NewTokenVerifier(secret, ttl)
			if err != nil {
				return writeCommandError(cmd, err)
			}
			token, err := verifier.Mint(user)
			if err != nil {
				return writeCommandError(cmd, err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().String("user", "", "user id to put in the token")
	cmd.Flags().String("secret", envOr("JWT_SECRET", ""), "HS256 secret (default $JWT_SECRET)")
	cmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")

	return cmd
}

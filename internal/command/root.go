// Pulse - Activity Fan-out and Search Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/pulse

// Package command implements the pulsectl CLI.
package command

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const AppName = "pulsectl"

// Version is overwritten at build time using -ldflags.
var Version = "dev"

// NewRootCmd creates the root command.
func NewRootCmd(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:           AppName,
		Short:         "pulsectl - operate a Pulse deployment",
		Long:          "pulsectl publishes activity events, queries search and mints development tokens.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.Version = version
	cmd.SetVersionTemplate(AppName + " version {{.Version}}\n")
	cmd.SetOut(os.Stdout)
	cmd.SetErr(os.Stderr)

	cmd.AddCommand(
		NewPublishCmd(),
		NewSearchCmd(),
		NewTokenCmd(),
	)

	return cmd
}

func Execute() error {
	return NewRootCmd(Version).Execute()
}

func writeCommandError(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "Error: %s\n", err.Error())
	return err
}

// envOr returns the environment variable key, or fallback when unset.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Command nvim-help-bot is a Matrix bot that answers "!h <tag>" with a link
// to the Neovim help page defining that tag.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/nvim-help/nvim-help-bot/pkg/helpbot"
)

// These are filled at build time with -ldflags.
var (
	Tag       = "unknown"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var generate bool

	cmd := &cobra.Command{
		Use:     "nvim-help-bot [flags] <password|password-file>",
		Short:   "Matrix bot linking Neovim help tags",
		Version: fmt.Sprintf("%s (commit %s, built %s)", Tag, Commit, BuildTime),
		Args: func(cmd *cobra.Command, args []string) error {
			if generate {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if generate {
				if err := helpbot.GenerateConfig(configPath); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Wrote example config to %s\n", configPath)
				return nil
			}
			return run(cmd.Context(), configPath, args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "config.yaml", "Path to the config file")
	cmd.Flags().BoolVarP(&generate, "generate-config", "g", false, "Write the example config to --config and exit")
	return cmd
}

func run(ctx context.Context, configPath, passwordArg string) error {
	cfg, err := helpbot.LoadConfig(configPath)
	if err != nil {
		return err
	}
	log, err := cfg.Logging.Compile()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	password, err := helpbot.ResolvePassword(passwordArg)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := helpbot.NewHelpBot(cfg, password, *log)
	if err != nil {
		return err
	}
	if err = bot.Start(ctx); err != nil {
		return err
	}

	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				_, _ = bot.ReloadTags("sighup")
			}
		}
	}()

	if err = bot.Login(ctx); err != nil {
		return err
	}
	log.Info().Str("version", Tag).Msg("Starting sync loop")
	return bot.Run(ctx)
}

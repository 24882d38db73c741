// Package main is the entry point for the Cloudflare status bar core.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/sushaantu/CloudflareStatusBar/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := runCommand(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "err=%v\n", err)
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, args []string) error {
	rootFlags := ff.NewFlagSet("cfbar")
	configPath := rootFlags.StringLong("config", config.DefaultConfigPath, "path to config file")
	logLevel := rootFlags.StringLong("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd := &ff.Command{
		Name:  "cfbar",
		Usage: "cfbar [FLAGS] <subcommand>",
		Flags: rootFlags,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unknown command %q", args[0])
			}
			app, err := buildApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.runLoop(ctx)
		},
	}

	runFlags := ff.NewFlagSet("run").SetParent(rootFlags)
	rootCmd.Subcommands = append(rootCmd.Subcommands, &ff.Command{
		Name:      "run",
		Usage:     "cfbar run",
		ShortHelp: "watch Cloudflare state and print updates until interrupted",
		Flags:     runFlags,
		Exec: func(ctx context.Context, args []string) error {
			app, err := buildApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.runLoop(ctx)
		},
	})

	statusFlags := ff.NewFlagSet("status").SetParent(rootFlags)
	rootCmd.Subcommands = append(rootCmd.Subcommands, &ff.Command{
		Name:      "status",
		Usage:     "cfbar status",
		ShortHelp: "refresh once and print the account snapshot",
		Flags:     statusFlags,
		Exec: func(ctx context.Context, args []string) error {
			app, err := buildApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.runStatus(ctx)
		},
	})

	rootCmd.Subcommands = append(rootCmd.Subcommands,
		profileCommand(rootFlags, configPath, logLevel),
		accountCommand(rootFlags, configPath, logLevel),
		diagnosticsCommand(rootFlags, configPath, logLevel),
	)

	if err := rootCmd.ParseAndRun(ctx, args); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Command(rootCmd))
		return err
	}
	return nil
}

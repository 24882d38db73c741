package main

import (
	"context"
	"fmt"

	"github.com/peterbourgon/ff/v4"

	"github.com/sushaantu/CloudflareStatusBar/internal/prefs"
	"github.com/sushaantu/CloudflareStatusBar/internal/profile"
)

func profileCommand(rootFlags *ff.FlagSet, configPath, logLevel *string) *ff.Command {
	profileFlags := ff.NewFlagSet("profile").SetParent(rootFlags)
	cmd := &ff.Command{
		Name:      "profile",
		Usage:     "cfbar profile <list|add|remove|use>",
		ShortHelp: "manage stored API token profiles",
		Flags:     profileFlags,
	}

	listFlags := ff.NewFlagSet("list").SetParent(profileFlags)
	cmd.Subcommands = append(cmd.Subcommands, &ff.Command{
		Name:      "list",
		Usage:     "cfbar profile list",
		ShortHelp: "list stored profiles",
		Flags:     listFlags,
		Exec: func(ctx context.Context, args []string) error {
			app, err := buildApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.Close()

			profiles := app.profiles.List()
			if len(profiles) == 0 {
				fmt.Println("no profiles stored")
				return nil
			}
			activeID := app.profiles.ActiveID()
			for _, p := range profiles {
				marker := " "
				if p.ID == activeID {
					marker = "*"
				}
				fmt.Printf("%s %s  %s\n", marker, p.ID, p.Name)
			}
			return nil
		},
	})

	addFlags := ff.NewFlagSet("add").SetParent(profileFlags)
	addName := addFlags.StringLong("name", "", "profile display name (required)")
	addToken := addFlags.StringLong("token", "", "Cloudflare API token (required)")
	addUse := addFlags.BoolLong("use", "activate the profile after adding")
	cmd.Subcommands = append(cmd.Subcommands, &ff.Command{
		Name:      "add",
		Usage:     "cfbar profile add --name NAME --token TOKEN [--use]",
		ShortHelp: "store a new API token profile",
		Flags:     addFlags,
		Exec: func(ctx context.Context, args []string) error {
			if *addName == "" || *addToken == "" {
				return fmt.Errorf("--name and --token are required")
			}
			app, err := buildApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.Close()

			p, err := app.profiles.Add(profile.Profile{Name: *addName, APIToken: *addToken})
			if err != nil {
				return err
			}
			if *addUse {
				if err := app.profiles.SetActiveID(p.ID); err != nil {
					return err
				}
			}
			fmt.Printf("added profile %s (%s)\n", p.Name, p.ID)
			return nil
		},
	})

	removeFlags := ff.NewFlagSet("remove").SetParent(profileFlags)
	cmd.Subcommands = append(cmd.Subcommands, &ff.Command{
		Name:      "remove",
		Usage:     "cfbar profile remove PROFILE_ID",
		ShortHelp: "delete a stored profile",
		Flags:     removeFlags,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: cfbar profile remove PROFILE_ID")
			}
			app, err := buildApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.profiles.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("removed profile %s\n", args[0])
			return nil
		},
	})

	useFlags := ff.NewFlagSet("use").SetParent(profileFlags)
	cmd.Subcommands = append(cmd.Subcommands, &ff.Command{
		Name:      "use",
		Usage:     "cfbar profile use PROFILE_ID",
		ShortHelp: "make a stored profile the active one",
		Flags:     useFlags,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: cfbar profile use PROFILE_ID")
			}
			app, err := buildApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.Close()

			found := false
			for _, p := range app.profiles.List() {
				if p.ID == args[0] {
					found = true
					break
				}
			}
			if !found {
				return fmt.Errorf("no profile with ID %s", args[0])
			}
			if err := app.profiles.SetActiveID(args[0]); err != nil {
				return err
			}
			fmt.Printf("active profile is now %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func accountCommand(rootFlags *ff.FlagSet, configPath, logLevel *string) *ff.Command {
	accountFlags := ff.NewFlagSet("account").SetParent(rootFlags)
	cmd := &ff.Command{
		Name:      "account",
		Usage:     "cfbar account use ACCOUNT_ID",
		ShortHelp: "manage the selected Cloudflare account",
		Flags:     accountFlags,
	}

	useFlags := ff.NewFlagSet("use").SetParent(accountFlags)
	cmd.Subcommands = append(cmd.Subcommands, &ff.Command{
		Name:      "use",
		Usage:     "cfbar account use ACCOUNT_ID",
		ShortHelp: "persist the account the next refresh targets",
		Flags:     useFlags,
		Exec: func(ctx context.Context, args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("usage: cfbar account use ACCOUNT_ID")
			}
			app, err := buildApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.Close()

			if err := app.prefStore.Set(prefs.KeySelectedAccountID, args[0]); err != nil {
				return err
			}
			fmt.Printf("selected account %s\n", args[0])
			return nil
		},
	})

	return cmd
}

func diagnosticsCommand(rootFlags *ff.FlagSet, configPath, logLevel *string) *ff.Command {
	diagFlags := ff.NewFlagSet("diagnostics").SetParent(rootFlags)
	cmd := &ff.Command{
		Name:      "diagnostics",
		Usage:     "cfbar diagnostics <on|off>",
		ShortHelp: "toggle capture of undecodable API responses",
		Flags:     diagFlags,
	}

	set := func(enabled bool) func(context.Context, []string) error {
		return func(ctx context.Context, args []string) error {
			app, err := buildApp(ctx, *configPath, *logLevel)
			if err != nil {
				return err
			}
			defer app.Close()

			value := "false"
			if enabled {
				value = "true"
			}
			if err := app.prefStore.Set(prefs.KeyDiagnosticsEnable, value); err != nil {
				return err
			}
			if enabled {
				fmt.Printf("diagnostics enabled, logging to %s\n", app.diagLogger.Path())
			} else {
				fmt.Println("diagnostics disabled")
			}
			return nil
		}
	}

	onFlags := ff.NewFlagSet("on").SetParent(diagFlags)
	cmd.Subcommands = append(cmd.Subcommands, &ff.Command{
		Name:      "on",
		Usage:     "cfbar diagnostics on",
		ShortHelp: "enable diagnostics capture",
		Flags:     onFlags,
		Exec:      set(true),
	})

	offFlags := ff.NewFlagSet("off").SetParent(diagFlags)
	cmd.Subcommands = append(cmd.Subcommands, &ff.Command{
		Name:      "off",
		Usage:     "cfbar diagnostics off",
		ShortHelp: "disable diagnostics capture",
		Flags:     offFlags,
		Exec:      set(false),
	})

	return cmd
}

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"os"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/authgate/internal/auth"
	"github.com/holomush/authgate/pkg/errutil"
)

const defaultUserTimeout = 30 * time.Second

// ServiceOpener builds the auth service for administration commands. The
// returned func releases its store.
type ServiceOpener func(cmd *cobra.Command) (*auth.Service, func(), error)

// NewUserCmd creates the user administration command group. open may be nil.
func NewUserCmd(open ServiceOpener) *cobra.Command {
	if open == nil {
		open = openAdminService
	}

	cmd := &cobra.Command{
		Use:   "user",
		Short: "Administer user accounts",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seed-admin",
		Short: "Create the admin account from ADMIN_* environment variables",
		Long: `Create an admin from ADMIN_NAME, ADMIN_EMAIL, ADMIN_PHONE and
ADMIN_PASSWORD. An existing account with the same identifiers is left untouched.`,
		Args: cobra.NoArgs,
		RunE: withService(open, seedAdmin),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "disable <username>",
		Short: "Reject all logins for an account",
		Args:  cobra.ExactArgs(1),
		RunE: withService(open, func(ctx context.Context, cmd *cobra.Command, svc *auth.Service, args []string) error {
			if err := svc.SetActive(ctx, args[0], false); err != nil {
				return err
			}
			cmd.Printf("Disabled %s\n", args[0])
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "enable <username>",
		Short: "Allow logins for a disabled account",
		Args:  cobra.ExactArgs(1),
		RunE: withService(open, func(ctx context.Context, cmd *cobra.Command, svc *auth.Service, args []string) error {
			if err := svc.SetActive(ctx, args[0], true); err != nil {
				return err
			}
			cmd.Printf("Enabled %s\n", args[0])
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "unlock <username>",
		Short: "Clear failed login attempts and any lock",
		Args:  cobra.ExactArgs(1),
		RunE: withService(open, func(ctx context.Context, cmd *cobra.Command, svc *auth.Service, args []string) error {
			if err := svc.Unlock(ctx, args[0]); err != nil {
				return err
			}
			cmd.Printf("Unlocked %s\n", args[0])
			return nil
		}),
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "locked",
		Short: "List accounts that are currently locked",
		Args:  cobra.NoArgs,
		RunE: withService(open, func(ctx context.Context, cmd *cobra.Command, svc *auth.Service, _ []string) error {
			locked, err := svc.LockedAccounts(ctx)
			if err != nil {
				return err
			}
			if len(locked) == 0 {
				cmd.Println("No locked accounts")
				return nil
			}
			for _, a := range locked {
				cmd.Printf("%s\tlocked until %s (%s left)\n",
					a.Username, a.LockUntil.UTC().Format(time.RFC3339), a.Remaining.Round(time.Second))
			}
			return nil
		}),
	})

	return cmd
}

func withService(open ServiceOpener, fn func(context.Context, *cobra.Command, *auth.Service, []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		svc, release, err := open(cmd)
		if err != nil {
			return err
		}
		defer release()

		ctx, cancel := context.WithTimeout(cmd.Context(), defaultUserTimeout)
		defer cancel()
		return fn(ctx, cmd, svc, args)
	}
}

func openAdminService(cmd *cobra.Command) (*auth.Service, func(), error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	setupLogging(cfg)

	users, release, err := openStore(cmd.Context(), cfg)
	if err != nil {
		return nil, nil, err
	}
	svc, err := newService(cfg, users)
	if err != nil {
		release()
		return nil, nil, err
	}
	return svc, release, nil
}

func seedAdmin(ctx context.Context, cmd *cobra.Command, svc *auth.Service, _ []string) error {
	in := auth.RegisterInput{
		Username:    os.Getenv("ADMIN_NAME"),
		Email:       os.Getenv("ADMIN_EMAIL"),
		PhoneNumber: os.Getenv("ADMIN_PHONE"),
		Password:    os.Getenv("ADMIN_PASSWORD"),
	}
	if in.Username == "" || in.Email == "" || in.PhoneNumber == "" || in.Password == "" {
		return oops.Code("CONFIG_INVALID").
			Errorf("ADMIN_NAME, ADMIN_EMAIL, ADMIN_PHONE and ADMIN_PASSWORD are required")
	}

	identity, err := svc.RegisterAdmin(ctx, in)
	if errutil.Code(err) == auth.CodeConflict {
		cmd.Printf("Admin account already exists (%s), skipping\n", errutil.PublicMessage(err, "conflict"))
		return nil
	}
	if err != nil {
		return err
	}

	cmd.Printf("Created admin %s (%s)\n", identity.Username, identity.ID)
	return nil
}

package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-accounts/internal/config"
	"github.com/tendant/simple-accounts/pkg/auth"
	"github.com/tendant/simple-accounts/pkg/domain"
	"github.com/tendant/simple-accounts/pkg/repository"
)

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Parse()
			if err != nil {
				return err
			}
			logger := newLogger(cfg.LogLevel)

			db, err := openDB(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := repository.Migrate(commandContext(cmd), db)
			if err != nil {
				return err
			}
			logger.Info("migrations applied", "count", len(applied), "files", applied)
			return nil
		},
	}
}

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete expired and long-revoked refresh tokens once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := commandContext(cmd)
			cfg, acc, logger, cleanup, err := openAccounts(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			n, err := acc.Sweep(ctx, cfg.SweepRetention)
			if err != nil {
				return err
			}
			logger.Info("refresh tokens swept", "deleted", n)
			return nil
		},
	}
}

func createAdminCmd() *cobra.Command {
	var name, email string

	cmd := &cobra.Command{
		Use:   "create-admin",
		Short: "Create an administrator account",
		Long: `Create an administrator account. The password is read from the
ADMIN_PASSWORD environment variable so it does not end up in shell history.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			password := os.Getenv("ADMIN_PASSWORD")
			if email == "" || password == "" {
				return errors.New("--email and ADMIN_PASSWORD are required")
			}

			ctx := commandContext(cmd)
			_, acc, logger, cleanup, err := openAccounts(ctx)
			if err != nil {
				return err
			}
			defer cleanup()

			account, err := acc.Engine().CreateAccount(ctx, auth.RegisterInput{
				Name:     name,
				Email:    email,
				Password: password,
			}, domain.RoleAdmin)
			if err != nil {
				return fmt.Errorf("create admin: %w", err)
			}
			logger.Info("admin created", "account_id", account.ID, "email", account.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "Administrator", "Display name")
	cmd.Flags().StringVar(&email, "email", "", "Login email (required)")
	return cmd
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/tendant/simple-accounts/accounts"
	"github.com/tendant/simple-accounts/internal/config"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(commandContext(cmd))
		},
	}
}

func serve(parent context.Context) error {
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, acc, logger, cleanup, err := openAccounts(ctx)
	if err != nil {
		return err
	}
	defer cleanup()

	sentryEnabled, err := initSentry(cfg)
	if err != nil {
		return err
	}
	if sentryEnabled {
		defer flushSentry()
		logger.Info("sentry enabled", "environment", cfg.SentryEnvironment)
	}

	go acc.RunSweeper(ctx, cfg.SweepInterval, cfg.SweepRetention)

	router := acc.RouterWith(routerOptions(cfg, sentryEnabled))
	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
		return err
	}

	logger.Info("server stopped")
	return nil
}

func routerOptions(cfg *config.Config, sentryEnabled bool) accounts.RouterOptions {
	rl := cfg.RateLimit
	limits := accounts.RateLimits{
		Enabled: rl.Enabled,
		Auth:    accounts.RateLimit{Requests: rl.AuthRequestsPerMinute, WindowMinutes: rl.AuthWindowMinutes},
		Refresh: accounts.RateLimit{Requests: rl.RefreshRequestsPerMinute, WindowMinutes: rl.RefreshWindowMinutes},
		Profile: accounts.RateLimit{Requests: rl.ProfileRequestsPerMinute, WindowMinutes: rl.ProfileWindowMinutes},
	}
	sh := cfg.SecurityHeaders
	headers := accounts.SecurityHeaders{
		Enabled:            sh.Enabled,
		CSP:                sh.CSP,
		HSTSMaxAge:         sh.HSTSMaxAge,
		FrameOptions:       sh.FrameOptions,
		ContentTypeOptions: sh.ContentTypeOptions,
		XSSProtection:      sh.XSSProtection,
		ReferrerPolicy:     sh.ReferrerPolicy,
		PermissionsPolicy:  sh.PermissionsPolicy,
	}
	return accounts.RouterOptions{
		RateLimit:          limits,
		SecurityHeaders:    &headers,
		MaxRequestBodySize: cfg.Validation.MaxRequestBodySize,
		SentryEnabled:      sentryEnabled,
	}
}

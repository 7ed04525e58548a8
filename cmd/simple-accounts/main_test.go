package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-accounts/accounts"
	"github.com/tendant/simple-accounts/internal/config"
	"github.com/tendant/simple-accounts/pkg/auth"
)

func TestVersionCommand(t *testing.T) {
	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.True(t, strings.HasPrefix(out.String(), "simple-accounts version "))
}

func TestRootCommand_Subcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd().Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "sweep", "create-admin", "version"} {
		assert.True(t, names[want], want)
	}
}

func TestCreateAdmin_RequiresCredentials(t *testing.T) {
	t.Setenv("ADMIN_PASSWORD", "")
	cmd := rootCmd()
	cmd.SetArgs([]string{"create-admin", "--email", "root@example.com"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ADMIN_PASSWORD")
}

func TestAccountsConfig(t *testing.T) {
	cfg := &config.Config{
		JWTSecret:         "cmd-test-secret-0123456789abcdefgh",
		JWTIssuer:         "issuer",
		AccessTokenTTL:    time.Minute,
		RefreshTokenTTL:   time.Hour,
		MaxSessions:       3,
		HashAlgorithm:     "bcrypt",
		BcryptCost:        13,
		LockoutThreshold:  4,
		LockoutDuration:   time.Hour,
		MaxLockoutRetries: 7,
		RedisPrefix:       "acc",
		CookieSecure:      true,
	}
	cfg.PasswordPolicy.MinLength = 12

	ac := accountsConfig(cfg, nil, nil, nil)
	assert.Nil(t, ac.Redis)
	assert.Equal(t, auth.AlgorithmBcrypt, ac.Credentials.Algorithm)
	assert.Equal(t, 13, ac.Credentials.BcryptCost)
	assert.Equal(t, auth.LockoutPolicy{MaxAttempts: 4, Duration: time.Hour}, ac.Lockout)
	assert.Equal(t, 12, ac.PasswordPolicy.MinLength)
	assert.Equal(t, 3, ac.MaxSessionsPerAccount)
	assert.Equal(t, 7, ac.MaxLockoutRetries)
	assert.True(t, ac.CookieSecure)
	assert.True(t, ac.Metrics)

	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	defer rdb.Close()
	assert.NotNil(t, accountsConfig(cfg, nil, rdb, nil).Redis)
}

func TestRouterOptions(t *testing.T) {
	cfg := &config.Config{}
	cfg.SecurityHeaders.FrameOptions = "SAMEORIGIN"
	cfg.Validation.MaxRequestBodySize = 512
	cfg.RateLimit.Enabled = true
	cfg.RateLimit.AuthRequestsPerMinute = 5
	cfg.RateLimit.AuthWindowMinutes = 2

	opts := routerOptions(cfg, true)
	assert.Equal(t, "SAMEORIGIN", opts.SecurityHeaders.FrameOptions)
	assert.Equal(t, int64(512), opts.MaxRequestBodySize)
	assert.True(t, opts.RateLimit.Enabled)
	assert.Equal(t, accounts.RateLimit{Requests: 5, WindowMinutes: 2}, opts.RateLimit.Auth)
	assert.True(t, opts.SentryEnabled)
}

func TestOpenRedis_PostgresStore(t *testing.T) {
	rdb, err := openRedis(t.Context(), &config.Config{RefreshStore: "postgres"})
	require.NoError(t, err)
	assert.Nil(t, rdb)
}

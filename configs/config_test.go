package configs

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	for _, key := range []string{"APP_PORT", "BASE_URL", "STORAGE", "DB_PORT", "REDIS_PORT", "SESSION_SECRET", "COOKIE_SECURE", "GOOGLE_REDIRECT_URL", "LOG_DIR", "RATE_LIMIT_MAX"} {
		t.Setenv(key, "")
	}

	cfg := LoadConfig()
	assert.Equal(t, 3004, cfg.AppPort)
	assert.Equal(t, "http://localhost:3004", cfg.BaseURL)
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, 10501, cfg.DBPort)
	assert.Equal(t, 6379, cfg.RedisPort)
	assert.Equal(t, 30*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "http://localhost:3004/api/auth/google/callback", cfg.GoogleRedirectURL)
	assert.False(t, cfg.CookieSecure)
	assert.Equal(t, 100, cfg.RateLimitMax)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("GO_ENV", "test")
	t.Setenv("APP_PORT", "8080")
	t.Setenv("BASE_URL", "https://tasksync.example.com/")
	t.Setenv("STORAGE", "MEMORY")
	t.Setenv("COOKIE_SECURE", "true")
	t.Setenv("GOOGLE_CLIENT_ID", "id")
	t.Setenv("GOOGLE_CLIENT_SECRET", "secret")
	t.Setenv("GOOGLE_REDIRECT_URL", "")

	cfg := LoadConfig()
	assert.Equal(t, 8080, cfg.AppPort)
	assert.Equal(t, "https://tasksync.example.com", cfg.BaseURL)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.True(t, cfg.CookieSecure)
	assert.True(t, cfg.GoogleEnabled())
	assert.Equal(t, "https://tasksync.example.com/api/auth/google/callback", cfg.GoogleRedirectURL)
}

func TestCheckSessionSecret(t *testing.T) {
	tests := []struct {
		name    string
		storage string
		secret  string
		wantErr bool
	}{
		{"default secret with postgres", StoragePostgres, "secret", true},
		{"empty secret with postgres", StoragePostgres, "", true},
		{"default secret with memory", StorageMemory, "secret", false},
		{"real secret with postgres", StoragePostgres, "b9f1c6a0e2d44f", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Storage: tt.storage, SessionSecret: tt.secret}
			if tt.wantErr {
				assert.ErrorIs(t, cfg.CheckSessionSecret(), ErrInsecureSessionSecret)
			} else {
				assert.NoError(t, cfg.CheckSessionSecret())
			}
		})
	}

	t.Setenv("GO_ENV", "test")
	t.Setenv("SESSION_SECRET", "")
	t.Setenv("STORAGE", "")
	assert.ErrorIs(t, LoadConfig().CheckSessionSecret(), ErrInsecureSessionSecret)
}

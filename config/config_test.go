package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_EXPIRY", "")
	t.Setenv("CORS_ALLOWED_ORIGINS", "")

	cfg := LoadConfig()

	assert.Equal(t, DriverPostgres, cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 240*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "auth-events", cfg.MQ.Channel)
}

func TestLoadConfig_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "MONGO")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("ACCESS_TOKEN_SECRET", "access")
	t.Setenv("ACCESS_TOKEN_EXPIRY", "15m")
	t.Setenv("REFRESH_TOKEN_SECRET", "refresh")
	t.Setenv("REFRESH_TOKEN_EXPIRY", "72h")
	t.Setenv("STORAGE_BACKEND", "s3")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("COOKIE_SECURE", "false")

	cfg := LoadConfig()

	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, DriverMongo, cfg.Database.Driver)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.AccessTokenExpiry)
	assert.Equal(t, 72*time.Hour, cfg.Auth.RefreshTokenExpiry)
	assert.Equal(t, StorageS3, cfg.Storage.Backend)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.False(t, cfg.CookieSecure)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfig_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("ACCESS_TOKEN_EXPIRY", "soon")
	t.Setenv("COOKIE_SECURE", "maybe")

	cfg := LoadConfig()

	assert.Equal(t, time.Hour, cfg.Auth.AccessTokenExpiry)
	assert.True(t, cfg.CookieSecure)
}

func TestValidate(t *testing.T) {
	valid := Config{
		Database: DatabaseConfig{Driver: DriverPostgres},
		Auth: AuthConfig{
			AccessTokenSecret:  "a",
			AccessTokenExpiry:  time.Minute,
			RefreshTokenSecret: "r",
			RefreshTokenExpiry: time.Hour,
		},
		Storage: StorageConfig{Backend: StorageMinio},
	}
	require.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing access secret", func(c *Config) { c.Auth.AccessTokenSecret = "" }, "ACCESS_TOKEN_SECRET is required"},
		{"missing refresh secret", func(c *Config) { c.Auth.RefreshTokenSecret = " " }, "REFRESH_TOKEN_SECRET is required"},
		{"shared secret", func(c *Config) { c.Auth.RefreshTokenSecret = "a" }, "must differ"},
		{"zero expiry", func(c *Config) { c.Auth.AccessTokenExpiry = 0 }, "expiry must be positive"},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "DB_DRIVER"},
		{"unknown storage", func(c *Config) { c.Storage.Backend = "ftp" }, "STORAGE_BACKEND"},
		{"unknown mq", func(c *Config) { c.MQ.Backend = "kafka" }, "MQ_BACKEND"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

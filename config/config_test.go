package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"ENV", "SERVER_PORT", "DB_DRIVER", "DB_PORT", "JWT_SECRET", "JWT_ACCESS_TTL", "STORAGE_BACKEND", "MQ_BACKEND"} {
		t.Setenv(key, "")
	}
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_PORT", "5432")
	t.Setenv("JWT_ACCESS_TTL", "")

	cfg := LoadConfig()
	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Empty(t, cfg.JWT.Secret)
	assert.Equal(t, 5*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Empty(t, cfg.Storage.Backend)
	assert.Empty(t, cfg.MQ.Backend)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("ENV", "")
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_DRIVER", "sqlite3")
	t.Setenv("DB_USE_SSL", "true")
	t.Setenv("JWT_SECRET", "  s3cret ")
	t.Setenv("JWT_ACCESS_TTL", "15m")
	t.Setenv("JWT_REFRESH_TTL", "not-a-duration")
	t.Setenv("STORAGE_BACKEND", "MinIO")
	t.Setenv("MQ_BACKEND", "rabbitmq")

	cfg := LoadConfig()
	assert.Equal(t, 9090, cfg.ServerPort)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.True(t, cfg.Database.UseSSL)
	assert.Equal(t, "s3cret", cfg.JWT.Secret)
	assert.Equal(t, 15*time.Minute, cfg.JWT.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.JWT.RefreshTTL)
	assert.Equal(t, "minio", cfg.Storage.Backend)
	assert.Equal(t, "rabbitmq", cfg.MQ.Backend)
}

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StoreDriverMongo, cfg.StoreDriver)
	assert.Equal(t, "/socket", cfg.WSPath)
	assert.Equal(t, 10*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 4000, cfg.MaxMessageLength)
	assert.Empty(t, cfg.RedisAddr, "profile cache is off unless REDIS_ADDR is set")
	assert.Equal(t, []string{"http://localhost:3000", "http://localhost:3001"}, cfg.CORSOrigins)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_DRIVER", "SQLite")
	t.Setenv("WS_PATH", "ws")
	t.Setenv("OPERATION_TIMEOUT", "3s")
	t.Setenv("MESSAGE_RATE_LIMIT", "2")
	t.Setenv("CORS_ORIGINS", "https://a.example, ,https://b.example")

	cfg := LoadConfig()

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, StoreDriverSQLite, cfg.StoreDriver)
	assert.Equal(t, "/ws", cfg.WSPath)
	assert.Equal(t, 3*time.Second, cfg.OperationTimeout)
	assert.Equal(t, 2, cfg.MessageRateLimit)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
}

func TestLoadConfigInvalidValuesFallBack(t *testing.T) {
	t.Setenv("MAX_MESSAGE_LENGTH", "lots")
	t.Setenv("MESSAGE_RATE_WINDOW", "soon")

	cfg := LoadConfig()

	assert.Equal(t, 4000, cfg.MaxMessageLength)
	assert.Equal(t, 5*time.Second, cfg.MessageRateWindow)
}

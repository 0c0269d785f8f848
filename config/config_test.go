package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlData := `
server:
  port: "9090"
ingest:
  store_driver: memory
  retention_days: 30
kafka:
  topic: from-file
auth:
  jwt_secret: file-secret
`
	require.NoError(t, os.WriteFile(path, []byte(yamlData), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("INGEST_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "7070", cfg.Server.Port)
	assert.Equal(t, StoreDriverMemory, cfg.Ingest.StoreDriver)
	assert.Equal(t, 30, cfg.Ingest.RetentionDays)
	assert.Equal(t, 30*24*time.Hour, cfg.Ingest.Retention())
	assert.Equal(t, 3*time.Second, cfg.Ingest.WriteTimeout)
	assert.Equal(t, "from-file", cfg.Kafka.Topic)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{name: "bad port", key: "CLICKHOUSE_NATIVE_PORT", val: "nine"},
		{name: "bad retention", key: "RETENTION_DAYS", val: "x"},
		{name: "zero retention", key: "RETENTION_DAYS", val: "0"},
		{name: "bad driver", key: "STORE_DRIVER", val: "mongo"},
		{name: "bad mode", key: "INGEST_MODE", val: "carrier-pigeon"},
		{name: "bad timeout", key: "INGEST_TIMEOUT", val: "soon"},
		{name: "bad proxy", key: "TRUSTED_PROXIES", val: "10.0.0.0/8,lb.internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("JWT_SECRET_KEY", "secret")
			t.Setenv(tt.key, tt.val)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestValidate_RequiresSecret(t *testing.T) {
	cfg := Default()
	assert.Error(t, cfg.Validate())

	cfg.Auth.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())
}

func TestLoad_TrustedProxies(t *testing.T) {
	t.Setenv("JWT_SECRET_KEY", "secret")
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.168.1.10")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.1.10"}, cfg.Server.TrustedProxies)
	assert.Empty(t, Default().Server.TrustedProxies)
}

func TestOrigins(t *testing.T) {
	s := ServerConfig{FEOrigin: "http://a.test, http://b.test,"}
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, s.Origins())
}

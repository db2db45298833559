package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 24*time.Hour, cfg.UnbanInterval)
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http_addr: ":9000"
store_backend: memory
seed_file: /etc/fulfillment/seed.yaml
notify_transport: log
notify_workers: 2
unban_interval: 1h
kafka_brokers: [a:9092, b:9092]
`), 0o600))
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("HTTP_ADDR", ":9100")
	t.Setenv("NOTIFY_QUEUE_SIZE", "16")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9100", cfg.HTTPAddr)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, "/etc/fulfillment/seed.yaml", cfg.SeedFile)
	assert.Equal(t, "log", cfg.NotifyTransport)
	assert.Equal(t, 2, cfg.NotifyWorkers)
	assert.Equal(t, 16, cfg.NotifyQueueSize)
	assert.Equal(t, time.Hour, cfg.UnbanInterval)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.KafkaBrokers)
}

func TestLoad_RejectsBadValues(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("STORE_BACKEND", "sqlite")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("STORE_BACKEND", "memory")
	_, err = Load()
	assert.ErrorContains(t, err, "SEED_FILE")

	t.Setenv("SEED_FILE", "seed.yaml")
	t.Setenv("UNBAN_INTERVAL", "daily")
	_, err = Load()
	assert.Error(t, err)
}

func TestSplitCSV(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitCSV(" a, ,b ,"))
}

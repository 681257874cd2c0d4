package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_API_BASE", "MODEL_BACKEND",
		"KAFKA_BROKERS", "DATABASE_URL", "HTTP_ADDR", "LOG_LEVEL", "MAX_SYNC_ROWS",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaultsWithoutFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "gemini-2.5-flash-lite", cfg.Model.Name)
	assert.Equal(t, BackendREST, cfg.Model.Backend)
	assert.Equal(t, 3, cfg.Classifier.SampleCount)
	assert.True(t, cfg.Classifier.ParallelRounds)
	assert.Equal(t, 4, cfg.Batch.RowConcurrency)
	assert.Equal(t, 120, cfg.Batch.MaxRows)
	assert.False(t, cfg.Kafka.Enabled())
	assert.False(t, cfg.Store.Enabled())
}

func TestLoadYAMLThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  backend: genai
  name: gemini-2.5-pro
  timeout: 15s
classifier:
  sample_count: 12
  parallel_rounds: false
batch:
  row_concurrency: 0
  row_retries: 2
criteria:
  core_value: 개인화 추천
kafka:
  brokers: [kafka-1:9092]
log_level: debug
`), 0o600))

	t.Setenv("GEMINI_MODEL", "from-env")
	t.Setenv("KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("MAX_SYNC_ROWS", "50")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendGenAI, cfg.Model.Backend)
	assert.Equal(t, "from-env", cfg.Model.Name)
	assert.Equal(t, 15*time.Second, cfg.Model.Timeout)
	assert.Equal(t, 7, cfg.Classifier.SampleCount, "clamped")
	assert.False(t, cfg.Classifier.ParallelRounds)
	assert.Equal(t, 1, cfg.Batch.RowConcurrency, "clamped")
	assert.Equal(t, uint64(2), cfg.Batch.RowRetries)
	assert.Equal(t, 50, cfg.Batch.MaxRows)
	assert.Equal(t, "개인화 추천", cfg.Criteria.CoreValue)
	assert.Equal(t, []string{"a:9092", "b:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("model: [oops"), 0o600))
	_, err := Load(bad)
	assert.Error(t, err)

	backend := filepath.Join(dir, "backend.yaml")
	require.NoError(t, os.WriteFile(backend, []byte("model:\n  backend: grpc\n"), 0o600))
	_, err = Load(backend)
	assert.ErrorContains(t, err, "unknown backend")

	t.Setenv("MAX_SYNC_ROWS", "many")
	_, err = Load(filepath.Join(dir, "none.yaml"))
	assert.ErrorContains(t, err, "MAX_SYNC_ROWS")
}

func TestClamp(t *testing.T) {
	assert.Equal(t, 1, ClampSampleCount(-2))
	assert.Equal(t, 5, ClampSampleCount(5))
	assert.Equal(t, 7, ClampSampleCount(70))
	assert.Equal(t, 10, ClampRowConcurrency(11))
}

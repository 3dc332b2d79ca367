package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/figuregen-backend/internal/platform/objectstore"
)

var configEnv = []string{
	ConfigPathEnv, "PORT", "LOG_MODE", "CORS_ALLOWED_ORIGINS", "DATABASE_DRIVER", "SQLITE_PATH",
	"OPENAI_API_KEY", "OPENAI_ASSISTANT_ID", "SVG_ASSISTANT_ID",
	"GENERATION_TIMEOUT_SECONDS", "GENERATION_MAX_ATTEMPTS", "GENERATION_POLL_INTERVAL_MS",
	"WORKER_CONCURRENCY", "BATCH_WAVE_SIZE", "BATCH_WAVE_PAUSE_MS", "REDIS_ADDR",
	"OBJECT_STORAGE_MODE", "UPLOAD_DIR", "UPLOAD_GCS_BUCKET", "STORAGE_EMULATOR_HOST", "PUBLIC_BASE_URL",
	"METRICS_ENABLED", "OTEL_ENABLED", "OTEL_EXPORTER_OTLP_ENDPOINT", "OTEL_SAMPLER_RATIO",
}

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 300, cfg.Generation.TimeoutSeconds)
	assert.Equal(t, 3, cfg.Generation.MaxAttempts)
	assert.Equal(t, 4, cfg.Worker.Concurrency)
	assert.Equal(t, 8, cfg.Batch.WaveSize)
	assert.Equal(t, time.Second, cfg.WavePause())
	assert.Equal(t, 30*time.Minute, cfg.SlotLockTTL())
	assert.Equal(t, objectstore.ModeLocal, cfg.Storage.Mode)

	p := cfg.policy()
	assert.Equal(t, 5*time.Minute, p.Timeout)
	assert.Equal(t, 2*time.Second, p.PollInterval)

	assert.EqualError(t, cfg.RequireAssistant(), "missing required settings: OPENAI_API_KEY, OPENAI_ASSISTANT_ID, SVG_ASSISTANT_ID")
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearConfigEnv(t)
	path := filepath.Join(t.TempDir(), "figuregen.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
port: "9000"
corsOrigins: ["https://dash.example.com"]
database:
  driver: sqlite
  sqlitePath: /tmp/fg.db
openai:
  apiKey: sk-file
  instructionsAssistantId: asst_ins
  svgAssistantId: asst_svg
generation:
  maxAttempts: 5
batch:
  waveSize: 4
`), 0o600))
	t.Setenv(ConfigPathEnv, path)
	t.Setenv("BATCH_WAVE_SIZE", "2")
	t.Setenv("OPENAI_API_KEY", "sk-env")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":9000", cfg.Address())
	assert.Equal(t, []string{"https://dash.example.com"}, cfg.CORSOrigins)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/fg.db", cfg.Database.SQLitePath)
	assert.Equal(t, "sk-env", cfg.OpenAI.APIKey)
	assert.Equal(t, "asst_svg", cfg.OpenAI.SVGAssistantID)
	assert.Equal(t, 5, cfg.Generation.MaxAttempts)
	assert.Equal(t, 2, cfg.Batch.WaveSize)
	assert.NoError(t, cfg.RequireAssistant())
}

func TestLoadConfigRejectsBadStorage(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")

	_, err := LoadConfig()
	var cerr *objectstore.ConfigError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, objectstore.ConfigErrorMissingBucket, cerr.Code)
}

func TestLoadConfigMissingFile(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv(ConfigPathEnv, filepath.Join(t.TempDir(), "nope.yaml"))

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestArtifactBaseURL(t *testing.T) {
	cfg := Config{Port: "8080"}
	assert.Equal(t, "http://localhost:8080", cfg.artifactBaseURL())
	cfg.Storage.PublicBaseURL = "https://api.example.com"
	assert.Equal(t, "https://api.example.com", cfg.artifactBaseURL())
}

func TestLoadConfigObservability(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("METRICS_ENABLED", "true")
	t.Setenv("OTEL_ENABLED", "1")
	t.Setenv("OTEL_SAMPLER_RATIO", "0.5")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.MetricsEnabled)
	assert.True(t, cfg.Tracing.Enabled)
	assert.Equal(t, 0.5, cfg.Tracing.SampleRatio)
	assert.Empty(t, cfg.Tracing.Endpoint)
}

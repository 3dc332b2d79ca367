package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/figuregen-backend/internal/db"
	"github.com/yungbote/figuregen-backend/internal/observability"
	"github.com/yungbote/figuregen-backend/internal/platform/envutil"
	"github.com/yungbote/figuregen-backend/internal/platform/objectstore"
)

// ConfigPathEnv names an optional YAML file read before the environment.
const ConfigPathEnv = "FIGUREGEN_CONFIG"

type OpenAIConfig struct {
	APIKey                  string `yaml:"apiKey"`
	BaseURL                 string `yaml:"baseUrl"`
	InstructionsAssistantID string `yaml:"instructionsAssistantId"`
	SVGAssistantID          string `yaml:"svgAssistantId"`
}

type GenerationConfig struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
	MaxAttempts    int `yaml:"maxAttempts"`
	PollIntervalMS int `yaml:"pollIntervalMs"`
}

type WorkerConfig struct {
	Concurrency int `yaml:"concurrency"`
	QueueSize   int `yaml:"queueSize"`
}

type BatchConfig struct {
	WaveSize    int `yaml:"waveSize"`
	WavePauseMS int `yaml:"wavePauseMs"`
}

type Config struct {
	Port        string   `yaml:"port"`
	LogMode     string   `yaml:"logMode"`
	Environment string   `yaml:"environment"`
	CORSOrigins []string `yaml:"corsOrigins"`

	Database   db.Config          `yaml:"database"`
	OpenAI     OpenAIConfig       `yaml:"openai"`
	Generation GenerationConfig   `yaml:"generation"`
	Worker     WorkerConfig       `yaml:"worker"`
	Batch      BatchConfig        `yaml:"batch"`
	Storage    objectstore.Config `yaml:"storage"`

	RedisAddr          string `yaml:"redisAddr"`
	SlotLockTTLSeconds int    `yaml:"slotLockTtlSeconds"`

	Tracing        observability.TracingConfig `yaml:"tracing"`
	MetricsEnabled bool                        `yaml:"metricsEnabled"`
}

// LoadConfig reads the optional YAML file named by FIGUREGEN_CONFIG and
// overlays the environment on it. Environment values win.
func LoadConfig() (Config, error) {
	var file Config
	if path := envutil.String(ConfigPathEnv, ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &file); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	return overlayEnv(file)
}

func overlayEnv(base Config) (Config, error) {
	cfg := base
	cfg.Port = envutil.String("PORT", orDefault(cfg.Port, "8080"))
	cfg.LogMode = envutil.String("LOG_MODE", orDefault(cfg.LogMode, "development"))
	cfg.Environment = envutil.String("APP_ENV", orDefault(cfg.Environment, "local"))
	cfg.CORSOrigins = envutil.List("CORS_ALLOWED_ORIGINS", cfg.CORSOrigins)

	cfg.Database = db.ConfigFromEnv(cfg.Database)

	cfg.OpenAI.APIKey = envutil.String("OPENAI_API_KEY", cfg.OpenAI.APIKey)
	cfg.OpenAI.BaseURL = envutil.String("OPENAI_BASE_URL", cfg.OpenAI.BaseURL)
	cfg.OpenAI.InstructionsAssistantID = envutil.String("OPENAI_ASSISTANT_ID", cfg.OpenAI.InstructionsAssistantID)
	cfg.OpenAI.SVGAssistantID = envutil.String("SVG_ASSISTANT_ID", cfg.OpenAI.SVGAssistantID)

	cfg.Generation.TimeoutSeconds = envutil.Int("GENERATION_TIMEOUT_SECONDS", orDefaultInt(cfg.Generation.TimeoutSeconds, 300))
	cfg.Generation.MaxAttempts = envutil.Int("GENERATION_MAX_ATTEMPTS", orDefaultInt(cfg.Generation.MaxAttempts, 3))
	cfg.Generation.PollIntervalMS = envutil.Int("GENERATION_POLL_INTERVAL_MS", orDefaultInt(cfg.Generation.PollIntervalMS, 2000))

	cfg.Worker.Concurrency = envutil.Int("WORKER_CONCURRENCY", orDefaultInt(cfg.Worker.Concurrency, 4))
	cfg.Worker.QueueSize = envutil.Int("WORKER_QUEUE_SIZE", orDefaultInt(cfg.Worker.QueueSize, 256))

	cfg.Batch.WaveSize = envutil.Int("BATCH_WAVE_SIZE", orDefaultInt(cfg.Batch.WaveSize, 8))
	cfg.Batch.WavePauseMS = envutil.Int("BATCH_WAVE_PAUSE_MS", orDefaultInt(cfg.Batch.WavePauseMS, 1000))

	cfg.RedisAddr = envutil.String("REDIS_ADDR", cfg.RedisAddr)
	cfg.SlotLockTTLSeconds = envutil.Int("SLOT_LOCK_TTL_SECONDS", orDefaultInt(cfg.SlotLockTTLSeconds, 1800))

	cfg.Tracing = observability.TracingConfigFromEnv(cfg.Tracing)
	cfg.MetricsEnabled = envutil.Bool("METRICS_ENABLED", cfg.MetricsEnabled)

	storage, err := objectstore.ConfigFromEnv(cfg.Storage)
	if err != nil {
		return cfg, fmt.Errorf("object storage config: %w", err)
	}
	cfg.Storage = storage
	return cfg, nil
}

// RequireAssistant reports the settings needed to talk to the remote
// assistant. Only commands that generate call it.
func (c Config) RequireAssistant() error {
	var missing []string
	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}
	if strings.TrimSpace(c.OpenAI.InstructionsAssistantID) == "" {
		missing = append(missing, "OPENAI_ASSISTANT_ID")
	}
	if strings.TrimSpace(c.OpenAI.SVGAssistantID) == "" {
		missing = append(missing, "SVG_ASSISTANT_ID")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c Config) Address() string {
	return ":" + strings.TrimPrefix(c.Port, ":")
}

func (c Config) SlotLockTTL() time.Duration {
	return time.Duration(c.SlotLockTTLSeconds) * time.Second
}

func (c Config) WavePause() time.Duration {
	return time.Duration(c.Batch.WavePauseMS) * time.Millisecond
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func orDefaultInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

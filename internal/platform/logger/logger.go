package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is a key/value logger over zap. Values are passed through a field
// policy before they are written: secrets are masked and model text is cut
// down to a short head.
type Logger struct {
	SugaredLogger *zap.SugaredLogger
}

// New builds a logger for mode: "production" (JSON, info), "test" (console,
// warn) or anything else (console, debug). LOG_LEVEL overrides the level.
func New(mode string) (*Logger, error) {
	var cfg zap.Config
	level := zapcore.DebugLevel
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "prod", "production":
		cfg = zap.NewProductionConfig()
		level = zapcore.InfoLevel
	case "test":
		cfg = zap.NewDevelopmentConfig()
		level = zapcore.WarnLevel
	default:
		cfg = zap.NewDevelopmentConfig()
	}
	if raw := strings.TrimSpace(os.Getenv("LOG_LEVEL")); raw != "" {
		if err := level.Set(raw); err != nil {
			return nil, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	z, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, err
	}
	return &Logger{SugaredLogger: z.Sugar()}, nil
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{SugaredLogger: zap.NewNop().Sugar()}
}

func (l *Logger) Sync() { _ = l.SugaredLogger.Sync() }

func (l *Logger) Debug(msg string, kv ...interface{}) { l.SugaredLogger.Debugw(msg, applyPolicy(kv)...) }
func (l *Logger) Info(msg string, kv ...interface{})  { l.SugaredLogger.Infow(msg, applyPolicy(kv)...) }
func (l *Logger) Warn(msg string, kv ...interface{})  { l.SugaredLogger.Warnw(msg, applyPolicy(kv)...) }
func (l *Logger) Error(msg string, kv ...interface{}) { l.SugaredLogger.Errorw(msg, applyPolicy(kv)...) }
func (l *Logger) Fatal(msg string, kv ...interface{}) { l.SugaredLogger.Fatalw(msg, applyPolicy(kv)...) }

func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{SugaredLogger: l.SugaredLogger.With(applyPolicy(kv)...)}
}

// maxLoggedBody bounds how much of a prompt, reply or svg reaches the log.
const maxLoggedBody = 120

var secretMarkers = []string{"token", "authorization", "password", "secret", "cookie", "api_key", "apikey"}

var bodyKeys = map[string]bool{
	"prompt":        true,
	"reply":         true,
	"svg":           true,
	"instructions":  true,
	"cleaned_xhtml": true,
	"data_uri":      true,
}

var (
	policyOnce sync.Once
	policyOn   bool
)

// policyEnabled is read once; LOG_REDACTION_ENABLED=false turns the field
// policy off for local debugging.
func policyEnabled() bool {
	policyOnce.Do(func() {
		switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_REDACTION_ENABLED"))) {
		case "0", "false", "no", "off":
			policyOn = false
		default:
			policyOn = true
		}
	})
	return policyOn
}

func applyPolicy(kv []interface{}) []interface{} {
	if len(kv) == 0 || !policyEnabled() {
		return kv
	}
	out := make([]interface{}, len(kv))
	copy(out, kv)
	for i := 0; i+1 < len(out); i += 2 {
		key := fmt.Sprint(out[i])
		out[i] = key
		out[i+1] = fieldValue(strings.ToLower(key), out[i+1])
	}
	return out
}

func fieldValue(key string, val interface{}) interface{} {
	for _, m := range secretMarkers {
		if strings.Contains(key, m) {
			return "[REDACTED]"
		}
	}
	if bodyKeys[key] {
		return headOf(val)
	}
	if nested, ok := val.(map[string]interface{}); ok {
		masked := make(map[string]interface{}, len(nested))
		for k, v := range nested {
			masked[k] = fieldValue(strings.ToLower(k), v)
		}
		return masked
	}
	return val
}

func headOf(val interface{}) string {
	var s string
	switch t := val.(type) {
	case string:
		s = t
	case []byte:
		s = string(t)
	default:
		s = fmt.Sprint(val)
	}
	if len(s) <= maxLoggedBody {
		return s
	}
	return fmt.Sprintf("%s... (%d bytes)", s[:maxLoggedBody], len(s))
}

package objectstore

import (
	"errors"
	"testing"
)

func clearStorageEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"OBJECT_STORAGE_MODE", "STORAGE_EMULATOR_HOST", "UPLOAD_GCS_BUCKET", "UPLOAD_DIR", "UPLOAD_CDN_DOMAIN", "PUBLIC_BASE_URL"} {
		t.Setenv(k, "")
	}
}

func TestConfigFromEnvDefaultsToLocal(t *testing.T) {
	clearStorageEnv(t)

	cfg, err := ConfigFromEnv(Config{})
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Mode != ModeLocal {
		t.Fatalf("mode: want=%q got=%q", ModeLocal, cfg.Mode)
	}
	if cfg.LocalDir != "./uploads" {
		t.Fatalf("local dir: got=%q", cfg.LocalDir)
	}
}

func TestConfigFromEnvExplicitGCSNeedsBucket(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("OBJECT_STORAGE_MODE", "gcs")

	_, err := ConfigFromEnv(Config{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorMissingBucket {
		t.Fatalf("expected missing bucket error, got %v", err)
	}

	t.Setenv("UPLOAD_GCS_BUCKET", "figures")
	cfg, err := ConfigFromEnv(Config{})
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Mode != ModeGCS || cfg.Bucket != "figures" {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestConfigFromEnvCompatibilityFallback(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("STORAGE_EMULATOR_HOST", "http://fake-gcs:4443")
	t.Setenv("UPLOAD_GCS_BUCKET", "figures")

	cfg, err := ConfigFromEnv(Config{})
	if err != nil {
		t.Fatalf("ConfigFromEnv: %v", err)
	}
	if cfg.Mode != ModeGCSEmulator {
		t.Fatalf("mode: want=%q got=%q", ModeGCSEmulator, cfg.Mode)
	}
	if !cfg.CompatibilityFallback || cfg.ModeSource() != "compatibility_fallback" {
		t.Fatalf("compatibility fallback not reported")
	}
}

func TestConfigFromEnvInvalidMode(t *testing.T) {
	clearStorageEnv(t)
	t.Setenv("OBJECT_STORAGE_MODE", "s3")

	_, err := ConfigFromEnv(Config{})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorInvalidMode {
		t.Fatalf("expected invalid mode error, got %v", err)
	}
}

func TestValidateEmulatorHost(t *testing.T) {
	err := Validate(Config{Mode: ModeGCSEmulator, Bucket: "b", EmulatorHost: "fake-gcs:4443"})
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) || cfgErr.Code != ConfigErrorInvalidEmulatorHost {
		t.Fatalf("expected invalid emulator host error, got %v", err)
	}
	if err := Validate(Config{Mode: ModeGCSEmulator, Bucket: "b"}); err == nil {
		t.Fatalf("expected missing emulator host error")
	}
}

func TestValidatePublicBaseURL(t *testing.T) {
	if err := Validate(Config{Mode: ModeLocal, PublicBaseURL: "localhost:8080"}); err == nil {
		t.Fatalf("expected invalid public base url error")
	}
}

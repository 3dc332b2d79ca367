package observability

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseHeaders(t *testing.T) {
	assert.Equal(t, map[string]string{"api-key": "abc", "x-team": "fig"}, parseHeaders(" api-key = abc ,broken,x-team=fig,=v"))
	assert.Nil(t, parseHeaders(""))
	assert.Nil(t, parseHeaders("novalue="))
}

func TestTracingConfigFromEnv(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "true")
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "collector:4318")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "")
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "")
	t.Setenv("OTEL_SAMPLER_RATIO", "2")

	cfg := TracingConfigFromEnv(TracingConfig{Insecure: true, Headers: map[string]string{"a": "b"}})
	assert.True(t, cfg.Enabled)
	assert.Equal(t, "collector:4318", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, map[string]string{"a": "b"}, cfg.Headers)
	assert.Equal(t, 1.0, cfg.sampleRatio())

	assert.Equal(t, defaultSampleRatio, TracingConfig{}.sampleRatio())
	assert.Equal(t, 0.5, TracingConfig{SampleRatio: 0.5}.sampleRatio())
}

package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	envVars := []string{
		"SERVICE_PRINCIPAL", "HTTP_PORT", "LOG_LEVEL",
		"STT_PROVIDER", "STT_LANGUAGE_CODE", "STT_SAMPLE_RATE_HZ",
		"STT_INTERIM_RESULTS", "AUDIO_CHUNK_BYTES",
		"SUMMARY_TIMEOUT", "KAFKA_ENABLED", "KAFKA_PRINCIPAL",
	}
	for _, v := range envVars {
		os.Unsetenv(v)
	}

	cfg := Load()

	if cfg.Service.Principal != "svc-warm-transfer" {
		t.Errorf("expected default principal 'svc-warm-transfer', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "8080" {
		t.Errorf("expected default port '8080', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Audio.Provider != "mock" {
		t.Errorf("expected default STT provider 'mock', got %s", cfg.Audio.Provider)
	}
	if cfg.Audio.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate 16000, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Audio.ChunkBytes != 3200 {
		t.Errorf("expected default chunk size 3200, got %d", cfg.Audio.ChunkBytes)
	}
	if cfg.Audio.InterimResults != true {
		t.Errorf("expected default interim results true, got %v", cfg.Audio.InterimResults)
	}
	if cfg.Summary.Timeout != 30*time.Second {
		t.Errorf("expected default summary timeout 30s, got %v", cfg.Summary.Timeout)
	}
	if cfg.Kafka.Enabled {
		t.Error("expected Kafka disabled by default")
	}
	if cfg.Observability.LogLevel != "info" {
		t.Errorf("expected default log level 'info', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "custom-principal")
	os.Setenv("HTTP_PORT", "9999")
	os.Setenv("LOG_LEVEL", "debug")
	os.Setenv("STT_PROVIDER", "google")
	os.Setenv("STT_SAMPLE_RATE_HZ", "8000")
	os.Setenv("AUDIO_CHUNK_BYTES", "6400")
	os.Setenv("STT_INTERIM_RESULTS", "false")
	os.Setenv("SUMMARY_TIMEOUT", "10s")
	os.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092")

	defer func() {
		for _, v := range []string{
			"SERVICE_PRINCIPAL", "HTTP_PORT", "LOG_LEVEL", "STT_PROVIDER",
			"STT_SAMPLE_RATE_HZ", "AUDIO_CHUNK_BYTES", "STT_INTERIM_RESULTS",
			"SUMMARY_TIMEOUT", "KAFKA_BROKERS",
		} {
			os.Unsetenv(v)
		}
	}()

	cfg := Load()

	if cfg.Service.Principal != "custom-principal" {
		t.Errorf("expected principal 'custom-principal', got %s", cfg.Service.Principal)
	}
	if cfg.Service.HTTPPort != "9999" {
		t.Errorf("expected port '9999', got %s", cfg.Service.HTTPPort)
	}
	if cfg.Audio.Provider != "google" {
		t.Errorf("expected STT provider 'google', got %s", cfg.Audio.Provider)
	}
	if cfg.Audio.SampleRateHz != 8000 {
		t.Errorf("expected sample rate 8000, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Audio.ChunkBytes != 6400 {
		t.Errorf("expected chunk size 6400, got %d", cfg.Audio.ChunkBytes)
	}
	if cfg.Audio.InterimResults != false {
		t.Errorf("expected interim results false, got %v", cfg.Audio.InterimResults)
	}
	if cfg.Summary.Timeout != 10*time.Second {
		t.Errorf("expected summary timeout 10s, got %v", cfg.Summary.Timeout)
	}
	if len(cfg.Kafka.Brokers) != 2 || cfg.Kafka.Brokers[1] != "k2:9092" {
		t.Errorf("expected trimmed broker list, got %v", cfg.Kafka.Brokers)
	}
	if cfg.Observability.LogLevel != "debug" {
		t.Errorf("expected log level 'debug', got %s", cfg.Observability.LogLevel)
	}
}

func TestLoad_InvalidValues_FallbackToDefaults(t *testing.T) {
	os.Setenv("STT_SAMPLE_RATE_HZ", "not-a-number")
	os.Setenv("STT_INTERIM_RESULTS", "invalid")
	os.Setenv("AUDIO_CHUNK_BYTES", "invalid")
	os.Setenv("SUMMARY_TIMEOUT", "invalid")

	defer func() {
		os.Unsetenv("STT_SAMPLE_RATE_HZ")
		os.Unsetenv("STT_INTERIM_RESULTS")
		os.Unsetenv("AUDIO_CHUNK_BYTES")
		os.Unsetenv("SUMMARY_TIMEOUT")
	}()

	cfg := Load()

	if cfg.Audio.SampleRateHz != 16000 {
		t.Errorf("expected default sample rate on invalid input, got %d", cfg.Audio.SampleRateHz)
	}
	if cfg.Audio.InterimResults != true {
		t.Errorf("expected default interim results on invalid input, got %v", cfg.Audio.InterimResults)
	}
	if cfg.Audio.ChunkBytes != 3200 {
		t.Errorf("expected default chunk size on invalid input, got %d", cfg.Audio.ChunkBytes)
	}
	if cfg.Summary.Timeout != 30*time.Second {
		t.Errorf("expected default summary timeout on invalid input, got %v", cfg.Summary.Timeout)
	}
}

func TestLoad_KafkaPrincipal_FallsBackToServicePrincipal(t *testing.T) {
	os.Setenv("SERVICE_PRINCIPAL", "my-service")
	os.Unsetenv("KAFKA_PRINCIPAL")

	defer os.Unsetenv("SERVICE_PRINCIPAL")

	cfg := Load()

	if cfg.Kafka.Principal != "my-service" {
		t.Errorf("expected Kafka principal to fall back to service principal, got %s", cfg.Kafka.Principal)
	}
}

func TestEnvOrDefaultBool(t *testing.T) {
	tests := []struct {
		name     string
		envValue string
		def      bool
		expected bool
	}{
		{"true string", "true", false, true},
		{"false string", "false", true, false},
		{"1", "1", false, true},
		{"0", "0", true, false},
		{"TRUE uppercase", "TRUE", false, true},
		{"invalid", "invalid", true, true},
		{"empty", "", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key := "TEST_BOOL_VAR"
			if tt.envValue != "" {
				os.Setenv(key, tt.envValue)
			} else {
				os.Unsetenv(key)
			}
			defer os.Unsetenv(key)

			got := envOrDefaultBool(key, tt.def)
			if got != tt.expected {
				t.Errorf("envOrDefaultBool(%s, %v) = %v, want %v", tt.envValue, tt.def, got, tt.expected)
			}
		})
	}
}

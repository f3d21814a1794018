// Package config loads service configuration from the environment.
// Invalid values fall back to defaults rather than failing startup.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Configuration holds all runtime configuration for the service.
type Configuration struct {
	Service       ServiceConfig
	Audio         AudioConfig
	LiveKit       LiveKitConfig
	Twilio        TwilioConfig
	Summary       SummaryConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
	Directory     DirectoryConfig
}

// ServiceConfig identifies the service and its listen addresses.
type ServiceConfig struct {
	Principal string
	HTTPPort  string
	ObsAddr   string
	Env       string
}

// AudioConfig governs audio buffering and the STT provider.
type AudioConfig struct {
	Provider       string // "google" or "mock"
	LanguageCode   string
	SampleRateHz   int
	ChunkBytes     int // bytes buffered before dispatch upstream
	InterimResults bool
}

// LiveKitConfig holds media platform credentials.
type LiveKitConfig struct {
	URL       string
	APIKey    string
	APISecret string
	TokenTTL  time.Duration
}

// TwilioConfig holds telephony gateway credentials.
type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	FromNumber     string
	TargetPhone    string
	WebhookBaseURL string
}

// SummaryConfig governs the LLM summarization client.
type SummaryConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// KafkaConfig governs event publishing. Disabled by default; the
// publisher then runs in log-only mode.
type KafkaConfig struct {
	Enabled         bool
	Brokers         []string
	TopicAssignment string
	TopicTransfer   string
	TopicTranscript string
	Principal       string
}

// ObservabilityConfig holds logging settings.
type ObservabilityConfig struct {
	LogLevel string
}

// DirectoryConfig points at the agent directory fixture.
type DirectoryConfig struct {
	Path string
}

// Load reads configuration from the environment, applying defaults.
func Load() *Configuration {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-warm-transfer")

	return &Configuration{
		Service: ServiceConfig{
			Principal: principal,
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
			ObsAddr:   envOrDefault("OBSERVABILITY_ADDR", ":9090"),
			Env:       envOrDefault("ENV", "prod"),
		},
		Audio: AudioConfig{
			Provider:       envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:   envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:   envOrDefaultInt("STT_SAMPLE_RATE_HZ", 16000),
			ChunkBytes:     envOrDefaultInt("AUDIO_CHUNK_BYTES", 3200),
			InterimResults: envOrDefaultBool("STT_INTERIM_RESULTS", true),
		},
		LiveKit: LiveKitConfig{
			URL:       envOrDefault("LIVEKIT_URL", "http://localhost:7880"),
			APIKey:    os.Getenv("LIVEKIT_API_KEY"),
			APISecret: os.Getenv("LIVEKIT_API_SECRET"),
			TokenTTL:  envOrDefaultDuration("LIVEKIT_TOKEN_TTL", 6*time.Hour),
		},
		Twilio: TwilioConfig{
			AccountSID:     os.Getenv("TWILIO_ACCOUNT_SID"),
			AuthToken:      os.Getenv("TWILIO_AUTH_TOKEN"),
			FromNumber:     os.Getenv("TWILIO_PHONE_NUMBER"),
			TargetPhone:    envOrDefault("TWILIO_TARGET_PHONE", "+1234567890"),
			WebhookBaseURL: envOrDefault("WEBHOOK_BASE_URL", "https://yourdomain.com"),
		},
		Summary: SummaryConfig{
			APIKey:  os.Getenv("OPENAI_API_KEY"),
			BaseURL: os.Getenv("OPENAI_BASE_URL"),
			Model:   envOrDefault("SUMMARY_MODEL", "gpt-3.5-turbo"),
			Timeout: envOrDefaultDuration("SUMMARY_TIMEOUT", 30*time.Second),
		},
		Kafka: KafkaConfig{
			Enabled:         envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:         envOrDefaultSlice("KAFKA_BROKERS", nil),
			TopicAssignment: envOrDefault("KAFKA_TOPIC_ASSIGNMENT", "support.queue.assignment"),
			TopicTransfer:   envOrDefault("KAFKA_TOPIC_TRANSFER", "support.transfer.stage"),
			TopicTranscript: envOrDefault("KAFKA_TOPIC_TRANSCRIPT", "support.transcript.final"),
			Principal:       envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel: envOrDefault("LOG_LEVEL", "info"),
		},
		Directory: DirectoryConfig{
			Path: os.Getenv("AGENT_DIRECTORY_PATH"),
		},
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envOrDefaultBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(strings.ToLower(v))
	if err != nil {
		return def
	}
	return b
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func envOrDefaultSlice(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

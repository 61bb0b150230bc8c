package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the notebook-saver service.
type Config struct {
	Port      int
	Version   string
	Extractor ExtractorConfig
	Store     StoreConfig
	Handoff   HandoffConfig
	Telemetry TelemetryConfig
	Notify    NotifyConfig
}

// ExtractorConfig selects and parameterizes the text extraction backend.
// It is immutable for the duration of one extraction call.
type ExtractorConfig struct {
	// Kind is "cloud" or "local".
	Kind         string
	BaseURL      string
	APIKey       string
	Model        string
	Prompt       string
	TokenBudget  int
	MaxDimension int
	JPEGQuality  int
	OCRLanguages []string
}

type StoreConfig struct {
	// Backend is "sqlite", "file" or "memory".
	Backend string
	DataDir string
}

type HandoffConfig struct {
	// Scheme of the hand-off target application, e.g. "bear".
	Scheme string
	// OpenCommand invokes a URL on the host; empty selects the platform default.
	OpenCommand string
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type NotifyConfig struct {
	WebhookURL    string
	WebhookSecret string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() *Config {
	return &Config{
		Port:    envInt("NOTEBOOK_PORT", 8080),
		Version: envStr("NOTEBOOK_VERSION", "0.2.0"),
		Extractor: ExtractorConfig{
			Kind:         envStr("NOTEBOOK_EXTRACTOR", "cloud"),
			BaseURL:      envStr("GEMINI_API_ENDPOINT", "https://generativelanguage.googleapis.com/v1beta"),
			APIKey:       envStr("GEMINI_API_KEY", ""),
			Model:        envStr("NOTEBOOK_MODEL", ""),
			Prompt:       envStr("NOTEBOOK_PROMPT", "Transcribe all text in this image. Return only the transcribed text."),
			TokenBudget:  envInt("NOTEBOOK_TOKEN_BUDGET", 0),
			MaxDimension: envInt("NOTEBOOK_MAX_DIMENSION", 1568),
			JPEGQuality:  envInt("NOTEBOOK_JPEG_QUALITY", 80),
			OCRLanguages: envList("NOTEBOOK_OCR_LANGUAGES", []string{"eng"}),
		},
		Store: StoreConfig{
			Backend: envStr("NOTEBOOK_STORE", "sqlite"),
			DataDir: envStr("NOTEBOOK_DATA_DIR", defaultDataDir()),
		},
		Handoff: HandoffConfig{
			Scheme:      envStr("NOTEBOOK_HANDOFF_SCHEME", "bear"),
			OpenCommand: envStr("NOTEBOOK_OPEN_COMMAND", ""),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "notebook-saver"),
		},
		Notify: NotifyConfig{
			WebhookURL:    envStr("NOTEBOOK_WEBHOOK_URL", ""),
			WebhookSecret: envStr("NOTEBOOK_WEBHOOK_SECRET", ""),
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".notebook-saver"
	}
	return home + "/.notebook-saver"
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return fallback
}

package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Recognition provider selectors.
const (
	STTProviderHTTP     = "http"
	STTProviderDeepgram = "deepgram"
)

// Config holds all configuration for the dialogue gateway service.
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Session configuration
	HistoryMaxTurns   int `envconfig:"HISTORY_MAX_TURNS" default:"6"`    // Bound on retained conversation turns
	CaptureSampleRate int `envconfig:"CAPTURE_SAMPLE_RATE" default:"16000"` // Sample rate of inbound PCM (Hz)
	OutputSampleRate  int `envconfig:"OUTPUT_SAMPLE_RATE" default:"16000"`  // Sample rate of synthesized audio sent to clients (Hz)

	// Speech recognition configuration
	STTProvider      string `envconfig:"STT_PROVIDER" default:"http"` // http or deepgram
	STTURL           string `envconfig:"STT_URL" default:"http://localhost:9000/recognize"`
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"`
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`

	// Response generation configuration. Empty RESPONDER_URL selects the
	// built-in rule-based responder.
	ResponderURL     string `envconfig:"RESPONDER_URL" default:""`
	ResponderTimeout int    `envconfig:"RESPONDER_TIMEOUT" default:"30"` // seconds

	// Speech synthesis configuration
	TTSURL        string `envconfig:"TTS_URL" default:"http://localhost:9100/synthesize"`
	TTSVoice      string `envconfig:"TTS_VOICE" default:"default"`
	TTSSampleRate int    `envconfig:"TTS_SAMPLE_RATE" default:"16000"` // Sample rate of PCM returned by the TTS endpoint (Hz)
	TTSTimeout    int    `envconfig:"TTS_TIMEOUT" default:"30"`        // seconds

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RetryMaxAttempts           int `envconfig:"RETRY_MAX_ATTEMPTS" default:"3"`             // Maximum retry attempts
	RetryInitialBackoff        int `envconfig:"RETRY_INITIAL_BACKOFF" default:"100"`        // Initial backoff in milliseconds
	ReconnectMaxAttempts       int `envconfig:"RECONNECT_MAX_ATTEMPTS" default:"5"`         // Maximum reconnection attempts
	ReconnectBackoff           int `envconfig:"RECONNECT_BACKOFF" default:"1000"`           // Reconnection backoff in milliseconds

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables, loading a .env file
// first when one exists.
func Load() (*Config, error) {
	// Ignore error if .env does not exist
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load a .env file (useful for containers).
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.STTProvider {
	case STTProviderHTTP:
		if c.STTURL == "" {
			return fmt.Errorf("STT_URL is required when STT_PROVIDER is %q", STTProviderHTTP)
		}
	case STTProviderDeepgram:
		if c.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when STT_PROVIDER is %q", STTProviderDeepgram)
		}
	default:
		return fmt.Errorf("unknown STT_PROVIDER %q", c.STTProvider)
	}

	if c.TTSURL == "" {
		return fmt.Errorf("TTS_URL is required")
	}
	if c.CaptureSampleRate <= 0 || c.OutputSampleRate <= 0 || c.TTSSampleRate <= 0 {
		return fmt.Errorf("sample rates must be positive")
	}

	return nil
}

// GetEnv returns the value of an environment variable or a default value.
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

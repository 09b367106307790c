package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all configuration for the coach gateway service
type Config struct {
	// Server configuration
	Port string `envconfig:"PORT" default:"8080"`

	// Deepgram streaming STT configuration (the "native" transcription tier).
	// Leave DEEPGRAM_API_KEY empty to disable the tier entirely; the speech
	// pipeline then starts its probe at the server-batch tier.
	DeepgramAPIKey   string `envconfig:"DEEPGRAM_API_KEY" default:""`
	DeepgramModel    string `envconfig:"DEEPGRAM_MODEL" default:"nova-2"` // nova-2, enhanced, base
	DeepgramLanguage string `envconfig:"DEEPGRAM_LANGUAGE" default:"en"`  // Language code (en, es, fr, etc.)

	// Whisper batch STT server (the "server_batch" transcription tier)
	WhisperURL            string `envconfig:"WHISPER_URL" default:"http://localhost:5000/stt"`
	WhisperHealthTimeout  int    `envconfig:"WHISPER_HEALTH_TIMEOUT" default:"3000"`  // Health probe timeout in milliseconds
	WhisperMaxLatency     int    `envconfig:"WHISPER_MAX_LATENCY" default:"500"`      // Max acceptable probe round-trip in milliseconds
	WhisperChunkDuration  int    `envconfig:"WHISPER_CHUNK_DURATION" default:"2000"`  // Audio chunk duration in milliseconds
	WhisperRequestTimeout int    `envconfig:"WHISPER_REQUEST_TIMEOUT" default:"5000"` // Per-chunk transcription timeout in milliseconds

	// Audio processing configuration
	AudioSampleRate    int     `envconfig:"AUDIO_SAMPLE_RATE" default:"16000"`    // Client PCM sample rate in Hz
	AudioBufferSize    int     `envconfig:"AUDIO_BUFFER_SIZE" default:"131072"`   // Ring buffer size in bytes
	VADEnergyThreshold float64 `envconfig:"VAD_ENERGY_THRESHOLD" default:"300.0"` // RMS energy threshold for speech gating
	VADSilenceFrames   int     `envconfig:"VAD_SILENCE_FRAMES" default:"10"`      // Frames of silence to mark speech end

	// Analysis configuration
	CalibrationSamples int `envconfig:"CALIBRATION_SAMPLES" default:"30"`    // Head-pose frames collected before offsets freeze
	EngagementWindowMs int `envconfig:"ENGAGEMENT_WINDOW_MS" default:"2000"` // Trailing window for the engagement average
	EnergyIntervalSec  int `envconfig:"ENERGY_INTERVAL_SEC" default:"30"`    // Seconds between energy timeline samples
	SnapshotIntervalMs int `envconfig:"SNAPSHOT_INTERVAL_MS" default:"250"`  // Cadence for metrics snapshots pushed to the client

	// Tuning profile (optional YAML file overriding thresholds and the
	// filler vocabulary; compiled-in defaults are used when unset)
	TuningProfile string `envconfig:"TUNING_PROFILE" default:""`

	// Resilience configuration
	CircuitBreakerMaxFailures  int `envconfig:"CIRCUIT_BREAKER_MAX_FAILURES" default:"5"`   // Failures before opening circuit
	CircuitBreakerResetTimeout int `envconfig:"CIRCUIT_BREAKER_RESET_TIMEOUT" default:"30"` // Seconds before attempting recovery
	RestartBackoff             int `envconfig:"RESTART_BACKOFF" default:"100"`              // Backend auto-restart backoff in milliseconds
	RestartMaxAttempts         int `envconfig:"RESTART_MAX_ATTEMPTS" default:"5"`           // Restart attempts before failing over

	// Observability configuration
	LogLevel       string `envconfig:"LOG_LEVEL" default:"info"`       // Log level: debug, info, warn, error
	LogPretty      bool   `envconfig:"LOG_PRETTY" default:"false"`     // Pretty print logs (for development)
	MetricsEnabled bool   `envconfig:"METRICS_ENABLED" default:"true"` // Enable Prometheus metrics
}

// Load reads configuration from environment variables
// It first attempts to load from .env file if it exists, then from environment
func Load() (*Config, error) {
	// Try to load .env file (ignore error if it doesn't exist)
	_ = godotenv.Load()

	return LoadFromEnv()
}

// LoadFromEnv loads configuration directly from environment variables
// without attempting to load .env file (useful for containerized deployments)
func LoadFromEnv() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if cfg.CalibrationSamples <= 0 {
		return nil, fmt.Errorf("CALIBRATION_SAMPLES must be positive")
	}
	if cfg.EngagementWindowMs <= 0 {
		return nil, fmt.Errorf("ENGAGEMENT_WINDOW_MS must be positive")
	}
	if cfg.WhisperChunkDuration <= 0 {
		return nil, fmt.Errorf("WHISPER_CHUNK_DURATION must be positive")
	}

	return &cfg, nil
}

// GetEnv returns the value of an environment variable or a default value
func GetEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Expected default Port '8080', got '%s'", cfg.Port)
	}

	if cfg.DeepgramModel != "nova-2" {
		t.Errorf("Expected default DeepgramModel 'nova-2', got '%s'", cfg.DeepgramModel)
	}

	if cfg.WhisperURL != "http://localhost:5000/stt" {
		t.Errorf("Expected default WhisperURL 'http://localhost:5000/stt', got '%s'", cfg.WhisperURL)
	}

	if cfg.WhisperHealthTimeout != 3000 {
		t.Errorf("Expected default WhisperHealthTimeout 3000, got %d", cfg.WhisperHealthTimeout)
	}

	if cfg.WhisperMaxLatency != 500 {
		t.Errorf("Expected default WhisperMaxLatency 500, got %d", cfg.WhisperMaxLatency)
	}

	if cfg.WhisperChunkDuration != 2000 {
		t.Errorf("Expected default WhisperChunkDuration 2000, got %d", cfg.WhisperChunkDuration)
	}

	if cfg.CalibrationSamples != 30 {
		t.Errorf("Expected default CalibrationSamples 30, got %d", cfg.CalibrationSamples)
	}

	if cfg.EngagementWindowMs != 2000 {
		t.Errorf("Expected default EngagementWindowMs 2000, got %d", cfg.EngagementWindowMs)
	}

	if cfg.EnergyIntervalSec != 30 {
		t.Errorf("Expected default EnergyIntervalSec 30, got %d", cfg.EnergyIntervalSec)
	}
}

func TestLoad_Overrides(t *testing.T) {
	os.Setenv("DEEPGRAM_API_KEY", "test-deepgram-key")
	os.Setenv("WHISPER_URL", "http://stt.internal:9000/stt")
	defer os.Unsetenv("DEEPGRAM_API_KEY")
	defer os.Unsetenv("WHISPER_URL")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DeepgramAPIKey != "test-deepgram-key" {
		t.Errorf("Expected DeepgramAPIKey 'test-deepgram-key', got '%s'", cfg.DeepgramAPIKey)
	}

	if cfg.WhisperURL != "http://stt.internal:9000/stt" {
		t.Errorf("Expected WhisperURL override, got '%s'", cfg.WhisperURL)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	os.Setenv("CALIBRATION_SAMPLES", "0")
	defer os.Unsetenv("CALIBRATION_SAMPLES")

	_, err := Load()
	if err == nil {
		t.Error("Expected error for zero CALIBRATION_SAMPLES")
	}
}

func TestConfig_ResilienceDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.CircuitBreakerMaxFailures != 5 {
		t.Errorf("Expected default CircuitBreakerMaxFailures 5, got %d", cfg.CircuitBreakerMaxFailures)
	}

	if cfg.CircuitBreakerResetTimeout != 30 {
		t.Errorf("Expected default CircuitBreakerResetTimeout 30, got %d", cfg.CircuitBreakerResetTimeout)
	}

	if cfg.RestartBackoff != 100 {
		t.Errorf("Expected default RestartBackoff 100, got %d", cfg.RestartBackoff)
	}

	if cfg.RestartMaxAttempts != 5 {
		t.Errorf("Expected default RestartMaxAttempts 5, got %d", cfg.RestartMaxAttempts)
	}
}

func TestGetEnv(t *testing.T) {
	os.Setenv("TEST_KEY", "test-value")
	defer os.Unsetenv("TEST_KEY")

	value := GetEnv("TEST_KEY", "default")
	if value != "test-value" {
		t.Errorf("Expected 'test-value', got '%s'", value)
	}

	value = GetEnv("NON_EXISTENT_KEY", "default")
	if value != "default" {
		t.Errorf("Expected 'default', got '%s'", value)
	}
}

func TestDefaultTuning(t *testing.T) {
	tuning := DefaultTuning()

	if tuning.Engagement.GoodYaw != 20 {
		t.Errorf("Expected default GoodYaw 20, got %f", tuning.Engagement.GoodYaw)
	}
	if tuning.Engagement.BadYaw != 12 {
		t.Errorf("Expected default BadYaw 12, got %f", tuning.Engagement.BadYaw)
	}
	if tuning.HeadPose.BaseAlpha != 0.3 {
		t.Errorf("Expected default BaseAlpha 0.3, got %f", tuning.HeadPose.BaseAlpha)
	}
	if tuning.HeadPose.MaxAlpha != 0.7 {
		t.Errorf("Expected default MaxAlpha 0.7, got %f", tuning.HeadPose.MaxAlpha)
	}
	if len(tuning.FillerWords) == 0 {
		t.Error("Expected non-empty default filler vocabulary")
	}
}

func TestLoadTuning_EmptyPath(t *testing.T) {
	tuning, err := LoadTuning("")
	if err != nil {
		t.Fatalf("LoadTuning(\"\") failed: %v", err)
	}
	if tuning.Engagement.GoodYaw != 20 {
		t.Errorf("Expected defaults for empty path, got GoodYaw %f", tuning.Engagement.GoodYaw)
	}
}

func TestLoadTuning_PartialProfile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	profile := []byte("engagement:\n  good_yaw: 25\n")
	if err := os.WriteFile(path, profile, 0o644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}

	tuning, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("LoadTuning() failed: %v", err)
	}

	if tuning.Engagement.GoodYaw != 25 {
		t.Errorf("Expected overridden GoodYaw 25, got %f", tuning.Engagement.GoodYaw)
	}

	// Unnamed values keep their defaults
	if tuning.Engagement.BadYaw != 12 {
		t.Errorf("Expected default BadYaw 12, got %f", tuning.Engagement.BadYaw)
	}
	if len(tuning.FillerWords) == 0 {
		t.Error("Expected default filler vocabulary to survive partial profile")
	}
}

func TestLoadTuning_InvalidThresholds(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tuning.yaml")
	profile := []byte("engagement:\n  good_yaw: 10\n  bad_yaw: 15\n")
	if err := os.WriteFile(path, profile, 0o644); err != nil {
		t.Fatalf("failed to write profile: %v", err)
	}

	if _, err := LoadTuning(path); err == nil {
		t.Error("Expected error when bad_yaw >= good_yaw")
	}
}

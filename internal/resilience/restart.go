package resilience

import (
	"context"
	"fmt"
	"time"
)

// RestartConfig holds configuration for backend auto-restart.
// Transcription backends terminate on transient conditions (end of
// utterance, "no speech", dropped sockets); the pipeline restarts them with
// a short backoff so a flapping backend cannot spin a tight loop.
type RestartConfig struct {
	MaxAttempts int           // Attempts before the backend is declared dead
	Backoff     time.Duration // Initial delay between attempts
	Multiplier  float64       // Backoff growth per attempt
	MaxBackoff  time.Duration // Backoff ceiling
}

// DefaultRestartConfig returns a default restart configuration
func DefaultRestartConfig() *RestartConfig {
	return &RestartConfig{
		MaxAttempts: 5,
		Backoff:     100 * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  5 * time.Second,
	}
}

// RestartFunc attempts to bring a backend back up
type RestartFunc func() error

// Restart retries fn with exponential backoff until it succeeds, the
// context is cancelled, or MaxAttempts is exhausted.
func Restart(ctx context.Context, fn RestartFunc, config *RestartConfig) error {
	if config == nil {
		config = DefaultRestartConfig()
	}

	backoff := config.Backoff

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err := fn(); err == nil {
			return nil
		}

		// Don't sleep after the last attempt
		if attempt < config.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxBackoff {
					backoff = config.MaxBackoff
				}
			}
		}
	}

	return fmt.Errorf("failed to restart after %d attempts", config.MaxAttempts)
}

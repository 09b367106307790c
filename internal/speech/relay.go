package speech

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// BrowserRelayBackend is the last-resort tier. The client runs continuous
// speech recognition locally and relays recognized segments over the
// session stream; audio never reaches the server in this mode. The backend
// is always available.
type BrowserRelayBackend struct {
	segments chan Segment
	failures chan error

	mu      sync.Mutex
	running bool

	logger zerolog.Logger
}

// NewBrowserRelayBackend creates the relay tier
func NewBrowserRelayBackend(logger zerolog.Logger) *BrowserRelayBackend {
	return &BrowserRelayBackend{
		segments: make(chan Segment, 32),
		failures: make(chan error, 1),
		logger:   logger.With().Str("component", "browser_relay").Logger(),
	}
}

func (r *BrowserRelayBackend) Name() string { return "browser" }
func (r *BrowserRelayBackend) Mode() Mode   { return ModeBrowser }

func (r *BrowserRelayBackend) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.running = true
	r.logger.Info().Msg("browser relay transcription started")
	return nil
}

// SendAudio is a no-op: recognition happens on the client
func (r *BrowserRelayBackend) SendAudio(data []byte) error {
	return nil
}

// Push delivers a client-recognized segment into the pipeline. Segments
// arriving after Stop are discarded.
func (r *BrowserRelayBackend) Push(text string, isFinal bool, confidence float64) {
	r.mu.Lock()
	running := r.running
	r.mu.Unlock()

	if !running {
		return
	}

	select {
	case r.segments <- Segment{Text: text, IsFinal: isFinal, Confidence: confidence}:
	default:
		r.logger.Warn().Msg("segment channel full, dropping relayed segment")
	}
}

func (r *BrowserRelayBackend) Segments() <-chan Segment { return r.segments }
func (r *BrowserRelayBackend) Failures() <-chan error   { return r.failures }

func (r *BrowserRelayBackend) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.running {
		return nil
	}
	r.running = false

	r.logger.Info().Msg("browser relay transcription stopped")
	return nil
}

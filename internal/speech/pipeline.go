package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/podiumai/coach-gateway/internal/config"
	"github.com/podiumai/coach-gateway/internal/observability"
	"github.com/podiumai/coach-gateway/internal/resilience"
)

// Pipeline selects a transcription backend on start and degrades through
// the tier order on failure: native, then server batch, then browser
// relay. A session never upgrades back to a better tier; a mid-session
// upgrade would reset backend state and lose the continuity the counts
// depend on.
type Pipeline struct {
	cfg      *config.Config
	backends []Backend
	relay    *BrowserRelayBackend

	accumulator *Accumulator

	mu      sync.Mutex
	mode    Mode
	active  Backend
	running bool
	cancel  context.CancelFunc

	onResult     ResultHandler
	onModeChange ModeChangeHandler

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewPipeline builds the tier chain from config. The filler vocabulary
// comes from the tuning profile.
func NewPipeline(cfg *config.Config, tuning *config.Tuning, metrics *observability.Metrics, logger zerolog.Logger) *Pipeline {
	relay := NewBrowserRelayBackend(logger)

	return &Pipeline{
		cfg: cfg,
		backends: []Backend{
			NewNativeBackend(cfg, logger),
			NewServerBatchBackend(cfg, metrics, logger),
			relay,
		},
		relay:       relay,
		accumulator: NewAccumulator(NewFillerDetector(tuning.FillerWords)),
		mode:        ModeDetecting,
		metrics:     metrics,
		logger:      logger.With().Str("component", "speech_pipeline").Logger(),
	}
}

// OnResult registers the result subscriber. Must be called before Start.
func (p *Pipeline) OnResult(handler ResultHandler) {
	p.onResult = handler
}

// OnModeChange registers the mode-change subscriber. Must be called
// before Start.
func (p *Pipeline) OnModeChange(handler ModeChangeHandler) {
	p.onModeChange = handler
}

// Start selects the best available backend and begins consuming its
// segments. It fails only when no tier at all is available.
func (p *Pipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("speech pipeline is already running")
	}
	p.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)

	backend := p.selectBackend(runCtx, 0)
	if backend == nil {
		cancel()
		return fmt.Errorf("no transcription backend available")
	}

	p.mu.Lock()
	p.running = true
	p.cancel = cancel
	p.active = backend
	p.mu.Unlock()

	p.accumulator.Reset()
	p.setMode(backend.Mode())

	go p.consume(runCtx)

	p.logger.Info().Str("backend", backend.Name()).Msg("speech pipeline started")
	return nil
}

// selectBackend starts the first available backend at or after the given
// tier index
func (p *Pipeline) selectBackend(ctx context.Context, from int) Backend {
	for i := from; i < len(p.backends); i++ {
		b := p.backends[i]
		if err := b.Start(ctx); err != nil {
			p.logger.Warn().Err(err).Str("backend", b.Name()).Msg("backend unavailable")
			continue
		}
		return b
	}
	return nil
}

// consume is the pipeline's single event loop: it applies segments from
// the active backend and reacts to its fatal failures. The active backend
// is re-read each iteration so a failover takes effect immediately.
func (p *Pipeline) consume(ctx context.Context) {
	for {
		p.mu.Lock()
		backend := p.active
		p.mu.Unlock()

		if backend == nil {
			return
		}

		select {
		case <-ctx.Done():
			return
		case seg := <-backend.Segments():
			p.applySegment(seg)
		case err := <-backend.Failures():
			if !p.handleFailure(ctx, backend, err) {
				return
			}
		}
	}
}

func (p *Pipeline) applySegment(seg Segment) {
	p.accumulator.Apply(seg)

	handler := p.onResult
	if handler != nil {
		handler(p.accumulator.Snapshot(p.Mode()))
	}
}

// handleFailure first tries to restart the failed backend in place with a
// short backoff, then fails over to the next tier. Returns false when no
// tier remains and the pipeline has shut down.
func (p *Pipeline) handleFailure(ctx context.Context, backend Backend, cause error) bool {
	if !p.isRunning() {
		return false
	}

	p.logger.Warn().Err(cause).Str("backend", backend.Name()).Msg("active backend failed")
	if p.metrics != nil {
		p.metrics.RecordError("backend_failure", backend.Name())
	}

	backend.Stop()

	restartCfg := &resilience.RestartConfig{
		MaxAttempts: p.cfg.RestartMaxAttempts,
		Backoff:     time.Duration(p.cfg.RestartBackoff) * time.Millisecond,
		Multiplier:  2.0,
		MaxBackoff:  5 * time.Second,
	}
	if err := resilience.Restart(ctx, func() error { return backend.Start(ctx) }, restartCfg); err == nil {
		p.logger.Info().Str("backend", backend.Name()).Msg("backend restarted")
		return true
	}

	// Restart exhausted; degrade to the next tier
	from := p.tierIndex(backend)
	next := p.selectBackend(ctx, from+1)
	if next == nil {
		p.logger.Error().Msg("all transcription backends exhausted")
		p.Stop()
		return false
	}

	oldMode := backend.Mode()
	p.mu.Lock()
	p.active = next
	p.mu.Unlock()

	if p.metrics != nil {
		p.metrics.RecordFailover(string(oldMode), string(next.Mode()))
	}
	p.setMode(next.Mode())

	p.logger.Info().
		Str("from", backend.Name()).
		Str("to", next.Name()).
		Msg("failed over to next transcription tier")
	return true
}

func (p *Pipeline) tierIndex(backend Backend) int {
	for i, b := range p.backends {
		if b == backend {
			return i
		}
	}
	return len(p.backends)
}

// SendAudio routes a PCM chunk to the active backend
func (p *Pipeline) SendAudio(data []byte) error {
	p.mu.Lock()
	backend := p.active
	running := p.running
	p.mu.Unlock()

	if !running || backend == nil {
		return fmt.Errorf("speech pipeline is not running")
	}
	return backend.SendAudio(data)
}

// PushBrowserSegment relays a client-recognized segment. It only has an
// effect while the browser relay tier is the active backend.
func (p *Pipeline) PushBrowserSegment(text string, isFinal bool, confidence float64) {
	p.relay.Push(text, isFinal, confidence)
}

// Mode returns the current pipeline mode
func (p *Pipeline) Mode() Mode {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.mode
}

// Result returns the current cumulative transcription state
func (p *Pipeline) Result() Result {
	return p.accumulator.Snapshot(p.Mode())
}

// Stop halts the pipeline, the active backend, and any pending restarts.
// Idempotent; in-flight chunk transcriptions resolve but their results
// are discarded by the stopped backend.
func (p *Pipeline) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	backend := p.active
	p.active = nil
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if backend != nil {
		backend.Stop()
	}
	p.setMode(ModeStopped)

	p.logger.Info().Msg("speech pipeline stopped")
	return nil
}

func (p *Pipeline) isRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// setMode updates the mode and notifies the subscriber once per transition
func (p *Pipeline) setMode(mode Mode) {
	p.mu.Lock()
	changed := p.mode != mode
	p.mode = mode
	handler := p.onModeChange
	p.mu.Unlock()

	if changed && handler != nil {
		handler(mode)
	}
}

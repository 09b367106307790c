package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/podiumai/coach-gateway/internal/audio"
	"github.com/podiumai/coach-gateway/internal/config"
	"github.com/podiumai/coach-gateway/internal/observability"
	"github.com/podiumai/coach-gateway/internal/resilience"
)

// WhisperClient talks to the batch transcription service over HTTP. The
// service exposes GET {base}/health and POST {base}/transcribe.
type WhisperClient struct {
	baseURL        string
	httpClient     *http.Client
	circuitBreaker *resilience.CircuitBreaker
	retryConfig    *resilience.RetryConfig

	healthTimeout  time.Duration
	maxLatency     time.Duration
	requestTimeout time.Duration
	sampleRate     int

	logger zerolog.Logger
}

// transcribeRequest is the chunk payload. Audio is base64-encoded PCM,
// optionally wrapped in a data URL; the service accepts both.
type transcribeRequest struct {
	Audio      string `json:"audio"`
	SampleRate int    `json:"sampleRate"`
}

type transcribeResponse struct {
	Transcript string `json:"transcript"`
	Error      string `json:"error,omitempty"`
}

type healthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewWhisperClient creates a batch transcription client from config
func NewWhisperClient(cfg *config.Config, logger zerolog.Logger) *WhisperClient {
	return &WhisperClient{
		baseURL: cfg.WhisperURL,
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.WhisperRequestTimeout) * time.Millisecond,
		},
		circuitBreaker: resilience.NewCircuitBreaker(
			"whisper",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		// Tight retry budget: a chunk retried past the next chunk boundary
		// is worth less than the chunk it delays
		retryConfig: &resilience.RetryConfig{
			MaxAttempts:       2,
			InitialBackoff:    50 * time.Millisecond,
			MaxBackoff:        200 * time.Millisecond,
			BackoffMultiplier: 2.0,
		},
		healthTimeout:  time.Duration(cfg.WhisperHealthTimeout) * time.Millisecond,
		maxLatency:     time.Duration(cfg.WhisperMaxLatency) * time.Millisecond,
		requestTimeout: time.Duration(cfg.WhisperRequestTimeout) * time.Millisecond,
		sampleRate:     cfg.AudioSampleRate,
		logger:         logger.With().Str("component", "whisper").Logger(),
	}
}

// Health probes the service and gates on round-trip latency. A healthy but
// slow service is treated as unavailable so the pipeline falls through to
// the next tier instead of accumulating lag.
func (c *WhisperClient) Health(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health probe failed: %w", err)
	}
	defer resp.Body.Close()
	latency := time.Since(start)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health probe returned status %d", resp.StatusCode)
	}

	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}
	if health.Status != "ok" {
		return fmt.Errorf("service reports status %q", health.Status)
	}

	if latency > c.maxLatency {
		return fmt.Errorf("health probe latency %v exceeds limit %v", latency, c.maxLatency)
	}

	c.logger.Debug().Dur("latency", latency).Msg("whisper health probe ok")
	return nil
}

// Transcribe sends one PCM chunk for transcription and returns the text.
// The call is protected by the circuit breaker, and transient network
// failures are retried with a short backoff inside it.
func (c *WhisperClient) Transcribe(ctx context.Context, pcm []byte) (string, error) {
	payload := transcribeRequest{
		Audio:      "data:audio/pcm;base64," + base64.StdEncoding.EncodeToString(pcm),
		SampleRate: c.sampleRate,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to encode chunk: %w", err)
	}

	var transcript string

	err = c.circuitBreaker.Call(func() error {
		return resilience.Retry(func() error {
			ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
			defer cancel()

			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/transcribe", bytes.NewReader(body))
			if err != nil {
				return fmt.Errorf("failed to build transcribe request: %w", err)
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return fmt.Errorf("transcribe request failed: %w", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusOK {
				io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("transcribe returned status %d", resp.StatusCode)
			}

			var decoded transcribeResponse
			if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
				return fmt.Errorf("failed to decode transcribe response: %w", err)
			}
			if decoded.Error != "" {
				return fmt.Errorf("transcription failed: %s", decoded.Error)
			}

			transcript = decoded.Transcript
			return nil
		}, c.retryConfig, resilience.IsRetryableNetworkError)
	})

	observability.UpdateCircuitBreakerState("whisper", int(c.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("whisper")
		return "", err
	}
	return transcript, nil
}

// ServerBatchBackend captures fixed-duration PCM chunks and posts each one
// to the whisper service. One instance per session.
type ServerBatchBackend struct {
	client        *WhisperClient
	chunkDuration time.Duration
	buffer        *audio.ChunkBuffer

	segments chan Segment
	failures chan error

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewServerBatchBackend creates the batch tier from config
func NewServerBatchBackend(cfg *config.Config, metrics *observability.Metrics, logger zerolog.Logger) *ServerBatchBackend {
	return &ServerBatchBackend{
		client:        NewWhisperClient(cfg, logger),
		chunkDuration: time.Duration(cfg.WhisperChunkDuration) * time.Millisecond,
		buffer:        audio.NewChunkBuffer(cfg.AudioBufferSize),
		segments:      make(chan Segment, 32),
		failures:      make(chan error, 4),
		metrics:       metrics,
		logger:        logger.With().Str("component", "server_batch").Logger(),
	}
}

func (b *ServerBatchBackend) Name() string { return "whisper" }
func (b *ServerBatchBackend) Mode() Mode   { return ModeServerBatch }

// Start probes the service health and begins the chunk capture loop
func (b *ServerBatchBackend) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.running {
		return fmt.Errorf("server batch backend is already running")
	}

	if err := b.client.Health(ctx); err != nil {
		return fmt.Errorf("whisper backend unavailable: %w", err)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel
	b.running = true
	b.buffer.Clear()

	go b.chunkLoop(loopCtx)

	b.logger.Info().Dur("chunk_duration", b.chunkDuration).Msg("server batch transcription started")
	return nil
}

// SendAudio buffers PCM until the next chunk boundary
func (b *ServerBatchBackend) SendAudio(data []byte) error {
	if !b.isRunning() {
		return fmt.Errorf("server batch backend is not running")
	}
	if evicted := b.buffer.Write(data); evicted > 0 {
		b.logger.Warn().Int("bytes", evicted).Msg("audio buffer full, dropped oldest audio")
	}
	if b.metrics != nil {
		b.metrics.RecordAudioBytes(int64(len(data)))
	}
	return nil
}

// chunkLoop drains the buffer once per chunk interval and transcribes each
// chunk off the loop goroutine so a slow request never delays the next
// chunk boundary.
func (b *ServerBatchBackend) chunkLoop(ctx context.Context) {
	ticker := time.NewTicker(b.chunkDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			chunk := b.buffer.Drain()
			if len(chunk) == 0 {
				continue
			}
			go b.transcribeChunk(ctx, chunk)
		}
	}
}

func (b *ServerBatchBackend) transcribeChunk(ctx context.Context, chunk []byte) {
	if b.metrics != nil {
		b.metrics.RecordSTTStart()
	}

	text, err := b.client.Transcribe(ctx, chunk)

	if b.metrics != nil {
		b.metrics.RecordSTTEnd("whisper", err == nil)
	}

	// The pipeline may have stopped or failed over while the request was
	// in flight. Late results are discarded, never applied.
	if !b.isRunning() {
		return
	}

	if err != nil {
		b.logger.Warn().Err(err).Msg("chunk transcription failed")
		select {
		case b.failures <- err:
		default:
		}
		return
	}

	if text == "" {
		return
	}

	select {
	case b.segments <- Segment{Text: text, IsFinal: true, Confidence: 1.0}:
	default:
		b.logger.Warn().Msg("segment channel full, dropping transcription")
	}
}

func (b *ServerBatchBackend) Segments() <-chan Segment { return b.segments }
func (b *ServerBatchBackend) Failures() <-chan error   { return b.failures }

// Stop halts chunk capture. Idempotent.
func (b *ServerBatchBackend) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.running {
		return nil
	}
	b.running = false
	if b.cancel != nil {
		b.cancel()
	}
	b.buffer.Clear()

	b.logger.Info().Msg("server batch transcription stopped")
	return nil
}

func (b *ServerBatchBackend) isRunning() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

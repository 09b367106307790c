package speech

import (
	"context"
	"fmt"
	"sync"
	"time"

	websocketv1api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket"
	msginterfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/websocket/interfaces"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	listenClient "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"
	"github.com/rs/zerolog"

	"github.com/podiumai/coach-gateway/internal/config"
	"github.com/podiumai/coach-gateway/internal/observability"
	"github.com/podiumai/coach-gateway/internal/resilience"
)

// nativeCallbackHandler implements the LiveMessageCallback interface. It
// embeds the default handler and overrides only message and error delivery.
type nativeCallbackHandler struct {
	*websocketv1api.DefaultCallbackHandler
	onMessage func(*msginterfaces.MessageResponse)
	onError   func(*msginterfaces.ErrorResponse) error
}

func (h *nativeCallbackHandler) Message(msg *msginterfaces.MessageResponse) error {
	h.onMessage(msg)
	return nil
}

func (h *nativeCallbackHandler) Error(errResp *msginterfaces.ErrorResponse) error {
	if h.onError != nil {
		return h.onError(errResp)
	}
	return h.DefaultCallbackHandler.Error(errResp)
}

// NativeBackend is the streaming transcription tier backed by Deepgram.
// It is only available when an API key is configured.
type NativeBackend struct {
	cfg            *config.Config
	circuitBreaker *resilience.CircuitBreaker

	segments chan Segment
	failures chan error

	mu      sync.Mutex
	running bool
	client  *listenClient.WSCallback

	logger zerolog.Logger
}

// NewNativeBackend creates the native streaming tier from config
func NewNativeBackend(cfg *config.Config, logger zerolog.Logger) *NativeBackend {
	return &NativeBackend{
		cfg: cfg,
		circuitBreaker: resilience.NewCircuitBreaker(
			"deepgram",
			cfg.CircuitBreakerMaxFailures,
			time.Duration(cfg.CircuitBreakerResetTimeout)*time.Second,
		),
		segments: make(chan Segment, 100),
		failures: make(chan error, 4),
		logger:   logger.With().Str("component", "native").Logger(),
	}
}

func (n *NativeBackend) Name() string { return "deepgram" }
func (n *NativeBackend) Mode() Mode   { return ModeNative }

// Start opens the streaming connection. An empty API key means the native
// capability is not registered for this deployment; the pipeline then
// moves to the server batch tier.
func (n *NativeBackend) Start(ctx context.Context) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.running {
		return fmt.Errorf("native backend is already running")
	}
	if n.cfg.DeepgramAPIKey == "" {
		return fmt.Errorf("native transcription capability not registered")
	}

	tOptions := &interfaces.LiveTranscriptionOptions{
		Model:          n.cfg.DeepgramModel,
		Language:       n.cfg.DeepgramLanguage,
		Punctuate:      true,
		InterimResults: true,
		UtteranceEndMs: "1000",
		VadEvents:      true,
		Encoding:       "linear16",
		Channels:       1,
		SampleRate:     n.cfg.AudioSampleRate,
	}

	callback := &nativeCallbackHandler{
		DefaultCallbackHandler: websocketv1api.NewDefaultCallbackHandler(),
		onMessage:              n.handleMessage,
		onError: func(errResp *msginterfaces.ErrorResponse) error {
			n.logger.Error().Interface("response", errResp).Msg("deepgram stream error")

			n.circuitBreaker.RecordResult(false)
			observability.UpdateCircuitBreakerState("deepgram", int(n.circuitBreaker.GetState()))
			observability.IncrementCircuitBreakerFailures("deepgram")

			n.mu.Lock()
			n.running = false
			n.mu.Unlock()

			select {
			case n.failures <- fmt.Errorf("deepgram stream error: %+v", errResp):
			default:
			}
			return nil
		},
	}

	client, err := listenClient.NewWSUsingCallback(ctx, n.cfg.DeepgramAPIKey, nil, tOptions, callback)
	if err != nil {
		return fmt.Errorf("failed to create deepgram client: %w", err)
	}

	n.client = client
	n.running = true
	n.circuitBreaker.RecordResult(true)
	observability.UpdateCircuitBreakerState("deepgram", int(n.circuitBreaker.GetState()))

	n.logger.Info().
		Str("model", n.cfg.DeepgramModel).
		Str("language", n.cfg.DeepgramLanguage).
		Msg("native streaming transcription started")
	return nil
}

// handleMessage converts Deepgram stream messages into segments
func (n *NativeBackend) handleMessage(msg *msginterfaces.MessageResponse) {
	if msg == nil {
		return
	}

	switch msg.Type {
	case "SpeechStarted", "UtteranceEnd", "Metadata":
		n.logger.Debug().Str("type", msg.Type).Msg("deepgram event")

	case "Results", "Message":
		if len(msg.Channel.Alternatives) == 0 {
			return
		}
		alt := msg.Channel.Alternatives[0]
		if alt.Transcript == "" {
			return
		}

		seg := Segment{
			Text:       alt.Transcript,
			IsFinal:    msg.IsFinal,
			Confidence: alt.Confidence,
		}
		select {
		case n.segments <- seg:
		default:
			n.logger.Warn().Msg("segment channel full, dropping transcription")
		}

	default:
		n.logger.Debug().Str("type", msg.Type).Msg("unhandled deepgram message type")
	}
}

// SendAudio forwards a PCM chunk to the stream
func (n *NativeBackend) SendAudio(data []byte) error {
	err := n.circuitBreaker.Call(func() error {
		n.mu.Lock()
		running := n.running
		client := n.client
		n.mu.Unlock()

		if !running || client == nil {
			return fmt.Errorf("native backend is not running")
		}

		if _, err := client.Write(data); err != nil {
			return fmt.Errorf("failed to send audio: %w", err)
		}
		return nil
	})

	observability.UpdateCircuitBreakerState("deepgram", int(n.circuitBreaker.GetState()))
	if err != nil {
		observability.IncrementCircuitBreakerFailures("deepgram")
	}
	return err
}

func (n *NativeBackend) Segments() <-chan Segment { return n.segments }
func (n *NativeBackend) Failures() <-chan error   { return n.failures }

// Stop finishes the stream. Idempotent.
func (n *NativeBackend) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if !n.running {
		return nil
	}
	n.running = false
	if n.client != nil {
		n.client.Finish()
	}

	n.logger.Info().Msg("native streaming transcription stopped")
	return nil
}

package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/podiumai/coach-gateway/internal/audio"
	"github.com/podiumai/coach-gateway/internal/config"
	"github.com/podiumai/coach-gateway/internal/engagement"
	"github.com/podiumai/coach-gateway/internal/headpose"
	"github.com/podiumai/coach-gateway/internal/landmark"
	"github.com/podiumai/coach-gateway/internal/observability"
	"github.com/podiumai/coach-gateway/internal/posture"
	"github.com/podiumai/coach-gateway/internal/speech"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// Origin validation is handled upstream by the app server
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// ClientMessage is the envelope for everything the client sends over the
// session stream
type ClientMessage struct {
	Event      string                   `json:"event"`
	Frame      *landmark.Frame          `json:"frame,omitempty"`
	Audio      *AudioPayload            `json:"audio,omitempty"`
	Speech     *SpeechPayload           `json:"speech,omitempty"`
	Thresholds *config.EngagementTuning `json:"thresholds,omitempty"`
}

// AudioPayload carries one base64-encoded PCM chunk
type AudioPayload struct {
	Payload string `json:"payload"`
}

// SpeechPayload carries one client-recognized utterance segment for the
// browser relay tier
type SpeechPayload struct {
	Text       string  `json:"text"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence"`
}

// ServerMessage is the envelope for everything sent back to the client
type ServerMessage struct {
	Event     string          `json:"event"`
	SessionID string          `json:"sessionId,omitempty"`
	Mode      speech.Mode     `json:"mode,omitempty"`
	Result    *speech.Result  `json:"result,omitempty"`
	Snapshot  *Snapshot       `json:"snapshot,omitempty"`
	Summary   *SessionSummary `json:"summary,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// SessionSummary is the end-of-session report
type SessionSummary struct {
	Summary
	Energy       posture.EnergyAnalysis      `json:"energy"`
	GestureStats map[posture.GestureType]int `json:"gestureStats"`
	Speech       speech.Result               `json:"speech"`
}

// Session holds the state of a single practice session. All frame
// processing happens on the read loop goroutine, which gives the
// estimator-before-classifier ordering for free. The snapshot ticker runs
// on its own goroutine; everything it touches, including the classifier's
// rolling window, is guarded by mu.
type Session struct {
	conn *websocket.Conn
	id   string

	cfg    *config.Config
	tuning *config.Tuning

	estimator  *headpose.Estimator
	classifier *engagement.Classifier
	analyzer   *posture.Analyzer
	pipeline   *speech.Pipeline
	aggregator *Aggregator
	vad        *audio.VADDetector

	mu             sync.Mutex
	active         bool
	started        bool
	lastHeadPose   headpose.Result
	lastEngagement engagement.Classification
	lastPosture    posture.Result

	writeMu sync.Mutex

	cancel context.CancelFunc
	done   chan struct{}

	metrics *observability.Metrics
	logger  zerolog.Logger
}

// NewSession wires a full analyzer set for one connection
func NewSession(conn *websocket.Conn, cfg *config.Config, tuning *config.Tuning) *Session {
	id := observability.NewSessionID()
	logger := observability.WithSession(id)
	metrics := observability.NewSessionMetrics(id)

	return &Session{
		conn:       conn,
		id:         id,
		cfg:        cfg,
		tuning:     tuning,
		estimator:  headpose.NewEstimator(tuning.HeadPose, cfg.CalibrationSamples),
		classifier: engagement.NewClassifier(tuning.Engagement, time.Duration(cfg.EngagementWindowMs)*time.Millisecond),
		analyzer:   posture.NewAnalyzer(tuning.Posture, time.Duration(cfg.EnergyIntervalSec)*time.Second),
		pipeline:   speech.NewPipeline(cfg, tuning, metrics, logger),
		aggregator: NewAggregator(),
		vad: audio.NewVADDetector(&audio.VADConfig{
			EnergyThreshold: cfg.VADEnergyThreshold,
			SilenceFrames:   cfg.VADSilenceFrames,
		}),
		active:  true,
		done:    make(chan struct{}),
		metrics: metrics,
		logger:  logger,
	}
}

// Handler upgrades the connection and runs the session until the client
// disconnects or sends stop
func Handler(cfg *config.Config, tuning *config.Tuning) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger := observability.GetLogger()
			logger.Error().Err(err).Msg("websocket upgrade failed")
			return
		}
		defer conn.Close()

		s := NewSession(conn, cfg, tuning)
		s.logger.Info().Msg("session connected")
		s.metrics.RecordSessionStart()

		s.run()
		<-s.done
	}
}

// run is the session read loop. Every client event is handled here, in
// arrival order.
func (s *Session) run() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	go func() {
		defer s.teardown()

		for {
			if !s.IsActive() {
				return
			}

			_, raw, err := s.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					s.logger.Warn().Err(err).Msg("websocket read error")
				}
				return
			}

			var msg ClientMessage
			if err := json.Unmarshal(raw, &msg); err != nil {
				s.logger.Error().Err(err).Msg("failed to parse client message")
				continue
			}

			switch msg.Event {
			case "start":
				s.handleStart(ctx)
			case "frame":
				s.handleFrame(msg.Frame)
			case "audio":
				s.handleAudio(msg.Audio)
			case "speech":
				s.handleSpeech(msg.Speech)
			case "recalibrate":
				s.estimator.Recalibrate()
				s.logger.Info().Msg("recalibration requested")
			case "thresholds":
				s.handleThresholds(msg.Thresholds)
			case "stop":
				s.handleStop()
				return
			default:
				s.logger.Warn().Str("event", msg.Event).Msg("unknown client event")
			}
		}
	}()
}

// teardown releases everything the session owns. Safe to reach from any
// exit path.
func (s *Session) teardown() {
	s.mu.Lock()
	wasActive := s.active
	s.active = false
	s.mu.Unlock()

	s.pipeline.Stop()
	s.cancel()

	if wasActive {
		s.metrics.RecordSessionEnd()
		s.logger.Info().Msg("session ended")
	}
	close(s.done)
}

// handleStart begins the speech pipeline and the snapshot ticker
func (s *Session) handleStart(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	// Acknowledge before the pipeline starts: starting it emits the first
	// mode event, which the client must not see ahead of the ack
	s.writeMessage(ServerMessage{Event: "started", SessionID: s.id})

	s.pipeline.OnModeChange(func(mode speech.Mode) {
		s.writeMessage(ServerMessage{Event: "mode", Mode: mode})
	})
	s.pipeline.OnResult(func(r speech.Result) {
		s.writeMessage(ServerMessage{Event: "transcript", Result: &r})
	})

	if err := s.pipeline.Start(ctx); err != nil {
		s.logger.Error().Err(err).Msg("failed to start speech pipeline")
		s.metrics.RecordError("pipeline_start", "session")
		s.writeMessage(ServerMessage{Event: "error", Error: "no transcription backend available"})
	}

	go s.snapshotLoop(ctx)

	s.logger.Info().Msg("session started")
}

// handleFrame runs the per-frame analysis chain. The estimator updates
// calibration and smoothing before the classifier reads the smoothed pose;
// the posture analyzer is independent of both. The classifier's rolling
// window is also read by the snapshot ticker, so the Classify call happens
// under the session lock.
func (s *Session) handleFrame(frame *landmark.Frame) {
	if frame == nil {
		return
	}
	begin := time.Now()

	var face []landmark.Point
	if frame.HasFace() {
		face = frame.Face
	}
	pose := s.estimator.Analyze(face, frame.FaceTransform)
	body := s.analyzer.Analyze(frame.Pose)

	s.mu.Lock()
	if pose.FaceDetected {
		s.lastEngagement = s.classifier.Classify(pose.Yaw, pose.Pitch, pose.Confidence)
	}
	s.lastHeadPose = pose
	s.lastPosture = body
	s.mu.Unlock()

	s.metrics.RecordFrame("video", time.Since(begin))
}

// handleAudio decodes a PCM chunk and feeds it to the speech pipeline,
// gated by voice activity so silence is not transcribed
func (s *Session) handleAudio(payload *AudioPayload) {
	if payload == nil || payload.Payload == "" {
		return
	}
	begin := time.Now()

	data, err := base64.StdEncoding.DecodeString(payload.Payload)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to decode audio payload")
		s.metrics.RecordError("audio_decode", "session")
		return
	}

	samples, err := audio.BytesToSamples(data)
	if err != nil {
		s.logger.Error().Err(err).Msg("malformed PCM chunk")
		s.metrics.RecordError("audio_decode", "session")
		return
	}

	speaking, _, speechEnded := s.vad.ProcessFrame(samples)
	if speaking || speechEnded {
		if err := s.pipeline.SendAudio(data); err != nil {
			s.logger.Debug().Err(err).Msg("audio dropped, pipeline not accepting")
		}
	}

	s.metrics.RecordFrame("audio", time.Since(begin))
}

// handleSpeech relays a client-recognized segment into the pipeline
func (s *Session) handleSpeech(payload *SpeechPayload) {
	if payload == nil {
		return
	}
	s.pipeline.PushBrowserSegment(payload.Text, payload.IsFinal, payload.Confidence)
}

// handleThresholds applies client-supplied engagement thresholds
func (s *Session) handleThresholds(thresholds *config.EngagementTuning) {
	if thresholds == nil {
		return
	}
	s.classifier.SetThresholds(*thresholds)
	s.logger.Info().
		Float64("good_yaw", thresholds.GoodYaw).
		Float64("bad_yaw", thresholds.BadYaw).
		Msg("engagement thresholds updated")
}

// handleStop finishes the session and sends the summary report
func (s *Session) handleStop() {
	s.pipeline.Stop()

	summary := &SessionSummary{
		Summary:      s.aggregator.Reduce(),
		Energy:       s.analyzer.Energy(),
		GestureStats: s.analyzer.GestureStats(),
		Speech:       s.pipeline.Result(),
	}
	s.writeMessage(ServerMessage{Event: "summary", Summary: summary})

	s.logger.Info().
		Int("snapshots", summary.SnapshotCount).
		Int("overall_score", summary.OverallScore).
		Msg("session stopped")
}

// snapshotLoop captures a merged metrics snapshot on a fixed cadence,
// stores it, and pushes it to the client
func (s *Session) snapshotLoop(ctx context.Context) {
	interval := time.Duration(s.cfg.SnapshotIntervalMs) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snap := s.captureSnapshot()
			s.aggregator.Append(snap)
			s.writeMessage(ServerMessage{Event: "metrics", Snapshot: &snap})
		}
	}
}

// captureSnapshot merges the latest analyzer outputs with the cumulative
// speech state
func (s *Session) captureSnapshot() Snapshot {
	speechResult := s.pipeline.Result()

	s.mu.Lock()
	defer s.mu.Unlock()

	// Without a face on the latest frame the engagement tier is unknown, not
	// whatever was last classified; the windowed average is unaffected since
	// faceless frames never enter the window
	level := engagement.LevelUnknown
	reason := "no face detected"
	if s.lastHeadPose.FaceDetected {
		level = s.lastEngagement.Level
		reason = s.lastEngagement.Reason
	}

	snap := Snapshot{
		TimestampMs:       time.Now().UnixMilli(),
		PostureScore:      s.lastPosture.PostureScore,
		EyeContactPercent: s.classifier.Percent(),
		EngagementLevel:   level,
		EngagementReason:  reason,
		GestureType:       s.lastPosture.Gesture,
		SpeechRate:        speechResult.WPM,
		FillerCount:       speechResult.FillerCount,
		FillerWords:       speechResult.FillerWords,
		Issues:            s.lastPosture.Issues,
		SpeechMode:        speechResult.Mode,
	}

	if s.lastHeadPose.FaceDetected {
		snap.HeadPose = &HeadPoseSnapshot{
			Yaw:        s.lastHeadPose.Yaw,
			Pitch:      s.lastHeadPose.Pitch,
			Roll:       s.lastHeadPose.Roll,
			Confidence: s.lastHeadPose.Confidence,
			Calibrated: s.lastHeadPose.Calibrated,
		}
	}
	return snap
}

// writeMessage serializes one server message. gorilla/websocket allows a
// single concurrent writer, so all writes go through this lock.
func (s *Session) writeMessage(msg ServerMessage) {
	if !s.IsActive() {
		return
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.WriteJSON(msg); err != nil {
		s.logger.Warn().Err(err).Str("event", msg.Event).Msg("failed to write message")
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// IsActive reports whether the session is still running
func (s *Session) IsActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

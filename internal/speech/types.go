// Package speech implements the three-tier transcription pipeline: a native
// streaming backend, a server batch backend, and a browser relay fallback,
// with automatic downgrade-only failover between them and cumulative
// word/filler accounting over finalized utterance segments.
package speech

import "context"

// Mode identifies which transcription backend is active
type Mode string

const (
	ModeDetecting   Mode = "detecting"
	ModeNative      Mode = "native"
	ModeServerBatch Mode = "server_batch"
	ModeBrowser     Mode = "browser_relay"
	ModeStopped     Mode = "stopped"
)

// Segment is one utterance segment delivered by a backend. Interim segments
// are revisable hypotheses; only final segments affect counts.
type Segment struct {
	Text       string
	IsFinal    bool
	Confidence float64
}

// Backend is a transcription tier. Start may fail, which means the tier is
// unavailable and the pipeline moves to the next one. Runtime failures that
// the backend cannot recover from internally are reported on Failures and
// trigger pipeline-level restart or failover. Stop must be idempotent.
type Backend interface {
	Name() string
	Mode() Mode
	Start(ctx context.Context) error
	SendAudio(data []byte) error
	Segments() <-chan Segment
	Failures() <-chan error
	Stop() error
}

// Result is the cumulative transcription state surfaced to subscribers
// after every applied segment.
type Result struct {
	FullTranscript    string   `json:"fullTranscript"`
	InterimTranscript string   `json:"interimTranscript"`
	WordCount         int      `json:"wordCount"`
	FillerCount       int      `json:"fillerCount"`
	FillerWords       []string `json:"fillerWords"`
	WPM               int      `json:"wpm"`
	Mode              Mode     `json:"mode"`
}

// ResultHandler receives a Result snapshot after each transcription update
type ResultHandler func(Result)

// ModeChangeHandler is notified once per backend mode transition
type ModeChangeHandler func(Mode)

package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/podiumai/coach-gateway/internal/config"
)

func testConfig(whisperURL string) *config.Config {
	return &config.Config{
		WhisperURL:                 whisperURL,
		WhisperHealthTimeout:       1000,
		WhisperMaxLatency:          200,
		WhisperChunkDuration:       50,
		WhisperRequestTimeout:      1000,
		AudioSampleRate:            16000,
		AudioBufferSize:            65536,
		CircuitBreakerMaxFailures:  5,
		CircuitBreakerResetTimeout: 30,
		RestartBackoff:             1,
		RestartMaxAttempts:         2,
	}
}

func healthyHandler(transcript string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/health"):
			json.NewEncoder(w).Encode(healthResponse{Status: "ok", ModelLoaded: true})
		case strings.HasSuffix(r.URL.Path, "/transcribe"):
			json.NewEncoder(w).Encode(transcribeResponse{Transcript: transcript})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}
}

func TestWhisperHealthOK(t *testing.T) {
	srv := httptest.NewServer(healthyHandler(""))
	defer srv.Close()

	c := NewWhisperClient(testConfig(srv.URL), zerolog.Nop())
	if err := c.Health(context.Background()); err != nil {
		t.Fatalf("expected healthy probe, got %v", err)
	}
}

func TestWhisperHealthLatencyGate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
	}))
	defer srv.Close()

	c := NewWhisperClient(testConfig(srv.URL), zerolog.Nop())
	if err := c.Health(context.Background()); err == nil {
		t.Fatal("expected a slow but healthy service to fail the probe")
	}
}

func TestWhisperHealthServerDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewWhisperClient(testConfig(srv.URL), zerolog.Nop())
	if err := c.Health(context.Background()); err == nil {
		t.Fatal("expected probe failure for unavailable service")
	}
}

func TestWhisperTranscribe(t *testing.T) {
	pcm := []byte{0x01, 0x02, 0x03, 0x04}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req transcribeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}

		encoded, found := strings.CutPrefix(req.Audio, "data:audio/pcm;base64,")
		if !found {
			t.Errorf("expected a data URL payload, got %q", req.Audio)
		}
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil || !bytes.Equal(decoded, pcm) {
			t.Errorf("payload does not round-trip: %v %v", decoded, err)
		}
		if req.SampleRate != 16000 {
			t.Errorf("expected sample rate 16000, got %d", req.SampleRate)
		}

		json.NewEncoder(w).Encode(transcribeResponse{Transcript: "hello there"})
	}))
	defer srv.Close()

	c := NewWhisperClient(testConfig(srv.URL), zerolog.Nop())
	text, err := c.Transcribe(context.Background(), pcm)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello there" {
		t.Errorf("expected transcript %q, got %q", "hello there", text)
	}
}

func TestWhisperTranscribeRetriesTransientFailure(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			// First attempt stalls past the request timeout
			time.Sleep(500 * time.Millisecond)
			return
		}
		json.NewEncoder(w).Encode(transcribeResponse{Transcript: "second try"})
	}))
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.WhisperRequestTimeout = 150

	c := NewWhisperClient(cfg, zerolog.Nop())
	text, err := c.Transcribe(context.Background(), []byte{1, 2})
	if err != nil {
		t.Fatalf("expected the retry to recover, got %v", err)
	}
	if text != "second try" {
		t.Errorf("expected transcript %q, got %q", "second try", text)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("expected 2 attempts, got %d", n)
	}
}

func TestWhisperTranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewWhisperClient(testConfig(srv.URL), zerolog.Nop())
	if _, err := c.Transcribe(context.Background(), []byte{1, 2}); err == nil {
		t.Fatal("expected an error for a failing service")
	}
}

func TestServerBatchBackendChunkFlow(t *testing.T) {
	srv := httptest.NewServer(healthyHandler("testing one two"))
	defer srv.Close()

	b := NewServerBatchBackend(testConfig(srv.URL), nil, zerolog.Nop())
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer b.Stop()

	if err := b.SendAudio(make([]byte, 640)); err != nil {
		t.Fatalf("SendAudio failed: %v", err)
	}

	select {
	case seg := <-b.Segments():
		if !seg.IsFinal {
			t.Error("batch segments must be final")
		}
		if seg.Text != "testing one two" {
			t.Errorf("unexpected segment text %q", seg.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a transcribed chunk")
	}
}

func TestServerBatchBackendStopIdempotent(t *testing.T) {
	srv := httptest.NewServer(healthyHandler(""))
	defer srv.Close()

	b := NewServerBatchBackend(testConfig(srv.URL), nil, zerolog.Nop())
	if err := b.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := b.Stop(); err != nil {
		t.Fatalf("first Stop failed: %v", err)
	}
	if err := b.Stop(); err != nil {
		t.Fatalf("second Stop must be a no-op, got %v", err)
	}

	if err := b.SendAudio([]byte{1, 2}); err == nil {
		t.Error("expected SendAudio to fail after Stop")
	}
}

package speech

import (
	"reflect"
	"testing"
	"time"
)

func newTestAccumulator() *Accumulator {
	return NewAccumulator(NewFillerDetector([]string{"um", "uh", "you know"}))
}

// An interim hypothesis followed by its finalization must be counted
// exactly once.
func TestAccumulatorInterimNeverCounts(t *testing.T) {
	a := newTestAccumulator()

	a.Apply(Segment{Text: "um I think", IsFinal: false})

	snap := a.Snapshot(ModeNative)
	if snap.WordCount != 0 || snap.FillerCount != 0 {
		t.Errorf("interim segment must not affect counts, got words=%d fillers=%d",
			snap.WordCount, snap.FillerCount)
	}
	if snap.InterimTranscript != "um I think" {
		t.Errorf("expected interim display %q, got %q", "um I think", snap.InterimTranscript)
	}

	a.Apply(Segment{Text: "um I think so", IsFinal: true})

	snap = a.Snapshot(ModeNative)
	if snap.WordCount != 4 {
		t.Errorf("expected 4 words, got %d", snap.WordCount)
	}
	if snap.FillerCount != 1 {
		t.Errorf("expected 1 filler, got %d", snap.FillerCount)
	}
	if snap.InterimTranscript != "" {
		t.Errorf("finalization must clear the interim display, got %q", snap.InterimTranscript)
	}
	if snap.FullTranscript != "um I think so" {
		t.Errorf("unexpected transcript %q", snap.FullTranscript)
	}
}

func TestAccumulatorAppendsSegments(t *testing.T) {
	a := newTestAccumulator()

	a.Apply(Segment{Text: "hello everyone", IsFinal: true})
	a.Apply(Segment{Text: "um you know thanks", IsFinal: true})

	snap := a.Snapshot(ModeServerBatch)
	if snap.FullTranscript != "hello everyone um you know thanks" {
		t.Errorf("unexpected transcript %q", snap.FullTranscript)
	}
	if snap.WordCount != 6 {
		t.Errorf("expected 6 words, got %d", snap.WordCount)
	}
	if want := []string{"um", "you know"}; !reflect.DeepEqual(snap.FillerWords, want) {
		t.Errorf("expected filler words %v, got %v", want, snap.FillerWords)
	}
	if snap.Mode != ModeServerBatch {
		t.Errorf("expected mode %q, got %q", ModeServerBatch, snap.Mode)
	}
}

func TestAccumulatorEmptyFinalSegment(t *testing.T) {
	a := newTestAccumulator()

	a.Apply(Segment{Text: "   ", IsFinal: true})

	snap := a.Snapshot(ModeNative)
	if snap.WordCount != 0 || snap.FullTranscript != "" {
		t.Errorf("blank final segment must be a no-op, got %+v", snap)
	}
}

func TestAccumulatorWPM(t *testing.T) {
	a := newTestAccumulator()

	current := time.Unix(1000, 0)
	a.now = func() time.Time { return current }
	a.Reset()

	// No elapsed time means no rate
	if wpm := a.Snapshot(ModeNative).WPM; wpm != 0 {
		t.Errorf("expected WPM 0 with no elapsed time, got %d", wpm)
	}

	a.Apply(Segment{Text: "one two three four five six seven eight nine ten", IsFinal: true})
	current = current.Add(30 * time.Second)

	// 10 words in half a minute
	if wpm := a.Snapshot(ModeNative).WPM; wpm != 20 {
		t.Errorf("expected WPM 20, got %d", wpm)
	}
}

func TestAccumulatorReset(t *testing.T) {
	a := newTestAccumulator()

	a.Apply(Segment{Text: "um hello", IsFinal: true})
	a.Reset()

	snap := a.Snapshot(ModeNative)
	if snap.WordCount != 0 || snap.FillerCount != 0 || snap.FullTranscript != "" {
		t.Errorf("expected cleared state after reset, got %+v", snap)
	}
}

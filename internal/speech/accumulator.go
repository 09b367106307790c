package speech

import (
	"math"
	"strings"
	"sync"
	"time"
)

// Accumulator folds utterance segments into the cumulative transcript and
// word/filler counts. Only final segments touch the counts; interim
// segments update a transient display string that the next segment
// replaces. This is what keeps a revised hypothesis from being counted
// twice.
type Accumulator struct {
	mu sync.Mutex

	detector *FillerDetector

	transcript  strings.Builder
	interim     string
	wordCount   int
	fillerCount int
	fillerWords []string

	started time.Time
	now     func() time.Time
}

// NewAccumulator creates an accumulator using the given filler detector.
// The WPM clock starts immediately.
func NewAccumulator(detector *FillerDetector) *Accumulator {
	a := &Accumulator{
		detector: detector,
		now:      time.Now,
	}
	a.started = a.now()
	return a
}

// Apply folds one segment into the accumulated state
func (a *Accumulator) Apply(seg Segment) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !seg.IsFinal {
		a.interim = seg.Text
		return
	}

	text := strings.TrimSpace(seg.Text)
	a.interim = ""
	if text == "" {
		return
	}

	if a.transcript.Len() > 0 {
		a.transcript.WriteByte(' ')
	}
	a.transcript.WriteString(text)
	a.wordCount += len(strings.Fields(text))

	matches := a.detector.Detect(strings.ToLower(text))
	a.fillerCount += len(matches)
	a.fillerWords = append(a.fillerWords, matches...)
}

// Snapshot returns the current cumulative state. WPM is computed on demand
// from elapsed time since the accumulator was created; it is 0 before any
// time has elapsed.
func (a *Accumulator) Snapshot(mode Mode) Result {
	a.mu.Lock()
	defer a.mu.Unlock()

	wpm := 0
	if minutes := a.now().Sub(a.started).Minutes(); minutes > 0 {
		wpm = int(math.Round(float64(a.wordCount) / minutes))
	}

	return Result{
		FullTranscript:    a.transcript.String(),
		InterimTranscript: a.interim,
		WordCount:         a.wordCount,
		FillerCount:       a.fillerCount,
		FillerWords:       append([]string(nil), a.fillerWords...),
		WPM:               wpm,
		Mode:              mode,
	}
}

// Reset clears all accumulated state and restarts the WPM clock
func (a *Accumulator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.transcript.Reset()
	a.interim = ""
	a.wordCount = 0
	a.fillerCount = 0
	a.fillerWords = nil
	a.started = a.now()
}

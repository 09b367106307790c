package session

import (
	"reflect"
	"testing"

	"github.com/podiumai/coach-gateway/internal/posture"
)

func TestAggregatorReduce(t *testing.T) {
	a := NewAggregator()

	a.Append(Snapshot{
		TimestampMs:       1000,
		PostureScore:      100,
		EyeContactPercent: 80,
		SpeechRate:        120,
		FillerCount:       1,
		FillerWords:       []string{"um"},
		Issues:            []string{"uneven shoulders"},
		GestureType:       posture.GestureMinimal,
	})
	a.Append(Snapshot{
		TimestampMs:       2000,
		PostureScore:      80,
		EyeContactPercent: 60,
		SpeechRate:        140,
		FillerCount:       3,
		FillerWords:       []string{"um", "like"},
		Issues:            []string{"uneven shoulders", "leaning to one side"},
		GestureType:       posture.GestureActive,
	})

	sum := a.Reduce()

	if sum.SnapshotCount != 2 {
		t.Errorf("expected 2 snapshots, got %d", sum.SnapshotCount)
	}
	if sum.PostureAverage != 90 {
		t.Errorf("expected posture average 90, got %v", sum.PostureAverage)
	}
	if sum.EngagementAverage != 70 {
		t.Errorf("expected engagement average 70, got %v", sum.EngagementAverage)
	}
	if sum.SpeechRateAverage != 130 {
		t.Errorf("expected speech rate average 130, got %v", sum.SpeechRateAverage)
	}
	if sum.TotalFillerCount != 3 {
		t.Errorf("filler counts are cumulative, expected total 3, got %d", sum.TotalFillerCount)
	}
	if want := []string{"um", "like"}; !reflect.DeepEqual(sum.FillerWords, want) {
		t.Errorf("expected deduplicated fillers %v, got %v", want, sum.FillerWords)
	}
	if want := []string{"uneven shoulders", "leaning to one side"}; !reflect.DeepEqual(sum.Issues, want) {
		t.Errorf("expected issue union %v, got %v", want, sum.Issues)
	}
	if sum.DurationMs != 1000 {
		t.Errorf("expected duration 1000ms, got %d", sum.DurationMs)
	}

	// 90*0.3 + 70*0.4 + 50*0.3 = 70
	if sum.OverallScore != 70 {
		t.Errorf("expected overall score 70, got %d", sum.OverallScore)
	}
}

// The reduction must be replayable: reducing twice gives identical results
// and never mutates the stored history.
func TestAggregatorReduceIsPure(t *testing.T) {
	a := NewAggregator()
	a.Append(Snapshot{TimestampMs: 1, PostureScore: 90, FillerWords: []string{"um"}})
	a.Append(Snapshot{TimestampMs: 2, PostureScore: 70, FillerWords: []string{"uh"}})

	first := a.Reduce()
	second := a.Reduce()
	if !reflect.DeepEqual(first, second) {
		t.Errorf("reduce is not replayable: %+v vs %+v", first, second)
	}
	if a.Len() != 2 {
		t.Errorf("reduce must not change history length, got %d", a.Len())
	}
}

func TestAggregatorEmpty(t *testing.T) {
	sum := NewAggregator().Reduce()
	if sum.SnapshotCount != 0 || sum.OverallScore != 0 || sum.PostureAverage != 0 {
		t.Errorf("expected zero summary for empty history, got %+v", sum)
	}
}

// Stored snapshots must be immutable copies
func TestAggregatorCopiesSlices(t *testing.T) {
	a := NewAggregator()

	fillers := []string{"um"}
	a.Append(Snapshot{FillerWords: fillers})
	fillers[0] = "mutated"

	if got := a.History()[0].FillerWords[0]; got != "um" {
		t.Errorf("stored snapshot shares caller memory, got %q", got)
	}
}

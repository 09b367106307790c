package audio

import (
	"sync"
)

// ChunkBuffer accumulates PCM audio between batch transcription ticks.
// Writes append; Drain hands the accumulated chunk to the caller and resets.
// Bounded so a stalled consumer cannot grow memory without limit: once full,
// the oldest audio is discarded to make room (losing the oldest fraction of
// a chunk beats losing the live tail).
type ChunkBuffer struct {
	mu   sync.Mutex
	data []byte
	max  int
}

// NewChunkBuffer creates a chunk buffer holding at most max bytes
func NewChunkBuffer(max int) *ChunkBuffer {
	return &ChunkBuffer{
		data: make([]byte, 0, max),
		max:  max,
	}
}

// Write appends audio data, evicting the oldest bytes if the buffer is full.
// Returns the number of bytes evicted.
func (b *ChunkBuffer) Write(p []byte) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(p) >= b.max {
		// Incoming data alone overflows the buffer; keep its tail
		evicted := len(b.data) + len(p) - b.max
		b.data = append(b.data[:0], p[len(p)-b.max:]...)
		return evicted
	}

	overflow := len(b.data) + len(p) - b.max
	if overflow > 0 {
		b.data = b.data[overflow:]
	}
	b.data = append(b.data, p...)

	if overflow > 0 {
		return overflow
	}
	return 0
}

// Drain returns the accumulated audio and resets the buffer
func (b *ChunkBuffer) Drain() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.data) == 0 {
		return nil
	}

	out := make([]byte, len(b.data))
	copy(out, b.data)
	b.data = b.data[:0]
	return out
}

// Len returns the number of buffered bytes
func (b *ChunkBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Clear discards all buffered audio
func (b *ChunkBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

// Package ringbuffer provides a fixed-capacity float32 sample buffer shared
// between one producer and one consumer. It never blocks and never grows:
// writes which do not fit push out the oldest unread samples.
package ringbuffer

import (
	"fmt"
	"io"
	"sync"

	"github.com/iamcalledrob/circular"
	"github.com/xaionaro-go/poise/pkg/audio/pcm"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

const sampleSize = 4

type RingBuffer struct {
	locker   sync.Mutex
	storage  *circular.Buffer
	capacity int
	count    int
	dropped  uint64
	discard  []byte
}

func New(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, errkind.Configf("ring buffer capacity must be positive, but received %d", capacity)
	}
	return &RingBuffer{
		// the storage gets one spare sample over the accounted capacity
		storage:  circular.NewBuffer((capacity + 1) * sampleSize),
		capacity: capacity,
		discard:  make([]byte, capacity*sampleSize),
	}, nil
}

// Write always succeeds. It returns true if any samples were dropped
// to make room (either buffered ones or the head of samples itself).
func (b *RingBuffer) Write(samples []float32) (dropped bool) {
	b.locker.Lock()
	defer b.locker.Unlock()

	if len(samples) > b.capacity {
		b.dropped += uint64(len(samples) - b.capacity)
		samples = samples[len(samples)-b.capacity:]
		dropped = true
	}
	if excess := b.count + len(samples) - b.capacity; excess > 0 {
		b.skip(excess)
		b.dropped += uint64(excess)
		dropped = true
	}
	if len(samples) == 0 {
		return
	}

	raw := pcm.Float32sAsBytes(samples)
	n, err := b.storage.Write(raw)
	if err != nil || n != len(raw) {
		panic(fmt.Errorf("internal error: wrote %d bytes out of %d into a buffer with %d free samples: %v", n, len(raw), b.capacity-b.count, err))
	}
	b.count += len(samples)
	return
}

// Read returns exactly n samples or false if less than n are available.
func (b *RingBuffer) Read(n int) ([]float32, bool) {
	if n < 0 {
		return nil, false
	}
	out := make([]float32, n)
	if !b.ReadInto(out) {
		return nil, false
	}
	return out, true
}

// ReadInto fills the whole dst or returns false leaving the buffer
// untouched if not enough samples are available.
func (b *RingBuffer) ReadInto(dst []float32) bool {
	b.locker.Lock()
	defer b.locker.Unlock()

	if len(dst) > b.count {
		return false
	}
	if len(dst) == 0 {
		return true
	}
	b.readFull(pcm.Float32sAsBytes(dst))
	b.count -= len(dst)
	return true
}

func (b *RingBuffer) Available() int {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.count
}

func (b *RingBuffer) Capacity() int {
	return b.capacity
}

// Dropped returns the total amount of samples dropped since creation.
func (b *RingBuffer) Dropped() uint64 {
	b.locker.Lock()
	defer b.locker.Unlock()
	return b.dropped
}

// Clear discards all the buffered samples. The storage is kept.
func (b *RingBuffer) Clear() {
	b.locker.Lock()
	defer b.locker.Unlock()
	b.skip(b.count)
}

func (b *RingBuffer) skip(samples int) {
	if samples > b.count {
		samples = b.count
	}
	if samples <= 0 {
		return
	}
	b.readFull(b.discard[:samples*sampleSize])
	b.count -= samples
}

func (b *RingBuffer) readFull(dst []byte) {
	n, err := io.ReadFull(b.storage, dst)
	if err != nil {
		panic(fmt.Errorf("internal error: read %d bytes out of %d with %d samples accounted: %w", n, len(dst), b.count, err))
	}
}

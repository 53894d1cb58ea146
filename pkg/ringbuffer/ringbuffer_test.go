package ringbuffer

import (
	"math/rand"
	"sync"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

func seq(from, n int) []float32 {
	r := make([]float32, n)
	for idx := range r {
		r[idx] = float32(from + idx)
	}
	return r
}

func TestNewInvalidCapacity(t *testing.T) {
	_, err := New(0)
	require.Error(t, err)
	assert.Equal(t, errkind.KindConfig, errkind.KindOf(err))
}

func TestWriteRead(t *testing.T) {
	b, err := New(8)
	require.NoError(t, err)

	assert.False(t, b.Write(seq(0, 5)))
	assert.Equal(t, 5, b.Available())

	_, ok := b.Read(6)
	assert.False(t, ok)
	assert.Equal(t, 5, b.Available(), "a failed read must not consume anything")

	out, ok := b.Read(3)
	require.True(t, ok)
	assert.Equal(t, seq(0, 3), out)
	assert.Equal(t, 2, b.Available())

	// wrap around the storage
	assert.False(t, b.Write(seq(5, 6)))
	out, ok = b.Read(8)
	require.True(t, ok)
	assert.Equal(t, seq(3, 8), out)
	assert.Zero(t, b.Available())

	out, ok = b.Read(0)
	assert.True(t, ok)
	assert.Empty(t, out)
}

func TestOverflowDropsOldest(t *testing.T) {
	b, err := New(4800)
	require.NoError(t, err)

	assert.False(t, b.Write(make([]float32, 4800)))
	marker := make([]float32, 480)
	for idx := range marker {
		marker[idx] = 1
	}
	assert.True(t, b.Write(marker))
	assert.Equal(t, 4800, b.Available())
	assert.Equal(t, uint64(480), b.Dropped())

	// the first chunk read now is the second 480-sample chunk of zeros
	out, ok := b.Read(480)
	require.True(t, ok)
	assert.Equal(t, make([]float32, 480), out)

	// and the newest data is at the tail
	rest, ok := b.Read(4320)
	require.True(t, ok)
	assert.Equal(t, marker, rest[len(rest)-480:])
}

func TestWriteLongerThanCapacity(t *testing.T) {
	b, err := New(4)
	require.NoError(t, err)

	b.Write(seq(100, 2))
	assert.True(t, b.Write(seq(0, 10)))
	assert.Equal(t, 4, b.Available())

	out, ok := b.Read(4)
	require.True(t, ok)
	assert.Equal(t, seq(6, 4), out, "must keep the newest samples")
	assert.Equal(t, uint64(8), b.Dropped())
}

func TestClear(t *testing.T) {
	b, err := New(16)
	require.NoError(t, err)

	b.Write(seq(0, 10))
	b.Clear()
	assert.Zero(t, b.Available())

	b.Write(seq(50, 16))
	out, ok := b.Read(16)
	require.True(t, ok)
	assert.Equal(t, seq(50, 16), out)
}

// TestAgainstModel compares random operation sequences with a naive
// slice-backed implementation.
func TestAgainstModel(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for _, capacity := range []int{1, 7, 64, 480} {
		b, err := New(capacity)
		require.NoError(t, err)

		var model []float32
		next := 0
		for step := 0; step < 2000; step++ {
			if rng.Intn(2) == 0 {
				samples := seq(next, rng.Intn(capacity*2+1))
				next += len(samples)
				model = append(model, samples...)
				expectDrop := len(model) > capacity
				if expectDrop {
					model = model[len(model)-capacity:]
				}
				require.Equal(t, expectDrop, b.Write(samples))
			} else {
				n := rng.Intn(capacity + 2)
				out, ok := b.Read(n)
				require.Equal(t, n <= len(model), ok)
				if ok {
					require.Len(t, out, n, spew.Sdump(step, capacity))
					for idx := range out {
						require.Equal(t, model[idx], out[idx], spew.Sdump(step, capacity, idx))
					}
					model = model[n:]
				}
			}
			require.LessOrEqual(t, b.Available(), capacity)
			require.Equal(t, len(model), b.Available())
		}
	}
}

func TestConcurrentProducerConsumer(t *testing.T) {
	b, err := New(1024)
	require.NoError(t, err)

	const total = 100_000
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for written := 0; written < total; written += 100 {
			b.Write(seq(written, 100))
		}
	}()

	last := float32(-1)
	buf := make([]float32, 50)
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	for {
		if b.ReadInto(buf) {
			for _, v := range buf {
				// drops are allowed, reordering is not
				require.Greater(t, v, last)
				last = v
			}
			continue
		}
		select {
		case <-done:
			if b.Available() < len(buf) {
				return
			}
		default:
		}
	}
}

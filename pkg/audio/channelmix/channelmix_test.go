package channelmix

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

func TestDownmix(t *testing.T) {
	in := []float32{1, 0, 0.5, 0.5, -1, 1}
	out := make([]float32, 3)
	require.NoError(t, Downmix(2, out, in))
	require.Equal(t, []float32{0.5, 0.5, 0}, out, spew.Sdump(in))

	require.Error(t, Downmix(2, make([]float32, 2), in))
	require.Error(t, Downmix(4, out, in))
	require.Error(t, Downmix(0, out, in))
}

func TestDownmixMono(t *testing.T) {
	in := []float32{0.1, 0.2}
	out := make([]float32, 2)
	require.NoError(t, Downmix(1, out, in))
	require.Equal(t, in, out)
}

func TestUpmix(t *testing.T) {
	in := []float32{0.25, -0.5}
	out := make([]float32, 4)
	require.NoError(t, Upmix(2, out, in))
	require.Equal(t, []float32{0.25, 0.25, -0.5, -0.5}, out, spew.Sdump(in))

	require.Error(t, Upmix(2, make([]float32, 3), in))
}

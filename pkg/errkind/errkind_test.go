package errkind

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindOf(t *testing.T) {
	base := errors.New("boom")

	assert.Equal(t, KindUndefined, KindOf(nil))
	assert.Equal(t, KindFatal, KindOf(base))
	assert.Equal(t, KindConfig, KindOf(Config(base)))
	assert.Equal(t, KindTransient, KindOf(fmt.Errorf("unable to open: %w", Transient(base))))

	// the outermost classification wins
	err := Fatal(fmt.Errorf("retries exhausted: %w", Transient(base)))
	assert.Equal(t, KindFatal, KindOf(err))
	assert.True(t, Is(err, KindFatal))
	require.ErrorIs(t, err, base)
}

func TestNewNil(t *testing.T) {
	assert.NoError(t, Config(nil))
	assert.NoError(t, Fatal(nil))
}

func TestErrorString(t *testing.T) {
	err := Configf("invalid sample rate: %d", 0)
	assert.Equal(t, "config error: invalid sample rate: 0", err.Error())
}

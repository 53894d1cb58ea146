package pulseaudio

import (
	"testing"

	"github.com/jfreymuth/pulse/proto"
	"github.com/stretchr/testify/assert"
	"github.com/xaionaro-go/poise/pkg/audio/types"
)

func TestChannelCount(t *testing.T) {
	stereo := proto.ChannelMap{proto.ChannelFrontLeft, proto.ChannelFrontRight}
	assert.Equal(t, types.Channel(2), channelCount(stereo))
	assert.Equal(t, types.Channel(1), channelCount(proto.ChannelMap{proto.ChannelMono}))
	assert.Equal(t, types.Channel(1), channelCount(nil))
}

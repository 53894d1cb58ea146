package frameprocessor

import (
	"fmt"
	"time"

	"github.com/xaionaro-go/poise/pkg/vad"
)

type Stats struct {
	FrameCount         uint64
	TotalInferenceTime time.Duration
	AvgTimeMS          float64

	// RTF is the average inference time divided by the frame duration,
	// values >= 1 mean the pipeline can't keep up with real time.
	RTF float64

	VADEnabled bool
	VAD        vad.Stats
}

func (s Stats) String() string {
	str := fmt.Sprintf("frames:%d avg:%.2fms rtf:%.3f", s.FrameCount, s.AvgTimeMS, s.RTF)
	if s.VADEnabled {
		str += " vad:{" + s.VAD.String() + "}"
	}
	return str
}

func (p *FrameProcessor) Stats() Stats {
	s := Stats{
		FrameCount:         p.frameCount,
		TotalInferenceTime: p.totalInferenceTime,
	}
	if p.frameCount > 0 {
		s.AvgTimeMS = float64(p.totalInferenceTime) / float64(time.Millisecond) / float64(p.frameCount)
		frameDurationMS := float64(p.Config.FrameSize) / float64(p.Config.TargetSampleRate) * 1000
		s.RTF = s.AvgTimeMS / frameDurationMS
	}
	if p.gate != nil {
		s.VADEnabled = true
		s.VAD = p.gate.Stats()
	}
	return s
}

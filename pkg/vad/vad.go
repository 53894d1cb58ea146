// Package vad implements an energy-threshold voice activity gate with
// hysteresis ("hang time"), used to skip model inference during silence.
package vad

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/facebookincubator/go-belt/tool/logger"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

const (
	DefaultThresholdDB = -40.0
	DefaultHangTime    = 300 * time.Millisecond
)

// Classifier is an optional second opinion consulted for frames
// exceeding the energy threshold.
type Classifier interface {
	IsSpeech(ctx context.Context, frame []float32) (bool, error)
}

type Config struct {
	ThresholdDB float64
	HangTime    time.Duration
	SampleRate  types.SampleRate
	FrameSize   int
	Classifier  Classifier
}

type Stats struct {
	Total       uint64
	Active      uint64
	Bypassed    uint64
	BypassRatio float64
}

type Gate struct {
	thresholdDB       float64
	thresholdLinear   float64
	hangFrames        int
	framesSinceActive int
	classifier        Classifier

	total    uint64
	active   uint64
	bypassed uint64
}

func NewGate(cfg Config) (*Gate, error) {
	if cfg.SampleRate == 0 {
		return nil, errkind.Configf("invalid sample rate: %d", cfg.SampleRate)
	}
	if cfg.FrameSize <= 0 {
		return nil, errkind.Configf("invalid frame size: %d", cfg.FrameSize)
	}
	if cfg.HangTime < 0 {
		return nil, errkind.Configf("negative hang time: %v", cfg.HangTime)
	}
	if math.IsNaN(cfg.ThresholdDB) || math.IsInf(cfg.ThresholdDB, 0) {
		return nil, errkind.Configf("invalid threshold: %v", cfg.ThresholdDB)
	}

	g := &Gate{
		hangFrames: int(int64(cfg.HangTime) * int64(cfg.SampleRate) / int64(time.Second) / int64(cfg.FrameSize)),
		classifier: cfg.Classifier,
	}
	g.SetThreshold(cfg.ThresholdDB)
	g.Reset()
	return g, nil
}

// HangFrames is the amount of silent frames after the last active one
// which are still reported as speech.
func (g *Gate) HangFrames() int {
	return g.hangFrames
}

func (g *Gate) ThresholdDB() float64 {
	return g.thresholdDB
}

// SetThreshold changes the threshold; the statistics and the hang
// counter are kept.
func (g *Gate) SetThreshold(thresholdDB float64) {
	g.thresholdDB = thresholdDB
	g.thresholdLinear = math.Pow(10, thresholdDB/20)
}

func RMS(frame []float32) float64 {
	if len(frame) == 0 {
		return 0
	}
	var sum float64
	for _, v := range frame {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum / float64(len(frame)))
}

func (g *Gate) IsSpeech(ctx context.Context, frame []float32) bool {
	g.total++

	if g.isActive(ctx, frame) {
		g.framesSinceActive = 0
		g.active++
		return true
	}

	g.framesSinceActive++
	if g.framesSinceActive < g.hangFrames {
		g.active++
		return true
	}
	g.bypassed++
	return false
}

func (g *Gate) isActive(ctx context.Context, frame []float32) bool {
	if RMS(frame) <= g.thresholdLinear {
		return false
	}
	if g.classifier == nil {
		return true
	}
	isSpeech, err := g.classifier.IsSpeech(ctx, frame)
	if err != nil {
		logger.Tracef(ctx, "the classifier %T failed, relying on the energy only: %v", g.classifier, err)
		return true
	}
	return isSpeech
}

func (g *Gate) Stats() Stats {
	s := Stats{
		Total:    g.total,
		Active:   g.active,
		Bypassed: g.bypassed,
	}
	if s.Total > 0 {
		s.BypassRatio = float64(s.Bypassed) / float64(s.Total)
	}
	return s
}

func (s Stats) String() string {
	return fmt.Sprintf("total:%d active:%d bypassed:%d (%.1f%%)", s.Total, s.Active, s.Bypassed, s.BypassRatio*100)
}

func (g *Gate) Reset() {
	g.framesSinceActive = g.hangFrames + 1
	g.total = 0
	g.active = 0
	g.bypassed = 0
}

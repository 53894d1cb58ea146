package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jfreymuth/oggvorbis"
	"github.com/xaionaro-go/poise/pkg/audio/channelmix"
	"github.com/xaionaro-go/poise/pkg/audio/pcm"
	"github.com/xaionaro-go/poise/pkg/audio/types"
	"github.com/xaionaro-go/poise/pkg/errkind"
)

type audioInput struct {
	Samples    []float32
	SampleRate types.SampleRate
}

func readInput(
	path string,
	rawFormat types.PCMFormat,
	rawRate types.SampleRate,
) (*audioInput, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errkind.Config(fmt.Errorf("unable to open %q: %w", path, err))
	}
	defer f.Close()

	if strings.HasSuffix(strings.ToLower(path), ".ogg") {
		return readVorbis(f)
	}
	return readRaw(f, rawFormat, rawRate)
}

func readVorbis(r io.Reader) (*audioInput, error) {
	oggReader, err := oggvorbis.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("unable to initialize a vorbis reader: %w", err)
	}
	channels := types.Channel(oggReader.Channels())
	if channels == 0 {
		return nil, fmt.Errorf("the vorbis stream has no channels")
	}

	var interleaved []float32
	buf := make([]float32, 4096*int(channels))
	for {
		n, err := oggReader.Read(buf)
		interleaved = append(interleaved, buf[:n]...)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("unable to decode vorbis: %w", err)
		}
	}

	interleaved = interleaved[:len(interleaved)/int(channels)*int(channels)]
	mono := make([]float32, len(interleaved)/int(channels))
	if err := channelmix.Downmix(channels, mono, interleaved); err != nil {
		return nil, err
	}
	return &audioInput{
		Samples:    mono,
		SampleRate: types.SampleRate(oggReader.SampleRate()),
	}, nil
}

// readRaw reads mono PCM, a trailing partial sample is ignored.
func readRaw(
	r io.Reader,
	format types.PCMFormat,
	sampleRate types.SampleRate,
) (*audioInput, error) {
	if sampleRate == 0 {
		return nil, errkind.Configf("invalid sample rate: %d", sampleRate)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unable to read the input: %w", err)
	}
	sampleSize := int(format.Size())
	if sampleSize == 0 {
		return nil, errkind.Configf("unsupported PCM format %s", format)
	}
	data = data[:len(data)/sampleSize*sampleSize]
	samples := make([]float32, len(data)/sampleSize)
	if _, err := pcm.Decode(format, samples, data); err != nil {
		return nil, err
	}
	return &audioInput{
		Samples:    samples,
		SampleRate: sampleRate,
	}, nil
}

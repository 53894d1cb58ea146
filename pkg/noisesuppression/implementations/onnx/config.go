package onnx

import (
	"os"
	"path/filepath"

	"github.com/xaionaro-go/poise/pkg/errkind"
)

const (
	DefaultModelFile      = "denoiser_model.onnx"
	DefaultStateSize      = 45304
	DefaultFrameSize      = 480
	DefaultAttenLimDB     = -60.0
	DefaultIntraOpThreads = 2
	DefaultInterOpThreads = 1

	EnvSharedLibraryPath = "ONNXRUNTIME_LIB"

	InputNameFrame      = "input_frame"
	InputNameStates     = "states"
	InputNameAttenLimDB = "atten_lim_db"

	OutputNameEnhanced  = "enhanced_audio_frame"
	OutputNameNewStates = "new_states"
	OutputNameLSNR      = "lsnr"
)

type Config struct {
	ModelPath         string
	FrameSize         int
	StateSize         int
	AttenLimDB        float32
	IntraOpThreads    int
	InterOpThreads    int
	SharedLibraryPath string
}

func DefaultConfig() Config {
	return Config{
		ModelPath:         DefaultModelFile,
		FrameSize:         DefaultFrameSize,
		StateSize:         DefaultStateSize,
		AttenLimDB:        DefaultAttenLimDB,
		IntraOpThreads:    DefaultIntraOpThreads,
		InterOpThreads:    DefaultInterOpThreads,
		SharedLibraryPath: os.Getenv(EnvSharedLibraryPath),
	}
}

// ResolveModelPath looks for the model as given (absolute, or relative to
// the working directory), then next to the executable, then in the
// working directory by its base name.
func ResolveModelPath(path string) (string, error) {
	if path == "" {
		return "", errkind.Configf("the model path is empty")
	}

	var candidates []string
	candidates = append(candidates, path)
	if !filepath.IsAbs(path) {
		if exe, err := os.Executable(); err == nil {
			candidates = append(candidates, filepath.Join(filepath.Dir(exe), path))
		}
		if wd, err := os.Getwd(); err == nil {
			candidates = append(candidates, filepath.Join(wd, filepath.Base(path)))
		}
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", errkind.Configf("the model file %q is not found (tried: %v)", path, candidates)
}

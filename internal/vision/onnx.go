package vision

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/alvares777-IA/cameras-arcos/internal/config"
	"github.com/alvares777-IA/cameras-arcos/internal/observability"
)

const (
	detectorModel = "det_10g.onnx"
	embedderModel = "w600k_r50.onnx"

	fastInputSize     = 320
	accurateInputSize = 640
)

// ONNXAnalyzer implements Analyzer with RetinaFace and ArcFace on ONNX Runtime.
type ONNXAnalyzer struct {
	opts        *ort.SessionOptions
	accelerated bool
	modelPath   string
	threshold   float32

	embedder *embedder

	mu        sync.Mutex
	detectors map[Model]*detector
}

// NewONNXAnalyzer initialises ONNX Runtime and loads the models from
// cfg.ModelsDir. Any failure is reported wrapped in ErrUnavailable.
func NewONNXAnalyzer(cfg config.VisionConfig) (*ONNXAnalyzer, error) {
	detPath := filepath.Join(cfg.ModelsDir, detectorModel)
	embPath := filepath.Join(cfg.ModelsDir, embedderModel)
	for _, p := range []string{detPath, embPath} {
		if _, err := os.Stat(p); err != nil {
			return nil, fmt.Errorf("%w: model %s: %v", ErrUnavailable, p, err)
		}
	}

	if !ort.IsInitialized() {
		lib := cfg.LibraryPath
		if lib == "" {
			lib = defaultLibraryPath()
		}
		ort.SetSharedLibraryPath(lib)
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("%w: init onnx runtime: %v", ErrUnavailable, err)
		}
	}

	a := &ONNXAnalyzer{
		modelPath: detPath,
		threshold: float32(cfg.DetectionThreshold),
		detectors: make(map[Model]*detector),
	}

	if cfg.UseGPU {
		opts, err := cudaSessionOptions()
		if err != nil {
			slog.Warn("cuda provider unavailable, using cpu", "error", err)
		} else {
			a.opts = opts
			a.accelerated = true
		}
	}

	slog.Info("loading embedding model", "path", embPath, "accelerated", a.accelerated)
	emb, err := newEmbedder(embPath, a.opts)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("%w: load embedder: %v", ErrUnavailable, err)
	}
	a.embedder = emb

	model := ModelFast
	if a.accelerated {
		model = ModelAccurate
	}
	if _, err := a.detectorFor(model); err != nil {
		a.Close()
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	slog.Info("face capability ready", "accelerated", a.accelerated, "model", model.String())
	return a, nil
}

func cudaSessionOptions() (*ort.SessionOptions, error) {
	cuda, err := ort.NewCUDAProviderOptions()
	if err != nil {
		return nil, fmt.Errorf("create cuda options: %w", err)
	}
	defer cuda.Destroy()

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("create session options: %w", err)
	}
	if err := opts.AppendExecutionProviderCUDA(cuda); err != nil {
		opts.Destroy()
		return nil, fmt.Errorf("append cuda provider: %w", err)
	}
	return opts, nil
}

// Accelerated reports whether sessions run on the CUDA provider.
func (a *ONNXAnalyzer) Accelerated() bool {
	return a.accelerated
}

// detectorFor lazily creates the detector session for a model variant.
func (a *ONNXAnalyzer) detectorFor(m Model) (*detector, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if d, ok := a.detectors[m]; ok {
		return d, nil
	}
	size := fastInputSize
	if m == ModelAccurate {
		size = accurateInputSize
	}

	slog.Info("loading detection model", "path", a.modelPath, "model", m.String(), "input", size)
	d, err := newDetector(a.modelPath, size, a.threshold, a.opts)
	if err != nil {
		return nil, fmt.Errorf("load %s detector: %w", m, err)
	}
	a.detectors[m] = d
	return d, nil
}

func (a *ONNXAnalyzer) Detect(img image.Image, opts DetectOptions) ([]Face, error) {
	d, err := a.detectorFor(opts.Model)
	if err != nil {
		return nil, err
	}

	maxScale := 1.0
	if opts.Model == ModelFast && opts.Upsample > 1 {
		maxScale = float64(opts.Upsample)
	}

	start := time.Now()
	dets, err := d.detect(img, maxScale)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	faces := make([]Face, 0, len(dets))
	for _, det := range dets {
		f := det.toFace()
		if !f.Box.Empty() {
			faces = append(faces, f)
		}
	}
	return faces, nil
}

func (a *ONNXAnalyzer) Embed(img image.Image, face Face) ([]float32, error) {
	start := time.Now()
	defer func() {
		observability.InferenceDuration.WithLabelValues("embed").Observe(time.Since(start).Seconds())
	}()
	return a.embedder.extract(img, face.Box)
}

// Close releases all ONNX sessions.
func (a *ONNXAnalyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for m, d := range a.detectors {
		d.close()
		delete(a.detectors, m)
	}
	if a.embedder != nil {
		a.embedder.close()
		a.embedder = nil
	}
	if a.opts != nil {
		a.opts.Destroy()
		a.opts = nil
	}
}

func defaultLibraryPath() string {
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}

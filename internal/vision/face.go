package vision

import (
	"errors"
	"fmt"
	"image"
	"math"
)

// ErrUnavailable is returned when the face capability cannot be initialised.
var ErrUnavailable = errors.New("face capability unavailable")

// ErrNoFace is returned by EmbedImage when the image holds no usable face.
var ErrNoFace = errors.New("no face detected in image")

// Landmark groups reported on a Face.
const (
	LandmarkLeftEye    = "left_eye"
	LandmarkRightEye   = "right_eye"
	LandmarkNoseBridge = "nose_bridge"
	LandmarkTopLip     = "top_lip"
)

// LandmarkGroups lists every group a detector may report.
var LandmarkGroups = []string{LandmarkLeftEye, LandmarkRightEye, LandmarkNoseBridge, LandmarkTopLip}

// Face is one detected face in image coordinates.
type Face struct {
	Box       image.Rectangle
	Score     float32
	Landmarks map[string][]image.Point
}

// GroupCount reports how many known landmark groups carry at least one point.
func (f Face) GroupCount() int {
	n := 0
	for _, g := range LandmarkGroups {
		if len(f.Landmarks[g]) > 0 {
			n++
		}
	}
	return n
}

// Model selects the detector variant.
type Model int

const (
	// ModelFast is the low-resolution detector used on CPU.
	ModelFast Model = iota
	// ModelAccurate is the full-resolution detector used with an accelerator.
	ModelAccurate
)

func (m Model) String() string {
	if m == ModelAccurate {
		return "accurate"
	}
	return "fast"
}

type DetectOptions struct {
	Model Model
	// Upsample is the largest enlargement applied to small inputs (ModelFast only).
	Upsample int
}

// Analyzer is the face capability used by the cache and the analysis pipeline.
// Implementations must be safe for concurrent use.
type Analyzer interface {
	Accelerated() bool
	Detect(img image.Image, opts DetectOptions) ([]Face, error)
	Embed(img image.Image, face Face) ([]float32, error)
}

// OptionsFor picks the detector mode for an analyzer: the accurate model on
// an accelerator, otherwise the fast model with 2x upsampling.
func OptionsFor(a Analyzer) DetectOptions {
	if a.Accelerated() {
		return DetectOptions{Model: ModelAccurate, Upsample: 1}
	}
	return DetectOptions{Model: ModelFast, Upsample: 2}
}

// Distance is the Euclidean distance between two embeddings.
// Vectors of different length are infinitely far apart.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// EmbedImage embeds the largest face found in a reference image.
func EmbedImage(a Analyzer, img image.Image) ([]float32, error) {
	faces, err := a.Detect(img, OptionsFor(a))
	if err != nil {
		return nil, fmt.Errorf("detect: %w", err)
	}
	if len(faces) == 0 {
		return nil, ErrNoFace
	}

	best := faces[0]
	for _, f := range faces[1:] {
		if area(f.Box) > area(best.Box) {
			best = f
		}
	}

	emb, err := a.Embed(img, best)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}
	return emb, nil
}

func area(r image.Rectangle) int {
	return r.Dx() * r.Dy()
}

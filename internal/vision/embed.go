package vision

import (
	"fmt"
	"image"
	"math"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

// EmbeddingDim is the ArcFace output size.
const EmbeddingDim = 512

// embedder extracts ArcFace embeddings from 112x112 face crops.
type embedder struct {
	mu           sync.Mutex
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	size         int
}

func newEmbedder(modelPath string, opts *ort.SessionOptions) (*embedder, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect embedder model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("unexpected embedder layout: %d inputs, %d outputs", len(inputs), len(outputs))
	}

	size := 112
	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, EmbeddingDim))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("create output tensor: %w", err)
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.Value{inputTensor},
		[]ort.Value{outputTensor},
		opts,
	)
	if err != nil {
		inputTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("create embedder session: %w", err)
	}

	return &embedder{
		session:      session,
		inputTensor:  inputTensor,
		outputTensor: outputTensor,
		size:         size,
	}, nil
}

// extract embeds the square region around box and returns an L2-normalised vector.
func (e *embedder) extract(img image.Image, box image.Rectangle) ([]float32, error) {
	crop := squareCrop(img, box, 0.1)
	if crop.Empty() {
		return nil, fmt.Errorf("face box %v outside image", box)
	}
	face := imaging.Resize(imaging.Crop(img, crop), e.size, e.size, imaging.Linear)

	e.mu.Lock()
	defer e.mu.Unlock()

	fillCHW(e.inputTensor.GetData(), face, 127.5, 127.5)
	if err := e.session.Run(); err != nil {
		return nil, fmt.Errorf("run embedding: %w", err)
	}

	out := make([]float32, EmbeddingDim)
	copy(out, e.outputTensor.GetData())
	normalize(out)
	return out, nil
}

func (e *embedder) close() {
	if e.session != nil {
		e.session.Destroy()
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
	}
}

// squareCrop grows box by pad on each side, squares it around its centre
// and clips the result to the image.
func squareCrop(img image.Image, box image.Rectangle, pad float64) image.Rectangle {
	side := float64(max(box.Dx(), box.Dy())) * (1 + 2*pad)
	cx := float64(box.Min.X+box.Max.X) / 2
	cy := float64(box.Min.Y+box.Max.Y) / 2
	half := side / 2
	r := image.Rect(int(cx-half), int(cy-half), int(cx+half), int(cy+half))
	return r.Intersect(img.Bounds())
}

// normalize performs L2 normalisation in place.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	norm := float32(math.Sqrt(sum))
	if norm > 0 {
		for i := range v {
			v[i] /= norm
		}
	}
}

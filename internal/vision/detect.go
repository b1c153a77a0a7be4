package vision

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"sort"
	"sync"

	"github.com/disintegration/imaging"
	ort "github.com/yalue/onnxruntime_go"
)

// detection is a raw RetinaFace result in input-tensor coordinates.
type detection struct {
	box       [4]float32 // x1, y1, x2, y2
	score     float32
	landmarks [5][2]float32 // left eye, right eye, nose, left mouth, right mouth
}

// RetinaFace det_10g strides and anchors per feature-map cell.
var strides = []int{8, 16, 32}

const anchorsPerStride = 2

// detector runs a RetinaFace model at a fixed square input size. The model
// has dynamic spatial axes, so one file serves both the fast and accurate
// variants with different input sizes.
type detector struct {
	mu            sync.Mutex
	session       *ort.AdvancedSession
	inputTensor   *ort.Tensor[float32]
	outputTensors []*ort.Tensor[float32]
	threshold     float32
	size          int
}

// newDetector loads modelPath with an input of size x size pixels.
// opts may be nil for ORT defaults.
func newDetector(modelPath string, size int, threshold float32, opts *ort.SessionOptions) (*detector, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect detector model: %w", err)
	}
	if len(inputs) != 1 || len(outputs) != 3*len(strides) {
		return nil, fmt.Errorf("unexpected detector layout: %d inputs, %d outputs", len(inputs), len(outputs))
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(size), int64(size)))
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}

	// Outputs come as scores, boxes, landmarks, each for strides 8, 16, 32.
	cols := []int64{1, 4, 10}
	names := make([]string, len(outputs))
	tensors := make([]*ort.Tensor[float32], 0, len(outputs))
	values := make([]ort.Value, len(outputs))
	destroy := func() {
		inputTensor.Destroy()
		for _, t := range tensors {
			t.Destroy()
		}
	}

	for i, out := range outputs {
		stride := strides[i%len(strides)]
		cells := int64(size/stride) * int64(size/stride) * anchorsPerStride
		t, err := ort.NewEmptyTensor[float32](ort.NewShape(cells, cols[i/len(strides)]))
		if err != nil {
			destroy()
			return nil, fmt.Errorf("create output tensor %s: %w", out.Name, err)
		}
		names[i] = out.Name
		tensors = append(tensors, t)
		values[i] = t
	}

	session, err := ort.NewAdvancedSession(modelPath,
		[]string{inputs[0].Name},
		names,
		[]ort.Value{inputTensor},
		values,
		opts,
	)
	if err != nil {
		destroy()
		return nil, fmt.Errorf("create detector session: %w", err)
	}

	return &detector{
		session:       session,
		inputTensor:   inputTensor,
		outputTensors: tensors,
		threshold:     threshold,
		size:          size,
	}, nil
}

// detect letterboxes img into the input tensor, runs the model and returns
// detections mapped back to img coordinates. maxScale caps enlargement of
// inputs smaller than the tensor.
func (d *detector) detect(img image.Image, maxScale float64) ([]detection, error) {
	b := img.Bounds()
	if b.Empty() {
		return nil, nil
	}

	scale := math.Min(float64(d.size)/float64(b.Dx()), float64(d.size)/float64(b.Dy()))
	if maxScale < 1 {
		maxScale = 1
	}
	if scale > maxScale {
		scale = maxScale
	}
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))

	canvas := imaging.New(d.size, d.size, color.Black)
	canvas = imaging.Paste(canvas, imaging.Resize(img, w, h, imaging.Linear), image.Pt(0, 0))

	d.mu.Lock()
	defer d.mu.Unlock()

	fillCHW(d.inputTensor.GetData(), canvas, 127.5, 128.0)
	if err := d.session.Run(); err != nil {
		return nil, fmt.Errorf("run detection: %w", err)
	}

	dets := d.decode()
	dets = nms(dets, 0.4)

	inv := float32(1 / scale)
	ox, oy := float32(b.Min.X), float32(b.Min.Y)
	maxX, maxY := float32(b.Max.X), float32(b.Max.Y)
	for i := range dets {
		bx := &dets[i].box
		bx[0] = clampF(bx[0]*inv+ox, ox, maxX)
		bx[1] = clampF(bx[1]*inv+oy, oy, maxY)
		bx[2] = clampF(bx[2]*inv+ox, ox, maxX)
		bx[3] = clampF(bx[3]*inv+oy, oy, maxY)
		for li := range dets[i].landmarks {
			dets[i].landmarks[li][0] = dets[i].landmarks[li][0]*inv + ox
			dets[i].landmarks[li][1] = dets[i].landmarks[li][1]*inv + oy
		}
	}
	return dets, nil
}

// decode reads anchor-based outputs in tensor pixel coordinates.
func (d *detector) decode() []detection {
	var out []detection
	n := len(strides)

	for si, stride := range strides {
		scores := d.outputTensors[si].GetData()
		boxes := d.outputTensors[si+n].GetData()
		marks := d.outputTensors[si+2*n].GetData()

		fm := d.size / stride
		st := float32(stride)

		idx := 0
		for cy := 0; cy < fm; cy++ {
			for cx := 0; cx < fm; cx++ {
				for a := 0; a < anchorsPerStride; a++ {
					if scores[idx] >= d.threshold {
						ax := float32(cx) * st
						ay := float32(cy) * st

						det := detection{
							score: scores[idx],
							box: [4]float32{
								ax - boxes[idx*4+0]*st,
								ay - boxes[idx*4+1]*st,
								ax + boxes[idx*4+2]*st,
								ay + boxes[idx*4+3]*st,
							},
						}
						for li := 0; li < 5; li++ {
							det.landmarks[li][0] = ax + marks[idx*10+li*2]*st
							det.landmarks[li][1] = ay + marks[idx*10+li*2+1]*st
						}
						out = append(out, det)
					}
					idx++
				}
			}
		}
	}
	return out
}

func (d *detector) close() {
	if d.session != nil {
		d.session.Destroy()
	}
	if d.inputTensor != nil {
		d.inputTensor.Destroy()
	}
	for _, t := range d.outputTensors {
		t.Destroy()
	}
}

// toFace converts a detection into a Face. A landmark group is kept only when
// all its points fall inside the box grown by 10% on each side.
func (det detection) toFace() Face {
	box := image.Rect(
		int(math.Floor(float64(det.box[0]))),
		int(math.Floor(float64(det.box[1]))),
		int(math.Ceil(float64(det.box[2]))),
		int(math.Ceil(float64(det.box[3]))),
	)
	padX := box.Dx() / 10
	padY := box.Dy() / 10
	bounds := image.Rect(box.Min.X-padX, box.Min.Y-padY, box.Max.X+padX+1, box.Max.Y+padY+1)

	pt := func(i int) image.Point {
		return image.Pt(int(det.landmarks[i][0]), int(det.landmarks[i][1]))
	}
	groups := map[string][]image.Point{
		LandmarkLeftEye:    {pt(0)},
		LandmarkRightEye:   {pt(1)},
		LandmarkNoseBridge: {pt(2)},
		LandmarkTopLip:     {pt(3), pt(4)},
	}

	face := Face{Box: box, Score: det.score, Landmarks: make(map[string][]image.Point, len(groups))}
	for name, pts := range groups {
		inside := true
		for _, p := range pts {
			if !p.In(bounds) {
				inside = false
				break
			}
		}
		if inside {
			face.Landmarks[name] = pts
		}
	}
	return face
}

// nms performs non-maximum suppression, highest score first.
func nms(dets []detection, iouThreshold float32) []detection {
	if len(dets) == 0 {
		return dets
	}

	sort.Slice(dets, func(i, j int) bool {
		return dets[i].score > dets[j].score
	})

	keep := make([]bool, len(dets))
	for i := range keep {
		keep[i] = true
	}
	for i := range dets {
		if !keep[i] {
			continue
		}
		for j := i + 1; j < len(dets); j++ {
			if keep[j] && iou(dets[i].box, dets[j].box) > iouThreshold {
				keep[j] = false
			}
		}
	}

	var result []detection
	for i, d := range dets {
		if keep[i] {
			result = append(result, d)
		}
	}
	return result
}

func iou(a, b [4]float32) float32 {
	x1 := max(a[0], b[0])
	y1 := max(a[1], b[1])
	x2 := min(a[2], b[2])
	y2 := min(a[3], b[3])

	inter := max(0, x2-x1) * max(0, y2-y1)
	union := (a[2]-a[0])*(a[3]-a[1]) + (b[2]-b[0])*(b[3]-b[1]) - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

func clampF(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// fillCHW writes img into dst as planar RGB with (pixel - mean) / std.
func fillCHW(dst []float32, img *image.NRGBA, mean, std float32) {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	plane := w * h
	for y := 0; y < h; y++ {
		row := img.Pix[y*img.Stride:]
		for x := 0; x < w; x++ {
			i := y*w + x
			dst[i] = (float32(row[x*4]) - mean) / std
			dst[plane+i] = (float32(row[x*4+1]) - mean) / std
			dst[2*plane+i] = (float32(row[x*4+2]) - mean) / std
		}
	}
}

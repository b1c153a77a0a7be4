// Package motion scores frame-to-frame change on small grayscale frames.
package motion

const (
	FrameWidth  = 160
	FrameHeight = 120
	FrameSize   = FrameWidth * FrameHeight

	DefaultPixelThreshold   = 25
	DefaultPercentThreshold = 1.5
)

// Detector compares each frame against the previous one.
// It is not safe for concurrent use; each recorder owns one.
type Detector struct {
	PixelThreshold   uint8
	PercentThreshold float64

	prev []byte
}

func NewDetector() *Detector {
	return &Detector{
		PixelThreshold:   DefaultPixelThreshold,
		PercentThreshold: DefaultPercentThreshold,
	}
}

// Detect reports whether frame differs enough from the previous frame.
// The first frame, and any frame whose size differs from the baseline,
// only establishes a new baseline.
func (d *Detector) Detect(frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	if d.prev == nil || len(d.prev) != len(frame) {
		d.prev = append(d.prev[:0], frame...)
		return false
	}

	pct := Score(d.prev, frame, d.PixelThreshold)
	copy(d.prev, frame)
	return pct > d.PercentThreshold
}

// Reset drops the baseline so the next frame never signals motion.
func (d *Detector) Reset() {
	d.prev = nil
}

// Score returns the percentage of pixels whose absolute difference exceeds
// threshold. Frames must be the same length.
func Score(prev, cur []byte, threshold uint8) float64 {
	n := len(cur)
	if n == 0 || len(prev) != n {
		return 0
	}

	changed := 0
	for i := 0; i < n; i++ {
		diff := int(cur[i]) - int(prev[i])
		if diff < 0 {
			diff = -diff
		}
		if diff > int(threshold) {
			changed++
		}
	}
	return float64(changed) * 100 / float64(n)
}

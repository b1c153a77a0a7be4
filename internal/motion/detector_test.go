package motion

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func frame(v byte) []byte {
	return bytes.Repeat([]byte{v}, FrameSize)
}

// withChanged returns a copy of base with the first n pixels shifted by delta.
func withChanged(base []byte, n int, delta int) []byte {
	out := append([]byte(nil), base...)
	for i := 0; i < n; i++ {
		out[i] = byte(int(out[i]) + delta)
	}
	return out
}

func TestDetector_FirstFrameNeverMotion(t *testing.T) {
	d := NewDetector()
	assert.False(t, d.Detect(frame(0)))
	assert.True(t, d.Detect(frame(200)))
}

func TestDetector_IdenticalFrames(t *testing.T) {
	d := NewDetector()
	f := frame(100)
	for i := 0; i < 5; i++ {
		assert.False(t, d.Detect(f))
	}
}

func TestDetector_Thresholds(t *testing.T) {
	base := frame(100)
	onePct := FrameSize / 100

	tests := []struct {
		name    string
		changed int
		delta   int
		want    bool
	}{
		{"below pixel threshold", FrameSize, 25, false},
		{"above pixel threshold everywhere", FrameSize, 26, true},
		{"1.5 percent exactly is not motion", onePct * 3 / 2, 60, false},
		{"2 percent changed", onePct * 2, 60, true},
		{"negative difference", onePct * 2, -60, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDetector()
			d.Detect(base)
			assert.Equal(t, tt.want, d.Detect(withChanged(base, tt.changed, tt.delta)))
		})
	}
}

func TestDetector_BaselineAdvances(t *testing.T) {
	d := NewDetector()
	d.Detect(frame(10))
	assert.True(t, d.Detect(frame(90)))
	// same as the new baseline
	assert.False(t, d.Detect(frame(90)))
}

func TestDetector_ResetAndSizeChange(t *testing.T) {
	d := NewDetector()
	d.Detect(frame(10))
	d.Reset()
	assert.False(t, d.Detect(frame(200)))

	assert.False(t, d.Detect(make([]byte, 10)))
	assert.False(t, d.Detect(nil))
}

func TestScore(t *testing.T) {
	assert.Equal(t, 100.0, Score([]byte{0, 0}, []byte{255, 255}, 25))
	assert.Equal(t, 50.0, Score([]byte{0, 0}, []byte{255, 0}, 25))
	assert.Equal(t, 0.0, Score([]byte{0}, []byte{0, 0}, 25))
}

package recorder

import (
	"github.com/alvares777-IA/cameras-arcos/internal/control"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
)

// Policy exposes the runtime switches a recorder reads on every iteration.
// *control.Settings satisfies it.
type Policy interface {
	RecordingEnabled() bool
	ContinuousMode() control.ContinuousMode
	FaceAnalysisEnabled() bool
}

// Mode is what a recorder should be doing right now.
type Mode int

const (
	ModeOff Mode = iota
	ModeMotion
	ModeContinuous
)

func (m Mode) String() string {
	switch m {
	case ModeMotion:
		return "motion"
	case ModeContinuous:
		return "continuous"
	default:
		return "off"
	}
}

// EffectiveMode layers the camera schedule over the global mode and the
// camera's own flag, in that order. A nil or disabled camera and a globally
// disabled recording switch both yield ModeOff.
func EffectiveMode(cam *models.Camera, p Policy, hour int) Mode {
	if cam == nil || !cam.Enabled || !p.RecordingEnabled() {
		return ModeOff
	}
	if cam.InSchedule(hour) {
		return ModeContinuous
	}
	switch p.ContinuousMode() {
	case control.ModeAlways:
		return ModeContinuous
	case control.ModeMotionOnly:
		return ModeMotion
	}
	if cam.Continuous {
		return ModeContinuous
	}
	return ModeMotion
}

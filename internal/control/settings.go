// Package control holds the runtime switches that operators flip through the
// API and that recorder loops read on every iteration.
package control

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// ContinuousMode selects how the continuous-recording policy is decided.
type ContinuousMode int32

const (
	ModePerCamera ContinuousMode = iota
	ModeAlways
	ModeMotionOnly
)

func (m ContinuousMode) String() string {
	switch m {
	case ModeAlways:
		return "always"
	case ModeMotionOnly:
		return "motion-only"
	default:
		return "per-camera"
	}
}

// ParseContinuousMode accepts the canonical names and the legacy
// true/false/disable values.
func ParseContinuousMode(s string) (ContinuousMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "always", "true":
		return ModeAlways, nil
	case "motion-only", "motion", "false":
		return ModeMotionOnly, nil
	case "per-camera", "camera", "disable", "":
		return ModePerCamera, nil
	default:
		return ModePerCamera, fmt.Errorf("unknown continuous mode %q", s)
	}
}

// Snapshot is a consistent copy of all runtime switches.
type Snapshot struct {
	RecordingEnabled    bool           `json:"recording_enabled"`
	ContinuousMode      ContinuousMode `json:"-"`
	FaceAnalysisEnabled bool           `json:"face_recognition_enabled"`
}

// Settings is safe for concurrent use.
type Settings struct {
	recording atomic.Bool
	mode      atomic.Int32
	faces     atomic.Bool
}

func NewSettings(recording bool, mode ContinuousMode, faces bool) *Settings {
	s := &Settings{}
	s.recording.Store(recording)
	s.mode.Store(int32(mode))
	s.faces.Store(faces)
	return s
}

func (s *Settings) RecordingEnabled() bool             { return s.recording.Load() }
func (s *Settings) SetRecordingEnabled(v bool)         { s.recording.Store(v) }
func (s *Settings) ContinuousMode() ContinuousMode     { return ContinuousMode(s.mode.Load()) }
func (s *Settings) SetContinuousMode(m ContinuousMode) { s.mode.Store(int32(m)) }
func (s *Settings) FaceAnalysisEnabled() bool          { return s.faces.Load() }
func (s *Settings) SetFaceAnalysisEnabled(v bool)      { s.faces.Store(v) }

func (s *Settings) Snapshot() Snapshot {
	return Snapshot{
		RecordingEnabled:    s.RecordingEnabled(),
		ContinuousMode:      s.ContinuousMode(),
		FaceAnalysisEnabled: s.FaceAnalysisEnabled(),
	}
}

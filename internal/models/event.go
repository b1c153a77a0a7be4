package models

import "time"

const (
	EventSegmentRecorded = "segment_recorded"
	EventFaceRecognized  = "face_recognized"
	EventVisitorEnrolled = "visitor_enrolled"
)

// DomainEvent is the envelope published on the events stream.
type DomainEvent struct {
	Type      string    `json:"type"`
	CameraID  int64     `json:"camera_id"`
	Timestamp time.Time `json:"timestamp"`

	RecordingID  *int64  `json:"recording_id,omitempty"`
	Path         string  `json:"path,omitempty"`
	SizeBytes    int64   `json:"size_bytes,omitempty"`
	IdentityID   int64   `json:"identity_id,omitempty"`
	IdentityName string  `json:"identity_name,omitempty"`
	Distance     float32 `json:"distance,omitempty"`
}

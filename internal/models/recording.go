package models

import "time"

// Recording is one finalized video segment.
type Recording struct {
	ID           int64     `json:"id" db:"id"`
	CameraID     int64     `json:"camera_id" db:"camera_id"`
	Path         string    `json:"path" db:"path"`
	StartedAt    time.Time `json:"started_at" db:"started_at"`
	EndedAt      time.Time `json:"ended_at" db:"ended_at"`
	SizeBytes    int64     `json:"size_bytes" db:"size_bytes"`
	FaceAnalyzed bool      `json:"face_analyzed" db:"face_analyzed"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

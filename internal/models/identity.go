package models

import "time"

type IdentityKind string

const (
	IdentityKindStaff   IdentityKind = "F"
	IdentityKindVisitor IdentityKind = "V"
)

// VisitorPrefix is the display-name prefix of auto-enrolled identities.
const VisitorPrefix = "VISITOR "

type Identity struct {
	ID        int64        `json:"id" db:"id"`
	Name      string       `json:"name" db:"name"`
	Kind      IdentityKind `json:"kind" db:"kind"`
	CreatedAt time.Time    `json:"created_at" db:"created_at"`
	UpdatedAt time.Time    `json:"updated_at" db:"updated_at"`
}

// Recognition is an append-only sighting of an identity on a camera.
type Recognition struct {
	ID          int64     `json:"id" db:"id"`
	IdentityID  int64     `json:"identity_id" db:"identity_id"`
	CameraID    int64     `json:"camera_id" db:"camera_id"`
	RecordingID *int64    `json:"recording_id,omitempty" db:"recording_id"`
	Distance    float32   `json:"distance" db:"distance"`
	Embedding   []float32 `json:"-" db:"embedding"`
	DetectedAt  time.Time `json:"detected_at" db:"detected_at"`
}

package dto

type CacheStats struct {
	Loaded     bool    `json:"loaded"`
	Identities int     `json:"identities"`
	Embeddings int     `json:"embeddings"`
	BuiltAt    string  `json:"built_at,omitempty"`
	AgeSeconds float64 `json:"age_seconds"`
}

type FaceStatusResponse struct {
	Enabled    bool       `json:"enabled"`
	Available  bool       `json:"available"`
	QueueDepth int        `json:"queue_depth"`
	Cache      CacheStats `json:"cache"`
}

type IdentityResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Visitor   bool   `json:"visitor"`
	FaceCount int    `json:"face_count"`
	CreatedAt string `json:"created_at"`
}

type IdentityListResponse struct {
	Identities []IdentityResponse `json:"identities"`
	Total      int                `json:"total"`
}

type RecognitionResponse struct {
	ID           int64   `json:"id"`
	IdentityID   int64   `json:"identity_id"`
	IdentityName string  `json:"identity_name"`
	CameraID     int64   `json:"camera_id"`
	CameraName   string  `json:"camera_name,omitempty"`
	RecordingID  *int64  `json:"recording_id,omitempty"`
	Distance     float32 `json:"distance"`
	DetectedAt   string  `json:"detected_at"`
}

type RecognitionListResponse struct {
	Recognitions []RecognitionResponse `json:"recognitions"`
	Total        int                   `json:"total"`
}

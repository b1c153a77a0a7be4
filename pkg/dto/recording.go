package dto

// RecorderStatus is the live state of one camera recorder.
type RecorderStatus struct {
	Name             string `json:"name"`
	Running          bool   `json:"running"`
	Recording        bool   `json:"recording"`
	State            string `json:"state"`
	SegmentStartedAt string `json:"segment_started_at,omitempty"`
}

type RecordingStatusResponse struct {
	Enabled         bool                     `json:"enabled"`
	Active          bool                     `json:"active"`
	ContinuousMode  string                   `json:"continuous_mode"`
	ActiveRecorders int                      `json:"active_recorders"`
	Cameras         map[int64]RecorderStatus `json:"cameras"`
}

type SetModeRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type ControlResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Started int    `json:"started,omitempty"`
}

type CameraResponse struct {
	ID         int64           `json:"id"`
	Name       string          `json:"name"`
	Enabled    bool            `json:"enabled"`
	Continuous bool            `json:"continuous"`
	HourStart  *int            `json:"hour_start,omitempty"`
	HourEnd    *int            `json:"hour_end,omitempty"`
	Width      *int            `json:"width,omitempty"`
	Height     *int            `json:"height,omitempty"`
	Codec      string          `json:"codec,omitempty"`
	FPS        *float64        `json:"fps,omitempty"`
	Recorder   *RecorderStatus `json:"recorder,omitempty"`
}

type CameraListResponse struct {
	Cameras []CameraResponse `json:"cameras"`
	Total   int              `json:"total"`
}

type ProbeResponse struct {
	CameraID int64   `json:"camera_id"`
	Width    int     `json:"width"`
	Height   int     `json:"height"`
	Codec    string  `json:"codec"`
	FPS      float64 `json:"fps"`
}

type RecordingResponse struct {
	ID           int64  `json:"id"`
	CameraID     int64  `json:"camera_id"`
	Path         string `json:"path"`
	StartedAt    string `json:"started_at"`
	EndedAt      string `json:"ended_at"`
	SizeBytes    int64  `json:"size_bytes"`
	FaceAnalyzed bool   `json:"face_analyzed"`
}

type RecordingListResponse struct {
	Recordings []RecordingResponse `json:"recordings"`
	Total      int                 `json:"total"`
	Limit      int                 `json:"limit"`
	Offset     int                 `json:"offset"`
}

type RecordingQuery struct {
	CameraID *int64 `form:"camera_id"`
	Limit    int    `form:"limit"`
	Offset   int    `form:"offset"`
}

package dto

// HealthResponse is the operator summary served at /v1/health.
type HealthResponse struct {
	Status          string `json:"status"`
	Recording       bool   `json:"recording"`
	RecordingActive bool   `json:"recording_active"`
	ContinuousMode  string `json:"continuous_mode"`
	FaceRecognition bool   `json:"face_recognition"`
	RetentionDays   int    `json:"retention_days"`
	ActiveRecorders int    `json:"active_recorders"`
}

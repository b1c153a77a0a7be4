package models

import "time"

// Camera is a configured video source.
type Camera struct {
	ID         int64     `json:"id" db:"id"`
	Name       string    `json:"name" db:"name"`
	RTSPURL    string    `json:"rtsp_url" db:"rtsp_url"`
	Enabled    bool      `json:"enabled" db:"enabled"`
	Continuous bool      `json:"continuous" db:"continuous"`
	HourStart  *int      `json:"hour_start,omitempty" db:"hour_start"`
	HourEnd    *int      `json:"hour_end,omitempty" db:"hour_end"`
	Width      *int      `json:"width,omitempty" db:"width"`
	Height     *int      `json:"height,omitempty" db:"height"`
	Codec      string    `json:"codec,omitempty" db:"codec"`
	FPS        *float64  `json:"fps,omitempty" db:"fps"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// InSchedule reports whether hour falls inside the camera's recording window.
// The window is half-open [start, end) and wraps past midnight when start > end.
// Both bounds must be set; an empty window (start == end) matches nothing.
func (c *Camera) InSchedule(hour int) bool {
	if c.HourStart == nil || c.HourEnd == nil {
		return false
	}
	start, end := *c.HourStart, *c.HourEnd
	if start <= end {
		return hour >= start && hour < end
	}
	return hour >= start || hour < end
}

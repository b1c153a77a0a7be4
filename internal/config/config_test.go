package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "/recordings", cfg.Recording.Root)
	assert.Equal(t, 300*time.Second, cfg.Recording.SegmentDuration)
	assert.Equal(t, 15*time.Second, cfg.Recording.MotionCooldown)
	assert.Equal(t, 10*time.Second, cfg.Recording.StopGrace)
	assert.Equal(t, int64(1000), cfg.Recording.MinSegmentBytes)
	assert.Equal(t, "per-camera", cfg.Recording.ContinuousMode)
	assert.True(t, cfg.Recording.IsEnabled())

	assert.False(t, cfg.FaceRecognition.Enabled)
	assert.Equal(t, 60*time.Second, cfg.FaceRecognition.CacheTTL)
	assert.Equal(t, 2, cfg.FaceRecognition.MaxConcurrent)
	assert.Equal(t, 0.6, cfg.FaceRecognition.Tolerance)
	assert.Equal(t, 2*time.Second, cfg.FaceRecognition.FrameInterval)
	assert.Equal(t, 1280, cfg.FaceRecognition.FrameWidth)
	assert.Equal(t, 60*time.Second, cfg.FaceRecognition.ExtractTimeout)
	assert.Equal(t, 0.5, cfg.FaceRecognition.DetectScale)
	assert.Equal(t, 5, cfg.FaceRecognition.MaxFacesPerID)

	assert.Equal(t, 30, cfg.Retention.Days)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoad_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yml := `
server:
  port: 9000
recording:
  root: /data/rec
  enabled: false
  segment_duration: 60s
face_recognition:
  enabled: true
  max_concurrent: 4
`
	require.NoError(t, os.WriteFile(path, []byte(yml), 0o644))

	t.Setenv("ARCOS_SEGMENT_DURATION_SECONDS", "120")
	t.Setenv("ARCOS_CONTINUOUS_RECORDING", " TRUE ")
	t.Setenv("ARCOS_RETENTION_DAYS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "/data/rec", cfg.Recording.Root)
	assert.False(t, cfg.Recording.IsEnabled())
	assert.Equal(t, 120*time.Second, cfg.Recording.SegmentDuration)
	assert.Equal(t, "true", cfg.Recording.ContinuousMode)
	assert.True(t, cfg.FaceRecognition.Enabled)
	assert.Equal(t, 4, cfg.FaceRecognition.MaxConcurrent)
	assert.Equal(t, 7, cfg.Retention.Days)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [oops"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

package recorder

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alvares777-IA/cameras-arcos/internal/control"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/motion"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

func intp(v int) *int { return &v }

func testCamera() models.Camera {
	return models.Camera{ID: 7, Name: "Lobby", RTSPURL: "rtsp://cam/7", Enabled: true}
}

func testConfig(t *testing.T) Config {
	return Config{
		Root:            t.TempDir(),
		SegmentDuration: time.Minute,
		Cooldown:        150 * time.Millisecond,
		StopGrace:       time.Second,
		MinSegmentBytes: 1000,
		CheckInterval:   10 * time.Millisecond,
		RestartDelay:    20 * time.Millisecond,
		MaxReadFailures: 10,
	}
}

type harness struct {
	rec      *Recorder
	adapter  *fakeAdapter
	store    *fakeStore
	events   *fakeEvents
	submit   *fakeSubmitter
	settings *control.Settings
}

func newHarness(t *testing.T, cfg Config, mode control.ContinuousMode) *harness {
	t.Helper()
	cam := testCamera()
	h := &harness{
		adapter:  &fakeAdapter{fileSize: 4096},
		store:    newFakeStore(cam),
		events:   &fakeEvents{},
		submit:   &fakeSubmitter{},
		settings: control.NewSettings(true, mode, true),
	}
	h.rec = New(cam, cfg, Deps{
		Adapter:  h.adapter,
		Store:    h.store,
		Policy:   h.settings,
		Events:   h.events,
		Analysis: h.submit,
	})
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	h.rec.Start(context.Background())
	t.Cleanup(h.rec.Stop)
}

func frame(v byte) []byte {
	return bytes.Repeat([]byte{v}, motion.FrameSize)
}

func TestEffectiveMode(t *testing.T) {
	night := models.Camera{Enabled: true, HourStart: intp(22), HourEnd: intp(6)}
	flagged := models.Camera{Enabled: true, Continuous: true}
	plain := models.Camera{Enabled: true}

	tests := []struct {
		name      string
		cam       *models.Camera
		recording bool
		mode      control.ContinuousMode
		hour      int
		want      Mode
	}{
		{"schedule overrides motion-only", &night, true, control.ModeMotionOnly, 23, ModeContinuous},
		{"schedule wraps midnight", &night, true, control.ModePerCamera, 5, ModeContinuous},
		{"outside schedule falls through", &night, true, control.ModePerCamera, 10, ModeMotion},
		{"global always", &plain, true, control.ModeAlways, 10, ModeContinuous},
		{"global motion ignores flag", &flagged, true, control.ModeMotionOnly, 10, ModeMotion},
		{"per-camera flag", &flagged, true, control.ModePerCamera, 10, ModeContinuous},
		{"per-camera default", &plain, true, control.ModePerCamera, 10, ModeMotion},
		{"recording disabled", &night, false, control.ModeAlways, 23, ModeOff},
		{"camera disabled", &models.Camera{}, true, control.ModeAlways, 10, ModeOff},
		{"camera gone", nil, true, control.ModeAlways, 10, ModeOff},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := control.NewSettings(tt.recording, tt.mode, false)
			assert.Equal(t, tt.want, EffectiveMode(tt.cam, p, tt.hour))
		})
	}
}

func TestSegmentPath(t *testing.T) {
	start := time.Date(2024, 3, 9, 14, 5, 7, 0, time.Local)
	got := SegmentPath("/recordings", 12, start)
	assert.Equal(t, filepath.Join("/recordings", "12", "2024-03-09", "20240309_140507.mp4"), got)
}

func writeSegment(t *testing.T, h *harness, size int) string {
	t.Helper()
	path := filepath.Join(h.rec.cfg.Root, "seg.mp4")
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0o644))
	proc := &fakeRecording{path: path, done: make(chan struct{})}
	proc.finish()
	h.rec.seg = &segment{path: path, start: time.Now().Add(-time.Minute), trigger: ModeMotion, proc: proc}
	return path
}

func TestFinalize_DiscardsUndersizedSegment(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModeMotionOnly)
	path := writeSegment(t, h, 999)

	h.rec.finalize(context.Background())

	assert.NoFileExists(t, path)
	assert.Zero(t, h.store.recordingCount())
	assert.Zero(t, h.submit.count())
	assert.Nil(t, h.rec.seg)
}

func TestFinalize_PersistsOnce(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModeMotionOnly)
	path := writeSegment(t, h, 1000)

	h.rec.finalize(context.Background())
	h.rec.finalize(context.Background())

	assert.FileExists(t, path)
	require.Equal(t, 1, h.store.recordingCount())
	rec := h.store.recordings[0]
	assert.Equal(t, int64(7), rec.CameraID)
	assert.Equal(t, int64(1000), rec.SizeBytes)
	assert.False(t, rec.FaceAnalyzed)

	require.Equal(t, 1, h.submit.count())
	assert.Equal(t, rec.ID, h.submit.jobs[0].RecordingID)
	assert.Equal(t, path, h.submit.jobs[0].Path)

	require.Len(t, h.events.events, 1)
	assert.Equal(t, models.EventSegmentRecorded, h.events.events[0].Type)
}

func TestFinalize_SkipsAnalysisWhenDisabled(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModeMotionOnly)
	h.settings.SetFaceAnalysisEnabled(false)
	writeSegment(t, h, 5000)

	h.rec.finalize(context.Background())

	assert.Equal(t, 1, h.store.recordingCount())
	assert.Zero(t, h.submit.count())
}

func TestRecorder_MotionStartsAndCooldownStops(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModeMotionOnly)
	h.start(t)

	require.Eventually(t, func() bool { return h.adapter.sourceCount() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.rec.Status().State == StateMotionWatching }, waitFor, tick)

	src := h.adapter.source(0)
	src.frames <- frame(0)
	src.frames <- frame(0)
	assert.Never(t, func() bool { return h.adapter.recCount() > 0 }, 50*time.Millisecond, tick)

	src.frames <- frame(255)
	require.Eventually(t, func() bool { return h.adapter.recCount() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.rec.Status().Recording }, waitFor, tick)

	st := h.rec.Status()
	assert.Equal(t, "Lobby", st.Name)
	assert.NotNil(t, st.SegmentStartedAt)

	rec := h.adapter.rec(0)
	require.Eventually(t, rec.wasStopped, waitFor, tick)
	require.Eventually(t, func() bool { return h.store.recordingCount() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.rec.Status().State == StateMotionWatching }, waitFor, tick)
	assert.False(t, rec.wasKilled())
	assert.Equal(t, 1, h.adapter.recCount())
}

func TestRecorder_ChainsSegmentsWhileMotionRecent(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cooldown = 5 * time.Second
	h := newHarness(t, cfg, control.ModeMotionOnly)
	h.start(t)

	require.Eventually(t, func() bool { return h.adapter.sourceCount() == 1 }, waitFor, tick)
	src := h.adapter.source(0)
	src.frames <- frame(0)
	src.frames <- frame(255)
	require.Eventually(t, func() bool { return h.adapter.recCount() == 1 }, waitFor, tick)

	h.adapter.rec(0).finish()

	require.Eventually(t, func() bool { return h.adapter.recCount() == 2 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.rec.Status().State == StateRecording }, waitFor, tick)
	assert.Equal(t, 1, h.store.recordingCount())
}

func TestRecorder_ContinuousBackToBack(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModeAlways)
	h.start(t)

	require.Eventually(t, func() bool { return h.adapter.recCount() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.rec.Status().State == StateContinuousRecording }, waitFor, tick)
	assert.Zero(t, h.adapter.sourceCount())

	h.adapter.rec(0).finish()
	require.Eventually(t, func() bool { return h.adapter.recCount() == 2 }, waitFor, tick)
	assert.Equal(t, 1, h.store.recordingCount())

	h.adapter.rec(1).finish()
	require.Eventually(t, func() bool { return h.adapter.recCount() == 3 }, waitFor, tick)
	assert.Equal(t, 2, h.store.recordingCount())
}

func TestRecorder_StopKillsWithoutFinalizing(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModeAlways)
	h.rec.Start(context.Background())

	require.Eventually(t, func() bool { return h.adapter.recCount() == 1 }, waitFor, tick)
	h.rec.Stop()

	rec := h.adapter.rec(0)
	assert.True(t, rec.wasKilled())
	assert.False(t, rec.wasStopped())
	assert.Zero(t, h.store.recordingCount())

	st := h.rec.Status()
	assert.Equal(t, StateStopped, st.State)
	assert.False(t, st.Running)
	assert.False(t, st.Recording)

	// A second Stop is harmless.
	h.rec.Stop()
}

func TestRecorder_StopClosesMotionSource(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModeMotionOnly)
	h.rec.Start(context.Background())

	require.Eventually(t, func() bool { return h.adapter.sourceCount() == 1 }, waitFor, tick)
	h.rec.Stop()
	assert.True(t, h.adapter.source(0).isClosed())
}

func TestRecorder_DisablingRecordingFinalizesAndIdles(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModeAlways)
	h.start(t)

	require.Eventually(t, func() bool { return h.adapter.recCount() == 1 }, waitFor, tick)
	h.settings.SetRecordingEnabled(false)

	require.Eventually(t, h.adapter.rec(0).wasStopped, waitFor, tick)
	require.Eventually(t, func() bool { return h.rec.Status().State == StateIdle }, waitFor, tick)
	assert.Equal(t, 1, h.store.recordingCount())
	assert.True(t, h.rec.Status().Running)

	assert.Never(t, func() bool {
		return h.adapter.recCount() > 1 || h.adapter.sourceCount() > 0
	}, 100*time.Millisecond, tick)

	h.settings.SetRecordingEnabled(true)
	require.Eventually(t, func() bool { return h.adapter.recCount() == 2 }, waitFor, tick)
}

func TestRecorder_SwitchContinuousToMotion(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModeAlways)
	h.start(t)

	require.Eventually(t, func() bool { return h.adapter.recCount() == 1 }, waitFor, tick)
	h.settings.SetContinuousMode(control.ModeMotionOnly)

	require.Eventually(t, h.adapter.rec(0).wasStopped, waitFor, tick)
	require.Eventually(t, func() bool { return h.adapter.sourceCount() == 1 }, waitFor, tick)
	require.Eventually(t, func() bool { return h.rec.Status().State == StateMotionWatching }, waitFor, tick)
	assert.Equal(t, 1, h.store.recordingCount())
}

func TestRecorder_SwitchMotionToContinuousKeepsSegment(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cooldown = 5 * time.Second
	h := newHarness(t, cfg, control.ModeMotionOnly)
	h.start(t)

	require.Eventually(t, func() bool { return h.adapter.sourceCount() == 1 }, waitFor, tick)
	src := h.adapter.source(0)
	src.frames <- frame(0)
	src.frames <- frame(255)
	require.Eventually(t, func() bool { return h.adapter.recCount() == 1 }, waitFor, tick)

	h.settings.SetContinuousMode(control.ModeAlways)
	require.Eventually(t, func() bool { return h.rec.Status().State == StateContinuousRecording }, waitFor, tick)
	assert.True(t, src.isClosed())
	assert.False(t, h.adapter.rec(0).wasStopped())
	assert.Equal(t, 1, h.adapter.recCount())
}

func TestRecorder_RestartsSamplerAfterReadFailures(t *testing.T) {
	cfg := testConfig(t)
	cfg.MaxReadFailures = 2
	h := newHarness(t, cfg, control.ModeMotionOnly)
	h.start(t)

	require.Eventually(t, func() bool { return h.adapter.sourceCount() == 1 }, waitFor, tick)
	close(h.adapter.source(0).frames)

	require.Eventually(t, func() bool { return h.adapter.sourceCount() == 2 }, waitFor, tick)
	assert.True(t, h.adapter.source(0).isClosed())
}

func TestRecorder_CameraRowRefreshed(t *testing.T) {
	h := newHarness(t, testConfig(t), control.ModePerCamera)
	h.start(t)

	require.Eventually(t, func() bool { return h.adapter.sourceCount() == 1 }, waitFor, tick)

	h.store.mu.Lock()
	cam := h.store.cameras[7]
	cam.Continuous = true
	cam.Name = "Lobby East"
	h.store.cameras[7] = cam
	h.store.mu.Unlock()

	require.Eventually(t, func() bool { return h.adapter.recCount() == 1 }, waitFor, tick)
	assert.Equal(t, "Lobby East", h.rec.Status().Name)
}

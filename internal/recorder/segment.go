package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/alvares777-IA/cameras-arcos/internal/analysis"
	"github.com/alvares777-IA/cameras-arcos/internal/ingest"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/observability"
)

// segment is the in-flight recording owned by the loop.
type segment struct {
	path    string
	start   time.Time
	trigger Mode
	proc    ingest.Recording
}

// SegmentPath builds {root}/{camera_id}/{YYYY-MM-DD}/{YYYYMMDD_HHMMSS}.mp4.
func SegmentPath(root string, cameraID int64, start time.Time) string {
	return filepath.Join(root,
		strconv.FormatInt(cameraID, 10),
		start.Format("2006-01-02"),
		start.Format("20060102_150405")+".mp4",
	)
}

func (r *Recorder) startSegment(ctx context.Context, trigger Mode) error {
	now := r.now()
	if now.Before(r.retryAt) {
		return fmt.Errorf("segment start deferred until %s", r.retryAt.Format(time.TimeOnly))
	}

	path := SegmentPath(r.cfg.Root, r.cam.ID, now)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		r.retryAt = now.Add(r.cfg.CheckInterval)
		return fmt.Errorf("create segment dir: %w", err)
	}

	proc, err := r.deps.Adapter.StartRecording(ctx, r.cam.RTSPURL, path, r.cfg.SegmentDuration)
	if err != nil {
		r.retryAt = now.Add(r.cfg.CheckInterval)
		return fmt.Errorf("start recording: %w", err)
	}

	r.seg = &segment{path: path, start: now, trigger: trigger, proc: proc}
	observability.RecordingCameras.Inc()

	state := StateRecording
	if trigger == ModeContinuous {
		state = StateContinuousRecording
	}
	r.setState(state, now)

	slog.Info("segment started",
		"camera_id", r.cam.ID,
		"trigger", trigger.String(),
		"file", filepath.Base(path),
	)
	return nil
}

// stopSegment interrupts the writer so it flushes the trailer, then
// finalizes. Cancellation during the wait abandons the file.
func (r *Recorder) stopSegment(ctx context.Context) {
	if r.seg == nil {
		return
	}
	r.seg.proc.Stop(r.cfg.StopGrace)
	if ctx.Err() != nil {
		r.abandonSegment()
		return
	}
	r.finalize(ctx)
}

// abandonSegment kills the writer and drops the in-flight state without
// persisting anything.
func (r *Recorder) abandonSegment() {
	seg := r.seg
	if seg == nil {
		return
	}
	r.seg = nil
	seg.proc.Kill()
	observability.RecordingCameras.Dec()
	slog.Warn("segment abandoned", "camera_id", r.cam.ID, "path", seg.path)
}

// finalize persists the in-flight segment once. The in-flight state is
// cleared before anything else so a second call is a no-op.
func (r *Recorder) finalize(ctx context.Context) {
	seg := r.seg
	if seg == nil {
		return
	}
	r.seg = nil
	observability.RecordingCameras.Dec()

	end := r.now()
	camID := strconv.FormatInt(r.cam.ID, 10)

	info, err := os.Stat(seg.path)
	if err != nil {
		slog.Warn("segment file missing", "camera_id", r.cam.ID, "path", seg.path, "error", err)
		return
	}
	if info.Size() < r.cfg.MinSegmentBytes {
		if err := os.Remove(seg.path); err != nil {
			slog.Warn("remove undersized segment", "path", seg.path, "error", err)
		}
		observability.SegmentsDiscarded.WithLabelValues(camID).Inc()
		slog.Info("undersized segment discarded", "camera_id", r.cam.ID, "path", seg.path, "size", info.Size())
		return
	}

	rec := &models.Recording{
		CameraID:  r.cam.ID,
		Path:      seg.path,
		StartedAt: seg.start,
		EndedAt:   end,
		SizeBytes: info.Size(),
	}
	if err := r.deps.Store.CreateRecording(ctx, rec); err != nil {
		slog.Error("persist segment", "camera_id", r.cam.ID, "path", seg.path, "error", err)
		return
	}
	observability.SegmentsSaved.WithLabelValues(camID, seg.trigger.String()).Inc()

	slog.Info("segment saved",
		"camera_id", r.cam.ID,
		"recording_id", rec.ID,
		"file", filepath.Base(seg.path),
		"size_mb", float64(rec.SizeBytes)/1024/1024,
		"duration", end.Sub(seg.start).Round(time.Second),
	)

	if r.deps.Events != nil {
		ev := models.DomainEvent{
			Type:        models.EventSegmentRecorded,
			CameraID:    r.cam.ID,
			Timestamp:   end,
			RecordingID: &rec.ID,
			Path:        rec.Path,
			SizeBytes:   rec.SizeBytes,
		}
		if err := r.deps.Events.PublishEvent(ctx, ev); err != nil {
			slog.Warn("publish segment event", "camera_id", r.cam.ID, "error", err)
		}
	}

	if r.deps.Analysis == nil || !r.deps.Policy.FaceAnalysisEnabled() {
		return
	}
	job := analysis.Job{RecordingID: rec.ID, CameraID: r.cam.ID, Path: rec.Path}
	if err := r.deps.Analysis.Submit(ctx, job); err != nil {
		slog.Warn("submit segment for analysis", "camera_id", r.cam.ID, "recording_id", rec.ID, "error", err)
	}
}

package handlers

import (
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/alvares777-IA/cameras-arcos/internal/analysis"
	"github.com/alvares777-IA/cameras-arcos/internal/control"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/recorder"
	"github.com/alvares777-IA/cameras-arcos/pkg/dto"
)

type RecordingHandler struct {
	settings      *control.Settings
	supervisor    Supervisor
	store         RecordingStore
	analysis      Analysis
	retentionDays int
}

func NewRecordingHandler(settings *control.Settings, sup Supervisor, store RecordingStore, an Analysis, retentionDays int) *RecordingHandler {
	return &RecordingHandler{settings: settings, supervisor: sup, store: store, analysis: an, retentionDays: retentionDays}
}

func (h *RecordingHandler) Health(c *gin.Context) {
	snap := h.settings.Snapshot()
	c.JSON(http.StatusOK, dto.HealthResponse{
		Status:          "ok",
		Recording:       snap.RecordingEnabled,
		RecordingActive: h.supervisor.IsActive(),
		ContinuousMode:  snap.ContinuousMode.String(),
		FaceRecognition: snap.FaceAnalysisEnabled,
		RetentionDays:   h.retentionDays,
		ActiveRecorders: h.supervisor.ActiveCount(),
	})
}

// Start turns recording on and launches a recorder for every enabled camera
// that does not have one.
func (h *RecordingHandler) Start(c *gin.Context) {
	h.settings.SetRecordingEnabled(true)
	n, err := h.supervisor.StartAll(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	slog.Info("recording enabled via api", "started", n)
	c.JSON(http.StatusOK, dto.ControlResponse{Status: "ok", Message: "recording enabled", Started: n})
}

// Stop turns recording off. Recorders finalize their open segment and idle.
func (h *RecordingHandler) Stop(c *gin.Context) {
	h.settings.SetRecordingEnabled(false)
	slog.Info("recording disabled via api")
	c.JSON(http.StatusOK, dto.ControlResponse{Status: "ok", Message: "recording disabled"})
}

func (h *RecordingHandler) Status(c *gin.Context) {
	snap := h.settings.Snapshot()
	cams := make(map[int64]dto.RecorderStatus)
	for id, st := range h.supervisor.Status() {
		cams[id] = recorderStatus(st)
	}
	c.JSON(http.StatusOK, dto.RecordingStatusResponse{
		Enabled:         snap.RecordingEnabled,
		Active:          h.supervisor.IsActive(),
		ContinuousMode:  snap.ContinuousMode.String(),
		ActiveRecorders: h.supervisor.ActiveCount(),
		Cameras:         cams,
	})
}

func (h *RecordingHandler) StartCamera(c *gin.Context) {
	id, ok := parseID(c, "camera")
	if !ok {
		return
	}
	if err := h.supervisor.StartCamera(c.Request.Context(), id); err != nil {
		if errors.Is(err, recorder.ErrCameraNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
			return
		}
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.ControlResponse{Status: "ok", Message: "recorder started"})
}

func (h *RecordingHandler) StopCamera(c *gin.Context) {
	id, ok := parseID(c, "camera")
	if !ok {
		return
	}
	h.supervisor.StopCamera(id)
	c.JSON(http.StatusOK, dto.ControlResponse{Status: "ok", Message: "recorder stopped"})
}

func (h *RecordingHandler) SetMode(c *gin.Context) {
	var req dto.SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	mode, err := control.ParseContinuousMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.settings.SetContinuousMode(mode)
	slog.Info("continuous mode changed via api", "mode", mode.String())
	c.JSON(http.StatusOK, dto.ControlResponse{Status: "ok", Message: mode.String()})
}

func (h *RecordingHandler) List(c *gin.Context) {
	var q dto.RecordingQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.Limit <= 0 || q.Limit > 500 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	recs, err := h.store.ListRecordings(c.Request.Context(), q.CameraID, q.Limit, q.Offset)
	if err != nil {
		internalError(c, err)
		return
	}

	resp := make([]dto.RecordingResponse, 0, len(recs))
	for i := range recs {
		resp = append(resp, recordingToResponse(&recs[i]))
	}
	c.JSON(http.StatusOK, dto.RecordingListResponse{Recordings: resp, Total: len(resp), Limit: q.Limit, Offset: q.Offset})
}

// Analyze queues a stored segment for face analysis again.
func (h *RecordingHandler) Analyze(c *gin.Context) {
	id, ok := parseID(c, "recording")
	if !ok {
		return
	}
	if !h.analysis.Available() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face capability unavailable"})
		return
	}

	rec, err := h.store.GetRecording(c.Request.Context(), id)
	if err != nil {
		internalError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recording not found"})
		return
	}

	err = h.analysis.Submit(c.Request.Context(), analysis.Job{RecordingID: rec.ID, CameraID: rec.CameraID, Path: rec.Path})
	if err != nil {
		if isQueueError(err) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
			return
		}
		internalError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, dto.ControlResponse{Status: "queued"})
}

func (h *RecordingHandler) Delete(c *gin.Context) {
	id, ok := parseID(c, "recording")
	if !ok {
		return
	}

	rec, err := h.store.GetRecording(c.Request.Context(), id)
	if err != nil {
		internalError(c, err)
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recording not found"})
		return
	}

	if err := os.Remove(rec.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		internalError(c, err)
		return
	}
	if err := h.store.DeleteRecording(c.Request.Context(), id); err != nil {
		internalError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func recordingToResponse(r *models.Recording) dto.RecordingResponse {
	return dto.RecordingResponse{
		ID:           r.ID,
		CameraID:     r.CameraID,
		Path:         r.Path,
		StartedAt:    formatTime(r.StartedAt),
		EndedAt:      formatTime(r.EndedAt),
		SizeBytes:    r.SizeBytes,
		FaceAnalyzed: r.FaceAnalyzed,
	}
}

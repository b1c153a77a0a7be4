package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/pkg/dto"
)

type CameraHandler struct {
	store      CameraStore
	supervisor Supervisor
	prober     Prober
}

func NewCameraHandler(store CameraStore, sup Supervisor, prober Prober) *CameraHandler {
	return &CameraHandler{store: store, supervisor: sup, prober: prober}
}

func (h *CameraHandler) List(c *gin.Context) {
	cams, err := h.store.ListCameras(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	status := h.supervisor.Status()
	resp := make([]dto.CameraResponse, 0, len(cams))
	for i := range cams {
		r := cameraToResponse(&cams[i])
		if st, ok := status[cams[i].ID]; ok {
			rs := recorderStatus(st)
			r.Recorder = &rs
		}
		resp = append(resp, r)
	}
	c.JSON(http.StatusOK, dto.CameraListResponse{Cameras: resp, Total: len(resp)})
}

func (h *CameraHandler) Get(c *gin.Context) {
	cam, ok := h.load(c)
	if !ok {
		return
	}
	r := cameraToResponse(cam)
	if st, ok := h.supervisor.Status()[cam.ID]; ok {
		rs := recorderStatus(st)
		r.Recorder = &rs
	}
	c.JSON(http.StatusOK, r)
}

// Probe runs ffprobe against the camera and stores what it reports.
func (h *CameraHandler) Probe(c *gin.Context) {
	cam, ok := h.load(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 20*time.Second)
	defer cancel()

	info, err := h.prober.Probe(ctx, cam.RTSPURL)
	if err != nil {
		slog.Warn("camera probe failed", "camera_id", cam.ID, "error", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	if err := h.store.UpdateCameraProbe(c.Request.Context(), cam.ID, info.Width, info.Height, info.Codec, info.FPS); err != nil {
		internalError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ProbeResponse{
		CameraID: cam.ID,
		Width:    info.Width,
		Height:   info.Height,
		Codec:    info.Codec,
		FPS:      info.FPS,
	})
}

func (h *CameraHandler) load(c *gin.Context) (*models.Camera, bool) {
	id, ok := parseID(c, "camera")
	if !ok {
		return nil, false
	}
	cam, err := h.store.GetCamera(c.Request.Context(), id)
	if err != nil {
		internalError(c, err)
		return nil, false
	}
	if cam == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "camera not found"})
		return nil, false
	}
	return cam, true
}

// cameraToResponse leaves out the stream URL, which may embed credentials.
func cameraToResponse(cam *models.Camera) dto.CameraResponse {
	return dto.CameraResponse{
		ID:         cam.ID,
		Name:       cam.Name,
		Enabled:    cam.Enabled,
		Continuous: cam.Continuous,
		HourStart:  cam.HourStart,
		HourEnd:    cam.HourEnd,
		Width:      cam.Width,
		Height:     cam.Height,
		Codec:      cam.Codec,
		FPS:        cam.FPS,
	}
}

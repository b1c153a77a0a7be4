package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alvares777-IA/cameras-arcos/internal/control"
	"github.com/alvares777-IA/cameras-arcos/pkg/dto"
)

// FaceHandler switches face analysis of new segments on and off.
type FaceHandler struct {
	settings *control.Settings
	analysis Analysis
	cache    FaceCache
}

func NewFaceHandler(settings *control.Settings, an Analysis, cache FaceCache) *FaceHandler {
	return &FaceHandler{settings: settings, analysis: an, cache: cache}
}

func (h *FaceHandler) Start(c *gin.Context) {
	if !h.analysis.Available() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "face capability unavailable"})
		return
	}
	h.settings.SetFaceAnalysisEnabled(true)
	h.cache.Invalidate()
	slog.Info("face recognition enabled via api")
	c.JSON(http.StatusOK, dto.ControlResponse{Status: "ok", Message: "face recognition enabled"})
}

func (h *FaceHandler) Stop(c *gin.Context) {
	h.settings.SetFaceAnalysisEnabled(false)
	slog.Info("face recognition disabled via api")
	c.JSON(http.StatusOK, dto.ControlResponse{Status: "ok", Message: "face recognition disabled"})
}

func (h *FaceHandler) Status(c *gin.Context) {
	st := h.cache.Stats()
	c.JSON(http.StatusOK, dto.FaceStatusResponse{
		Enabled:    h.settings.FaceAnalysisEnabled(),
		Available:  h.analysis.Available(),
		QueueDepth: h.analysis.QueueDepth(),
		Cache: dto.CacheStats{
			Loaded:     st.Loaded,
			Identities: st.Identities,
			Embeddings: st.Embeddings,
			BuiltAt:    formatTime(st.BuiltAt),
			AgeSeconds: st.Age.Seconds(),
		},
	})
}

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/storage"
	"github.com/alvares777-IA/cameras-arcos/pkg/dto"
)

type IdentityHandler struct {
	store IdentityStore
	faces FaceFiles
	cache FaceCache
}

func NewIdentityHandler(store IdentityStore, faces FaceFiles, cache FaceCache) *IdentityHandler {
	return &IdentityHandler{store: store, faces: faces, cache: cache}
}

func (h *IdentityHandler) List(c *gin.Context) {
	idents, err := h.store.ListIdentities(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}

	resp := make([]dto.IdentityResponse, 0, len(idents))
	for i := range idents {
		resp = append(resp, h.identityToResponse(&idents[i]))
	}
	c.JSON(http.StatusOK, dto.IdentityListResponse{Identities: resp, Total: len(resp)})
}

func (h *IdentityHandler) Get(c *gin.Context) {
	ident, ok := h.load(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.identityToResponse(ident))
}

// Delete removes the identity row (recognitions cascade), its reference
// images and archived copies, then drops the cached embeddings.
func (h *IdentityHandler) Delete(c *gin.Context) {
	ident, ok := h.load(c)
	if !ok {
		return
	}

	if err := h.store.DeleteIdentity(c.Request.Context(), ident.ID); err != nil {
		internalError(c, err)
		return
	}
	if err := h.faces.RemoveIdentity(c.Request.Context(), ident.ID); err != nil {
		slog.Warn("identity deleted but face files remain", "identity_id", ident.ID, "error", err)
	}
	h.cache.Invalidate()

	slog.Info("identity deleted", "identity_id", ident.ID, "name", ident.Name)
	c.Status(http.StatusNoContent)
}

func (h *IdentityHandler) Recognitions(c *gin.Context) {
	ident, ok := h.load(c)
	if !ok {
		return
	}
	views, err := h.store.ListRecognitionsByIdentity(c.Request.Context(), ident.ID, queryLimit(c, 50))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, recognitionList(views))
}

func (h *IdentityHandler) Recent(c *gin.Context) {
	views, err := h.store.RecentRecognitions(c.Request.Context(), queryLimit(c, 50))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, recognitionList(views))
}

// Similar lists sightings whose face embedding is closest to the given one.
func (h *IdentityHandler) Similar(c *gin.Context) {
	id, ok := parseID(c, "recognition")
	if !ok {
		return
	}
	views, err := h.store.SimilarRecognitions(c.Request.Context(), id, queryLimit(c, 20))
	if err != nil {
		internalError(c, err)
		return
	}
	if views == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "recognition not found or has no embedding"})
		return
	}
	c.JSON(http.StatusOK, recognitionList(views))
}

func (h *IdentityHandler) load(c *gin.Context) (*models.Identity, bool) {
	id, ok := parseID(c, "identity")
	if !ok {
		return nil, false
	}
	ident, err := h.store.GetIdentity(c.Request.Context(), id)
	if err != nil {
		internalError(c, err)
		return nil, false
	}
	if ident == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "identity not found"})
		return nil, false
	}
	return ident, true
}

func (h *IdentityHandler) identityToResponse(ident *models.Identity) dto.IdentityResponse {
	n, err := h.faces.CountFaces(ident.ID)
	if err != nil {
		slog.Debug("count faces", "identity_id", ident.ID, "error", err)
	}
	return dto.IdentityResponse{
		ID:        ident.ID,
		Name:      ident.Name,
		Kind:      string(ident.Kind),
		Visitor:   ident.Kind == models.IdentityKindVisitor,
		FaceCount: n,
		CreatedAt: formatTime(ident.CreatedAt),
	}
}

func recognitionList(views []storage.RecognitionView) dto.RecognitionListResponse {
	resp := make([]dto.RecognitionResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, dto.RecognitionResponse{
			ID:           v.ID,
			IdentityID:   v.IdentityID,
			IdentityName: v.IdentityName,
			CameraID:     v.CameraID,
			CameraName:   v.CameraName,
			RecordingID:  v.RecordingID,
			Distance:     v.Distance,
			DetectedAt:   formatTime(v.DetectedAt),
		})
	}
	return dto.RecognitionListResponse{Recognitions: resp, Total: len(resp)}
}

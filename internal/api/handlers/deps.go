package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alvares777-IA/cameras-arcos/internal/analysis"
	"github.com/alvares777-IA/cameras-arcos/internal/facecache"
	"github.com/alvares777-IA/cameras-arcos/internal/ingest"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/recorder"
	"github.com/alvares777-IA/cameras-arcos/internal/storage"
	"github.com/alvares777-IA/cameras-arcos/pkg/dto"
)

// Supervisor is the recorder control surface. *recorder.Supervisor satisfies it.
type Supervisor interface {
	StartAll(ctx context.Context) (int, error)
	StartCamera(ctx context.Context, id int64) error
	StopCamera(id int64)
	IsActive() bool
	ActiveCount() int
	Status() map[int64]recorder.Status
}

// Analysis is the face analysis queue. *analysis.Pipeline satisfies it.
type Analysis interface {
	Submit(ctx context.Context, job analysis.Job) error
	Available() bool
	QueueDepth() int
}

// FaceCache is the known-face cache. *facecache.Cache satisfies it.
type FaceCache interface {
	Stats() facecache.Stats
	Invalidate()
}

type CameraStore interface {
	GetCamera(ctx context.Context, id int64) (*models.Camera, error)
	ListCameras(ctx context.Context) ([]models.Camera, error)
	UpdateCameraProbe(ctx context.Context, id int64, width, height int, codec string, fps float64) error
}

type RecordingStore interface {
	GetRecording(ctx context.Context, id int64) (*models.Recording, error)
	ListRecordings(ctx context.Context, cameraID *int64, limit, offset int) ([]models.Recording, error)
	DeleteRecording(ctx context.Context, id int64) error
}

type IdentityStore interface {
	GetIdentity(ctx context.Context, id int64) (*models.Identity, error)
	ListIdentities(ctx context.Context) ([]models.Identity, error)
	DeleteIdentity(ctx context.Context, id int64) error
	ListRecognitionsByIdentity(ctx context.Context, identityID int64, limit int) ([]storage.RecognitionView, error)
	RecentRecognitions(ctx context.Context, limit int) ([]storage.RecognitionView, error)
	SimilarRecognitions(ctx context.Context, id int64, limit int) ([]storage.RecognitionView, error)
}

// FaceFiles manages reference images. *storage.FaceStore satisfies it.
type FaceFiles interface {
	CountFaces(identityID int64) (int, error)
	RemoveIdentity(ctx context.Context, identityID int64) error
}

// Prober inspects a live source. *ingest.FFmpeg satisfies it.
type Prober interface {
	Probe(ctx context.Context, streamURL string) (*ingest.StreamInfo, error)
}

func parseID(c *gin.Context, what string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + what + " id"})
		return 0, false
	}
	return id, true
}

func queryLimit(c *gin.Context, def int) int {
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}

func recorderStatus(s recorder.Status) dto.RecorderStatus {
	out := dto.RecorderStatus{
		Name:      s.Name,
		Running:   s.Running,
		Recording: s.Recording,
		State:     string(s.State),
	}
	if s.SegmentStartedAt != nil {
		out.SegmentStartedAt = formatTime(*s.SegmentStartedAt)
	}
	return out
}

func internalError(c *gin.Context, err error) {
	c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
}

func isQueueError(err error) bool {
	return errors.Is(err, analysis.ErrQueueFull) || errors.Is(err, analysis.ErrClosed)
}

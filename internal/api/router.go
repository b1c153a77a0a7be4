package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alvares777-IA/cameras-arcos/internal/api/handlers"
	"github.com/alvares777-IA/cameras-arcos/internal/api/ws"
	"github.com/alvares777-IA/cameras-arcos/internal/auth"
	"github.com/alvares777-IA/cameras-arcos/internal/control"
)

// Store is everything the handlers read from Postgres.
type Store interface {
	handlers.CameraStore
	handlers.RecordingStore
	handlers.IdentityStore
}

type RouterConfig struct {
	APIKey        string
	RetentionDays int

	Settings   *control.Settings
	Store      Store
	Supervisor handlers.Supervisor
	Analysis   handlers.Analysis
	Cache      handlers.FaceCache
	Faces      handlers.FaceFiles
	Prober     handlers.Prober
	Hub        *ws.Hub
	Checks     []handlers.Check
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Recording control
	recH := handlers.NewRecordingHandler(cfg.Settings, cfg.Supervisor, cfg.Store, cfg.Analysis, cfg.RetentionDays)
	v1.GET("/health", recH.Health)
	v1.POST("/recording/start", recH.Start)
	v1.POST("/recording/stop", recH.Stop)
	v1.GET("/recording/status", recH.Status)
	v1.PUT("/recording/mode", recH.SetMode)
	v1.POST("/recording/cameras/:id/start", recH.StartCamera)
	v1.POST("/recording/cameras/:id/stop", recH.StopCamera)

	// Recordings
	v1.GET("/recordings", recH.List)
	v1.POST("/recordings/:id/analyze", recH.Analyze)
	v1.DELETE("/recordings/:id", recH.Delete)

	// Cameras
	camH := handlers.NewCameraHandler(cfg.Store, cfg.Supervisor, cfg.Prober)
	v1.GET("/cameras", camH.List)
	v1.GET("/cameras/:id", camH.Get)
	v1.POST("/cameras/:id/probe", camH.Probe)

	// Face recognition
	faceH := handlers.NewFaceHandler(cfg.Settings, cfg.Analysis, cfg.Cache)
	v1.POST("/face-recognition/start", faceH.Start)
	v1.POST("/face-recognition/stop", faceH.Stop)
	v1.GET("/face-recognition/status", faceH.Status)

	// Identities & recognitions
	idH := handlers.NewIdentityHandler(cfg.Store, cfg.Faces, cfg.Cache)
	v1.GET("/identities", idH.List)
	v1.GET("/identities/:id", idH.Get)
	v1.DELETE("/identities/:id", idH.Delete)
	v1.GET("/identities/:id/recognitions", idH.Recognitions)
	v1.GET("/recognitions/recent", idH.Recent)
	v1.GET("/recognitions/:id/similar", idH.Similar)

	return r
}

package recorder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/observability"
)

var ErrCameraNotFound = errors.New("camera not found")

// CameraLister is the supervisor's view of the camera table.
type CameraLister interface {
	GetCamera(ctx context.Context, id int64) (*models.Camera, error)
	ListEnabledCameras(ctx context.Context) ([]models.Camera, error)
}

// Supervisor manages the recorder lifecycle, one recorder per camera.
type Supervisor struct {
	base    context.Context
	cfg     Config
	deps    Deps
	cameras CameraLister

	mu        sync.RWMutex
	recorders map[int64]*Recorder
}

// NewSupervisor returns a supervisor whose recorders live until base is
// cancelled or they are stopped explicitly.
func NewSupervisor(base context.Context, cfg Config, deps Deps, cameras CameraLister) *Supervisor {
	return &Supervisor{
		base:      base,
		cfg:       cfg,
		deps:      deps,
		cameras:   cameras,
		recorders: make(map[int64]*Recorder),
	}
}

// StartAll starts a recorder for every enabled camera that has none running.
// It returns the number of recorders started.
func (s *Supervisor) StartAll(ctx context.Context) (int, error) {
	cams, err := s.cameras.ListEnabledCameras(ctx)
	if err != nil {
		return 0, fmt.Errorf("list enabled cameras: %w", err)
	}

	started := 0
	for _, cam := range cams {
		if s.start(cam) {
			started++
		}
	}
	slog.Info("recorders started", "started", started, "cameras", len(cams), "active", s.ActiveCount())
	return started, nil
}

// StartCamera starts the recorder for one camera. Starting a running
// camera is a no-op.
func (s *Supervisor) StartCamera(ctx context.Context, id int64) error {
	cam, err := s.cameras.GetCamera(ctx, id)
	if err != nil {
		return fmt.Errorf("get camera: %w", err)
	}
	if cam == nil {
		return ErrCameraNotFound
	}
	s.start(*cam)
	return nil
}

func (s *Supervisor) start(cam models.Camera) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.recorders[cam.ID]; ok {
		select {
		case <-r.Done():
		default:
			return false
		}
	}

	r := New(cam, s.cfg, s.deps)
	r.Start(s.base)
	s.recorders[cam.ID] = r
	observability.ActiveRecorders.Set(float64(len(s.recorders)))
	return true
}

// StopCamera removes and stops one recorder. Unknown ids are a no-op.
func (s *Supervisor) StopCamera(id int64) {
	s.mu.Lock()
	r, ok := s.recorders[id]
	delete(s.recorders, id)
	observability.ActiveRecorders.Set(float64(len(s.recorders)))
	s.mu.Unlock()

	if ok {
		r.Stop()
		slog.Info("recorder removed", "camera_id", id)
	}
}

// StopAll signals every recorder, then waits for all loops to exit.
func (s *Supervisor) StopAll() {
	s.mu.Lock()
	recs := make([]*Recorder, 0, len(s.recorders))
	for id, r := range s.recorders {
		recs = append(recs, r)
		delete(s.recorders, id)
	}
	observability.ActiveRecorders.Set(0)
	s.mu.Unlock()

	for _, r := range recs {
		r.signalStop()
	}
	for _, r := range recs {
		<-r.Done()
	}
	slog.Info("all recorders stopped", "count", len(recs))
}

// IsActive reports whether any recorder is running.
func (s *Supervisor) IsActive() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.recorders {
		if r.Status().Running {
			return true
		}
	}
	return false
}

func (s *Supervisor) Status() map[int64]Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[int64]Status, len(s.recorders))
	for id, r := range s.recorders {
		out[id] = r.Status()
	}
	return out
}

// ActiveCount returns the number of managed recorders.
func (s *Supervisor) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.recorders)
}

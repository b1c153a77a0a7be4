package recorder

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/alvares777-IA/cameras-arcos/internal/analysis"
	"github.com/alvares777-IA/cameras-arcos/internal/ingest"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
)

type fakeSource struct {
	frames chan []byte
	closed chan struct{}
	once   sync.Once
}

func newFakeSource() *fakeSource {
	return &fakeSource{frames: make(chan []byte, 16), closed: make(chan struct{})}
}

func (s *fakeSource) ReadFrame() ([]byte, error) {
	select {
	case f, ok := <-s.frames:
		if !ok {
			return nil, io.EOF
		}
		return f, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeSource) isClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

type fakeRecording struct {
	path string
	done chan struct{}
	once sync.Once

	mu      sync.Mutex
	stopped bool
	killed  bool
}

func (r *fakeRecording) Done() <-chan struct{} { return r.done }
func (r *fakeRecording) Err() error            { return nil }

func (r *fakeRecording) Stop(time.Duration) {
	r.mu.Lock()
	r.stopped = true
	r.mu.Unlock()
	r.finish()
}

func (r *fakeRecording) Kill() {
	r.mu.Lock()
	select {
	case <-r.done:
	default:
		r.killed = true
	}
	r.mu.Unlock()
	r.finish()
}

// finish simulates the writer exiting after its maximum duration.
func (r *fakeRecording) finish() { r.once.Do(func() { close(r.done) }) }

func (r *fakeRecording) wasStopped() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopped
}

func (r *fakeRecording) wasKilled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.killed
}

type fakeAdapter struct {
	fileSize int

	mu      sync.Mutex
	sources []*fakeSource
	recs    []*fakeRecording
}

func (a *fakeAdapter) OpenMotionSource(context.Context, string) (ingest.FrameSource, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s := newFakeSource()
	a.sources = append(a.sources, s)
	return s, nil
}

func (a *fakeAdapter) StartRecording(_ context.Context, _ string, path string, _ time.Duration) (ingest.Recording, error) {
	if err := os.WriteFile(path, make([]byte, a.fileSize), 0o644); err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	r := &fakeRecording{path: path, done: make(chan struct{})}
	a.recs = append(a.recs, r)
	return r, nil
}

func (a *fakeAdapter) sourceCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.sources)
}

func (a *fakeAdapter) source(i int) *fakeSource {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sources[i]
}

func (a *fakeAdapter) recCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.recs)
}

func (a *fakeAdapter) rec(i int) *fakeRecording {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.recs[i]
}

type fakeStore struct {
	mu         sync.Mutex
	cameras    map[int64]models.Camera
	recordings []models.Recording
}

func newFakeStore(cams ...models.Camera) *fakeStore {
	s := &fakeStore{cameras: make(map[int64]models.Camera)}
	for _, c := range cams {
		s.cameras[c.ID] = c
	}
	return s
}

func (s *fakeStore) GetCamera(_ context.Context, id int64) (*models.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cameras[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeStore) ListEnabledCameras(context.Context) ([]models.Camera, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Camera
	for _, c := range s.cameras {
		if c.Enabled {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *fakeStore) CreateRecording(_ context.Context, r *models.Recording) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = int64(len(s.recordings) + 1)
	s.recordings = append(s.recordings, *r)
	return nil
}

func (s *fakeStore) recordingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.recordings)
}

type fakeEvents struct {
	mu     sync.Mutex
	events []models.DomainEvent
}

func (e *fakeEvents) PublishEvent(_ context.Context, ev models.DomainEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

type fakeSubmitter struct {
	mu   sync.Mutex
	jobs []analysis.Job
}

func (f *fakeSubmitter) Submit(_ context.Context, job analysis.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs = append(f.jobs, job)
	return nil
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.jobs)
}

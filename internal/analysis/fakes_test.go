package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"

	"github.com/alvares777-IA/cameras-arcos/internal/facecache"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/vision"
)

// texture is a mid-grey pattern that passes the sharpness and brightness gates.
func texture(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := uint8(60 + (x*7+y*13)%130)
			img.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return img
}

func fullLandmarks() map[string][]image.Point {
	return map[string][]image.Point{
		vision.LandmarkLeftEye:    {{20, 20}},
		vision.LandmarkRightEye:   {{40, 20}},
		vision.LandmarkNoseBridge: {{30, 30}},
		vision.LandmarkTopLip:     {{25, 40}, {35, 40}},
	}
}

func face(box image.Rectangle) vision.Face {
	return vision.Face{Box: box, Score: 0.9, Landmarks: fullLandmarks()}
}

func facesAt(boxes ...image.Rectangle) []vision.Face {
	out := make([]vision.Face, 0, len(boxes))
	for _, b := range boxes {
		out = append(out, face(b))
	}
	return out
}

// fakeAnalyzer returns the same faces on every frame. Embeddings are keyed
// by the left edge of the face box.
type fakeAnalyzer struct {
	faces  []vision.Face
	embeds map[int][]float32
}

func (a *fakeAnalyzer) Accelerated() bool { return false }

func (a *fakeAnalyzer) Detect(image.Image, vision.DetectOptions) ([]vision.Face, error) {
	return a.faces, nil
}

func (a *fakeAnalyzer) Embed(_ image.Image, f vision.Face) ([]float32, error) {
	emb, ok := a.embeds[f.Box.Min.X]
	if !ok {
		return nil, errors.New("no embedding")
	}
	return emb, nil
}

// fakeFrames writes count textured JPEG frames. When block is set every
// call waits for it, tracking the peak number of concurrent calls.
type fakeFrames struct {
	count int
	size  int
	err   error
	block chan struct{}

	mu      sync.Mutex
	calls   int
	running int
	peak    int
	started chan struct{}
}

func (f *fakeFrames) ExtractFrames(ctx context.Context, _, outDir string, _ time.Duration, _ int, _ time.Duration) ([]string, error) {
	f.mu.Lock()
	f.calls++
	f.running++
	f.peak = max(f.peak, f.running)
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.running--
		f.mu.Unlock()
	}()

	if f.started != nil {
		f.started <- struct{}{}
	}
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}

	size := f.size
	if size == 0 {
		size = 200
	}
	var paths []string
	for i := 0; i < f.count; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("frame_%04d.jpg", i+1))
		if err := imaging.Save(texture(size, size), p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (f *fakeFrames) stats() (calls, peak int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, f.peak
}

type fakeStore struct {
	mu           sync.Mutex
	nextID       int64
	identities   map[int64]*models.Identity
	recognitions []models.Recognition
	analyzed     []int64
	deleted      []int64
}

func newFakeStore(known ...models.Identity) *fakeStore {
	s := &fakeStore{nextID: 100, identities: make(map[int64]*models.Identity)}
	for i := range known {
		s.identities[known[i].ID] = &known[i]
	}
	return s
}

func (s *fakeStore) GetIdentity(_ context.Context, id int64) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identities[id], nil
}

func (s *fakeStore) CreateVisitor(context.Context) (*models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ident := range s.identities {
		if ident.Kind == models.IdentityKindVisitor {
			n++
		}
	}
	s.nextID++
	ident := &models.Identity{ID: s.nextID, Name: fmt.Sprintf("%s%d", models.VisitorPrefix, n+1), Kind: models.IdentityKindVisitor}
	s.identities[ident.ID] = ident
	return ident, nil
}

func (s *fakeStore) DeleteIdentity(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *fakeStore) CreateRecognition(_ context.Context, r *models.Recognition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = int64(len(s.recognitions) + 1)
	s.recognitions = append(s.recognitions, *r)
	return nil
}

func (s *fakeStore) MarkRecordingAnalyzed(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyzed = append(s.analyzed, id)
	return nil
}

func (s *fakeStore) analyzedIDs() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.analyzed...)
}

func (s *fakeStore) visitors() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ident := range s.identities {
		if ident.Kind == models.IdentityKindVisitor {
			n++
		}
	}
	return n
}

type fakeFaces struct {
	mu      sync.Mutex
	saved   map[int64][]image.Image
	saveErr error
}

func newFakeFaces() *fakeFaces { return &fakeFaces{saved: make(map[int64][]image.Image)} }

func (f *fakeFaces) SaveFace(_ context.Context, id int64, img image.Image) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved[id] = append(f.saved[id], img)
	return fmt.Sprintf("%d/face_%d.jpg", id, len(f.saved[id])), nil
}

func (f *fakeFaces) CountFaces(id int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved[id]), nil
}

type fakeKnown struct {
	mu          sync.Mutex
	snapshot    *facecache.Snapshot
	invalidated int
}

func (k *fakeKnown) Load(context.Context) (*facecache.Snapshot, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.snapshot, nil
}

func (k *fakeKnown) Invalidate() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.invalidated++
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

func (e *fakeEvents) types() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []string
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

// segmentFile creates a placeholder segment on disk.
func segmentFile(dir string) string {
	p := filepath.Join(dir, "seg.mp4")
	_ = os.WriteFile(p, []byte("mp4"), 0o644)
	return p
}

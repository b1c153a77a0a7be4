package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alvares777-IA/cameras-arcos/internal/config"
	"github.com/alvares777-IA/cameras-arcos/internal/facecache"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/observability"
	"github.com/alvares777-IA/cameras-arcos/internal/vision"
)

var (
	// ErrQueueFull is returned when the caller's context ends before the
	// queue has room for the job.
	ErrQueueFull = errors.New("analysis queue full")
	// ErrClosed is returned by Submit after Close.
	ErrClosed = errors.New("analysis pipeline closed")
)

// Job is one finalized segment waiting for face analysis.
type Job struct {
	RecordingID int64
	CameraID    int64
	Path        string
}

// Store is the persistence the pipeline needs. *storage.PostgresStore satisfies it.
type Store interface {
	GetIdentity(ctx context.Context, id int64) (*models.Identity, error)
	CreateVisitor(ctx context.Context) (*models.Identity, error)
	DeleteIdentity(ctx context.Context, id int64) error
	CreateRecognition(ctx context.Context, r *models.Recognition) error
	MarkRecordingAnalyzed(ctx context.Context, id int64) error
}

// FaceStore keeps reference images per identity. *storage.FaceStore satisfies it.
type FaceStore interface {
	SaveFace(ctx context.Context, identityID int64, img image.Image) (string, error)
	CountFaces(identityID int64) (int, error)
}

// KnownFaces is the reference-embedding cache. *facecache.Cache satisfies it.
type KnownFaces interface {
	Load(ctx context.Context) (*facecache.Snapshot, error)
	Invalidate()
}

// FrameExtractor samples still frames from a video file. *ingest.FFmpeg satisfies it.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, videoPath, outDir string, interval time.Duration, width int, timeout time.Duration) ([]string, error)
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.DomainEvent) error
}

// Deps wires the pipeline. Analyzer nil means the face capability is
// unavailable: jobs are only marked analyzed. Events may be nil.
type Deps struct {
	Analyzer vision.Analyzer
	Store    Store
	Faces    FaceStore
	Known    KnownFaces
	Frames   FrameExtractor
	Events   EventPublisher
}

// Pipeline runs segment analyses on a bounded queue with a fixed number of
// concurrent workers.
type Pipeline struct {
	cfg  config.FaceRecognitionConfig
	deps Deps

	queue chan Job
	sem   *semaphore.Weighted

	mu     sync.RWMutex
	closed bool

	ctx      context.Context
	cancel   context.CancelFunc
	dispatch sync.WaitGroup
	running  sync.WaitGroup
}

// New starts the dispatcher. Call Close to stop it.
func New(cfg config.FaceRecognitionConfig, deps Deps) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 32
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = 0.6
	}
	if cfg.DetectScale <= 0 || cfg.DetectScale > 1 {
		cfg.DetectScale = 0.5
	}
	if cfg.MaxFacesPerID <= 0 {
		cfg.MaxFacesPerID = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		cfg:    cfg,
		deps:   deps,
		queue:  make(chan Job, cfg.QueueSize),
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
		ctx:    ctx,
		cancel: cancel,
	}

	if deps.Analyzer == nil {
		slog.Warn("face analysis unavailable, segments will only be marked analyzed")
	}

	p.dispatch.Add(1)
	go p.dispatchLoop()
	return p
}

// Available reports whether face detection can run.
func (p *Pipeline) Available() bool { return p.deps.Analyzer != nil }

// QueueDepth is the number of jobs waiting for a worker.
func (p *Pipeline) QueueDepth() int { return len(p.queue) }

// Submit enqueues a job. It blocks while the queue is full until space frees
// or ctx ends, in which case ErrQueueFull is returned.
func (p *Pipeline) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}

	select {
	case p.queue <- job:
		observability.AnalysisQueueDepth.Inc()
		return nil
	default:
	}

	slog.Warn("analysis queue full, waiting", "recording_id", job.RecordingID, "queued", len(p.queue))
	select {
	case p.queue <- job:
		observability.AnalysisQueueDepth.Inc()
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrQueueFull, ctx.Err())
	}
}

// Close stops accepting jobs and waits for queued and running analyses.
// If ctx ends first, in-flight work is cancelled and ctx.Err() returned.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.dispatch.Wait()
		p.running.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.cancel()
		return nil
	case <-ctx.Done():
		p.cancel()
		<-done
		return ctx.Err()
	}
}

func (p *Pipeline) dispatchLoop() {
	defer p.dispatch.Done()
	for {
		// Take a worker slot first so waiting jobs stay counted in the queue.
		if err := p.sem.Acquire(context.Background(), 1); err != nil {
			return
		}
		job, ok := <-p.queue
		if !ok {
			p.sem.Release(1)
			return
		}
		observability.AnalysisQueueDepth.Dec()
		p.running.Add(1)
		go func(job Job) {
			defer p.running.Done()
			defer p.sem.Release(1)
			p.Run(p.ctx, job)
		}(job)
	}
}

// Run analyzes one segment synchronously. The recording is marked analyzed
// whatever happens, so a segment is never picked up twice.
func (p *Pipeline) Run(ctx context.Context, job Job) {
	observability.AnalysesInFlight.Inc()
	defer observability.AnalysesInFlight.Dec()
	defer p.markAnalyzed(ctx, job)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("panic in segment analysis", "recording_id", job.RecordingID, "panic", rec)
		}
	}()

	if p.deps.Analyzer == nil {
		slog.Debug("face analysis unavailable, skipping", "recording_id", job.RecordingID)
		return
	}

	start := time.Now()
	summary, err := p.analyze(ctx, job)
	if err != nil {
		slog.Warn("segment analysis aborted", "recording_id", job.RecordingID, "path", job.Path, "error", err)
		return
	}
	slog.Info("segment analyzed",
		"recording_id", job.RecordingID,
		"camera_id", job.CameraID,
		"frames", summary.Frames,
		"faces", summary.Faces,
		"recognized", summary.Recognized,
		"enrolled", summary.Enrolled,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
}

func (p *Pipeline) markAnalyzed(ctx context.Context, job Job) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := p.deps.Store.MarkRecordingAnalyzed(ctx, job.RecordingID); err != nil {
		slog.Error("failed to mark recording analyzed", "recording_id", job.RecordingID, "error", err)
	}
}

func (p *Pipeline) publish(ctx context.Context, ev models.DomainEvent) {
	if p.deps.Events == nil {
		return
	}
	if err := p.deps.Events.PublishEvent(ctx, ev); err != nil {
		slog.Warn("failed to publish event", "type", ev.Type, "error", err)
	}
}

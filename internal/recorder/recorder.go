// Package recorder runs one motion/continuous recording loop per camera.
package recorder

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/alvares777-IA/cameras-arcos/internal/analysis"
	"github.com/alvares777-IA/cameras-arcos/internal/config"
	"github.com/alvares777-IA/cameras-arcos/internal/ingest"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/motion"
	"github.com/alvares777-IA/cameras-arcos/internal/observability"
)

type State string

const (
	StateIdle                State = "idle"
	StateMotionWatching      State = "motion_watching"
	StateRecording           State = "recording"
	StateContinuousRecording State = "continuous_recording"
	StateStopped             State = "stopped"
)

// Adapter launches the external processes a recorder owns. *ingest.FFmpeg satisfies it.
type Adapter interface {
	OpenMotionSource(ctx context.Context, streamURL string) (ingest.FrameSource, error)
	StartRecording(ctx context.Context, streamURL, path string, maxDuration time.Duration) (ingest.Recording, error)
}

// Store is the persistence a recorder needs. *storage.PostgresStore satisfies it.
type Store interface {
	GetCamera(ctx context.Context, id int64) (*models.Camera, error)
	CreateRecording(ctx context.Context, r *models.Recording) error
}

type EventPublisher interface {
	PublishEvent(ctx context.Context, ev models.DomainEvent) error
}

type SegmentSubmitter interface {
	Submit(ctx context.Context, job analysis.Job) error
}

// Deps are shared by every recorder. Events and Analysis may be nil.
type Deps struct {
	Adapter  Adapter
	Store    Store
	Policy   Policy
	Events   EventPublisher
	Analysis SegmentSubmitter
}

type Config struct {
	Root            string
	SegmentDuration time.Duration
	Cooldown        time.Duration
	StopGrace       time.Duration
	MinSegmentBytes int64

	// CheckInterval bounds how stale the policy and camera row may get.
	CheckInterval   time.Duration
	RestartDelay    time.Duration
	MaxReadFailures int
}

func NewConfig(rc config.RecordingConfig) Config {
	return Config{
		Root:            rc.Root,
		SegmentDuration: rc.SegmentDuration,
		Cooldown:        rc.MotionCooldown,
		StopGrace:       rc.StopGrace,
		MinSegmentBytes: rc.MinSegmentBytes,
		CheckInterval:   time.Second,
		RestartDelay:    3 * time.Second,
		MaxReadFailures: 10,
	}
}

type Status struct {
	Name             string     `json:"name"`
	Running          bool       `json:"running"`
	Recording        bool       `json:"recording"`
	State            State      `json:"state"`
	SegmentStartedAt *time.Time `json:"segment_started_at,omitempty"`
}

type frameResult struct {
	frame []byte
	err   error
}

// motionSource pairs a frame source with the goroutine draining it.
type motionSource struct {
	src    ingest.FrameSource
	frames chan frameResult
	stop   chan struct{}
}

type Recorder struct {
	cfg  Config
	deps Deps
	now  func() time.Time

	cancel   context.CancelFunc
	done     chan struct{}
	stopOnce sync.Once

	mu       sync.Mutex
	name     string
	state    State
	running  bool
	segStart time.Time

	// Owned by the loop goroutine.
	cam         models.Camera
	lastRefresh time.Time
	detector    *motion.Detector
	motion      *motionSource
	failures    int
	restartAt   time.Time
	retryAt     time.Time
	lastMotion  time.Time
	seg         *segment
}

func New(cam models.Camera, cfg Config, deps Deps) *Recorder {
	return &Recorder{
		cfg:      cfg,
		deps:     deps,
		now:      time.Now,
		cam:      cam,
		name:     cam.Name,
		state:    StateIdle,
		detector: motion.NewDetector(),
		done:     make(chan struct{}),
	}
}

// Start launches the loop. The recorder runs until Stop or ctx cancellation.
func (r *Recorder) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	r.mu.Lock()
	r.running = true
	r.mu.Unlock()

	go r.run(ctx)
}

// Stop kills every owned process without finalizing and waits for the loop to exit.
func (r *Recorder) Stop() {
	r.signalStop()
	<-r.done
}

func (r *Recorder) signalStop() {
	r.stopOnce.Do(func() {
		if r.cancel != nil {
			r.cancel()
		}
	})
}

// Done is closed when the loop has exited.
func (r *Recorder) Done() <-chan struct{} { return r.done }

func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	st := Status{
		Name:      r.name,
		Running:   r.running,
		State:     r.state,
		Recording: r.state == StateRecording || r.state == StateContinuousRecording,
	}
	if st.Recording {
		t := r.segStart
		st.SegmentStartedAt = &t
	}
	return st
}

func (r *Recorder) setState(s State, segStart time.Time) {
	r.mu.Lock()
	r.state = s
	r.segStart = segStart
	r.mu.Unlock()
}

func (r *Recorder) run(ctx context.Context) {
	defer close(r.done)
	defer func() {
		r.shutdown()
		r.mu.Lock()
		r.running = false
		r.state = StateStopped
		r.mu.Unlock()
		slog.Info("recorder stopped", "camera_id", r.cam.ID)
	}()

	slog.Info("recorder started", "camera_id", r.cam.ID, "name", r.cam.Name)

	ticker := time.NewTicker(r.cfg.CheckInterval)
	defer ticker.Stop()

	for ctx.Err() == nil {
		r.guard(ctx, func() { r.step(ctx) })

		var frames <-chan frameResult
		if r.motion != nil {
			frames = r.motion.frames
		}
		var segDone <-chan struct{}
		if r.seg != nil {
			segDone = r.seg.proc.Done()
		}

		select {
		case <-ctx.Done():
			return
		case fr := <-frames:
			r.guard(ctx, func() { r.onFrame(ctx, fr) })
		case <-segDone:
			r.guard(ctx, func() { r.onSegmentExit(ctx) })
		case <-ticker.C:
		}
	}
}

// guard keeps a panic inside one iteration from killing the loop. The
// owned processes are torn down and the loop resumes after a pause.
func (r *Recorder) guard(ctx context.Context, fn func()) {
	defer func() {
		if p := recover(); p != nil {
			slog.Error("recorder loop panic", "camera_id", r.cam.ID, "panic", p)
			r.shutdown()
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
		}
	}()
	fn()
}

// step re-evaluates policy and reconciles the owned processes with it.
func (r *Recorder) step(ctx context.Context) {
	now := r.now()
	r.refreshCamera(ctx, now)

	switch EffectiveMode(&r.cam, r.deps.Policy, now.Hour()) {
	case ModeOff:
		r.closeMotion()
		if r.seg != nil {
			slog.Info("recording disabled, stopping segment", "camera_id", r.cam.ID)
			r.stopSegment(ctx)
		}
		r.setState(StateIdle, time.Time{})

	case ModeContinuous:
		r.closeMotion()
		if r.seg == nil {
			if err := r.startSegment(ctx, ModeContinuous); err != nil {
				slog.Warn("start continuous segment", "camera_id", r.cam.ID, "error", err)
			}
			return
		}
		if r.seg.trigger != ModeContinuous {
			r.seg.trigger = ModeContinuous
			r.setState(StateContinuousRecording, r.seg.start)
			slog.Info("switched to continuous recording", "camera_id", r.cam.ID)
		}

	case ModeMotion:
		if r.seg != nil && r.seg.trigger == ModeContinuous {
			slog.Info("switched to motion recording, stopping continuous segment", "camera_id", r.cam.ID)
			r.stopSegment(ctx)
			r.lastMotion = time.Time{}
		}
		if r.motion == nil && !now.Before(r.restartAt) {
			r.openMotion(ctx)
		}

		sinceMotion := now.Sub(r.lastMotion)
		switch {
		case r.seg != nil && sinceMotion >= r.cfg.Cooldown:
			slog.Info("no motion, stopping segment", "camera_id", r.cam.ID, "idle", sinceMotion.Round(time.Second))
			r.stopSegment(ctx)
			r.setState(StateMotionWatching, time.Time{})
		case r.seg == nil && !r.lastMotion.IsZero() && sinceMotion < r.cfg.Cooldown:
			// A chained start that failed earlier is retried while motion is recent.
			if err := r.startSegment(ctx, ModeMotion); err != nil {
				slog.Debug("retry motion segment", "camera_id", r.cam.ID, "error", err)
			}
		case r.seg == nil:
			r.setState(StateMotionWatching, time.Time{})
		}
	}
}

func (r *Recorder) onFrame(ctx context.Context, fr frameResult) {
	if fr.err != nil {
		r.failures++
		if r.failures > r.cfg.MaxReadFailures {
			slog.Warn("motion stream lost, restarting", "camera_id", r.cam.ID, "error", fr.err)
			observability.DetectorRestarts.WithLabelValues(strconv.FormatInt(r.cam.ID, 10)).Inc()
			r.closeMotion()
			r.restartAt = r.now().Add(r.cfg.RestartDelay)
			r.failures = 0
		}
		return
	}
	r.failures = 0

	if !r.detector.Detect(fr.frame) {
		return
	}
	r.lastMotion = r.now()
	if r.seg != nil {
		return
	}

	observability.MotionTriggers.WithLabelValues(strconv.FormatInt(r.cam.ID, 10)).Inc()
	if err := r.startSegment(ctx, ModeMotion); err != nil {
		slog.Warn("start motion segment", "camera_id", r.cam.ID, "error", err)
	}
}

// onSegmentExit handles a writer that exited on its own, normally because
// the maximum segment duration elapsed.
func (r *Recorder) onSegmentExit(ctx context.Context) {
	if ctx.Err() != nil {
		r.abandonSegment()
		return
	}
	seg := r.seg
	if err := seg.proc.Err(); err != nil {
		slog.Warn("recording process exited", "camera_id", r.cam.ID, "error", err)
	}
	r.finalize(ctx)

	if seg.proc.Err() != nil {
		r.retryAt = r.now().Add(r.cfg.CheckInterval)
		r.setState(StateIdle, time.Time{})
		return
	}

	switch {
	case seg.trigger == ModeContinuous:
		if err := r.startSegment(ctx, ModeContinuous); err != nil {
			slog.Warn("chain continuous segment", "camera_id", r.cam.ID, "error", err)
		}
	case r.now().Sub(r.lastMotion) < r.cfg.Cooldown:
		slog.Info("segment complete, chaining (motion active)", "camera_id", r.cam.ID)
		if err := r.startSegment(ctx, ModeMotion); err != nil {
			slog.Warn("chain motion segment", "camera_id", r.cam.ID, "error", err)
		}
	default:
		r.setState(StateMotionWatching, time.Time{})
	}
}

// refreshCamera re-reads the camera row at most once per CheckInterval.
// A failed read keeps the last known row.
func (r *Recorder) refreshCamera(ctx context.Context, now time.Time) {
	if now.Sub(r.lastRefresh) < r.cfg.CheckInterval {
		return
	}
	r.lastRefresh = now

	cam, err := r.deps.Store.GetCamera(ctx, r.cam.ID)
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("refresh camera", "camera_id", r.cam.ID, "error", err)
		}
		return
	}
	if cam == nil {
		r.cam.Enabled = false
		return
	}
	r.cam = *cam

	r.mu.Lock()
	r.name = cam.Name
	r.mu.Unlock()
}

func (r *Recorder) openMotion(ctx context.Context) {
	src, err := r.deps.Adapter.OpenMotionSource(ctx, r.cam.RTSPURL)
	if err != nil {
		slog.Warn("open motion source", "camera_id", r.cam.ID, "error", err)
		r.restartAt = r.now().Add(r.cfg.RestartDelay)
		return
	}

	ms := &motionSource{
		src:    src,
		frames: make(chan frameResult, 1),
		stop:   make(chan struct{}),
	}
	go drain(ms)

	r.motion = ms
	r.failures = 0
	r.detector.Reset()
	slog.Info("motion sampler started", "camera_id", r.cam.ID)
}

// drain forwards frames until stopped. A read error is forwarded too so the
// loop can count it; after an error the source is read again, which for a
// dead process fails immediately.
func drain(ms *motionSource) {
	for {
		frame, err := ms.src.ReadFrame()
		select {
		case ms.frames <- frameResult{frame: frame, err: err}:
		case <-ms.stop:
			return
		}
	}
}

func (r *Recorder) closeMotion() {
	if r.motion == nil {
		return
	}
	close(r.motion.stop)
	if err := r.motion.src.Close(); err != nil {
		slog.Debug("close motion source", "camera_id", r.cam.ID, "error", err)
	}
	r.motion = nil
}

// shutdown kills every owned process without finalizing.
func (r *Recorder) shutdown() {
	r.closeMotion()
	r.abandonSegment()
}

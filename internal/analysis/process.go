package analysis

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	"github.com/alvares777-IA/cameras-arcos/internal/facecache"
	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/observability"
	"github.com/alvares777-IA/cameras-arcos/internal/vision"
)

const minLandmarkGroups = 3

// Summary counts what one segment analysis did.
type Summary struct {
	Frames     int
	Faces      int
	Recognized int
	Enrolled   int
}

type unknownFace struct {
	identityID int64
	embedding  []float32
}

// session is the per-segment state: which identities were already credited
// and which visitors were enrolled from this segment.
type session struct {
	job      Job
	known    *facecache.Snapshot
	credited map[int64]bool
	unknowns []unknownFace
	summary  Summary
}

func (p *Pipeline) analyze(ctx context.Context, job Job) (Summary, error) {
	if _, err := os.Stat(job.Path); err != nil {
		return Summary{}, fmt.Errorf("stat segment: %w", err)
	}

	known, err := p.deps.Known.Load(ctx)
	if err != nil {
		return Summary{}, fmt.Errorf("load known faces: %w", err)
	}

	root := p.cfg.ScratchDir
	if root == "" {
		root = os.TempDir()
	}
	dir := filepath.Join(root, "face_frames_"+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Summary{}, fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	frames, err := p.deps.Frames.ExtractFrames(ctx, job.Path, dir, p.cfg.FrameInterval, p.cfg.FrameWidth, p.cfg.ExtractTimeout)
	if err != nil {
		return Summary{}, fmt.Errorf("extract frames: %w", err)
	}

	s := &session{job: job, known: known, credited: make(map[int64]bool)}
	for _, path := range frames {
		if ctx.Err() != nil {
			return s.summary, ctx.Err()
		}
		img, err := imaging.Open(path)
		if err != nil {
			slog.Warn("failed to read frame", "path", path, "error", err)
			continue
		}
		s.summary.Frames++
		p.processFrame(ctx, s, img)
	}
	return s.summary, nil
}

func (p *Pipeline) processFrame(ctx context.Context, s *session, frame image.Image) {
	w := int(float64(frame.Bounds().Dx()) * p.cfg.DetectScale)
	small := frame
	if w > 0 && w < frame.Bounds().Dx() {
		small = imaging.Resize(frame, w, 0, imaging.Linear)
	}

	faces, err := p.deps.Analyzer.Detect(small, vision.OptionsFor(p.deps.Analyzer))
	if err != nil {
		slog.Warn("face detection failed", "recording_id", s.job.RecordingID, "error", err)
		return
	}
	if len(faces) == 0 {
		return
	}
	observability.FacesDetected.WithLabelValues(strconv.FormatInt(s.job.CameraID, 10)).Add(float64(len(faces)))
	s.summary.Faces += len(faces)

	for _, f := range faces {
		out := p.processFace(ctx, s, frame, small, f)
		observability.FaceOutcomes.WithLabelValues(out.Kind.String()).Inc()
		switch out.Kind {
		case OutcomeRecognized:
			s.summary.Recognized++
		case OutcomeEnrolled:
			s.summary.Enrolled++
		}
		slog.Debug("face processed", "recording_id", s.job.RecordingID, "outcome", out.String())
	}
}

// processFace runs one face through the decision stages. A failure at any
// stage only affects this face.
func (p *Pipeline) processFace(ctx context.Context, s *session, frame, small image.Image, f vision.Face) Outcome {
	if n := f.GroupCount(); n < minLandmarkGroups {
		return Outcome{Kind: OutcomeNoLandmarks, Reason: fmt.Sprintf("%d of %d landmark groups", n, len(vision.LandmarkGroups))}
	}

	emb, err := p.deps.Analyzer.Embed(small, f)
	if err != nil {
		return failed(fmt.Errorf("embed: %w", err))
	}

	// Closest uncredited identity first; a face that only matches identities
	// credited earlier in the segment is never enrolled as a stranger.
	if id, dist, ok := s.known.MatchExcept(emb, p.cfg.Tolerance, s.credited); ok {
		if err := p.credit(ctx, s, id, dist, emb); err != nil {
			return failed(err)
		}
		p.publishRecognition(ctx, s, id, dist)
		return Outcome{Kind: OutcomeRecognized, IdentityID: id, Distance: dist}
	}
	if id, dist, ok := s.known.Match(emb, p.cfg.Tolerance); ok {
		return Outcome{Kind: OutcomeAlreadyCredited, IdentityID: id, Distance: dist}
	}

	if reason := assessQuality(small, f.Box); reason != "" {
		slog.Debug("unknown face rejected", "recording_id", s.job.RecordingID, "reason", reason)
		return rejected(reason)
	}

	for _, u := range s.unknowns {
		if dist := vision.Distance(u.embedding, emb); dist < p.cfg.Tolerance {
			if err := p.credit(ctx, s, u.identityID, dist, emb); err != nil {
				return failed(err)
			}
			p.publishRecognition(ctx, s, u.identityID, dist)
			p.addReference(ctx, u.identityID, frame, small.Bounds(), f.Box)
			return Outcome{Kind: OutcomeSessionMatch, IdentityID: u.identityID, Distance: dist}
		}
	}

	return p.enroll(ctx, s, frame, small.Bounds(), f.Box, emb)
}

func (p *Pipeline) credit(ctx context.Context, s *session, identityID int64, dist float64, emb []float32) error {
	recID := s.job.RecordingID
	rec := &models.Recognition{
		IdentityID:  identityID,
		CameraID:    s.job.CameraID,
		RecordingID: &recID,
		Distance:    float32(dist),
		Embedding:   emb,
		DetectedAt:  time.Now(),
	}
	if err := p.deps.Store.CreateRecognition(ctx, rec); err != nil {
		return fmt.Errorf("save recognition: %w", err)
	}
	s.credited[identityID] = true
	return nil
}

// addReference stores another crop for a visitor enrolled earlier in the
// same segment, up to the per-identity cap.
func (p *Pipeline) addReference(ctx context.Context, identityID int64, frame image.Image, detectFrame, box image.Rectangle) {
	n, err := p.deps.Faces.CountFaces(identityID)
	if err != nil {
		slog.Warn("failed to count reference faces", "identity_id", identityID, "error", err)
		return
	}
	if n >= p.cfg.MaxFacesPerID {
		return
	}
	crop := cropFace(frame, detectFrame, box)
	if crop == nil {
		return
	}
	if _, err := p.deps.Faces.SaveFace(ctx, identityID, crop); err != nil {
		slog.Warn("failed to save reference face", "identity_id", identityID, "error", err)
		return
	}
	p.deps.Known.Invalidate()
}

func (p *Pipeline) enroll(ctx context.Context, s *session, frame image.Image, detectFrame, box image.Rectangle, emb []float32) Outcome {
	crop := cropFace(frame, detectFrame, box)
	if crop == nil {
		return failed(errors.New("empty crop"))
	}

	visitor, err := p.deps.Store.CreateVisitor(ctx)
	if err != nil {
		return failed(fmt.Errorf("create visitor: %w", err))
	}

	if _, err := p.deps.Faces.SaveFace(ctx, visitor.ID, crop); err != nil {
		if derr := p.deps.Store.DeleteIdentity(context.WithoutCancel(ctx), visitor.ID); derr != nil {
			slog.Error("failed to roll back visitor", "identity_id", visitor.ID, "error", derr)
		}
		return failed(fmt.Errorf("save face: %w", err))
	}
	p.deps.Known.Invalidate()

	if err := p.credit(ctx, s, visitor.ID, 0, emb); err != nil {
		slog.Warn("visitor enrolled without recognition", "identity_id", visitor.ID, "error", err)
	}
	s.unknowns = append(s.unknowns, unknownFace{identityID: visitor.ID, embedding: emb})
	observability.VisitorsEnrolled.Inc()

	slog.Info("visitor enrolled", "identity_id", visitor.ID, "name", visitor.Name, "camera_id", s.job.CameraID)
	recID := s.job.RecordingID
	p.publish(ctx, models.DomainEvent{
		Type:         models.EventVisitorEnrolled,
		CameraID:     s.job.CameraID,
		Timestamp:    time.Now(),
		RecordingID:  &recID,
		IdentityID:   visitor.ID,
		IdentityName: visitor.Name,
	})
	return Outcome{Kind: OutcomeEnrolled, IdentityID: visitor.ID}
}

func (p *Pipeline) publishRecognition(ctx context.Context, s *session, identityID int64, dist float64) {
	if p.deps.Events == nil {
		return
	}
	var name string
	if ident, err := p.deps.Store.GetIdentity(ctx, identityID); err == nil && ident != nil {
		name = ident.Name
	}
	recID := s.job.RecordingID
	p.publish(ctx, models.DomainEvent{
		Type:         models.EventFaceRecognized,
		CameraID:     s.job.CameraID,
		Timestamp:    time.Now(),
		RecordingID:  &recID,
		IdentityID:   identityID,
		IdentityName: name,
		Distance:     float32(dist),
	})
}

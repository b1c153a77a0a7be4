// Package facecache keeps the embeddings of every enrolled reference image
// in memory so analyses can match faces without touching the disk.
package facecache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/disintegration/imaging"
	"golang.org/x/sync/singleflight"

	"github.com/alvares777-IA/cameras-arcos/internal/vision"
)

// Source lists reference images. *storage.FaceStore satisfies it.
type Source interface {
	Root() string
	ListFaces(identityID int64) ([]string, error)
}

// Entry is one reference embedding.
type Entry struct {
	IdentityID int64
	Embedding  []float32
}

// Snapshot is an immutable view of the known faces.
type Snapshot struct {
	Entries []Entry
	BuiltAt time.Time
}

// Match returns the nearest entry strictly closer than tolerance.
func (s *Snapshot) Match(embedding []float32, tolerance float64) (identityID int64, distance float64, ok bool) {
	return s.MatchExcept(embedding, tolerance, nil)
}

// MatchExcept is Match ignoring the identities in skip.
func (s *Snapshot) MatchExcept(embedding []float32, tolerance float64, skip map[int64]bool) (identityID int64, distance float64, ok bool) {
	if s == nil {
		return 0, 0, false
	}
	best := math.Inf(1)
	for _, e := range s.Entries {
		if skip[e.IdentityID] {
			continue
		}
		d := vision.Distance(e.Embedding, embedding)
		if d < tolerance && d < best {
			best = d
			identityID = e.IdentityID
			ok = true
		}
	}
	if !ok {
		return 0, 0, false
	}
	return identityID, best, true
}

// Identities counts the distinct identities in the snapshot.
func (s *Snapshot) Identities() int {
	if s == nil {
		return 0
	}
	seen := make(map[int64]struct{})
	for _, e := range s.Entries {
		seen[e.IdentityID] = struct{}{}
	}
	return len(seen)
}

type Stats struct {
	Loaded     bool          `json:"loaded"`
	Identities int           `json:"identities"`
	Embeddings int           `json:"embeddings"`
	BuiltAt    time.Time     `json:"built_at,omitempty"`
	Age        time.Duration `json:"age_ns"`
}

// Cache rebuilds the snapshot at most once per TTL. Readers never block on
// each other: a rebuilt snapshot replaces the old one with an atomic swap.
type Cache struct {
	source   Source
	analyzer vision.Analyzer
	ttl      time.Duration
	now      func() time.Time

	snap  atomic.Pointer[Snapshot]
	gen   atomic.Uint64
	group singleflight.Group
}

func New(source Source, analyzer vision.Analyzer, ttl time.Duration) *Cache {
	return &Cache{
		source:   source,
		analyzer: analyzer,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Load returns the current snapshot, rebuilding it when missing, empty or
// expired. Concurrent callers share a single rebuild.
func (c *Cache) Load(ctx context.Context) (*Snapshot, error) {
	if s := c.snap.Load(); s != nil && len(s.Entries) > 0 && c.now().Sub(s.BuiltAt) < c.ttl {
		return s, nil
	}

	gen := c.gen.Load()
	v, err, _ := c.group.Do(strconv.FormatUint(gen, 10), func() (any, error) {
		s, err := c.build(ctx)
		if err != nil {
			return nil, err
		}
		// An invalidation during the scan leaves the next Load to rebuild.
		if c.gen.Load() == gen {
			c.snap.Store(s)
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Invalidate forces the next Load to rebuild.
func (c *Cache) Invalidate() {
	c.gen.Add(1)
	c.snap.Store(nil)
}

func (c *Cache) Stats() Stats {
	s := c.snap.Load()
	if s == nil {
		return Stats{}
	}
	return Stats{
		Loaded:     true,
		Identities: s.Identities(),
		Embeddings: len(s.Entries),
		BuiltAt:    s.BuiltAt,
		Age:        c.now().Sub(s.BuiltAt),
	}
}

func (c *Cache) build(ctx context.Context) (*Snapshot, error) {
	start := c.now()
	snap := &Snapshot{BuiltAt: start}

	dirs, err := os.ReadDir(c.source.Root())
	if err != nil {
		if os.IsNotExist(err) {
			return snap, nil
		}
		return nil, fmt.Errorf("read faces root: %w", err)
	}

	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		id, err := strconv.ParseInt(d.Name(), 10, 64)
		if err != nil {
			continue
		}

		paths, err := c.source.ListFaces(id)
		if err != nil {
			slog.Warn("list reference faces", "identity_id", id, "error", err)
			continue
		}
		for _, p := range paths {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			emb, err := c.embedFile(p)
			if err != nil {
				if !errors.Is(err, vision.ErrNoFace) {
					slog.Warn("embed reference face", "path", p, "error", err)
				}
				continue
			}
			snap.Entries = append(snap.Entries, Entry{IdentityID: id, Embedding: emb})
		}
	}

	slog.Info("face cache rebuilt",
		"identities", snap.Identities(),
		"embeddings", len(snap.Entries),
		"duration", c.now().Sub(start),
	)
	return snap, nil
}

func (c *Cache) embedFile(path string) ([]float32, error) {
	img, err := imaging.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	return vision.EmbedImage(c.analyzer, img)
}

// Package retention removes recordings older than the configured window.
package retention

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alvares777-IA/cameras-arcos/internal/models"
	"github.com/alvares777-IA/cameras-arcos/internal/observability"
	"github.com/alvares777-IA/cameras-arcos/internal/storage"
)

// Store is the persistence the cleaner needs. *storage.PostgresStore satisfies it.
type Store interface {
	ListRecordingsEndedBefore(ctx context.Context, cutoff time.Time) ([]models.Recording, error)
	DeleteRecording(ctx context.Context, id int64) error
}

// Report summarises one run.
type Report struct {
	Cutoff time.Time `json:"cutoff"`
	Files  int       `json:"files"`
	Bytes  int64     `json:"bytes"`
	Rows   int       `json:"rows"`
	Dirs   int       `json:"dirs"`
	Errors int       `json:"errors"`
}

type Cleaner struct {
	store Store
	root  string
	days  int
	now   func() time.Time
}

func New(store Store, root string, days int) *Cleaner {
	return &Cleaner{store: store, root: filepath.Clean(root), days: days, now: time.Now}
}

// RunOnce deletes every recording that ended before the retention window,
// then prunes empty directories under the root. The root and the faces
// tree are never touched. A row is kept when its file cannot be removed so
// the next run retries it.
func (c *Cleaner) RunOnce(ctx context.Context) (Report, error) {
	rep := Report{Cutoff: c.now().Add(-time.Duration(c.days) * 24 * time.Hour)}
	if c.days <= 0 {
		return rep, fmt.Errorf("retention days must be positive, got %d", c.days)
	}

	slog.Info("retention started", "cutoff", rep.Cutoff.Format(time.DateTime), "days", c.days)

	recs, err := c.store.ListRecordingsEndedBefore(ctx, rep.Cutoff)
	if err != nil {
		return rep, fmt.Errorf("list expired recordings: %w", err)
	}

	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		size, err := c.removeFile(rec.Path)
		if err != nil {
			slog.Error("failed to remove recording file", "path", rec.Path, "error", err)
			rep.Errors++
			continue
		}
		if size >= 0 {
			rep.Files++
			rep.Bytes += size
			observability.RetentionDeleted.WithLabelValues("file").Inc()
		}

		if err := c.store.DeleteRecording(ctx, rec.ID); err != nil {
			slog.Error("failed to delete recording row", "recording_id", rec.ID, "error", err)
			rep.Errors++
			continue
		}
		rep.Rows++
		observability.RetentionDeleted.WithLabelValues("row").Inc()
	}

	rep.Dirs = c.pruneEmptyDirs()
	observability.RetentionDeleted.WithLabelValues("dir").Add(float64(rep.Dirs))

	slog.Info("retention finished",
		"files", rep.Files,
		"freed_gb", fmt.Sprintf("%.2f", float64(rep.Bytes)/(1<<30)),
		"rows", rep.Rows,
		"dirs", rep.Dirs,
		"errors", rep.Errors,
	)
	return rep, nil
}

// removeFile deletes path and returns its size, or -1 when there was
// nothing to delete. Paths outside the root are left alone.
func (c *Cleaner) removeFile(path string) (int64, error) {
	if !c.within(path) {
		slog.Warn("recording outside root, keeping file", "path", path, "root", c.root)
		return -1, nil
	}
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return -1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return 0, fmt.Errorf("remove: %w", err)
	}
	return info.Size(), nil
}

func (c *Cleaner) within(path string) bool {
	rel, err := filepath.Rel(c.root, filepath.Clean(path))
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (c *Cleaner) pruneEmptyDirs() int {
	faces := filepath.Join(c.root, storage.FacesDir)

	var dirs []string
	err := filepath.WalkDir(c.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path == faces {
			return filepath.SkipDir
		}
		if path != c.root {
			dirs = append(dirs, path)
		}
		return nil
	})
	if err != nil {
		slog.Warn("walk recordings root", "root", c.root, "error", err)
	}

	// Deepest first so parents emptied by their children go too.
	sort.Slice(dirs, func(i, j int) bool {
		return strings.Count(dirs[i], string(filepath.Separator)) > strings.Count(dirs[j], string(filepath.Separator))
	})

	removed := 0
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil || len(entries) > 0 {
			continue
		}
		if err := os.Remove(dir); err == nil {
			removed++
			slog.Debug("removed empty directory", "path", dir)
		}
	}
	return removed
}

// Schedule runs RunOnce on a cron spec with a seconds field, e.g.
// "0 0 3 * * *". The caller stops the returned scheduler.
func (c *Cleaner) Schedule(spec string) (*cron.Cron, error) {
	sched := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err := sched.AddFunc(spec, func() {
		if _, err := c.RunOnce(context.Background()); err != nil {
			slog.Error("retention run failed", "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("parse retention schedule %q: %w", spec, err)
	}
	sched.Start()
	slog.Info("retention scheduled", "schedule", spec, "days", c.days)
	return sched, nil
}

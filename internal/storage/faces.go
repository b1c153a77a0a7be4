package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/disintegration/imaging"
)

// FacesDir is the directory under the recordings root holding reference images.
const FacesDir = "faces"

// ObjectArchive mirrors reference images to object storage.
type ObjectArchive interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
	ListObjects(ctx context.Context, prefix string) ([]string, error)
	DeleteObjects(ctx context.Context, keys []string) error
}

// FaceStore keeps reference face images at {root}/faces/{identity_id}/.
type FaceStore struct {
	root    string
	archive ObjectArchive
	now     func() time.Time
}

// NewFaceStore returns a store rooted at the recordings root. archive may be nil.
func NewFaceStore(recordingsRoot string, archive ObjectArchive) *FaceStore {
	return &FaceStore{
		root:    filepath.Join(recordingsRoot, FacesDir),
		archive: archive,
		now:     time.Now,
	}
}

func (s *FaceStore) Root() string { return s.root }

func (s *FaceStore) IdentityDir(identityID int64) string {
	return filepath.Join(s.root, strconv.FormatInt(identityID, 10))
}

// IsFaceImage reports whether name has a supported reference image extension.
func IsFaceImage(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png":
		return true
	}
	return false
}

// FaceFileName builds face_{YYYYMMDD_HHMMSS_micro}.jpg.
func FaceFileName(t time.Time) string {
	return fmt.Sprintf("face_%s_%06d.jpg", t.Format("20060102_150405"), t.Nanosecond()/1000)
}

// SaveFace writes img as a JPEG (quality 90) and mirrors it to the archive.
// Archive failures are logged, not returned.
func (s *FaceStore) SaveFace(ctx context.Context, identityID int64, img image.Image) (string, error) {
	dir := s.IdentityDir(identityID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create face dir: %w", err)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(90)); err != nil {
		return "", fmt.Errorf("encode face: %w", err)
	}

	name := FaceFileName(s.now())
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write face: %w", err)
	}

	if s.archive != nil {
		key := archiveKey(identityID, name)
		if err := s.archive.PutObject(ctx, key, buf.Bytes(), "image/jpeg"); err != nil {
			slog.Warn("archive face image", "key", key, "error", err)
		}
	}
	return path, nil
}

// ListFaces returns the identity's reference image paths, sorted by name.
func (s *FaceStore) ListFaces(identityID int64) ([]string, error) {
	entries, err := os.ReadDir(s.IdentityDir(identityID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list faces: %w", err)
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && IsFaceImage(e.Name()) {
			out = append(out, filepath.Join(s.IdentityDir(identityID), e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (s *FaceStore) CountFaces(identityID int64) (int, error) {
	faces, err := s.ListFaces(identityID)
	return len(faces), err
}

// RemoveIdentity deletes the identity's directory and archived objects.
func (s *FaceStore) RemoveIdentity(ctx context.Context, identityID int64) error {
	if err := os.RemoveAll(s.IdentityDir(identityID)); err != nil {
		return fmt.Errorf("remove face dir: %w", err)
	}
	if s.archive == nil {
		return nil
	}
	keys, err := s.archive.ListObjects(ctx, archiveKey(identityID, ""))
	if err != nil {
		return fmt.Errorf("list archived faces: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	return s.archive.DeleteObjects(ctx, keys)
}

// Restore downloads archived reference images that are missing locally,
// e.g. after the recordings volume was replaced. It returns how many files
// were written.
func (s *FaceStore) Restore(ctx context.Context) (int, error) {
	if s.archive == nil {
		return 0, nil
	}
	keys, err := s.archive.ListObjects(ctx, FacesDir+"/")
	if err != nil {
		return 0, fmt.Errorf("list archived faces: %w", err)
	}

	restored := 0
	for _, key := range keys {
		path, ok := s.localPath(key)
		if !ok {
			continue
		}
		if _, err := os.Stat(path); err == nil {
			continue
		}
		data, err := s.archive.GetObject(ctx, key)
		if err != nil {
			return restored, err
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return restored, fmt.Errorf("create face dir: %w", err)
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return restored, fmt.Errorf("write face: %w", err)
		}
		restored++
	}
	return restored, nil
}

// localPath maps faces/{id}/{name} back under the root. Keys of any other
// shape are ignored.
func (s *FaceStore) localPath(key string) (string, bool) {
	parts := strings.Split(key, "/")
	if len(parts) != 3 || parts[0] != FacesDir || !IsFaceImage(parts[2]) {
		return "", false
	}
	id, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || id <= 0 {
		return "", false
	}
	return filepath.Join(s.IdentityDir(id), parts[2]), true
}

func archiveKey(identityID int64, name string) string {
	return FacesDir + "/" + strconv.FormatInt(identityID, 10) + "/" + name
}

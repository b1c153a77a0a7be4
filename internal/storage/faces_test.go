package storage

import (
	"context"
	"errors"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeArchive struct {
	objects map[string][]byte
	putErr  error
}

func newFakeArchive() *fakeArchive {
	return &fakeArchive{objects: map[string][]byte{}}
}

func (a *fakeArchive) PutObject(_ context.Context, key string, data []byte, _ string) error {
	if a.putErr != nil {
		return a.putErr
	}
	a.objects[key] = data
	return nil
}

func (a *fakeArchive) GetObject(_ context.Context, key string) ([]byte, error) {
	data, ok := a.objects[key]
	if !ok {
		return nil, errors.New("no such key")
	}
	return data, nil
}

func (a *fakeArchive) ListObjects(_ context.Context, prefix string) ([]string, error) {
	var keys []string
	for k := range a.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (a *fakeArchive) DeleteObjects(_ context.Context, keys []string) error {
	for _, k := range keys {
		delete(a.objects, k)
	}
	return nil
}

func solid(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: 120, G: 90, B: 60, A: 255})
		}
	}
	return img
}

func TestFaceFileName(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 6, 7, 123456789, time.UTC)
	assert.Equal(t, "face_20240304_050607_123456.jpg", FaceFileName(ts))
}

func TestIsFaceImage(t *testing.T) {
	assert.True(t, IsFaceImage("a.jpg"))
	assert.True(t, IsFaceImage("a.JPEG"))
	assert.True(t, IsFaceImage("a.png"))
	assert.False(t, IsFaceImage("a.gif"))
	assert.False(t, IsFaceImage("notes"))
}

func TestFaceStore_SaveListRemove(t *testing.T) {
	root := t.TempDir()
	archive := newFakeArchive()
	store := NewFaceStore(root, archive)

	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	store.now = func() time.Time {
		ts = ts.Add(time.Microsecond)
		return ts
	}

	ctx := context.Background()
	p1, err := store.SaveFace(ctx, 7, solid(40, 40))
	require.NoError(t, err)
	p2, err := store.SaveFace(ctx, 7, solid(40, 40))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(root, "faces", "7"), filepath.Dir(p1))

	require.NoError(t, os.WriteFile(filepath.Join(store.IdentityDir(7), "readme.txt"), []byte("x"), 0o644))

	faces, err := store.ListFaces(7)
	require.NoError(t, err)
	assert.Equal(t, []string{p1, p2}, faces)

	n, err := store.CountFaces(7)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, archive.objects, 2)

	require.NoError(t, store.RemoveIdentity(ctx, 7))
	_, err = os.Stat(store.IdentityDir(7))
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, archive.objects)
}

func TestFaceStore_ArchiveFailureIsNotFatal(t *testing.T) {
	archive := newFakeArchive()
	archive.putErr = errors.New("minio down")
	store := NewFaceStore(t.TempDir(), archive)

	path, err := store.SaveFace(context.Background(), 1, solid(10, 10))
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestFaceStore_ListMissingIdentity(t *testing.T) {
	store := NewFaceStore(t.TempDir(), nil)
	faces, err := store.ListFaces(123)
	assert.NoError(t, err)
	assert.Empty(t, faces)
}

func TestFaceStore_Restore(t *testing.T) {
	archive := newFakeArchive()
	archive.objects["faces/3/face_a.jpg"] = []byte("a")
	archive.objects["faces/3/face_b.jpg"] = []byte("b")
	archive.objects["faces/x/face_c.jpg"] = []byte("c")
	archive.objects["faces/4/notes.txt"] = []byte("d")
	archive.objects["other/5/face_e.jpg"] = []byte("e")

	store := NewFaceStore(t.TempDir(), archive)
	require.NoError(t, os.MkdirAll(store.IdentityDir(3), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(store.IdentityDir(3), "face_a.jpg"), []byte("local"), 0o644))

	n, err := store.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := os.ReadFile(filepath.Join(store.IdentityDir(3), "face_a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "local", string(data))
	assert.FileExists(t, filepath.Join(store.IdentityDir(3), "face_b.jpg"))
	assert.NoDirExists(t, store.IdentityDir(4))
}

func TestFaceStore_RestoreWithoutArchive(t *testing.T) {
	n, err := NewFaceStore(t.TempDir(), nil).Restore(context.Background())
	assert.NoError(t, err)
	assert.Zero(t, n)
}

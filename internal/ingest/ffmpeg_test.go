package ingest

import (
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMotionArgs(t *testing.T) {
	args := strings.Join(MotionArgs("rtsp://cam/1"), " ")
	assert.Contains(t, args, "-rtsp_transport tcp -i rtsp://cam/1")
	assert.Contains(t, args, "-f rawvideo -pix_fmt gray -r 2 -vf scale=160:120 -an -")
}

func TestRecordArgs(t *testing.T) {
	args := RecordArgs("rtsp://cam/1", "/rec/1/2024-01-02/20240102_030405.mp4", 300*time.Second)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-y -rtsp_transport tcp -i rtsp://cam/1 -c copy -t 300")
	assert.Contains(t, joined, "-movflags frag_keyframe+empty_moov+default_base_moof")
	assert.Equal(t, "/rec/1/2024-01-02/20240102_030405.mp4", args[len(args)-1])
}

func TestExtractArgs(t *testing.T) {
	args := ExtractArgs("/v.mp4", "/tmp/x", 2*time.Second, 1280)
	joined := strings.Join(args, " ")
	assert.Contains(t, joined, "-vf fps=1/2,scale=1280:-2 -q:v 2")
	assert.Equal(t, filepath.Join("/tmp/x", "frame_%04d.jpg"), args[len(args)-1])

	args = ExtractArgs("/v.mp4", "/tmp/x", 1500*time.Millisecond, 640)
	assert.Contains(t, strings.Join(args, " "), "fps=1/1.5,scale=640:-2")
}

func TestRawSource_ReadFrame(t *testing.T) {
	r, w := io.Pipe()
	src := &rawSource{r: r, frameSize: 4}

	go func() {
		_, _ = w.Write([]byte{1, 2})
		_, _ = w.Write([]byte{3, 4, 5, 6, 7, 8})
		_ = w.Close()
	}()

	f, err := src.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, f)

	f, err = src.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte{5, 6, 7, 8}, f)

	_, err = src.ReadFrame()
	assert.ErrorIs(t, err, io.EOF)
}

func TestLogWriter_SplitsLines(t *testing.T) {
	w := newLogWriter("test")
	n, err := w.Write([]byte("first\nsec"))
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, "sec", string(w.buf))

	_, _ = w.Write([]byte("ond\n"))
	assert.Empty(t, w.buf)
}

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestProcess_StopInterrupts(t *testing.T) {
	sh := requireShell(t)
	p, err := startProcess(exec.Command(sh, "-c", "exec sleep 30"))
	require.NoError(t, err)

	start := time.Now()
	p.Stop(5 * time.Second)

	<-p.Done()
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestProcess_StopEscalatesToKill(t *testing.T) {
	sh := requireShell(t)
	p, err := startProcess(exec.Command(sh, "-c", `trap "" INT; while :; do sleep 0.05; done`))
	require.NoError(t, err)
	// give the shell time to install the trap
	time.Sleep(200 * time.Millisecond)

	start := time.Now()
	p.Stop(300 * time.Millisecond)

	select {
	case <-p.Done():
	default:
		t.Fatal("process still running after Stop")
	}
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)
}

func TestProcess_KillAfterExitIsNoop(t *testing.T) {
	sh := requireShell(t)
	p, err := startProcess(exec.Command(sh, "-c", "exit 0"))
	require.NoError(t, err)
	<-p.Done()

	p.Kill()
	p.Stop(time.Second)
	assert.NoError(t, p.Err())
}

// fakeFFmpeg writes a shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) *FFmpeg {
	t.Helper()
	requireShell(t)
	path := filepath.Join(t.TempDir(), "ffmpeg")
	script := "#!/bin/sh\nfor a; do last=$a; done\ndir=$(dirname \"$last\")\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return &FFmpeg{Binary: path}
}

func TestExtractFrames(t *testing.T) {
	ff := fakeFFmpeg(t, `: > "$dir/frame_0002.jpg"; : > "$dir/frame_0001.jpg"`)
	out := t.TempDir()

	frames, err := ff.ExtractFrames(context.Background(), "/v.mp4", out, 2*time.Second, 1280, 5*time.Second)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(out, "frame_0001.jpg"),
		filepath.Join(out, "frame_0002.jpg"),
	}, frames)
}

func TestExtractFrames_NoFrames(t *testing.T) {
	ff := fakeFFmpeg(t, "exit 1")

	_, err := ff.ExtractFrames(context.Background(), "/v.mp4", t.TempDir(), 2*time.Second, 1280, 5*time.Second)
	assert.ErrorIs(t, err, ErrNoFrames)
}

func TestExtractFrames_Timeout(t *testing.T) {
	ff := fakeFFmpeg(t, `: > "$dir/frame_0001.jpg"; exec sleep 10`)
	out := t.TempDir()

	_, err := ff.ExtractFrames(context.Background(), "/v.mp4", out, 2*time.Second, 1280, 300*time.Millisecond)
	assert.ErrorIs(t, err, ErrExtractTimeout)

	left, _ := filepath.Glob(filepath.Join(out, "frame_*.jpg"))
	assert.Empty(t, left)
}

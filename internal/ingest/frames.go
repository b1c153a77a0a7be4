package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

var (
	// ErrNoFrames means the decoder produced no images.
	ErrNoFrames = errors.New("no frames extracted")
	// ErrExtractTimeout means extraction exceeded its wall-clock budget.
	ErrExtractTimeout = errors.New("frame extraction timed out")
)

// ExtractArgs builds the command line that writes one JPEG every interval,
// scaled to width with an even, aspect-preserving height.
func ExtractArgs(videoPath, outDir string, interval time.Duration, width int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-i", videoPath,
		"-vf", fmt.Sprintf("fps=1/%s,scale=%d:-2", formatSeconds(interval), width),
		"-q:v", "2",
		filepath.Join(outDir, "frame_%04d.jpg"),
	}
}

// ExtractFrames decodes sample frames from a finished segment into outDir.
// On timeout every partial frame is removed and ErrExtractTimeout returned.
func (f *FFmpeg) ExtractFrames(ctx context.Context, videoPath, outDir string, interval time.Duration, width int, timeout time.Duration) ([]string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, fmt.Errorf("create frame dir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binary(), ExtractArgs(videoPath, outDir, interval, width)...)
	cmd.Stderr = newLogWriter("ffmpeg extract", "video", videoPath)
	cmd.WaitDelay = killWait

	runErr := cmd.Run()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		removeFrames(outDir)
		return nil, ErrExtractTimeout
	}
	if ctx.Err() != nil {
		removeFrames(outDir)
		return nil, ctx.Err()
	}

	frames, err := listFrames(outDir)
	if err != nil {
		return nil, err
	}
	if len(frames) == 0 {
		if runErr != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoFrames, runErr)
		}
		return nil, ErrNoFrames
	}
	return frames, nil
}

func listFrames(dir string) ([]string, error) {
	frames, err := filepath.Glob(filepath.Join(dir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	sort.Strings(frames)
	return frames, nil
}

func removeFrames(dir string) {
	frames, _ := listFrames(dir)
	for _, f := range frames {
		_ = os.Remove(f)
	}
}

func formatSeconds(d time.Duration) string {
	if d <= 0 {
		d = time.Second
	}
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"

	"github.com/alvares777-IA/cameras-arcos/internal/motion"
)

// killWait bounds how long we wait for a process to be reaped after SIGKILL.
const killWait = 3 * time.Second

// FrameSource yields fixed-size grayscale frames from a live stream.
type FrameSource interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// Recording is a running segment writer.
type Recording interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	// Err is the process exit error, valid after Done is closed.
	Err() error
	// Stop interrupts the writer so it can flush the container trailer,
	// escalating to a kill after grace.
	Stop(grace time.Duration)
	// Kill terminates the process without waiting for a clean exit.
	Kill()
}

// FFmpeg launches ffmpeg processes for motion sampling, segment recording
// and frame extraction.
type FFmpeg struct {
	Binary      string
	ProbeBinary string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{Binary: "ffmpeg", ProbeBinary: "ffprobe"}
}

func (f *FFmpeg) binary() string {
	if f.Binary == "" {
		return "ffmpeg"
	}
	return f.Binary
}

// MotionArgs builds the command line for 2 fps 160x120 gray rawvideo on stdout.
func MotionArgs(streamURL string) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-rtsp_transport", "tcp",
		"-i", streamURL,
		"-f", "rawvideo",
		"-pix_fmt", "gray",
		"-r", "2",
		"-vf", fmt.Sprintf("scale=%d:%d", motion.FrameWidth, motion.FrameHeight),
		"-an",
		"-",
	}
}

// RecordArgs builds the command line for a stream-copied, fragmented MP4
// capped at maxDuration. Fragmented layout keeps an interrupted file playable.
func RecordArgs(streamURL, path string, maxDuration time.Duration) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-y",
		"-rtsp_transport", "tcp",
		"-i", streamURL,
		"-c", "copy",
		"-t", strconv.Itoa(int(maxDuration.Seconds())),
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		path,
	}
}

// OpenMotionSource starts the low-rate sampler for one camera.
func (f *FFmpeg) OpenMotionSource(ctx context.Context, streamURL string) (FrameSource, error) {
	cmd := exec.Command(f.binary(), MotionArgs(streamURL)...)
	cmd.Stderr = newLogWriter("ffmpeg motion")

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	src := &rawSource{cmd: cmd, r: stdout, frameSize: motion.FrameSize}

	// A cancelled context must not leave the sampler running.
	stop := context.AfterFunc(ctx, func() { _ = src.Close() })
	src.stopCtx = stop

	return src, nil
}

// StartRecording starts one segment writer.
func (f *FFmpeg) StartRecording(ctx context.Context, streamURL, path string, maxDuration time.Duration) (Recording, error) {
	cmd := exec.Command(f.binary(), RecordArgs(streamURL, path, maxDuration)...)
	cmd.Stderr = newLogWriter("ffmpeg record", "path", path)
	cmd.WaitDelay = killWait

	p, err := startProcess(cmd)
	if err != nil {
		return nil, err
	}
	stop := context.AfterFunc(ctx, p.Kill)
	go func() {
		<-p.done
		stop()
	}()
	return p, nil
}

type rawSource struct {
	cmd       *exec.Cmd
	r         io.ReadCloser
	frameSize int
	stopCtx   func() bool

	closeOnce sync.Once
	closeErr  error
}

// ReadFrame blocks until a full frame has been read.
func (s *rawSource) ReadFrame() ([]byte, error) {
	buf := make([]byte, s.frameSize)
	if _, err := io.ReadFull(s.r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Close kills the sampler immediately and reaps it.
func (s *rawSource) Close() error {
	s.closeOnce.Do(func() {
		if s.stopCtx != nil {
			s.stopCtx()
		}
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Kill()
		}
		err := s.cmd.Wait()
		var exitErr *exec.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			s.closeErr = err
		}
	})
	return s.closeErr
}

// process wraps a started command whose exit is observed in the background.
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func startProcess(cmd *exec.Cmd) (*process, error) {
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}
	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()
	return p, nil
}

func (p *process) Done() <-chan struct{} { return p.done }

func (p *process) Err() error {
	select {
	case <-p.done:
		return p.err
	default:
		return nil
	}
}

func (p *process) exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *process) Stop(grace time.Duration) {
	if p.exited() {
		return
	}
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		p.Kill()
		return
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return
	case <-timer.C:
	}

	slog.Warn("process ignored interrupt, killing", "pid", p.cmd.Process.Pid, "grace", grace)
	p.Kill()
}

func (p *process) Kill() {
	if p.exited() {
		return
	}
	_ = p.cmd.Process.Kill()
	select {
	case <-p.done:
	case <-time.After(killWait):
		slog.Error("process did not exit after kill", "pid", p.cmd.Process.Pid)
	}
}

package ingest

import (
	"bytes"
	"log/slog"
	"sync"
)

// logWriter forwards subprocess stderr to slog one line at a time.
type logWriter struct {
	msg   string
	attrs []any

	mu  sync.Mutex
	buf []byte
}

func newLogWriter(msg string, attrs ...any) *logWriter {
	return &logWriter{msg: msg, attrs: attrs}
}

func (w *logWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}
	// ffmpeg progress lines use \r; keep memory bounded regardless
	if len(w.buf) > 4096 {
		w.emit(w.buf)
		w.buf = w.buf[:0]
	}
	return len(p), nil
}

func (w *logWriter) emit(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}
	slog.Warn(w.msg, append([]any{"output", string(line)}, w.attrs...)...)
}

// Package transcode turns remote media URLs into raw PCM for the voice sink.
//
// [FFmpeg] spawns one ffmpeg process per track and exposes its stdout as an
// [io.ReadCloser] of 48 kHz stereo signed 16-bit little-endian samples.
// Cancelling the context passed to Open, or closing the stream, kills the
// process.
package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/songbird/internal/playback"
	"github.com/MrWong99/songbird/pkg/audio"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:128.0) Gecko/20100101 Firefox/128.0"

	// waitDelay bounds how long Close waits for ffmpeg to exit after it
	// was killed.
	waitDelay = 2 * time.Second

	stderrTail = 5
)

// Config configures an [FFmpeg] transcoder.
type Config struct {
	// Path to the ffmpeg binary. Looked up in $PATH when not absolute.
	// Default: "ffmpeg".
	Path string
}

// FFmpeg is a [playback.Transcoder] backed by the ffmpeg binary.
type FFmpeg struct {
	path string
	env  []string // extra environment, for tests
}

var _ playback.Transcoder = (*FFmpeg)(nil)

// New creates an FFmpeg transcoder.
func New(cfg Config) *FFmpeg {
	if cfg.Path == "" {
		cfg.Path = "ffmpeg"
	}
	if !filepath.IsAbs(cfg.Path) {
		if p, err := exec.LookPath(cfg.Path); err == nil {
			cfg.Path = p
		} else {
			slog.Warn("transcode: ffmpeg not found", "path", cfg.Path, "err", err)
		}
	}
	return &FFmpeg{path: cfg.Path}
}

// Path returns the ffmpeg binary the transcoder runs.
func (f *FFmpeg) Path() string { return f.path }

// Args returns the ffmpeg arguments used to transcode streamURL.
func Args(streamURL string) []string {
	args := []string{"-hide_banner", "-loglevel", "warning", "-nostdin"}
	if u, err := url.Parse(streamURL); err == nil && (u.Scheme == "http" || u.Scheme == "https") {
		// Network options are rejected for local inputs.
		args = append(args,
			"-user_agent", userAgent,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_at_eof", "1",
			"-reconnect_delay_max", "3",
			"-rw_timeout", "5000000",
		)
	}
	return append(args,
		"-i", streamURL,
		"-vn",
		"-ac", strconv.Itoa(audio.Channels),
		"-ar", strconv.Itoa(audio.SampleRate),
		"-f", "s16le",
		"pipe:1",
	)
}

// Open implements [playback.Transcoder]. The process starts immediately;
// reading the returned stream yields PCM until ffmpeg exits.
func (f *FFmpeg) Open(ctx context.Context, streamURL string) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, f.path, Args(streamURL)...)
	cmd.WaitDelay = waitDelay
	if len(f.env) > 0 {
		cmd.Env = append(cmd.Environ(), f.env...)
	}
	tail := &tailWriter{max: stderrTail}
	cmd.Stderr = tail

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transcode: stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("transcode: start ffmpeg: %w", err)
	}
	slog.Debug("transcode: ffmpeg started", "pid", cmd.Process.Pid)

	return &stream{cmd: cmd, stdout: stdout, ctx: ctx, cancel: cancel, tail: tail}, nil
}

// stream is a running ffmpeg process.
type stream struct {
	cmd    *exec.Cmd
	stdout io.Reader
	ctx    context.Context
	cancel context.CancelFunc
	tail   *tailWriter

	waitOnce sync.Once
	waitErr  error
}

// Read returns PCM. At end of output it reaps ffmpeg and turns a non-zero
// exit into an error, so a source that dies mid-track is not mistaken for
// the track ending.
func (s *stream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if !errors.Is(err, io.EOF) {
		return n, err
	}
	if wErr := s.wait(); wErr != nil {
		if ctxErr := s.ctx.Err(); ctxErr != nil {
			return n, ctxErr
		}
		return n, fmt.Errorf("transcode: ffmpeg: %w: %s", wErr, s.tail.String())
	}
	return n, io.EOF
}

// Close kills ffmpeg if it is still running and reaps it.
func (s *stream) Close() error {
	s.cancel()
	_ = s.wait()
	return nil
}

func (s *stream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
		if s.waitErr != nil && s.ctx.Err() == nil {
			slog.Warn("transcode: ffmpeg exited", "err", s.waitErr, "stderr", s.tail.String())
		}
	})
	return s.waitErr
}

// tailWriter logs ffmpeg's stderr line by line at debug level and keeps the
// last few lines for error messages.
type tailWriter struct {
	mu      sync.Mutex
	max     int
	lines   []string
	partial string
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	buf := w.partial + string(p)
	for {
		i := strings.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		if line := strings.TrimSpace(buf[:i]); line != "" {
			slog.Debug("transcode: ffmpeg", "line", line)
			w.lines = append(w.lines, line)
			if len(w.lines) > w.max {
				w.lines = w.lines[len(w.lines)-w.max:]
			}
		}
		buf = buf[i+1:]
	}
	w.partial = buf
	return len(p), nil
}

// String returns the retained lines joined with "; ".
func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	lines := w.lines
	if p := strings.TrimSpace(w.partial); p != "" {
		lines = append(lines[:len(lines):len(lines)], p)
	}
	return strings.Join(lines, "; ")
}

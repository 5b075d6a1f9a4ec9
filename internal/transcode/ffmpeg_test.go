package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/songbird/pkg/audio"
)

// The test binary doubles as a fake ffmpeg when SONGBIRD_FAKE_FFMPEG is set.
func TestMain(m *testing.M) {
	switch os.Getenv("SONGBIRD_FAKE_FFMPEG") {
	case "":
		os.Exit(m.Run())
	case "ok":
		_, _ = os.Stdout.Write(make([]byte, 4*audio.FrameBytes))
		os.Exit(0)
	case "fail":
		_, _ = os.Stdout.Write(make([]byte, audio.FrameBytes))
		fmt.Fprintln(os.Stderr, "[https @ 0x1] HTTP error 403 Forbidden")
		os.Exit(1)
	case "hang":
		time.Sleep(time.Minute)
		os.Exit(0)
	}
}

func fake(mode string) *FFmpeg {
	return &FFmpeg{path: os.Args[0], env: []string{"SONGBIRD_FAKE_FFMPEG=" + mode}}
}

func TestArgs(t *testing.T) {
	t.Parallel()
	remote := Args("https://media.example/a.m4a")
	for _, want := range []string{"-reconnect", "-user_agent", "pipe:1"} {
		if !slices.Contains(remote, want) {
			t.Errorf("remote args missing %s: %v", want, remote)
		}
	}
	const outputTail = "-vn -ac 2 -ar 48000 -f s16le pipe:1"
	want := strings.Fields("-i https://media.example/a.m4a " + outputTail)
	if tail := remote[len(remote)-len(want):]; !slices.Equal(tail, want) {
		t.Errorf("args tail = %q, want %q", strings.Join(tail, " "), strings.Join(want, " "))
	}

	local := Args("/tmp/a.flac")
	if slices.Contains(local, "-reconnect") {
		t.Errorf("local input got network options: %v", local)
	}
	wantLocal := strings.Fields("-i /tmp/a.flac " + outputTail)
	if tail := local[len(local)-len(wantLocal):]; !slices.Equal(tail, wantLocal) {
		t.Errorf("local args tail = %q, want %q", strings.Join(tail, " "), strings.Join(wantLocal, " "))
	}
}

func TestOpen_ReadsPCM(t *testing.T) {
	t.Parallel()
	s, err := fake("ok").Open(t.Context(), "https://x")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	data, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(data) != 4*audio.FrameBytes {
		t.Fatalf("read %d bytes, want %d", len(data), 4*audio.FrameBytes)
	}
}

func TestOpen_FailureSurfacesOnRead(t *testing.T) {
	t.Parallel()
	s, err := fake("fail").Open(t.Context(), "https://x")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()
	_, err = io.ReadAll(s)
	if err == nil {
		t.Fatal("expected an error for a non-zero exit")
	}
	if !strings.Contains(err.Error(), "403 Forbidden") {
		t.Errorf("err = %v, want it to carry ffmpeg's stderr", err)
	}
}

func TestOpen_CancelKills(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithCancel(t.Context())
	s, err := fake("hang").Open(ctx, "https://x")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer s.Close()

	done := make(chan error, 1)
	go func() {
		_, err := s.Read(make([]byte, 64))
		done <- err
	}()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Read after cancel = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Read did not return after cancel")
	}
}

func TestClose_KillsRunningProcess(t *testing.T) {
	t.Parallel()
	s, err := fake("hang").Open(t.Context(), "https://x")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	done := make(chan struct{})
	go func() {
		_ = s.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
}

func TestOpen_MissingBinary(t *testing.T) {
	t.Parallel()
	f := &FFmpeg{path: "/nonexistent/ffmpeg"}
	if _, err := f.Open(t.Context(), "https://x"); err == nil {
		t.Fatal("expected an error for a missing binary")
	}
}

func TestTailWriter(t *testing.T) {
	t.Parallel()
	w := &tailWriter{max: 2}
	fmt.Fprint(w, "one\ntw")
	fmt.Fprint(w, "o\n\nthree\nfour")
	if got := w.String(); got != "two; three; four" {
		t.Errorf("String() = %q", got)
	}
}

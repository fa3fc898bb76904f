package engine

import (
	"bufio"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// newLoadedFFmpeg builds an engine with an injected toolchain path and temp
// working storage, then loads it.
func newLoadedFFmpeg(t *testing.T) *FFmpeg {
	t.Helper()

	e := NewFFmpeg(Runtime{})
	e.lookPath = func(string) (string, error) { return "/usr/bin/ffmpeg", nil }
	e.mkdirTemp = func(dir, pattern string) (string, error) { return t.TempDir(), nil }

	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return e
}

func TestFFmpegStorageRoundTrip(t *testing.T) {
	e := newLoadedFFmpeg(t)

	if err := e.WriteFile("input.mp3", []byte("media")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	data, err := e.ReadFile("input.mp3")
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if string(data) != "media" {
		t.Fatalf("ReadFile() = %q, want media", data)
	}

	if err := e.DeleteFile("input.mp3"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if _, err := e.ReadFile("input.mp3"); err == nil {
		t.Fatal("expected read error after delete")
	}
}

func TestFFmpegDeleteMissingEntry(t *testing.T) {
	e := newLoadedFFmpeg(t)
	if err := e.DeleteFile("never-written.wav"); err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
}

func TestFFmpegStorageFlattensNames(t *testing.T) {
	e := newLoadedFFmpeg(t)

	if err := e.WriteFile("../escape.txt", []byte("x")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(e.workDir, "escape.txt")); err != nil {
		t.Fatalf("entry not flattened into working storage: %v", err)
	}
}

func TestFFmpegRequiresLoad(t *testing.T) {
	e := NewFFmpeg(Runtime{})

	if err := e.WriteFile("input.mp3", []byte("media")); err == nil {
		t.Fatal("expected error writing to unloaded engine")
	}
	if err := e.Exec(context.Background(), ConvertArgs("a", "b"), nil, nil); err == nil {
		t.Fatal("expected error executing on unloaded engine")
	}
}

func TestFFmpegLoadIsIdempotent(t *testing.T) {
	tempCalls := 0
	e := NewFFmpeg(Runtime{})
	e.lookPath = func(string) (string, error) { return "/usr/bin/ffmpeg", nil }
	e.mkdirTemp = func(dir, pattern string) (string, error) {
		tempCalls++
		return t.TempDir(), nil
	}

	for i := 0; i < 3; i++ {
		if err := e.Load(context.Background()); err != nil {
			t.Fatalf("Load() #%d error = %v", i+1, err)
		}
	}
	if tempCalls != 1 {
		t.Fatalf("working storage created %d times, want 1", tempCalls)
	}
}

func TestFFmpegTerminateResetsEngine(t *testing.T) {
	e := newLoadedFFmpeg(t)
	workDir := e.workDir

	if err := e.WriteFile("input.mp3", []byte("media")); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	e.Terminate()

	if e.ready {
		t.Fatal("engine still ready after Terminate")
	}
	if _, err := os.Stat(workDir); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("working storage not removed: %v", err)
	}
	if _, err := e.ReadFile("input.mp3"); err == nil {
		t.Fatal("expected read error after Terminate")
	}
	// The toolchain path stays cached for a cheap reload.
	if e.binPath == "" {
		t.Fatal("toolchain path dropped by Terminate")
	}
}

func TestFFmpegLoadFallsBackToInstaller(t *testing.T) {
	installed := false
	// A non-archive component URL skips zip extraction entirely.
	e := NewFFmpeg(Runtime{CoreURL: "https://example.com/ffmpeg-6.1-linux-64.bin"})
	e.lookPath = func(string) (string, error) { return "", errors.New("not on PATH") }
	e.mkdirTemp = func(dir, pattern string) (string, error) { return t.TempDir(), nil }

	binDir := t.TempDir()
	e.installer.binDir = func() (string, error) { return binDir, nil }
	e.installer.download = func(ctx context.Context, url, dest string) error {
		installed = true
		return os.WriteFile(dest, []byte("#!/bin/true"), 0o755)
	}

	if err := e.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !installed {
		t.Fatal("installer was not invoked")
	}
	if e.binPath != filepath.Join(binDir, exeName("ffmpeg")) {
		t.Fatalf("binPath = %q", e.binPath)
	}
}

func TestScanStatusLines(t *testing.T) {
	input := "Line one\rstatus time=00:00:01.00\nLine two\r\nLine three"
	scanner := bufio.NewScanner(strings.NewReader(input))
	scanner.Split(scanStatusLines)

	var lines []string
	for scanner.Scan() {
		if scanner.Text() != "" {
			lines = append(lines, scanner.Text())
		}
	}

	want := []string{"Line one", "status time=00:00:01.00", "Line two", "Line three"}
	if len(lines) != len(want) {
		t.Fatalf("lines = %q, want %q", lines, want)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

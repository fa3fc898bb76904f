package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
)

// FFmpeg wraps the ffmpeg CLI behind the Engine contract. Working storage is
// a private temp directory; Exec resolves bare file names against it by
// running the process with that directory as its working dir.
type FFmpeg struct {
	runtime Runtime

	mu      sync.Mutex
	ready   bool
	binPath string
	workDir string
	active  *exec.Cmd

	lookPath  func(string) (string, error)
	mkdirTemp func(dir, pattern string) (string, error)
	installer *installer
}

// NewFFmpeg constructs an uninitialized ffmpeg engine.
func NewFFmpeg(runtime Runtime) *FFmpeg {
	return &FFmpeg{
		runtime:   runtime,
		lookPath:  exec.LookPath,
		mkdirTemp: os.MkdirTemp,
		installer: newInstaller(),
	}
}

// Load locates the transcoder toolchain, fetching its runtime components
// when it is not already installed, and prepares working storage. Calling
// Load on a ready engine is a no-op.
func (e *FFmpeg) Load(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready {
		return nil
	}

	if e.binPath == "" {
		path, err := e.lookPath("ffmpeg")
		if err != nil {
			path, err = e.installer.Install(ctx, e.runtime)
			if err != nil {
				return err
			}
		}
		e.binPath = path
	}

	workDir, err := e.mkdirTemp("", "meetingpro-*")
	if err != nil {
		return fmt.Errorf("create working storage: %w", err)
	}

	e.workDir = workDir
	e.ready = true
	return nil
}

// WriteFile stores data under name in working storage.
func (e *FFmpeg) WriteFile(name string, data []byte) error {
	path, err := e.storagePath(name)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// ReadFile returns the working-storage entry for name.
func (e *FFmpeg) ReadFile(name string) ([]byte, error) {
	path, err := e.storagePath(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}

// DeleteFile removes the working-storage entry for name, ignoring missing
// entries.
func (e *FFmpeg) DeleteFile(name string) error {
	path, err := e.storagePath(name)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Exec runs one transcode. Stderr is scanned line by line: every line is
// forwarded to onLog, and recognizable duration/position markers are turned
// into a completion fraction for onProgress.
func (e *FFmpeg) Exec(ctx context.Context, args []string, onProgress func(float64), onLog func(string)) error {
	e.mu.Lock()
	if !e.ready {
		e.mu.Unlock()
		return fmt.Errorf("engine is not loaded")
	}
	if e.active != nil {
		e.mu.Unlock()
		return fmt.Errorf("engine is already executing")
	}

	cmd := exec.CommandContext(ctx, e.binPath, args...)
	cmd.Dir = e.workDir
	stderr, err := cmd.StderrPipe()
	if err != nil {
		e.mu.Unlock()
		return fmt.Errorf("attach stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		e.mu.Unlock()
		return fmt.Errorf("start transcoder: %w", err)
	}
	e.active = cmd
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.active = nil
		e.mu.Unlock()
	}()

	var total float64
	scanner := bufio.NewScanner(stderr)
	scanner.Split(scanStatusLines)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if onLog != nil {
			onLog(line)
		}
		if d, ok := ParseClipDuration(line); ok && d > 0 {
			total = d
		}
		if t, ok := ParseProgressTime(line); ok && total > 0 && onProgress != nil {
			onProgress(t / total)
		}
	}

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Terminate kills any in-flight transcode, removes working storage, and
// marks the engine uninitialized. The toolchain itself stays cached so a
// later Load is cheap.
func (e *FFmpeg) Terminate() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil && e.active.Process != nil {
		_ = e.active.Process.Kill()
	}
	e.active = nil

	if e.workDir != "" {
		_ = os.RemoveAll(e.workDir)
		e.workDir = ""
	}
	e.ready = false
}

// storagePath maps a bare name to its working-storage location. Names are
// flattened to their base so callers cannot escape the storage directory.
func (e *FFmpeg) storagePath(name string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.ready {
		return "", fmt.Errorf("engine is not loaded")
	}
	base := filepath.Base(name)
	if base == "." || base == string(filepath.Separator) {
		return "", fmt.Errorf("invalid storage name: %q", name)
	}
	return filepath.Join(e.workDir, base), nil
}

// scanStatusLines splits on both newlines and the carriage returns ffmpeg
// uses to redraw its status line.
func scanStatusLines(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		return i + 1, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}

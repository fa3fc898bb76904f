package engine

import (
	"archive/zip"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"time"
)

const componentFetchTimeout = 30 * time.Minute

// FetchError marks a failed download of a runtime component, so callers can
// distinguish connectivity problems from other initialization failures.
type FetchError struct {
	URL string
	Err error
}

// Error formats the failed component location.
func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch runtime component %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// DefaultRuntime returns the prebuilt toolchain locations for the current
// platform.
func DefaultRuntime() Runtime {
	platform := "linux-64"
	switch goruntime.GOOS {
	case "windows":
		platform = "win-64"
	case "darwin":
		platform = "osx-64"
	}

	base := "https://github.com/ffbinaries/ffbinaries-prebuilt/releases/download/v6.1"
	return Runtime{
		CoreURL:  fmt.Sprintf("%s/ffmpeg-6.1-%s.zip", base, platform),
		ProbeURL: fmt.Sprintf("%s/ffprobe-6.1-%s.zip", base, platform),
	}
}

// installer fetches and unpacks the transcoder toolchain into a local bin
// directory shared across engine instances.
type installer struct {
	binDir   func() (string, error)
	download func(ctx context.Context, url, dest string) error
}

func newInstaller() *installer {
	return &installer{
		binDir:   localBinDir,
		download: downloadURLToFile,
	}
}

// Install fetches the runtime components named by rt and returns the path to
// the transcoder executable. Already-installed components are reused.
func (i *installer) Install(ctx context.Context, rt Runtime) (string, error) {
	if rt.CoreURL == "" {
		return "", fmt.Errorf("transcoder is not installed and no runtime components are configured")
	}

	binDir, err := i.binDir()
	if err != nil {
		return "", fmt.Errorf("resolve tool directory: %w", err)
	}
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return "", fmt.Errorf("create tool directory: %w", err)
	}

	sums, err := i.checksums(ctx, rt.ChecksumURL)
	if err != nil {
		return "", err
	}

	corePath, err := i.component(ctx, rt.CoreURL, binDir, "ffmpeg", sums)
	if err != nil {
		return "", err
	}
	if rt.ProbeURL != "" {
		if _, err := i.component(ctx, rt.ProbeURL, binDir, "ffprobe", sums); err != nil {
			return "", err
		}
	}

	return corePath, nil
}

// component downloads one archive, verifies it against the manifest when one
// was provided, and unpacks it to an executable named tool.
func (i *installer) component(ctx context.Context, url, binDir, tool string, sums map[string]string) (string, error) {
	target := filepath.Join(binDir, exeName(tool))
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		return target, nil
	}

	archivePath := filepath.Join(binDir, filepath.Base(url))
	if err := i.download(ctx, url, archivePath); err != nil {
		return "", err
	}
	defer os.Remove(archivePath)

	if want, ok := sums[filepath.Base(url)]; ok {
		if err := verifyChecksum(archivePath, want); err != nil {
			return "", err
		}
	}

	if strings.EqualFold(filepath.Ext(url), ".zip") {
		if err := extractExecutable(archivePath, tool, target); err != nil {
			return "", err
		}
	} else {
		if err := os.Rename(archivePath, target); err != nil {
			return "", fmt.Errorf("place %s: %w", tool, err)
		}
	}

	if err := os.Chmod(target, 0o755); err != nil {
		return "", fmt.Errorf("mark %s executable: %w", tool, err)
	}
	return target, nil
}

// checksums fetches and parses a "hex  name" manifest. An empty URL yields an
// empty manifest, which disables verification.
func (i *installer) checksums(ctx context.Context, url string) (map[string]string, error) {
	sums := map[string]string{}
	if url == "" {
		return sums, nil
	}

	tmp, err := os.CreateTemp("", "meetingpro-sums-*")
	if err != nil {
		return nil, fmt.Errorf("create manifest file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()
	defer os.Remove(tmpPath)

	if err := i.download(ctx, url, tmpPath); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		sums[strings.TrimPrefix(fields[1], "*")] = strings.ToLower(fields[0])
	}
	return sums, nil
}

// verifyChecksum compares the SHA-256 digest of path against want.
func verifyChecksum(path, want string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for checksum: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return fmt.Errorf("hash component: %w", err)
	}

	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("component checksum mismatch for %s: got %s, want %s", filepath.Base(path), got, want)
	}
	return nil
}

// extractExecutable pulls the entry matching tool out of a zip archive.
func extractExecutable(archivePath, tool, target string) error {
	reader, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	defer reader.Close()

	want := exeName(tool)
	for _, file := range reader.File {
		if filepath.Base(file.Name) != want {
			continue
		}

		src, err := file.Open()
		if err != nil {
			return fmt.Errorf("open archive entry: %w", err)
		}
		defer src.Close()

		dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o755)
		if err != nil {
			return fmt.Errorf("create %s: %w", want, err)
		}
		defer dst.Close()

		if _, err := io.Copy(dst, src); err != nil {
			return fmt.Errorf("unpack %s: %w", want, err)
		}
		return nil
	}

	return fmt.Errorf("archive %s does not contain %s", filepath.Base(archivePath), want)
}

// downloadURLToFile streams one URL to a destination path.
func downloadURLToFile(ctx context.Context, sourceURL, destinationPath string) error {
	reqCtx, cancel := context.WithTimeout(ctx, componentFetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return &FetchError{URL: sourceURL, Err: err}
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return &FetchError{URL: sourceURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &FetchError{URL: sourceURL, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	}

	out, err := os.OpenFile(destinationPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", destinationPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return &FetchError{URL: sourceURL, Err: err}
	}
	return nil
}

// localBinDir is where downloaded toolchain components live.
func localBinDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".meetingpro", "bin"), nil
}

// exeName appends the platform executable suffix.
func exeName(tool string) string {
	if goruntime.GOOS == "windows" {
		return tool + ".exe"
	}
	return tool
}

package engine

import "context"

// Engine is the transcoder capability consumed by the pipeline coordinator.
// An engine starts uninitialized; Load brings it to ready, Terminate tears it
// back down. Working-storage entries are addressed by bare file name.
type Engine interface {
	// Load performs one-time initialization, fetching runtime components
	// when the transcoder toolchain is not already installed.
	Load(ctx context.Context) error

	// WriteFile stores data in working storage under name.
	WriteFile(name string, data []byte) error

	// ReadFile returns the working-storage entry for name.
	ReadFile(name string) ([]byte, error)

	// DeleteFile removes the working-storage entry for name. Deleting a
	// missing entry is not an error.
	DeleteFile(name string) error

	// Exec runs the transcoder with a command-style argument list. Fractional
	// progress and raw log lines are forwarded through the callbacks as the
	// process emits them. Cancelling ctx kills the process.
	Exec(ctx context.Context, args []string, onProgress func(fraction float64), onLog func(line string)) error

	// Terminate kills any in-flight transcode, discards working storage, and
	// returns the engine to the uninitialized state.
	Terminate()
}

// Runtime points at the downloadable components of the transcoder toolchain.
// All components are fetched on first Load unless the tools are already
// present on PATH.
type Runtime struct {
	CoreURL     string // archive containing the transcoder executable
	ProbeURL    string // archive containing the stream prober executable
	ChecksumURL string // optional SHA-256 manifest covering both archives
}

// ConvertArgs builds the argument list that normalizes any input recording
// to 16 kHz mono 16-bit PCM WAV, with progress reporting enabled.
func ConvertArgs(inputName, outputName string) []string {
	return []string{
		"-hide_banner",
		"-nostdin",
		"-y",
		"-stats",
		"-i", inputName,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outputName,
	}
}

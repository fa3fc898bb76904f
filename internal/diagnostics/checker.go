package diagnostics

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/IgorLLC/MeetingPro/internal/config"
	"github.com/IgorLLC/MeetingPro/internal/domain"
)

// Checker validates external tools, credentials, and required filesystem
// paths before any pipeline stage runs.
type Checker struct {
	lookPath   func(string) (string, error)
	mkdirAll   func(string, os.FileMode) error
	createTemp func(string, string) (*os.File, error)
	remove     func(string) error
}

// NewChecker builds a checker using real OS dependencies.
func NewChecker() *Checker {
	return &Checker{
		lookPath:   exec.LookPath,
		mkdirAll:   os.MkdirAll,
		createTemp: os.CreateTemp,
		remove:     os.Remove,
	}
}

// Run executes all startup checks and returns a combined report.
func (c *Checker) Run(settings domain.Settings, creds config.Credentials) domain.DiagnosticReport {
	items := []domain.DiagnosticItem{
		c.checkTool("ffmpeg"),
		c.checkTool("ffprobe"),
		c.checkCredentials(creds),
		c.checkOutputDir(settings.OutputDir),
	}

	hasFailures := false
	for _, item := range items {
		if item.Status == domain.DiagnosticStatusFail {
			hasFailures = true
			break
		}
	}

	return domain.DiagnosticReport{
		GeneratedAt: time.Now().UTC(),
		HasFailures: hasFailures,
		Items:       items,
	}
}

// checkTool verifies a transcoder executable is reachable. A missing tool is
// a hint, not a hard failure, because the engine downloads its runtime
// components on first use.
func (c *Checker) checkTool(name string) domain.DiagnosticItem {
	path, err := c.lookPath(name)
	if err != nil {
		return domain.DiagnosticItem{
			ID:      "tool_" + name,
			Name:    name,
			Status:  domain.DiagnosticStatusPass,
			Message: fmt.Sprintf("Not found in PATH: %s", name),
			Hint:    "The conversion engine will download it on first use; install it locally to skip the download.",
		}
	}

	return domain.DiagnosticItem{
		ID:      "tool_" + name,
		Name:    name,
		Status:  domain.DiagnosticStatusPass,
		Message: fmt.Sprintf("Found at %s", path),
	}
}

// checkCredentials verifies the shared service credential is configured.
func (c *Checker) checkCredentials(creds config.Credentials) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "api_key",
		Name: "API credential",
	}

	if err := creds.Validate(); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = err.Error()
		item.Hint = fmt.Sprintf("Set %s in the environment or a .env file before starting a job.", config.EnvAPIKey)
		return item
	}

	item.Status = domain.DiagnosticStatusPass
	item.Message = "API credential is configured."
	return item
}

// checkOutputDir validates output directory existence and write access.
func (c *Checker) checkOutputDir(outputDir string) domain.DiagnosticItem {
	item := domain.DiagnosticItem{
		ID:   "output_dir",
		Name: "Output directory",
	}

	if strings.TrimSpace(outputDir) == "" {
		item.Status = domain.DiagnosticStatusFail
		item.Message = "Output directory is empty."
		item.Hint = "Set an output directory where minutes documents can be written."
		return item
	}

	if err := c.mkdirAll(outputDir, 0o755); err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Cannot create output directory: %s", outputDir)
		item.Hint = "Choose a writable location or adjust filesystem permissions."
		return item
	}

	tmpFile, err := c.createTemp(outputDir, ".write-check-*")
	if err != nil {
		item.Status = domain.DiagnosticStatusFail
		item.Message = fmt.Sprintf("Output directory is not writable: %s", outputDir)
		item.Hint = "Choose a writable directory for minutes export."
		return item
	}

	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = c.remove(tmpPath)

	item.Status = domain.DiagnosticStatusPass
	item.Message = fmt.Sprintf("Writable directory: %s", outputDir)
	return item
}

// NewCheckerForTests creates checker with injectable dependencies.
func NewCheckerForTests(
	lookPath func(string) (string, error),
	mkdirAll func(string, os.FileMode) error,
	createTemp func(string, string) (*os.File, error),
	remove func(string) error,
) *Checker {
	return &Checker{
		lookPath:   lookPath,
		mkdirAll:   mkdirAll,
		createTemp: createTemp,
		remove:     remove,
	}
}

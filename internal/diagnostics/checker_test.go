package diagnostics

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/IgorLLC/MeetingPro/internal/config"
	"github.com/IgorLLC/MeetingPro/internal/domain"
)

// newPassingChecker returns a checker whose OS dependencies all succeed.
func newPassingChecker(t *testing.T) *Checker {
	t.Helper()
	dir := t.TempDir()
	return NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return os.CreateTemp(dir, "check-*") },
		os.Remove,
	)
}

// TestRunAllChecksPass verifies a clean report with everything configured.
func TestRunAllChecksPass(t *testing.T) {
	c := newPassingChecker(t)

	report := c.Run(
		domain.Settings{OutputDir: t.TempDir()},
		config.Credentials{APIKey: "sk-test"},
	)

	if report.HasFailures {
		t.Fatalf("unexpected failures: %+v", report.Items)
	}
	if len(report.Items) != 4 {
		t.Fatalf("items = %d, want 4", len(report.Items))
	}
}

// TestRunMissingCredentialFails verifies the credential check is a hard
// failure distinct from runtime authentication errors.
func TestRunMissingCredentialFails(t *testing.T) {
	c := newPassingChecker(t)

	report := c.Run(
		domain.Settings{OutputDir: t.TempDir()},
		config.Credentials{},
	)

	if !report.HasFailures {
		t.Fatal("expected failures for missing credential")
	}
	item := findItem(t, report, "api_key")
	if item.Status != domain.DiagnosticStatusFail {
		t.Fatalf("api_key status = %s, want fail", item.Status)
	}
	if !strings.Contains(item.Message, "configuration error") {
		t.Fatalf("message = %q, want configuration error", item.Message)
	}
}

// TestRunMissingToolIsHintOnly verifies absent tools never block startup
// because the engine installs its own runtime components.
func TestRunMissingToolIsHintOnly(t *testing.T) {
	dir := t.TempDir()
	c := NewCheckerForTests(
		func(string) (string, error) { return "", errors.New("not found") },
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return os.CreateTemp(dir, "check-*") },
		os.Remove,
	)

	report := c.Run(
		domain.Settings{OutputDir: t.TempDir()},
		config.Credentials{APIKey: "sk-test"},
	)

	if report.HasFailures {
		t.Fatalf("missing tools should not fail the report: %+v", report.Items)
	}
	item := findItem(t, report, "tool_ffmpeg")
	if item.Hint == "" {
		t.Fatal("expected an install hint for the missing tool")
	}
}

// TestRunUnwritableOutputDirFails verifies the write check.
func TestRunUnwritableOutputDirFails(t *testing.T) {
	c := NewCheckerForTests(
		func(name string) (string, error) { return "/usr/bin/" + name, nil },
		func(string, os.FileMode) error { return nil },
		func(string, string) (*os.File, error) { return nil, errors.New("permission denied") },
		func(string) error { return nil },
	)

	report := c.Run(
		domain.Settings{OutputDir: "/readonly"},
		config.Credentials{APIKey: "sk-test"},
	)

	if !report.HasFailures {
		t.Fatal("expected failure for unwritable output dir")
	}
	item := findItem(t, report, "output_dir")
	if item.Status != domain.DiagnosticStatusFail {
		t.Fatalf("output_dir status = %s, want fail", item.Status)
	}
}

// TestRunEmptyOutputDirFails verifies the empty-path guard.
func TestRunEmptyOutputDirFails(t *testing.T) {
	c := newPassingChecker(t)

	report := c.Run(domain.Settings{}, config.Credentials{APIKey: "sk-test"})
	item := findItem(t, report, "output_dir")
	if item.Status != domain.DiagnosticStatusFail {
		t.Fatalf("output_dir status = %s, want fail", item.Status)
	}
}

// findItem locates a report item by ID.
func findItem(t *testing.T, report domain.DiagnosticReport, id string) domain.DiagnosticItem {
	t.Helper()
	for _, item := range report.Items {
		if item.ID == id {
			return item
		}
	}
	t.Fatalf("no item with id %s in %+v", id, report.Items)
	return domain.DiagnosticItem{}
}

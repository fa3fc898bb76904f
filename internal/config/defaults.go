package config

import (
	"os"
	"path/filepath"

	"github.com/IgorLLC/MeetingPro/internal/domain"
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:          filepath.Join(homeDir, "Documents", "Minutes"),
		TranscriptionModel: "whisper-1",
		AnalysisModel:      "gpt-4o-mini",
		Language:           "auto",
	}
}

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
)

// EnvAPIKey names the process-wide variable holding the service credential
// shared by the transcription and analysis stages.
const EnvAPIKey = "OPENAI_API_KEY"

// Credentials holds the API credential required before any stage runs.
type Credentials struct {
	APIKey string `json:"-"`
}

// LoadEnv loads .env files into the process environment and returns the
// resulting credentials. Files are optional; existing environment variables
// win over file contents.
func LoadEnv() Credentials {
	paths := []string{".env"}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".meetingpro", ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}

	return Credentials{
		APIKey: strings.TrimSpace(os.Getenv(EnvAPIKey)),
	}
}

// Validate reports a configuration error when the credential is absent. This
// is distinct from the runtime authentication failures raised mid-pipeline.
func (c Credentials) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("configuration error: %s is not set", EnvAPIKey)
	}
	return nil
}

package pipeline

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/IgorLLC/MeetingPro/internal/engine"
)

// ErrCancelled reports a user-initiated abort. Callers should treat it as a
// silent reset rather than a failure to surface.
var ErrCancelled = errors.New("operation cancelled")

// InitializationError reports a failed engine load, distinguishing
// connectivity problems from everything else.
type InitializationError struct {
	Connectivity bool
	Err          error
}

// Error formats the initialization failure.
func (e *InitializationError) Error() string {
	if e.Connectivity {
		return fmt.Sprintf("engine initialization failed: could not download runtime components, check your network connection (%v)", e.Err)
	}
	return fmt.Sprintf("engine initialization failed: %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *InitializationError) Unwrap() error { return e.Err }

// ConversionError reports a failed transcode call.
type ConversionError struct {
	Err error
}

func (e *ConversionError) Error() string { return fmt.Sprintf("audio conversion failed: %v", e.Err) }
func (e *ConversionError) Unwrap() error { return e.Err }

// TranscriptionError reports a failed speech-to-text call.
type TranscriptionError struct {
	Err error
}

func (e *TranscriptionError) Error() string { return fmt.Sprintf("transcription failed: %v", e.Err) }
func (e *TranscriptionError) Unwrap() error { return e.Err }

// AnalysisError reports a failed minutes-extraction call.
type AnalysisError struct {
	Err error
}

func (e *AnalysisError) Error() string { return fmt.Sprintf("analysis failed: %v", e.Err) }
func (e *AnalysisError) Unwrap() error { return e.Err }

// AuthenticationError reports a missing or rejected service credential. Err
// is nil when the credential was absent before any call was attempted.
type AuthenticationError struct {
	Err error
}

// Error formats the credential failure.
func (e *AuthenticationError) Error() string {
	if e.Err == nil {
		return "missing or invalid API credential"
	}
	return fmt.Sprintf("missing or invalid API credential: %v", e.Err)
}

// Unwrap exposes the underlying cause.
func (e *AuthenticationError) Unwrap() error { return e.Err }

// MalformedResponseError reports an analysis payload that could not be
// parsed into the minutes structure.
type MalformedResponseError struct {
	Err error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("analysis service returned an unparsable payload: %v", e.Err)
}
func (e *MalformedResponseError) Unwrap() error { return e.Err }

// classifyInitError wraps an engine load failure, marking it as a
// connectivity problem when the cause is a component fetch or network error.
func classifyInitError(err error) error {
	var fetchErr *engine.FetchError
	var urlErr *url.Error
	var netErr net.Error
	if errors.As(err, &fetchErr) || errors.As(err, &urlErr) || errors.As(err, &netErr) {
		return &InitializationError{Connectivity: true, Err: err}
	}
	return &InitializationError{Err: err}
}

// credentialCause reports whether an external-call failure stems from a
// missing or invalid credential.
func credentialCause(err error) bool {
	if err == nil {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden {
			return true
		}
		if code, ok := apiErr.Code.(string); ok && strings.Contains(code, "api_key") {
			return true
		}
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"api key", "unauthorized", "credential", "authentication"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

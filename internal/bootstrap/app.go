package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	goruntime "runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wailsapp/wails/v2"
	"github.com/wailsapp/wails/v2/pkg/options"
	"github.com/wailsapp/wails/v2/pkg/options/assetserver"

	"github.com/IgorLLC/MeetingPro/internal/config"
	"github.com/IgorLLC/MeetingPro/internal/diagnostics"
	"github.com/IgorLLC/MeetingPro/internal/domain"
	"github.com/IgorLLC/MeetingPro/internal/jobs"
	"github.com/IgorLLC/MeetingPro/internal/output"
	"github.com/IgorLLC/MeetingPro/internal/pipeline"

	wailsruntime "github.com/wailsapp/wails/v2/pkg/runtime"
)

var recordingDialogFilter = []wailsruntime.FileFilter{
	{
		DisplayName: "Recordings",
		Pattern:     "*.mp4;*.mov;*.mkv;*.avi;*.mp3;*.wav;*.m4a;*.flac;*.aac;*.ogg;*.webm",
	},
	{
		DisplayName: "All files",
		Pattern:     "*",
	},
}

// App wires configuration, jobs, the pipeline coordinator, and UI runtime
// callbacks.
type App struct {
	Settings    domain.Settings
	Store       config.Store
	Jobs        *jobs.Manager
	Diagnostics domain.DiagnosticReport
	assets      fs.FS
	checker     *diagnostics.Checker
	creds       config.Credentials

	// newPipeline builds one coordinator per run; replaced in tests.
	newPipeline func(settings domain.Settings, onProgress pipeline.ProgressFunc) minutesPipeline

	mu          sync.Mutex
	activeJobID string
	active      minutesPipeline
	events      *jobs.EventBus
	runtimeCtx  context.Context
}

// minutesPipeline isolates the pipeline coordinator behind an interface.
type minutesPipeline interface {
	Convert(ctx context.Context, input []byte, filename string) ([]byte, error)
	Transcribe(ctx context.Context, audio []byte) (string, error)
	Analyze(ctx context.Context, transcript string) (domain.Minutes, error)
	Cancel()
}

// New builds the application with persisted settings and startup diagnostics.
func New() (*App, error) {
	return NewWithAssets(nil)
}

// NewWithAssets builds the application and optionally configures embedded
// frontend assets.
func NewWithAssets(assets fs.FS) (*App, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("resolve user home: %w", err)
	}

	store := config.NewJSONStore(filepath.Join(homeDir, ".meetingpro", "settings.json"))
	settings, err := store.Load()
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	creds := config.LoadEnv()
	checker := diagnostics.NewChecker()
	report := checker.Run(settings, creds)

	app := &App{
		Settings:    settings,
		Store:       store,
		Jobs:        jobs.NewManager(),
		Diagnostics: report,
		assets:      assets,
		checker:     checker,
		creds:       creds,
		events:      jobs.NewEventBus(1000),
	}
	app.newPipeline = func(settings domain.Settings, onProgress pipeline.ProgressFunc) minutesPipeline {
		return pipeline.New(pipeline.Config{
			APIKey:             creds.APIKey,
			TranscriptionModel: settings.TranscriptionModel,
			AnalysisModel:      settings.AnalysisModel,
			OnProgress:         onProgress,
		})
	}
	return app, nil
}

// Run starts the desktop application and binds backend methods.
func (a *App) Run() error {
	assetOptions := &assetserver.Options{}
	if a.assets != nil {
		assetOptions.Assets = a.assets
	} else {
		assetOptions.Handler = http.FileServer(http.Dir("./frontend"))
	}

	return wails.Run(&options.App{
		Title:       "MeetingPro",
		Width:       1180,
		Height:      780,
		AssetServer: assetOptions,
		OnStartup:   a.Startup,
		OnShutdown: func(ctx context.Context) {
			a.mu.Lock()
			defer a.mu.Unlock()
			a.runtimeCtx = nil
		},
		Bind: []interface{}{a},
	})
}

// Startup stores the runtime context for push events.
func (a *App) Startup(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.runtimeCtx = ctx
}

// GetDiagnostics returns the latest cached diagnostics report.
func (a *App) GetDiagnostics() domain.DiagnosticReport {
	return a.Diagnostics
}

// RefreshDiagnostics reloads settings and credentials and reruns checks.
func (a *App) RefreshDiagnostics() (domain.DiagnosticReport, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.DiagnosticReport{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.creds = config.LoadEnv()
	a.Diagnostics = a.checker.Run(settings, a.creds)
	report := a.Diagnostics
	a.mu.Unlock()
	return report, nil
}

// GetSettings loads and returns the latest persisted settings.
func (a *App) GetSettings() (domain.Settings, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Settings{}, fmt.Errorf("load settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = settings
	a.mu.Unlock()

	return settings, nil
}

// SaveSettings normalizes and persists settings, then refreshes diagnostics.
func (a *App) SaveSettings(settings domain.Settings) (domain.Settings, error) {
	normalized := normalizeSettings(settings)
	if err := a.Store.Save(normalized); err != nil {
		return domain.Settings{}, fmt.Errorf("save settings: %w", err)
	}

	a.mu.Lock()
	a.Settings = normalized
	if a.checker != nil {
		a.Diagnostics = a.checker.Run(normalized, a.creds)
	}
	a.mu.Unlock()

	return normalized, nil
}

// PickInputFile opens a native file dialog for recording selection.
func (a *App) PickInputFile() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenFileDialog(ctx, wailsruntime.OpenDialogOptions{
		Title:   "Select meeting recording",
		Filters: recordingDialogFilter,
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// PickOutputDirectory opens a native directory picker for minutes export.
func (a *App) PickOutputDirectory() (string, error) {
	ctx, err := a.runtimeContext()
	if err != nil {
		return "", err
	}

	path, err := wailsruntime.OpenDirectoryDialog(ctx, wailsruntime.OpenDialogOptions{
		Title: "Select output directory",
	})
	if err != nil {
		return "", err
	}

	return strings.TrimSpace(path), nil
}

// OpenOutputFolder opens the given path (or configured output dir) in the
// platform file manager.
func (a *App) OpenOutputFolder(path string) error {
	target := strings.TrimSpace(path)
	if target == "" {
		a.mu.Lock()
		target = a.Settings.OutputDir
		a.mu.Unlock()
	}
	if target == "" {
		return fmt.Errorf("output path is empty")
	}

	info, err := os.Stat(target)
	if err != nil {
		return fmt.Errorf("resolve output path: %w", err)
	}

	openPath := target
	if !info.IsDir() {
		openPath = filepath.Dir(target)
	}

	return openInFileManager(openPath)
}

// StartPipeline creates a job and runs the three stages asynchronously on a
// fresh coordinator.
func (a *App) StartPipeline(inputPath string) (domain.Job, error) {
	settings, err := a.Store.Load()
	if err != nil {
		return domain.Job{}, fmt.Errorf("load settings: %w", err)
	}

	jobID := uuid.NewString()
	if err := a.Jobs.Start(jobID); err != nil {
		return domain.Job{}, err
	}

	run := a.newPipeline(settings, func(stage domain.Stage, snapshot domain.ProgressRecord, detail *domain.StageDetail) {
		a.publishProgress(jobID, stage, snapshot, detail)
	})

	a.mu.Lock()
	a.activeJobID = jobID
	a.active = run
	a.Settings = settings
	a.mu.Unlock()

	a.publishStatus(jobID, domain.JobStatusConverting, "Job started")

	go a.runMinutesJob(jobID, inputPath, settings, run)
	return a.Jobs.Current(), nil
}

// CancelPipeline cancels the currently running job, if any.
func (a *App) CancelPipeline() error {
	a.mu.Lock()
	run := a.active
	activeJobID := a.activeJobID
	a.mu.Unlock()

	if run == nil {
		return jobs.ErrNoRunningJob
	}

	run.Cancel()
	if err := a.Jobs.Cancel(); err != nil && !errors.Is(err, jobs.ErrNoRunningJob) {
		return err
	}

	if activeJobID != "" {
		a.publishStatus(activeJobID, domain.JobStatusCancelled, "Cancellation requested")
	}
	return nil
}

// CurrentJob returns current job metadata and status.
func (a *App) CurrentJob() domain.Job {
	return a.Jobs.Current()
}

// JobEvents returns all events with sequence greater than sinceSeq.
func (a *App) JobEvents(sinceSeq int64) []jobs.Event {
	return a.events.Since(sinceSeq)
}

// runMinutesJob executes the three pipeline stages in order and maps
// outcomes to job events. Cancellation resets silently; every other failure
// surfaces its message.
func (a *App) runMinutesJob(jobID, inputPath string, settings domain.Settings, run minutesPipeline) {
	ctx := context.Background()

	input, err := os.ReadFile(inputPath)
	if err != nil {
		a.finishWithError(jobID, fmt.Errorf("read recording: %w", err))
		return
	}

	audio, err := run.Convert(ctx, input, filepath.Base(inputPath))
	if err != nil {
		a.finishStage(jobID, err)
		return
	}

	if err := a.Jobs.Transition(domain.JobStatusTranscribing); err == nil {
		a.publishStatus(jobID, domain.JobStatusTranscribing, "Transcribing audio")
	}
	transcript, err := run.Transcribe(ctx, audio)
	if err != nil {
		a.finishStage(jobID, err)
		return
	}

	if err := a.Jobs.Transition(domain.JobStatusAnalyzing); err == nil {
		a.publishStatus(jobID, domain.JobStatusAnalyzing, "Extracting minutes")
	}
	minutesDoc, err := run.Analyze(ctx, transcript)
	if err != nil {
		a.finishStage(jobID, err)
		return
	}

	result := domain.PipelineResult{Transcript: transcript, Minutes: minutesDoc}
	docPath, err := a.exportMinutes(inputPath, settings, result)
	if err != nil {
		a.finishWithError(jobID, err)
		return
	}

	if err := a.Jobs.Transition(domain.JobStatusDone); err == nil {
		a.publishStatus(jobID, domain.JobStatusDone, "Job completed")
	}
	a.publishEvent(jobs.Event{
		JobID:      jobID,
		Type:       jobs.EventTypeResult,
		Status:     domain.JobStatusDone,
		Message:    "Minutes exported to " + docPath,
		Transcript: result.Transcript,
		Minutes:    &result.Minutes,
	})
	a.clearActiveJob(jobID)
}

// exportMinutes writes the minutes document next to the configured output
// directory and returns its path.
func (a *App) exportMinutes(inputPath string, settings domain.Settings, result domain.PipelineResult) (string, error) {
	if err := os.MkdirAll(settings.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("create output directory: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	if base == "" {
		base = "meeting"
	}

	doc := output.RenderMinutes(output.Metadata{
		Title:     base,
		Source:    inputPath,
		Generated: time.Now().Format(time.RFC3339),
	}, result)

	docPath := filepath.Join(settings.OutputDir, base+".md")
	if err := os.WriteFile(docPath, []byte(doc), 0o644); err != nil {
		return "", fmt.Errorf("write minutes document: %w", err)
	}
	return docPath, nil
}

// finishStage maps a stage failure to job events. Cancellation collapses to
// the cancelled status with no error event.
func (a *App) finishStage(jobID string, err error) {
	if errors.Is(err, pipeline.ErrCancelled) {
		_ = a.Jobs.Transition(domain.JobStatusCancelled)
		a.publishStatus(jobID, domain.JobStatusCancelled, "Job cancelled")
		a.clearActiveJob(jobID)
		return
	}
	a.finishWithError(jobID, err)
}

// finishWithError marks the job failed and publishes the error message.
func (a *App) finishWithError(jobID string, err error) {
	_ = a.Jobs.Transition(domain.JobStatusFailed)
	a.publishStatus(jobID, domain.JobStatusFailed, "Job failed")
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeError,
		Status:  domain.JobStatusFailed,
		Message: err.Error(),
	})
	a.clearActiveJob(jobID)
}

// publishProgress forwards one coordinator progress update to subscribers.
func (a *App) publishProgress(jobID string, stage domain.Stage, snapshot domain.ProgressRecord, detail *domain.StageDetail) {
	a.publishEvent(jobs.Event{
		JobID:    jobID,
		Type:     jobs.EventTypeProgress,
		Stage:    stage,
		Progress: &snapshot,
		Detail:   detail,
	})
}

// publishStatus sends a normalized status event.
func (a *App) publishStatus(jobID string, status domain.JobStatus, message string) {
	a.publishEvent(jobs.Event{
		JobID:   jobID,
		Type:    jobs.EventTypeStatus,
		Status:  status,
		Message: message,
	})
}

// publishEvent stores event history and emits runtime push notifications.
func (a *App) publishEvent(event jobs.Event) {
	published := a.events.Publish(event)

	a.mu.Lock()
	ctx := a.runtimeCtx
	a.mu.Unlock()
	if ctx != nil {
		wailsruntime.EventsEmit(ctx, "job:event", published)
	}
}

// clearActiveJob clears the coordinator handle for completed job IDs.
func (a *App) clearActiveJob(jobID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.activeJobID == jobID {
		a.activeJobID = ""
		a.active = nil
	}
}

// runtimeContext returns the current runtime context for dialog APIs.
func (a *App) runtimeContext() (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runtimeCtx == nil {
		return nil, fmt.Errorf("runtime context is not initialized")
	}
	return a.runtimeCtx, nil
}

// normalizeSettings trims user inputs and applies defaults for empty fields.
func normalizeSettings(settings domain.Settings) domain.Settings {
	defaults := config.DefaultSettings()
	settings.OutputDir = strings.TrimSpace(settings.OutputDir)
	settings.TranscriptionModel = strings.TrimSpace(settings.TranscriptionModel)
	settings.AnalysisModel = strings.TrimSpace(settings.AnalysisModel)
	settings.Language = strings.TrimSpace(settings.Language)
	if settings.TranscriptionModel == "" {
		settings.TranscriptionModel = defaults.TranscriptionModel
	}
	if settings.AnalysisModel == "" {
		settings.AnalysisModel = defaults.AnalysisModel
	}
	if settings.Language == "" {
		settings.Language = "auto"
	}
	return settings
}

// openInFileManager launches the platform file explorer for the provided path.
func openInFileManager(path string) error {
	var cmd *exec.Cmd
	switch goruntime.GOOS {
	case "darwin":
		cmd = exec.Command("open", path)
	case "windows":
		cmd = exec.Command("explorer", filepath.Clean(path))
	default:
		cmd = exec.Command("xdg-open", path)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("launch file manager: %w", err)
	}
	return nil
}

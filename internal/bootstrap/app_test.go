package bootstrap

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/IgorLLC/MeetingPro/internal/domain"
	"github.com/IgorLLC/MeetingPro/internal/jobs"
	"github.com/IgorLLC/MeetingPro/internal/pipeline"
)

// fakeStore returns deterministic settings for App tests.
type fakeStore struct {
	settings domain.Settings
}

// Load returns preconfigured settings.
func (s *fakeStore) Load() (domain.Settings, error) {
	return s.settings, nil
}

// Save is a no-op for tests.
func (s *fakeStore) Save(domain.Settings) error {
	return nil
}

// fakePipeline allows injecting custom stage behavior per test. The app
// hands it the progress callback through the factory, so stage fakes can
// emit progress like the real coordinator.
type fakePipeline struct {
	onProgress pipeline.ProgressFunc
	convert    func(ctx context.Context, input []byte, filename string) ([]byte, error)
	transcribe func(ctx context.Context, audio []byte) (string, error)
	analyze    func(ctx context.Context, transcript string) (domain.Minutes, error)
	cancel     func()
}

func (p *fakePipeline) Convert(ctx context.Context, input []byte, filename string) ([]byte, error) {
	if p.convert == nil {
		return []byte("wav"), nil
	}
	return p.convert(ctx, input, filename)
}

func (p *fakePipeline) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if p.transcribe == nil {
		return "hello", nil
	}
	return p.transcribe(ctx, audio)
}

func (p *fakePipeline) Analyze(ctx context.Context, transcript string) (domain.Minutes, error) {
	if p.analyze == nil {
		return domain.Minutes{Topics: []domain.Topic{{Title: "Topic", KeyPoints: []string{transcript}, ActionItems: []string{}}}}, nil
	}
	return p.analyze(ctx, transcript)
}

func (p *fakePipeline) Cancel() {
	if p.cancel != nil {
		p.cancel()
	}
}

// newTestApp wires an App around a fake pipeline and a fake store.
func newTestApp(settings domain.Settings, fake *fakePipeline) *App {
	app := &App{
		Settings: settings,
		Store:    &fakeStore{settings: settings},
		Jobs:     jobs.NewManager(),
		events:   jobs.NewEventBus(100),
	}
	app.newPipeline = func(_ domain.Settings, onProgress pipeline.ProgressFunc) minutesPipeline {
		fake.onProgress = onProgress
		return fake
	}
	return app
}

// writeRecording creates an input file for StartPipeline to read.
func writeRecording(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "meeting.mp3")
	if err := os.WriteFile(path, []byte("media"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestStartPipelineEnforcesSingleRunningJob checks the single-job guard and
// that cancellation resets silently with no error event.
func TestStartPipelineEnforcesSingleRunningJob(t *testing.T) {
	root := t.TempDir()
	inputPath := writeRecording(t, root)

	cancelled := make(chan struct{})
	fake := &fakePipeline{
		convert: func(ctx context.Context, input []byte, filename string) ([]byte, error) {
			<-cancelled
			return nil, pipeline.ErrCancelled
		},
		cancel: func() { close(cancelled) },
	}
	app := newTestApp(domain.Settings{OutputDir: filepath.Join(root, "out")}, fake)

	if _, err := app.StartPipeline(inputPath); err != nil {
		t.Fatalf("start first job: %v", err)
	}
	if _, err := app.StartPipeline(inputPath); !errors.Is(err, jobs.ErrJobAlreadyRunning) {
		t.Fatalf("second start error = %v, want %v", err, jobs.ErrJobAlreadyRunning)
	}

	if err := app.CancelPipeline(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	waitForStatus(t, app, domain.JobStatusCancelled)

	for _, event := range app.JobEvents(0) {
		if event.Type == jobs.EventTypeError {
			t.Fatalf("cancellation produced an error event: %+v", event)
		}
	}
}

// TestStartPipelinePublishesProgressAndResultEvents checks the success path
// end to end, including the exported minutes document.
func TestStartPipelinePublishesProgressAndResultEvents(t *testing.T) {
	root := t.TempDir()
	outputDir := filepath.Join(root, "out")
	inputPath := writeRecording(t, root)

	fake := &fakePipeline{}
	fake.convert = func(ctx context.Context, input []byte, filename string) ([]byte, error) {
		if fake.onProgress != nil {
			fake.onProgress(domain.StageConverting, domain.ProgressRecord{Converting: 0.5}, nil)
			fake.onProgress(domain.StageConverting, domain.ProgressRecord{Converting: 1}, nil)
		}
		return []byte("wav"), nil
	}
	fake.transcribe = func(ctx context.Context, audio []byte) (string, error) {
		return "We discussed the budget.", nil
	}
	fake.analyze = func(ctx context.Context, transcript string) (domain.Minutes, error) {
		return domain.Minutes{Topics: []domain.Topic{{
			Title:       "Budget",
			KeyPoints:   []string{"Discussed budget"},
			ActionItems: []string{"Send proposal by Friday"},
		}}}, nil
	}

	app := newTestApp(domain.Settings{OutputDir: outputDir}, fake)
	if _, err := app.StartPipeline(inputPath); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusDone)
	events := app.JobEvents(0)
	if len(events) == 0 {
		t.Fatal("expected events")
	}

	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeProgress)
	assertEventTypeExists(t, events, jobs.EventTypeResult)

	for _, event := range events {
		if event.Type != jobs.EventTypeResult {
			continue
		}
		if event.Transcript != "We discussed the budget." {
			t.Fatalf("result transcript = %q", event.Transcript)
		}
		if event.Minutes == nil || len(event.Minutes.Topics) != 1 {
			t.Fatalf("result minutes = %+v", event.Minutes)
		}
	}

	doc, err := os.ReadFile(filepath.Join(outputDir, "meeting.md"))
	if err != nil {
		t.Fatalf("read exported minutes: %v", err)
	}
	for _, want := range []string{"## Budget", "- [ ] Send proposal by Friday", "We discussed the budget."} {
		if !strings.Contains(string(doc), want) {
			t.Fatalf("exported document missing %q:\n%s", want, doc)
		}
	}
}

// TestStartPipelinePublishesFailureEvents checks error path emissions.
func TestStartPipelinePublishesFailureEvents(t *testing.T) {
	root := t.TempDir()
	inputPath := writeRecording(t, root)

	fake := &fakePipeline{
		transcribe: func(ctx context.Context, audio []byte) (string, error) {
			return "", &pipeline.TranscriptionError{Err: errors.New("rate limited")}
		},
	}
	app := newTestApp(domain.Settings{OutputDir: filepath.Join(root, "out")}, fake)

	if _, err := app.StartPipeline(inputPath); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusFailed)
	events := app.JobEvents(0)

	assertEventTypeExists(t, events, jobs.EventTypeStatus)
	assertEventTypeExists(t, events, jobs.EventTypeError)
}

// TestStartPipelineMissingInputFails checks unreadable recordings fail the
// job without reaching the pipeline.
func TestStartPipelineMissingInputFails(t *testing.T) {
	root := t.TempDir()
	converted := false
	fake := &fakePipeline{
		convert: func(ctx context.Context, input []byte, filename string) ([]byte, error) {
			converted = true
			return []byte("wav"), nil
		},
	}
	app := newTestApp(domain.Settings{OutputDir: filepath.Join(root, "out")}, fake)

	if _, err := app.StartPipeline(filepath.Join(root, "missing.mp3")); err != nil {
		t.Fatalf("start job: %v", err)
	}

	waitForStatus(t, app, domain.JobStatusFailed)
	if converted {
		t.Fatal("pipeline ran despite unreadable input")
	}
	assertEventTypeExists(t, app.JobEvents(0), jobs.EventTypeError)
}

// TestCancelPipelineWithoutActiveJob checks the idle-cancel error.
func TestCancelPipelineWithoutActiveJob(t *testing.T) {
	app := newTestApp(domain.Settings{OutputDir: t.TempDir()}, &fakePipeline{})

	if err := app.CancelPipeline(); !errors.Is(err, jobs.ErrNoRunningJob) {
		t.Fatalf("cancel error = %v, want %v", err, jobs.ErrNoRunningJob)
	}
}

// TestSaveSettingsNormalizes checks trimming and defaulting of user input.
func TestSaveSettingsNormalizes(t *testing.T) {
	app := newTestApp(domain.Settings{}, &fakePipeline{})

	saved, err := app.SaveSettings(domain.Settings{
		OutputDir:          "  /tmp/minutes  ",
		TranscriptionModel: " ",
		AnalysisModel:      "",
		Language:           "",
	})
	if err != nil {
		t.Fatalf("save settings: %v", err)
	}

	if saved.OutputDir != "/tmp/minutes" {
		t.Errorf("output dir = %q", saved.OutputDir)
	}
	if saved.TranscriptionModel != "whisper-1" {
		t.Errorf("transcription model = %q", saved.TranscriptionModel)
	}
	if saved.AnalysisModel != "gpt-4o-mini" {
		t.Errorf("analysis model = %q", saved.AnalysisModel)
	}
	if saved.Language != "auto" {
		t.Errorf("language = %q", saved.Language)
	}
}

// waitForStatus polls until job reaches desired status or times out.
func waitForStatus(t *testing.T, app *App, want domain.JobStatus) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if app.CurrentJob().Status == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("status = %s, want %s", app.CurrentJob().Status, want)
}

// assertEventTypeExists verifies at least one event of given type exists.
func assertEventTypeExists(t *testing.T, events []jobs.Event, want jobs.EventType) {
	t.Helper()
	for _, event := range events {
		if event.Type == want {
			return
		}
	}
	t.Fatalf("event type %s not found", want)
}

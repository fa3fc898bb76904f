package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/IgorLLC/MeetingPro/internal/domain"
	"github.com/IgorLLC/MeetingPro/internal/engine"
	"github.com/IgorLLC/MeetingPro/internal/minutes"
	"github.com/IgorLLC/MeetingPro/internal/stt"
)

// Fixed working-storage names for the conversion stage. Each coordinator has
// its own engine, so the names cannot collide across concurrent runs.
const (
	inputBaseName  = "input"
	outputFileName = "output.wav"
)

// pendingFraction marks a binary stage as in flight before its external call
// returns.
const pendingFraction = 0.1

// ProgressFunc receives every progress update: the active stage, a snapshot
// of the full record, and optional detail. The snapshot is a value copy and
// never mutates after delivery.
type ProgressFunc func(stage domain.Stage, snapshot domain.ProgressRecord, detail *domain.StageDetail)

// Transcriber converts normalized audio to text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, filename string) (string, error)
}

// Analyzer extracts structured minutes from a transcript.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (domain.Minutes, error)
}

// Coordinator phases, in run order. Terminal phases have no exits.
const (
	phaseIdle = iota
	phaseConverted
	phaseTranscribed
	phaseDone
	phaseFailed
	phaseCancelled
)

// Config assembles one coordinator. Zero-value service fields default to the
// production adapters built from the credentials.
type Config struct {
	APIKey             string
	TranscriptionModel string
	AnalysisModel      string

	Transcriber Transcriber
	Analyzer    Analyzer
	NewEngine   func() engine.Engine
	OnProgress  ProgressFunc
}

// Coordinator sequences the three pipeline stages behind one cancellable,
// progress-observable unit of work. A coordinator runs exactly one pipeline;
// after Done or Cancelled it is not reusable.
type Coordinator struct {
	cfg Config

	// runCtx is the cancellation token: created at construction, signalled
	// once by Cancel, observed by every stage.
	runCtx    context.Context
	cancelRun context.CancelFunc

	mu       sync.Mutex
	eng      engine.Engine
	phase    int
	progress domain.ProgressRecord
}

// New builds a coordinator with a fresh cancellation token.
func New(cfg Config) *Coordinator {
	if cfg.Transcriber == nil {
		cfg.Transcriber = stt.New(cfg.APIKey, cfg.TranscriptionModel)
	}
	if cfg.Analyzer == nil {
		cfg.Analyzer = minutes.New(cfg.APIKey, cfg.AnalysisModel)
	}
	if cfg.NewEngine == nil {
		cfg.NewEngine = func() engine.Engine {
			return engine.NewFFmpeg(engine.DefaultRuntime())
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:       cfg,
		runCtx:    ctx,
		cancelRun: cancel,
	}
}

// Convert normalizes one input recording to 16 kHz mono PCM WAV. The engine
// is initialized lazily on first call and reused by later calls on the same
// coordinator. Both working-storage entries are removed whatever the outcome.
func (c *Coordinator) Convert(ctx context.Context, input []byte, filename string) ([]byte, error) {
	// A completed conversion may be redone before transcription starts; the
	// second pass reuses the already-initialized engine.
	if err := c.enter(phaseIdle, phaseConverted); err != nil {
		return nil, err
	}

	stageCtx, stop := c.stageContext(ctx)
	defer stop()

	eng, err := c.readyEngine(stageCtx)
	if err != nil {
		if c.tokenSignalled() {
			return nil, c.cancelled()
		}
		return nil, c.failed(classifyInitError(err))
	}

	inName := inputBaseName + strings.ToLower(filepath.Ext(filename))
	if err := eng.WriteFile(inName, input); err != nil {
		return nil, c.failed(&ConversionError{Err: err})
	}
	defer func() {
		_ = eng.DeleteFile(inName)
		_ = eng.DeleteFile(outputFileName)
	}()

	execErr := eng.Exec(stageCtx, engine.ConvertArgs(inName, outputFileName),
		func(fraction float64) {
			c.report(domain.StageConverting, fraction, nil)
		},
		func(line string) {
			if rate, ok := engine.ParseBitrate(line); ok {
				c.report(domain.StageConverting, 0, &domain.StageDetail{Bitrate: rate})
			}
		})
	if execErr != nil {
		if c.tokenSignalled() || errors.Is(execErr, context.Canceled) {
			return nil, c.cancelled()
		}
		return nil, c.failed(&ConversionError{Err: execErr})
	}

	out, err := eng.ReadFile(outputFileName)
	if err != nil {
		return nil, c.failed(&ConversionError{Err: err})
	}

	c.report(domain.StageConverting, 1, nil)
	c.advance(phaseConverted)
	return out, nil
}

// Transcribe sends normalized audio to the speech-to-text service with
// automatic language detection. The service exposes no intermediate
// progress, so the stage reports a pending/complete transition.
func (c *Coordinator) Transcribe(ctx context.Context, audio []byte) (string, error) {
	if err := c.enter(phaseConverted); err != nil {
		return "", err
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return "", c.failed(&AuthenticationError{})
	}

	stageCtx, stop := c.stageContext(ctx)
	defer stop()

	c.report(domain.StageTranscribing, pendingFraction, nil)
	text, err := c.cfg.Transcriber.Transcribe(stageCtx, audio, outputFileName)
	if err != nil {
		if c.tokenSignalled() || errors.Is(err, context.Canceled) {
			return "", c.cancelled()
		}
		if credentialCause(err) {
			return "", c.failed(&AuthenticationError{Err: err})
		}
		return "", c.failed(&TranscriptionError{Err: err})
	}

	c.report(domain.StageTranscribing, 1, nil)
	c.advance(phaseTranscribed)
	return text, nil
}

// Analyze extracts topics, key points, and action items from a transcript.
func (c *Coordinator) Analyze(ctx context.Context, transcript string) (domain.Minutes, error) {
	if err := c.enter(phaseTranscribed); err != nil {
		return domain.Minutes{}, err
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return domain.Minutes{}, c.failed(&AuthenticationError{})
	}
	if strings.TrimSpace(transcript) == "" {
		return domain.Minutes{}, c.failed(&AnalysisError{Err: errors.New("transcript is empty")})
	}

	stageCtx, stop := c.stageContext(ctx)
	defer stop()

	c.report(domain.StageAnalyzing, pendingFraction, nil)
	doc, err := c.cfg.Analyzer.Analyze(stageCtx, transcript)
	if err != nil {
		if c.tokenSignalled() || errors.Is(err, context.Canceled) {
			return domain.Minutes{}, c.cancelled()
		}
		if credentialCause(err) {
			return domain.Minutes{}, c.failed(&AuthenticationError{Err: err})
		}
		if errors.Is(err, minutes.ErrMalformedPayload) {
			return domain.Minutes{}, c.failed(&MalformedResponseError{Err: err})
		}
		return domain.Minutes{}, c.failed(&AnalysisError{Err: err})
	}

	c.report(domain.StageAnalyzing, 1, nil)
	c.advance(phaseDone)
	return doc, nil
}

// Cancel signals the cancellation token, tears down the engine, and marks it
// uninitialized. It is idempotent and safe with no operation in flight.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	eng := c.eng
	c.eng = nil
	if c.phase != phaseDone && c.phase != phaseFailed {
		c.phase = phaseCancelled
	}
	c.mu.Unlock()

	c.cancelRun()
	if eng != nil {
		eng.Terminate()
	}
}

// Snapshot returns a copy of the current progress record.
func (c *Coordinator) Snapshot() domain.ProgressRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.progress
}

// enter validates stage ordering and the cancellation token before any stage
// work begins.
func (c *Coordinator) enter(allowed ...int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.phase {
	case phaseCancelled:
		return ErrCancelled
	case phaseFailed:
		return fmt.Errorf("pipeline already failed; start a new run")
	case phaseDone:
		return fmt.Errorf("pipeline already completed; start a new run")
	}

	ok := false
	for _, phase := range allowed {
		if c.phase == phase {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("pipeline stages must run in order")
	}

	if c.runCtx.Err() != nil {
		c.phase = phaseCancelled
		return ErrCancelled
	}
	return nil
}

// stageContext derives a context for one stage call that also observes the
// coordinator's cancellation token.
func (c *Coordinator) stageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	stageCtx, cancel := context.WithCancel(ctx)
	stopWatch := context.AfterFunc(c.runCtx, cancel)
	return stageCtx, func() {
		stopWatch()
		cancel()
	}
}

// readyEngine builds and loads the engine on first use. Load is a no-op on a
// ready engine, so repeat conversions reuse the initialized instance.
func (c *Coordinator) readyEngine(ctx context.Context) (engine.Engine, error) {
	c.mu.Lock()
	if c.eng == nil {
		c.eng = c.cfg.NewEngine()
	}
	eng := c.eng
	c.mu.Unlock()

	if err := eng.Load(ctx); err != nil {
		return nil, err
	}
	return eng, nil
}

// report clamps a fraction into [0,1], applies it monotonically to the
// stage's slot, and delivers a snapshot to the consumer synchronously.
// Detail-only updates pass fraction 0, which can never lower a slot.
func (c *Coordinator) report(stage domain.Stage, fraction float64, detail *domain.StageDetail) {
	c.mu.Lock()
	if fraction < 0 {
		fraction = 0
	} else if fraction > 1 {
		fraction = 1
	}

	slot := c.slot(stage)
	if fraction > *slot {
		*slot = fraction
	}
	snapshot := c.progress
	cb := c.cfg.OnProgress
	c.mu.Unlock()

	if cb != nil {
		cb(stage, snapshot, detail)
	}
}

// slot returns the mutable record slot for a stage. Callers hold c.mu.
func (c *Coordinator) slot(stage domain.Stage) *float64 {
	switch stage {
	case domain.StageTranscribing:
		return &c.progress.Transcribing
	case domain.StageAnalyzing:
		return &c.progress.Analyzing
	default:
		return &c.progress.Converting
	}
}

// advance records successful completion of a stage.
func (c *Coordinator) advance(phase int) {
	c.mu.Lock()
	if c.phase != phaseCancelled && c.phase != phaseFailed {
		c.phase = phase
	}
	c.mu.Unlock()
}

// cancelled transitions to the terminal cancelled phase and returns the
// sentinel unchanged, never re-wrapped.
func (c *Coordinator) cancelled() error {
	c.mu.Lock()
	c.phase = phaseCancelled
	c.mu.Unlock()
	return ErrCancelled
}

// failed transitions to the terminal failed phase and passes the stage error
// through.
func (c *Coordinator) failed(err error) error {
	c.mu.Lock()
	c.phase = phaseFailed
	c.mu.Unlock()
	return err
}

// tokenSignalled reports whether Cancel has been called.
func (c *Coordinator) tokenSignalled() bool {
	return c.runCtx.Err() != nil
}

package domain

// Stage identifies one of the three sequential pipeline phases.
type Stage string

const (
	StageConverting   Stage = "converting"
	StageTranscribing Stage = "transcribing"
	StageAnalyzing    Stage = "analyzing"
)

// ProgressRecord holds one completion fraction per stage, each in [0,1].
// It is passed by value so every observer receives a snapshot that later
// updates cannot mutate.
type ProgressRecord struct {
	Converting   float64 `json:"converting"`
	Transcribing float64 `json:"transcribing"`
	Analyzing    float64 `json:"analyzing"`
}

// Fraction returns the slot value for a stage.
func (r ProgressRecord) Fraction(stage Stage) float64 {
	switch stage {
	case StageConverting:
		return r.Converting
	case StageTranscribing:
		return r.Transcribing
	case StageAnalyzing:
		return r.Analyzing
	default:
		return 0
	}
}

// StageDetail carries optional descriptive metadata for a progress update.
// It never affects control flow.
type StageDetail struct {
	Bitrate    string `json:"bitrate,omitempty"`
	SampleRate int    `json:"sampleRate,omitempty"`
	Duration   string `json:"duration,omitempty"`
	SizeBytes  int64  `json:"sizeBytes,omitempty"`
	Container  string `json:"container,omitempty"`
	Label      string `json:"label,omitempty"`
}

// Topic is one segment of the meeting minutes.
type Topic struct {
	Title       string   `json:"title"`
	KeyPoints   []string `json:"keyPoints"`
	ActionItems []string `json:"actionItems"`
}

// Minutes is the structured document produced by the analysis stage.
type Minutes struct {
	Topics []Topic `json:"topics"`
}

// PipelineResult bundles the raw transcript with the extracted minutes.
type PipelineResult struct {
	Transcript string  `json:"transcript"`
	Minutes    Minutes `json:"minutes"`
}

// JobStatus tracks each pipeline stage for a single minutes job.
type JobStatus string

const (
	JobStatusIdle         JobStatus = "idle"
	JobStatusConverting   JobStatus = "converting"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusAnalyzing    JobStatus = "analyzing"
	JobStatusDone         JobStatus = "done"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// Settings contains user-selectable runtime configuration.
type Settings struct {
	OutputDir          string `json:"outputDir"`
	TranscriptionModel string `json:"transcriptionModel"`
	AnalysisModel      string `json:"analysisModel"`
	Language           string `json:"language"`
}

// Job stores the current job identity and lifecycle status.
type Job struct {
	ID     string    `json:"id"`
	Status JobStatus `json:"status"`
}

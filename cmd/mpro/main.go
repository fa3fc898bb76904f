// Command mpro runs the minutes pipeline headless on a single recording.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/IgorLLC/MeetingPro/internal/config"
	"github.com/IgorLLC/MeetingPro/internal/domain"
	"github.com/IgorLLC/MeetingPro/internal/output"
	"github.com/IgorLLC/MeetingPro/internal/pipeline"
)

func main() {
	var (
		inPath   string
		outPath  string
		sttModel string
		llmModel string
		quiet    bool
	)

	flag.StringVar(&inPath, "input", "", "Input recording path (-i)")
	flag.StringVar(&inPath, "i", "", "Input recording path")
	flag.StringVar(&outPath, "output", "", "Output minutes markdown path (-o)")
	flag.StringVar(&outPath, "o", "", "Output minutes markdown path")
	flag.StringVar(&sttModel, "stt-model", "", "Transcription model override")
	flag.StringVar(&llmModel, "analysis-model", "", "Analysis model override")
	flag.BoolVar(&quiet, "quiet", false, "Suppress progress output")
	flag.Parse()

	if inPath == "" {
		log.Fatal("missing --input/-i recording path")
	}
	if outPath == "" {
		base := strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath))
		outPath = base + ".md"
	}

	creds := config.LoadEnv()
	if err := creds.Validate(); err != nil {
		log.Fatal(err)
	}

	input, err := os.ReadFile(inPath)
	if err != nil {
		log.Fatalf("read recording: %v", err)
	}

	run := pipeline.New(pipeline.Config{
		APIKey:             creds.APIKey,
		TranscriptionModel: sttModel,
		AnalysisModel:      llmModel,
		OnProgress: func(stage domain.Stage, snapshot domain.ProgressRecord, detail *domain.StageDetail) {
			if quiet {
				return
			}
			line := fmt.Sprintf("[%s] %3.0f%%", stage, snapshot.Fraction(stage)*100)
			if detail != nil && detail.Bitrate != "" {
				line += " " + detail.Bitrate
			}
			fmt.Fprintln(os.Stderr, line)
		},
	})

	ctx := context.Background()
	audio, err := run.Convert(ctx, input, filepath.Base(inPath))
	if err != nil {
		exit(err)
	}
	transcript, err := run.Transcribe(ctx, audio)
	if err != nil {
		exit(err)
	}
	minutesDoc, err := run.Analyze(ctx, transcript)
	if err != nil {
		exit(err)
	}

	doc := output.RenderMinutes(output.Metadata{
		Title:     strings.TrimSuffix(filepath.Base(inPath), filepath.Ext(inPath)),
		Source:    inPath,
		Generated: time.Now().Format(time.RFC3339),
	}, domain.PipelineResult{Transcript: transcript, Minutes: minutesDoc})

	if err := os.WriteFile(outPath, []byte(doc), 0o644); err != nil {
		log.Fatalf("write minutes: %v", err)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", outPath)
}

// exit reports a pipeline failure; cancellation ends the run quietly.
func exit(err error) {
	if errors.Is(err, pipeline.ErrCancelled) {
		os.Exit(130)
	}
	log.Fatal(err)
}

// Package stt adapts the hosted speech-to-text service to the pipeline.
package stt

import (
	"bytes"
	"context"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// Client sends normalized audio to the transcription API.
type Client struct {
	api   *openai.Client
	model string
}

// New builds a transcription client. An empty model selects the default
// hosted whisper model.
func New(apiKey, model string) *Client {
	if strings.TrimSpace(model) == "" {
		model = openai.Whisper1
	}
	return &Client{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// Transcribe uploads one audio blob and returns plain transcript text.
// Language is left unset so the service detects it automatically.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename string) (string, error) {
	resp, err := c.api.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: filename,
		Reader:   bytes.NewReader(audio),
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

// Package minutes adapts the hosted language model to structured
// meeting-minutes extraction.
package minutes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"github.com/IgorLLC/MeetingPro/internal/domain"
)

// ErrMalformedPayload marks a service response that could not be parsed into
// the minutes structure.
var ErrMalformedPayload = errors.New("malformed minutes payload")

const systemPrompt = "You are an assistant that writes meeting minutes. " +
	"Segment the transcript into topics. For each topic give a short title, " +
	"the key points discussed, and the action items that were agreed, in the " +
	"order they occurred. Transcripts may be in English or Spanish; write the " +
	"minutes in the transcript's language. Respond with a single JSON object " +
	`of the form {"topics":[{"title":"...","keyPoints":["..."],"actionItems":["..."]}]} ` +
	"and nothing else. actionItems may be empty for a topic."

// Client extracts minutes through the chat-completion API.
type Client struct {
	api   *openai.Client
	model string
}

// New builds an analyzer client. An empty model selects the fixed default;
// the model never varies with the transcript's language.
func New(apiKey, model string) *Client {
	if strings.TrimSpace(model) == "" {
		model = openai.GPT4oMini
	}
	return &Client{
		api:   openai.NewClient(apiKey),
		model: model,
	}
}

// Analyze sends the transcript for segmentation and parses the structured
// response.
func (c *Client) Analyze(ctx context.Context, transcript string) (domain.Minutes, error) {
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: "Produce meeting minutes for this transcript:\n\n" + transcript},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return domain.Minutes{}, err
	}
	if len(resp.Choices) == 0 {
		return domain.Minutes{}, fmt.Errorf("%w: completion has no choices", ErrMalformedPayload)
	}

	return Parse([]byte(resp.Choices[0].Message.Content))
}

// Parse decodes a minutes payload, normalizing absent slices to empty ones
// so consumers can range without nil checks.
func Parse(payload []byte) (domain.Minutes, error) {
	var doc domain.Minutes
	if err := json.Unmarshal(payload, &doc); err != nil {
		return domain.Minutes{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if doc.Topics == nil {
		return domain.Minutes{}, fmt.Errorf("%w: missing topics", ErrMalformedPayload)
	}

	for i := range doc.Topics {
		if strings.TrimSpace(doc.Topics[i].Title) == "" {
			return domain.Minutes{}, fmt.Errorf("%w: topic %d has no title", ErrMalformedPayload, i)
		}
		if doc.Topics[i].KeyPoints == nil {
			doc.Topics[i].KeyPoints = []string{}
		}
		if doc.Topics[i].ActionItems == nil {
			doc.Topics[i].ActionItems = []string{}
		}
	}
	return doc, nil
}

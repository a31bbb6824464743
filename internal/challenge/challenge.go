// Package challenge reads the site's anti-bot picture and returns the
// characters it shows.
package challenge

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type Solver interface {
	Solve(ctx context.Context, image []byte) (string, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, image []byte) (string, error)

func (f SolverFunc) Solve(ctx context.Context, image []byte) (string, error) { return f(ctx, image) }

const systemPrompt = `You read distorted-text verification images. ` +
	`The image contains exactly 6 characters (letters and digits). ` +
	`Reply with those characters only, preserving case, in the capcha_value field.`

// Client asks an OpenAI-compatible chat completions endpoint with vision
// support to read the picture.
type Client struct {
	api    *openai.Client
	apiKey string
	model  string
}

type Options struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

func New(opts Options) *Client {
	if opts.Timeout == 0 {
		opts.Timeout = 30 * time.Second
	}
	cfg := openai.DefaultConfig(opts.APIKey)
	if opts.BaseURL != "" {
		cfg.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: opts.Timeout}
	return &Client{
		api:    openai.NewClientWithConfig(cfg),
		apiKey: opts.APIKey,
		model:  opts.Model,
	}
}

var answerSchema = json.RawMessage(`{
	"type": "object",
	"properties": {"capcha_value": {"type": "string"}},
	"required": ["capcha_value"],
	"additionalProperties": false
}`)

func (c *Client) Solve(ctx context.Context, image []byte) (string, error) {
	if c.apiKey == "" {
		return "", errors.New("challenge: CHALLENGE_API_KEY is not set")
	}
	if len(image) == 0 {
		return "", errors.New("challenge: empty image")
	}

	res, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: "Read the characters in this image."},
				{Type: openai.ChatMessagePartTypeImageURL, ImageURL: &openai.ChatMessageImageURL{
					URL:    "data:image/png;base64," + base64.StdEncoding.EncodeToString(image),
					Detail: openai.ImageURLDetailHigh,
				}},
			}},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "capcha",
				Strict: true,
				Schema: answerSchema,
			},
		},
		MaxTokens: 50,
	})
	if err != nil {
		var apiErr *openai.APIError
		if errors.As(err, &apiErr) {
			return "", fmt.Errorf("challenge: %s (status=%d)", apiErr.Message, apiErr.HTTPStatusCode)
		}
		return "", fmt.Errorf("challenge: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", errors.New("challenge: no choices in response")
	}

	var answer struct {
		Value string `json:"capcha_value"`
	}
	if err := json.Unmarshal([]byte(res.Choices[0].Message.Content), &answer); err != nil {
		return "", fmt.Errorf("challenge: decode answer: %w", err)
	}
	v := strings.TrimSpace(answer.Value)
	if v == "" {
		return "", errors.New("challenge: empty answer")
	}
	return v, nil
}

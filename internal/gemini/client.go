// Package gemini wraps the Google GenAI SDK with the three call shapes the
// backend needs: structured JSON output, plain text, and streamed text.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

// Client is a thin wrapper over the Gemini API. The flash model serves cheap
// structured calls (moderation, adaptive questions, streaming); the pro model
// serves theme extraction and insight snapshots.
type Client struct {
	client     *genai.Client
	flashModel string
	proModel   string
	logger     *zap.Logger
}

func NewClient(ctx context.Context, apiKey, flashModel, proModel string, logger *zap.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}
	return &Client{
		client:     client,
		flashModel: flashModel,
		proModel:   proModel,
		logger:     logger,
	}, nil
}

func (c *Client) FlashModel() string { return c.flashModel }
func (c *Client) ProModel() string   { return c.proModel }

// GenerateJSON runs a prompt with a constrained JSON response schema and
// returns the raw JSON text for the caller to decode and validate.
func (c *Client) GenerateJSON(ctx context.Context, model, prompt string, schema *genai.Schema) (string, error) {
	resp, err := c.client.Models.GenerateContent(ctx, model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{
			ResponseMIMEType: "application/json",
			ResponseSchema:   schema,
		})
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", model)
	}
	return text, nil
}

// GenerateText runs a free-text prompt, optionally with a system instruction.
func (c *Client) GenerateText(ctx context.Context, model, system, prompt string) (string, error) {
	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}
	resp, err := c.client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generate failed: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("empty response from model %s", model)
	}
	return text, nil
}

// StreamText streams a free-text response, invoking fn for every fragment as
// it arrives, and returns the accumulated full text once the stream ends. An
// error from fn (typically a disconnected client) stops delivery but the
// accumulated text so far is still returned with the error.
func (c *Client) StreamText(ctx context.Context, model, system, prompt string, fn func(fragment string) error) (string, error) {
	var config *genai.GenerateContentConfig
	if system != "" {
		config = &genai.GenerateContentConfig{
			SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		}
	}

	var full string
	for resp, err := range c.client.Models.GenerateContentStream(ctx, model, genai.Text(prompt), config) {
		if err != nil {
			return full, fmt.Errorf("gemini stream failed: %w", err)
		}
		fragment := resp.Text()
		if fragment == "" {
			continue
		}
		full += fragment
		if fn != nil {
			if err := fn(fragment); err != nil {
				return full, fmt.Errorf("stream consumer aborted: %w", err)
			}
		}
	}
	if full == "" {
		return "", fmt.Errorf("empty response from model %s", model)
	}
	return full, nil
}

// StatusCode extracts the upstream HTTP status from a Gemini error, or 0 when
// the error carries none (network failures, decode errors).
func StatusCode(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

// Package agents provides the LLM-backed executors registered into
// the agent directory: planners, searchers, and report writers.
package agents

import (
	"context"
	"fmt"

	"google.golang.org/genai"
)

// LLMClient is the minimal completion contract executors need. Tests
// substitute a canned implementation.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// GenAIClient runs completions against Google's Gemini API.
type GenAIClient struct {
	client *genai.Client
	model  string
}

// NewGenAIClient creates a client for the given model.
func NewGenAIClient(ctx context.Context, apiKey, model string) (*GenAIClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GenAI API key is required")
	}
	if model == "" {
		model = "gemini-2.0-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey: apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &GenAIClient{client: client, model: model}, nil
}

// Complete sends the prompt and returns the response text.
func (c *GenAIClient) Complete(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(prompt, genai.RoleUser),
	}

	result, err := c.client.Models.GenerateContent(ctx, c.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("GenAI completion failed: %w", err)
	}

	text := result.Text()
	if text == "" {
		return "", fmt.Errorf("empty completion from model %s", c.model)
	}
	return text, nil
}

// Model returns the model name in use.
func (c *GenAIClient) Model() string {
	return c.model
}

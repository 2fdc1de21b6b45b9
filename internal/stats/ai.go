// Wrapparr - Plex Year in Review powered by Tautulli
// SPDX-License-Identifier: AGPL-3.0-or-later

package stats

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/wrapparr/wrapparr/internal/config"
)

// aiPlaceholder is stored when summary generation fails; the field is
// never left absent once generation was attempted.
const aiPlaceholder = "AI Summary unavailable (Error generated)."

// defaultInstructions is the system prompt used when the operator has
// not configured one. The configured string is passed through verbatim.
const defaultInstructions = "Analyze the user's Plex statistics and produce a brutally honest /r/roastme-style roast. " +
	"Be mean, dry, and sarcastic. No empathy, no disclaimers, no praise unless it is immediately undercut. " +
	"Treat the stats as evidence of bad habits, questionable taste, avoidance of sleep, commitment issues, " +
	"nostalgia addiction, or fake \"good taste.\" If data is missing, infer something unflattering. " +
	"Write one or two short paragraphs that summarize the user as a person based solely on their viewing behavior. " +
	"No emojis, no self-reference, no moral lessons. Roast choices and habits only, not protected traits. " +
	"The result should be funny, uncomfortable, and very shareable."

// AIClient generates roast summaries through an OpenAI-compatible chat
// completions endpoint. A nil client disables summaries.
type AIClient struct {
	baseURL      string
	apiKey       string
	model        string
	instructions string
	client       *http.Client
}

// NewAIClient creates a summary client, or nil when summaries are
// disabled or unconfigured.
func NewAIClient(cfg *config.AIConfig) *AIClient {
	if !cfg.Enabled || cfg.APIKey == "" {
		return nil
	}
	base := cfg.BaseURL
	if base == "" {
		base = "https://api.openai.com/v1"
	}
	model := cfg.Model
	if model == "" {
		model = "gpt-4o"
	}
	return &AIClient{
		baseURL:      strings.TrimSuffix(base, "/"),
		apiKey:       cfg.APIKey,
		model:        model,
		instructions: cfg.Instructions,
		client:       &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Summarize submits the serialized statistics context and returns the
// generated roast text.
func (c *AIClient) Summarize(ctx context.Context, statsContext string) (string, error) {
	instructions := c.instructions
	if instructions == "" {
		instructions = defaultInstructions
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: instructions},
			{Role: "user", Content: fmt.Sprintf("Here are the user's stats for the year: %s. Write a short summary paragraph.", statsContext)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat endpoint returned status %d: %s", resp.StatusCode, string(snippet))
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode chat response: %w", err)
	}
	if len(parsed.Choices) == 0 || parsed.Choices[0].Message.Content == "" {
		return "", fmt.Errorf("chat endpoint returned no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

package agents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/agilira/go-errors"

	"redqueen/internal/logging"
)

// Provider base URLs, in discovery order.
const (
	baseURLOpenRouter = "https://openrouter.ai/api/v1"
	baseURLNanoGPT    = "https://nano-gpt.com/api/v1"
	baseURLOpenAI     = "https://api.openai.com/v1"
)

// ErrCodeMissingCredentials is returned when no provider key is set.
// Fatal: the run refuses to start without an agent.
const ErrCodeMissingCredentials errors.ErrorCode = "RQ_MISSING_CREDENTIALS"

// LLMClient is the minimal completion surface the agent layer needs.
type LLMClient interface {
	Complete(ctx context.Context, prompt string) (string, error)
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// ProviderConfig identifies an OpenAI-compatible endpoint.
type ProviderConfig struct {
	Name    string
	BaseURL string
	APIKey  string
}

// DiscoverProvider resolves credentials from the environment:
// OPENROUTER_API_KEY, then NANOGPT_API_KEY, then OPENAI_API_KEY.
func DiscoverProvider() (ProviderConfig, error) {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		return ProviderConfig{Name: "OpenRouter", BaseURL: baseURLOpenRouter, APIKey: key}, nil
	}
	if key := os.Getenv("NANOGPT_API_KEY"); key != "" {
		return ProviderConfig{Name: "NanoGPT", BaseURL: baseURLNanoGPT, APIKey: key}, nil
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		return ProviderConfig{Name: "OpenAI", BaseURL: baseURLOpenAI, APIKey: key}, nil
	}
	return ProviderConfig{}, errors.NewWithContext(ErrCodeMissingCredentials,
		"no API key set; export OPENROUTER_API_KEY, NANOGPT_API_KEY or OPENAI_API_KEY",
		map[string]interface{}{
			"checked": []string{"OPENROUTER_API_KEY", "NANOGPT_API_KEY", "OPENAI_API_KEY"},
		})
}

// ChatClient talks to an OpenAI-compatible chat completions endpoint.
type ChatClient struct {
	provider    ProviderConfig
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// ChatConfig holds per-role client settings.
type ChatConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// NewChatClient creates a client for one model role.
func NewChatClient(provider ProviderConfig, cfg ChatConfig) *ChatClient {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2000
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &ChatClient{
		provider:    provider,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Complete sends a prompt and returns the completion.
func (c *ChatClient) Complete(ctx context.Context, prompt string) (string, error) {
	return c.CompleteWithSystem(ctx, "", prompt)
}

// CompleteWithSystem sends a prompt with a system message. Transient
// provider errors (status 401, 429, 500, 502 or 503) get exactly one
// retry after a short pause; other statuses are not retried.
func (c *ChatClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	content, err := c.complete(ctx, systemPrompt, userPrompt)
	if err != nil && isTransient(err) {
		logging.Agents("transient API error, retrying once: %v", err)
		select {
		case <-time.After(2 * time.Second):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		content, err = c.complete(ctx, systemPrompt, userPrompt)
	}
	return content, err
}

func (c *ChatClient) complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if c.provider.APIKey == "" {
		return "", fmt.Errorf("API key not configured")
	}

	messages := make([]chatMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})

	body, err := json.Marshal(chatRequest{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.provider.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.provider.APIKey)

	logging.API("POST %s model=%s", c.provider.BaseURL, c.model)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("API returned status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return parsed.Choices[0].Message.Content, nil
}

// isTransient matches the status codes worth one retry.
func isTransient(err error) bool {
	msg := err.Error()
	for _, code := range []string{"401", "429", "500", "502", "503"} {
		if strings.Contains(msg, "status "+code) {
			return true
		}
	}
	return false
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

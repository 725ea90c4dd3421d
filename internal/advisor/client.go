// Package advisor is the client for the external chat-completion API that
// answers detected questions. The wire schema is owned by the API; this
// package only knows how to send {system prompt, context, question} and get
// a short textual answer back.
package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ihavespoons/seance/internal/config"
	"github.com/ihavespoons/seance/internal/logger"
)

// Every Ask outcome is one of these three. Callers must handle all of them:
// unauthenticated is fatal for the session, transient was already retried,
// bad response means the question stays unanswered.
var (
	ErrUnauthenticated = errors.New("advisor rejected the credential")
	ErrTransient       = errors.New("advisor temporarily unavailable")
	ErrBadResponse     = errors.New("advisor returned a malformed response")
)

// Client calls the chat-completion API with timeout and bounded retry.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	maxTokens  int
	timeout    time.Duration
	maxRetries int
	client     *http.Client
	backoff    time.Duration
}

// NewClient creates a client from the advisor configuration.
func NewClient(cfg config.Advisor) *Client {
	c := &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		baseURL:    cfg.BaseURL,
		maxTokens:  cfg.MaxTokens,
		timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
		maxRetries: cfg.MaxRetries,
		client:     &http.Client{},
		backoff:    time.Second,
	}

	if c.model == "" {
		c.model = "gpt-4o"
	}
	if c.maxTokens == 0 {
		c.maxTokens = 500
	}
	if c.baseURL == "" {
		c.baseURL = "https://api.openai.com/v1/chat/completions"
	}
	if c.timeout == 0 {
		c.timeout = 30 * time.Second
	}

	return c
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model
}

// Ask sends the question with its context window to the advisor and returns
// the answer text. Transient failures are retried with backoff up to the
// configured count; credential and parse failures are never retried.
func (c *Client) Ask(ctx context.Context, systemPrompt, contextText, question string) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: no API key configured", ErrUnauthenticated)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Warn().
				Int("attempt", attempt).
				Err(lastErr).
				Msg("Retrying advisor request")
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", ErrTransient, ctx.Err())
			case <-time.After(c.backoff << (attempt - 1)):
			}
		}

		answer, err := c.ask(ctx, systemPrompt, contextText, question)
		if err == nil {
			return answer, nil
		}
		if errors.Is(err, ErrUnauthenticated) || errors.Is(err, ErrBadResponse) {
			return "", err
		}
		lastErr = err
	}

	return "", lastErr
}

func (c *Client) ask(ctx context.Context, systemPrompt, contextText, question string) (string, error) {
	userMessage := fmt.Sprintf(
		"CONTEXT (recent terminal output):\n%s\n\nQUESTION:\n%s\n\nProvide a direct, actionable response.",
		contextText, question,
	)

	apiReq := chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: userMessage},
		},
		MaxTokens:   c.maxTokens,
		Temperature: 0.7,
	}

	reqBody, err := json.Marshal(apiReq)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL, bytes.NewReader(reqBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrTransient, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrTransient, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", fmt.Errorf("%w: %s", ErrUnauthenticated, apiErrorMessage(resp.StatusCode, body))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: %s", ErrTransient, apiErrorMessage(resp.StatusCode, body))
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: %s", ErrBadResponse, apiErrorMessage(resp.StatusCode, body))
	}

	var apiResp chatResponse
	if err := json.Unmarshal(body, &apiResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", ErrBadResponse)
	}

	answer := apiResp.Choices[0].Message.Content
	if answer == "" {
		return "", fmt.Errorf("%w: no content in response", ErrBadResponse)
	}

	return answer, nil
}

func apiErrorMessage(status int, body []byte) string {
	var errResp chatErrorResponse
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		return fmt.Sprintf("API error (%d): %s", status, errResp.Error.Message)
	}
	return fmt.Sprintf("API error (%d)", status)
}

// chatRequest represents the API request structure.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// chatMessage represents a message in the conversation.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse represents the API response structure.
type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   chatUsage    `json:"usage"`
}

type chatChoice struct {
	Index        int         `json:"index"`
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// chatErrorResponse represents an API error response.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Package openai talks to an OpenAI compatible chat completions endpoint
// for vegetation vision analysis and risk message enhancement.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	"github.com/couchcryptid/coastal-risk-service/internal/domain"
	"github.com/couchcryptid/coastal-risk-service/internal/retry"
)

// Client sends chat completion requests.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	retry      retry.Config
	logger     *slog.Logger
}

// NewClient creates a client for baseURL, e.g. https://api.openai.com/v1.
// Per call deadlines come from the caller's context.
func NewClient(apiKey, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		retry:      retry.DefaultConfig(),
		logger:     logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

// chatMessage content is either a string or a list of contentParts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL    string `json:"url"`
	Detail string `json:"detail,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete returns the trimmed content of the first choice. Rate limits and
// server errors are retried.
func (c *Client) complete(ctx context.Context, req chatRequest) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("encode chat request: %w", err)
	}

	var content string
	err = retry.Do(ctx, c.retry, c.logger, "openai "+req.Model, func(ctx context.Context) error {
		var postErr error
		content, postErr = c.post(ctx, body)
		return postErr
	})
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrCollaborator, err)
	}
	return content, nil
}

func (c *Client) post(ctx context.Context, body []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("chat completion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		err := fmt.Errorf("openai API error: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", retry.Transient(err)
		}
		return "", err
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", errors.New("openai API returned no choices")
	}
	return strings.TrimSpace(out.Choices[0].Message.Content), nil
}

var jsonObject = regexp.MustCompile(`(?s)\{.*\}`)

// extractJSON decodes the outermost {...} span of text into v.
func extractJSON(text string, v any) error {
	span := jsonObject.FindString(text)
	if span == "" {
		return errors.New("no JSON object in reply")
	}
	return json.Unmarshal([]byte(span), v)
}

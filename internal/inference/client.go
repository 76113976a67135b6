// Package inference is the single external model boundary: one HTTP JSON
// chat-completion shape. The core depends only on this shape, not on any
// particular inference backend behind it.
package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// #region types
// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}
// #endregion types

// #region client
// Client wraps the HTTP connection to the model-inference endpoint.
type Client struct {
	baseURL string
	model   string
	httpc   *http.Client
}

// NewClient creates a client for the given endpoint and model tag.
func NewClient(baseURL, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		model:   model,
		httpc:   &http.Client{Timeout: timeout},
	}
}

// NewClientWithHTTP creates a Client with an injected *http.Client.
// Used for testing against httptest servers.
func NewClientWithHTTP(baseURL, model string, httpc *http.Client) *Client {
	return &Client{baseURL: baseURL, model: model, httpc: httpc}
}
// #endregion client

// #region chat
// Chat posts one completion request and returns the message content.
func (c *Client) Chat(ctx context.Context, messages []Message, options map[string]any) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:    c.model,
		Messages: messages,
		Options:  options,
	})
	if err != nil {
		return "", fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("chat request: status %d: %s", resp.StatusCode, string(b))
	}

	var out chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode chat response: %w", err)
	}
	return out.Message.Content, nil
}
// #endregion chat

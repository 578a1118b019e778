// Package litellm implements the provider port against a LiteLLM proxy (or
// any OpenAI-compatible chat completions endpoint) using SSE streaming.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/pagecraft/pagecraft/internal/port/provider"
	"github.com/pagecraft/pagecraft/internal/resilience"
)

// Client opens streaming chat completions against the proxy.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a provider client. The http.Client carries no timeout;
// streams are bounded by the request context.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{},
	}
}

// SetBreaker attaches a circuit breaker guarding stream establishment.
// Once a stream is open, reading it is not covered by the breaker.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

// chatRequest is the OpenAI-compatible request body.
type chatRequest struct {
	Model     string                 `json:"model"`
	Messages  []provider.ChatMessage `json:"messages"`
	Tools     []toolWrapper          `json:"tools,omitempty"`
	Stream    bool                   `json:"stream"`
	SessionID string                 `json:"session_id,omitempty"`
}

// toolWrapper is the OpenAI "type":"function" envelope.
type toolWrapper struct {
	Type     string                  `json:"type"`
	Function provider.ToolDefinition `json:"function"`
}

// Stream posts the request with stream=true and returns a provider.Stream
// over the SSE response.
func (c *Client) Stream(ctx context.Context, req *provider.Request) (provider.Stream, error) {
	body := chatRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		Stream:    true,
		SessionID: req.ResumeToken,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, toolWrapper{Type: "function", Function: t})
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	var resp *http.Response
	open := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "text/event-stream")
		if c.apiKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		}

		r, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		if r.StatusCode >= 400 {
			errBody, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			_ = r.Body.Close()
			return fmt.Errorf("provider API error %d: %s", r.StatusCode, string(errBody))
		}
		resp = r
		return nil
	}

	if c.breaker != nil {
		err = c.breaker.Execute(open)
	} else {
		err = open()
	}
	if err != nil {
		return nil, err
	}

	return newSSEStream(resp.Body), nil
}

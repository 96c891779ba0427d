// Package ai connects scorekeeper to a generative model (the Gemini
// generateContent REST API) for natural-language rule parsing and the
// formula chat assistant.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/types"
)

// maxResponseBytes bounds the body read from the model endpoint.
const maxResponseBytes = 1 << 20

// Generator produces a completion for a single prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Client calls generateContent for one model. Safe for concurrent use.
type Client struct {
	baseURL    string
	model      string
	apiKey     string
	timeout    time.Duration
	maxRetries int
	http       *http.Client
	logger     zerolog.Logger
}

// NewClient builds a client from configuration. Returns ErrAIUnavailable when
// no API key is configured.
func NewClient(cfg config.AIConfig, logger zerolog.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, types.ErrAIUnavailable
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		timeout:    cfg.Timeout,
		maxRetries: 2,
		http: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        16,
				MaxIdleConnsPerHost: 16,
				IdleConnTimeout:     90 * time.Second,
				ForceAttemptHTTP2:   true,
			},
		},
		logger: logger,
	}, nil
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (c *Client) endpoint() string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.baseURL, url.PathEscape(c.model))
}

// Generate sends prompt and returns the concatenated text of the first
// candidate. Transient failures (429, 5xx, transport errors) are retried
// with exponential backoff inside the configured timeout.
func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %v", types.ErrAIRequestFailed, err)
	}

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<(attempt-1)) * 250 * time.Millisecond
			c.logger.Debug().Int("attempt", attempt).Dur("backoff", backoff).Err(lastErr).Msg("retrying generateContent")
			select {
			case <-ctx.Done():
				return "", fmt.Errorf("%w: %v", types.ErrAIRequestFailed, ctx.Err())
			case <-time.After(backoff):
			}
		}

		text, retry, err := c.do(ctx, body)
		if err == nil {
			return text, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	c.logger.Warn().Err(lastErr).Str("model", c.model).Msg("generateContent failed")
	return "", lastErr
}

// do performs one request and reports whether a failure is retryable.
func (c *Client) do(ctx context.Context, body []byte) (string, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(), bytes.NewReader(body))
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", types.ErrAIRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", ctx.Err() == nil, fmt.Errorf("%w: %v", types.ErrAIRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", true, fmt.Errorf("%w: read response: %v", types.ErrAIRequestFailed, err)
	}

	c.logger.Debug().
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Int("bytes", len(data)).
		Msg("generateContent response")

	var out generateResponse
	decodeErr := json.Unmarshal(data, &out)

	if resp.StatusCode != http.StatusOK {
		msg := http.StatusText(resp.StatusCode)
		if decodeErr == nil && out.Error != nil && out.Error.Message != "" {
			msg = out.Error.Message
		}
		retry := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return "", retry, fmt.Errorf("%w: status %d: %s", types.ErrAIRequestFailed, resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return "", false, fmt.Errorf("%w: %v", types.ErrAIResponseInvalid, decodeErr)
	}
	if len(out.Candidates) == 0 {
		return "", false, fmt.Errorf("%w: no candidates", types.ErrAIResponseInvalid)
	}

	var b strings.Builder
	for _, p := range out.Candidates[0].Content.Parts {
		b.WriteString(p.Text)
	}
	text := strings.TrimSpace(b.String())
	if text == "" {
		return "", false, fmt.Errorf("%w: empty completion (finish reason %s)", types.ErrAIResponseInvalid, out.Candidates[0].FinishReason)
	}
	return text, false, nil
}

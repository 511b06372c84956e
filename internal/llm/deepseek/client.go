// Package deepseek is the reasoning provider client. It speaks the
// OpenAI-compatible chat completions API and keeps the native
// reasoning_content field, including whether it was present at all.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"reasongate-gateway/internal/llm"
)

const (
	ProviderName   = "deepseek"
	DefaultBaseURL = "https://api.deepseek.com"
	DefaultModel   = "deepseek-reasoner"

	maxRequestSize = 2 * 1024 * 1024 // 2MB total JSON payload
	maxMessageSize = 512 * 1024      // 512KB per message content

	completionsPath = "/chat/completions"
)

type Client struct {
	cfg        llm.ClientConfig
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	retrier    llm.Retrier
}

var _ llm.Provider = (*Client)(nil)

// New builds a client bound to apiKey.
func New(cfg llm.ClientConfig, apiKey string, logger *zap.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("deepseek: invalid config: %w", err)
	}
	if apiKey == "" {
		return nil, errors.New("deepseek: api key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named(ProviderName)

	return &Client{
		cfg:        cfg,
		apiKey:     apiKey,
		httpClient: llm.NewHTTPClient(cfg, nil),
		logger:     logger,
		retrier: llm.Retrier{
			MaxRetries:  cfg.MaxRetries,
			BaseBackoff: cfg.BaseBackoff,
			Logger:      logger,
		},
	}, nil
}

// NewFactory validates cfg once and returns a Factory that shares one
// pooled HTTP client between all per-request instances.
func NewFactory(cfg llm.ClientConfig, logger *zap.Logger) (llm.Factory, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("deepseek: invalid config: %w", err)
	}
	cfg.HTTPClient = llm.NewHTTPClient(cfg, nil)

	return func(apiKey string) (llm.Provider, error) {
		return New(cfg, apiKey, logger)
	}, nil
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) buildRequest(messages []llm.Message, rc llm.RequestConfig, stream bool) ([]byte, error) {
	if len(messages) == 0 {
		return nil, errors.New("messages must not be empty")
	}
	if err := rc.Validate(); err != nil {
		return nil, err
	}

	wire := make([]wireMessage, 0, len(messages))
	for i, m := range messages {
		if len(m.Content) > maxMessageSize {
			return nil, fmt.Errorf("message[%d] content too large (%d bytes, max %d)",
				i, len(m.Content), maxMessageSize)
		}
		wire = append(wire, wireMessage{Role: string(m.Role), Content: m.Content})
	}

	pReq := providerChatRequest{
		Model:       c.cfg.Model,
		Messages:    wire,
		Temperature: rc.Temperature,
		TopP:        rc.TopP,
		MaxTokens:   rc.MaxTokensOrDefault(),
		Stream:      stream,
	}
	if stream {
		pReq.StreamOptions = &streamOptions{IncludeUsage: true}
	}

	body, err := json.Marshal(pReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	if len(body) > maxRequestSize {
		return nil, fmt.Errorf("request too large (%d bytes, max %d)", len(body), maxRequestSize)
	}
	return body, nil
}

// send posts body with connect retries and turns non-2xx replies into
// UpstreamErrors. The caller owns the returned body.
func (c *Client) send(ctx context.Context, body []byte, stream bool) (*http.Response, error) {
	url := c.cfg.BaseURL + completionsPath

	doOnce := func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build HTTP request: %w", err)
		}
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set("Content-Type", "application/json")
		if stream {
			httpReq.Header.Set("Accept", "text/event-stream")
		}
		return c.httpClient.Do(httpReq)
	}

	resp, err := c.retrier.Do(ctx, doOnce)
	if err != nil {
		return nil, llm.NewUpstreamError(ProviderName, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer resp.Body.Close()
		return nil, c.statusError(resp)
	}
	return resp, nil
}

func (c *Client) statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))

	var perr providerErrorResponse
	if err := json.Unmarshal(body, &perr); err == nil && perr.Error.Message != "" {
		c.logger.Error("provider error",
			zap.Int("status", resp.StatusCode),
			zap.String("error_type", perr.Error.Type),
			zap.String("error_message", perr.Error.Message),
		)
		return llm.StatusError(ProviderName, resp.StatusCode, perr.Error.Message)
	}

	c.logger.Error("upstream error",
		zap.Int("status", resp.StatusCode),
		zap.String("body", truncate(string(body), 200)),
	)
	return llm.StatusError(ProviderName, resp.StatusCode, truncate(strings.TrimSpace(string(body)), 200))
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Package gemini adapts the Gemini generateContent API to llm.Provider.
// Gemini has no typed stream events, so its responses are translated into
// content_block_delta chunks followed by one message_delta carrying usage.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"reasongate-gateway/internal/llm"
)

const (
	ProviderName   = "gemini"
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"
)

type Client struct {
	client *genai.Client
	cfg    llm.ClientConfig
	logger *zap.Logger
}

var _ llm.Provider = (*Client)(nil)

// New builds a client bound to apiKey.
func New(ctx context.Context, cfg llm.ClientConfig, apiKey string, logger *zap.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gemini: invalid config: %w", err)
	}
	if apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  llm.NewHTTPClient(cfg, nil),
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL + "/"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create google client: %w", err)
	}

	return &Client{client: client, cfg: cfg, logger: logger.Named(ProviderName)}, nil
}

// NewFactory validates cfg once and shares one pooled HTTP client between
// all per-request instances.
func NewFactory(cfg llm.ClientConfig, logger *zap.Logger) (llm.Factory, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("gemini: invalid config: %w", err)
	}
	cfg.HTTPClient = llm.NewHTTPClient(cfg, nil)

	return func(apiKey string) (llm.Provider, error) {
		return New(context.Background(), cfg, apiKey, logger)
	}, nil
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) Complete(parentCtx context.Context, messages []llm.Message, rc llm.RequestConfig) (*llm.Completion, error) {
	contents, config, err := buildRequest(messages, rc)
	if err != nil {
		return nil, fmt.Errorf("gemini: invalid request: %w", err)
	}

	ctx, cancel := llm.WithUpstreamTimeout(parentCtx, c.cfg)
	defer cancel()

	resp, err := c.client.Models.GenerateContent(ctx, c.cfg.Model, contents, config)
	if err != nil {
		c.logger.Error("request failed", zap.Error(err))
		return nil, upstreamError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return nil, &llm.UpstreamError{Provider: ProviderName, Message: "google returned no candidates"}
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return nil, llm.NewUpstreamError(ProviderName, fmt.Errorf("encode raw response: %w", err))
	}

	out := &llm.Completion{
		Usage: usageOf(resp),
		Raw: llm.RawResponse{
			Status:  http.StatusOK,
			Headers: map[string]string{},
			Body:    body,
		},
	}
	if text := textOf(resp); text != "" {
		out.Content = []llm.ContentBlock{llm.TextBlock(text)}
	}

	c.logger.Info("request completed",
		zap.String("model", c.cfg.Model),
		zap.Int("content_blocks", len(out.Content)),
	)
	return out, nil
}

func (c *Client) StreamChat(parentCtx context.Context, messages []llm.Message, rc llm.RequestConfig) (<-chan llm.StreamResult, error) {
	contents, config, err := buildRequest(messages, rc)
	if err != nil {
		return nil, fmt.Errorf("gemini: invalid request: %w", err)
	}

	ctx, cancel := llm.WithUpstreamTimeout(parentCtx, c.cfg)
	results := make(chan llm.StreamResult, 16)

	go func() {
		defer close(results)
		defer cancel()

		// Sends stop only once parentCtx ends; ctx may already have expired.
		send := func(r llm.StreamResult) bool {
			select {
			case <-parentCtx.Done():
				return false
			case results <- r:
				return true
			}
		}

		// interrupted reports whether ctx has ended, delivering a timeout
		// error when the consumer is still waiting.
		interrupted := func() bool {
			if ctx.Err() == nil {
				return false
			}
			err := llm.StreamTimeout(ProviderName, parentCtx, ctx)
			if err == nil {
				c.logger.Debug("stream cancelled", zap.Error(ctx.Err()))
				return true
			}
			c.logger.Warn("stream timed out", zap.Duration("timeout", c.cfg.UpstreamTimeout))
			send(llm.StreamResult{Err: err})
			return true
		}

		var last *llm.Usage
		for resp, err := range c.client.Models.GenerateContentStream(ctx, c.cfg.Model, contents, config) {
			if err != nil {
				if interrupted() {
					return
				}
				c.logger.Error("stream failed", zap.Error(err))
				send(llm.StreamResult{Err: upstreamError(err)})
				return
			}

			if u := usageOf(resp); u != nil {
				last = u
			}
			text := textOf(resp)
			if text == "" {
				continue
			}
			chunk := &llm.StreamChunk{
				Kind:  llm.EventContentDelta,
				Delta: llm.ContentBlock{Type: llm.BlockTextDelta, Text: text},
			}
			if !send(llm.StreamResult{Chunk: chunk}) {
				return
			}
		}
		if interrupted() {
			return
		}

		if last != nil {
			send(llm.StreamResult{Chunk: &llm.StreamChunk{Kind: llm.EventMessageDelta, Usage: last}})
		}
	}()

	return results, nil
}

// buildRequest maps system messages to the system instruction and the
// assistant role to Gemini's model role.
func buildRequest(messages []llm.Message, rc llm.RequestConfig) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	if err := rc.Validate(); err != nil {
		return nil, nil, err
	}

	system, rest := llm.SplitSystem(messages)
	if len(rest) == 0 {
		return nil, nil, errors.New("messages must not be empty")
	}

	contents := make([]*genai.Content, 0, len(rest))
	for _, m := range rest {
		role := genai.Role(genai.RoleUser)
		if m.Role == llm.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}

	config := &genai.GenerateContentConfig{
		MaxOutputTokens: int32(rc.MaxTokensOrDefault()),
	}
	if rc.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*rc.Temperature))
	}
	if rc.TopP != nil {
		config.TopP = genai.Ptr(float32(*rc.TopP))
	}
	if system != "" {
		config.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return contents, config, nil
}

func textOf(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var content string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			content += part.Text
		}
	}
	return content
}

func usageOf(resp *genai.GenerateContentResponse) *llm.Usage {
	if resp == nil || resp.UsageMetadata == nil {
		return nil
	}
	m := resp.UsageMetadata
	u := &llm.Usage{
		InputTokens:  uint32(m.PromptTokenCount),
		OutputTokens: uint32(m.CandidatesTokenCount),
		TotalTokens:  uint32(m.TotalTokenCount),
	}
	if u.TotalTokens == 0 {
		u.TotalTokens = u.InputTokens + u.OutputTokens
	}
	return u
}

func upstreamError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &llm.UpstreamError{Provider: ProviderName, Message: apiErr.Message, Code: apiErr.Code, Err: err}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return &llm.UpstreamError{Provider: ProviderName, Message: apiErrPtr.Message, Code: apiErrPtr.Code, Err: err}
	}
	return llm.NewUpstreamError(ProviderName, err)
}

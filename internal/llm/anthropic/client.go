// Package anthropic adapts the Anthropic Messages API to llm.Provider.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"reasongate-gateway/internal/llm"
)

const (
	ProviderName   = "anthropic"
	DefaultBaseURL = "https://api.anthropic.com"
	DefaultModel   = "claude-sonnet-4-20250514"
)

type Client struct {
	client anthropic.Client
	cfg    llm.ClientConfig
	logger *zap.Logger
}

var _ llm.Provider = (*Client)(nil)

// New builds a client bound to apiKey. SDK-level retries cover the connect
// phase only; a stream that fails midway is not retried.
func New(cfg llm.ClientConfig, apiKey string, logger *zap.Logger) (*Client, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("anthropic: invalid config: %w", err)
	}
	if apiKey == "" {
		return nil, errors.New("anthropic API key is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client := anthropic.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithHTTPClient(llm.NewHTTPClient(cfg, nil)),
		option.WithMaxRetries(cfg.MaxRetries),
	)

	return &Client{client: client, cfg: cfg, logger: logger.Named(ProviderName)}, nil
}

// NewFactory validates cfg once and shares one pooled HTTP client between
// all per-request instances.
func NewFactory(cfg llm.ClientConfig, logger *zap.Logger) (llm.Factory, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("anthropic: invalid config: %w", err)
	}
	cfg.HTTPClient = llm.NewHTTPClient(cfg, nil)

	return func(apiKey string) (llm.Provider, error) {
		return New(cfg, apiKey, logger)
	}, nil
}

func (c *Client) Name() string { return ProviderName }

func (c *Client) params(messages []llm.Message, rc llm.RequestConfig) (anthropic.MessageNewParams, error) {
	if err := rc.Validate(); err != nil {
		return anthropic.MessageNewParams{}, err
	}

	system, rest := llm.SplitSystem(messages)
	if len(rest) == 0 {
		return anthropic.MessageNewParams{}, errors.New("messages must not be empty")
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(c.cfg.Model),
		MaxTokens: int64(rc.MaxTokensOrDefault()),
		Messages:  make([]anthropic.MessageParam, 0, len(rest)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if rc.Temperature != nil {
		params.Temperature = anthropic.Float(*rc.Temperature)
	}
	if rc.TopP != nil {
		params.TopP = anthropic.Float(*rc.TopP)
	}

	for _, m := range rest {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case llm.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	return params, nil
}

func (c *Client) Complete(parentCtx context.Context, messages []llm.Message, rc llm.RequestConfig) (*llm.Completion, error) {
	params, err := c.params(messages, rc)
	if err != nil {
		return nil, fmt.Errorf("anthropic: invalid request: %w", err)
	}

	ctx, cancel := llm.WithUpstreamTimeout(parentCtx, c.cfg)
	defer cancel()

	var httpResp *http.Response
	msg, err := c.client.Messages.New(ctx, params, option.WithResponseInto(&httpResp))
	if err != nil {
		c.logger.Error("request failed", zap.Error(err))
		return nil, upstreamError(err)
	}

	out := &llm.Completion{
		Content: contentBlocks(msg.Content),
		Usage: &llm.Usage{
			InputTokens:  uint32(msg.Usage.InputTokens),
			OutputTokens: uint32(msg.Usage.OutputTokens),
			TotalTokens:  uint32(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
		Raw: llm.RawResponse{
			Status: http.StatusOK,
			Body:   json.RawMessage(msg.RawJSON()),
		},
	}
	if httpResp != nil {
		out.Raw.Status = httpResp.StatusCode
		out.Raw.Headers = llm.FlattenHeaders(httpResp.Header)
	}

	c.logger.Info("request completed",
		zap.String("model", string(msg.Model)),
		zap.Int64("input_tokens", msg.Usage.InputTokens),
		zap.Int64("output_tokens", msg.Usage.OutputTokens),
	)
	return out, nil
}

// StreamChat relays message_start, content_block_delta and message_delta
// events. Input tokens arrive on message_start and are folded into the usage
// of the final message_delta.
func (c *Client) StreamChat(parentCtx context.Context, messages []llm.Message, rc llm.RequestConfig) (<-chan llm.StreamResult, error) {
	params, err := c.params(messages, rc)
	if err != nil {
		return nil, fmt.Errorf("anthropic: invalid request: %w", err)
	}

	ctx, cancel := llm.WithUpstreamTimeout(parentCtx, c.cfg)
	stream := c.client.Messages.NewStreaming(ctx, params)

	results := make(chan llm.StreamResult, 16)

	go func() {
		defer close(results)
		defer cancel()
		defer stream.Close()

		// Sends stop only once parentCtx ends; ctx may already have expired.
		send := func(r llm.StreamResult) bool {
			select {
			case <-parentCtx.Done():
				return false
			case results <- r:
				return true
			}
		}

		var inputTokens int64
		for stream.Next() {
			var chunk *llm.StreamChunk

			switch e := stream.Current().AsAny().(type) {
			case anthropic.MessageStartEvent:
				inputTokens = e.Message.Usage.InputTokens
				chunk = &llm.StreamChunk{
					Kind:    llm.EventMessageStart,
					Content: contentBlocks(e.Message.Content),
				}
			case anthropic.ContentBlockDeltaEvent:
				chunk = &llm.StreamChunk{
					Kind:  llm.EventContentDelta,
					Delta: llm.ContentBlock{Type: string(e.Delta.Type), Text: e.Delta.Text},
				}
			case anthropic.MessageDeltaEvent:
				chunk = &llm.StreamChunk{
					Kind: llm.EventMessageDelta,
					Usage: &llm.Usage{
						InputTokens:  uint32(inputTokens),
						OutputTokens: uint32(e.Usage.OutputTokens),
						TotalTokens:  uint32(inputTokens + e.Usage.OutputTokens),
					},
				}
			default:
				continue
			}

			if !send(llm.StreamResult{Chunk: chunk}) {
				return
			}
		}

		if err := llm.StreamTimeout(ProviderName, parentCtx, ctx); err != nil {
			c.logger.Warn("stream timed out", zap.Duration("timeout", c.cfg.UpstreamTimeout))
			send(llm.StreamResult{Err: err})
			return
		}
		if err := stream.Err(); err != nil {
			if ctx.Err() != nil {
				c.logger.Debug("stream cancelled", zap.Error(ctx.Err()))
				return
			}
			c.logger.Error("stream failed", zap.Error(err))
			send(llm.StreamResult{Err: upstreamError(err)})
		}
	}()

	return results, nil
}

func contentBlocks(blocks []anthropic.ContentBlockUnion) []llm.ContentBlock {
	out := make([]llm.ContentBlock, 0, len(blocks))
	for _, b := range blocks {
		if b.Type != llm.BlockText {
			continue
		}
		out = append(out, llm.ContentBlock{Type: string(b.Type), Text: b.Text})
	}
	return out
}

func upstreamError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &llm.UpstreamError{
			Provider: ProviderName,
			Message:  apiErr.Error(),
			Code:     apiErr.StatusCode,
			Err:      err,
		}
	}
	return llm.NewUpstreamError(ProviderName, err)
}

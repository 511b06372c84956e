package deepseek

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"reasongate-gateway/internal/llm"
)

func (c *Client) Complete(parentCtx context.Context, messages []llm.Message, rc llm.RequestConfig) (*llm.Completion, error) {
	start := time.Now()

	body, err := c.buildRequest(messages, rc, false)
	if err != nil {
		return nil, fmt.Errorf("deepseek: invalid request: %w", err)
	}

	c.logger.Debug("request starting",
		zap.String("model", c.cfg.Model),
		zap.Int("message_count", len(messages)),
	)

	ctx, cancel := llm.WithUpstreamTimeout(parentCtx, c.cfg)
	defer cancel()

	resp, err := c.send(ctx, body, false)
	if err != nil {
		c.logger.Error("request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, llm.NewUpstreamError(ProviderName, fmt.Errorf("read response: %w", err))
	}

	var pResp providerChatResponse
	if err := json.Unmarshal(raw, &pResp); err != nil {
		return nil, llm.NewUpstreamError(ProviderName, fmt.Errorf("decode response: %w", err))
	}

	if len(pResp.Choices) == 0 {
		c.logger.Error("provider returned no choices", zap.String("model", pResp.Model))
		return nil, &llm.UpstreamError{Provider: ProviderName, Message: "provider returned no choices"}
	}

	msg := pResp.Choices[0].Message
	out := &llm.Completion{
		Reasoning: msg.ReasoningContent,
		Usage:     pResp.Usage.normalize(),
		Raw: llm.RawResponse{
			Status:  resp.StatusCode,
			Headers: llm.FlattenHeaders(resp.Header),
			Body:    json.RawMessage(raw),
		},
	}
	if msg.Content != "" {
		out.Content = []llm.ContentBlock{llm.TextBlock(msg.Content)}
	}

	fields := []zap.Field{
		zap.String("model", pResp.Model),
		zap.Bool("has_reasoning", msg.ReasoningContent != nil),
		zap.Duration("duration", time.Since(start)),
	}
	if out.Usage != nil {
		fields = append(fields,
			zap.Uint32("input_tokens", out.Usage.InputTokens),
			zap.Uint32("output_tokens", out.Usage.OutputTokens),
			zap.Uint32("reasoning_tokens", out.Usage.ReasoningTokens),
		)
	}
	c.logger.Info("request completed", fields...)

	return out, nil
}

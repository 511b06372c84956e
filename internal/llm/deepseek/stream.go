package deepseek

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"go.uber.org/zap"

	"reasongate-gateway/internal/llm"
)

// StreamChat connects synchronously so that a failure to open the stream is
// returned directly; chunks are then read on a background goroutine.
func (c *Client) StreamChat(parentCtx context.Context, messages []llm.Message, rc llm.RequestConfig) (<-chan llm.StreamResult, error) {
	body, err := c.buildRequest(messages, rc, true)
	if err != nil {
		return nil, fmt.Errorf("deepseek: invalid request: %w", err)
	}

	c.logger.Debug("stream request starting",
		zap.String("model", c.cfg.Model),
		zap.Int("message_count", len(messages)),
	)

	ctx, cancel := llm.WithUpstreamTimeout(parentCtx, c.cfg)

	// Connect with retries (no mid-stream retries)
	resp, err := c.send(ctx, body, true)
	if err != nil {
		cancel()
		c.logger.Error("stream connect failed",
			zap.String("model", c.cfg.Model),
			zap.Error(err),
		)
		return nil, err
	}

	results := make(chan llm.StreamResult, 16)

	go func() {
		defer close(results)
		defer cancel()
		defer resp.Body.Close()

		// Sends stop only once parentCtx ends; ctx may already have expired.
		send := func(r llm.StreamResult) bool {
			select {
			case <-parentCtx.Done():
				return false
			case results <- r:
				return true
			}
		}
		interrupted := func(chunks int) {
			err := llm.StreamTimeout(ProviderName, parentCtx, ctx)
			if err == nil {
				c.logger.Debug("stream cancelled", zap.Int("chunks", chunks))
				return
			}
			c.logger.Warn("stream timed out", zap.Int("chunks", chunks), zap.Duration("timeout", c.cfg.UpstreamTimeout))
			send(llm.StreamResult{Err: err})
		}

		reader := bufio.NewReader(resp.Body)
		chunkCount := 0

		for {
			if ctx.Err() != nil {
				interrupted(chunkCount)
				return
			}

			line, err := reader.ReadBytes('\n')
			if err != nil {
				if ctx.Err() != nil {
					interrupted(chunkCount)
					return
				}
				if err == io.EOF {
					// Normal end of stream without explicit [DONE]
					c.logger.Debug("stream completed (EOF)", zap.Int("chunks", chunkCount))
					return
				}
				send(llm.StreamResult{Err: llm.NewUpstreamError(ProviderName, fmt.Errorf("read stream line: %w", err))})
				return
			}

			line = bytes.TrimSpace(line)
			if len(line) == 0 {
				continue
			}

			const prefix = "data:"
			if !bytes.HasPrefix(line, []byte(prefix)) {
				// Ignore non-data SSE lines
				continue
			}

			payload := bytes.TrimSpace(line[len(prefix):])

			// End-of-stream sentinel from provider
			if bytes.Equal(payload, []byte("[DONE]")) {
				c.logger.Debug("stream received [DONE]", zap.Int("chunks", chunkCount))
				return
			}

			var chunk providerStreamChunk
			if err := json.Unmarshal(payload, &chunk); err != nil {
				send(llm.StreamResult{Err: llm.NewUpstreamError(ProviderName, fmt.Errorf("unmarshal stream chunk: %w", err))})
				return
			}

			chunkCount++
			if !send(llm.StreamResult{Chunk: chunk.toChunk()}) {
				c.logger.Debug("stream cancelled while sending chunk", zap.Int("chunks", chunkCount))
				return
			}
		}
	}()

	return results, nil
}

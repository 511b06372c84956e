package deepseek

import "reasongate-gateway/internal/llm"

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// Request shape we send to upstream (OpenAI-compatible).
type providerChatRequest struct {
	Model         string         `json:"model"`
	Messages      []wireMessage  `json:"messages"`
	Temperature   *float64       `json:"temperature,omitempty"`
	TopP          *float64       `json:"top_p,omitempty"`
	MaxTokens     int            `json:"max_tokens,omitempty"`
	Stream        bool           `json:"stream,omitempty"`
	StreamOptions *streamOptions `json:"stream_options,omitempty"`
}

type providerMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
	// nil when the field is missing or null.
	ReasoningContent *string `json:"reasoning_content"`
}

// Choice for non-streaming responses.
type providerChatChoice struct {
	Index        int             `json:"index"`
	Message      providerMessage `json:"message"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type providerUsage struct {
	PromptTokens          uint32 `json:"prompt_tokens"`
	CompletionTokens      uint32 `json:"completion_tokens"`
	TotalTokens           uint32 `json:"total_tokens"`
	PromptCacheHitTokens  uint32 `json:"prompt_cache_hit_tokens"`
	PromptCacheMissTokens uint32 `json:"prompt_cache_miss_tokens"`
	PromptTokensDetails   *struct {
		CachedTokens uint32 `json:"cached_tokens"`
	} `json:"prompt_tokens_details,omitempty"`
	CompletionTokensDetails *struct {
		ReasoningTokens uint32 `json:"reasoning_tokens"`
	} `json:"completion_tokens_details,omitempty"`
}

// normalize maps the upstream usage record, preferring DeepSeek's native
// cache-hit counter over the OpenAI-style details block.
func (u *providerUsage) normalize() *llm.Usage {
	if u == nil {
		return nil
	}
	out := &llm.Usage{
		InputTokens:       u.PromptTokens,
		OutputTokens:      u.CompletionTokens,
		TotalTokens:       u.TotalTokens,
		CachedInputTokens: u.PromptCacheHitTokens,
	}
	if out.CachedInputTokens == 0 && u.PromptTokensDetails != nil {
		out.CachedInputTokens = u.PromptTokensDetails.CachedTokens
	}
	if u.CompletionTokensDetails != nil {
		out.ReasoningTokens = u.CompletionTokensDetails.ReasoningTokens
	}
	if out.TotalTokens == 0 {
		out.TotalTokens = out.InputTokens + out.OutputTokens
	}
	return out
}

type providerChatResponse struct {
	ID      string               `json:"id"`
	Object  string               `json:"object"`
	Created int64                `json:"created"`
	Model   string               `json:"model"`
	Choices []providerChatChoice `json:"choices"`
	Usage   *providerUsage       `json:"usage,omitempty"`
}

type providerErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

type providerStreamDelta struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content,omitempty"`
	// nil when the field is missing or null; that marks the end of reasoning.
	ReasoningContent *string `json:"reasoning_content"`
}

// Chunk shape for streaming responses (each SSE "data:" event).
type providerStreamChunk struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int                 `json:"index"`
		Delta        providerStreamDelta `json:"delta"`
		FinishReason string              `json:"finish_reason,omitempty"`
	} `json:"choices"`
	Usage *providerUsage `json:"usage,omitempty"`
}

// toChunk converts a wire chunk. A chunk without choices becomes a
// message_delta that only carries usage.
func (c *providerStreamChunk) toChunk() *llm.StreamChunk {
	if len(c.Choices) == 0 {
		return &llm.StreamChunk{Kind: llm.EventMessageDelta, Usage: c.Usage.normalize()}
	}
	delta := c.Choices[0].Delta
	return &llm.StreamChunk{
		Kind:      llm.EventDelta,
		Reasoning: delta.ReasoningContent,
		Text:      delta.Content,
		Usage:     c.Usage.normalize(),
	}
}

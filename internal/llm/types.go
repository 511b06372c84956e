package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Role is the author of a chat message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleAssistant:
		return true
	}
	return false
}

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// DefaultMaxTokens is used when a request config leaves max_tokens unset.
const DefaultMaxTokens = 2048

// RequestConfig carries the per-provider sampling options of a request.
type RequestConfig struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
}

// MaxTokensOrDefault returns the configured max_tokens or DefaultMaxTokens.
func (c RequestConfig) MaxTokensOrDefault() int {
	if c.MaxTokens != nil && *c.MaxTokens > 0 {
		return *c.MaxTokens
	}
	return DefaultMaxTokens
}

func (c RequestConfig) Validate() error {
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return errors.New("temperature must be between 0 and 2")
	}
	if c.TopP != nil && (*c.TopP < 0 || *c.TopP > 1) {
		return errors.New("top_p must be between 0 and 1")
	}
	if c.MaxTokens != nil && *c.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must not be negative, got %d", *c.MaxTokens)
	}
	return nil
}

// ContentBlock is the canonical unit of assistant output.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

const (
	BlockText      = "text"
	BlockTextDelta = "text_delta"
)

func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: BlockText, Text: text}
}

// Usage is the normalized token accounting reported by a provider.
// ReasoningTokens and CachedInputTokens are only reported by reasoning providers.
type Usage struct {
	InputTokens       uint32
	OutputTokens      uint32
	TotalTokens       uint32
	ReasoningTokens   uint32
	CachedInputTokens uint32
}

// RawResponse is the upstream reply kept for verbose responses.
type RawResponse struct {
	Status  int               `json:"status"`
	Headers map[string]string `json:"headers"`
	Body    json.RawMessage   `json:"body"`
}

// Completion is the result of a non-streaming provider call.
type Completion struct {
	// Reasoning is nil when the provider reply carried no reasoning field.
	Reasoning *string
	Content   []ContentBlock
	// Usage is nil when the provider did not report usage.
	Usage *Usage
	Raw   RawResponse
}

// EventKind names a provider-native incremental event.
type EventKind string

const (
	// EventDelta is an OpenAI-style chunk carrying a choice delta.
	EventDelta EventKind = "delta"
	// EventMessageStart opens a message, possibly with initial content.
	EventMessageStart EventKind = "message_start"
	// EventContentDelta carries one incremental content block.
	EventContentDelta EventKind = "content_block_delta"
	// EventMessageDelta finishes a message and may carry usage totals.
	EventMessageDelta EventKind = "message_delta"
)

// StreamChunk is one provider-native incremental event.
type StreamChunk struct {
	Kind EventKind

	// Reasoning is the reasoning delta of an EventDelta chunk; nil when the field was absent.
	Reasoning *string
	// Text is the answer delta of an EventDelta chunk.
	Text string

	// Content is the initial content of an EventMessageStart.
	Content []ContentBlock
	// Delta is the block of an EventContentDelta.
	Delta ContentBlock

	Usage *Usage
}

type StreamResult struct {
	Chunk *StreamChunk
	Err   error
}

// Provider is the chat capability both gateway roles depend on.
//
// StreamChat returns a channel that is closed when the upstream stream ends.
// A transport or protocol failure is delivered as a final StreamResult with Err set.
// Cancelling ctx stops the stream and releases the upstream connection.
type Provider interface {
	Name() string
	Complete(ctx context.Context, messages []Message, cfg RequestConfig) (*Completion, error)
	StreamChat(ctx context.Context, messages []Message, cfg RequestConfig) (<-chan StreamResult, error)
}

// Factory builds a Provider bound to one caller credential.
type Factory func(apiKey string) (Provider, error)

// SplitSystem separates system-role messages from the conversation.
// System contents are joined with a blank line.
func SplitSystem(messages []Message) (system string, rest []Message) {
	rest = make([]Message, 0, len(messages))
	var parts []string
	for _, m := range messages {
		if m.Role == RoleSystem {
			if m.Content != "" {
				parts = append(parts, m.Content)
			}
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(parts, "\n\n"), rest
}

// Float64 and Int return pointers for optional config fields.
func Float64(v float64) *float64 { return &v }

func Int(v int) *int { return &v }

// String returns a pointer to v.
func String(v string) *string { return &v }

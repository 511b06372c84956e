package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"reasongate-gateway/internal/gateway"
	"reasongate-gateway/internal/llm"
)

// ChatRequest is the body of POST /v1/chat.
type ChatRequest struct {
	Messages        []llm.Message     `json:"messages"`
	SystemPrompt    *string           `json:"system_prompt,omitempty"`
	Stream          bool              `json:"stream"`
	Verbose         bool              `json:"verbose"`
	ProviderAConfig llm.RequestConfig `json:"provider_a_config"`
	ProviderBConfig llm.RequestConfig `json:"provider_b_config"`
}

func decodeChatRequest(r *http.Request) (*ChatRequest, error) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, gateway.BadRequestf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, gateway.BadRequestf("invalid JSON: %v", err)
	}
	return &req, nil
}

// ValidSystemPrompt reports whether the system prompt is given at most once:
// either in the system_prompt field with no system messages, or as a single
// system message leading the conversation.
func (r *ChatRequest) ValidSystemPrompt() bool {
	systemCount := 0
	for _, m := range r.Messages {
		if m.Role == llm.RoleSystem {
			systemCount++
		}
	}

	if r.SystemPrompt != nil {
		return systemCount == 0
	}
	switch systemCount {
	case 0:
		return true
	case 1:
		return r.Messages[0].Role == llm.RoleSystem
	default:
		return false
	}
}

// SystemPromptText returns the effective system prompt, preferring the
// system_prompt field over a leading system message.
func (r *ChatRequest) SystemPromptText() (string, bool) {
	if r.SystemPrompt != nil {
		return *r.SystemPrompt, true
	}
	if len(r.Messages) > 0 && r.Messages[0].Role == llm.RoleSystem {
		return r.Messages[0].Content, true
	}
	return "", false
}

// Validate checks the request before any provider is contacted.
func (r *ChatRequest) Validate() error {
	if !r.ValidSystemPrompt() {
		return gateway.ErrInvalidSystemPrompt
	}
	if len(r.Messages) == 0 {
		return gateway.BadRequestf("messages must not be empty")
	}
	for i, m := range r.Messages {
		if !m.Role.Valid() {
			return gateway.BadRequestf("messages[%d]: unknown role %q", i, m.Role)
		}
	}
	if err := r.ProviderAConfig.Validate(); err != nil {
		return gateway.BadRequestf("provider_a_config: %v", err)
	}
	if err := r.ProviderBConfig.Validate(); err != nil {
		return gateway.BadRequestf("provider_b_config: %v", err)
	}
	return nil
}

// MessagesWithSystem returns a copy of the conversation with the
// system_prompt field prepended as a system message.
func (r *ChatRequest) MessagesWithSystem() []llm.Message {
	out := make([]llm.Message, 0, len(r.Messages)+1)
	if r.SystemPrompt != nil {
		out = append(out, llm.Message{Role: llm.RoleSystem, Content: *r.SystemPrompt})
	}
	return append(out, r.Messages...)
}

func (r *ChatRequest) call() gateway.Call {
	return gateway.Call{
		Messages: r.MessagesWithSystem(),
		ConfigA:  r.ProviderAConfig,
		ConfigB:  r.ProviderBConfig,
		Verbose:  r.Verbose,
	}
}

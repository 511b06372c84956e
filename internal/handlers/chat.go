package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"reasongate-gateway/internal/gateway"
	"reasongate-gateway/internal/llm"
	"reasongate-gateway/pkg/logging/logging"
)

// ChatHandler holds dependencies for the /v1/chat endpoint.
type ChatHandler struct {
	Gateway   *gateway.Gateway
	ProviderA llm.Factory
	ProviderB llm.Factory
	Headers   CredentialHeaders
}

func NewChatHandler(gw *gateway.Gateway, providerA, providerB llm.Factory, headers CredentialHeaders) *ChatHandler {
	return &ChatHandler{
		Gateway:   gw,
		ProviderA: providerA,
		ProviderB: providerB,
		Headers:   headers,
	}
}

// Chat handles POST /v1/chat. The stream flag selects between a single JSON
// document and a Server-Sent Events stream.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.L(ctx)
	start := time.Now()

	req, err := decodeChatRequest(r)
	if err != nil {
		logger.Warn("invalid request", zap.Error(err))
		writeError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		logger.Warn("request rejected", zap.Error(err))
		writeError(w, err)
		return
	}

	tokenA, tokenB, err := h.Headers.extract(r)
	if err != nil {
		logger.Warn("credential header rejected", zap.Error(err))
		writeError(w, err)
		return
	}

	providers, err := h.providers(tokenA, tokenB)
	if err != nil {
		logger.Error("provider setup failed", zap.Error(err))
		writeError(w, err)
		return
	}

	_, hasSystem := req.SystemPromptText()
	logger = logger.With(
		zap.Bool("stream", req.Stream),
		zap.Bool("verbose", req.Verbose),
		zap.Int("messages", len(req.Messages)),
		zap.Bool("system_prompt", hasSystem),
		zap.String("provider_a", providers.A.Name()),
		zap.String("provider_b", providers.B.Name()),
	)
	ctx = logging.WithLogger(ctx, logger)

	if req.Stream {
		h.stream(w, r.WithContext(ctx), providers, req.call())
		logger.Info("stream finished", zap.Duration("latency", time.Since(start)))
		return
	}

	resp, err := h.Gateway.Compose(ctx, providers, req.call())
	if err != nil {
		logger.Warn("chat failed", zap.Error(err), zap.Duration("latency", time.Since(start)))
		writeError(w, err)
		return
	}

	logger.Info("chat completed",
		zap.String("total_cost", resp.CombinedUsage.TotalCost),
		zap.Int("content_blocks", len(resp.Content)),
		zap.Duration("latency", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, resp)
}

func (h *ChatHandler) providers(tokenA, tokenB string) (gateway.Providers, error) {
	a, err := h.ProviderA(tokenA)
	if err != nil {
		return gateway.Providers{}, fmt.Errorf("provider A: %w", err)
	}
	b, err := h.ProviderB(tokenB)
	if err != nil {
		return gateway.Providers{}, fmt.Errorf("provider B: %w", err)
	}
	return gateway.Providers{A: a, B: b}, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, gateway.HTTPStatus(err), gateway.NewErrorResponse(err))
}

var errStreamingUnsupported = errors.New("response writer does not support streaming")

package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"reasongate-gateway/internal/gateway"
	"reasongate-gateway/pkg/logging/logging"
)

// stream relays the orchestrator's events as Server-Sent Events. A failed
// write means the client is gone: the context is cancelled, which tears
// down both upstream streams.
func (h *ChatHandler) stream(w http.ResponseWriter, r *http.Request, providers gateway.Providers, call gateway.Call) {
	logger := logging.L(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming unsupported")
		writeError(w, errStreamingUnsupported)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := 0
	for ev := range h.Gateway.Stream(ctx, providers, call) {
		if err := writeEvent(w, ev); err != nil {
			logger.Debug("client disconnected", zap.Error(err), zap.Int("events", events))
			cancel()
			return
		}
		flusher.Flush()
		events++
	}
	logger.Debug("stream closed", zap.Int("events", events))
}

// writeEvent writes one SSE frame named after the event type.
func writeEvent(w io.Writer, ev gateway.StreamEvent) error {
	var data bytes.Buffer
	enc := json.NewEncoder(&data)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return fmt.Errorf("encode %s event: %w", ev.Type, err)
	}
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, bytes.TrimRight(data.Bytes(), "\n"))
	return err
}

package gateway

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"reasongate-gateway/internal/llm"
	"reasongate-gateway/internal/metrics"
	"reasongate-gateway/pkg/logging/logging"
)

// Stream starts the two-phase state machine and returns its event channel.
// A single goroutine produces into the channel and closes it on termination.
//
// Events are, in order: start, the opening delimiter, reasoning deltas, the
// closing delimiter, answer content, usage and done. An error event is
// terminal and is never followed by done. Cancelling ctx stops the producer
// quietly and tears down both upstream streams. When ctx instead hits its
// deadline, the stream still ends with an error event.
func (g *Gateway) Stream(ctx context.Context, p Providers, call Call) <-chan StreamEvent {
	events := make(chan StreamEvent, QueueCapacity)

	o := &orchestrator{
		g:         g,
		providers: p,
		call:      call,
		events:    events,
		logger:    logging.L(ctx),
		active:    p.A.Name(),
	}

	go func() {
		defer close(events)
		ctx, span := g.tracer.Start(ctx, "gateway.stream")
		defer span.End()

		if o.run(ctx) {
			return
		}
		if errors.Is(ctx.Err(), context.DeadlineExceeded) && !o.terminated {
			o.deadline(ctx)
		}
		if !errors.Is(ctx.Err(), context.Canceled) {
			span.SetStatus(codes.Error, "stream failed")
		}
	}()

	return events
}

type orchestrator struct {
	g         *Gateway
	providers Providers
	call      Call
	events    chan<- StreamEvent
	logger    *zap.Logger

	// usageA is the last usage seen on the Provider A stream.
	usageA *llm.Usage
	// active names the provider of the current phase.
	active string
	// terminated is set once an error event has been queued.
	terminated bool
}

// run walks Start, ThinkingOpen, ReasoningRelay, ThinkingClose, AnswerRelay
// and Done. It reports whether the stream finished with done.
func (o *orchestrator) run(ctx context.Context) bool {
	if !o.emit(ctx, StartEvent(o.g.now().UTC())) {
		return false
	}
	if !o.emit(ctx, ContentEvent(llm.TextBlock(ThinkingOpen))) {
		return false
	}

	wrapped, ok := o.relayReasoning(ctx)
	if !ok {
		return false
	}

	if !o.emit(ctx, ContentEvent(llm.TextBlock(ThinkingClose))) {
		return false
	}
	if !o.relayAnswer(ctx, wrapped) {
		return false
	}
	return o.emit(ctx, DoneEvent())
}

// emit hands ev to the consumer. It returns false once the consumer is gone.
func (o *orchestrator) emit(ctx context.Context, ev StreamEvent) bool {
	select {
	case <-ctx.Done():
		return false
	case o.events <- ev:
		metrics.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()
		return true
	}
}

// fail emits the terminal error event while ctx is live. Once ctx has ended,
// a cancelled stream stays quiet and an expired one is closed by deadline.
func (o *orchestrator) fail(ctx context.Context, provider string, err error) {
	if ctx.Err() != nil {
		o.logger.Debug("stream stopped", zap.String("provider", provider), zap.Error(ctx.Err()))
		return
	}
	err = llm.NewUpstreamError(provider, err)
	o.logger.Warn("upstream stream failed", zap.String("provider", provider), zap.Error(err))
	o.terminated = o.emit(ctx, ErrorEvent(err.Error(), StreamErrorCode))
}

// deadline queues the terminal error event after ctx expired. The send does
// not wait on ctx; it only fails when the consumer stopped draining and the
// queue is full.
func (o *orchestrator) deadline(ctx context.Context) {
	err := llm.NewUpstreamError(o.active, fmt.Errorf("stream deadline exceeded: %w", ctx.Err()))
	o.logger.Warn("stream deadline exceeded", zap.String("provider", o.active), zap.Error(err))

	ev := ErrorEvent(err.Error(), StreamErrorCode)
	select {
	case o.events <- ev:
		metrics.StreamEventsTotal.WithLabelValues(string(ev.Type)).Inc()
		o.terminated = true
	default:
		o.logger.Warn("event queue full, dropping deadline error")
	}
}

// relayReasoning forwards reasoning deltas until a Provider A chunk arrives
// without the reasoning field. It returns the wrapped trace.
func (o *orchestrator) relayReasoning(ctx context.Context) (string, bool) {
	p := o.providers.A
	o.active = p.Name()
	ctx, span := o.g.tracer.Start(ctx, "gateway.reasoning_relay")
	defer span.End()

	// Provider A is released as soon as the phase ends.
	ctxA, cancelA := context.WithCancel(ctx)
	defer cancelA()

	stream, err := p.StreamChat(ctxA, o.call.Messages, o.call.ConfigA)
	if err != nil {
		recordCall(p.Name(), modeStream, err)
		span.RecordError(err)
		o.fail(ctx, p.Name(), err)
		return "", false
	}

	var acc reasoningAccumulator
	deltas := 0

relay:
	for res := range stream {
		if res.Err != nil {
			recordCall(p.Name(), modeStream, res.Err)
			span.RecordError(res.Err)
			o.fail(ctx, p.Name(), res.Err)
			return "", false
		}

		chunk := res.Chunk
		if chunk == nil {
			continue
		}
		if chunk.Usage != nil {
			u := *chunk.Usage
			o.usageA = &u
		}
		if chunk.Kind != llm.EventDelta {
			continue
		}
		if chunk.Reasoning == nil {
			break relay
		}
		if *chunk.Reasoning == "" {
			continue
		}

		acc.add(*chunk.Reasoning)
		deltas++
		if !o.emit(ctx, ContentEvent(llm.ContentBlock{Type: llm.BlockTextDelta, Text: *chunk.Reasoning})) {
			return "", false
		}
	}

	if err := ctx.Err(); err != nil {
		recordCall(p.Name(), modeStream, err)
		return "", false
	}
	recordCall(p.Name(), modeStream, nil)

	o.logger.Debug("reasoning phase finished", zap.Int("deltas", deltas))
	return acc.wrapped(), true
}

// relayAnswer translates Provider B native events into canonical events.
func (o *orchestrator) relayAnswer(ctx context.Context, wrapped string) bool {
	p := o.providers.B
	o.active = p.Name()
	ctx, span := o.g.tracer.Start(ctx, "gateway.answer_relay")
	defer span.End()

	stream, err := p.StreamChat(ctx, withReasoning(o.call.Messages, wrapped), o.call.ConfigB)
	if err != nil {
		recordCall(p.Name(), modeStream, err)
		span.RecordError(err)
		o.fail(ctx, p.Name(), err)
		return false
	}

	for res := range stream {
		if res.Err != nil {
			recordCall(p.Name(), modeStream, res.Err)
			span.RecordError(res.Err)
			o.fail(ctx, p.Name(), res.Err)
			return false
		}

		chunk := res.Chunk
		if chunk == nil {
			continue
		}

		var ev StreamEvent
		switch chunk.Kind {
		case llm.EventMessageStart:
			if len(chunk.Content) == 0 {
				continue
			}
			ev = ContentEvent(chunk.Content...)
		case llm.EventContentDelta:
			ev = ContentEvent(chunk.Delta)
		case llm.EventMessageDelta:
			if chunk.Usage == nil {
				continue
			}
			ev = UsageEvent(o.g.combine(ctx, o.usageA, chunk.Usage, o.providers))
		default:
			continue
		}

		if !o.emit(ctx, ev) {
			return false
		}
	}

	if err := ctx.Err(); err != nil {
		recordCall(p.Name(), modeStream, err)
		return false
	}
	recordCall(p.Name(), modeStream, nil)
	return true
}

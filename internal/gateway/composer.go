package gateway

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"reasongate-gateway/internal/llm"
	"reasongate-gateway/pkg/logging/logging"
)

// Compose runs Provider A then Provider B and merges both into one Response.
// Provider B is never called when Provider A fails or returns no reasoning.
func (g *Gateway) Compose(ctx context.Context, p Providers, call Call) (*Response, error) {
	ctx, span := g.tracer.Start(ctx, "gateway.compose")
	defer span.End()

	logger := logging.L(ctx)

	compA, err := p.A.Complete(ctx, call.Messages, call.ConfigA)
	recordCall(p.A.Name(), modeComplete, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider A failed")
		logger.Warn("provider A call failed", zap.String("provider", p.A.Name()), zap.Error(err))
		return nil, llm.NewUpstreamError(p.A.Name(), err)
	}
	if compA.Reasoning == nil || *compA.Reasoning == "" {
		span.SetStatus(codes.Error, "missing reasoning")
		logger.Warn("provider A returned no reasoning", zap.String("provider", p.A.Name()))
		return nil, ErrMissingReasoningContent
	}

	wrapped := WrapReasoning(*compA.Reasoning)
	span.SetAttributes(attribute.Int("reasoning.length", len(*compA.Reasoning)))

	compB, err := p.B.Complete(ctx, withReasoning(call.Messages, wrapped), call.ConfigB)
	recordCall(p.B.Name(), modeComplete, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "provider B failed")
		logger.Warn("provider B call failed", zap.String("provider", p.B.Name()), zap.Error(err))
		return nil, llm.NewUpstreamError(p.B.Name(), err)
	}

	content := make([]llm.ContentBlock, 0, len(compB.Content)+1)
	content = append(content, llm.TextBlock(wrapped))
	content = append(content, compB.Content...)

	resp := &Response{
		Created:       g.now().UTC(),
		Content:       content,
		CombinedUsage: g.combine(ctx, compA.Usage, compB.Usage, p),
	}
	if call.Verbose {
		rawA, rawB := compA.Raw, compB.Raw
		resp.RawProviderA = &rawA
		resp.RawProviderB = &rawB
	}

	logger.Info("composed response",
		zap.Int("content_blocks", len(content)),
		zap.String("total_cost", resp.CombinedUsage.TotalCost),
	)
	return resp, nil
}

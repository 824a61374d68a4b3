package unifiedllm

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// LoggingMiddleware records one structured log line per model call.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(ctx context.Context, req Request, next func(context.Context, Request) (*Response, error)) (*Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		fields := []zap.Field{
			zap.String("provider", req.Provider),
			zap.String("model", req.Model),
			zap.Int("messages", len(req.Messages)),
			zap.Int("tools", len(req.ToolDefs)),
			zap.Duration("latency", time.Since(start)),
		}
		if err != nil {
			logger.Warn("model call failed", append(fields, zap.Error(err))...)
			return nil, err
		}
		logger.Debug("model call completed", append(fields,
			zap.String("finish_reason", resp.FinishReason.Reason),
			zap.Int("tool_calls", len(resp.ToolCallsFromResponse())),
			zap.Int("total_tokens", resp.Usage.TotalTokens),
		)...)
		return resp, nil
	}
}

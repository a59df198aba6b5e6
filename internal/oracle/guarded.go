package oracle

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/datagenie/internal/resilience"
)

// Guarded wraps an Oracle with a rate limiter, transport retries, a circuit
// breaker and a timeout covering the whole guarded call. However many
// transport retries happen, the caller observes one call.
type Guarded struct {
	Oracle   Oracle
	Provider string
	Limiter  *rate.Limiter
	Breaker  *resilience.CircuitBreaker
	Retry    resilience.RetryConfig
	Timeout  time.Duration
}

// Complete implements Oracle.
func (g *Guarded) Complete(ctx context.Context, req Request) (*Completion, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	retry := g.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger(g.Provider, req.Stage)
	}

	start := time.Now()
	out, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*Completion, error) {
		if g.Limiter != nil {
			if err := g.Limiter.Wait(ctx); err != nil {
				return nil, eris.Wrap(err, "oracle: rate limit wait")
			}
		}
		call := func(ctx context.Context) (*Completion, error) {
			return g.Oracle.Complete(ctx, req)
		}
		if g.Breaker == nil {
			return call(ctx)
		}
		return resilience.ExecuteVal(ctx, g.Breaker, call)
	})
	if err != nil {
		return nil, eris.Wrapf(err, "oracle: %s complete (%s)", g.Provider, req.Stage)
	}

	zap.L().Debug("oracle call complete",
		zap.String("provider", g.Provider),
		zap.String("stage", req.Stage),
		zap.String("model", out.Model),
		zap.Int("input_tokens", out.Usage.InputTokens),
		zap.Int("output_tokens", out.Usage.OutputTokens),
		zap.Duration("duration", time.Since(start)),
	)
	return out, nil
}

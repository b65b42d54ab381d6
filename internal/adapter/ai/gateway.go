package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/ai/tokencount"
	"github.com/fairyhunter13/ai-interview-coach/internal/adapter/observability"
	"github.com/fairyhunter13/ai-interview-coach/internal/domain"
)

// Waiter throttles outbound calls before they reach the provider.
type Waiter interface {
	Wait(ctx context.Context, key string, cost int64) error
}

// Gateway performs one logical LLM call: it retries ErrRateLimited according to its
// RetryPolicy and surfaces every other failure immediately. It keeps no per-call state
// and is safe for concurrent use.
type Gateway struct {
	provider  domain.LLMProvider
	policy    domain.RetryPolicy
	limiter   Waiter
	bucketKey string
	model     string
	counter   *tokencount.Counter
}

// GatewayOption customizes a Gateway.
type GatewayOption func(*Gateway)

// WithLimiter makes every attempt wait on the shared bucket key first.
func WithLimiter(w Waiter, key string) GatewayOption {
	return func(g *Gateway) {
		g.limiter = w
		g.bucketKey = key
	}
}

// WithTokenCounter logs prompt token counts for model.
func WithTokenCounter(c *tokencount.Counter, model string) GatewayOption {
	return func(g *Gateway) {
		g.counter = c
		g.model = model
	}
}

// NewGateway builds a gateway over provider.
func NewGateway(provider domain.LLMProvider, policy domain.RetryPolicy, opts ...GatewayOption) *Gateway {
	g := &Gateway{provider: provider, policy: policy}
	for _, o := range opts {
		o(g)
	}
	return g
}

func (g *Gateway) backOff(ctx context.Context) backoff.BackOff {
	var b backoff.BackOff
	if g.policy.Exponential {
		expo := backoff.NewExponentialBackOff()
		expo.InitialInterval = g.policy.Delay
		expo.Multiplier = g.policy.Multiplier
		expo.MaxInterval = g.policy.MaxDelay
		expo.RandomizationFactor = 0
		expo.MaxElapsedTime = 0
		b = expo
	} else {
		b = backoff.NewConstantBackOff(g.policy.Delay)
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.policy.MaxAttempts()-1)), ctx)
}

// Call sends prompt to the provider and returns the raw completion text.
func (g *Gateway) Call(ctx domain.Context, prompt string) (string, error) {
	if g == nil || g.provider == nil {
		return "", fmt.Errorf("op=ai.Call: %w: no LLM provider configured", domain.ErrConfiguration)
	}
	name := g.provider.Name()
	tracer := otel.Tracer("ai.gateway")
	ctx, span := tracer.Start(ctx, "ai.Call")
	defer span.End()
	span.SetAttributes(attribute.String("llm.provider", name), attribute.Int("llm.prompt_chars", len(prompt)))

	lg := observability.LoggerFromContext(ctx)
	if g.counter != nil {
		if n, err := g.counter.CountTokens(prompt, g.model); err == nil {
			span.SetAttributes(attribute.Int("llm.prompt_tokens", n))
			lg.Debug("llm prompt tokens", "provider", name, "model", g.model, "tokens", n)
		}
	}

	attempts := 0
	var out string
	op := func() error {
		attempts++
		if g.limiter != nil {
			if err := g.limiter.Wait(ctx, g.bucketKey, 1); err != nil {
				return backoff.Permanent(err)
			}
		}
		start := time.Now()
		res, err := g.provider.Complete(ctx, prompt)
		switch {
		case err == nil:
			observability.ObserveAIRequest(name, "ok", time.Since(start))
			out = res
			return nil
		case domain.IsRetryable(err):
			observability.ObserveAIRequest(name, "rate_limited", time.Since(start))
			return err
		case domain.IsFatalConfig(err):
			observability.ObserveAIRequest(name, "configuration", time.Since(start))
			return backoff.Permanent(err)
		default:
			observability.ObserveAIRequest(name, "failed", time.Since(start))
			return backoff.Permanent(err)
		}
	}
	notify := func(err error, wait time.Duration) {
		observability.AIRetriesTotal.WithLabelValues(name).Inc()
		lg.Warn("llm rate limited, retrying", "provider", name, "attempt", attempts, "wait", wait, "error", err)
	}

	err := backoff.RetryNotify(op, g.backOff(ctx), notify)
	span.SetAttributes(attribute.Int("llm.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if !domain.IsRetryable(err) && !domain.IsFatalConfig(err) &&
			!errors.Is(err, domain.ErrRequestFailed) && ctx.Err() == nil {
			err = fmt.Errorf("%w: %w", domain.ErrRequestFailed, err)
		}
		lg.Error("llm call failed", "provider", name, "attempts", attempts, "error", err)
		return "", fmt.Errorf("op=ai.Call: %w", err)
	}
	return out, nil
}

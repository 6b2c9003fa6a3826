package llm

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// RateLimited wraps gen so at most perMinute calls start per minute. A
// non-positive perMinute returns gen unchanged.
func RateLimited(gen Generator, perMinute int) Generator {
	if perMinute <= 0 || gen == nil {
		return gen
	}
	return &rateLimited{
		next:    gen,
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1),
	}
}

type rateLimited struct {
	next    Generator
	limiter *rate.Limiter
}

func (r *rateLimited) Generate(ctx context.Context, req Request) (string, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("llm rate limit: %w", err)
	}
	return r.next.Generate(ctx, req)
}

// Ping forwards to the wrapped generator when it supports it.
func (r *rateLimited) Ping(ctx context.Context) error {
	if p, ok := r.next.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

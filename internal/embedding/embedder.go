// Package embedding holds the text embedders and the guard every store calls
// them through.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"webrag/internal/domain"
)

// Dimensioned is implemented by embedders that know their output size before
// the first call.
type Dimensioned interface {
	Dimension() int
}

// Guard wraps an embedder with a per-call time bound, an optional rate limit
// and error classification. Every failure it returns is a domain.Error of kind
// ErrEmbeddingFailure or ErrTimeout.
type Guard struct {
	inner   domain.Embedder
	timeout time.Duration
	limiter *rate.Limiter
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithTimeout bounds each Embed call. Zero disables the bound.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guard) { g.timeout = d }
}

// WithRateLimit throttles calls to rps per second with the given burst.
// A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) GuardOption {
	return func(g *Guard) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewGuard wraps inner.
func NewGuard(inner domain.Embedder, opts ...GuardOption) *Guard {
	g := &Guard{inner: inner}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Name returns the wrapped embedder's name.
func (g *Guard) Name() string { return g.inner.Name() }

// Dimension forwards to the wrapped embedder when it knows its size.
func (g *Guard) Dimension() int {
	if d, ok := g.inner.(Dimensioned); ok {
		return d.Dimension()
	}
	return 0
}

// Embed implements domain.Embedder.
func (g *Guard) Embed(ctx context.Context, text string) ([]float32, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			// rate.Limiter reports a wait past the deadline before it happens
			return nil, &domain.Error{Kind: domain.ErrTimeout, Op: "embed", Err: err}
		}
	}
	vec, err := g.inner.Embed(ctx, text)
	if err != nil {
		if ctx.Err() != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		return nil, domain.EmbeddingFailure("embed", err)
	}
	if len(vec) == 0 {
		return nil, domain.EmbeddingFailure("embed", errors.New("embedder returned an empty vector"))
	}
	return vec, nil
}

var _ domain.Embedder = (*Guard)(nil)

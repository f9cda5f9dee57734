package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fc-gallery/nft-aggregator/internal/config"
	"github.com/fc-gallery/nft-aggregator/internal/logger"
)

// RequestFunc performs the actual upstream call
type RequestFunc func(ctx context.Context) (interface{}, error)

type requestResult struct {
	value interface{}
	err   error
}

// Proxy serialises upstream calls through per-provider token buckets so a
// burst of aggregation fan-outs cannot exceed a provider's quota
type Proxy interface {
	// Request submits a rate-limited request for execution
	Request(ctx context.Context, providerName string, fn RequestFunc) (interface{}, error)

	// Close gracefully shuts down the proxy
	Close() error
}

type proxy struct {
	pool      pond.ResultPool[*requestResult]
	limiters  map[string]*rate.Limiter
	closed    atomic.Bool
	closeOnce sync.Once
}

// NewProxy creates a proxy from the configured provider budgets
func NewProxy(cfg config.RateLimiterConfig) (Proxy, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("at least one provider must be configured")
	}

	limiters := make(map[string]*rate.Limiter, len(cfg.Providers))
	for name, providerCfg := range cfg.Providers {
		if providerCfg.RequestsPerSecond <= 0 {
			return nil, fmt.Errorf("provider %s: requests_per_second must be positive", name)
		}
		burst := providerCfg.Burst
		if burst <= 0 {
			burst = providerCfg.RequestsPerSecond
		}
		limiters[name] = rate.NewLimiter(rate.Limit(providerCfg.RequestsPerSecond), burst)
	}

	maxWorkers := cfg.MaxWorkers
	if maxWorkers <= 0 {
		maxWorkers = 32
	}
	maxQueueSize := cfg.MaxQueueSize
	if maxQueueSize <= 0 {
		maxQueueSize = 1024
	}

	pool := pond.NewResultPool[*requestResult](
		maxWorkers,
		pond.WithQueueSize(maxQueueSize),
	)

	logger.Info("rate limit proxy initialized",
		zap.Int("max_workers", maxWorkers),
		zap.Int("max_queue_size", maxQueueSize),
		zap.Int("providers", len(limiters)),
	)

	return &proxy{pool: pool, limiters: limiters}, nil
}

// Request submits a rate-limited request and returns the result with type
// safety. A nil proxy executes the function directly.
func Request[T any](ctx context.Context, p Proxy, providerName string, fn func(ctx context.Context) (T, error)) (T, error) {
	if p == nil {
		return fn(ctx)
	}

	var zero T
	result, err := p.Request(ctx, providerName, func(ctx context.Context) (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	return result.(T), nil
}

// Request blocks until a token is acquired and the call completes, or the
// context is canceled
func (p *proxy) Request(ctx context.Context, providerName string, fn RequestFunc) (interface{}, error) {
	if p.closed.Load() {
		return nil, fmt.Errorf("proxy is closed")
	}

	limiter, ok := p.limiters[providerName]
	if !ok {
		return nil, fmt.Errorf("provider '%s' not configured", providerName)
	}

	resultTask := p.pool.Submit(func() *requestResult {
		if err := limiter.Wait(ctx); err != nil {
			return &requestResult{err: err}
		}
		value, err := fn(ctx)
		return &requestResult{value: value, err: err}
	})

	result, err := resultTask.Wait()
	if err != nil {
		return nil, err
	}
	if result.err != nil {
		return nil, result.err
	}
	return result.value, nil
}

// Close stops the pool after in-flight requests complete
func (p *proxy) Close() error {
	var err error
	p.closeOnce.Do(func() {
		p.closed.Store(true)
		tasks := p.pool.Stop()
		if errTasks := tasks.Wait(); errTasks != nil {
			logger.Warn("error waiting for pool tasks to complete", zap.Error(errTasks))
			err = errTasks
		}
	})
	return err
}

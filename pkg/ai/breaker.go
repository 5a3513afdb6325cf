package ai

import (
	"context"
	"time"

	"friendlymail-backend/pkg/circuitbreaker"
	"friendlymail-backend/pkg/metrics"
)

// GuardedService wraps a provider with a circuit breaker and latency metrics.
// While the breaker is open calls fail fast with ErrCircuitBreakerOpen.
type GuardedService struct {
	next    Completer
	breaker *circuitbreaker.CircuitBreaker
}

func NewGuardedService(next Completer, cfg circuitbreaker.Config) *GuardedService {
	return &GuardedService{next: next, breaker: circuitbreaker.NewCircuitBreaker(cfg)}
}

func (g *GuardedService) Name() string { return g.next.Name() }

func (g *GuardedService) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	start := time.Now()
	var text string
	err := g.breaker.Execute(func() error {
		var callErr error
		text, callErr = g.next.Complete(ctx, req)
		return callErr
	})

	status := "success"
	switch {
	case err == circuitbreaker.ErrCircuitBreakerOpen:
		status = "breaker_open"
	case err != nil:
		status = "error"
	}
	metrics.RecordLLMCall(g.next.Name(), status, time.Since(start))
	return text, err
}

package usecases

import (
	"github.com/sophialabs/stubhttp/internal/domain/expectation"
	"github.com/sophialabs/stubhttp/internal/domain/ledger"
	"github.com/sophialabs/stubhttp/internal/domain/trace"
	"github.com/sophialabs/stubhttp/internal/infrastructure/ports"
)

// ResetScope selects what Reset clears.
type ResetScope int

const (
	ResetAll ResetScope = iota
	ResetExpectations
	ResetRequests
)

// ResetUseCase clears server state between tests.
type ResetUseCase struct {
	registry    *expectation.Registry
	ledger      *ledger.Ledger
	traceBuf    *trace.RingBuffer
	rateLimiter ports.RateLimiter
	metrics     ports.Metrics
	logger      ports.Logger
}

// NewResetUseCase creates a new use case.
func NewResetUseCase(
	registry *expectation.Registry,
	ldg *ledger.Ledger,
	traceBuf *trace.RingBuffer,
	rateLimiter ports.RateLimiter,
	metrics ports.Metrics,
	logger ports.Logger,
) *ResetUseCase {
	return &ResetUseCase{
		registry:    registry,
		ledger:      ldg,
		traceBuf:    traceBuf,
		rateLimiter: rateLimiter,
		metrics:     metrics,
		logger:      logger,
	}
}

// Execute clears the selected state. Dropping expectations also drops
// their rate-limit buckets; dropping requests also drops the match trace.
func (uc *ResetUseCase) Execute(scope ResetScope) {
	if scope == ResetAll || scope == ResetExpectations {
		uc.registry.Clear()
		uc.rateLimiter.Reset()
		uc.metrics.SetExpectations(0, 0)
	}
	if scope == ResetAll || scope == ResetRequests {
		uc.ledger.Reset()
		uc.traceBuf.Reset()
	}
	uc.logger.Info("state reset", "scope", scope.String())
}

// RemoveExpectation drops a single expectation by ID.
func (uc *ResetUseCase) RemoveExpectation(id string) bool {
	ok := uc.registry.Remove(id)
	if ok {
		uc.logger.Info("expectation removed", "id", id)
	}
	return ok
}

func (s ResetScope) String() string {
	switch s {
	case ResetExpectations:
		return "expectations"
	case ResetRequests:
		return "requests"
	default:
		return "all"
	}
}

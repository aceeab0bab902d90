package monitoring

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker"

	"github.com/dwarvesf/settlement-backend/internal/ledgerrpc"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/oracle"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

// Breaker runs calls to one external service through a circuit breaker with a
// per-call timeout and records each call in ExternalAPIMetrics.
type Breaker struct {
	name          string
	cb            *gobreaker.CircuitBreaker
	metrics       *ExternalAPIMetrics
	logger        *logger.Logger
	timeoutConfig TimeoutConfig
}

func NewBreaker(name string, config CircuitBreakerConfig, timeoutConfig TimeoutConfig, metrics *ExternalAPIMetrics, logger *logger.Logger) (*Breaker, error) {
	if err := validateCircuitBreakerConfig(config); err != nil {
		return nil, errors.Wrapf(err, "breaker %s", name)
	}

	b := &Breaker{
		name:          name,
		metrics:       metrics,
		logger:        logger,
		timeoutConfig: timeoutConfig,
	}
	b.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(config.ConsecutiveFailureThreshold)
		},
		// a caller giving up says nothing about the service
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Info("[Breaker] state change", map[string]string{
				"service": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			metrics.UpdateCircuitBreakerState(name, to)
		},
	})

	return b, nil
}

func (b *Breaker) State() gobreaker.State {
	return b.cb.State()
}

// Execute calls fn with a context bounded by the request timeout, or the
// health check timeout for the "health_check" operation.
func (b *Breaker) Execute(ctx context.Context, operation string, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	timeout := b.timeoutConfig.RequestTimeout
	if operation == "health_check" {
		timeout = b.timeoutConfig.HealthCheckTimeout
	}

	result, err := b.cb.Execute(func() (interface{}, error) {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		result, err := fn(callCtx)
		duration := time.Since(start).Seconds()
		if err != nil {
			if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
				b.metrics.RecordTimeout(b.name, operation)
			}
			b.metrics.RecordAPICall(b.name, operation, "error", duration)
			b.logError(operation, duration, err)
			return nil, err
		}
		b.metrics.RecordAPICall(b.name, operation, "success", duration)
		return result, nil
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.metrics.RecordAPICall(b.name, operation, "rejected", 0)
		return nil, fmt.Errorf("%s unavailable: %w", b.name, err)
	}

	return result, err
}

func (b *Breaker) logError(operation string, duration float64, err error) {
	b.logger.Error("[Breaker] external API call failed", map[string]string{
		"service":    b.name,
		"operation":  operation,
		"duration":   strconv.FormatFloat(duration, 'f', 3, 64),
		"error":      err.Error(),
		"error_type": string(classifyError(err)),
		"cb_state":   b.cb.State().String(),
	})
}

// CircuitBreakerPriceSource wraps oracle.IPriceSource.
type CircuitBreakerPriceSource struct {
	wrapped oracle.IPriceSource
	breaker *Breaker
}

func NewCircuitBreakerPriceSource(wrapped oracle.IPriceSource, breaker *Breaker) *CircuitBreakerPriceSource {
	return &CircuitBreakerPriceSource{wrapped: wrapped, breaker: breaker}
}

func (s *CircuitBreakerPriceSource) Name() string {
	return s.wrapped.Name()
}

func (s *CircuitBreakerPriceSource) Price(ctx context.Context, pair string) (decimal.Decimal, error) {
	result, err := s.breaker.Execute(ctx, "price", func(ctx context.Context) (interface{}, error) {
		return s.wrapped.Price(ctx, pair)
	})
	if err != nil {
		return decimal.Zero, err
	}
	return result.(decimal.Decimal), nil
}

// CircuitBreakerChainReader wraps ledgerrpc.IChainReader.
type CircuitBreakerChainReader struct {
	wrapped ledgerrpc.IChainReader
	breaker *Breaker
}

func NewCircuitBreakerChainReader(wrapped ledgerrpc.IChainReader, breaker *Breaker) *CircuitBreakerChainReader {
	return &CircuitBreakerChainReader{wrapped: wrapped, breaker: breaker}
}

func (r *CircuitBreakerChainReader) GetTransaction(ctx context.Context, reference string) (*ledgerrpc.TransactionView, error) {
	result, err := r.breaker.Execute(ctx, "get_transaction", func(ctx context.Context) (interface{}, error) {
		return r.wrapped.GetTransaction(ctx, reference)
	})
	if err != nil {
		return nil, err
	}
	return result.(*ledgerrpc.TransactionView), nil
}

func (r *CircuitBreakerChainReader) Ping(ctx context.Context) error {
	_, err := r.breaker.Execute(ctx, "health_check", func(ctx context.Context) (interface{}, error) {
		return nil, r.wrapped.Ping(ctx)
	})
	return err
}

// CircuitBreakerPayoutSigner wraps ledgerrpc.IPayoutSigner.
type CircuitBreakerPayoutSigner struct {
	wrapped ledgerrpc.IPayoutSigner
	breaker *Breaker
}

func NewCircuitBreakerPayoutSigner(wrapped ledgerrpc.IPayoutSigner, breaker *Breaker) *CircuitBreakerPayoutSigner {
	return &CircuitBreakerPayoutSigner{wrapped: wrapped, breaker: breaker}
}

func (s *CircuitBreakerPayoutSigner) SubmitPayout(ctx context.Context, req ledgerrpc.PayoutRequest) (string, error) {
	result, err := s.breaker.Execute(ctx, "submit_payout", func(ctx context.Context) (interface{}, error) {
		return s.wrapped.SubmitPayout(ctx, req)
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func (s *CircuitBreakerPayoutSigner) Balance(ctx context.Context, currency string) (model.TokenAmount, error) {
	result, err := s.breaker.Execute(ctx, "balance", func(ctx context.Context) (interface{}, error) {
		return s.wrapped.Balance(ctx, currency)
	})
	if err != nil {
		return model.TokenAmount{}, err
	}
	return result.(model.TokenAmount), nil
}

func (s *CircuitBreakerPayoutSigner) Ping(ctx context.Context) error {
	_, err := s.breaker.Execute(ctx, "health_check", func(ctx context.Context) (interface{}, error) {
		return nil, s.wrapped.Ping(ctx)
	})
	return err
}

func classifyError(err error) APIErrorType {
	if err == nil {
		return ""
	}
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return ErrorTypeCircuitOpen
	}

	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "timeout"),
		strings.Contains(errMsg, "deadline exceeded"),
		strings.Contains(errMsg, "context canceled"):
		return ErrorTypeTimeout
	case strings.Contains(errMsg, "connection"),
		strings.Contains(errMsg, "network"),
		strings.Contains(errMsg, "unreachable"),
		strings.Contains(errMsg, "no such host"):
		return ErrorTypeNetworkError
	case strings.Contains(errMsg, "status code: 5"):
		return ErrorTypeServerError
	case strings.Contains(errMsg, "status code: 4"),
		strings.Contains(errMsg, "rate limit"):
		return ErrorTypeClientError
	}

	return ErrorTypeUnknown
}

func validateCircuitBreakerConfig(config CircuitBreakerConfig) error {
	if config.MaxRequests == 0 {
		return fmt.Errorf("max_requests must be greater than 0")
	}
	if config.ConsecutiveFailureThreshold <= 0 {
		return fmt.Errorf("consecutive_failure_threshold must be greater than 0")
	}
	if config.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}
	if config.Interval < 0 {
		return fmt.Errorf("interval must be non-negative")
	}
	return nil
}

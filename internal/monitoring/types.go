package monitoring

import (
	"time"
)

type CircuitBreakerConfig struct {
	MaxRequests                 uint32        `json:"max_requests"`
	Interval                    time.Duration `json:"interval"`
	Timeout                     time.Duration `json:"timeout"`
	ConsecutiveFailureThreshold int           `json:"consecutive_failure_threshold"`
}

type TimeoutConfig struct {
	RequestTimeout     time.Duration `json:"request_timeout"`
	HealthCheckTimeout time.Duration `json:"health_check_timeout"`
}

type APIErrorType string

const (
	ErrorTypeTimeout      APIErrorType = "timeout"
	ErrorTypeNetworkError APIErrorType = "network_error"
	ErrorTypeServerError  APIErrorType = "server_error"
	ErrorTypeClientError  APIErrorType = "client_error"
	ErrorTypeCircuitOpen  APIErrorType = "circuit_open"
	ErrorTypeUnknown      APIErrorType = "unknown"
)

const (
	APISolanaRPC   = "solana_rpc"
	APICustody     = "custody"
	APIPriceSource = "price_source"
)

// CircuitBreakerConfigs holds the defaults per external service. The custody
// breaker trips late: an open breaker fails payouts outright.
var CircuitBreakerConfigs = map[string]CircuitBreakerConfig{
	APISolanaRPC: {
		MaxRequests:                 5,
		Interval:                    30 * time.Second,
		Timeout:                     60 * time.Second,
		ConsecutiveFailureThreshold: 5,
	},
	APICustody: {
		MaxRequests:                 1,
		Interval:                    60 * time.Second,
		Timeout:                     120 * time.Second,
		ConsecutiveFailureThreshold: 10,
	},
	APIPriceSource: {
		MaxRequests:                 3,
		Interval:                    30 * time.Second,
		Timeout:                     30 * time.Second,
		ConsecutiveFailureThreshold: 3,
	},
}

var DefaultTimeoutConfig = TimeoutConfig{
	RequestTimeout:     10 * time.Second,
	HealthCheckTimeout: 3 * time.Second,
}

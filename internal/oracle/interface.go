package oracle

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

type CacheStatistics struct {
	Hits        int64     `json:"hits"`
	Misses      int64     `json:"misses"`
	Failures    int64     `json:"failures"`
	LastRefresh time.Time `json:"last_refresh"`
}

type IOracle interface {
	// Quote returns the spot price of pair, e.g. SOLUSDT. A cached price is
	// returned while it is younger than the cache TTL; otherwise the source is
	// asked again and its failure is returned as is, never an older price.
	Quote(ctx context.Context, pair string) (decimal.Decimal, error)

	ClearCache()
	GetCacheStatistics() *CacheStatistics
}

// IPriceSource is a remote price feed.
type IPriceSource interface {
	Name() string
	Price(ctx context.Context, pair string) (decimal.Decimal, error)
}

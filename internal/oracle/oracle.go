package oracle

import (
	"context"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

var pairPattern = regexp.MustCompile(`^[A-Z0-9]{4,20}$`)

type Config struct {
	CacheTTL       time.Duration
	RequestTimeout time.Duration
	// AllowedPairs restricts Quote to known pairs when not empty.
	AllowedPairs []string
}

type PriceOracle struct {
	source  IPriceSource
	cache   *cache.Cache
	group   singleflight.Group
	timeout time.Duration
	allowed map[string]struct{}
	logger  *logger.Logger

	hits        int64
	misses      int64
	failures    int64
	mu          sync.RWMutex
	lastRefresh time.Time
}

func New(source IPriceSource, cfg Config, logger *logger.Logger) IOracle {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Second
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 5 * time.Second
	}

	allowed := make(map[string]struct{}, len(cfg.AllowedPairs))
	for _, p := range cfg.AllowedPairs {
		if p = normalizePair(p); p != "" {
			allowed[p] = struct{}{}
		}
	}

	return &PriceOracle{
		source:  source,
		cache:   cache.New(cfg.CacheTTL, 2*cfg.CacheTTL),
		timeout: cfg.RequestTimeout,
		allowed: allowed,
		logger:  logger,
	}
}

func (o *PriceOracle) Quote(ctx context.Context, pair string) (decimal.Decimal, error) {
	pair = normalizePair(pair)
	if !pairPattern.MatchString(pair) {
		return decimal.Zero, apperror.Newf(apperror.KindInvalidRequest, "invalid price pair %q", pair)
	}
	if len(o.allowed) > 0 {
		if _, ok := o.allowed[pair]; !ok {
			return decimal.Zero, apperror.Newf(apperror.KindInvalidRequest, "unknown price pair %s", pair)
		}
	}

	if cached, ok := o.cache.Get(pair); ok {
		atomic.AddInt64(&o.hits, 1)
		return cached.(decimal.Decimal), nil
	}
	atomic.AddInt64(&o.misses, 1)

	// concurrent misses for one pair share a single fetch; the fetch must not
	// die with whichever caller happened to start it
	fetchCtx := context.WithoutCancel(ctx)
	v, err, _ := o.group.Do(pair, func() (interface{}, error) {
		return o.fetch(fetchCtx, pair)
	})
	if err != nil {
		return decimal.Zero, err
	}

	return v.(decimal.Decimal), nil
}

func (o *PriceOracle) fetch(ctx context.Context, pair string) (decimal.Decimal, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	price, err := o.source.Price(ctx, pair)
	if err != nil {
		atomic.AddInt64(&o.failures, 1)
		o.logger.Error("[PriceOracle][Quote][Price]", map[string]string{
			"source": o.source.Name(),
			"pair":   pair,
			"error":  err.Error(),
		})
		return decimal.Zero, apperror.Wrap(apperror.KindOracleUnavailable, err, "price source unavailable")
	}
	if !price.IsPositive() {
		atomic.AddInt64(&o.failures, 1)
		o.logger.Error("[PriceOracle][Quote] non-positive price", map[string]string{
			"source": o.source.Name(),
			"pair":   pair,
			"price":  price.String(),
		})
		return decimal.Zero, apperror.Newf(apperror.KindOracleUnavailable, "price source returned invalid price for %s", pair)
	}

	o.cache.SetDefault(pair, price)
	o.mu.Lock()
	o.lastRefresh = time.Now()
	o.mu.Unlock()

	return price, nil
}

func (o *PriceOracle) ClearCache() {
	o.cache.Flush()
}

func (o *PriceOracle) GetCacheStatistics() *CacheStatistics {
	o.mu.RLock()
	defer o.mu.RUnlock()

	return &CacheStatistics{
		Hits:        atomic.LoadInt64(&o.hits),
		Misses:      atomic.LoadInt64(&o.misses),
		Failures:    atomic.LoadInt64(&o.failures),
		LastRefresh: o.lastRefresh,
	}
}

func normalizePair(pair string) string {
	return strings.ToUpper(strings.TrimSpace(pair))
}

package oracle_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/oracle"
	"github.com/dwarvesf/settlement-backend/internal/types/environments"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

type fakeSource struct {
	mu    sync.Mutex
	calls int32
	price decimal.Decimal
	err   error
	delay time.Duration
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) Price(ctx context.Context, pair string) (decimal.Decimal, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return decimal.Zero, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.price, f.err
}

func (f *fakeSource) set(price string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.price = decimal.RequireFromString(price)
	f.err = err
}

func (f *fakeSource) Calls() int32 { return atomic.LoadInt32(&f.calls) }

var _ = Describe("PriceOracle", func() {
	var (
		src *fakeSource
		o   oracle.IOracle
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		src = &fakeSource{}
		src.set("142.5", nil)
		o = oracle.New(src, oracle.Config{
			CacheTTL:       80 * time.Millisecond,
			RequestTimeout: 50 * time.Millisecond,
		}, logger.New(environments.Test))
	})

	Describe("Quote", func() {
		It("fetches on a miss and serves the cache within the TTL", func() {
			price, err := o.Quote(ctx, "solusdt")
			Expect(err).NotTo(HaveOccurred())
			Expect(price.String()).To(Equal("142.5"))

			price, err = o.Quote(ctx, "SOLUSDT")
			Expect(err).NotTo(HaveOccurred())
			Expect(price.String()).To(Equal("142.5"))
			Expect(src.Calls()).To(BeEquivalentTo(1))

			stats := o.GetCacheStatistics()
			Expect(stats.Hits).To(BeEquivalentTo(1))
			Expect(stats.Misses).To(BeEquivalentTo(1))
			Expect(stats.LastRefresh).NotTo(BeZero())
		})

		It("refetches once the TTL expired", func() {
			_, err := o.Quote(ctx, "SOLUSDT")
			Expect(err).NotTo(HaveOccurred())

			src.set("150", nil)
			time.Sleep(120 * time.Millisecond)

			price, err := o.Quote(ctx, "SOLUSDT")
			Expect(err).NotTo(HaveOccurred())
			Expect(price.String()).To(Equal("150"))
			Expect(src.Calls()).To(BeEquivalentTo(2))
		})

		It("never falls back to an expired price", func() {
			_, err := o.Quote(ctx, "SOLUSDT")
			Expect(err).NotTo(HaveOccurred())

			src.set("0", errors.New("503 service unavailable"))
			time.Sleep(120 * time.Millisecond)

			_, err = o.Quote(ctx, "SOLUSDT")
			Expect(apperror.Is(err, apperror.KindOracleUnavailable)).To(BeTrue())
			Expect(o.GetCacheStatistics().Failures).To(BeEquivalentTo(1))
		})

		DescribeTable("rejects unusable prices",
			func(price string) {
				src.set(price, nil)
				_, err := o.Quote(ctx, "SOLUSDT")
				Expect(apperror.Is(err, apperror.KindOracleUnavailable)).To(BeTrue())
			},
			Entry("zero", "0"),
			Entry("negative", "-1.5"),
		)

		It("fails with OracleUnavailable when the source is slower than the timeout", func() {
			src.delay = 200 * time.Millisecond
			_, err := o.Quote(ctx, "SOLUSDT")
			Expect(apperror.Is(err, apperror.KindOracleUnavailable)).To(BeTrue())
		})

		It("collapses concurrent misses into one fetch", func() {
			src.delay = 20 * time.Millisecond

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer GinkgoRecover()
					defer wg.Done()
					price, err := o.Quote(ctx, "SOLUSDT")
					Expect(err).NotTo(HaveOccurred())
					Expect(price.String()).To(Equal("142.5"))
				}()
			}
			wg.Wait()

			Expect(src.Calls()).To(BeEquivalentTo(1))
		})

		It("rejects malformed pairs without calling the source", func() {
			_, err := o.Quote(ctx, "")
			Expect(apperror.Is(err, apperror.KindInvalidRequest)).To(BeTrue())

			_, err = o.Quote(ctx, "SOL/USDT")
			Expect(apperror.Is(err, apperror.KindInvalidRequest)).To(BeTrue())
			Expect(src.Calls()).To(BeZero())
		})

		It("rejects pairs outside the allowed set", func() {
			o = oracle.New(src, oracle.Config{AllowedPairs: []string{"solusdt"}}, logger.New(environments.Test))

			_, err := o.Quote(ctx, "BTCUSDT")
			Expect(apperror.Is(err, apperror.KindInvalidRequest)).To(BeTrue())

			_, err = o.Quote(ctx, "SOLUSDT")
			Expect(err).NotTo(HaveOccurred())
		})
	})

	Describe("ClearCache", func() {
		It("forces the next quote to hit the source", func() {
			_, err := o.Quote(ctx, "SOLUSDT")
			Expect(err).NotTo(HaveOccurred())

			o.ClearCache()

			_, err = o.Quote(ctx, "SOLUSDT")
			Expect(err).NotTo(HaveOccurred())
			Expect(src.Calls()).To(BeEquivalentTo(2))
		})
	})
})

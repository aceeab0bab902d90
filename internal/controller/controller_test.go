package controller_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/controller"
	"github.com/dwarvesf/settlement-backend/internal/ledgerrpc"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/oracle"
	"github.com/dwarvesf/settlement-backend/internal/quote"
	"github.com/dwarvesf/settlement-backend/internal/settlementledger"
	"github.com/dwarvesf/settlement-backend/internal/store"
	"github.com/dwarvesf/settlement-backend/internal/store/storetest"
	"github.com/dwarvesf/settlement-backend/internal/types/environments"
	"github.com/dwarvesf/settlement-backend/internal/utils/config"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
	"github.com/dwarvesf/settlement-backend/internal/utils/webhook"
	"github.com/dwarvesf/settlement-backend/internal/verifier"
)

const (
	userWallet      = "11111111111111111111111111111111"
	otherWallet     = "SysvarC1ock11111111111111111111111111111111"
	receivingWallet = "So11111111111111111111111111111111111111112"

	splMint  = "spl-mint"
	usdtMint = "usdt-mint"
	usdcMint = "usdc-mint"
)

type fakeLedgerClient struct {
	mu          sync.Mutex
	views       map[string]*ledgerrpc.TransactionView
	getCalls    int
	getDelay    time.Duration
	onGet       func()
	payouts     []ledgerrpc.PayoutRequest
	submitErr   error
	balance     model.TokenAmount
	balanceErr  error
	balanceRead int
}

func (f *fakeLedgerClient) GetTransaction(ctx context.Context, reference string) (*ledgerrpc.TransactionView, error) {
	f.mu.Lock()
	f.getCalls++
	view := f.views[reference]
	onGet := f.onGet
	f.mu.Unlock()

	if onGet != nil {
		onGet()
	}
	if f.getDelay > 0 {
		time.Sleep(f.getDelay)
	}
	return view, nil
}

func (f *fakeLedgerClient) SubmitPayout(ctx context.Context, req ledgerrpc.PayoutRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payouts = append(f.payouts, req)
	if f.submitErr != nil {
		return "", f.submitErr
	}
	return "payout-" + req.IdempotencyKey, nil
}

func (f *fakeLedgerClient) PayoutBalance(ctx context.Context, currency string) (model.TokenAmount, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balanceRead++
	return f.balance, f.balanceErr
}

func (f *fakeLedgerClient) GetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.getCalls
}

func (f *fakeLedgerClient) Payouts() []ledgerrpc.PayoutRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ledgerrpc.PayoutRequest(nil), f.payouts...)
}

// deposit records a transfer of the SPL token for 9 decimals and USDT otherwise.
func (f *fakeLedgerClient) deposit(reference, sender, destination string, amount int64, decimals int) {
	mint := usdtMint
	if decimals == 9 {
		mint = splMint
	}
	f.depositToken(reference, sender, destination, mint, amount, decimals)
}

func (f *fakeLedgerClient) depositToken(reference, sender, destination, mint string, amount int64, decimals int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.views[reference] = &ledgerrpc.TransactionView{
		Reference:     reference,
		Destination:   destination,
		Sender:        sender,
		Mint:          mint,
		PreBalance:    big.NewInt(5),
		PostBalance:   new(big.Int).Add(big.NewInt(5), big.NewInt(amount)),
		Decimals:      decimals,
		Confirmations: ledgerrpc.FinalizedConfirmations,
		Finalized:     true,
	}
}

type fakeOracle struct {
	mu    sync.Mutex
	calls int
	price decimal.Decimal
	err   error
}

func (f *fakeOracle) Quote(ctx context.Context, pair string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.price, f.err
}

func (f *fakeOracle) ClearCache() {}

func (f *fakeOracle) GetCacheStatistics() *oracle.CacheStatistics {
	return &oracle.CacheStatistics{}
}

func (f *fakeOracle) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu     sync.Mutex
	alerts []webhook.Alert
}

func (f *fakeNotifier) NotifyOperator(ctx context.Context, alert webhook.Alert) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.alerts = append(f.alerts, alert)
}

func (f *fakeNotifier) CallUptimeWebhook(ctx context.Context, webhookURL string) {}

func (f *fakeNotifier) Alerts() []webhook.Alert {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webhook.Alert(nil), f.alerts...)
}

var testCurrencies = []model.Currency{
	{Code: "SPL", Kind: model.CurrencyKindNative, Decimals: 9, Mint: splMint, PricePair: "SOLUSDT", TokenRatio: "0.00048"},
	{Code: "USDT", Kind: model.CurrencyKindStable, Decimals: 6, Mint: usdtMint},
	{Code: "USDC", Kind: model.CurrencyKindStable, Decimals: 6, Mint: usdcMint},
}

func kindOf(err error) apperror.Kind {
	return apperror.KindOf(err)
}

var _ = Describe("Controller", func() {
	var (
		ctx      context.Context
		chain    *fakeLedgerClient
		prices   *fakeOracle
		notifier *fakeNotifier
		ledger   settlementledger.ILedger
		ctrl     controller.IController
	)

	stableRequest := func(ref string, amount string) controller.SettleRequest {
		return controller.SettleRequest{
			Wallet:           userWallet,
			DepositReference: ref,
			ClaimedCurrency:  "USDT",
			ClaimedAmount:    amount,
			PayoutCurrency:   "USDT",
		}
	}

	recordOf := func(ref string) *model.SettlementRecord {
		rec, err := ledger.Get(ctx, ref)
		Expect(err).NotTo(HaveOccurred())
		Expect(rec).NotTo(BeNil())
		return rec
	}

	BeforeEach(func() {
		ctx = context.Background()
		l := logger.New(environments.Test)

		db, closeDB, err := storetest.Open()
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(closeDB)

		chain = &fakeLedgerClient{
			views:   map[string]*ledgerrpc.TransactionView{},
			balance: model.TokenAmount{Value: "1000000000", Decimal: 6},
		}
		prices = &fakeOracle{price: decimal.RequireFromString("150")}
		notifier = &fakeNotifier{}
		ledger = settlementledger.New(db, store.New(), l)

		engine, err := quote.New(prices, testCurrencies)
		Expect(err).NotTo(HaveOccurred())

		v := verifier.New(chain, verifier.RetryPolicy{
			Attempts:         3,
			Delay:            time.Millisecond,
			MinConfirmations: 1,
		}, l)

		cfg := &config.AppConfig{
			Solana:     config.SolanaConfig{ReceivingWallet: receivingWallet},
			Settlement: config.SettlementConfig{Timeout: 5 * time.Second},
		}
		ctrl = controller.New(ledger, v, engine, chain, notifier, nil, l, cfg)
	})

	Describe("Settle", func() {
		It("pays a stable to stable deposit one to one without asking the oracle", func() {
			chain.deposit("sig-stable", userWallet, receivingWallet, 100, 6)

			res, err := ctrl.Settle(ctx, stableRequest("sig-stable", "100"))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(model.SettlementStatusPaid))
			Expect(res.PayoutAmount).To(Equal(model.TokenAmount{Value: "100", Decimal: 6}))
			Expect(res.PayoutTxID).To(Equal("payout-sig-stable"))
			Expect(res.Replayed).To(BeFalse())
			Expect(prices.Calls()).To(Equal(0))

			payouts := chain.Payouts()
			Expect(payouts).To(HaveLen(1))
			Expect(payouts[0].IdempotencyKey).To(Equal("sig-stable"))
			Expect(payouts[0].Destination).To(Equal(userWallet))
			Expect(payouts[0].Currency).To(Equal("USDT"))

			rec := recordOf("sig-stable")
			Expect(rec.Status).To(Equal(model.SettlementStatusPaid))
			Expect(*rec.PayoutTxID).To(Equal("payout-sig-stable"))
			Expect(rec.DepositAmount).To(Equal("100"))

			deposit, err := ledger.GetDeposit(ctx, "sig-stable")
			Expect(err).NotTo(HaveOccurred())
			Expect(deposit.Currency).To(Equal("USDT"))
			Expect(deposit.SourceWallet).To(Equal(userWallet))
		})

		It("prices a native deposit through the oracle", func() {
			chain.deposit("sig-native", userWallet, receivingWallet, 1000_000_000_000, 9)

			res, err := ctrl.Settle(ctx, controller.SettleRequest{
				Wallet:           userWallet,
				DepositReference: "sig-native",
				ClaimedCurrency:  "spl",
				ClaimedAmount:    "1000000000000",
				PayoutCurrency:   "usdt",
			})

			Expect(err).NotTo(HaveOccurred())
			Expect(res.PayoutAmount).To(Equal(model.TokenAmount{Value: "72000000", Decimal: 6}))
			Expect(prices.Calls()).To(Equal(1))
		})

		It("replays a paid settlement without paying again", func() {
			chain.deposit("sig-replay", userWallet, receivingWallet, 100, 6)
			first, err := ctrl.Settle(ctx, stableRequest("sig-replay", "100"))
			Expect(err).NotTo(HaveOccurred())

			second, err := ctrl.Settle(ctx, stableRequest("sig-replay", "100"))

			Expect(err).NotTo(HaveOccurred())
			Expect(second.Replayed).To(BeTrue())
			Expect(second.PayoutAmount).To(Equal(first.PayoutAmount))
			Expect(second.PayoutTxID).To(Equal(first.PayoutTxID))
			Expect(chain.Payouts()).To(HaveLen(1))
			Expect(chain.GetCalls()).To(Equal(1))
		})

		It("refuses to re-settle a paid deposit into another currency", func() {
			chain.deposit("sig-paid", userWallet, receivingWallet, 100, 6)
			_, err := ctrl.Settle(ctx, stableRequest("sig-paid", "100"))
			Expect(err).NotTo(HaveOccurred())

			req := stableRequest("sig-paid", "100")
			req.PayoutCurrency = "USDC"
			_, err = ctrl.Settle(ctx, req)

			Expect(kindOf(err)).To(Equal(apperror.KindAlreadySettled))
			Expect(chain.Payouts()).To(HaveLen(1))
		})

		It("reports a settlement another request is working on as in progress", func() {
			_, isNew, err := ledger.BeginOrReuse(ctx, &model.SettlementRecord{
				DepositReference: "sig-busy",
				RequestingWallet: userWallet,
				SourceCurrency:   "USDT",
				ClaimedAmount:    "100",
				PayoutCurrency:   "USDT",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeTrue())

			_, err = ctrl.Settle(ctx, stableRequest("sig-busy", "100"))

			Expect(kindOf(err)).To(Equal(apperror.KindInProgress))
			Expect(kindOf(err).Retryable()).To(BeTrue())
			Expect(chain.GetCalls()).To(Equal(0))
		})

		It("fails with Mismatch when the deposit went to another wallet", func() {
			chain.deposit("sig-elsewhere", userWallet, otherWallet, 100, 6)

			_, err := ctrl.Settle(ctx, stableRequest("sig-elsewhere", "100"))

			Expect(kindOf(err)).To(Equal(apperror.KindMismatch))
			Expect(chain.GetCalls()).To(Equal(1))
			Expect(chain.Payouts()).To(BeEmpty())
			rec := recordOf("sig-elsewhere")
			Expect(rec.Status).To(Equal(model.SettlementStatusFailed))
			Expect(rec.ErrorKind).To(Equal(string(apperror.KindMismatch)))
		})

		It("leaves a reference claimed first by another wallet failed for the real depositor", func() {
			chain.deposit("sig-claimed-first", userWallet, receivingWallet, 100, 6)

			req := stableRequest("sig-claimed-first", "100")
			req.Wallet = otherWallet
			_, err := ctrl.Settle(ctx, req)
			Expect(kindOf(err)).To(Equal(apperror.KindMismatch))

			_, err = ctrl.Settle(ctx, stableRequest("sig-claimed-first", "100"))

			Expect(kindOf(err)).To(Equal(apperror.KindMismatch))
			Expect(apperror.IsFinal(err)).To(BeTrue())
			Expect(apperror.MessageOf(err)).To(HaveSuffix(apperror.FinalNote))
			Expect(chain.Payouts()).To(BeEmpty())
			rec := recordOf("sig-claimed-first")
			Expect(rec.Status).To(Equal(model.SettlementStatusFailed))
			Expect(rec.RequestingWallet).To(Equal(otherWallet))
		})

		It("fails with Mismatch when the claimed amount differs from the deposit", func() {
			chain.deposit("sig-short", userWallet, receivingWallet, 99, 6)

			_, err := ctrl.Settle(ctx, stableRequest("sig-short", "100"))

			Expect(kindOf(err)).To(Equal(apperror.KindMismatch))
			Expect(recordOf("sig-short").Status).To(Equal(model.SettlementStatusFailed))
		})

		It("fails with Mismatch when the deposit is a look-alike token with the claimed decimals", func() {
			chain.depositToken("sig-fake-spl", userWallet, receivingWallet, "WorthlessLookAlikeMint", 1000_000_000_000, 9)

			_, err := ctrl.Settle(ctx, controller.SettleRequest{
				Wallet:           userWallet,
				DepositReference: "sig-fake-spl",
				ClaimedCurrency:  "SPL",
				ClaimedAmount:    "1000000000000",
				PayoutCurrency:   "USDT",
			})

			Expect(kindOf(err)).To(Equal(apperror.KindMismatch))
			Expect(chain.Payouts()).To(BeEmpty())
			Expect(prices.Calls()).To(Equal(0))
			Expect(recordOf("sig-fake-spl").Status).To(Equal(model.SettlementStatusFailed))
		})

		It("gives up with NotFound after exactly the configured number of lookups", func() {
			_, err := ctrl.Settle(ctx, stableRequest("sig-missing", "100"))

			Expect(kindOf(err)).To(Equal(apperror.KindNotFound))
			Expect(chain.GetCalls()).To(Equal(3))
			Expect(recordOf("sig-missing").Status).To(Equal(model.SettlementStatusFailed))
			Expect(apperror.IsFinal(err)).To(BeTrue())
			Expect(apperror.Retryable(err)).To(BeFalse())
		})

		It("replays a stored failure as final instead of retryable", func() {
			_, err := ctrl.Settle(ctx, stableRequest("sig-unconfirmed", "100"))
			Expect(kindOf(err)).To(Equal(apperror.KindNotFound))

			chain.deposit("sig-unconfirmed", userWallet, receivingWallet, 100, 6)
			_, err = ctrl.Settle(ctx, stableRequest("sig-unconfirmed", "100"))

			Expect(kindOf(err)).To(Equal(apperror.KindNotFound))
			Expect(kindOf(err).Retryable()).To(BeTrue())
			Expect(apperror.Retryable(err)).To(BeFalse())
			Expect(apperror.MessageOf(err)).To(HaveSuffix(apperror.FinalNote))
			Expect(chain.GetCalls()).To(Equal(3))
			Expect(chain.Payouts()).To(BeEmpty())
		})

		It("fails with OracleUnavailable and keeps the record failed", func() {
			chain.deposit("sig-no-price", userWallet, receivingWallet, 1000_000_000_000, 9)
			prices.err = apperror.New(apperror.KindOracleUnavailable, "price source down")

			req := controller.SettleRequest{
				Wallet:           userWallet,
				DepositReference: "sig-no-price",
				ClaimedCurrency:  "SPL",
				ClaimedAmount:    "1000000000000",
				PayoutCurrency:   "USDT",
			}
			_, err := ctrl.Settle(ctx, req)

			Expect(kindOf(err)).To(Equal(apperror.KindOracleUnavailable))
			Expect(chain.Payouts()).To(BeEmpty())
			rec := recordOf("sig-no-price")
			Expect(rec.Status).To(Equal(model.SettlementStatusFailed))
			Expect(rec.ErrorKind).To(Equal(string(apperror.KindOracleUnavailable)))

			prices.err = nil
			_, err = ctrl.Settle(ctx, req)
			Expect(kindOf(err)).To(Equal(apperror.KindOracleUnavailable))
			Expect(chain.Payouts()).To(BeEmpty())
		})

		It("fails with InsufficientFunds when the payout wallet is short", func() {
			chain.deposit("sig-poor", userWallet, receivingWallet, 100, 6)
			chain.balance = model.TokenAmount{Value: "99", Decimal: 6}

			_, err := ctrl.Settle(ctx, stableRequest("sig-poor", "100"))

			Expect(kindOf(err)).To(Equal(apperror.KindInsufficientFunds))
			Expect(apperror.MessageOf(err)).To(ContainSubstring("0.000001 USDT short"))
			Expect(chain.Payouts()).To(BeEmpty())
			Expect(recordOf("sig-poor").Status).To(Equal(model.SettlementStatusFailed))
			Expect(notifier.Alerts()).To(HaveLen(1))
			Expect(notifier.Alerts()[0].Event).To(Equal(webhook.EventPayoutFailed))
		})

		It("fails with SubmitError, alerts the operator and never resubmits", func() {
			chain.deposit("sig-reject", userWallet, receivingWallet, 100, 6)
			chain.submitErr = errors.New("custody rejected transfer")

			_, err := ctrl.Settle(ctx, stableRequest("sig-reject", "100"))

			Expect(kindOf(err)).To(Equal(apperror.KindSubmitError))
			Expect(kindOf(err).Retryable()).To(BeFalse())
			alerts := notifier.Alerts()
			Expect(alerts).To(HaveLen(1))
			Expect(alerts[0].DepositReference).To(Equal("sig-reject"))
			Expect(alerts[0].ErrorKind).To(Equal(string(apperror.KindSubmitError)))
			Expect(recordOf("sig-reject").Status).To(Equal(model.SettlementStatusFailed))

			chain.submitErr = nil
			_, err = ctrl.Settle(ctx, stableRequest("sig-reject", "100"))
			Expect(kindOf(err)).To(Equal(apperror.KindSubmitError))
			Expect(chain.Payouts()).To(HaveLen(1))
		})

		It("finishes the settlement after the caller goes away", func() {
			chain.deposit("sig-abandoned", userWallet, receivingWallet, 100, 6)
			callerCtx, cancel := context.WithCancel(ctx)
			chain.onGet = cancel

			res, err := ctrl.Settle(callerCtx, stableRequest("sig-abandoned", "100"))

			Expect(err).NotTo(HaveOccurred())
			Expect(res.Status).To(Equal(model.SettlementStatusPaid))
			Expect(recordOf("sig-abandoned").Status).To(Equal(model.SettlementStatusPaid))
		})

		It("pays at most once under concurrent requests", func() {
			chain.deposit("sig-race", userWallet, receivingWallet, 100, 6)
			chain.getDelay = 20 * time.Millisecond

			const callers = 8
			var wg sync.WaitGroup
			results := make([]*controller.SettleResult, callers)
			errs := make([]error, callers)
			for i := 0; i < callers; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					results[i], errs[i] = ctrl.Settle(ctx, stableRequest("sig-race", "100"))
				}(i)
			}
			wg.Wait()

			paid := 0
			for i := 0; i < callers; i++ {
				if errs[i] == nil {
					Expect(results[i].Status).To(Equal(model.SettlementStatusPaid))
					if !results[i].Replayed {
						paid++
					}
					continue
				}
				Expect(kindOf(errs[i])).To(Equal(apperror.KindInProgress))
			}
			Expect(paid).To(Equal(1))
			Expect(chain.Payouts()).To(HaveLen(1))
		})

		DescribeTable("rejects malformed requests before creating a record",
			func(mutate func(*controller.SettleRequest), kind apperror.Kind) {
				req := stableRequest("sig-invalid", "100")
				mutate(&req)

				_, err := ctrl.Settle(ctx, req)

				Expect(kindOf(err)).To(Equal(kind))
				rec, err := ledger.Get(ctx, req.DepositReference)
				Expect(err).NotTo(HaveOccurred())
				Expect(rec).To(BeNil())
			},
			Entry("bad wallet", func(r *controller.SettleRequest) { r.Wallet = "not-base58-0OIl" }, apperror.KindInvalidRequest),
			Entry("short wallet", func(r *controller.SettleRequest) { r.Wallet = "abc" }, apperror.KindInvalidRequest),
			Entry("oversized reference", func(r *controller.SettleRequest) { r.DepositReference = strings.Repeat("a", 129) }, apperror.KindInvalidRequest),
			Entry("zero amount", func(r *controller.SettleRequest) { r.ClaimedAmount = "0" }, apperror.KindInvalidRequest),
			Entry("fractional amount", func(r *controller.SettleRequest) { r.ClaimedAmount = "1.5" }, apperror.KindInvalidRequest),
			Entry("amount wider than the amount column", func(r *controller.SettleRequest) { r.ClaimedAmount = "1" + strings.Repeat("0", 78) }, apperror.KindInvalidRequest),
			Entry("unknown claimed currency", func(r *controller.SettleRequest) { r.ClaimedCurrency = "DOGE" }, apperror.KindUnsupportedCurrency),
			Entry("unknown payout currency", func(r *controller.SettleRequest) { r.PayoutCurrency = "DOGE" }, apperror.KindUnsupportedCurrency),
		)

		It("rejects an empty reference", func() {
			_, err := ctrl.Settle(ctx, stableRequest("", "100"))
			Expect(kindOf(err)).To(Equal(apperror.KindInvalidRequest))
		})
	})

	Describe("GetSettlement", func() {
		It("returns NotFound for an unknown reference", func() {
			_, err := ctrl.GetSettlement(ctx, "nope")
			Expect(kindOf(err)).To(Equal(apperror.KindNotFound))
		})

		It("returns the stored record", func() {
			chain.deposit("sig-get", userWallet, receivingWallet, 100, 6)
			_, err := ctrl.Settle(ctx, stableRequest("sig-get", "100"))
			Expect(err).NotTo(HaveOccurred())

			rec, err := ctrl.GetSettlement(ctx, "sig-get")
			Expect(err).NotTo(HaveOccurred())
			Expect(rec.Status).To(Equal(model.SettlementStatusPaid))
		})
	})

	Describe("ListSettlements", func() {
		It("filters by status", func() {
			chain.deposit("sig-list-ok", userWallet, receivingWallet, 100, 6)
			_, err := ctrl.Settle(ctx, stableRequest("sig-list-ok", "100"))
			Expect(err).NotTo(HaveOccurred())
			_, err = ctrl.Settle(ctx, stableRequest("sig-list-missing", "100"))
			Expect(err).To(HaveOccurred())

			recs, total, err := ctrl.ListSettlements(ctx, model.SettlementListFilter{Status: model.SettlementStatusPaid})
			Expect(err).NotTo(HaveOccurred())
			Expect(total).To(BeEquivalentTo(1))
			Expect(recs).To(HaveLen(1))
			Expect(recs[0].DepositReference).To(Equal("sig-list-ok"))
		})

		It("rejects an unknown status", func() {
			_, _, err := ctrl.ListSettlements(ctx, model.SettlementListFilter{Status: "DONE"})
			Expect(kindOf(err)).To(Equal(apperror.KindInvalidRequest))
		})
	})
})

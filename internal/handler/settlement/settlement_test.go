package settlement_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/mock"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/controller"
	"github.com/dwarvesf/settlement-backend/internal/handler/settlement"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/types/environments"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
)

const (
	userWallet = "11111111111111111111111111111111"
	reference  = "5VERv8NMvzbJMEkV8xnrLkEaWRtSz9CosKDYjCJjBRnbJLgp8uirBgmQpjKhoR4tjF3ZpRzrFmBV6UjKdiSZkQUW"
)

type MockController struct {
	mock.Mock
}

func (m *MockController) Settle(ctx context.Context, req controller.SettleRequest) (*controller.SettleResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*controller.SettleResult), args.Error(1)
}

func (m *MockController) GetSettlement(ctx context.Context, ref string) (*model.SettlementRecord, error) {
	args := m.Called(ctx, ref)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SettlementRecord), args.Error(1)
}

func (m *MockController) ListSettlements(ctx context.Context, filter model.SettlementListFilter) ([]*model.SettlementRecord, int64, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*model.SettlementRecord), args.Get(1).(int64), args.Error(2)
}

type envelope struct {
	Data      json.RawMessage `json:"data"`
	Message   string          `json:"message"`
	Error     string          `json:"error"`
	ErrorKind string          `json:"error_kind"`
	Retryable bool            `json:"retryable"`
}

var _ = Describe("Settlement handler", func() {
	var (
		ctrl   *MockController
		router *gin.Engine
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		ctrl = new(MockController)
		h := settlement.New(ctrl, logger.New(environments.Test))

		router = gin.New()
		router.POST("/settlements", h.CreateSettlement)
		router.GET("/settlements", h.ListSettlements)
		router.GET("/settlements/:reference", h.GetSettlement)
	})

	AfterEach(func() {
		ctrl.AssertExpectations(GinkgoT())
	})

	do := func(method, target, body string) (*httptest.ResponseRecorder, envelope) {
		req := httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)

		var env envelope
		Expect(json.Unmarshal(w.Body.Bytes(), &env)).To(Succeed())
		return w, env
	}

	validBody := func() string {
		return `{"wallet":"` + userWallet + `","deposit_reference":"` + reference + `",` +
			`"claimed_currency":"usdt","claimed_amount":"100","payout_currency":"usdt"}`
	}

	Describe("POST /settlements", func() {
		It("returns the payout of a paid settlement", func() {
			ctrl.On("Settle", mock.Anything, controller.SettleRequest{
				Wallet:           userWallet,
				DepositReference: reference,
				ClaimedCurrency:  "USDT",
				ClaimedAmount:    "100",
				PayoutCurrency:   "USDT",
			}).Return(&controller.SettleResult{
				DepositReference: reference,
				Status:           model.SettlementStatusPaid,
				PayoutCurrency:   "USDT",
				PayoutAmount:     model.TokenAmount{Value: "100", Decimal: 6},
				PayoutTxID:       "payout-1",
			}, nil).Once()

			w, env := do(http.MethodPost, "/settlements", validBody())

			Expect(w.Code).To(Equal(http.StatusOK))
			var data settlement.SettlementResponse
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.Status).To(Equal(model.SettlementStatusPaid))
			Expect(data.PayoutAmount).To(Equal("100"))
			Expect(data.PayoutDecimals).To(Equal(6))
			Expect(data.PayoutTxID).To(Equal("payout-1"))
			Expect(data.Replayed).To(BeFalse())
		})

		It("flags a replayed settlement", func() {
			ctrl.On("Settle", mock.Anything, mock.Anything).Return(&controller.SettleResult{
				DepositReference: reference,
				Status:           model.SettlementStatusPaid,
				PayoutAmount:     model.TokenAmount{Value: "100", Decimal: 6},
				PayoutTxID:       "payout-1",
				Replayed:         true,
			}, nil).Once()

			w, env := do(http.MethodPost, "/settlements", validBody())

			Expect(w.Code).To(Equal(http.StatusOK))
			var data settlement.SettlementResponse
			Expect(json.Unmarshal(env.Data, &data)).To(Succeed())
			Expect(data.Replayed).To(BeTrue())
		})

		DescribeTable("maps failure kinds to HTTP statuses",
			func(kind apperror.Kind, status int, retryable bool) {
				ctrl.On("Settle", mock.Anything, mock.Anything).
					Return(nil, apperror.New(kind, "settlement failed")).Once()

				w, env := do(http.MethodPost, "/settlements", validBody())

				Expect(w.Code).To(Equal(status))
				Expect(env.ErrorKind).To(Equal(kind.String()))
				Expect(env.Retryable).To(Equal(retryable))
				Expect(env.Message).To(Equal("settlement failed"))
			},
			Entry("not found", apperror.KindNotFound, http.StatusNotFound, true),
			Entry("not confirmed", apperror.KindNotConfirmed, http.StatusAccepted, true),
			Entry("mismatch", apperror.KindMismatch, http.StatusUnprocessableEntity, false),
			Entry("oracle unavailable", apperror.KindOracleUnavailable, http.StatusServiceUnavailable, true),
			Entry("in progress", apperror.KindInProgress, http.StatusConflict, true),
			Entry("already settled", apperror.KindAlreadySettled, http.StatusConflict, false),
			Entry("submit error", apperror.KindSubmitError, http.StatusBadGateway, false),
		)

		It("reports a failure replayed from a FAILED record as final", func() {
			ctrl.On("Settle", mock.Anything, mock.Anything).
				Return(nil, apperror.Finalize(apperror.New(apperror.KindNotConfirmed, "transaction has 0 of 1 confirmations"))).Twice()

			for i := 0; i < 2; i++ {
				w, env := do(http.MethodPost, "/settlements", validBody())

				Expect(w.Code).To(Equal(http.StatusConflict))
				Expect(env.ErrorKind).To(Equal("NOT_CONFIRMED"))
				Expect(env.Retryable).To(BeFalse())
				Expect(env.Error).To(ContainSubstring(apperror.FinalNote))
			}
		})

		It("masks untyped errors as internal", func() {
			ctrl.On("Settle", mock.Anything, mock.Anything).
				Return(nil, context.DeadlineExceeded).Once()

			w, env := do(http.MethodPost, "/settlements", validBody())

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(env.ErrorKind).To(Equal("INTERNAL"))
			Expect(env.Error).To(Equal("internal error"))
		})

		DescribeTable("rejects malformed bodies without calling the controller",
			func(body string) {
				w, env := do(http.MethodPost, "/settlements", body)

				Expect(w.Code).To(Equal(http.StatusBadRequest))
				Expect(env.ErrorKind).To(Equal("INVALID_REQUEST"))
				ctrl.AssertNotCalled(GinkgoT(), "Settle", mock.Anything, mock.Anything)
			},
			Entry("not json", `{`),
			Entry("missing wallet", `{"deposit_reference":"r","claimed_currency":"USDT","claimed_amount":"1","payout_currency":"USDT"}`),
			Entry("non numeric amount", `{"wallet":"`+userWallet+`","deposit_reference":"r","claimed_currency":"USDT","claimed_amount":"ten","payout_currency":"USDT"}`),
			Entry("short wallet", `{"wallet":"abc","deposit_reference":"r","claimed_currency":"USDT","claimed_amount":"1","payout_currency":"USDT"}`),
			Entry("oversized amount", `{"wallet":"`+userWallet+`","deposit_reference":"r","claimed_currency":"USDT","claimed_amount":"`+strings.Repeat("9", 79)+`","payout_currency":"USDT"}`),
			Entry("oversized reference", `{"wallet":"`+userWallet+`","deposit_reference":"`+strings.Repeat("a", 129)+`","claimed_currency":"USDT","claimed_amount":"1","payout_currency":"USDT"}`),
		)
	})

	Describe("GET /settlements/:reference", func() {
		It("returns the stored record", func() {
			txID := "payout-1"
			ctrl.On("GetSettlement", mock.Anything, reference).Return(&model.SettlementRecord{
				DepositReference: reference,
				Status:           model.SettlementStatusPaid,
				RequestingWallet: userWallet,
				PayoutCurrency:   "USDT",
				PayoutAmount:     "100",
				PayoutDecimals:   6,
				PayoutTxID:       &txID,
			}, nil).Once()

			w, env := do(http.MethodGet, "/settlements/"+reference, "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var rec model.SettlementRecord
			Expect(json.Unmarshal(env.Data, &rec)).To(Succeed())
			Expect(rec.Status).To(Equal(model.SettlementStatusPaid))
			Expect(*rec.PayoutTxID).To(Equal("payout-1"))
		})

		It("returns 404 for an unknown reference", func() {
			ctrl.On("GetSettlement", mock.Anything, "unknown").
				Return(nil, apperror.New(apperror.KindNotFound, "no settlement for unknown")).Once()

			w, env := do(http.MethodGet, "/settlements/unknown", "")

			Expect(w.Code).To(Equal(http.StatusNotFound))
			Expect(env.ErrorKind).To(Equal("NOT_FOUND"))
		})
	})

	Describe("GET /settlements", func() {
		It("applies the default page size", func() {
			ctrl.On("ListSettlements", mock.Anything, model.SettlementListFilter{Limit: 20}).
				Return([]*model.SettlementRecord{{DepositReference: "a"}, {DepositReference: "b"}}, int64(7), nil).Once()

			w, env := do(http.MethodGet, "/settlements", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			var page struct {
				Items      []model.SettlementRecord `json:"items"`
				Pagination struct {
					Limit int   `json:"limit"`
					Total int64 `json:"total"`
				} `json:"pagination"`
			}
			Expect(json.Unmarshal(env.Data, &page)).To(Succeed())
			Expect(page.Items).To(HaveLen(2))
			Expect(page.Pagination.Limit).To(Equal(20))
			Expect(page.Pagination.Total).To(BeEquivalentTo(7))
		})

		It("passes filters through and caps the page size", func() {
			ctrl.On("ListSettlements", mock.Anything, model.SettlementListFilter{
				Status: model.SettlementStatusFailed,
				Wallet: userWallet,
				Limit:  100,
				Offset: 40,
			}).Return([]*model.SettlementRecord(nil), int64(0), nil).Once()

			w, env := do(http.MethodGet, "/settlements?status=failed&wallet="+userWallet+"&limit=500&offset=40", "")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(string(env.Data)).To(ContainSubstring(`"items":[]`))
		})

		It("rejects an unknown status", func() {
			ctrl.On("ListSettlements", mock.Anything, mock.Anything).
				Return(nil, int64(0), apperror.New(apperror.KindInvalidRequest, "unknown status DONE")).Once()

			w, env := do(http.MethodGet, "/settlements?status=done", "")

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(env.ErrorKind).To(Equal("INVALID_REQUEST"))
		})
	})
})

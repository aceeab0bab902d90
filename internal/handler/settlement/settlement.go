package settlement

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/dwarvesf/settlement-backend/internal/apperror"
	"github.com/dwarvesf/settlement-backend/internal/consts"
	"github.com/dwarvesf/settlement-backend/internal/controller"
	"github.com/dwarvesf/settlement-backend/internal/model"
	"github.com/dwarvesf/settlement-backend/internal/utils/logger"
	"github.com/dwarvesf/settlement-backend/internal/view"
)

type handler struct {
	controller controller.IController
	logger     *logger.Logger
	validate   *validator.Validate
}

func New(controller controller.IController, logger *logger.Logger) IHandler {
	return &handler{
		controller: controller,
		logger:     logger,
		validate:   validator.New(),
	}
}

// CreateSettlement godoc
// @Summary Settle a deposit
// @Description Verifies the deposit behind deposit_reference and pays the requesting wallet at most once. Repeating a request returns the stored outcome.
// @id createSettlement
// @Tags Settlement
// @Accept json
// @Produce json
// @Param request body CreateSettlementRequest true "Settlement request"
// @Success 200 {object} view.Response[SettlementResponse]
// @Failure 400 {object} view.ErrorResponse
// @Failure 409 {object} view.ErrorResponse
// @Failure 422 {object} view.ErrorResponse
// @Failure 502 {object} view.ErrorResponse
// @Failure 503 {object} view.ErrorResponse
// @Router /settlements [post]
func (h *handler) CreateSettlement(c *gin.Context) {
	var req CreateSettlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("[CreateSettlement][ShouldBindJSON]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, apperror.Wrap(apperror.KindInvalidRequest, err, "invalid request"), req, ""))
		return
	}

	req.DepositReference = strings.TrimSpace(req.DepositReference)
	req.ClaimedCurrency = strings.ToUpper(strings.TrimSpace(req.ClaimedCurrency))
	req.PayoutCurrency = strings.ToUpper(strings.TrimSpace(req.PayoutCurrency))

	if err := h.validate.Struct(req); err != nil {
		h.logger.Error("[CreateSettlement][Validator]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, apperror.Wrap(apperror.KindInvalidRequest, err, "invalid request"), req, ""))
		return
	}

	res, err := h.controller.Settle(c.Request.Context(), controller.SettleRequest{
		Wallet:           req.Wallet,
		DepositReference: req.DepositReference,
		ClaimedCurrency:  req.ClaimedCurrency,
		ClaimedAmount:    req.ClaimedAmount,
		PayoutCurrency:   req.PayoutCurrency,
	})
	if err != nil {
		kind := apperror.KindOf(err)
		h.logger.Error("[CreateSettlement][Settle]", map[string]string{
			"reference": req.DepositReference,
			"kind":      kind.String(),
			"error":     err.Error(),
		})
		c.JSON(apperror.HTTPStatusOf(err), view.CreateResponse[any](nil, err, nil, ""))
		return
	}

	c.JSON(http.StatusOK, view.CreateResponse[any](toResponse(res), nil, nil, ""))
}

// GetSettlement godoc
// @Summary Get a settlement
// @Description Returns the settlement record stored for a deposit reference
// @id getSettlement
// @Tags Settlement
// @Produce json
// @Param reference path string true "Deposit reference"
// @Success 200 {object} view.Response[model.SettlementRecord]
// @Failure 404 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /settlements/{reference} [get]
func (h *handler) GetSettlement(c *gin.Context) {
	reference := c.Param("reference")

	rec, err := h.controller.GetSettlement(c.Request.Context(), reference)
	if err != nil {
		kind := apperror.KindOf(err)
		if kind != apperror.KindNotFound {
			h.logger.Error("[GetSettlement][GetSettlement]", map[string]string{
				"reference": reference,
				"error":     err.Error(),
			})
		}
		c.JSON(kind.HTTPStatus(), view.CreateResponse[any](nil, err, nil, ""))
		return
	}

	c.JSON(http.StatusOK, view.CreateResponse[any](rec, nil, nil, ""))
}

// ListSettlements godoc
// @Summary List settlements
// @Description Pages through settlement records, newest first
// @id listSettlements
// @Tags Settlement
// @Produce json
// @Param status query string false "PENDING, CONFIRMED, QUOTED, PAID or FAILED"
// @Param wallet query string false "Requesting wallet"
// @Param limit query int false "Page size, at most 100"
// @Param offset query int false "Offset"
// @Success 200 {object} view.Response[view.ListResponse[model.SettlementRecord]]
// @Failure 400 {object} view.ErrorResponse
// @Failure 500 {object} view.ErrorResponse
// @Router /settlements [get]
func (h *handler) ListSettlements(c *gin.Context) {
	var req ListSettlementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, view.CreateResponse[any](nil, apperror.Wrap(apperror.KindInvalidRequest, err, "invalid query"), nil, ""))
		return
	}

	if req.Limit <= 0 {
		req.Limit = consts.DefaultPageLimit
	}
	if req.Limit > consts.MaxPageLimit {
		req.Limit = consts.MaxPageLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}

	filter := model.SettlementListFilter{
		Status: model.SettlementStatus(strings.ToUpper(req.Status)),
		Wallet: req.Wallet,
		Limit:  req.Limit,
		Offset: req.Offset,
	}

	records, total, err := h.controller.ListSettlements(c.Request.Context(), filter)
	if err != nil {
		kind := apperror.KindOf(err)
		h.logger.Error("[ListSettlements][ListSettlements]", map[string]string{
			"error": err.Error(),
		})
		c.JSON(kind.HTTPStatus(), view.CreateResponse[any](nil, err, nil, "failed to list settlements"))
		return
	}
	if records == nil {
		records = []*model.SettlementRecord{}
	}

	c.JSON(http.StatusOK, view.CreateResponse[any](view.ListResponse[*model.SettlementRecord]{
		Items: records,
		Pagination: view.Pagination{
			Limit:  req.Limit,
			Offset: req.Offset,
			Total:  total,
		},
	}, nil, nil, ""))
}

func toResponse(res *controller.SettleResult) SettlementResponse {
	out := SettlementResponse{
		DepositReference: res.DepositReference,
		Status:           res.Status,
		PayoutCurrency:   res.PayoutCurrency,
		PayoutTxID:       res.PayoutTxID,
		Replayed:         res.Replayed,
	}
	if res.PayoutAmount.Value != "" {
		out.PayoutAmount = res.PayoutAmount.Value
		out.PayoutDecimals = res.PayoutAmount.Decimal
	}
	return out
}
